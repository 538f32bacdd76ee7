package b2

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/cockroachdb/errors"
)

const (
	// AccountInfoEnv overrides the location of the account store.
	AccountInfoEnv = "B2_ACCOUNT_INFO"

	accountBucket   = "account"
	bucketIDsBucket = "bucket-ids"
	accountKey      = "info"
)

// DefaultStorePath returns $B2_ACCOUNT_INFO, falling back to
// ~/.b2_account_info.
func DefaultStorePath(getenv func(string) string) string {
	if p := getenv(AccountInfoEnv); p != "" {
		return p
	}
	home := getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".b2_account_info")
}

// Store persists the account authorization and a bucket name to id cache in
// a bolt file. The file is opened per operation so concurrent invocations
// only contend for the lock briefly.
type Store struct {
	path string
}

// NewStore returns a store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

func (s *Store) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: 5 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, errors.Wrapf(err, "open account store %s", s.path)
	}
	return db, nil
}

func (s *Store) exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the saved account. A missing file or record is
// ErrMissingAccountData.
func (s *Store) Load() (AccountInfo, error) {
	if !s.exists() {
		return AccountInfo{}, missingAccountData("auth_token")
	}
	db, err := s.open(true)
	if err != nil {
		return AccountInfo{}, err
	}
	defer db.Close()

	var raw []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(accountBucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(accountKey)); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "read account store")
	}
	if raw == nil {
		return AccountInfo{}, missingAccountData("auth_token")
	}

	var info AccountInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return AccountInfo{}, errors.Wrap(err, "decode account store")
	}
	if info.AuthToken == "" {
		return AccountInfo{}, missingAccountData("auth_token")
	}
	if info.APIURL == "" {
		return AccountInfo{}, missingAccountData("api_url")
	}
	return info, nil
}

// Save replaces the account record and drops the bucket cache, which belongs
// to the previous authorization.
func (s *Store) Save(info AccountInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return errors.Wrap(err, "encode account info")
	}
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if err := deleteBucketIfExists(tx, bucketIDsBucket); err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists([]byte(accountBucket))
		if err != nil {
			return errors.Wrap(err, "create account bucket")
		}
		return b.Put([]byte(accountKey), raw)
	})
}

// Clear forgets the authorization and the bucket cache.
func (s *Store) Clear() error {
	if !s.exists() {
		return nil
	}
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if err := deleteBucketIfExists(tx, accountBucket); err != nil {
			return err
		}
		return deleteBucketIfExists(tx, bucketIDsBucket)
	})
}

// BucketID returns the cached id of the named bucket.
func (s *Store) BucketID(name string) (string, bool, error) {
	if !s.exists() {
		return "", false, nil
	}
	db, err := s.open(true)
	if err != nil {
		return "", false, err
	}
	defer db.Close()

	var id string
	err = db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(bucketIDsBucket)); b != nil {
			id = string(b.Get([]byte(name)))
		}
		return nil
	})
	return id, id != "", err
}

// SaveBucket caches a bucket name to id mapping.
func (s *Store) SaveBucket(name, id string) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(bucketIDsBucket))
		if err != nil {
			return errors.Wrap(err, "create bucket cache")
		}
		return b.Put([]byte(name), []byte(id))
	})
}

// RemoveBucket drops a cached mapping.
func (s *Store) RemoveBucket(name string) error {
	if !s.exists() {
		return nil
	}
	db, err := s.open(false)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(bucketIDsBucket)); b != nil {
			return b.Delete([]byte(name))
		}
		return nil
	})
}

func deleteBucketIfExists(tx *bolt.Tx, name string) error {
	err := tx.DeleteBucket([]byte(name))
	if err != nil && err != bolt.ErrBucketNotFound {
		return errors.Wrapf(err, "delete %s", name)
	}
	return nil
}

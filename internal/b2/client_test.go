package b2

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const testToken = "auth-token-1"

// fakeB2 serves the handful of operations the tests exercise.
type fakeB2 struct {
	t             *testing.T
	server        *httptest.Server
	listBuckets   int32
	content       []byte
	announcedSha1 string
	uploadHeaders http.Header
}

func newFakeB2(t *testing.T) *fakeB2 {
	f := &fakeB2{t: t, content: []byte("hello b2")}
	mux := http.NewServeMux()
	mux.HandleFunc("/b2api/v2/b2_authorize_account", func(w http.ResponseWriter, r *http.Request) {
		id, key, ok := r.BasicAuth()
		if !ok || id != "key-id" || key != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]interface{}{"status": 401, "code": "unauthorized", "message": "bad key"})
			return
		}
		writeJSON(w, map[string]interface{}{
			"accountId":               "acct",
			"authorizationToken":      testToken,
			"apiUrl":                  f.server.URL,
			"downloadUrl":             f.server.URL,
			"recommendedPartSize":     100000000,
			"absoluteMinimumPartSize": 5000000,
			"allowed":                 map[string]interface{}{"capabilities": []string{"listBuckets", "writeFiles"}},
		})
	})
	mux.HandleFunc("/b2api/v2/b2_list_buckets", f.authorized(func(w http.ResponseWriter, body map[string]interface{}) {
		atomic.AddInt32(&f.listBuckets, 1)
		buckets := []map[string]interface{}{}
		if name, _ := body["bucketName"].(string); name == "" || name == "photos" {
			buckets = append(buckets, map[string]interface{}{"bucketId": "b-1", "bucketName": "photos", "bucketType": "allPrivate", "revision": 3})
		}
		writeJSON(w, map[string]interface{}{"buckets": buckets})
	}))
	mux.HandleFunc("/b2api/v2/b2_list_keys", f.authorized(func(w http.ResponseWriter, body map[string]interface{}) {
		if body["startApplicationKeyId"] == nil {
			writeJSON(w, map[string]interface{}{
				"keys":                 []map[string]interface{}{{"applicationKeyId": "k1", "keyName": "one"}},
				"nextApplicationKeyId": "k2",
			})
			return
		}
		writeJSON(w, map[string]interface{}{
			"keys":                 []map[string]interface{}{{"applicationKeyId": "k2", "keyName": "two"}},
			"nextApplicationKeyId": nil,
		})
	}))
	mux.HandleFunc("/b2api/v2/b2_delete_bucket", f.authorized(func(w http.ResponseWriter, body map[string]interface{}) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]interface{}{"status": 400, "code": "bad_request", "message": "Bucket is not empty"})
	}))
	mux.HandleFunc("/b2api/v2/b2_list_file_versions", f.authorized(func(w http.ResponseWriter, body map[string]interface{}) {
		writeJSON(w, map[string]interface{}{
			"files": []map[string]interface{}{{
				"fileId": "f1", "fileName": "a.txt", "action": "upload", "contentLength": 12345678901,
				"uploadTimestamp": 1500000000000, "fileInfo": map[string]string{"src_last_modified_millis": "1400000000000"},
			}},
			"nextFileName": "b.txt",
			"nextFileId":   "f2",
		})
	}))
	mux.HandleFunc("/b2api/v2/b2_get_upload_url", f.authorized(func(w http.ResponseWriter, body map[string]interface{}) {
		writeJSON(w, map[string]interface{}{"uploadUrl": f.server.URL + "/upload", "authorizationToken": "upload-token"})
	}))
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		f.uploadHeaders = r.Header.Clone()
		data, _ := io.ReadAll(r.Body)
		sum := sha1.Sum(data)
		if r.Header.Get("X-Bz-Content-Sha1") != hex.EncodeToString(sum[:]) {
			w.WriteHeader(http.StatusBadRequest)
			writeJSON(w, map[string]interface{}{"status": 400, "code": "bad_request", "message": "sha1 mismatch"})
			return
		}
		writeJSON(w, map[string]interface{}{"fileId": "up-1", "fileName": "dir/my file.txt", "action": "upload", "contentLength": len(data)})
	})
	mux.HandleFunc("/file/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/file/photos/dir/my file.txt" {
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, map[string]interface{}{"status": 404, "code": "not_found", "message": r.URL.Path})
			return
		}
		sum := sha1.Sum(f.content)
		announced := hex.EncodeToString(sum[:])
		if f.announcedSha1 != "" {
			announced = f.announcedSha1
		}
		w.Header().Set("X-Bz-File-Name", "dir/my%20file.txt")
		w.Header().Set("X-Bz-File-Id", "f9")
		w.Header().Set("X-Bz-Content-Sha1", announced)
		w.Header().Set("X-Bz-Info-Color", "blue")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write(f.content)
	})
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeB2) authorized(handle func(http.ResponseWriter, map[string]interface{})) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != testToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, map[string]interface{}{"status": 401, "code": "bad_auth_token", "message": "token"})
			return
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			f.t.Errorf("decode request body: %v", err)
		}
		handle(w, body)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeB2) {
	fake := newFakeB2(t)
	store := NewStore(filepath.Join(t.TempDir(), "account.db"))
	client := NewClient(store, WithRealms(map[string]string{"production": fake.server.URL}))
	_, err := client.AuthorizeAccount(context.Background(), "production", "key-id", "secret")
	require.NoError(t, err)
	return client, fake
}

func TestAuthorizeAccountPersists(t *testing.T) {
	client, fake := newTestClient(t)

	info, err := client.AccountInfo()
	require.NoError(t, err)
	require.Equal(t, "acct", info.AccountID)
	require.Equal(t, testToken, info.AuthToken)
	require.Equal(t, fake.server.URL, info.APIURL)
	require.True(t, info.Allowed.Has("listBuckets"))
	require.False(t, info.Allowed.Has("deleteBuckets"))
}

func TestAuthorizeAccountBadKey(t *testing.T) {
	fake := newFakeB2(t)
	client := NewClient(NewStore(filepath.Join(t.TempDir(), "account.db")), WithRealms(map[string]string{"production": fake.server.URL}))

	_, err := client.AuthorizeAccount(context.Background(), "production", "key-id", "wrong")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.Status)
	require.True(t, IsDomainError(err))

	_, err = client.AccountInfo()
	require.ErrorIs(t, err, ErrMissingAccountData)
}

func TestUnknownRealm(t *testing.T) {
	client := NewClient(NewStore(filepath.Join(t.TempDir(), "account.db")))
	_, err := client.RealmURL("moon")
	require.ErrorIs(t, err, ErrInvalidArgument)

	u, err := client.RealmURL("http://localhost:1234")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:1234", u)
}

func TestBucketByNameUsesCache(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	b, err := client.BucketByName(ctx, "photos")
	require.NoError(t, err)
	require.Equal(t, "b-1", b.ID)
	require.Equal(t, "allPrivate", b.Type)

	b, err = client.BucketByName(ctx, "photos")
	require.NoError(t, err)
	require.Equal(t, "b-1", b.ID)
	require.EqualValues(t, 1, atomic.LoadInt32(&fake.listBuckets))

	_, err = client.BucketByName(ctx, "missing")
	require.ErrorIs(t, err, ErrBucketNotFound)
}

func TestListBucketsKeepsRawFields(t *testing.T) {
	client, _ := newTestClient(t)

	buckets, err := client.ListBuckets(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	require.Equal(t, json.Number("3"), buckets[0].Raw["revision"])
}

func TestListKeysPages(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	page, err := client.ListKeys(ctx, "")
	require.NoError(t, err)
	require.Len(t, page.Keys, 1)
	require.NotNil(t, page.NextApplicationKeyID)

	page, err = client.ListKeys(ctx, *page.NextApplicationKeyID)
	require.NoError(t, err)
	require.Equal(t, "two", page.Keys[0].Name)
	require.Nil(t, page.NextApplicationKeyID)
}

func TestAPIErrorDecoded(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.DeleteBucket(context.Background(), Bucket{ID: "b-1", Name: "photos"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "bad_request", apiErr.Code)
	require.Contains(t, err.Error(), "Bucket is not empty")
}

func TestListFileVersionsTypedAndRaw(t *testing.T) {
	client, _ := newTestClient(t)

	page, err := client.ListFileVersions(context.Background(), "b-1", ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Files, 1)
	require.Equal(t, int64(12345678901), page.Files[0].ContentLength)
	require.Equal(t, int64(1400000000000), page.Files[0].ModTimeMillis())
	require.Equal(t, "b.txt", *page.NextFileName)

	files := page.Raw["files"].([]interface{})
	first := files[0].(map[string]interface{})
	require.Equal(t, json.Number("12345678901"), first["contentLength"])
}

func TestUploadFileSendsChecksumAndInfo(t *testing.T) {
	client, fake := newTestClient(t)
	require.NoError(t, client.SetThreadPoolSize(2))

	local := filepath.Join(t.TempDir(), "payload.txt")
	require.NoError(t, os.WriteFile(local, []byte("upload me"), 0o644))

	version, raw, err := client.UploadFile(context.Background(), UploadRequest{
		BucketID:  "b-1",
		FileName:  "dir/my file.txt",
		LocalPath: local,
		Info:      map[string]string{"color": "blue"},
	})
	require.NoError(t, err)
	require.Equal(t, "up-1", version.ID)
	require.Equal(t, "up-1", raw["fileId"])

	require.Equal(t, "upload-token", fake.uploadHeaders.Get("Authorization"))
	require.Equal(t, "dir/my%20file.txt", fake.uploadHeaders.Get("X-Bz-File-Name"))
	require.Equal(t, "b2/x-auto", fake.uploadHeaders.Get("Content-Type"))
	require.Equal(t, "blue", fake.uploadHeaders.Get("X-Bz-Info-Color"))
	require.NotEmpty(t, fake.uploadHeaders.Get("X-Bz-Info-Src_last_modified_millis"))
}

func TestDownloadFileByNameVerifiesChecksum(t *testing.T) {
	client, fake := newTestClient(t)
	ctx := context.Background()

	var buf bytes.Buffer
	info, err := client.DownloadFileByName(ctx, "photos", "dir/my file.txt", &buf)
	require.NoError(t, err)
	require.Equal(t, "hello b2", buf.String())
	require.Equal(t, "dir/my file.txt", info.FileName)
	require.Equal(t, "f9", info.FileID)
	require.Equal(t, map[string]string{"color": "blue"}, info.Info)
	require.True(t, info.ChecksumVerified)

	sum := sha1.Sum([]byte("hello b2"))
	fake.announcedSha1 = hex.EncodeToString(sum[:])
	fake.content = []byte("tampered")
	buf.Reset()
	_, err = client.DownloadFileByName(ctx, "photos", "dir/my file.txt", &buf)
	require.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestSetThreadPoolSizeRejectsZero(t *testing.T) {
	client := NewClient(NewStore(filepath.Join(t.TempDir(), "account.db")))
	require.ErrorIs(t, client.SetThreadPoolSize(0), ErrInvalidArgument)
}

func TestMissingAccountData(t *testing.T) {
	client := NewClient(NewStore(filepath.Join(t.TempDir(), "absent.db")))
	_, err := client.ListBuckets(context.Background(), "")
	require.ErrorIs(t, err, ErrMissingAccountData)
}

func TestClearAccountDropsCache(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.BucketByName(context.Background(), "photos")
	require.NoError(t, err)

	require.NoError(t, client.ClearAccount())
	_, err = client.AccountInfo()
	require.ErrorIs(t, err, ErrMissingAccountData)
	_, ok, err := client.store.BucketID("photos")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUnreachableServiceIsConnectionError(t *testing.T) {
	client, fake := newTestClient(t)
	fake.server.Close()

	_, err := client.ListBuckets(context.Background(), "")
	require.ErrorIs(t, err, ErrConnection)
	require.True(t, IsDomainError(err))

	var buf bytes.Buffer
	_, err = client.DownloadFileByName(context.Background(), "photos", "a.txt", &buf)
	require.ErrorIs(t, err, ErrConnection)
}

func TestCanceledRequestIsNotConnectionError(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListBuckets(ctx, "")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, ErrConnection)
}

package syncer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/syncconfig"
)

// Version is one version of a file on either side of a sync.
type Version struct {
	// ID is the B2 file id; empty for local files.
	ID string
	// Path is the absolute local path or the full B2 file name.
	Path    string
	ModTime int64
	Size    int64
	// Hidden is set for B2 hide markers.
	Hidden          bool
	UploadTimestamp int64
}

// File groups the versions of one relative name, newest first. Local files
// have exactly one version.
type File struct {
	Name     string
	Versions []Version
}

// Latest returns the newest version.
func (f File) Latest() Version { return f.Versions[0] }

// Present reports whether the file currently exists, i.e. its newest version
// is not a hide marker.
func (f File) Present() bool { return len(f.Versions) > 0 && !f.Versions[0].Hidden }

// folder lists the files below one sync location, sorted by name.
type folder interface {
	files(ctx context.Context, policies syncconfig.ScanPolicies) ([]File, error)
	String() string
}

type localFolder struct {
	root   string
	logger logrus.FieldLogger
}

func (f *localFolder) String() string { return f.root }

func (f *localFolder) files(ctx context.Context, policies syncconfig.ScanPolicies) ([]File, error) {
	info, err := os.Stat(f.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, clierr.Domainf("directory %s does not exist", f.root)
		}
		return nil, errors.Wrapf(err, "stat %s", f.root)
	}
	if !info.IsDir() {
		return nil, clierr.Domainf("%s is not a directory", f.root)
	}

	var out []File
	if err := f.walk(ctx, f.root, "", policies, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *localFolder) walk(ctx context.Context, dir, rel string, policies syncconfig.ScanPolicies, out *[]File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrapf(err, "read directory %s", dir)
	}
	for _, entry := range entries {
		abs := filepath.Join(dir, entry.Name())
		name := entry.Name()
		if rel != "" {
			name = rel + "/" + entry.Name()
		}

		info, err := entry.Info()
		if err != nil {
			return errors.Wrapf(err, "stat %s", abs)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			if policies.ExcludeAllSymlinks {
				continue
			}
			if info, err = os.Stat(abs); err != nil {
				f.logger.WithField("path", abs).Warn("skipping broken symlink")
				continue
			}
		}

		switch {
		case info.IsDir():
			if policies.ShouldExcludeDir(name) {
				continue
			}
			if err := f.walk(ctx, abs, name, policies, out); err != nil {
				return err
			}
		case info.Mode().IsRegular():
			if policies.ShouldExcludeFile(name) {
				continue
			}
			*out = append(*out, File{Name: name, Versions: []Version{{
				Path:    abs,
				ModTime: info.ModTime().UnixMilli(),
				Size:    info.Size(),
			}}})
		}
	}
	return nil
}

type b2Folder struct {
	storage Storage
	bucket  b2.Bucket
	prefix  string
}

func (f *b2Folder) String() string {
	return syncconfig.Location{Bucket: f.bucket.Name, Prefix: f.prefix}.String()
}

// namePrefix is the B2 name prefix of everything in the folder.
func (f *b2Folder) namePrefix() string {
	if f.prefix == "" {
		return ""
	}
	return f.prefix + "/"
}

func (f *b2Folder) fullName(rel string) string { return f.namePrefix() + rel }

func (f *b2Folder) files(ctx context.Context, policies syncconfig.ScanPolicies) ([]File, error) {
	prefix := f.namePrefix()
	q := b2.ListQuery{Prefix: prefix}

	var out []File
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := f.storage.ListFileVersions(ctx, f.bucket.ID, q)
		if err != nil {
			return nil, err
		}
		for _, v := range page.Files {
			if v.Action != "upload" && v.Action != "hide" {
				continue
			}
			rel := strings.TrimPrefix(v.Name, prefix)
			if rel == "" || excludedB2Name(policies, rel) {
				continue
			}
			version := Version{
				ID:              v.ID,
				Path:            v.Name,
				ModTime:         v.ModTimeMillis(),
				Size:            v.ContentLength,
				Hidden:          v.Action == "hide",
				UploadTimestamp: v.UploadTimestamp,
			}
			// Versions of one name arrive together, newest first.
			if n := len(out); n > 0 && out[n-1].Name == rel {
				out[n-1].Versions = append(out[n-1].Versions, version)
			} else {
				out = append(out, File{Name: rel, Versions: []Version{version}})
			}
		}
		if page.NextFileName == nil {
			break
		}
		q.StartFileName = *page.NextFileName
		q.StartFileID = ""
		if page.NextFileID != nil {
			q.StartFileID = *page.NextFileID
		}
	}
	return out, nil
}

// excludedB2Name applies the directory and file policies to a B2 name,
// checking every parent directory.
func excludedB2Name(policies syncconfig.ScanPolicies, rel string) bool {
	for i := strings.IndexByte(rel, '/'); i >= 0; {
		if policies.ShouldExcludeDir(rel[:i]) {
			return true
		}
		next := strings.IndexByte(rel[i+1:], '/')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return policies.ShouldExcludeFile(rel)
}

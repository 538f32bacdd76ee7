package syncer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/events"
	"github.com/ldamasio/b2-go/internal/syncconfig"
)

const day = int64(24 * time.Hour / time.Millisecond)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeStorage struct {
	mu       sync.Mutex
	versions []b2.FileVersion
	pageSize int
	content  map[string]string
	calls    []string
	threads  int
}

func (f *fakeStorage) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeStorage) sortedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func (f *fakeStorage) BucketByName(ctx context.Context, name string) (b2.Bucket, error) {
	if name != "bucket" {
		return b2.Bucket{}, b2.ErrBucketNotFound
	}
	return b2.Bucket{ID: "bucket-id", Name: name}, nil
}

func (f *fakeStorage) ListFileVersions(ctx context.Context, bucketID string, q b2.ListQuery) (b2.FilePage, error) {
	var matching []b2.FileVersion
	for _, v := range f.versions {
		if strings.HasPrefix(v.Name, q.Prefix) {
			matching = append(matching, v)
		}
	}
	start := 0
	if q.StartFileID != "" {
		for i, v := range matching {
			if v.ID == q.StartFileID {
				start = i
			}
		}
	}
	size := f.pageSize
	if size == 0 {
		size = len(matching) + 1
	}
	end := start + size
	if end >= len(matching) {
		return b2.FilePage{Files: matching[start:]}, nil
	}
	next := matching[end]
	return b2.FilePage{Files: matching[start:end], NextFileName: &next.Name, NextFileID: &next.ID}, nil
}

func (f *fakeStorage) UploadFile(ctx context.Context, req b2.UploadRequest) (b2.FileVersion, map[string]interface{}, error) {
	f.record("upload " + req.FileName + " mtime=" + req.Info[b2.InfoLastModified])
	return b2.FileVersion{ID: "new"}, nil, nil
}

func (f *fakeStorage) DownloadFileByID(ctx context.Context, fileID string, w io.Writer) (b2.DownloadInfo, error) {
	f.record("download " + fileID)
	_, err := io.WriteString(w, f.content[fileID])
	return b2.DownloadInfo{}, err
}

func (f *fakeStorage) HideFile(ctx context.Context, bucketID, fileName string) (b2.FileVersion, map[string]interface{}, error) {
	f.record("hide " + fileName)
	return b2.FileVersion{}, nil, nil
}

func (f *fakeStorage) DeleteFileVersion(ctx context.Context, fileName, fileID string) (map[string]interface{}, error) {
	f.record("delete " + fileName + " " + fileID)
	return nil, nil
}

func (f *fakeStorage) SetThreadPoolSize(n int) error {
	f.threads = n
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func writeLocal(t *testing.T, root, name, content string, mtimeMillis int64) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	mtime := time.UnixMilli(mtimeMillis)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func upload(id, name string, uploaded, modified, size int64) b2.FileVersion {
	return b2.FileVersion{
		ID: id, Name: name, Action: "upload", ContentLength: size, UploadTimestamp: uploaded,
		Info: map[string]string{b2.InfoLastModified: strconv.FormatInt(modified, 10)},
	}
}

func resolve(t *testing.T, mutate func(*syncconfig.Args)) syncconfig.Config {
	t.Helper()
	args := syncconfig.Args{Threads: 4}
	mutate(&args)
	cfg, err := syncconfig.Resolve(args)
	require.NoError(t, err)
	return cfg
}

func run(t *testing.T, storage *fakeStorage, cfg syncconfig.Config, opts ...Option) ([]string, error) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	var mu sync.Mutex
	var lines []string
	opts = append([]Option{
		WithLogger(logger),
		WithClock(func() time.Time { return testNow }),
		WithReporter(func(line string) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, line)
		}),
	}, opts...)
	err := New(storage, cfg, opts...).Run(context.Background())
	sort.Strings(lines)
	return lines, err
}

func TestUploadNewAndChangedFiles(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "new.txt", "n", now-day)
	writeLocal(t, root, "same.txt", "s", now-2*day)
	writeLocal(t, root, "dir/changed.txt", "c", now-day)

	storage := &fakeStorage{versions: []b2.FileVersion{
		upload("c1", "backup/dir/changed.txt", now-3*day, now-3*day, 1),
		upload("s1", "backup/same.txt", now-2*day, now-2*day, 1),
	}}
	cfg := resolve(t, func(a *syncconfig.Args) { a.Source, a.Destination = root, "b2://bucket/backup" })

	lines, err := run(t, storage, cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"upload dir/changed.txt", "upload new.txt"}, lines)
	require.Equal(t, []string{
		"upload backup/dir/changed.txt mtime=" + strconv.FormatInt(now-day, 10),
		"upload backup/new.txt mtime=" + strconv.FormatInt(now-day, 10),
	}, storage.sortedCalls())
	require.Equal(t, 4, storage.threads)
}

func TestNewerDestinationRaisesBeforeAnyAction(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "a.txt", "a", now-5*day)
	writeLocal(t, root, "b.txt", "b", now-day)

	storage := &fakeStorage{versions: []b2.FileVersion{
		upload("a1", "a.txt", now-day, now-day, 1),
	}}
	cfg := resolve(t, func(a *syncconfig.Args) { a.Source, a.Destination = root, "b2://bucket" })

	_, err := run(t, storage, cfg)
	require.Error(t, err)
	require.True(t, clierr.Is(err, clierr.Domain))
	require.Contains(t, err.Error(), "source file is older than destination")
	require.Empty(t, storage.sortedCalls(), "b.txt must not be uploaded once planning failed")
}

func TestNewerDestinationSkipAndReplace(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "a.txt", "a", now-5*day)
	versions := []b2.FileVersion{upload("a1", "a.txt", now-day, now-day, 1)}

	lines, err := run(t, &fakeStorage{versions: versions}, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination, a.SkipNewer = root, "b2://bucket", true
	}))
	require.NoError(t, err)
	require.Empty(t, lines)

	lines, err = run(t, &fakeStorage{versions: versions}, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination, a.ReplaceNewer = root, "b2://bucket", true
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"upload a.txt"}, lines)
}

func TestCompareThresholdAndSize(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "a.txt", "12345", now-day)
	versions := []b2.FileVersion{upload("a1", "a.txt", now-2*day, now-day-500, 5)}

	lines, err := run(t, &fakeStorage{versions: versions}, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination = root, "b2://bucket"
		threshold := 1000
		a.CompareThreshold = &threshold
	}))
	require.NoError(t, err)
	require.Empty(t, lines, "difference within threshold")

	lines, err = run(t, &fakeStorage{versions: versions}, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination = root, "b2://bucket"
		mode := "size"
		a.CompareVersions = &mode
	}))
	require.NoError(t, err)
	require.Empty(t, lines, "same size")
}

func TestDeleteRemovesExtraAndOldVersions(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "keep.txt", "k", now-3*day)

	storage := &fakeStorage{pageSize: 1, versions: []b2.FileVersion{
		upload("g1", "gone.txt", now-day, now-day, 1),
		upload("k2", "keep.txt", now-3*day, now-3*day, 1),
		upload("k1", "keep.txt", now-4*day, now-4*day, 1),
	}}
	cfg := resolve(t, func(a *syncconfig.Args) { a.Source, a.Destination, a.Delete = root, "b2://bucket", true })

	lines, err := run(t, storage, cfg)
	require.NoError(t, err)
	require.Equal(t, []string{"delete gone.txt", "delete keep.txt (old version)"}, lines)
	require.Equal(t, []string{"delete gone.txt g1", "delete keep.txt k1"}, storage.sortedCalls())
}

func TestKeepDaysHidesAndExpires(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "keep.txt", "k", now-20*day)

	storage := &fakeStorage{versions: []b2.FileVersion{
		upload("g1", "gone.txt", now-day, now-day, 1),
		upload("k3", "keep.txt", now-20*day, now-20*day, 1),
		upload("k2", "keep.txt", now-25*day, now-25*day, 1),
		upload("k1", "keep.txt", now-40*day, now-40*day, 1),
	}}
	cfg := resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination = root, "b2://bucket"
		days := 21.0
		a.KeepDays = &days
	})

	lines, err := run(t, storage, cfg)
	require.NoError(t, err)
	// k2 became old 20 days ago and is kept; k1 became old 25 days ago.
	require.Equal(t, []string{"delete keep.txt (old version)", "hide gone.txt"}, lines)
	require.Equal(t, []string{"delete keep.txt k1", "hide gone.txt"}, storage.sortedCalls())
}

func TestEmptySourceIsRejected(t *testing.T) {
	root := t.TempDir()
	storage := &fakeStorage{versions: []b2.FileVersion{upload("g1", "gone.txt", 1, 1, 1)}}

	_, err := run(t, storage, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination, a.Delete = root, "b2://bucket", true
	}))
	require.True(t, clierr.Is(err, clierr.Domain))
	require.Contains(t, err.Error(), "--allowEmptySource")
	require.Empty(t, storage.sortedCalls())

	lines, err := run(t, storage, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination, a.Delete, a.AllowEmptySource = root, "b2://bucket", true, true
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"delete gone.txt"}, lines)
}

func TestDryRunReportsWithoutActing(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "a.txt", "a", testNow.UnixMilli())
	storage := &fakeStorage{}
	publisher := &recordingPublisher{}

	lines, err := run(t, storage, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination, a.DryRun = root, "b2://bucket", true
	}), WithPublisher(publisher))
	require.NoError(t, err)
	require.Equal(t, []string{"upload a.txt"}, lines)
	require.Empty(t, storage.sortedCalls())
	require.Len(t, publisher.events, 1)
	require.True(t, publisher.events[0].DryRun)
	require.Equal(t, "b2://bucket/", publisher.events[0].Destination)
}

func TestDownloadToLocal(t *testing.T) {
	root := filepath.Join(t.TempDir(), "restore")
	now := testNow.UnixMilli()
	storage := &fakeStorage{
		versions: []b2.FileVersion{
			upload("d1", "photos/dir/a.txt", now-day, now-2*day, 5),
			{ID: "h1", Name: "photos/hidden.txt", Action: "hide", UploadTimestamp: now},
			upload("h0", "photos/hidden.txt", now-day, now-day, 1),
		},
		content: map[string]string{"d1": "hello"},
	}

	lines, err := run(t, storage, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination = "b2://bucket/photos", root
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"dnload dir/a.txt"}, lines)

	path := filepath.Join(root, "dir", "a.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, now-2*day, info.ModTime().UnixMilli())
}

func TestScanPoliciesApplyToBothSides(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "a.txt", "a", now)
	writeLocal(t, root, "cache/x.txt", "x", now)
	writeLocal(t, root, "b.tmp", "b", now)

	storage := &fakeStorage{versions: []b2.FileVersion{
		upload("c1", "cache/old.txt", now-day, now-day, 1),
	}}
	lines, err := run(t, storage, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination, a.Delete = root, "b2://bucket", true
		a.ExcludeDirRegex = []string{"cache"}
		a.ExcludeRegex = []string{`.*\.tmp`}
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"upload a.txt"}, lines)
}

func TestExcludeAllSymlinks(t *testing.T) {
	root := t.TempDir()
	now := testNow.UnixMilli()
	writeLocal(t, root, "real.txt", "r", now)
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	lines, err := run(t, &fakeStorage{}, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination = root, "b2://bucket"
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"upload link.txt", "upload real.txt"}, lines)

	lines, err = run(t, &fakeStorage{}, resolve(t, func(a *syncconfig.Args) {
		a.Source, a.Destination, a.ExcludeAllSymlinks = root, "b2://bucket", true
	}))
	require.NoError(t, err)
	require.Equal(t, []string{"upload real.txt"}, lines)
}

func TestCancelledContextStopsExecution(t *testing.T) {
	root := t.TempDir()
	writeLocal(t, root, "a.txt", "a", testNow.UnixMilli())
	storage := &fakeStorage{}
	cfg := resolve(t, func(a *syncconfig.Args) { a.Source, a.Destination = root, "b2://bucket" })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	logger, _ := test.NewNullLogger()
	err := New(storage, cfg, WithLogger(logger)).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, storage.sortedCalls())
}

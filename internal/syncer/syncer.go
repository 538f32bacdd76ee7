/*
Package syncer mirrors a local directory to a B2 prefix or back.

A run lists both sides, plans every action up front, and only then executes
the plan on a bounded worker pool. A planning error therefore leaves both
sides untouched.
*/
package syncer

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/events"
	"github.com/ldamasio/b2-go/internal/syncconfig"
)

// Storage is the part of the B2 client a sync needs.
type Storage interface {
	BucketByName(ctx context.Context, name string) (b2.Bucket, error)
	ListFileVersions(ctx context.Context, bucketID string, q b2.ListQuery) (b2.FilePage, error)
	UploadFile(ctx context.Context, req b2.UploadRequest) (b2.FileVersion, map[string]interface{}, error)
	DownloadFileByID(ctx context.Context, fileID string, w io.Writer) (b2.DownloadInfo, error)
	HideFile(ctx context.Context, bucketID, fileName string) (b2.FileVersion, map[string]interface{}, error)
	DeleteFileVersion(ctx context.Context, fileName, fileID string) (map[string]interface{}, error)
	SetThreadPoolSize(n int) error
}

// Syncer runs one resolved sync.
type Syncer struct {
	storage   Storage
	cfg       syncconfig.Config
	logger    logrus.FieldLogger
	report    func(line string)
	publisher events.Publisher
	now       func() time.Time

	mu sync.Mutex
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option { return func(s *Syncer) { s.logger = l } }

// WithReporter receives one line per completed action.
func WithReporter(report func(line string)) Option { return func(s *Syncer) { s.report = report } }

// WithPublisher offers every completed action to p. Publishing failures are
// logged and do not stop the sync.
func WithPublisher(p events.Publisher) Option { return func(s *Syncer) { s.publisher = p } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Syncer) { s.now = now } }

// New returns a Syncer for cfg.
func New(storage Storage, cfg syncconfig.Config, opts ...Option) *Syncer {
	s := &Syncer{
		storage: storage,
		cfg:     cfg,
		logger:  logrus.StandardLogger(),
		report:  func(string) {},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run lists, plans and executes the sync.
func (s *Syncer) Run(ctx context.Context) error {
	source, err := s.folder(ctx, s.cfg.Source)
	if err != nil {
		return err
	}
	destination, err := s.folder(ctx, s.cfg.Destination)
	if err != nil {
		return err
	}

	sourceFiles, err := source.files(ctx, s.cfg.Policies)
	if err != nil {
		return err
	}
	if len(sourceFiles) == 0 && !s.cfg.AllowEmptySource {
		return clierr.Domainf("directory %s is empty.  Use --allowEmptySource to sync anyway.", source)
	}
	destinationFiles, err := s.destinationFiles(ctx, destination)
	if err != nil {
		return err
	}

	p := planner{
		cfg:           s.cfg,
		destinationB2: s.cfg.Destination.IsB2(),
		now:           s.now(),
		target:        targetFunc(destination),
	}
	actions, err := p.plan(sourceFiles, destinationFiles)
	if err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"source":      source.String(),
		"destination": destination.String(),
		"actions":     len(actions),
		"dryRun":      s.cfg.DryRun,
	}).Info("sync planned")

	if s.cfg.DryRun {
		for _, a := range actions {
			s.completed(ctx, a, source, destination)
		}
		return nil
	}
	return s.execute(ctx, actions, source, destination)
}

// destinationFiles tolerates a local destination that does not exist yet.
func (s *Syncer) destinationFiles(ctx context.Context, destination folder) ([]File, error) {
	if local, ok := destination.(*localFolder); ok {
		if _, err := os.Stat(local.root); os.IsNotExist(err) {
			return nil, nil
		}
	}
	return destination.files(ctx, s.cfg.Policies)
}

func (s *Syncer) folder(ctx context.Context, loc syncconfig.Location) (folder, error) {
	if !loc.IsB2() {
		return &localFolder{root: loc.LocalPath, logger: s.logger}, nil
	}
	bucket, err := s.storage.BucketByName(ctx, loc.Bucket)
	if err != nil {
		return nil, err
	}
	return &b2Folder{storage: s.storage, bucket: bucket, prefix: loc.Prefix}, nil
}

func targetFunc(destination folder) func(string) string {
	switch d := destination.(type) {
	case *b2Folder:
		return d.fullName
	case *localFolder:
		return func(name string) string { return filepath.Join(d.root, filepath.FromSlash(name)) }
	}
	return func(name string) string { return name }
}

func (s *Syncer) execute(ctx context.Context, actions []Action, source, destination folder) error {
	if err := s.storage.SetThreadPoolSize(s.cfg.Threads); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Threads)
	for _, a := range actions {
		a := a
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := s.apply(gctx, a, source, destination); err != nil {
				return errors.Wrapf(err, "%s", a)
			}
			s.completed(gctx, a, source, destination)
			return nil
		})
	}
	err := g.Wait()
	// An interrupt surfaces as cancellation regardless of which worker
	// noticed it first.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Syncer) apply(ctx context.Context, a Action, source, destination folder) error {
	switch a.Kind {
	case Upload:
		bucket := destination.(*b2Folder).bucket
		_, _, err := s.storage.UploadFile(ctx, b2.UploadRequest{
			BucketID:  bucket.ID,
			FileName:  a.Target.Path,
			LocalPath: a.Source.Path,
			Info:      map[string]string{b2.InfoLastModified: strconv.FormatInt(a.Source.ModTime, 10)},
		})
		return err
	case Download:
		return s.download(ctx, a)
	case Hide:
		bucket := destination.(*b2Folder).bucket
		_, _, err := s.storage.HideFile(ctx, bucket.ID, a.Target.Path)
		return err
	case Delete:
		if _, ok := destination.(*b2Folder); ok {
			_, err := s.storage.DeleteFileVersion(ctx, a.Target.Path, a.Target.ID)
			return err
		}
		if err := os.Remove(a.Target.Path); err != nil {
			return errors.Wrapf(err, "remove %s", a.Target.Path)
		}
	}
	return nil
}

// download writes to a temporary file next to the target and renames it into
// place, so an interrupted download never leaves a partial file.
func (s *Syncer) download(ctx context.Context, a Action) error {
	dir := filepath.Dir(a.Target.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".b2sync-*")
	if err != nil {
		return errors.Wrap(err, "create temporary file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := s.storage.DownloadFileByID(ctx, a.Source.ID, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpName)
	}
	mtime := time.UnixMilli(a.Source.ModTime)
	if err := os.Chtimes(tmpName, mtime, mtime); err != nil {
		return errors.Wrapf(err, "set times on %s", tmpName)
	}
	if err := os.Rename(tmpName, a.Target.Path); err != nil {
		return errors.Wrapf(err, "rename into %s", a.Target.Path)
	}
	return nil
}

func (s *Syncer) completed(ctx context.Context, a Action, source, destination folder) {
	s.mu.Lock()
	s.report(a.String())
	s.mu.Unlock()

	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.Event{
		Action:      a.verb(),
		File:        a.Name,
		Source:      source.String(),
		Destination: destination.String(),
		OldVersion:  a.OldVersion,
		DryRun:      s.cfg.DryRun,
		Time:        s.now().UTC(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("file", a.Name).Warn("cannot publish sync event")
	}
}

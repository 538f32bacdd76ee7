package cmd

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/ldamasio/b2-go/internal/clierr"
	"github.com/ldamasio/b2-go/internal/events"
	"github.com/ldamasio/b2-go/internal/syncconfig"
	"github.com/ldamasio/b2-go/internal/syncer"
)

// syncFlags holds the raw sync flags; pointer-valued settings are derived
// from Changed so that an absent flag stays distinguishable from its zero.
type syncFlags struct {
	delete, skipNewer, replaceNewer bool
	dryRun, allowEmptySource        bool
	excludeAllSymlinks, noProgress  bool
	keepDays                        float64
	threads                         int
	compareVersions                 string
	compareThreshold                int
	excludeRegex                    []string
	includeRegex                    []string
	excludeDirRegex                 []string
	eventsRedis                     string
	eventsChannel                   string
}

func newSyncCmd(a *app) *cobra.Command {
	var sf syncFlags
	c := &cobra.Command{
		Use:   "[options]",
		Short: "Copy a local folder to a bucket folder, or the reverse",
		Long: `Copies multiple files from source to destination. Optionally deletes or
hides destination files that the source does not have.

One of the paths must be a local folder and the other a B2 path of the form
b2://bucketName/folder.

Files are compared by modification time unless --compareVersions says
otherwise: "none" never replaces an existing file, "size" replaces files
whose sizes differ. --compareThreshold tolerates differences up to the given
number of milliseconds or bytes.

When a destination file is newer than the source the sync stops with an
error, unless --skipNewer leaves it alone or --replaceNewer overwrites it.

--delete removes destination files that are not in the source, and with a
bucket destination every older version as well. --keepDays instead hides
them and deletes only versions that have been superseded for more than the
given number of days. The two cannot be combined.

--excludeRegex skips matching files, --includeRegex re-includes files that
an exclusion matched, and --excludeDirRegex skips whole folders. Patterns
match the path relative to the sync root.

All work is planned before anything is changed. With --dryRun the plan is
printed and nothing is changed.

With --eventsRedis every completed action is also published as JSON on a
Redis channel, which event-server relays to websocket clients.`,
	}
	f := c.Flags()
	f.BoolVar(&sf.noProgress, "noProgress", false, "Accepted for compatibility; progress is never shown")
	f.IntVar(&sf.threads, "threads", syncconfig.DefaultThreads, "Number of parallel transfers")
	f.BoolVar(&sf.delete, "delete", false, "Delete destination files missing from the source")
	f.Float64Var(&sf.keepDays, "keepDays", 0, "Hide missing files and delete versions older than this many days")
	f.BoolVar(&sf.skipNewer, "skipNewer", false, "Leave newer destination files alone")
	f.BoolVar(&sf.replaceNewer, "replaceNewer", false, "Overwrite newer destination files")
	f.StringVar(&sf.compareVersions, "compareVersions", "", "How to compare existing files: none, modTime or size")
	f.IntVar(&sf.compareThreshold, "compareThreshold", 0, "Tolerated difference in milliseconds or bytes")
	f.StringArrayVar(&sf.excludeRegex, "excludeRegex", nil, "Skip files matching the pattern; repeatable")
	f.StringArrayVar(&sf.includeRegex, "includeRegex", nil, "Keep excluded files matching the pattern; repeatable")
	f.StringArrayVar(&sf.excludeDirRegex, "excludeDirRegex", nil, "Skip folders matching the pattern; repeatable")
	f.BoolVar(&sf.excludeAllSymlinks, "excludeAllSymlinks", false, "Skip symbolic links")
	f.BoolVar(&sf.dryRun, "dryRun", false, "Print the plan without changing anything")
	f.BoolVar(&sf.allowEmptySource, "allowEmptySource", false, "Sync even when the source is empty")
	f.StringVar(&sf.eventsRedis, "eventsRedis", "", "Publish completed actions to this Redis address")
	f.StringVar(&sf.eventsChannel, "eventsChannel", events.DefaultChannel, "Redis channel for --eventsRedis")
	withPositionals(c, required("source"), required("destination"))

	c.RunE = func(c *cobra.Command, args []string) error {
		flags := c.Flags()
		cfg, err := syncconfig.Resolve(syncconfig.Args{
			Source:             args[0],
			Destination:        args[1],
			Delete:             sf.delete,
			SkipNewer:          sf.skipNewer,
			ReplaceNewer:       sf.replaceNewer,
			KeepDays:           optionalFloat(flags, "keepDays", sf.keepDays),
			CompareVersions:    optionalString(flags, "compareVersions", sf.compareVersions),
			CompareThreshold:   optionalInt(flags, "compareThreshold", sf.compareThreshold),
			ExcludeRegex:       sf.excludeRegex,
			IncludeRegex:       sf.includeRegex,
			ExcludeDirRegex:    sf.excludeDirRegex,
			ExcludeAllSymlinks: sf.excludeAllSymlinks,
			Threads:            sf.threads,
			DryRun:             sf.dryRun,
			AllowEmptySource:   sf.allowEmptySource,
		})
		if err != nil {
			return err
		}

		opts := []syncer.Option{
			syncer.WithLogger(a.logger),
			syncer.WithReporter(func(line string) { a.printer.Print(line) }),
		}
		if sf.eventsRedis != "" {
			publisher, err := a.openPublisher(c.Context(), sf.eventsRedis, sf.eventsChannel)
			if err != nil {
				return err
			}
			defer publisher.Close()
			opts = append(opts, syncer.WithPublisher(publisher))
		}
		return syncer.New(a.api, cfg, opts...).Run(c.Context())
	}
	return c
}

func (a *app) openPublisher(ctx context.Context, addr, channel string) (*events.RedisPublisher, error) {
	publisher := events.NewRedisPublisher(addr, channel)
	if err := publisher.Ping(ctx); err != nil {
		publisher.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, clierr.Wrap(clierr.Configuration, errors.Wrapf(err, "cannot reach --eventsRedis %s", addr))
	}
	a.logger.WithFields(map[string]interface{}{"redis": addr, "channel": channel}).Debug("publishing sync events")
	return publisher, nil
}

/*
Package syncconfig turns the parsed arguments of the sync command into one
internally consistent Config.

Resolve is pure: it performs no I/O, so every contradictory combination is
rejected before any listing, upload or deletion can start.
*/
package syncconfig

import (
	"github.com/ldamasio/b2-go/internal/clierr"
)

// DefaultThreads is the worker count used when --threads is not given.
const DefaultThreads = 10

// Args are the sync arguments as parsed from the command line. Pointer
// fields are nil when the flag was absent.
type Args struct {
	Source      string
	Destination string

	Delete       bool
	SkipNewer    bool
	ReplaceNewer bool
	KeepDays     *float64

	CompareVersions  *string
	CompareThreshold *int

	ExcludeRegex       []string
	IncludeRegex       []string
	ExcludeDirRegex    []string
	ExcludeAllSymlinks bool

	Threads          int
	DryRun           bool
	AllowEmptySource bool
}

// Config is a resolved sync configuration. It is returned by value and never
// modified after Resolve.
type Config struct {
	Source      Location
	Destination Location

	Threads          int
	DryRun           bool
	AllowEmptySource bool

	NewerFileMode NewerFileMode

	KeepOrDelete KeepOrDeleteMode
	// KeepDays is set only for KeepBeforeDelete.
	KeepDays float64

	CompareVersions CompareVersionMode
	// CompareThreshold is nil when comparisons must be exact.
	CompareThreshold *int

	Policies ScanPolicies
}

// Resolve validates args and builds the Config, failing on the first
// contradiction with a Configuration error.
func Resolve(args Args) (Config, error) {
	if len(args.IncludeRegex) > 0 && len(args.ExcludeRegex) == 0 {
		return Config{}, clierr.Configurationf("--includeRegex cannot be used without --excludeRegex at the same time")
	}

	newerMode, err := resolveNewerFileMode(args)
	if err != nil {
		return Config{}, err
	}

	keepOrDelete, keepDays, err := resolveKeepOrDelete(args)
	if err != nil {
		return Config{}, err
	}

	compareMode, err := resolveCompareVersions(args.CompareVersions)
	if err != nil {
		return Config{}, err
	}

	if args.Threads < 1 {
		return Config{}, clierr.Configurationf("--threads must be a positive integer, got %d", args.Threads)
	}
	var threshold *int
	if args.CompareThreshold != nil {
		if *args.CompareThreshold < 0 {
			return Config{}, clierr.Configurationf("--compareThreshold must not be negative, got %d", *args.CompareThreshold)
		}
		v := *args.CompareThreshold
		threshold = &v
	}

	policies, err := resolvePolicies(args)
	if err != nil {
		return Config{}, err
	}

	source, destination, err := resolveLocations(args.Source, args.Destination)
	if err != nil {
		return Config{}, err
	}
	if keepOrDelete == KeepBeforeDelete && !destination.IsB2() {
		return Config{}, clierr.Configurationf("--keepDays is only available when the destination is a B2 bucket")
	}

	return Config{
		Source:           source,
		Destination:      destination,
		Threads:          args.Threads,
		DryRun:           args.DryRun,
		AllowEmptySource: args.AllowEmptySource,
		NewerFileMode:    newerMode,
		KeepOrDelete:     keepOrDelete,
		KeepDays:         keepDays,
		CompareVersions:  compareMode,
		CompareThreshold: threshold,
		Policies:         policies,
	}, nil
}

func resolveNewerFileMode(args Args) (NewerFileMode, error) {
	switch {
	case args.ReplaceNewer && args.SkipNewer:
		return 0, clierr.Configurationf("--skipNewer and --replaceNewer are mutually exclusive")
	case args.ReplaceNewer:
		return NewerReplace, nil
	case args.SkipNewer:
		return NewerSkip, nil
	}
	return NewerRaiseError, nil
}

func resolveKeepOrDelete(args Args) (KeepOrDeleteMode, float64, error) {
	if args.Delete && args.KeepDays != nil {
		return 0, 0, clierr.Configurationf("--delete and --keepDays are mutually exclusive")
	}
	if args.Delete {
		return Delete, 0, nil
	}
	if args.KeepDays != nil {
		// Zero would mean either "keep nothing" or "not set"; neither is
		// guessed.
		if *args.KeepDays <= 0 {
			return 0, 0, clierr.Configurationf("--keepDays must be a positive number of days, got %v", *args.KeepDays)
		}
		return KeepBeforeDelete, *args.KeepDays, nil
	}
	return NoDelete, 0, nil
}

func resolveCompareVersions(raw *string) (CompareVersionMode, error) {
	if raw == nil {
		return CompareModTime, nil
	}
	mode, ok := compareVersionTokens[*raw]
	if !ok {
		return 0, clierr.Configurationf("invalid option for --compareVersions: %q, valid values are %s", *raw, quoteTokens(CompareVersionTokens()))
	}
	return mode, nil
}

func resolvePolicies(args Args) (ScanPolicies, error) {
	excludeDirs, err := compilePatterns("--excludeDirRegex", args.ExcludeDirRegex)
	if err != nil {
		return ScanPolicies{}, err
	}
	excludeFiles, err := compilePatterns("--excludeRegex", args.ExcludeRegex)
	if err != nil {
		return ScanPolicies{}, err
	}
	includeFiles, err := compilePatterns("--includeRegex", args.IncludeRegex)
	if err != nil {
		return ScanPolicies{}, err
	}
	return ScanPolicies{
		ExcludeDirs:        excludeDirs,
		ExcludeFiles:       excludeFiles,
		IncludeFiles:       includeFiles,
		ExcludeAllSymlinks: args.ExcludeAllSymlinks,
	}, nil
}

func resolveLocations(rawSource, rawDestination string) (Location, Location, error) {
	source, err := ParseLocation(rawSource)
	if err != nil {
		return Location{}, Location{}, err
	}
	destination, err := ParseLocation(rawDestination)
	if err != nil {
		return Location{}, Location{}, err
	}
	if source.IsB2() == destination.IsB2() {
		return Location{}, Location{}, clierr.Configurationf("one of the paths must be a local file path and the other a B2 bucket path, got %q and %q", rawSource, rawDestination)
	}
	return source, destination, nil
}

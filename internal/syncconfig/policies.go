package syncconfig

import (
	"github.com/cockroachdb/errors"
	"github.com/dlclark/regexp2"

	"github.com/ldamasio/b2-go/internal/clierr"
)

// ScanPolicies selects which files and directories a sync considers.
//
// A pattern matches when it matches a prefix of the relative path, so ".*e"
// matches "hello"; end a pattern with "$" to match the whole path. Patterns
// use Perl-style regex syntax (lookarounds, backreferences) rather than RE2.
type ScanPolicies struct {
	ExcludeDirs        []*regexp2.Regexp
	ExcludeFiles       []*regexp2.Regexp
	IncludeFiles       []*regexp2.Regexp
	ExcludeAllSymlinks bool
}

// ShouldExcludeFile reports whether relPath is excluded: it matches an
// exclude pattern and no include pattern.
func (p ScanPolicies) ShouldExcludeFile(relPath string) bool {
	return matchesAny(p.ExcludeFiles, relPath) && !matchesAny(p.IncludeFiles, relPath)
}

// ShouldExcludeDir reports whether the directory relPath (no trailing slash)
// is excluded. Everything below an excluded directory is excluded too, even
// when it matches an include pattern.
func (p ScanPolicies) ShouldExcludeDir(relPath string) bool {
	return matchesAny(p.ExcludeDirs, relPath)
}

func matchesAny(patterns []*regexp2.Regexp, s string) bool {
	for _, re := range patterns {
		// Patterns are compiled without a match timeout, so MatchString
		// cannot fail.
		if ok, _ := re.MatchString(s); ok {
			return true
		}
	}
	return false
}

func compilePatterns(flag string, patterns []string) ([]*regexp2.Regexp, error) {
	compiled := make([]*regexp2.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp2.Compile(`\A(?:`+pattern+`)`, regexp2.None)
		if err != nil {
			return nil, clierr.Wrap(clierr.Configuration, errors.Wrapf(err, "%s %q is not a valid regular expression", flag, pattern))
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

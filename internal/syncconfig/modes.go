package syncconfig

import (
	"sort"
	"strings"
)

// NewerFileMode decides what happens when the destination holds a newer
// version of a file than the source.
type NewerFileMode int

const (
	// NewerRaiseError stops the sync, forcing an explicit operator decision.
	NewerRaiseError NewerFileMode = iota
	NewerReplace
	NewerSkip
)

func (m NewerFileMode) String() string {
	switch m {
	case NewerReplace:
		return "REPLACE"
	case NewerSkip:
		return "SKIP"
	default:
		return "RAISE_ERROR"
	}
}

// KeepOrDeleteMode decides what happens to destination files the source no
// longer has and to superseded destination versions.
type KeepOrDeleteMode int

const (
	NoDelete KeepOrDeleteMode = iota
	Delete
	KeepBeforeDelete
)

func (m KeepOrDeleteMode) String() string {
	switch m {
	case Delete:
		return "DELETE"
	case KeepBeforeDelete:
		return "KEEP_BEFORE_DELETE"
	default:
		return "NO_DELETE"
	}
}

// CompareVersionMode decides how two files of the same name are compared.
type CompareVersionMode int

const (
	CompareModTime CompareVersionMode = iota
	CompareNone
	CompareSize
)

func (m CompareVersionMode) String() string {
	switch m {
	case CompareNone:
		return "NONE"
	case CompareSize:
		return "SIZE"
	default:
		return "MODTIME"
	}
}

// compareVersionTokens is the complete set of accepted --compareVersions
// values.
var compareVersionTokens = map[string]CompareVersionMode{
	"none":    CompareNone,
	"modTime": CompareModTime,
	"size":    CompareSize,
}

// CompareVersionTokens lists the accepted --compareVersions values, sorted.
func CompareVersionTokens() []string {
	tokens := make([]string, 0, len(compareVersionTokens))
	for token := range compareVersionTokens {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func quoteTokens(tokens []string) string {
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = "'" + t + "'"
	}
	return strings.Join(quoted, ", ")
}

package syncconfig

import (
	"path/filepath"
	"strings"

	"github.com/ldamasio/b2-go/internal/clierr"
)

// Location is one side of a sync: a local directory or a bucket prefix.
type Location struct {
	LocalPath string
	Bucket    string
	// Prefix has no leading or trailing slash; empty means the bucket root.
	Prefix string
}

// IsB2 reports whether the location is a bucket prefix.
func (l Location) IsB2() bool { return l.Bucket != "" }

func (l Location) String() string {
	if !l.IsB2() {
		return l.LocalPath
	}
	if l.Prefix == "" {
		return "b2://" + l.Bucket + "/"
	}
	return "b2://" + l.Bucket + "/" + l.Prefix + "/"
}

// ParseLocation accepts "b2://bucket/prefix" and the older "b2:bucket/prefix";
// anything else is a local path.
func ParseLocation(raw string) (Location, error) {
	var rest string
	switch {
	case strings.HasPrefix(raw, "b2://"):
		rest = strings.TrimPrefix(raw, "b2://")
	case strings.HasPrefix(raw, "b2:"):
		rest = strings.TrimPrefix(raw, "b2:")
	default:
		if raw == "" {
			return Location{}, clierr.Configurationf("empty folder path")
		}
		return Location{LocalPath: filepath.Clean(raw)}, nil
	}

	bucket, prefix := rest, ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		bucket, prefix = rest[:i], rest[i+1:]
	}
	if bucket == "" {
		return Location{}, clierr.Configurationf("no bucket name in %q", raw)
	}
	return Location{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
}

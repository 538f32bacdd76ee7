package b2

import (
	"strconv"
)

// Allowed describes what the authorized application key may do.
type Allowed struct {
	Capabilities []string `json:"capabilities"`
	BucketID     *string  `json:"bucketId"`
	BucketName   *string  `json:"bucketName"`
	NamePrefix   *string  `json:"namePrefix"`
}

// Has reports whether capability is granted.
func (a Allowed) Has(capability string) bool {
	for _, c := range a.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// AccountInfo is the persisted result of authorize-account.
type AccountInfo struct {
	AccountID               string  `json:"accountId"`
	ApplicationKeyID        string  `json:"applicationKeyId"`
	ApplicationKey          string  `json:"applicationKey"`
	AuthToken               string  `json:"accountAuthToken"`
	APIURL                  string  `json:"apiUrl"`
	DownloadURL             string  `json:"downloadUrl"`
	RecommendedPartSize     int64   `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64   `json:"absoluteMinimumPartSize"`
	Realm                   string  `json:"realm"`
	Allowed                 Allowed `json:"allowed"`
}

// Bucket is a bucket as listed by the service. Raw keeps every field the
// service returned.
type Bucket struct {
	ID   string
	Name string
	Type string
	Raw  map[string]interface{}
}

// ApplicationKey is one key as returned by create/delete/list key calls.
type ApplicationKey struct {
	ID                  string   `json:"applicationKeyId"`
	Name                string   `json:"keyName"`
	Secret              string   `json:"applicationKey,omitempty"`
	AccountID           string   `json:"accountId"`
	Capabilities        []string `json:"capabilities"`
	BucketID            *string  `json:"bucketId"`
	NamePrefix          *string  `json:"namePrefix"`
	ExpirationTimestamp *int64   `json:"expirationTimestamp"`
}

// KeyPage is one page of list-keys; NextApplicationKeyID is nil on the last.
type KeyPage struct {
	Keys                 []ApplicationKey `json:"keys"`
	NextApplicationKeyID *string          `json:"nextApplicationKeyId"`
}

// FileVersion is one stored version (upload, hide, start or folder entry).
type FileVersion struct {
	ID              string            `json:"fileId"`
	Name            string            `json:"fileName"`
	Action          string            `json:"action"`
	ContentLength   int64             `json:"contentLength"`
	UploadTimestamp int64             `json:"uploadTimestamp"`
	ContentType     string            `json:"contentType"`
	ContentSha1     string            `json:"contentSha1"`
	BucketID        string            `json:"bucketId"`
	Info            map[string]string `json:"fileInfo"`
}

// ModTimeMillis is the source modification time recorded at upload, or the
// upload time when none was recorded.
func (f FileVersion) ModTimeMillis() int64 {
	if raw, ok := f.Info[InfoLastModified]; ok {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return v
		}
	}
	return f.UploadTimestamp
}

// InfoLastModified is the file info key holding the source mtime in millis.
const InfoLastModified = "src_last_modified_millis"

// ListQuery selects a page of a file listing.
type ListQuery struct {
	StartFileName string
	StartFileID   string
	Prefix        string
	Delimiter     string
	MaxCount      int
}

// FilePage is one page of a file-name or file-version listing. Raw is the
// response exactly as received.
type FilePage struct {
	Files        []FileVersion          `json:"files"`
	NextFileName *string                `json:"nextFileName"`
	NextFileID   *string                `json:"nextFileId"`
	Raw          map[string]interface{} `json:"-"`
}

// Part is one uploaded part of an unfinished large file.
type Part struct {
	FileID        string `json:"fileId"`
	PartNumber    int    `json:"partNumber"`
	ContentLength int64  `json:"contentLength"`
	ContentSha1   string `json:"contentSha1"`
}

// PartPage is one page of list-parts.
type PartPage struct {
	Parts          []Part `json:"parts"`
	NextPartNumber *int   `json:"nextPartNumber"`
}

// UnfinishedPage is one page of unfinished large files.
type UnfinishedPage struct {
	Files      []FileVersion `json:"files"`
	NextFileID *string       `json:"nextFileId"`
}

// DownloadInfo describes a downloaded file, taken from response headers.
type DownloadInfo struct {
	FileName      string
	FileID        string
	ContentLength int64
	ContentType   string
	ContentSha1   string
	Info          map[string]string
	// ChecksumVerified is false when the service announced no usable SHA1.
	ChecksumVerified bool
}

// CreateBucketRequest holds the optional settings of a new bucket. JSON
// valued fields are sent as given.
type CreateBucketRequest struct {
	Name           string
	Type           string
	BucketInfo     interface{}
	CORSRules      interface{}
	LifecycleRules interface{}
}

// UpdateBucketRequest changes a bucket; nil fields are left unchanged.
type UpdateBucketRequest struct {
	BucketID       string
	Type           string
	BucketInfo     interface{}
	CORSRules      interface{}
	LifecycleRules interface{}
}

// CreateKeyRequest describes a new application key.
type CreateKeyRequest struct {
	Name                 string
	Capabilities         []string
	ValidDurationSeconds *int
	BucketID             *string
	NamePrefix           *string
}

// CopyFileRequest describes a server side copy.
type CopyFileRequest struct {
	SourceFileID        string
	FileName            string
	DestinationBucketID string
	// Range is an inclusive byte range; nil copies the whole file.
	Range *[2]int64
	// MetadataDirective is "COPY", "REPLACE" or empty for the service default.
	MetadataDirective string
	ContentType       string
	FileInfo          map[string]string
}

// UploadRequest describes a single-part upload of a local file.
type UploadRequest struct {
	BucketID    string
	FileName    string
	LocalPath   string
	ContentType string
	// Sha1 is computed from the file when empty.
	Sha1 string
	Info map[string]string
}

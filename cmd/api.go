package cmd

import (
	"context"
	"io"

	"github.com/ldamasio/b2-go/internal/b2"
	"github.com/ldamasio/b2-go/internal/syncer"
)

// API is the storage client as the commands use it. *b2.Client implements
// it; tests substitute a fake.
type API interface {
	syncer.Storage

	AuthorizeAccount(ctx context.Context, realm, keyID, key string) (b2.AccountInfo, error)
	AccountInfo() (b2.AccountInfo, error)
	ClearAccount() error
	RealmURL(realm string) (string, error)

	ListBuckets(ctx context.Context, name string) ([]b2.Bucket, error)
	CreateBucket(ctx context.Context, req b2.CreateBucketRequest) (b2.Bucket, error)
	UpdateBucket(ctx context.Context, req b2.UpdateBucketRequest) (map[string]interface{}, error)
	DeleteBucket(ctx context.Context, bucket b2.Bucket) (map[string]interface{}, error)

	CreateKey(ctx context.Context, req b2.CreateKeyRequest) (b2.ApplicationKey, error)
	DeleteKey(ctx context.Context, keyID string) (b2.ApplicationKey, error)
	ListKeys(ctx context.Context, startID string) (b2.KeyPage, error)

	ListFileNames(ctx context.Context, bucketID string, q b2.ListQuery) (b2.FilePage, error)
	GetFileInfo(ctx context.Context, fileID string) (map[string]interface{}, error)
	CopyFile(ctx context.Context, req b2.CopyFileRequest) (map[string]interface{}, error)
	GetDownloadAuthorization(ctx context.Context, bucketID, prefix string, validSeconds int) (string, error)
	DownloadURLForFileName(bucketName, fileName string) (string, error)
	DownloadURLForFileID(fileID string) (string, error)
	DownloadFileByName(ctx context.Context, bucketName, fileName string, w io.Writer) (b2.DownloadInfo, error)

	CancelLargeFile(ctx context.Context, fileID string) (map[string]interface{}, error)
	ListParts(ctx context.Context, fileID string, startPart int) (b2.PartPage, error)
	ListUnfinishedLargeFiles(ctx context.Context, bucketID, startFileID string) (b2.UnfinishedPage, error)
}

var _ API = (*b2.Client)(nil)

// forEachPage requests pages starting at start and hands each one to visit
// until next reports that the listing is complete.
func forEachPage[P any, C any](
	ctx context.Context,
	start C,
	fetch func(context.Context, C) (P, error),
	next func(P) (C, bool),
	visit func(P) error,
) error {
	cursor := start
	for {
		page, err := fetch(ctx, cursor)
		if err != nil {
			return err
		}
		if err := visit(page); err != nil {
			return err
		}
		var more bool
		if cursor, more = next(page); !more {
			return nil
		}
	}
}

// nextString adapts an optional continuation token.
func nextString(p *string) (string, bool) {
	if p == nil || *p == "" {
		return "", false
	}
	return *p, true
}

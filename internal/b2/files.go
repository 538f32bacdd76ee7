package b2

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// maxFileCount is the page size used when a listing does not ask for one.
const maxFileCount = 1000

func (q ListQuery) body(bucketID string) map[string]interface{} {
	body := map[string]interface{}{"bucketId": bucketID}
	count := q.MaxCount
	if count <= 0 {
		count = maxFileCount
	}
	body["maxFileCount"] = count
	if q.StartFileName != "" {
		body["startFileName"] = q.StartFileName
	}
	if q.StartFileID != "" {
		body["startFileId"] = q.StartFileID
	}
	if q.Prefix != "" {
		body["prefix"] = q.Prefix
	}
	if q.Delimiter != "" {
		body["delimiter"] = q.Delimiter
	}
	return body
}

// ListFileNames returns one page of the latest versions in a bucket.
func (c *Client) ListFileNames(ctx context.Context, bucketID string, q ListQuery) (FilePage, error) {
	q.StartFileID = ""
	return c.listFiles(ctx, "b2_list_file_names", bucketID, q)
}

// ListFileVersions returns one page of all versions in a bucket, newest
// version first within a name.
func (c *Client) ListFileVersions(ctx context.Context, bucketID string, q ListQuery) (FilePage, error) {
	return c.listFiles(ctx, "b2_list_file_versions", bucketID, q)
}

func (c *Client) listFiles(ctx context.Context, op, bucketID string, q ListQuery) (FilePage, error) {
	info, err := c.store.Load()
	if err != nil {
		return FilePage{}, err
	}
	body, err := c.callRaw(ctx, info, op, q.body(bucketID))
	if err != nil {
		return FilePage{}, err
	}
	var page FilePage
	if page.Raw, err = decodeBoth(body, &page); err != nil {
		return FilePage{}, errors.Wrapf(err, "decode %s response", op)
	}
	return page, nil
}

// GetFileInfo returns the service's description of one file version.
func (c *Client) GetFileInfo(ctx context.Context, fileID string) (map[string]interface{}, error) {
	return c.rawCall(ctx, "b2_get_file_info", map[string]interface{}{"fileId": fileID})
}

// HideFile hides a file name, making the latest version invisible.
func (c *Client) HideFile(ctx context.Context, bucketID, fileName string) (FileVersion, map[string]interface{}, error) {
	info, err := c.store.Load()
	if err != nil {
		return FileVersion{}, nil, err
	}
	body, err := c.callRaw(ctx, info, "b2_hide_file", map[string]interface{}{
		"bucketId": bucketID,
		"fileName": fileName,
	})
	if err != nil {
		return FileVersion{}, nil, err
	}
	var version FileVersion
	raw, err := decodeBoth(body, &version)
	if err != nil {
		return FileVersion{}, nil, errors.Wrap(err, "decode b2_hide_file response")
	}
	return version, raw, nil
}

// DeleteFileVersion permanently removes one version.
func (c *Client) DeleteFileVersion(ctx context.Context, fileName, fileID string) (map[string]interface{}, error) {
	return c.rawCall(ctx, "b2_delete_file_version", map[string]interface{}{
		"fileName": fileName,
		"fileId":   fileID,
	})
}

// CopyFile copies a file version server side.
func (c *Client) CopyFile(ctx context.Context, req CopyFileRequest) (map[string]interface{}, error) {
	body := map[string]interface{}{
		"sourceFileId": req.SourceFileID,
		"fileName":     req.FileName,
	}
	if req.DestinationBucketID != "" {
		body["destinationBucketId"] = req.DestinationBucketID
	}
	if req.Range != nil {
		body["range"] = fmt.Sprintf("bytes=%d-%d", req.Range[0], req.Range[1])
	}
	if req.MetadataDirective != "" {
		body["metadataDirective"] = req.MetadataDirective
	}
	if req.MetadataDirective == "REPLACE" {
		contentType := req.ContentType
		if contentType == "" {
			contentType = "b2/x-auto"
		}
		body["contentType"] = contentType
		fileInfo := req.FileInfo
		if fileInfo == nil {
			fileInfo = map[string]string{}
		}
		body["fileInfo"] = fileInfo
	}
	return c.rawCall(ctx, "b2_copy_file", body)
}

// GetDownloadAuthorization returns a token allowing downloads of names
// starting with prefix for validSeconds.
func (c *Client) GetDownloadAuthorization(ctx context.Context, bucketID, prefix string, validSeconds int) (string, error) {
	info, err := c.store.Load()
	if err != nil {
		return "", err
	}
	var resp struct {
		AuthorizationToken string `json:"authorizationToken"`
	}
	err = c.call(ctx, info, "b2_get_download_authorization", map[string]interface{}{
		"bucketId":               bucketID,
		"fileNamePrefix":         prefix,
		"validDurationInSeconds": validSeconds,
	}, &resp)
	return resp.AuthorizationToken, err
}

// DownloadURLForFileName returns the public URL of the latest version of a
// file name.
func (c *Client) DownloadURLForFileName(bucketName, fileName string) (string, error) {
	info, err := c.store.Load()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(info.DownloadURL, "/") + "/file/" + bucketName + "/" + EncodeFileName(fileName), nil
}

// DownloadURLForFileID returns the URL of one file version.
func (c *Client) DownloadURLForFileID(fileID string) (string, error) {
	info, err := c.store.Load()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(info.DownloadURL, "/") + apiPrefix + "b2_download_file_by_id?fileId=" + url.QueryEscape(fileID), nil
}

func (c *Client) rawCall(ctx context.Context, op string, body map[string]interface{}) (map[string]interface{}, error) {
	info, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := c.call(ctx, info, op, body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// EncodeFileName percent-encodes a file name for URLs and headers, keeping
// "/" as is.
func EncodeFileName(name string) string {
	return strings.ReplaceAll(url.PathEscape(name), "%2F", "/")
}

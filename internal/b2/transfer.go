package b2

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	autoContentType  = "b2/x-auto"
	infoHeaderPrefix = "X-Bz-Info-"
)

type uploadURLResponse struct {
	UploadURL          string `json:"uploadUrl"`
	AuthorizationToken string `json:"authorizationToken"`
}

// UploadFile uploads a local file as a single part. The source modification
// time is recorded in the file info unless the caller set it.
func (c *Client) UploadFile(ctx context.Context, req UploadRequest) (FileVersion, map[string]interface{}, error) {
	release, err := c.acquireSlot(ctx)
	if err != nil {
		return FileVersion{}, nil, err
	}
	defer release()

	f, err := os.Open(req.LocalPath)
	if err != nil {
		return FileVersion{}, nil, errors.Wrapf(err, "open %s", req.LocalPath)
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return FileVersion{}, nil, errors.Wrapf(err, "stat %s", req.LocalPath)
	}

	sha := req.Sha1
	if sha == "" {
		h := sha1.New()
		if _, err := io.Copy(h, f); err != nil {
			return FileVersion{}, nil, errors.Wrapf(err, "hash %s", req.LocalPath)
		}
		sha = hex.EncodeToString(h.Sum(nil))
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return FileVersion{}, nil, errors.Wrapf(err, "rewind %s", req.LocalPath)
		}
	}

	info, err := c.store.Load()
	if err != nil {
		return FileVersion{}, nil, err
	}
	var target uploadURLResponse
	if err := c.call(ctx, info, "b2_get_upload_url", map[string]interface{}{"bucketId": req.BucketID}, &target); err != nil {
		return FileVersion{}, nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.UploadURL, f)
	if err != nil {
		return FileVersion{}, nil, errors.Wrap(err, "build upload request")
	}
	httpReq.ContentLength = stat.Size()
	contentType := req.ContentType
	if contentType == "" {
		contentType = autoContentType
	}
	httpReq.Header.Set("Authorization", target.AuthorizationToken)
	httpReq.Header.Set("X-Bz-File-Name", EncodeFileName(req.FileName))
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("X-Bz-Content-Sha1", sha)
	fileInfo := make(map[string]string, len(req.Info)+1)
	for k, v := range req.Info {
		fileInfo[k] = v
	}
	if _, ok := fileInfo[InfoLastModified]; !ok {
		fileInfo[InfoLastModified] = strconv.FormatInt(stat.ModTime().UnixMilli(), 10)
	}
	for k, v := range fileInfo {
		httpReq.Header.Set(infoHeaderPrefix+k, EncodeFileName(v))
	}

	body, err := c.send(httpReq)
	if err != nil {
		return FileVersion{}, nil, err
	}
	var version FileVersion
	raw, err := decodeBoth(body, &version)
	if err != nil {
		return FileVersion{}, nil, errors.Wrap(err, "decode upload response")
	}
	return version, raw, nil
}

// DownloadFileByID streams one file version into w, verifying its SHA1.
func (c *Client) DownloadFileByID(ctx context.Context, fileID string, w io.Writer) (DownloadInfo, error) {
	u, err := c.DownloadURLForFileID(fileID)
	if err != nil {
		return DownloadInfo{}, err
	}
	return c.download(ctx, u, w)
}

// DownloadFileByName streams the latest version of a file name into w,
// verifying its SHA1.
func (c *Client) DownloadFileByName(ctx context.Context, bucketName, fileName string, w io.Writer) (DownloadInfo, error) {
	u, err := c.DownloadURLForFileName(bucketName, fileName)
	if err != nil {
		return DownloadInfo{}, err
	}
	return c.download(ctx, u, w)
}

func (c *Client) download(ctx context.Context, u string, w io.Writer) (DownloadInfo, error) {
	release, err := c.acquireSlot(ctx)
	if err != nil {
		return DownloadInfo{}, err
	}
	defer release()

	info, err := c.store.Load()
	if err != nil {
		return DownloadInfo{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return DownloadInfo{}, errors.Wrap(err, "build download request")
	}
	req.Header.Set("Authorization", info.AuthToken)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return DownloadInfo{}, ctxErr
		}
		return DownloadInfo{}, connectionError(err, "download")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		return DownloadInfo{}, decodeAPIError(resp.StatusCode, body)
	}

	result := downloadInfoFromHeader(resp.Header)
	result.ContentLength = resp.ContentLength

	h := sha1.New()
	if _, err := io.Copy(io.MultiWriter(w, h), resp.Body); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return DownloadInfo{}, ctxErr
		}
		return DownloadInfo{}, errors.Wrap(err, "read download")
	}
	if result.ChecksumVerified {
		if got := hex.EncodeToString(h.Sum(nil)); got != result.ContentSha1 {
			return DownloadInfo{}, errors.Wrapf(ErrChecksumMismatch, "expected %s, got %s", result.ContentSha1, got)
		}
	}
	return result, nil
}

func downloadInfoFromHeader(header http.Header) DownloadInfo {
	name := header.Get("X-Bz-File-Name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	sha := strings.TrimPrefix(header.Get("X-Bz-Content-Sha1"), "unverified:")
	if sha == "" {
		sha = "none"
	}

	fileInfo := map[string]string{}
	for k := range header {
		if !strings.HasPrefix(k, infoHeaderPrefix) {
			continue
		}
		v := header.Get(k)
		if decoded, err := url.PathUnescape(v); err == nil {
			v = decoded
		}
		fileInfo[strings.ToLower(strings.TrimPrefix(k, infoHeaderPrefix))] = v
	}

	return DownloadInfo{
		FileName:         name,
		FileID:           header.Get("X-Bz-File-Id"),
		ContentType:      header.Get("Content-Type"),
		ContentSha1:      sha,
		Info:             fileInfo,
		ChecksumVerified: sha != "none",
	}
}

package b2

import (
	"context"

	"github.com/cockroachdb/errors"
)

type listBucketsResponse struct {
	Buckets []map[string]interface{} `json:"buckets"`
}

func bucketFromRaw(raw map[string]interface{}) Bucket {
	return Bucket{
		ID:   stringField(raw, "bucketId"),
		Name: stringField(raw, "bucketName"),
		Type: stringField(raw, "bucketType"),
		Raw:  raw,
	}
}

func stringField(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return s
}

// ListBuckets lists the account's buckets, or only the named one when name
// is not empty. Keys restricted to a bucket list only that bucket.
func (c *Client) ListBuckets(ctx context.Context, name string) ([]Bucket, error) {
	info, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{"accountId": info.AccountID}
	switch {
	case name != "":
		body["bucketName"] = name
	case info.Allowed.BucketID != nil:
		body["bucketId"] = *info.Allowed.BucketID
	}

	var resp listBucketsResponse
	if err := c.call(ctx, info, "b2_list_buckets", body, &resp); err != nil {
		return nil, err
	}
	buckets := make([]Bucket, 0, len(resp.Buckets))
	for _, raw := range resp.Buckets {
		buckets = append(buckets, bucketFromRaw(raw))
	}
	return buckets, nil
}

// BucketByName resolves a bucket name, consulting the id cache first. Only
// ID and Name are set on a cache hit.
func (c *Client) BucketByName(ctx context.Context, name string) (Bucket, error) {
	if id, ok, err := c.store.BucketID(name); err != nil {
		return Bucket{}, err
	} else if ok {
		return Bucket{ID: id, Name: name}, nil
	}

	buckets, err := c.ListBuckets(ctx, name)
	if err != nil {
		return Bucket{}, err
	}
	for _, b := range buckets {
		if b.Name == name {
			if err := c.store.SaveBucket(b.Name, b.ID); err != nil {
				c.logger.WithError(err).Warn("cannot cache bucket id")
			}
			return b, nil
		}
	}
	return Bucket{}, bucketNotFound(name)
}

// CreateBucket creates a bucket and caches its id.
func (c *Client) CreateBucket(ctx context.Context, req CreateBucketRequest) (Bucket, error) {
	info, err := c.store.Load()
	if err != nil {
		return Bucket{}, err
	}
	body := map[string]interface{}{
		"accountId":  info.AccountID,
		"bucketName": req.Name,
		"bucketType": req.Type,
	}
	setIfPresent(body, "bucketInfo", req.BucketInfo)
	setIfPresent(body, "corsRules", req.CORSRules)
	setIfPresent(body, "lifecycleRules", req.LifecycleRules)

	var raw map[string]interface{}
	if err := c.call(ctx, info, "b2_create_bucket", body, &raw); err != nil {
		return Bucket{}, err
	}
	b := bucketFromRaw(raw)
	if err := c.store.SaveBucket(b.Name, b.ID); err != nil {
		return Bucket{}, err
	}
	return b, nil
}

// UpdateBucket changes a bucket and returns the service's description of it.
func (c *Client) UpdateBucket(ctx context.Context, req UpdateBucketRequest) (map[string]interface{}, error) {
	info, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"accountId": info.AccountID,
		"bucketId":  req.BucketID,
	}
	if req.Type != "" {
		body["bucketType"] = req.Type
	}
	setIfPresent(body, "bucketInfo", req.BucketInfo)
	setIfPresent(body, "corsRules", req.CORSRules)
	setIfPresent(body, "lifecycleRules", req.LifecycleRules)

	var raw map[string]interface{}
	if err := c.call(ctx, info, "b2_update_bucket", body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// DeleteBucket deletes a bucket and forgets its cached id.
func (c *Client) DeleteBucket(ctx context.Context, bucket Bucket) (map[string]interface{}, error) {
	info, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"accountId": info.AccountID,
		"bucketId":  bucket.ID,
	}
	var raw map[string]interface{}
	if err := c.call(ctx, info, "b2_delete_bucket", body, &raw); err != nil {
		return nil, err
	}
	if err := c.store.RemoveBucket(bucket.Name); err != nil {
		return nil, errors.Wrap(err, "forget bucket id")
	}
	return raw, nil
}

func setIfPresent(body map[string]interface{}, key string, value interface{}) {
	if value != nil {
		body[key] = value
	}
}

package b2

import "context"

// maxKeyCount is the page size requested from list keys.
const maxKeyCount = 1000

// CreateKey creates an application key. The secret is only ever returned here.
func (c *Client) CreateKey(ctx context.Context, req CreateKeyRequest) (ApplicationKey, error) {
	info, err := c.store.Load()
	if err != nil {
		return ApplicationKey{}, err
	}
	body := map[string]interface{}{
		"accountId":    info.AccountID,
		"keyName":      req.Name,
		"capabilities": req.Capabilities,
	}
	if req.ValidDurationSeconds != nil {
		body["validDurationInSeconds"] = *req.ValidDurationSeconds
	}
	if req.BucketID != nil {
		body["bucketId"] = *req.BucketID
	}
	if req.NamePrefix != nil {
		body["namePrefix"] = *req.NamePrefix
	}

	var key ApplicationKey
	if err := c.call(ctx, info, "b2_create_key", body, &key); err != nil {
		return ApplicationKey{}, err
	}
	return key, nil
}

// DeleteKey deletes an application key and returns what it was.
func (c *Client) DeleteKey(ctx context.Context, keyID string) (ApplicationKey, error) {
	info, err := c.store.Load()
	if err != nil {
		return ApplicationKey{}, err
	}
	var key ApplicationKey
	err = c.call(ctx, info, "b2_delete_key", map[string]interface{}{"applicationKeyId": keyID}, &key)
	return key, err
}

// ListKeys returns the page of keys starting at startID ("" for the first).
func (c *Client) ListKeys(ctx context.Context, startID string) (KeyPage, error) {
	info, err := c.store.Load()
	if err != nil {
		return KeyPage{}, err
	}
	body := map[string]interface{}{
		"accountId":   info.AccountID,
		"maxKeyCount": maxKeyCount,
	}
	if startID != "" {
		body["startApplicationKeyId"] = startID
	}
	var page KeyPage
	err = c.call(ctx, info, "b2_list_keys", body, &page)
	return page, err
}

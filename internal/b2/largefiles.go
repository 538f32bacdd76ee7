package b2

import "context"

// CancelLargeFile abandons an unfinished large file and its parts.
func (c *Client) CancelLargeFile(ctx context.Context, fileID string) (map[string]interface{}, error) {
	return c.rawCall(ctx, "b2_cancel_large_file", map[string]interface{}{"fileId": fileID})
}

// ListParts returns the page of parts starting at startPart (0 for the first).
func (c *Client) ListParts(ctx context.Context, fileID string, startPart int) (PartPage, error) {
	info, err := c.store.Load()
	if err != nil {
		return PartPage{}, err
	}
	body := map[string]interface{}{
		"fileId":       fileID,
		"maxPartCount": maxFileCount,
	}
	if startPart > 0 {
		body["startPartNumber"] = startPart
	}
	var page PartPage
	err = c.call(ctx, info, "b2_list_parts", body, &page)
	return page, err
}

// ListUnfinishedLargeFiles returns the page of unfinished large files
// starting at startFileID ("" for the first).
func (c *Client) ListUnfinishedLargeFiles(ctx context.Context, bucketID, startFileID string) (UnfinishedPage, error) {
	info, err := c.store.Load()
	if err != nil {
		return UnfinishedPage{}, err
	}
	body := map[string]interface{}{
		"bucketId":     bucketID,
		"maxFileCount": maxFileCount,
	}
	if startFileID != "" {
		body["startFileId"] = startFileID
	}
	var page UnfinishedPage
	err = c.call(ctx, info, "b2_list_unfinished_large_files", body, &page)
	return page, err
}

/*
Package b2 is a client for the Backblaze B2 native API (v2).

Calls are plain JSON POSTs authorized by the token saved by
AuthorizeAccount; the token, API URLs and a bucket id cache live in a Store.
*/
package b2

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
)

const apiPrefix = "/b2api/v2/"

// DefaultRealms maps realm names to their authorization endpoints.
var DefaultRealms = map[string]string{
	"production": "https://api.backblazeb2.com",
	"staging":    "https://api.backblaze.net",
	"dev":        "http://api.backblazeb2.xyz:8180",
}

// Client talks to B2 on behalf of the account saved in its Store.
type Client struct {
	store       *Store
	http        *http.Client
	realms      map[string]string
	logger      logrus.FieldLogger
	uploadSlots chan struct{}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRealms replaces the realm table.
func WithRealms(realms map[string]string) Option {
	return func(c *Client) { c.realms = realms }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient returns a client with a transfer pool of one.
func NewClient(store *Store, opts ...Option) *Client {
	c := &Client{
		store:       store,
		http:        &http.Client{Timeout: 10 * time.Minute},
		realms:      DefaultRealms,
		logger:      logrus.StandardLogger(),
		uploadSlots: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetThreadPoolSize bounds the number of concurrent transfers. It must be
// called before any transfer starts.
func (c *Client) SetThreadPoolSize(n int) error {
	if n < 1 {
		return invalidArgument("thread pool size must be positive, got %d", n)
	}
	c.uploadSlots = make(chan struct{}, n)
	return nil
}

func (c *Client) acquireSlot(ctx context.Context) (func(), error) {
	slots := c.uploadSlots
	select {
	case slots <- struct{}{}:
		return func() { <-slots }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RealmURL resolves a realm name; anything containing "://" is taken as a URL.
func (c *Client) RealmURL(realm string) (string, error) {
	if strings.Contains(realm, "://") {
		return realm, nil
	}
	u, ok := c.realms[realm]
	if !ok {
		return "", invalidArgument("unknown realm %q", realm)
	}
	return u, nil
}

// AccountInfo returns the saved authorization.
func (c *Client) AccountInfo() (AccountInfo, error) {
	return c.store.Load()
}

// ClearAccount forgets the saved authorization.
func (c *Client) ClearAccount() error {
	return c.store.Clear()
}

type authorizeResponse struct {
	AccountID               string  `json:"accountId"`
	AuthorizationToken      string  `json:"authorizationToken"`
	APIURL                  string  `json:"apiUrl"`
	DownloadURL             string  `json:"downloadUrl"`
	RecommendedPartSize     int64   `json:"recommendedPartSize"`
	AbsoluteMinimumPartSize int64   `json:"absoluteMinimumPartSize"`
	Allowed                 Allowed `json:"allowed"`
}

// AuthorizeAccount exchanges an application key for an auth token and saves
// the result, replacing any previous authorization.
func (c *Client) AuthorizeAccount(ctx context.Context, realm, keyID, key string) (AccountInfo, error) {
	realmURL, err := c.RealmURL(realm)
	if err != nil {
		return AccountInfo{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(realmURL, "/")+apiPrefix+"b2_authorize_account", nil)
	if err != nil {
		return AccountInfo{}, errors.Wrap(err, "build authorize request")
	}
	req.SetBasicAuth(keyID, key)

	body, err := c.send(req)
	if err != nil {
		return AccountInfo{}, err
	}
	var resp authorizeResponse
	if err := decodeJSON(body, &resp); err != nil {
		return AccountInfo{}, errors.Wrap(err, "decode authorize response")
	}

	info := AccountInfo{
		AccountID:               resp.AccountID,
		ApplicationKeyID:        keyID,
		ApplicationKey:          key,
		AuthToken:               resp.AuthorizationToken,
		APIURL:                  resp.APIURL,
		DownloadURL:             resp.DownloadURL,
		RecommendedPartSize:     resp.RecommendedPartSize,
		AbsoluteMinimumPartSize: resp.AbsoluteMinimumPartSize,
		Realm:                   realm,
		Allowed:                 resp.Allowed,
	}
	if err := c.store.Save(info); err != nil {
		return AccountInfo{}, err
	}
	return info, nil
}

// call POSTs body to the named API operation and decodes the response into out.
func (c *Client) call(ctx context.Context, info AccountInfo, op string, body, out interface{}) error {
	raw, err := c.callRaw(ctx, info, op, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := decodeJSON(raw, out); err != nil {
		return errors.Wrapf(err, "decode %s response", op)
	}
	return nil
}

func (c *Client) callRaw(ctx context.Context, info AccountInfo, op string, body interface{}) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s request", op)
	}
	url := strings.TrimRight(info.APIURL, "/") + apiPrefix + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrapf(err, "build %s request", op)
	}
	req.Header.Set("Authorization", info.AuthToken)
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

// send performs req and returns the body of a successful response. Error
// responses become *APIError.
func (c *Client) send(req *http.Request) ([]byte, error) {
	c.logger.WithField("url", req.URL.Redacted()).Debugf("%s request", req.Method)
	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, connectionError(err, "%s %s", req.Method, req.URL.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "read response of %s", req.URL.Path)
	}
	c.logger.WithField("status", resp.StatusCode).Debugf("response for %s", req.URL.Path)
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = http.StatusText(status)
		apiErr.Message = strings.TrimSpace(string(body))
	}
	apiErr.Status = status
	return apiErr
}

func decodeJSON(body []byte, out interface{}) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	return decoder.Decode(out)
}

// decodeBoth fills a typed view and the raw map from one response body.
func decodeBoth(body []byte, typed interface{}) (map[string]interface{}, error) {
	if err := decodeJSON(body, typed); err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := decodeJSON(body, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

package cmd

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/ldamasio/b2-go/internal/b2"
)

const mockToken = "mock-token"

// mockB2 is an in-process B2 service with a fixed account: buckets
// "photos" (b-1) and "docs" (b-2), two pages of keys, and a few files.
type mockB2 struct {
	t        *testing.T
	server   *httptest.Server
	requests int32

	mu           sync.Mutex
	capabilities []string
	restrictedTo string
	lastBodies   map[string]map[string]interface{}
	uploaded     []byte
	uploadHeader http.Header
}

func newMockB2(t *testing.T) *mockB2 {
	m := &mockB2{
		t:            t,
		capabilities: []string{"listBuckets", "listFiles", "readFiles", "writeFiles"},
		lastBodies:   map[string]map[string]interface{}{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/b2api/v2/b2_authorize_account", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			writeMockJSON(w, map[string]interface{}{"status": 401, "code": "unauthorized", "message": "no key"})
			return
		}
		m.mu.Lock()
		allowed := map[string]interface{}{"capabilities": m.capabilities}
		if m.restrictedTo != "" {
			allowed["bucketId"] = m.restrictedTo
			allowed["bucketName"] = nil
		}
		m.mu.Unlock()
		writeMockJSON(w, map[string]interface{}{
			"accountId":          "acct",
			"authorizationToken": mockToken,
			"apiUrl":             m.server.URL,
			"downloadUrl":        m.server.URL,
			"allowed":            allowed,
		})
	})
	m.handle(mux, "b2_list_buckets", func(w http.ResponseWriter, body map[string]interface{}) {
		all := []map[string]interface{}{
			{"bucketId": "b-1", "bucketName": "photos", "bucketType": "allPrivate", "revision": 2},
			{"bucketId": "b-2", "bucketName": "docs", "bucketType": "allPublic", "revision": 5},
		}
		name, _ := body["bucketName"].(string)
		var buckets []map[string]interface{}
		for _, b := range all {
			if name == "" || b["bucketName"] == name {
				buckets = append(buckets, b)
			}
		}
		if buckets == nil {
			buckets = []map[string]interface{}{}
		}
		writeMockJSON(w, map[string]interface{}{"buckets": buckets})
	})
	m.handle(mux, "b2_delete_bucket", func(w http.ResponseWriter, body map[string]interface{}) {
		w.WriteHeader(http.StatusBadRequest)
		writeMockJSON(w, map[string]interface{}{"status": 400, "code": "bad_request", "message": "Bucket is not empty"})
	})
	m.handle(mux, "b2_list_keys", func(w http.ResponseWriter, body map[string]interface{}) {
		if body["startApplicationKeyId"] == nil {
			writeMockJSON(w, map[string]interface{}{
				"keys":                 []map[string]interface{}{{"applicationKeyId": "k1", "keyName": "one", "capabilities": []string{}}},
				"nextApplicationKeyId": "k2",
			})
			return
		}
		writeMockJSON(w, map[string]interface{}{
			"keys": []map[string]interface{}{{
				"applicationKeyId":    "k2",
				"keyName":             "two",
				"bucketId":            "b-1",
				"namePrefix":          "pre/",
				"expirationTimestamp": 1700000000000,
				"capabilities":        []string{"readFiles", "listFiles"},
			}},
			"nextApplicationKeyId": nil,
		})
	})
	m.handle(mux, "b2_get_file_info", func(w http.ResponseWriter, body map[string]interface{}) {
		switch body["fileId"] {
		case "f-garbage":
			io.WriteString(w, "<html>not json")
		case "f-uni":
			writeMockJSON(w, map[string]interface{}{"fileId": "f-uni", "fileName": "café.txt", "contentLength": 4})
		default:
			writeMockJSON(w, map[string]interface{}{"fileId": body["fileId"], "fileName": "a.txt", "contentLength": 3})
		}
	})
	m.handle(mux, "b2_delete_file_version", func(w http.ResponseWriter, body map[string]interface{}) {
		writeMockJSON(w, map[string]interface{}{"fileId": body["fileId"], "fileName": body["fileName"]})
	})
	m.handle(mux, "b2_copy_file", func(w http.ResponseWriter, body map[string]interface{}) {
		writeMockJSON(w, map[string]interface{}{"fileId": "c-1", "fileName": body["fileName"], "action": "copy"})
	})
	m.handle(mux, "b2_list_file_names", func(w http.ResponseWriter, body map[string]interface{}) {
		writeMockJSON(w, map[string]interface{}{
			"files": []map[string]interface{}{
				{"fileId": "f-1", "fileName": "a.txt", "action": "upload", "contentLength": 3, "uploadTimestamp": 1500000000000},
				{"fileId": nil, "fileName": "dir/", "action": "folder", "contentLength": 0, "uploadTimestamp": 0},
			},
			"nextFileName": nil,
		})
	})
	m.handle(mux, "b2_list_file_versions", func(w http.ResponseWriter, body map[string]interface{}) {
		if prefix, _ := body["prefix"].(string); prefix != "" {
			writeMockJSON(w, map[string]interface{}{"files": []interface{}{}, "nextFileName": nil})
			return
		}
		writeMockJSON(w, map[string]interface{}{
			"files": []map[string]interface{}{
				{"fileId": "f-2", "fileName": "a.txt", "action": "upload", "contentLength": 30, "uploadTimestamp": 1500000001000},
				{"fileId": "f-1", "fileName": "a.txt", "action": "upload", "contentLength": 12, "uploadTimestamp": 1500000000000},
				{"fileId": "f-3", "fileName": "b.txt", "action": "hide", "contentLength": 0, "uploadTimestamp": 1500000002000},
			},
			"nextFileName": nil,
		})
	})
	m.handle(mux, "b2_list_unfinished_large_files", func(w http.ResponseWriter, body map[string]interface{}) {
		if body["bucketId"] == "b-2" {
			writeMockJSON(w, map[string]interface{}{
				"files":      []map[string]interface{}{{"fileId": "L-3", "fileName": "café.iso", "action": "start", "contentType": "application/octet-stream"}},
				"nextFileId": nil,
			})
			return
		}
		writeMockJSON(w, map[string]interface{}{
			"files": []map[string]interface{}{
				{"fileId": "L-1", "fileName": "big.iso", "action": "start", "contentType": "application/octet-stream",
					"fileInfo": map[string]string{"src_last_modified_millis": "1", "author": "me"}},
				{"fileId": "L-2", "fileName": "huge.tar", "action": "start", "contentType": "application/x-tar"},
			},
			"nextFileId": nil,
		})
	})
	m.handle(mux, "b2_cancel_large_file", func(w http.ResponseWriter, body map[string]interface{}) {
		writeMockJSON(w, map[string]interface{}{"fileId": body["fileId"], "bucketId": "b-1"})
	})
	m.handle(mux, "b2_list_parts", func(w http.ResponseWriter, body map[string]interface{}) {
		if body["startPartNumber"] == nil {
			writeMockJSON(w, map[string]interface{}{
				"parts":          []map[string]interface{}{{"partNumber": 1, "contentLength": 5000000, "contentSha1": "aaa"}},
				"nextPartNumber": 2,
			})
			return
		}
		writeMockJSON(w, map[string]interface{}{
			"parts":          []map[string]interface{}{{"partNumber": 2, "contentLength": 123, "contentSha1": "bbb"}},
			"nextPartNumber": nil,
		})
	})
	m.handle(mux, "b2_get_upload_url", func(w http.ResponseWriter, body map[string]interface{}) {
		writeMockJSON(w, map[string]interface{}{"uploadUrl": m.server.URL + "/upload", "authorizationToken": "upload-token"})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requests, 1)
		data, _ := io.ReadAll(r.Body)
		m.mu.Lock()
		m.uploaded = data
		m.uploadHeader = r.Header.Clone()
		m.mu.Unlock()
		writeMockJSON(w, map[string]interface{}{
			"fileId":        "up-1",
			"fileName":      r.Header.Get("X-Bz-File-Name"),
			"action":        "upload",
			"contentLength": len(data),
		})
	})
	mux.HandleFunc("/file/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requests, 1)
		if r.URL.Path != "/file/photos/hello.txt" {
			w.WriteHeader(http.StatusNotFound)
			writeMockJSON(w, map[string]interface{}{"status": 404, "code": "not_found", "message": "File not present: " + r.URL.Path})
			return
		}
		content := []byte("hello")
		sum := sha1.Sum(content)
		w.Header().Set("X-Bz-File-Name", "hello.txt")
		w.Header().Set("X-Bz-File-Id", "f-hello")
		w.Header().Set("X-Bz-Content-Sha1", hex.EncodeToString(sum[:]))
		w.Header().Set("X-Bz-Info-Src_last_modified_millis", "1500000000000")
		w.Header().Set("X-Bz-Info-Author", "me")
		w.Header().Set("Content-Type", "text/plain")
		w.Write(content)
	})
	m.server = httptest.NewServer(mux)
	t.Cleanup(m.server.Close)
	return m
}

// handle registers an authorized JSON operation and records its body.
func (m *mockB2) handle(mux *http.ServeMux, op string, fn func(http.ResponseWriter, map[string]interface{})) {
	mux.HandleFunc("/b2api/v2/"+op, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.requests, 1)
		if r.Header.Get("Authorization") != mockToken {
			w.WriteHeader(http.StatusUnauthorized)
			writeMockJSON(w, map[string]interface{}{"status": 401, "code": "bad_auth_token", "message": "bad token"})
			return
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			m.t.Errorf("%s: decode body: %v", op, err)
		}
		m.mu.Lock()
		m.lastBodies[op] = body
		m.mu.Unlock()
		fn(w, body)
	})
}

func (m *mockB2) body(op string) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastBodies[op]
}

func (m *mockB2) requestCount() int32 { return atomic.LoadInt32(&m.requests) }

func writeMockJSON(w http.ResponseWriter, v interface{}) {
	json.NewEncoder(w).Encode(v)
}

// newUnauthorizedClient returns a client on an empty account store.
func newUnauthorizedClient(t *testing.T, m *mockB2) *b2.Client {
	store := b2.NewStore(filepath.Join(t.TempDir(), "account.db"))
	return b2.NewClient(store, b2.WithRealms(map[string]string{"production": m.server.URL}))
}

// newAuthorizedClient returns a client already authorized against m, with the
// request counter reset.
func newAuthorizedClient(t *testing.T, m *mockB2) *b2.Client {
	client := newUnauthorizedClient(t, m)
	if _, err := client.AuthorizeAccount(context.Background(), "production", "key-id", "secret"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	atomic.StoreInt32(&m.requests, 0)
	return client
}

type cliResult struct {
	code   int
	err    error
	stdout string
	stderr string
}

type cliOptions struct {
	ctx        context.Context
	env        map[string]string
	stdin      string
	hooks      []logrus.Hook
	readSecret func(string) (string, error)
}

func runCLI(t *testing.T, api API, args ...string) cliResult {
	return runCLIWith(t, api, cliOptions{}, args...)
}

func runCLIWith(t *testing.T, api API, opts cliOptions, args ...string) cliResult {
	t.Helper()
	ctx := opts.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	vars := map[string]string{"LANG": "en_US.UTF-8"}
	for k, v := range opts.env {
		vars[k] = v
	}
	var stdout, stderr bytes.Buffer
	code, err := Run(ctx, Env{
		Args:       args,
		Stdin:      strings.NewReader(opts.stdin),
		Stdout:     &stdout,
		Stderr:     &stderr,
		Getenv:     func(key string) string { return vars[key] },
		API:        api,
		Hooks:      opts.hooks,
		ReadSecret: opts.readSecret,
	})
	return cliResult{code: code, err: err, stdout: stdout.String(), stderr: stderr.String()}
}

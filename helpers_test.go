package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/box-go/internal/config"
)

// helloSHA1 is the SHA-1 of "hello".
const helloSHA1 = "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"

// fakeBox serves a small Box account:
//
//	/          (0)
//	  Docs/    (100)
//	    café.txt  (300, "hello")
//	  report.pdf (200)
type fakeBox struct {
	srv *httptest.Server
	mux *http.ServeMux // tests may register more handlers before use

	mu       sync.Mutex
	calls    []string
	bearers  []string
	asUser   []string
	uploaded map[string]string // name -> content
	nextID   int
}

func newFakeBox(t *testing.T) *fakeBox {
	t.Helper()

	fb := &fakeBox{uploaded: make(map[string]string), nextID: 1000}

	items := map[string]string{
		"0":   `{"type":"folder","id":"0","name":"All Files"}`,
		"100": `{"type":"folder","id":"100","name":"Docs","parent":{"id":"0"},"modified_at":"2024-03-01T10:00:00Z"}`,
		"200": `{"type":"file","id":"200","name":"report.pdf","size":2048,"parent":{"id":"0"},"sha1":"abc","modified_at":"2024-03-02T10:00:00Z"}`,
		"300": `{"type":"file","id":"300","name":"café.txt","size":5,"parent":{"id":"100"},"sha1":"` + helloSHA1 + `"}`,
	}

	children := map[string][]string{
		"0":   {"100", "200"},
		"100": {"300"},
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /2.0/users/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"11","name":"Ada Lovelace","login":"ada@example.com","status":"active","space_amount":1073741824,"space_used":1048576}`)
	})
	mux.HandleFunc("GET /2.0/folders/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.serveItem(w, items, "folder", r.PathValue("id"))
	})
	mux.HandleFunc("GET /2.0/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		fb.serveItem(w, items, "file", r.PathValue("id"))
	})
	mux.HandleFunc("GET /2.0/folders/{id}/items", func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		defer fb.mu.Unlock()

		ids := children[r.PathValue("id")]

		entries := make([]string, 0, len(ids))
		for _, id := range ids {
			entries = append(entries, items[id])
		}

		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"total_count":%d,"offset":0,"limit":1000,"entries":[%s]}`,
			len(entries), strings.Join(entries, ",")))
	})
	mux.HandleFunc("GET /2.0/files/{id}/content", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "300" {
			http.Error(w, "not here", http.StatusNotFound)
			return
		}

		_, _ = w.Write([]byte("hello"))
	})
	mux.HandleFunc("POST /2.0/folders", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name   string `json:"name"`
			Parent struct {
				ID string `json:"id"`
			} `json:"parent"`
		}

		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		fb.mu.Lock()
		defer fb.mu.Unlock()

		fb.nextID++
		id := fmt.Sprint(fb.nextID)
		items[id] = fmt.Sprintf(`{"type":"folder","id":%q,"name":%q,"parent":{"id":%q}}`, id, req.Name, req.Parent.ID)
		children[req.Parent.ID] = append(children[req.Parent.ID], id)

		writeJSON(w, http.StatusCreated, items[id])
	})
	mux.HandleFunc("DELETE /2.0/files/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("DELETE /2.0/folders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /api/2.0/files/content", func(w http.ResponseWriter, r *http.Request) {
		file, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		fb.mu.Lock()
		fb.uploaded[hdr.Filename] = string(data)
		fb.mu.Unlock()

		writeJSON(w, http.StatusCreated, fmt.Sprintf(
			`{"total_count":1,"entries":[{"type":"file","id":"900","name":%q,"size":%d,"parent":{"id":"0"}}]}`,
			hdr.Filename, len(data)))
	})
	mux.HandleFunc("GET /2.0/files/{id}/watermark", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "200" {
			writeJSON(w, http.StatusNotFound, `{"type":"error","status":404,"code":"not_found"}`)
			return
		}

		writeJSON(w, http.StatusOK, `{"watermark":{"created_at":"2024-01-01T00:00:00Z","modified_at":"2024-01-02T00:00:00Z"}}`)
	})
	mux.HandleFunc("GET /2.0/folders/{id}/collaborations", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"entries":[{"type":"collaboration","id":"c1","role":"editor","status":"accepted",`+
			`"item":{"type":"folder","id":"100"},"accessible_by":{"type":"user","id":"22","login":"bob@example.com"}}]}`)
	})
	mux.HandleFunc("POST /2.0/collaborations", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		fb.mu.Lock()
		fb.calls = append(fb.calls, "collab "+string(body))
		fb.mu.Unlock()

		writeJSON(w, http.StatusCreated, `{"type":"collaboration","id":"c2","role":"viewer uploader","status":"pending",`+
			`"item":{"type":"folder","id":"100"},"accessible_by":{"type":"user","login":"eve@example.com"}}`)
	})
	mux.HandleFunc("GET /2.0/collections", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"entries":[{"type":"collection","id":"77","name":"Favorites","collection_type":"favorites"}]}`)
	})
	mux.HandleFunc("PUT /2.0/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		fb.mu.Lock()
		fb.calls = append(fb.calls, "put file "+r.PathValue("id")+" "+string(body))
		fb.mu.Unlock()

		writeJSON(w, http.StatusOK, `{"type":"file","id":"`+r.PathValue("id")+`","collections":[{"id":"77"}]}`)
	})

	fb.mux = mux
	fb.srv = httptest.NewServer(fb.record(mux))
	t.Cleanup(fb.srv.Close)

	return fb
}

// record logs method, path, bearer and As-User of every request.
func (fb *fakeBox) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.calls = append(fb.calls, r.Method+" "+r.URL.Path)
		fb.bearers = append(fb.bearers, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		fb.asUser = append(fb.asUser, r.Header.Get("As-User"))
		fb.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (fb *fakeBox) serveItem(w http.ResponseWriter, items map[string]string, typ, id string) {
	fb.mu.Lock()
	raw, ok := items[id]
	fb.mu.Unlock()

	if !ok || !strings.Contains(raw, `"type":"`+typ+`"`) {
		writeJSON(w, http.StatusNotFound, `{"type":"error","status":404,"code":"not_found","message":"not found"}`)
		return
	}

	writeJSON(w, http.StatusOK, raw)
}

// called reports whether a request line was recorded.
func (fb *fakeBox) called(line string) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	for _, c := range fb.calls {
		if c == line {
			return true
		}
	}

	return false
}

func (fb *fakeBox) callsWithPrefix(prefix string) []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	var out []string

	for _, c := range fb.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}

	return out
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// clearBoxEnv blanks every BOX_GO_* variable so the host environment
// cannot leak into CLI tests.
func clearBoxEnv(t *testing.T) {
	t.Helper()

	for _, k := range []string{
		config.EnvConfig, config.EnvClientID, config.EnvClientSecret,
		config.EnvDeveloperToken, config.EnvAuthMode,
	} {
		t.Setenv(k, "")
	}
}

// developerConfig writes a config using a developer token against fb.
func developerConfig(t *testing.T, fb *fakeBox) string {
	t.Helper()

	return writeConfig(t, fmt.Sprintf(`
auth_mode = "developer"
developer_token = "dev-token"

[endpoints]
api_url = %q
upload_url = %q

[token_store]
backend = "memory"

[retry]
max_attempts = 1

[logging]
log_format = "text"
`, fb.srv.URL+"/2.0", fb.srv.URL+"/api/2.0"))
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// runCLI executes the root command with --config cfgPath and returns what
// it wrote to stdout and stderr.
func runCLI(t *testing.T, cfgPath string, args ...string) (string, string, error) {
	t.Helper()
	clearBoxEnv(t)

	var stdout, stderr bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := cmd.ExecuteContext(context.Background())

	return stdout.String(), stderr.String(), err
}

package box

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newResourceServer routes requests by "METHOD /path" to handlers.
func newResourceServer(t *testing.T, routes map[string]http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)

			return
		}

		h(w, r)
	}))
	t.Cleanup(srv.Close)

	return newTestClient(t, srv.URL, newFakeSession("tok")), srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()

	var m map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&m))

	return m
}

const sampleFile = `{"type":"file","id":"11","name":"report.pdf","size":1024,"etag":"2","sequence_id":"2",
"sha1":"abc","parent":{"type":"folder","id":"0"},"created_at":"2024-01-02T03:04:05-08:00",
"modified_at":"2024-02-03T04:05:06-08:00","collections":[{"type":"collection","id":"7"}]}`

func TestCurrentUser(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /users/me": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{
				"type": "user", "id": "5", "name": "Alice", "login": "alice@example.com",
				"status": "active", "space_amount": 1000, "space_used": 10,
				"created_at": "2020-01-01T00:00:00Z",
			})
		},
	})

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5", u.ID)
	assert.Equal(t, "alice@example.com", u.Login)
	assert.Equal(t, int64(1000), u.SpaceAmount)
	assert.Equal(t, 2020, u.CreatedAt.Year())
}

func TestGetUser_NotFound(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /users/9": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{"type": "error", "status": 404, "code": "not_found"})
		},
	})

	_, err := c.GetUser(context.Background(), "9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetFile(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /files/11": func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(sampleFile))
		},
	})

	f, err := c.GetFile(context.Background(), "11")
	require.NoError(t, err)
	assert.Equal(t, TypeFile, f.Type)
	assert.False(t, f.IsFolder())
	assert.Equal(t, "report.pdf", f.Name)
	assert.Equal(t, int64(1024), f.Size)
	assert.Equal(t, "0", f.ParentID)
	assert.Equal(t, []string{"7"}, f.Collections)
	assert.Equal(t, 2024, f.ModifiedAt.Year())
}

func TestListFolderItems_Paginates(t *testing.T) {
	const total = 3

	var offsets []string

	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /folders/0/items": func(w http.ResponseWriter, r *http.Request) {
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			offsets = append(offsets, r.URL.Query().Get("offset"))
			assert.Equal(t, "1000", r.URL.Query().Get("limit"))

			// Serve two entries per page regardless of limit.
			var entries []map[string]any
			for i := offset; i < total && i < offset+2; i++ {
				entries = append(entries, map[string]any{"type": "file", "id": strconv.Itoa(i), "name": "f" + strconv.Itoa(i)})
			}

			writeJSON(w, http.StatusOK, map[string]any{"total_count": total, "offset": offset, "entries": entries})
		},
	})

	items, err := c.ListFolderItems(context.Background(), RootFolderID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "f2", items[2].Name)
	assert.Equal(t, []string{"0", "2"}, offsets)
}

func TestListFolderItems_Empty(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /folders/5/items": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"total_count": 0, "entries": []any{}})
		},
	})

	items, err := c.ListFolderItems(context.Background(), "5")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateFolder_NormalizesName(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"POST /folders": func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			// "e" + combining acute must arrive composed.
			assert.Equal(t, "caf\u00e9", body["name"])
			assert.Equal(t, map[string]any{"id": "0"}, body["parent"])
			writeJSON(w, http.StatusCreated, map[string]any{"type": "folder", "id": "99", "name": body["name"]})
		},
	})

	f, err := c.CreateFolder(context.Background(), "0", "cafe\u0301")
	require.NoError(t, err)
	assert.True(t, f.IsFolder())
	assert.Equal(t, "99", f.ID)
}

func TestCreateFolder_Conflict(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"POST /folders": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusConflict, map[string]any{"type": "error", "code": "item_name_in_use", "message": "exists"})
		},
	})

	_, err := c.CreateFolder(context.Background(), "0", "dup")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateFolder_InvalidNameSendsNothing(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{})

	for _, name := range []string{"", ".", "..", "a/b", `a\b`, " lead", "trail ", strings.Repeat("x", 256)} {
		_, err := c.CreateFolder(context.Background(), "0", name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestUpdateAndCopy(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"PUT /folders/3": func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			assert.Equal(t, "renamed", body["name"])
			assert.Equal(t, map[string]any{"id": "8"}, body["parent"])
			assert.NotContains(t, body, "description")
			writeJSON(w, http.StatusOK, map[string]any{"type": "folder", "id": "3", "name": "renamed"})
		},
		"POST /files/11/copy": func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			assert.Equal(t, map[string]any{"id": "8"}, body["parent"])
			assert.NotContains(t, body, "name")
			writeJSON(w, http.StatusCreated, map[string]any{"type": "file", "id": "12", "name": "report.pdf"})
		},
	})

	f, err := c.UpdateFolder(context.Background(), "3", ItemUpdate{Name: "renamed", ParentID: "8"})
	require.NoError(t, err)
	assert.Equal(t, "renamed", f.Name)

	cp, err := c.CopyFile(context.Background(), "11", "8", "")
	require.NoError(t, err)
	assert.Equal(t, "12", cp.ID)
}

func TestDeleteFolderAndFile(t *testing.T) {
	var recursive string

	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"DELETE /folders/3": func(w http.ResponseWriter, r *http.Request) {
			recursive = r.URL.Query().Get("recursive")
			w.WriteHeader(http.StatusNoContent)
		},
		"DELETE /files/11": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
	})

	require.NoError(t, c.DeleteFolder(context.Background(), "3", true))
	assert.Equal(t, "true", recursive)
	require.NoError(t, c.DeleteFile(context.Background(), "11"))
}

func TestDownloadFile_FollowsRedirect(t *testing.T) {
	dl := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("file-bytes"))
	}))
	defer dl.Close()

	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /files/11/content": func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, dl.URL+"/blob", http.StatusFound)
		},
	})

	var buf bytes.Buffer
	n, err := c.DownloadFile(context.Background(), "11", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	assert.Equal(t, "file-bytes", buf.String())
}

func TestUploadFile_Multipart(t *testing.T) {
	modified := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	var calls int

	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"POST /upload/files/content": func(w http.ResponseWriter, r *http.Request) {
			calls++

			mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			require.NoError(t, err)
			assert.Equal(t, "multipart/form-data", mediaType)

			mr := multipart.NewReader(r.Body, params["boundary"])

			part, err := mr.NextPart()
			require.NoError(t, err)
			assert.Equal(t, "attributes", part.FormName())

			var attrs map[string]any
			require.NoError(t, json.NewDecoder(part).Decode(&attrs))
			assert.Equal(t, "notes.txt", attrs["name"])
			assert.Equal(t, map[string]any{"id": "0"}, attrs["parent"])
			assert.Equal(t, "2025-05-06T07:08:09Z", attrs["content_modified_at"])

			part, err = mr.NextPart()
			require.NoError(t, err)
			assert.Equal(t, "file", part.FormName())
			data, _ := io.ReadAll(part)
			assert.Equal(t, "hello", string(data))

			if calls == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}

			writeJSON(w, http.StatusCreated, map[string]any{
				"total_count": 1,
				"entries":     []any{map[string]any{"type": "file", "id": "77", "name": "notes.txt", "size": 5}},
			})
		},
	})

	f, err := c.UploadFile(context.Background(), "0", "notes.txt", strings.NewReader("hello"), UploadOptions{ContentModifiedAt: modified})
	require.NoError(t, err)
	assert.Equal(t, "77", f.ID)
	assert.Equal(t, 2, calls, "upload retried with the full body")
}

func TestWatermarks(t *testing.T) {
	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /files/11/watermark": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"watermark": map[string]any{
				"created_at": "2024-01-01T00:00:00Z", "modified_at": "2024-01-02T00:00:00Z",
			}})
		},
		"PUT /folders/3/watermark": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, map[string]any{"watermark": map[string]any{"imprint": "default"}}, decodeBody(t, r))
			writeJSON(w, http.StatusCreated, map[string]any{"watermark": map[string]any{"created_at": "2024-03-01T00:00:00Z"}})
		},
		"DELETE /files/12/watermark": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]any{"type": "error", "code": "not_found"})
		},
	})

	wm, err := c.GetWatermark(context.Background(), TypeFile, "11")
	require.NoError(t, err)
	assert.Equal(t, 2, wm.ModifiedAt.Day())

	wm, err = c.ApplyWatermark(context.Background(), TypeFolder, "3")
	require.NoError(t, err)
	assert.Equal(t, time.March, wm.CreatedAt.Month())

	assert.ErrorIs(t, c.RemoveWatermark(context.Background(), TypeFile, "12"), ErrNotFound)

	_, err = c.GetWatermark(context.Background(), TypeWebLink, "1")
	assert.Error(t, err)
}

func TestCollaborations(t *testing.T) {
	collab := map[string]any{
		"type": "collaboration", "id": "c1", "role": "editor", "status": "accepted",
		"item":          map[string]any{"type": "folder", "id": "3"},
		"accessible_by": map[string]any{"type": "user", "id": "5", "login": "bob@example.com"},
	}

	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"POST /collaborations": func(w http.ResponseWriter, r *http.Request) {
			body := decodeBody(t, r)
			assert.Equal(t, map[string]any{"type": "folder", "id": "3"}, body["item"])
			assert.Equal(t, map[string]any{"type": "user", "login": "bob@example.com"}, body["accessible_by"])
			assert.Equal(t, "editor", body["role"])
			writeJSON(w, http.StatusCreated, collab)
		},
		"GET /collaborations/c1": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, collab)
		},
		"PUT /collaborations/c1": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "viewer", decodeBody(t, r)["role"])
			updated := map[string]any{"id": "c1", "role": "viewer"}
			writeJSON(w, http.StatusOK, updated)
		},
		"DELETE /collaborations/c1": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
		"GET /collaborations": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "pending", r.URL.Query().Get("status"))
			writeJSON(w, http.StatusOK, map[string]any{"total_count": 1, "entries": []any{collab}})
		},
		"GET /folders/3/collaborations": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"total_count": 1, "entries": []any{collab}})
		},
	})

	ctx := context.Background()

	got, err := c.CreateCollaboration(ctx, TypeFolder, "3", Collaborator{Login: " bob@example.com "}, RoleEditor)
	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", got.AccessibleBy)
	assert.Equal(t, TypeFolder, got.ItemType)

	got, err = c.GetCollaboration(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, got.Role)

	got, err = c.UpdateCollaboration(ctx, "c1", RoleViewer)
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, got.Role)

	require.NoError(t, c.DeleteCollaboration(ctx, "c1"))

	pending, err := c.PendingCollaborations(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	list, err := c.FolderCollaborations(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "c1", list[0].ID)

	_, err = c.CreateCollaboration(ctx, TypeFolder, "3", Collaborator{}, RoleEditor)
	assert.ErrorIs(t, err, ErrNoCollaborator)
}

func TestMetadata(t *testing.T) {
	instance := map[string]any{"$scope": "enterprise_1", "$template": "contract", "owner": "alice"}

	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /files/11/metadata/enterprise/contract": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, instance)
		},
		"POST /files/11/metadata/enterprise/contract": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, map[string]any{"owner": "alice"}, decodeBody(t, r))
			writeJSON(w, http.StatusCreated, instance)
		},
		"PUT /folders/3/metadata/global/properties": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json-patch+json", r.Header.Get("Content-Type"))

			var ops []map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&ops))
			assert.Equal(t, []map[string]any{{"op": "replace", "path": "/owner", "value": "bob"}}, ops)
			writeJSON(w, http.StatusOK, map[string]any{"$scope": "global", "$template": "properties", "owner": "bob"})
		},
		"DELETE /files/11/metadata/enterprise/contract": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		},
		"GET /files/11/metadata": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"entries": []any{instance}})
		},
	})

	ctx := context.Background()

	md, err := c.GetMetadata(ctx, TypeFile, "11", ScopeEnterprise, "contract")
	require.NoError(t, err)
	assert.Equal(t, "contract", md.Template())
	assert.Equal(t, "enterprise_1", md.Scope())

	_, err = c.CreateMetadata(ctx, TypeFile, "11", ScopeEnterprise, "contract", map[string]any{"owner": "alice"})
	require.NoError(t, err)

	md, err = c.UpdateMetadata(ctx, TypeFolder, "3", ScopeGlobal, "properties", []PatchOp{{Op: "replace", Path: "/owner", Value: "bob"}})
	require.NoError(t, err)
	assert.Equal(t, "bob", md["owner"])

	require.NoError(t, c.DeleteMetadata(ctx, TypeFile, "11", ScopeEnterprise, "contract"))

	all, err := c.ListMetadata(ctx, TypeFile, "11")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCollections_ReadModifyWrite(t *testing.T) {
	current := []any{map[string]any{"type": "collection", "id": "7"}}
	var writes int

	c, _ := newResourceServer(t, map[string]http.HandlerFunc{
		"GET /collections": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"entries": []any{
				map[string]any{"id": "7", "name": "Favorites", "collection_type": "favorites"},
			}})
		},
		"GET /files/11": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "collections", r.URL.Query().Get("fields"))
			writeJSON(w, http.StatusOK, map[string]any{"type": "file", "id": "11", "collections": current})
		},
		"PUT /files/11": func(w http.ResponseWriter, r *http.Request) {
			writes++
			current, _ = decodeBody(t, r)["collections"].([]any)
			writeJSON(w, http.StatusOK, map[string]any{"type": "file", "id": "11", "collections": current})
		},
	})

	ctx := context.Background()

	cols, err := c.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, "favorites", cols[0].CollectionType)

	item, err := c.AddToCollection(ctx, TypeFile, "11", "8")
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "8"}, item.Collections)

	// Already present: no write.
	_, err = c.AddToCollection(ctx, TypeFile, "11", "8")
	require.NoError(t, err)
	assert.Equal(t, 1, writes)

	item, err = c.RemoveFromCollection(ctx, TypeFile, "11", "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"8"}, item.Collections)
	assert.Equal(t, 2, writes)

	_, err = c.RemoveFromCollection(ctx, TypeFile, "11", "missing")
	require.NoError(t, err)
	assert.Equal(t, 2, writes)
}

func TestNormalizeName(t *testing.T) {
	n, err := NormalizeName("A\u030angstro\u0308m")
	require.NoError(t, err)
	assert.Equal(t, "\u00c5ngstr\u00f6m", n)
}

package box

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// listItemsPageSize is the limit for ListFolderItems pages. 1000 is the
// maximum Box accepts for offset pagination.
const listItemsPageSize = 1000

// itemFields are requested on item listings so entries carry the same
// fields as GetFile/GetFolder.
const itemFields = "type,id,name,description,size,etag,sequence_id,sha1,parent,created_at,modified_at"

// ItemUpdate lists the fields UpdateFolder and UpdateFile change. Empty
// fields are left alone.
type ItemUpdate struct {
	Name        string
	Description string
	ParentID    string // move
}

type updateRequest struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parent      *ref   `json:"parent,omitempty"`
}

func (u ItemUpdate) request() (updateRequest, error) {
	req := updateRequest{Description: u.Description}

	if u.Name != "" {
		name, err := NormalizeName(u.Name)
		if err != nil {
			return req, err
		}

		req.Name = name
	}

	if u.ParentID != "" {
		req.Parent = &ref{ID: u.ParentID}
	}

	return req, nil
}

type createFolderRequest struct {
	Name   string `json:"name"`
	Parent ref    `json:"parent"`
}

type copyRequest struct {
	Name   string `json:"name,omitempty"`
	Parent ref    `json:"parent"`
}

// GetFolder retrieves a folder by ID. Use RootFolderID for the root.
func (c *Client) GetFolder(ctx context.Context, folderID string) (*Item, error) {
	c.logger.Info("getting folder", slog.String("folder_id", folderID))

	return c.fetchItem(ctx, "/folders/"+url.PathEscape(folderID))
}

// ListFolderItems returns every item in a folder, following offset
// pagination until total_count entries have been read.
func (c *Client) ListFolderItems(ctx context.Context, folderID string) ([]Item, error) {
	c.logger.Info("listing folder items", slog.String("folder_id", folderID))

	path := "/folders/" + url.PathEscape(folderID) + "/items"

	var items []Item

	for offset, page := 0, 1; ; page++ {
		q := url.Values{
			"limit":  {strconv.Itoa(listItemsPageSize)},
			"offset": {strconv.Itoa(offset)},
			"fields": {itemFields},
		}

		var p itemsPage
		if err := c.getJSON(ctx, path, q, &p); err != nil {
			return nil, err
		}

		for i := range p.Entries {
			items = append(items, p.Entries[i].toItem(c.logger))
		}

		c.logger.Debug("fetched folder items page",
			slog.Int("page", page),
			slog.Int("count", len(p.Entries)),
			slog.Int("total_count", p.TotalCount),
		)

		offset += len(p.Entries)
		if len(p.Entries) == 0 || offset >= p.TotalCount {
			break
		}
	}

	c.logger.Info("listed folder items",
		slog.String("folder_id", folderID),
		slog.Int("total_items", len(items)),
	)

	return items, nil
}

// CreateFolder creates a folder under parentID. A name collision returns
// ErrConflict.
func (c *Client) CreateFolder(ctx context.Context, parentID, name string) (*Item, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	c.logger.Info("creating folder",
		slog.String("parent_id", parentID),
		slog.String("name", n),
	)

	var ir itemResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/folders", nil,
		createFolderRequest{Name: n, Parent: ref{ID: parentID}}, &ir); err != nil {
		return nil, err
	}

	item := ir.toItem(c.logger)

	return &item, nil
}

// UpdateFolder renames, moves or re-describes a folder.
func (c *Client) UpdateFolder(ctx context.Context, folderID string, u ItemUpdate) (*Item, error) {
	return c.updateItem(ctx, TypeFolder, folderID, u)
}

// CopyFolder copies a folder (recursively) into parentID. An empty newName
// keeps the original name.
func (c *Client) CopyFolder(ctx context.Context, folderID, parentID, newName string) (*Item, error) {
	return c.copyItem(ctx, TypeFolder, folderID, parentID, newName)
}

// DeleteFolder deletes a folder. Non-empty folders need recursive.
func (c *Client) DeleteFolder(ctx context.Context, folderID string, recursive bool) error {
	c.logger.Info("deleting folder",
		slog.String("folder_id", folderID),
		slog.Bool("recursive", recursive),
	)

	q := url.Values{"recursive": {strconv.FormatBool(recursive)}}

	return c.send(ctx, &Request{Method: http.MethodDelete, Path: "/folders/" + url.PathEscape(folderID), Query: q}, nil)
}

// FolderCollaborations lists the collaborations on a folder.
func (c *Client) FolderCollaborations(ctx context.Context, folderID string) ([]Collaboration, error) {
	c.logger.Info("listing folder collaborations", slog.String("folder_id", folderID))

	return c.listCollaborations(ctx, "/folders/"+url.PathEscape(folderID)+"/collaborations", nil)
}

func (c *Client) fetchItem(ctx context.Context, path string) (*Item, error) {
	var ir itemResponse
	if err := c.getJSON(ctx, path, nil, &ir); err != nil {
		return nil, err
	}

	item := ir.toItem(c.logger)

	return &item, nil
}

func (c *Client) updateItem(ctx context.Context, t ItemType, id string, u ItemUpdate) (*Item, error) {
	coll, err := t.collection()
	if err != nil {
		return nil, err
	}

	req, err := u.request()
	if err != nil {
		return nil, err
	}

	c.logger.Info("updating item",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("name", req.Name),
		slog.String("parent_id", u.ParentID),
	)

	var ir itemResponse
	if err := c.sendJSON(ctx, http.MethodPut, "/"+coll+"/"+url.PathEscape(id), nil, req, &ir); err != nil {
		return nil, err
	}

	item := ir.toItem(c.logger)

	return &item, nil
}

func (c *Client) copyItem(ctx context.Context, t ItemType, id, parentID, newName string) (*Item, error) {
	coll, err := t.collection()
	if err != nil {
		return nil, err
	}

	req := copyRequest{Parent: ref{ID: parentID}}

	if newName != "" {
		if req.Name, err = NormalizeName(newName); err != nil {
			return nil, err
		}
	}

	c.logger.Info("copying item",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("parent_id", parentID),
	)

	var ir itemResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/"+coll+"/"+url.PathEscape(id)+"/copy", nil, req, &ir); err != nil {
		return nil, err
	}

	item := ir.toItem(c.logger)

	return &item, nil
}

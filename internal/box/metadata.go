package box

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
)

// Metadata scopes.
const (
	ScopeGlobal     = "global"
	ScopeEnterprise = "enterprise"
)

// contentTypeJSONPatch is required by the metadata update endpoint.
const contentTypeJSONPatch = "application/json-patch+json"

type metadataPage struct {
	Entries []Metadata `json:"entries"`
}

func metadataPath(t ItemType, id, scope, template string) (string, error) {
	coll, err := t.collection()
	if err != nil {
		return "", err
	}

	p := "/" + coll + "/" + url.PathEscape(id) + "/metadata"
	if scope != "" {
		p += "/" + url.PathEscape(scope) + "/" + url.PathEscape(template)
	}

	return p, nil
}

// GetMetadata returns the template instance on an item, or ErrNotFound.
func (c *Client) GetMetadata(ctx context.Context, t ItemType, id, scope, template string) (Metadata, error) {
	path, err := metadataPath(t, id, scope, template)
	if err != nil {
		return nil, err
	}

	c.logger.Info("getting metadata",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("template", scope+"."+template),
	)

	var md Metadata
	if err := c.getJSON(ctx, path, nil, &md); err != nil {
		return nil, err
	}

	return md, nil
}

// CreateMetadata attaches a template instance with the given values. An
// existing instance returns ErrConflict.
func (c *Client) CreateMetadata(ctx context.Context, t ItemType, id, scope, template string, values map[string]any) (Metadata, error) {
	path, err := metadataPath(t, id, scope, template)
	if err != nil {
		return nil, err
	}

	c.logger.Info("creating metadata",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("template", scope+"."+template),
		slog.Int("fields", len(values)),
	)

	if values == nil {
		values = map[string]any{}
	}

	var md Metadata
	if err := c.sendJSON(ctx, http.MethodPost, path, nil, values, &md); err != nil {
		return nil, err
	}

	return md, nil
}

// UpdateMetadata applies JSON Patch operations to a template instance. The
// whole patch fails if any operation fails.
func (c *Client) UpdateMetadata(ctx context.Context, t ItemType, id, scope, template string, ops []PatchOp) (Metadata, error) {
	path, err := metadataPath(t, id, scope, template)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("box: encoding metadata patch: %w", err)
	}

	c.logger.Info("updating metadata",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("template", scope+"."+template),
		slog.Int("operations", len(ops)),
	)

	var md Metadata
	if err := c.send(ctx, &Request{
		Method:      http.MethodPut,
		Path:        path,
		Body:        bytes.NewReader(data),
		ContentType: contentTypeJSONPatch,
	}, &md); err != nil {
		return nil, err
	}

	return md, nil
}

// DeleteMetadata removes a template instance from an item.
func (c *Client) DeleteMetadata(ctx context.Context, t ItemType, id, scope, template string) error {
	path, err := metadataPath(t, id, scope, template)
	if err != nil {
		return err
	}

	c.logger.Info("deleting metadata",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("template", scope+"."+template),
	)

	return c.send(ctx, &Request{Method: http.MethodDelete, Path: path}, nil)
}

// ListMetadata returns every template instance on an item.
func (c *Client) ListMetadata(ctx context.Context, t ItemType, id string) ([]Metadata, error) {
	path, err := metadataPath(t, id, "", "")
	if err != nil {
		return nil, err
	}

	c.logger.Info("listing metadata", slog.String("type", string(t)), slog.String("id", id))

	var p metadataPage
	if err := c.getJSON(ctx, path, nil, &p); err != nil {
		return nil, err
	}

	return p.Entries, nil
}

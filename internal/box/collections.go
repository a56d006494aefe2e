package box

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
)

type collectionsUpdate struct {
	Collections []ref `json:"collections"`
}

// Collections lists the current user's collections (Favorites and any
// others the account has).
func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	c.logger.Info("listing collections")

	var p collectionsPage
	if err := c.getJSON(ctx, "/collections", nil, &p); err != nil {
		return nil, err
	}

	out := make([]Collection, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, Collection{ID: e.ID, Name: e.Name, CollectionType: e.CollectionType})
	}

	return out, nil
}

// AddToCollection adds an item to a collection. Box has no dedicated
// endpoint, so the item's collections are read and written back with the
// new ID; adding an item already in the collection is a no-op.
func (c *Client) AddToCollection(ctx context.Context, t ItemType, id, collectionID string) (*Item, error) {
	return c.modifyCollections(ctx, t, id, func(ids []string) []string {
		if slices.Contains(ids, collectionID) {
			return nil
		}

		return append(ids, collectionID)
	})
}

// RemoveFromCollection removes an item from a collection. Removing an item
// not in the collection is a no-op.
func (c *Client) RemoveFromCollection(ctx context.Context, t ItemType, id, collectionID string) (*Item, error) {
	return c.modifyCollections(ctx, t, id, func(ids []string) []string {
		if !slices.Contains(ids, collectionID) {
			return nil
		}

		return slices.DeleteFunc(ids, func(s string) bool { return s == collectionID })
	})
}

// modifyCollections reads the item's collection IDs, applies edit and
// writes the result back. edit returns nil to skip the write.
func (c *Client) modifyCollections(ctx context.Context, t ItemType, id string, edit func([]string) []string) (*Item, error) {
	coll, err := t.collection()
	if err != nil {
		return nil, err
	}

	path := "/" + coll + "/" + url.PathEscape(id)

	var cur itemResponse
	if err := c.getJSON(ctx, path, url.Values{"fields": {"collections"}}, &cur); err != nil {
		return nil, err
	}

	item := cur.toItem(c.logger)

	next := edit(slices.Clone(item.Collections))
	if next == nil {
		c.logger.Debug("collections unchanged", slog.String("type", string(t)), slog.String("id", id))
		return &item, nil
	}

	req := collectionsUpdate{Collections: make([]ref, 0, len(next))}
	for _, cid := range next {
		req.Collections = append(req.Collections, ref{ID: cid})
	}

	c.logger.Info("updating item collections",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.Int("collections", len(next)),
	)

	var updated itemResponse
	if err := c.sendJSON(ctx, http.MethodPut, path, url.Values{"fields": {"collections"}}, req, &updated); err != nil {
		return nil, err
	}

	item = updated.toItem(c.logger)

	return &item, nil
}

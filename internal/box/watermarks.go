package box

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

type watermarkResponse struct {
	Watermark struct {
		CreatedAt  string `json:"created_at"`
		ModifiedAt string `json:"modified_at"`
	} `json:"watermark"`
}

type applyWatermarkRequest struct {
	Watermark struct {
		Imprint string `json:"imprint"`
	} `json:"watermark"`
}

func watermarkPath(t ItemType, id string) (string, error) {
	coll, err := t.collection()
	if err != nil {
		return "", err
	}

	return "/" + coll + "/" + url.PathEscape(id) + "/watermark", nil
}

// GetWatermark returns the watermark on a file or folder. An item without
// one returns ErrNotFound.
func (c *Client) GetWatermark(ctx context.Context, t ItemType, id string) (*Watermark, error) {
	path, err := watermarkPath(t, id)
	if err != nil {
		return nil, err
	}

	c.logger.Info("getting watermark", slog.String("type", string(t)), slog.String("id", id))

	var wr watermarkResponse
	if err := c.getJSON(ctx, path, nil, &wr); err != nil {
		return nil, err
	}

	return c.toWatermark(&wr, id), nil
}

// ApplyWatermark applies the default watermark, replacing any existing one.
func (c *Client) ApplyWatermark(ctx context.Context, t ItemType, id string) (*Watermark, error) {
	path, err := watermarkPath(t, id)
	if err != nil {
		return nil, err
	}

	c.logger.Info("applying watermark", slog.String("type", string(t)), slog.String("id", id))

	var req applyWatermarkRequest
	req.Watermark.Imprint = "default"

	var wr watermarkResponse
	if err := c.sendJSON(ctx, http.MethodPut, path, nil, req, &wr); err != nil {
		return nil, err
	}

	return c.toWatermark(&wr, id), nil
}

// RemoveWatermark removes the watermark. An item without one returns
// ErrNotFound.
func (c *Client) RemoveWatermark(ctx context.Context, t ItemType, id string) error {
	path, err := watermarkPath(t, id)
	if err != nil {
		return err
	}

	c.logger.Info("removing watermark", slog.String("type", string(t)), slog.String("id", id))

	return c.send(ctx, &Request{Method: http.MethodDelete, Path: path}, nil)
}

func (c *Client) toWatermark(wr *watermarkResponse, id string) *Watermark {
	return &Watermark{
		CreatedAt:  parseTimestamp(wr.Watermark.CreatedAt, "created_at", id, c.logger),
		ModifiedAt: parseTimestamp(wr.Watermark.ModifiedAt, "modified_at", id, c.logger),
	}
}

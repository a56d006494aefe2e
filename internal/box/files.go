package box

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// ErrEmptyUpload is returned when an upload response lists no file.
var ErrEmptyUpload = errors.New("box: upload response contains no file")

// GetFile retrieves file metadata by ID.
func (c *Client) GetFile(ctx context.Context, fileID string) (*Item, error) {
	c.logger.Info("getting file", slog.String("file_id", fileID))

	return c.fetchItem(ctx, "/files/"+url.PathEscape(fileID))
}

// UpdateFile renames, moves or re-describes a file.
func (c *Client) UpdateFile(ctx context.Context, fileID string, u ItemUpdate) (*Item, error) {
	return c.updateItem(ctx, TypeFile, fileID, u)
}

// CopyFile copies a file into parentID. An empty newName keeps the name.
func (c *Client) CopyFile(ctx context.Context, fileID, parentID, newName string) (*Item, error) {
	return c.copyItem(ctx, TypeFile, fileID, parentID, newName)
}

// DeleteFile moves a file to the trash.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	c.logger.Info("deleting file", slog.String("file_id", fileID))

	return c.send(ctx, &Request{Method: http.MethodDelete, Path: "/files/" + url.PathEscape(fileID)}, nil)
}

// DownloadFile streams a file's content to w and returns the bytes written.
// Box answers with a redirect to a pre-signed URL which the HTTP client
// follows. Only the request/response cycle is retried; a failure while
// streaming is returned as-is.
func (c *Client) DownloadFile(ctx context.Context, fileID string, w io.Writer) (int64, error) {
	c.logger.Info("downloading file", slog.String("file_id", fileID))

	resp, err := c.DoRequest(ctx, &Request{Method: http.MethodGet, Path: "/files/" + url.PathEscape(fileID) + "/content"})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("box: streaming file %s: %w", fileID, err)
	}

	c.logger.Debug("download complete",
		slog.String("file_id", fileID),
		slog.Int64("bytes_written", n),
	)

	return n, nil
}

type uploadAttributes struct {
	Name              string `json:"name"`
	Parent            ref    `json:"parent"`
	ContentModifiedAt string `json:"content_modified_at,omitempty"`
}

// UploadOptions are optional UploadFile parameters.
type UploadOptions struct {
	ContentModifiedAt time.Time
}

// UploadFile uploads content as a new file named name in parentID. The
// multipart body is built in memory so it can be replayed on retry. A name
// collision returns ErrConflict.
func (c *Client) UploadFile(ctx context.Context, parentID, name string, content io.Reader, opts UploadOptions) (*Item, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}

	attrs := uploadAttributes{Name: n, Parent: ref{ID: parentID}}
	if !opts.ContentModifiedAt.IsZero() {
		attrs.ContentModifiedAt = opts.ContentModifiedAt.UTC().Format(time.RFC3339)
	}

	body, contentType, err := multipartUpload(attrs, n, content)
	if err != nil {
		return nil, err
	}

	c.logger.Info("uploading file",
		slog.String("parent_id", parentID),
		slog.String("name", n),
		slog.Int("bytes", body.Len()),
	)

	var page itemsPage
	if err := c.send(ctx, &Request{
		Method:      http.MethodPost,
		Path:        "/files/content",
		Body:        body,
		ContentType: contentType,
		BaseURL:     c.uploadURL,
	}, &page); err != nil {
		return nil, err
	}

	if len(page.Entries) == 0 {
		return nil, ErrEmptyUpload
	}

	item := page.Entries[0].toItem(c.logger)

	return &item, nil
}

// multipartUpload encodes the attributes part ahead of the file part, the
// order Box requires.
func multipartUpload(attrs uploadAttributes, filename string, content io.Reader) (*bytes.Reader, string, error) {
	var buf bytes.Buffer

	mw := multipart.NewWriter(&buf)

	attrJSON, err := json.Marshal(attrs)
	if err != nil {
		return nil, "", fmt.Errorf("box: encoding upload attributes: %w", err)
	}

	if err := mw.WriteField("attributes", string(attrJSON)); err != nil {
		return nil, "", fmt.Errorf("box: writing upload attributes: %w", err)
	}

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("box: creating upload part: %w", err)
	}

	if _, err := io.Copy(fw, content); err != nil {
		return nil, "", fmt.Errorf("box: reading upload content: %w", err)
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("box: closing upload body: %w", err)
	}

	return bytes.NewReader(buf.Bytes()), mw.FormDataContentType(), nil
}

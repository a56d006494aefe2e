package box

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// CurrentUser returns the user the session's token belongs to (or the
// As-User user).
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	c.logger.Info("fetching current user")

	return c.fetchUser(ctx, "/users/me")
}

// GetUser returns a user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (*User, error) {
	c.logger.Info("fetching user", slog.String("user_id", userID))

	return c.fetchUser(ctx, "/users/"+url.PathEscape(userID))
}

func (c *Client) fetchUser(ctx context.Context, path string) (*User, error) {
	var ur userResponse
	if err := c.getJSON(ctx, path, nil, &ur); err != nil {
		return nil, err
	}

	user := ur.toUser(c.logger)

	c.logger.Debug("fetched user",
		slog.String("id", user.ID),
		slog.String("login", user.Login),
	)

	return &user, nil
}

// getJSON issues a GET and decodes the JSON response into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	resp, err := c.DoRequest(ctx, &Request{Method: http.MethodGet, Path: path, Query: query})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp.Body, v, path)
}

// sendJSON issues method with reqBody encoded as JSON and decodes the
// response into v. v may be nil for responses without a body.
func (c *Client) sendJSON(ctx context.Context, method, path string, query url.Values, reqBody, v any) error {
	r := &Request{Method: method, Path: path, Query: query}

	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("box: encoding %s %s request: %w", method, path, err)
		}

		r.Body = bytes.NewReader(data)
	}

	return c.send(ctx, r, v)
}

// send executes r and decodes the response into v, or drains it when v is nil.
func (c *Client) send(ctx context.Context, r *Request, v any) error {
	resp, err := c.DoRequest(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
		return nil
	}

	return decodeJSON(resp.Body, v, r.Path)
}

func decodeJSON(r io.Reader, v any, what string) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("box: decoding %s response: %w", what, err)
	}

	return nil
}

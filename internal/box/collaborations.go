package box

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrNoCollaborator is returned by CreateCollaboration without a user ID,
// group ID or login.
var ErrNoCollaborator = errors.New("box: collaboration requires a user ID, group ID or login")

// Collaborator identifies who a new collaboration is for. Exactly one of
// UserID, GroupID or Login is used, in that order of preference.
type Collaborator struct {
	UserID  string
	GroupID string
	Login   string // email; invites users without an account
}

type accessibleBy struct {
	Type  string `json:"type"`
	ID    string `json:"id,omitempty"`
	Login string `json:"login,omitempty"`
}

type createCollaborationRequest struct {
	Item         ref          `json:"item"`
	AccessibleBy accessibleBy `json:"accessible_by"`
	Role         Role         `json:"role"`
}

type updateCollaborationRequest struct {
	Role Role `json:"role"`
}

func (w Collaborator) accessibleBy() (accessibleBy, error) {
	switch {
	case w.UserID != "":
		return accessibleBy{Type: "user", ID: w.UserID}, nil
	case w.GroupID != "":
		return accessibleBy{Type: "group", ID: w.GroupID}, nil
	case strings.TrimSpace(w.Login) != "":
		return accessibleBy{Type: "user", Login: strings.TrimSpace(w.Login)}, nil
	default:
		return accessibleBy{}, ErrNoCollaborator
	}
}

// GetCollaboration returns a collaboration by ID.
func (c *Client) GetCollaboration(ctx context.Context, collabID string) (*Collaboration, error) {
	c.logger.Info("getting collaboration", slog.String("collaboration_id", collabID))

	var cr collaborationResponse
	if err := c.getJSON(ctx, "/collaborations/"+url.PathEscape(collabID), nil, &cr); err != nil {
		return nil, err
	}

	collab := cr.toCollaboration(c.logger)

	return &collab, nil
}

// CreateCollaboration grants who the role on an item.
func (c *Client) CreateCollaboration(ctx context.Context, t ItemType, itemID string, who Collaborator, role Role) (*Collaboration, error) {
	if _, err := t.collection(); err != nil {
		return nil, err
	}

	ab, err := who.accessibleBy()
	if err != nil {
		return nil, err
	}

	c.logger.Info("creating collaboration",
		slog.String("type", string(t)),
		slog.String("item_id", itemID),
		slog.String("accessible_by_type", ab.Type),
		slog.String("role", string(role)),
	)

	req := createCollaborationRequest{
		Item:         ref{Type: string(t), ID: itemID},
		AccessibleBy: ab,
		Role:         role,
	}

	var cr collaborationResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/collaborations", nil, req, &cr); err != nil {
		return nil, err
	}

	collab := cr.toCollaboration(c.logger)

	return &collab, nil
}

// UpdateCollaboration changes a collaboration's role.
func (c *Client) UpdateCollaboration(ctx context.Context, collabID string, role Role) (*Collaboration, error) {
	c.logger.Info("updating collaboration",
		slog.String("collaboration_id", collabID),
		slog.String("role", string(role)),
	)

	var cr collaborationResponse
	if err := c.sendJSON(ctx, http.MethodPut, "/collaborations/"+url.PathEscape(collabID), nil,
		updateCollaborationRequest{Role: role}, &cr); err != nil {
		return nil, err
	}

	collab := cr.toCollaboration(c.logger)

	return &collab, nil
}

// DeleteCollaboration removes a collaboration.
func (c *Client) DeleteCollaboration(ctx context.Context, collabID string) error {
	c.logger.Info("deleting collaboration", slog.String("collaboration_id", collabID))

	return c.send(ctx, &Request{Method: http.MethodDelete, Path: "/collaborations/" + url.PathEscape(collabID)}, nil)
}

// PendingCollaborations lists invitations the current user has not yet
// accepted.
func (c *Client) PendingCollaborations(ctx context.Context) ([]Collaboration, error) {
	c.logger.Info("listing pending collaborations")

	return c.listCollaborations(ctx, "/collaborations", url.Values{"status": {"pending"}})
}

func (c *Client) listCollaborations(ctx context.Context, path string, q url.Values) ([]Collaboration, error) {
	var p collaborationsPage
	if err := c.getJSON(ctx, path, q, &p); err != nil {
		return nil, err
	}

	out := make([]Collaboration, 0, len(p.Entries))
	for i := range p.Entries {
		out = append(out, p.Entries[i].toCollaboration(c.logger))
	}

	return out, nil
}

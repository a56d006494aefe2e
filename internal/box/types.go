package box

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ItemType distinguishes files from folders.
type ItemType string

// Item types.
const (
	TypeFile    ItemType = "file"
	TypeFolder  ItemType = "folder"
	TypeWebLink ItemType = "web_link"
)

// collection returns the API path segment for the type ("files", "folders").
func (t ItemType) collection() (string, error) {
	switch t {
	case TypeFile:
		return "files", nil
	case TypeFolder:
		return "folders", nil
	default:
		return "", fmt.Errorf("box: unsupported item type %q", t)
	}
}

// RootFolderID is the ID of every user's root folder.
const RootFolderID = "0"

// User is a Box user account.
type User struct {
	ID          string
	Name        string
	Login       string
	Status      string
	SpaceAmount int64
	SpaceUsed   int64
	CreatedAt   time.Time
}

// Item is a file, folder or web link. Fields not returned for a type are zero.
type Item struct {
	Type        ItemType
	ID          string
	Name        string
	Description string
	Size        int64
	ETag        string
	SequenceID  string
	SHA1        string
	ParentID    string
	CreatedAt   time.Time
	ModifiedAt  time.Time
	Collections []string
}

// IsFolder reports whether the item is a folder.
func (i Item) IsFolder() bool { return i.Type == TypeFolder }

// Role is a collaboration role.
type Role string

// Collaboration roles.
const (
	RoleEditor          Role = "editor"
	RoleViewer          Role = "viewer"
	RolePreviewer       Role = "previewer"
	RoleUploader        Role = "uploader"
	RolePreviewUploader Role = "previewer uploader"
	RoleViewerUploader  Role = "viewer uploader"
	RoleCoOwner         Role = "co-owner"
	RoleOwner           Role = "owner"
)

// Collaboration grants a user or group access to an item.
type Collaboration struct {
	ID               string
	Role             Role
	Status           string // accepted, pending, rejected
	ItemType         ItemType
	ItemID           string
	AccessibleByType string // user or group
	AccessibleByID   string
	AccessibleBy     string // login or group name
	CreatedAt        time.Time
}

// Watermark describes an applied watermark.
type Watermark struct {
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Metadata is one metadata instance. Keys starting with "$" are Box's
// system fields ($scope, $template, $parent, ...).
type Metadata map[string]any

// Scope returns the instance's $scope.
func (m Metadata) Scope() string {
	s, _ := m["$scope"].(string)
	return s
}

// Template returns the instance's $template.
func (m Metadata) Template() string {
	s, _ := m["$template"].(string)
	return s
}

// PatchOp is one JSON Patch operation for UpdateMetadata.
type PatchOp struct {
	Op    string `json:"op"` // add, replace, remove, test
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Collection is a named set of items, e.g. Favorites.
type Collection struct {
	ID             string
	Name           string
	CollectionType string
}

// Wire shapes. Unexported; callers use the normalized types above.

type ref struct {
	Type string `json:"type,omitempty"`
	ID   string `json:"id"`
}

type userResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Login       string `json:"login"`
	Status      string `json:"status"`
	SpaceAmount int64  `json:"space_amount"`
	SpaceUsed   int64  `json:"space_used"`
	CreatedAt   string `json:"created_at"`
}

func (u *userResponse) toUser(logger *slog.Logger) User {
	return User{
		ID:          u.ID,
		Name:        u.Name,
		Login:       u.Login,
		Status:      u.Status,
		SpaceAmount: u.SpaceAmount,
		SpaceUsed:   u.SpaceUsed,
		CreatedAt:   parseTimestamp(u.CreatedAt, "created_at", u.ID, logger),
	}
}

type itemResponse struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Size        int64  `json:"size"`
	ETag        string `json:"etag"`
	SequenceID  string `json:"sequence_id"`
	SHA1        string `json:"sha1"`
	Parent      *ref   `json:"parent"`
	CreatedAt   string `json:"created_at"`
	ModifiedAt  string `json:"modified_at"`
	Collections []ref  `json:"collections"`
}

func (r *itemResponse) toItem(logger *slog.Logger) Item {
	item := Item{
		Type:        ItemType(r.Type),
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Size:        r.Size,
		ETag:        r.ETag,
		SequenceID:  r.SequenceID,
		SHA1:        r.SHA1,
		CreatedAt:   parseTimestamp(r.CreatedAt, "created_at", r.ID, logger),
		ModifiedAt:  parseTimestamp(r.ModifiedAt, "modified_at", r.ID, logger),
	}

	if r.Parent != nil {
		item.ParentID = r.Parent.ID
	}

	for _, c := range r.Collections {
		item.Collections = append(item.Collections, c.ID)
	}

	return item
}

type itemsPage struct {
	TotalCount int            `json:"total_count"`
	Offset     int            `json:"offset"`
	Limit      int            `json:"limit"`
	Entries    []itemResponse `json:"entries"`
}

type collaborationResponse struct {
	ID           string `json:"id"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	Item         *ref   `json:"item"`
	AccessibleBy *struct {
		Type  string `json:"type"`
		ID    string `json:"id"`
		Name  string `json:"name"`
		Login string `json:"login"`
	} `json:"accessible_by"`
}

func (r *collaborationResponse) toCollaboration(logger *slog.Logger) Collaboration {
	c := Collaboration{
		ID:        r.ID,
		Role:      Role(r.Role),
		Status:    r.Status,
		CreatedAt: parseTimestamp(r.CreatedAt, "created_at", r.ID, logger),
	}

	if r.Item != nil {
		c.ItemType = ItemType(r.Item.Type)
		c.ItemID = r.Item.ID
	}

	if r.AccessibleBy != nil {
		c.AccessibleByType = r.AccessibleBy.Type
		c.AccessibleByID = r.AccessibleBy.ID

		c.AccessibleBy = r.AccessibleBy.Login
		if c.AccessibleBy == "" {
			c.AccessibleBy = r.AccessibleBy.Name
		}
	}

	return c
}

type collaborationsPage struct {
	TotalCount int                     `json:"total_count"`
	Entries    []collaborationResponse `json:"entries"`
}

type collectionResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	CollectionType string `json:"collection_type"`
}

type collectionsPage struct {
	Entries []collectionResponse `json:"entries"`
}

// parseTimestamp parses an RFC3339 timestamp. Box omits timestamps on some
// items (e.g. the root folder), so empty and malformed values become the
// zero time.
func parseTimestamp(raw, field, id string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp",
			slog.String("field", field),
			slog.String("id", id),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	return t
}

// ErrInvalidName is returned for names Box would reject.
var ErrInvalidName = errors.New("box: invalid item name")

// maxNameLength is Box's limit on file and folder names.
const maxNameLength = 255

// NormalizeName returns name in Unicode NFC, the form Box compares names in,
// after checking it is a legal item name.
func NormalizeName(name string) (string, error) {
	n := norm.NFC.String(name)

	switch {
	case n == "", n == ".", n == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(n, `/\`):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.TrimSpace(n) != n:
		return "", fmt.Errorf("%w: %q has leading or trailing spaces", ErrInvalidName, name)
	case len([]rune(n)) > maxNameLength:
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, maxNameLength)
	}

	return n, nil
}

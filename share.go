package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/box-go/internal/box"
	"github.com/tonimelisma/box-go/internal/sdk"
)

// favoritesType is the collection_type of the Favorites collection.
const favoritesType = "favorites"

// itemRunFunc is a command body that acts on one resolved item.
type itemRunFunc func(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error

// runOnItem resolves args[0] and calls fn with it.
func runOnItem(fn itemRunFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cc := mustCLIContext(ctx)

		client, done, err := cc.apiClient(ctx)
		if err != nil {
			return err
		}
		defer done()

		item, err := resolvePath(ctx, client, args[0])
		if err != nil {
			return fmt.Errorf("resolving %q: %w", args[0], err)
		}

		return fn(ctx, cc, client, item)
	}
}

func newWatermarkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watermark",
		Short: "Manage item watermarks",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <path>",
		Short: "Show the watermark on a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runOnItem(runWatermarkGet),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "apply <path>",
		Short: "Apply the default watermark",
		Args:  cobra.ExactArgs(1),
		RunE:  runOnItem(runWatermarkApply),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "remove <path>",
		Short: "Remove the watermark",
		Args:  cobra.ExactArgs(1),
		RunE:  runOnItem(runWatermarkRemove),
	})

	return cmd
}

// watermarkOutput is the JSON schema for watermark get and apply.
type watermarkOutput struct {
	ItemID      string `json:"item_id"`
	Watermarked bool   `json:"watermarked"`
	CreatedAt   string `json:"created_at,omitempty"`
	ModifiedAt  string `json:"modified_at,omitempty"`
}

func printWatermark(cc *CLIContext, item *box.Item, wm *box.Watermark) error {
	out := watermarkOutput{ItemID: item.ID, Watermarked: wm != nil}
	if wm != nil {
		out.CreatedAt = formatRFC3339(wm.CreatedAt)
		out.ModifiedAt = formatRFC3339(wm.ModifiedAt)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, out)
	}

	if wm == nil {
		fmt.Fprintf(cc.Out, "%s: no watermark\n", item.Name)
		return nil
	}

	fmt.Fprintf(cc.Out, "%s: watermarked (created %s, modified %s)\n",
		item.Name, formatTime(wm.CreatedAt), formatTime(wm.ModifiedAt))

	return nil
}

func runWatermarkGet(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
	wm, err := client.GetWatermark(ctx, item.Type, item.ID)
	if errors.Is(err, box.ErrNotFound) {
		return printWatermark(cc, item, nil)
	}

	if err != nil {
		return fmt.Errorf("getting watermark: %w", err)
	}

	return printWatermark(cc, item, wm)
}

func runWatermarkApply(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
	wm, err := client.ApplyWatermark(ctx, item.Type, item.ID)
	if err != nil {
		return fmt.Errorf("applying watermark: %w", err)
	}

	cc.Logger.Debug("watermark applied", slog.String("item_id", item.ID))

	return printWatermark(cc, item, wm)
}

func runWatermarkRemove(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
	if err := client.RemoveWatermark(ctx, item.Type, item.ID); err != nil {
		return fmt.Errorf("removing watermark: %w", err)
	}

	cc.Statusf("Removed watermark from %s\n", item.Name)

	return nil
}

func newCollabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collab",
		Short: "Manage collaborations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <folder>",
		Short: "List collaborations on a folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runOnItem(runCollabList),
	})

	add := &cobra.Command{
		Use:   "add <path> <login-or-user-id>",
		Short: "Invite a user to an item",
		Args:  cobra.ExactArgs(2), //nolint:mnd // path and collaborator
		RunE:  runCollabAdd,
	}
	add.Flags().String("role", string(box.RoleViewer), "collaboration role")
	add.Flags().Bool("group", false, "the collaborator is a group ID")
	cmd.AddCommand(add)

	update := &cobra.Command{
		Use:   "update <collaboration-id>",
		Short: "Change a collaboration's role",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollabUpdate,
	}
	update.Flags().String("role", string(box.RoleViewer), "new collaboration role")
	cmd.AddCommand(update)

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <collaboration-id>",
		Short: "Remove a collaboration",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollabRemove,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pending",
		Short: "List invitations awaiting your answer",
		Args:  cobra.NoArgs,
		RunE:  runCollabPending,
	})

	return cmd
}

// collabOutput is the JSON schema for one collaboration.
type collabOutput struct {
	ID               string `json:"id"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	ItemType         string `json:"item_type,omitempty"`
	ItemID           string `json:"item_id,omitempty"`
	AccessibleByType string `json:"accessible_by_type"`
	AccessibleByID   string `json:"accessible_by_id,omitempty"`
	AccessibleBy     string `json:"accessible_by,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
}

func printCollabs(cc *CLIContext, collabs []box.Collaboration) error {
	if cc.Flags.JSON {
		out := make([]collabOutput, 0, len(collabs))
		for i := range collabs {
			c := &collabs[i]
			out = append(out, collabOutput{
				ID:               c.ID,
				Role:             string(c.Role),
				Status:           c.Status,
				ItemType:         string(c.ItemType),
				ItemID:           c.ItemID,
				AccessibleByType: c.AccessibleByType,
				AccessibleByID:   c.AccessibleByID,
				AccessibleBy:     c.AccessibleBy,
				CreatedAt:        formatRFC3339(c.CreatedAt),
			})
		}

		return printJSON(cc.Out, out)
	}

	rows := make([][]string, 0, len(collabs))
	for i := range collabs {
		c := &collabs[i]
		rows = append(rows, []string{c.ID, string(c.Role), c.Status, c.AccessibleByType, c.AccessibleBy})
	}

	printTable(cc.Out, []string{"ID", "ROLE", "STATUS", "TYPE", "WHO"}, rows)

	return nil
}

func runCollabList(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
	if !item.IsFolder() {
		return fmt.Errorf("%q is not a folder", item.Name)
	}

	collabs, err := client.FolderCollaborations(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("listing collaborations: %w", err)
	}

	return printCollabs(cc, collabs)
}

// parseRole accepts role names with spaces or underscores, e.g.
// "viewer_uploader".
func parseRole(s string) (box.Role, error) {
	name := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
	if name == "co owner" {
		name = string(box.RoleCoOwner)
	}

	switch r := box.Role(name); r {
	case box.RoleEditor, box.RoleViewer, box.RolePreviewer, box.RoleUploader,
		box.RolePreviewUploader, box.RoleViewerUploader, box.RoleCoOwner, box.RoleOwner:
		return r, nil
	}

	return "", fmt.Errorf("unknown role %q", s)
}

// collaboratorFor treats an all-digit argument as a user (or group) ID and
// anything else as a login.
func collaboratorFor(arg string, group bool) box.Collaborator {
	if group {
		return box.Collaborator{GroupID: arg}
	}

	if arg != "" && strings.Trim(arg, "0123456789") == "" {
		return box.Collaborator{UserID: arg}
	}

	return box.Collaborator{Login: arg}
}

func runCollabAdd(cmd *cobra.Command, args []string) error {
	roleFlag, err := cmd.Flags().GetString("role")
	if err != nil {
		return err
	}

	role, err := parseRole(roleFlag)
	if err != nil {
		return err
	}

	group, err := cmd.Flags().GetBool("group")
	if err != nil {
		return err
	}

	return runOnItem(func(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
		collab, err := client.CreateCollaboration(ctx, item.Type, item.ID, collaboratorFor(args[1], group), role)
		if err != nil {
			return fmt.Errorf("creating collaboration: %w", err)
		}

		if cc.Flags.JSON {
			return printCollabs(cc, []box.Collaboration{*collab})
		}

		cc.Statusf("Added %s as %s on %s (collaboration %s)\n", args[1], collab.Role, item.Name, collab.ID)

		return nil
	})(cmd, args)
}

func runCollabUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	roleFlag, err := cmd.Flags().GetString("role")
	if err != nil {
		return err
	}

	role, err := parseRole(roleFlag)
	if err != nil {
		return err
	}

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	collab, err := client.UpdateCollaboration(ctx, args[0], role)
	if err != nil {
		return fmt.Errorf("updating collaboration: %w", err)
	}

	return printCollabs(cc, []box.Collaboration{*collab})
}

func runCollabRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	if err := client.DeleteCollaboration(ctx, args[0]); err != nil {
		return fmt.Errorf("removing collaboration: %w", err)
	}

	cc.Statusf("Removed collaboration %s\n", args[0])

	return nil
}

func runCollabPending(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	collabs, err := client.PendingCollaborations(ctx)
	if err != nil {
		return fmt.Errorf("listing pending collaborations: %w", err)
	}

	return printCollabs(cc, collabs)
}

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Manage collections such as Favorites",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your collections",
		Args:  cobra.NoArgs,
		RunE:  runCollectionList,
	})

	add := &cobra.Command{
		Use:   "add <path>",
		Short: "Add an item to a collection (Favorites by default)",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollectionEdit(true),
	}
	add.Flags().String("collection", "", "collection ID (default: Favorites)")
	cmd.AddCommand(add)

	remove := &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove an item from a collection (Favorites by default)",
		Args:  cobra.ExactArgs(1),
		RunE:  runCollectionEdit(false),
	}
	remove.Flags().String("collection", "", "collection ID (default: Favorites)")
	cmd.AddCommand(remove)

	return cmd
}

func runCollectionList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	cols, err := client.Collections(ctx)
	if err != nil {
		return fmt.Errorf("listing collections: %w", err)
	}

	if cc.Flags.JSON {
		type collectionOutput struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Type string `json:"collection_type"`
		}

		out := make([]collectionOutput, 0, len(cols))
		for _, c := range cols {
			out = append(out, collectionOutput{ID: c.ID, Name: c.Name, Type: c.CollectionType})
		}

		return printJSON(cc.Out, out)
	}

	rows := make([][]string, 0, len(cols))
	for _, c := range cols {
		rows = append(rows, []string{c.ID, c.CollectionType, c.Name})
	}

	printTable(cc.Out, []string{"ID", "TYPE", "NAME"}, rows)

	return nil
}

// favoritesID returns the ID of the Favorites collection.
func favoritesID(ctx context.Context, client *sdk.Client) (string, error) {
	cols, err := client.Collections(ctx)
	if err != nil {
		return "", fmt.Errorf("listing collections: %w", err)
	}

	for _, c := range cols {
		if c.CollectionType == favoritesType {
			return c.ID, nil
		}
	}

	return "", errors.New("account has no favorites collection")
}

func runCollectionEdit(add bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		collectionID, err := cmd.Flags().GetString("collection")
		if err != nil {
			return err
		}

		return runOnItem(func(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
			if collectionID == "" {
				if collectionID, err = favoritesID(ctx, client); err != nil {
					return err
				}
			}

			verb := "Added"
			edit := client.AddToCollection

			if !add {
				verb = "Removed"
				edit = client.RemoveFromCollection
			}

			if _, err := edit(ctx, item.Type, item.ID, collectionID); err != nil {
				return fmt.Errorf("updating collection %s: %w", collectionID, err)
			}

			cc.Statusf("%s %s (collection %s)\n", verb, item.Name, collectionID)

			return nil
		})(cmd, args)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/box-go/internal/box"
	"github.com/tonimelisma/box-go/internal/sdk"
)

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <destination>",
		Short: "Move or rename a file or folder",
		Long: `Move an item. An existing folder as destination receives the item under
its current name; otherwise the last path segment becomes the new name.`,
		Args: cobra.ExactArgs(2),
		RunE: runMv,
	}
}

func newCpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cp <path> <destination>",
		Short: "Copy a file or folder",
		Long: `Copy an item server side. Destination rules are the same as for mv.
Folders are copied with their contents.`,
		Args: cobra.ExactArgs(2),
		RunE: runCp,
	}
}

// destination is where mv and cp put an item.
type destination struct {
	parentID string
	name     string // empty keeps the source name
}

// resolveDestination applies the mv/cp destination rules to dest.
func resolveDestination(ctx context.Context, c *sdk.Client, dest string) (destination, error) {
	target, err := resolvePath(ctx, c, dest)

	switch {
	case err == nil && target.IsFolder():
		return destination{parentID: target.ID}, nil
	case err == nil:
		return destination{}, fmt.Errorf("%q already exists", dest)
	case !errors.Is(err, box.ErrNotFound) || strings.HasPrefix(dest, idPrefix):
		return destination{}, fmt.Errorf("resolving %q: %w", dest, err)
	}

	clean := cleanRemotePath(dest)
	parentPath, name := path.Split(clean)

	parent, err := resolvePath(ctx, c, parentPath)
	if err != nil {
		return destination{}, fmt.Errorf("resolving parent of %q: %w", dest, err)
	}

	if !parent.IsFolder() {
		return destination{}, fmt.Errorf("%q is not a folder", parentPath)
	}

	return destination{parentID: parent.ID, name: name}, nil
}

// moveSource resolves the item mv and cp operate on. The root folder
// cannot be moved or copied.
func moveSource(ctx context.Context, c *sdk.Client, src string) (*box.Item, error) {
	item, err := resolvePath(ctx, c, src)
	if err != nil {
		return nil, err
	}

	if item.IsFolder() && item.ID == box.RootFolderID {
		return nil, errors.New("cannot move or copy the root folder")
	}

	return item, nil
}

func runMv(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	item, err := moveSource(ctx, client, args[0])
	if err != nil {
		return err
	}

	dest, err := resolveDestination(ctx, client, args[1])
	if err != nil {
		return err
	}

	if dest.parentID == item.ID {
		return fmt.Errorf("cannot move %q into itself", args[0])
	}

	u := box.ItemUpdate{ParentID: dest.parentID, Name: dest.name}

	var moved *box.Item
	if item.IsFolder() {
		moved, err = client.UpdateFolder(ctx, item.ID, u)
	} else {
		moved, err = client.UpdateFile(ctx, item.ID, u)
	}

	if err != nil {
		return fmt.Errorf("moving %q: %w", args[0], err)
	}

	cc.Logger.Debug("move complete", slog.String("item_id", moved.ID), slog.String("parent_id", dest.parentID))

	if cc.Flags.JSON {
		return printJSON(cc.Out, toItemJSON(moved))
	}

	cc.Statusf("Moved %s to %s\n", args[0], args[1])

	return nil
}

func runCp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	item, err := moveSource(ctx, client, args[0])
	if err != nil {
		return err
	}

	dest, err := resolveDestination(ctx, client, args[1])
	if err != nil {
		return err
	}

	var copied *box.Item
	if item.IsFolder() {
		copied, err = client.CopyFolder(ctx, item.ID, dest.parentID, dest.name)
	} else {
		copied, err = client.CopyFile(ctx, item.ID, dest.parentID, dest.name)
	}

	if errors.Is(err, box.ErrConflict) {
		return fmt.Errorf("%q already exists: %w", args[1], err)
	}

	if err != nil {
		return fmt.Errorf("copying %q: %w", args[0], err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, toItemJSON(copied))
	}

	cc.Statusf("Copied %s to %s (%s)\n", args[0], args[1], copied.ID)

	return nil
}

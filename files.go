package main

import (
	"context"
	"crypto/sha1" //nolint:gosec // Box reports content hashes as SHA-1
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/box-go/internal/box"
	"github.com/tonimelisma/box-go/internal/sdk"
)

// bulkConcurrency caps parallel API calls for multi-path commands.
const bulkConcurrency = 4

// idPrefix addresses an item by ID instead of path, e.g. "id:12345".
const idPrefix = "id:"

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List files and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLs,
	}
}

func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>...",
		Short: "Display file or folder metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runStat,
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder (recursive)",
		Args:  cobra.ExactArgs(1),
		RunE:  runMkdir,
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Move files or folders to the trash",
		Long: `Delete files or folders. Items go to the Box trash and can be restored
from the web interface. Folders need --recursive (-r).`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRm,
	}

	cmd.Flags().BoolP("recursive", "r", false, "delete folders and their contents")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-path]",
		Short: "Download a file",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runGet,
	}
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <local-path> [remote-folder]",
		Short: "Upload a file into a folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  runPut,
	}
}

// cleanRemotePath strips leading/trailing slashes, returns "" for root.
func cleanRemotePath(path string) string {
	return strings.Trim(path, "/")
}

// resolvePath maps a slash-separated path to an item by walking folder
// listings from the root. "id:<folder-or-file-id>" skips the walk; the ID
// is tried as a file first, then as a folder.
func resolvePath(ctx context.Context, c *sdk.Client, remotePath string) (*box.Item, error) {
	if id, ok := strings.CutPrefix(remotePath, idPrefix); ok {
		return resolveID(ctx, c, id)
	}

	clean := cleanRemotePath(remotePath)
	if clean == "" {
		return c.GetFolder(ctx, box.RootFolderID)
	}

	segments := strings.Split(clean, "/")
	parentID := box.RootFolderID

	var item *box.Item

	for i, seg := range segments {
		child, err := findChild(ctx, c, parentID, seg)
		if err != nil {
			return nil, err
		}

		if i < len(segments)-1 && !child.IsFolder() {
			return nil, fmt.Errorf("%q is not a folder: %w", strings.Join(segments[:i+1], "/"), box.ErrNotFound)
		}

		item = child
		parentID = child.ID
	}

	return item, nil
}

func resolveID(ctx context.Context, c *sdk.Client, id string) (*box.Item, error) {
	if id == box.RootFolderID {
		return c.GetFolder(ctx, id)
	}

	item, err := c.GetFile(ctx, id)
	if errors.Is(err, box.ErrNotFound) {
		return c.GetFolder(ctx, id)
	}

	return item, err
}

// findChild returns the entry of folderID named name. Box compares names
// in NFC and without regard to case.
func findChild(ctx context.Context, c *sdk.Client, folderID, name string) (*box.Item, error) {
	want := norm.NFC.String(name)

	items, err := c.ListFolderItems(ctx, folderID)
	if err != nil {
		return nil, err
	}

	for i := range items {
		if strings.EqualFold(norm.NFC.String(items[i].Name), want) {
			return &items[i], nil
		}
	}

	return nil, fmt.Errorf("%q: %w", name, box.ErrNotFound)
}

func runLs(cmd *cobra.Command, args []string) error {
	remotePath := "/"
	if len(args) > 0 {
		remotePath = args[0]
	}

	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	cc.Logger.Debug("ls", slog.String("path", remotePath))

	folder, err := resolvePath(ctx, client, remotePath)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", remotePath, err)
	}

	if !folder.IsFolder() {
		return printItems(cc, []box.Item{*folder})
	}

	items, err := client.ListFolderItems(ctx, folder.ID)
	if err != nil {
		return fmt.Errorf("listing %q: %w", remotePath, err)
	}

	return printItems(cc, items)
}

// itemJSON is the JSON output schema for one item in ls and stat.
type itemJSON struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Size        int64    `json:"size"`
	ParentID    string   `json:"parent_id,omitempty"`
	ModifiedAt  string   `json:"modified_at,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	ETag        string   `json:"etag,omitempty"`
	SHA1        string   `json:"sha1,omitempty"`
	Description string   `json:"description,omitempty"`
	Collections []string `json:"collections,omitempty"`
}

func toItemJSON(item *box.Item) itemJSON {
	return itemJSON{
		ID:          item.ID,
		Type:        string(item.Type),
		Name:        item.Name,
		Size:        item.Size,
		ParentID:    item.ParentID,
		ModifiedAt:  formatRFC3339(item.ModifiedAt),
		CreatedAt:   formatRFC3339(item.CreatedAt),
		ETag:        item.ETag,
		SHA1:        item.SHA1,
		Description: item.Description,
		Collections: item.Collections,
	}
}

func printItems(cc *CLIContext, items []box.Item) error {
	// Folders first, then alphabetical.
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsFolder() != items[j].IsFolder() {
			return items[i].IsFolder()
		}

		return items[i].Name < items[j].Name
	})

	if cc.Flags.JSON {
		out := make([]itemJSON, 0, len(items))
		for i := range items {
			out = append(out, toItemJSON(&items[i]))
		}

		return printJSON(cc.Out, out)
	}

	headers := []string{"ID", "SIZE", "MODIFIED", "NAME"}
	rows := make([][]string, 0, len(items))

	for i := range items {
		name := items[i].Name
		if items[i].IsFolder() {
			name += "/"
		}

		rows = append(rows, []string{items[i].ID, formatSize(items[i].Size), formatTime(items[i].ModifiedAt), name})
	}

	printTable(cc.Out, headers, rows)

	return nil
}

// resolveAll resolves every path concurrently and returns the items in
// argument order. The first failure cancels the rest.
func resolveAll(ctx context.Context, c *sdk.Client, paths []string) ([]*box.Item, error) {
	items := make([]*box.Item, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)

	for i, p := range paths {
		g.Go(func() error {
			item, err := resolvePath(gctx, c, p)
			if err != nil {
				return fmt.Errorf("resolving %q: %w", p, err)
			}

			items[i] = item

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return items, nil
}

func runStat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	cc.Logger.Debug("stat", slog.Int("paths", len(args)))

	items, err := resolveAll(ctx, client, args)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		out := make([]itemJSON, 0, len(items))
		for _, item := range items {
			out = append(out, toItemJSON(item))
		}

		if len(out) == 1 {
			return printJSON(cc.Out, out[0])
		}

		return printJSON(cc.Out, out)
	}

	for i, item := range items {
		if i > 0 {
			fmt.Fprintln(cc.Out)
		}

		printStatText(cc.Out, item)
	}

	return nil
}

func printStatText(w io.Writer, item *box.Item) {
	fmt.Fprintf(w, "Name:     %s\n", item.Name)
	fmt.Fprintf(w, "Type:     %s\n", item.Type)
	fmt.Fprintf(w, "ID:       %s\n", item.ID)
	fmt.Fprintf(w, "Size:     %s (%d bytes)\n", formatSize(item.Size), item.Size)

	if !item.ModifiedAt.IsZero() {
		fmt.Fprintf(w, "Modified: %s\n", item.ModifiedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if !item.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:  %s\n", item.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	if item.ParentID != "" {
		fmt.Fprintf(w, "Parent:   %s\n", item.ParentID)
	}

	if item.SHA1 != "" {
		fmt.Fprintf(w, "SHA1:     %s\n", item.SHA1)
	}

	if item.ETag != "" {
		fmt.Fprintf(w, "ETag:     %s\n", item.ETag)
	}
}

// mkdirJSONOutput is the JSON output schema for the mkdir command.
type mkdirJSONOutput struct {
	Created string `json:"created"`
	ID      string `json:"id"`
}

func runMkdir(cmd *cobra.Command, args []string) error {
	remotePath := cleanRemotePath(args[0])
	if remotePath == "" {
		return errors.New("cannot create root folder")
	}

	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	cc.Logger.Debug("mkdir", slog.String("path", remotePath))

	folderID, err := ensureFolder(ctx, client, remotePath)
	if err != nil {
		return err
	}

	cc.Logger.Debug("mkdir complete", slog.String("path", remotePath), slog.String("folder_id", folderID))

	if cc.Flags.JSON {
		return printJSON(cc.Out, mkdirJSONOutput{Created: remotePath, ID: folderID})
	}

	cc.Statusf("Created %s\n", remotePath)

	return nil
}

// ensureFolder walks remotePath from the root, creating each missing
// folder, and returns the last folder's ID.
func ensureFolder(ctx context.Context, c *sdk.Client, remotePath string) (string, error) {
	parentID := box.RootFolderID

	for _, seg := range strings.Split(cleanRemotePath(remotePath), "/") {
		existing, err := findChild(ctx, c, parentID, seg)

		switch {
		case err == nil:
			if !existing.IsFolder() {
				return "", fmt.Errorf("%q exists and is not a folder", seg)
			}

			parentID = existing.ID

			continue
		case !errors.Is(err, box.ErrNotFound):
			return "", fmt.Errorf("looking up %q: %w", seg, err)
		}

		created, err := c.CreateFolder(ctx, parentID, seg)
		if errors.Is(err, box.ErrConflict) {
			// Created concurrently; look it up again.
			created, err = findChild(ctx, c, parentID, seg)
		}

		if err != nil {
			return "", fmt.Errorf("creating folder %q: %w", seg, err)
		}

		parentID = created.ID
	}

	return parentID, nil
}

// rmJSONOutput is the JSON output schema for the rm command.
type rmJSONOutput struct {
	Deleted []string `json:"deleted"`
}

func runRm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	recursive, err := cmd.Flags().GetBool("recursive")
	if err != nil {
		return err
	}

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	items, err := resolveAll(ctx, client, args)
	if err != nil {
		return err
	}

	// Check every target before deleting any.
	for i, item := range items {
		if item.IsFolder() && item.ID == box.RootFolderID {
			return errors.New("cannot delete the root folder")
		}

		if item.IsFolder() && !recursive {
			return fmt.Errorf("cannot delete folder %q without --recursive (-r) flag", args[i])
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)

	for i, item := range items {
		g.Go(func() error {
			var delErr error
			if item.IsFolder() {
				delErr = client.DeleteFolder(gctx, item.ID, true)
			} else {
				delErr = client.DeleteFile(gctx, item.ID)
			}

			if delErr != nil {
				return fmt.Errorf("deleting %q: %w", args[i], delErr)
			}

			cc.Logger.Debug("delete complete", slog.String("path", args[i]), slog.String("item_id", item.ID))

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, rmJSONOutput{Deleted: args})
	}

	for _, p := range args {
		cc.Statusf("Deleted %s\n", p)
	}

	return nil
}

func runGet(cmd *cobra.Command, args []string) error {
	remotePath := args[0]
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	item, err := resolvePath(ctx, client, remotePath)
	if err != nil {
		return fmt.Errorf("resolving %q: %w", remotePath, err)
	}

	if item.IsFolder() {
		return fmt.Errorf("%q is a folder, not a file", remotePath)
	}

	localPath := item.Name
	if len(args) > 1 {
		localPath = args[1]
	}

	if fi, statErr := os.Stat(localPath); statErr == nil && fi.IsDir() {
		localPath = filepath.Join(localPath, item.Name)
	}

	cc.Logger.Debug("get", slog.String("remote_path", remotePath), slog.String("local_path", localPath))

	n, err := downloadTo(ctx, client, item, localPath)
	if err != nil {
		return err
	}

	cc.Logger.Debug("download complete", slog.String("local_path", localPath), slog.Int64("bytes", n))
	cc.Statusf("Downloaded %s (%s)\n", localPath, formatSize(n))

	return nil
}

// downloadTo writes the file to a .partial sibling, checks its SHA-1
// against the item's and renames it into place.
func downloadTo(ctx context.Context, c *sdk.Client, item *box.Item, localPath string) (int64, error) {
	partialPath := localPath + ".partial"

	f, err := os.Create(partialPath)
	if err != nil {
		return 0, fmt.Errorf("creating partial file for download: %w", err)
	}

	h := sha1.New() //nolint:gosec // content hash, not a security boundary

	n, dlErr := c.DownloadFile(ctx, item.ID, io.MultiWriter(f, h))
	closeErr := f.Close()

	if dlErr != nil || closeErr != nil {
		os.Remove(partialPath)

		if dlErr == nil {
			dlErr = closeErr
		}

		return n, fmt.Errorf("downloading %q: %w", item.Name, dlErr)
	}

	if item.SHA1 != "" && !strings.EqualFold(hex.EncodeToString(h.Sum(nil)), item.SHA1) {
		os.Remove(partialPath)
		return n, fmt.Errorf("hash mismatch after download of %q (deleted, try again)", item.Name)
	}

	if err := os.Rename(partialPath, localPath); err != nil {
		return n, fmt.Errorf("renaming download to %q: %w", localPath, err)
	}

	return n, nil
}

func runPut(cmd *cobra.Command, args []string) error {
	localPath := args[0]
	ctx := cmd.Context()
	cc := mustCLIContext(ctx)

	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("stating local file: %w", err)
	}

	if fi.IsDir() {
		return fmt.Errorf("%q is a directory, not a file", localPath)
	}

	remoteFolder := "/"
	if len(args) > 1 {
		remoteFolder = args[1]
	}

	client, done, err := cc.apiClient(ctx)
	if err != nil {
		return err
	}
	defer done()

	parent, err := resolvePath(ctx, client, remoteFolder)
	if err != nil {
		return fmt.Errorf("resolving folder %q: %w", remoteFolder, err)
	}

	if !parent.IsFolder() {
		return fmt.Errorf("%q is not a folder", remoteFolder)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening local file: %w", err)
	}
	defer f.Close()

	name := filepath.Base(localPath)

	cc.Logger.Debug("put",
		slog.String("local_path", localPath),
		slog.String("parent_id", parent.ID),
		slog.Int64("size", fi.Size()),
	)

	item, err := client.UploadFile(ctx, parent.ID, name, f, box.UploadOptions{ContentModifiedAt: fi.ModTime()})
	if errors.Is(err, box.ErrConflict) {
		return fmt.Errorf("%q already exists in %q: %w", name, remoteFolder, err)
	}

	if err != nil {
		return fmt.Errorf("uploading %q: %w", localPath, err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, toItemJSON(item))
	}

	cc.Statusf("Uploaded %s (%s) as %s\n", name, formatSize(fi.Size()), item.ID)

	return nil
}

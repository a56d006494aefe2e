package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/box-go/internal/box"
	"github.com/tonimelisma/box-go/internal/sdk"
)

func newMetadataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage metadata template instances on items",
		Long: `Read and write metadata instances. Templates are named scope.template,
e.g. global.properties or enterprise.contract. Field values are given as
key=value; values that parse as JSON (numbers, true, arrays) are sent as such.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <path>",
		Short: "List every metadata instance on an item",
		Args:  cobra.ExactArgs(1),
		RunE:  runOnItem(runMetadataList),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <path> <scope.template>",
		Short: "Show one metadata instance",
		Args:  cobra.ExactArgs(2), //nolint:mnd // path and template
		RunE:  runMetadataTemplate(metadataGet),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <path> <scope.template> <key=value>...",
		Short: "Create an instance, or replace fields of an existing one",
		Args:  cobra.MinimumNArgs(3), //nolint:mnd // path, template and a field
		RunE:  runMetadataTemplate(metadataSet),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <path> <scope.template>",
		Short: "Remove a metadata instance",
		Args:  cobra.ExactArgs(2), //nolint:mnd // path and template
		RunE:  runMetadataTemplate(metadataDelete),
	})

	return cmd
}

// templateFunc acts on one template instance of an item. fields are the
// arguments after the template name.
type templateFunc func(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item,
	scope, template string, fields []string) error

func runMetadataTemplate(fn templateFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		scope, template, err := parseTemplateName(args[1])
		if err != nil {
			return err
		}

		return runOnItem(func(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
			return fn(ctx, cc, client, item, scope, template, args[2:])
		})(cmd, args)
	}
}

// parseTemplateName splits "scope.template". The scope is global or
// enterprise (optionally enterprise_<id>).
func parseTemplateName(s string) (string, string, error) {
	scope, template, ok := strings.Cut(s, ".")
	if !ok || scope == "" || template == "" {
		return "", "", fmt.Errorf("template %q must be scope.template", s)
	}

	if scope != box.ScopeGlobal && scope != box.ScopeEnterprise && !strings.HasPrefix(scope, box.ScopeEnterprise+"_") {
		return "", "", fmt.Errorf("unknown metadata scope %q", scope)
	}

	return scope, template, nil
}

// parseFields turns key=value arguments into a field map.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))

	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("field %q must be key=value", a)
		}

		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err == nil {
			fields[k] = parsed
			continue
		}

		fields[k] = v
	}

	return fields, nil
}

// replaceOps builds an "add" operation per field; add replaces existing
// values and creates missing ones.
func replaceOps(fields map[string]any) []box.PatchOp {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	ops := make([]box.PatchOp, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, box.PatchOp{Op: "add", Path: "/" + k, Value: fields[k]})
	}

	return ops
}

func printMetadata(cc *CLIContext, md box.Metadata) error {
	if cc.Flags.JSON {
		return printJSON(cc.Out, md)
	}

	fmt.Fprintf(cc.Out, "%s.%s\n", md.Scope(), md.Template())

	keys := make([]string, 0, len(md))
	for k := range md {
		if !strings.HasPrefix(k, "$") {
			keys = append(keys, k)
		}
	}

	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(cc.Out, "  %s: %v\n", k, md[k])
	}

	return nil
}

func runMetadataList(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item) error {
	list, err := client.ListMetadata(ctx, item.Type, item.ID)
	if err != nil {
		return fmt.Errorf("listing metadata: %w", err)
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, list)
	}

	if len(list) == 0 {
		fmt.Fprintf(cc.Out, "%s: no metadata\n", item.Name)
		return nil
	}

	for _, md := range list {
		if err := printMetadata(cc, md); err != nil {
			return err
		}
	}

	return nil
}

func metadataGet(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item, scope, template string, _ []string) error {
	md, err := client.GetMetadata(ctx, item.Type, item.ID, scope, template)
	if err != nil {
		return fmt.Errorf("getting metadata %s.%s: %w", scope, template, err)
	}

	return printMetadata(cc, md)
}

// metadataSet creates the instance; when it already exists the fields are
// patched in instead.
func metadataSet(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item, scope, template string, args []string) error {
	fields, err := parseFields(args)
	if err != nil {
		return err
	}

	md, err := client.CreateMetadata(ctx, item.Type, item.ID, scope, template, fields)
	if errors.Is(err, box.ErrConflict) {
		md, err = client.UpdateMetadata(ctx, item.Type, item.ID, scope, template, replaceOps(fields))
	}

	if err != nil {
		return fmt.Errorf("setting metadata %s.%s: %w", scope, template, err)
	}

	return printMetadata(cc, md)
}

func metadataDelete(ctx context.Context, cc *CLIContext, client *sdk.Client, item *box.Item, scope, template string, _ []string) error {
	if err := client.DeleteMetadata(ctx, item.Type, item.ID, scope, template); err != nil {
		return fmt.Errorf("deleting metadata %s.%s: %w", scope, template, err)
	}

	cc.Statusf("Removed %s.%s from %s\n", scope, template, item.Name)

	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deepsave/pkg/codec"
	"github.com/matzehuels/deepsave/pkg/entity"
)

type getOpts struct {
	server  string
	noCache bool
	json    bool
}

func (c *CLI) getCommand() *cobra.Command {
	var opts getOpts

	cmd := &cobra.Command{
		Use:   "get CLASS OBJECT_ID",
		Short: "Fetch one object",
		Long: `Fetch an object from the REST backend, reading through the cache.
Without a server the configured store is read directly.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGet(cmd.Context(), entity.Reference{Class: args[0], ID: args[1]}, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "REST base URL")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the cache")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print raw JSON")

	return cmd
}

func (c *CLI) runGet(ctx context.Context, ref entity.Reference, opts getOpts) error {
	obj, err := c.fetch(ctx, ref, opts)
	if err != nil {
		return err
	}

	if opts.json {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(obj)
	}

	fmt.Fprintln(stdout, StyleTitle.Render(ref.String()))
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		printKeyValue(k, formatValue(obj[k]))
	}
	return nil
}

func (c *CLI) fetch(ctx context.Context, ref entity.Reference, opts getOpts) (map[string]any, error) {
	if opts.server == "" && c.cfg.Client.ServerURL == "" {
		st, err := openStore(ctx, c.cfg.Store)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		rec, err := st.Get(ctx, ref.Class, ref.ID)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", ref, err)
		}
		obj, _ := codec.Decode(map[string]any(rec.Data)).(map[string]any)
		obj["objectId"] = rec.ID
		obj["createdAt"] = rec.CreatedAt
		obj["updatedAt"] = rec.UpdatedAt
		return obj, nil
	}

	ch, err := openCache(c.cfg.Cache, opts.noCache)
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	client, err := c.newClient(opts.server, ch)
	if err != nil {
		return nil, err
	}
	return client.Fetch(ctx, ref)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case entity.Reference:
		return "→ " + x.String()
	case time.Time:
		return x.Format(time.RFC3339)
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(x))
	case string:
		return x
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

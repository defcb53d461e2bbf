package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deepsave/pkg/deepsave"
	"github.com/matzehuels/deepsave/pkg/entity"
	dsio "github.com/matzehuels/deepsave/pkg/io"
)

// saveOpts holds the flags for the save command.
type saveOpts struct {
	server     string // REST base URL; empty saves into the configured store
	output     string // write the report as JSON
	writeBack  string // write the document with assigned objectIds
	batchLimit int
}

func (c *CLI) saveCommand() *cobra.Command {
	var opts saveOpts

	cmd := &cobra.Command{
		Use:   "save FILE",
		Short: "Deep-save an object document",
		Long: `Save the root object of a JSON or YAML document together with every
unsaved object it links to. Children are created before their parents, and
objects of the same class that become ready together share one batch request.

Without --server (or client.server_url in the config) the objects are
written straight into the configured store.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runSave(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "REST base URL, e.g. http://localhost:1337/parse")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "write the save report as JSON")
	cmd.Flags().StringVarP(&opts.writeBack, "write-back", "w", "", "write the document with assigned objectIds (JSON or YAML)")
	cmd.Flags().IntVar(&opts.batchLimit, "batch-limit", 0, "max objects per batch request (default from config)")

	return cmd
}

func (c *CLI) runSave(ctx context.Context, path string, opts saveOpts) error {
	g, err := dsio.Import(path)
	if err != nil {
		return err
	}

	t, target, release, err := c.newTransport(ctx, opts.server)
	if err != nil {
		return err
	}
	defer release()

	saver := deepsave.New(t, deepsave.Options{
		BatchLimit: cmp.Or(opts.batchLimit, c.cfg.Save.BatchLimit),
		Logger:     c.Logger,
	})

	summary := newSaveLog(loggerFromContext(ctx), target)
	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Saving %s to %s...", path, target))
	spinner.Start()
	res, err := saver.Save(ctx, g.Root)
	spinner.Stop()
	if err != nil {
		summary.failed(err)
		printSaveError(g, err)
		return err
	}
	summary.done(res)

	entity.Apply(g.Root, res.Refs)
	rep := dsio.NewReport(g, res)

	printSuccess("Saved %s as %s", StyleTitle.Render(g.RootKey), StyleNumber.Render(res.Root.String()))
	printReport(rep)

	if opts.output != "" {
		if err := writeFile(opts.output, rep.WriteJSON); err != nil {
			return err
		}
		printFile(opts.output)
	}
	if opts.writeBack != "" {
		if err := g.Document().Export(opts.writeBack); err != nil {
			return err
		}
		printFile(opts.writeBack)
	}
	return nil
}

// printSaveError explains a failed save in terms of document keys.
func printSaveError(g *dsio.Graph, err error) {
	key := func(id entity.LocalID) string {
		for k, e := range g.Entities {
			if e.LocalID() == id {
				return k
			}
		}
		return string(id)
	}

	var (
		cycle *deepsave.CircularDependencyError
		child *deepsave.ChildSaveError
		enc   *deepsave.EncodingError
		tr    *deepsave.TransportError
	)
	switch {
	case errors.As(err, &cycle):
		printError("Circular dependency")
		for _, h := range cycle.Path {
			printDetail("%s %s (%s)", iconArrow, key(h.LocalID), h.Class)
		}
	case errors.As(err, &child):
		printError("%d object(s) failed to save; root not saved", len(child.Failures))
		for _, f := range child.Failures {
			printDetail("%s (%s): %v", key(f.LocalID), f.Class, f.Err)
		}
		if n := len(child.Persisted); n > 0 {
			printWarning("%d object(s) were created before the failure", n)
		}
	case errors.As(err, &enc):
		printError("Cannot encode %s (%s): %v", key(enc.LocalID), enc.Class, enc.Err)
	case errors.As(err, &tr):
		printError("%v", tr)
		if n := len(tr.Persisted); n > 0 {
			printWarning("%d object(s) were created before the failure", n)
		}
	}
}

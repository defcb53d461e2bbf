package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/deepsave/pkg/deepsave"
	"github.com/matzehuels/deepsave/pkg/entity"
	dsio "github.com/matzehuels/deepsave/pkg/io"
	"github.com/matzehuels/deepsave/pkg/render/nodelink"
)

// planOpts holds the flags for the plan command.
type planOpts struct {
	dot        string // write Graphviz DOT
	svg        string // write an SVG diagram
	detailed   bool
	batchLimit int
}

func (c *CLI) planCommand() *cobra.Command {
	var opts planOpts

	cmd := &cobra.Command{
		Use:   "plan FILE",
		Short: "Show the batches a save would send, without saving",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlan(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.dot, "dot", "", "write the plan as Graphviz DOT")
	cmd.Flags().StringVar(&opts.svg, "svg", "", "render the plan to an SVG file")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "include batch numbers and field counts in diagram labels")
	cmd.Flags().IntVar(&opts.batchLimit, "batch-limit", 0, "max objects per batch request (default from config)")

	return cmd
}

func (c *CLI) runPlan(ctx context.Context, path string, opts planOpts) error {
	g, err := dsio.Import(path)
	if err != nil {
		return err
	}

	limit := opts.batchLimit
	if limit <= 0 {
		limit = c.cfg.Save.BatchLimit
	}
	p, err := deepsave.New(nil, deepsave.Options{BatchLimit: limit}).Plan(g.Root)
	if err != nil {
		printSaveError(g, err)
		return err
	}
	loggerFromContext(ctx).Debug("planned", "objects", p.Objects(), "rounds", len(p.Rounds))

	keys := func(ids []entity.LocalID) string {
		names := make([]string, len(ids))
		for i, id := range ids {
			names[i], _ = g.Key(p.Entities[id])
		}
		return strings.Join(names, ", ")
	}

	var rows [][]string
	for _, r := range p.Rounds {
		for b, batch := range r.Batches {
			rows = append(rows, []string{strconv.Itoa(r.Round), strconv.Itoa(b + 1), batch.Class, keys(batch.Nodes)})
		}
	}
	rows = append(rows, []string{"root", "-", p.RootClass, g.RootKey})

	printInfo("%s objects, %s rounds, %s requests",
		StyleNumber.Render(strconv.Itoa(p.Objects())),
		StyleNumber.Render(strconv.Itoa(len(p.Rounds))),
		StyleNumber.Render(strconv.Itoa(p.Requests())))
	printPlanTable(rows)

	if opts.dot == "" && opts.svg == "" {
		printNextStep("Draw it", fmt.Sprintf("%s plan %s --svg plan.svg", appName, path))
		return nil
	}

	dot := nodelink.ToDOT(p, nodelink.Options{Detailed: opts.detailed})
	if opts.dot != "" {
		if err := os.WriteFile(opts.dot, []byte(dot), 0o644); err != nil {
			return err
		}
		printFile(opts.dot)
	}
	if opts.svg != "" {
		svg, err := nodelink.RenderSVG(dot)
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.svg, svg, 0o644); err != nil {
			return err
		}
		printFile(opts.svg)
	}
	return nil
}

// writeFile creates path and hands it to write.
func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/deepsave/pkg/deepsave"
	"github.com/matzehuels/deepsave/pkg/entity"
)

// Options configures diagram generation.
type Options struct {
	// Detailed adds the batch number and field count to node labels.
	Detailed bool
}

// palette colours batches within a round so same-request objects match.
var palette = []string{"#dbeafe", "#dcfce7", "#fef9c3", "#fce7f3", "#ede9fe", "#ffedd5"}

// ToDOT converts a plan to Graphviz DOT.
func ToDOT(p *deepsave.PlanResult, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph plan {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontname=\"Helvetica\", fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	fmt.Fprintf(&buf, "  %q [%s];\n", string(p.Root), strings.Join([]string{
		fmt.Sprintf("label=%q", label(p, p.Root, 0, opts.Detailed)),
		"penwidth=2",
	}, ", "))

	// Latest round first so clusters stack under the root.
	for i := len(p.Rounds) - 1; i >= 0; i-- {
		r := p.Rounds[i]
		fmt.Fprintf(&buf, "\n  subgraph cluster_round_%d {\n", r.Round)
		fmt.Fprintf(&buf, "    label=\"round %d\";\n    style=dashed;\n    color=grey;\n", r.Round)
		for b, batch := range r.Batches {
			color := palette[b%len(palette)]
			for _, id := range batch.Nodes {
				fmt.Fprintf(&buf, "    %q [label=%q, fillcolor=%q];\n", string(id), label(p, id, b+1, opts.Detailed), color)
			}
		}
		buf.WriteString("  }\n")
	}

	buf.WriteString("\n")
	for _, e := range p.Graph.Edges() {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From, e.To)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func label(p *deepsave.PlanResult, id entity.LocalID, batch int, detailed bool) string {
	e := p.Entities[id]
	short := string(id)
	if len(short) > 8 {
		short = short[:8]
	}
	l := e.Class + "\n" + short
	if !detailed {
		return l
	}
	if batch == 0 {
		return l + "\nroot commit\n" + strconv.Itoa(e.Len()) + " fields"
	}
	return fmt.Sprintf("%s\nbatch %d\n%d fields", l, batch, e.Len())
}

// RenderSVG renders DOT source to SVG using Graphviz.
func RenderSVG(dot string) ([]byte, error) {
	ctx := context.Background()
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces Graphviz's pt-sized root element with one
// that scales to its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}

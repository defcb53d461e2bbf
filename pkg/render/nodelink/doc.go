// Package nodelink draws a save plan as a node-link diagram.
//
// Each unsaved object becomes a box labelled with its class and local id.
// Boxes are grouped into one cluster per round, so reading the diagram
// bottom-up follows the order in which batches are sent; the root sits
// alone above the last round. Edges point from an object to the children
// it must wait for.
//
//	p, _ := deepsave.Plan(root, nil)
//	dot := nodelink.ToDOT(p, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(dot)
//
// The DOT source can also be saved and processed with external Graphviz
// tools. [RenderSVG] uses [github.com/goccy/go-graphviz], which runs
// Graphviz in-process.
package nodelink

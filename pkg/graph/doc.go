// Package graph builds the reference graph of a local mirror.
//
// The graph is read from the narinfo documents already in the mirror; no
// network access is involved. Starting from a set of root identifiers,
// [Build] follows References edges the same way a mirror run does. Roots
// or references whose documents are absent become nodes marked Missing, so
// an incomplete mirror still produces a graph that shows where it stops.
//
// # Output Formats
//
// Graphs export as node-link JSON:
//
//	{
//	  "nodes": [{"id": "0001w2k3...", "name": "glibc-2.33"}],
//	  "edges": [{"from": "0001w2k3...", "to": "3qnm3nwj..."}]
//	}
//
// as Graphviz DOT with [Graph.ToDOT], and as SVG with [RenderSVG], which
// runs Graphviz through go-graphviz without any system installation.
//
// # Usage
//
//	g, err := graph.Build(mirror.NewLayout("/srv/mirror"), roots)
//	if err != nil {
//	    return err
//	}
//	svg, err := graph.RenderSVG(ctx, g.ToDOT(graph.DOTOptions{}))
package graph

package graph

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/matzehuels/nixmirror/pkg/errors"
	"github.com/matzehuels/nixmirror/pkg/mirror"
	"github.com/matzehuels/nixmirror/pkg/narinfo"
)

// Graph is the reference graph of a mirror in node-link form.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is one package identifier.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`      // Store object name without the identifier
	URL      string `json:"url,omitempty"`       // Content blob location
	FileSize int64  `json:"file_size,omitempty"` // Content blob size in bytes
	Missing  bool   `json:"missing,omitempty"`   // No narinfo document in the mirror
}

// Label returns the name if known, otherwise the identifier.
func (n *Node) Label() string {
	if n.Name != "" {
		return n.Name
	}
	return n.ID
}

// Edge is a reference from one identifier to another.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Build walks the narinfo documents under layout from roots.
//
// Nodes and edges are sorted for deterministic output. Self references are
// dropped. A document that exists but cannot be parsed is an error.
func Build(layout mirror.Layout, roots []string) (*Graph, error) {
	nodes := make(map[string]*Node)
	var edges []Edge

	queue := make([]string, 0, len(roots))
	for _, id := range roots {
		if _, ok := nodes[id]; ok {
			continue
		}
		nodes[id] = &Node{ID: id}
		queue = append(queue, id)
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		info, err := load(layout, id)
		if err != nil {
			return nil, err
		}
		node := nodes[id]
		if info == nil {
			node.Missing = true
			continue
		}
		node.Name = nameOf(info)
		node.URL = info.URL
		node.FileSize = info.FileSize

		for _, ref := range info.References {
			if ref == id {
				continue
			}
			edges = append(edges, Edge{From: id, To: ref})
			if _, ok := nodes[ref]; ok {
				continue
			}
			nodes[ref] = &Node{ID: ref}
			queue = append(queue, ref)
		}
	}

	g := &Graph{
		Nodes: make([]Node, 0, len(nodes)),
		Edges: edges,
	}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, *n)
	}
	slices.SortFunc(g.Nodes, func(a, b Node) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(g.Edges, func(a, b Edge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
	return g, nil
}

// load returns the parsed document of id, or nil if it is not in the mirror.
func load(layout mirror.Layout, id string) (*narinfo.Info, error) {
	p, err := layout.MetadataPath(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFilesystem, err, "open %s", p)
	}
	defer f.Close()

	info, err := narinfo.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	return info, nil
}

func nameOf(info *narinfo.Info) string {
	if info.StorePath == "" {
		return ""
	}
	_, name, _ := strings.Cut(path.Base(info.StorePath), "-")
	return name
}

// Missing returns the identifiers without a document in the mirror.
func (g *Graph) Missing() []string {
	var ids []string
	for _, n := range g.Nodes {
		if n.Missing {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

// WriteJSON writes g as indented node-link JSON.
func (g *Graph) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(g)
}

// ReadJSON reads a graph written by WriteJSON.
func ReadJSON(r io.Reader) (*Graph, error) {
	var g Graph
	if err := json.NewDecoder(r).Decode(&g); err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, err, "decode graph")
	}
	return &g, nil
}

// Package hierarchy indexes the optional hierarchy export and resolves
// human-readable breadcrumbs for category keys.
package hierarchy

import (
	"io"
	"strings"

	"github.com/cognicore/pimsense/pkg/pimsense/stepxml"
)

// Separator joins breadcrumb segments.
const Separator = " > "

// Labels is the department/category/subcategory triple a node declares.
type Labels struct {
	Department  string `json:"department,omitempty"`
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
}

// Empty reports whether no label resolved.
func (l Labels) Empty() bool {
	return l.Department == "" && l.Category == "" && l.Subcategory == ""
}

// Index is a node map keyed by node id, merged across any number of
// hierarchy export streams.
type Index struct {
	nodes map[string]*stepxml.Node
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{nodes: make(map[string]*stepxml.Node)}
}

// Len returns the number of distinct nodes.
func (ix *Index) Len() int { return len(ix.nodes) }

// Node returns the node for id.
func (ix *Index) Node(id string) (*stepxml.Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// IDs returns all node ids in no particular order.
func (ix *Index) IDs() []string {
	out := make([]string, 0, len(ix.nodes))
	for id := range ix.nodes {
		out = append(out, id)
	}
	return out
}

// Add merges one node into the index. When the id already exists, later
// non-empty scalar fields win and attribute links merge by attribute id,
// last writer keeping the metadata.
func (ix *Index) Add(n *stepxml.Node) {
	ex, ok := ix.nodes[n.ID]
	if !ok {
		ix.nodes[n.ID] = n
		return
	}
	if n.UserType != "" {
		ex.UserType = n.UserType
	}
	if n.ParentID != "" {
		ex.ParentID = n.ParentID
	}
	if n.Name != "" {
		ex.Name = n.Name
	}
	for k, v := range n.Values {
		if ex.Values == nil {
			ex.Values = make(map[string]string)
		}
		ex.Values[k] = v
	}
	if len(n.Links) > 0 {
		byAttr := make(map[string]int, len(ex.Links))
		for i, l := range ex.Links {
			byAttr[l.AttributeID] = i
		}
		for _, l := range n.Links {
			if i, ok := byAttr[l.AttributeID]; ok {
				ex.Links[i] = l
			} else {
				ex.Links = append(ex.Links, l)
			}
		}
	}
}

// Consume drains a node reader into the index and returns how many nodes
// were read.
func (ix *Index) Consume(nr *stepxml.NodeReader) (int, error) {
	n := 0
	for {
		node, err := nr.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		ix.Add(node)
		n++
	}
}

// Breadcrumb walks parent pointers upward collecting display names, roots
// the path, and joins it. The walk keeps a visited set: exports have been
// seen with cyclic parent chains, and a cycle ends the walk with whatever
// names were collected. When nothing resolves the raw id is returned.
func (ix *Index) Breadcrumb(id string) string {
	var parts []string
	seen := make(map[string]struct{})
	cur := id
	for cur != "" {
		if _, dup := seen[cur]; dup {
			break
		}
		seen[cur] = struct{}{}
		n, ok := ix.nodes[cur]
		if !ok {
			break
		}
		name := n.Name
		if name == "" {
			name = n.ID
		}
		parts = append(parts, name)
		cur = n.ParentID
	}
	if len(parts) == 0 {
		return id
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, Separator)
}

// Labels returns the label triple a node declares through the given
// attribute ids, or zero labels for unknown nodes.
func (ix *Index) Labels(id, deptAttr, catAttr, subAttr string) Labels {
	n, ok := ix.nodes[id]
	if !ok || n.Values == nil {
		return Labels{}
	}
	return Labels{
		Department:  n.Values[deptAttr],
		Category:    n.Values[catAttr],
		Subcategory: n.Values[subAttr],
	}
}

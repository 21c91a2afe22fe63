// Package workflow holds the job template graph, role discovery over its
// nodes, and parameter binding into the discovered nodes.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"os"
)

// Node is one processing node of a job template.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Ref is a link to another node's output, encoded in templates as
// [node_id, output_index].
type Ref struct {
	NodeID string
	Output int
}

// AsRef reports whether an input value is a link rather than a literal.
func AsRef(v any) (Ref, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) != 2 {
		return Ref{}, false
	}
	id, ok := arr[0].(string)
	if !ok {
		return Ref{}, false
	}
	switch idx := arr[1].(type) {
	case json.Number:
		n, err := idx.Int64()
		if err != nil {
			return Ref{}, false
		}
		return Ref{NodeID: id, Output: int(n)}, true
	case float64:
		return Ref{NodeID: id, Output: int(idx)}, true
	case int:
		return Ref{NodeID: id, Output: idx}, true
	}
	return Ref{}, false
}

// Graph is a job template: nodes keyed by id, kept in document order so role
// discovery is deterministic.
type Graph struct {
	order []string
	nodes map[string]*Node
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Add appends a node. Node ids are unique within a graph.
func (g *Graph) Add(id string, n *Node) error {
	if _, ok := g.nodes[id]; ok {
		return fmt.Errorf("duplicate node id %q", id)
	}
	if n.Inputs == nil {
		n.Inputs = make(map[string]any)
	}
	g.order = append(g.order, id)
	g.nodes[id] = n
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// All yields nodes in document order.
func (g *Graph) All() iter.Seq2[string, *Node] {
	return func(yield func(string, *Node) bool) {
		for _, id := range g.order {
			if !yield(id, g.nodes[id]) {
				return
			}
		}
	}
}

// Clone returns a deep copy that shares no mutable state with g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		order: append([]string(nil), g.order...),
		nodes: make(map[string]*Node, len(g.nodes)),
	}
	for id, n := range g.nodes {
		c.nodes[id] = &Node{
			ClassType: n.ClassType,
			Inputs:    cloneValue(n.Inputs).(map[string]any),
			Meta:      cloneMeta(n.Meta),
		}
	}
	return c
}

func cloneMeta(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return cloneValue(m).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

// LoadGraph reads a job template document from disk.
func LoadGraph(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow: %w", err)
	}
	g, err := ParseGraph(data)
	if err != nil {
		return nil, fmt.Errorf("parsing workflow %s: %w", path, err)
	}
	return g, nil
}

// ParseGraph decodes a job template document. Numbers are kept as
// json.Number so large seeds survive a round trip.
func ParseGraph(data []byte) (*Graph, error) {
	g := NewGraph()
	if err := g.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return g, nil
}

// UnmarshalJSON decodes the top-level object key by key to keep node order.
func (g *Graph) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("reading graph: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("graph must be a JSON object")
	}

	g.order = nil
	g.nodes = make(map[string]*Node)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("reading node id: %w", err)
		}
		id, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var n Node
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("decoding node %s: %w", id, err)
		}
		if n.ClassType == "" {
			return fmt.Errorf("node %s has no class_type", id)
		}
		if err := g.Add(id, &n); err != nil {
			return err
		}
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("reading graph end: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("trailing data after graph")
	}
	return nil
}

// MarshalJSON encodes nodes in document order.
func (g *Graph) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range g.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		node, err := json.Marshal(g.nodes[id])
		if err != nil {
			return nil, fmt.Errorf("encoding node %s: %w", id, err)
		}
		buf.Write(node)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

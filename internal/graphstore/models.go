// Package graphstore defines the graph persistence contract and the node, relation and
// match types shared by the memory, SQLite and PostgreSQL implementations.
package graphstore

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound             = errors.New("graphstore: node not found")
	ErrRelationTableMissing = errors.New("graphstore: relation table missing")
	ErrInvalidNode          = errors.New("graphstore: invalid node")
)

// Node is a labeled vertex with string properties. (Label, ID) is its identity.
type Node struct {
	ID    string
	Label string
	Props map[string]string
}

// Prop returns the property value, or "" if unset.
func (n *Node) Prop(key string) string {
	if n == nil || n.Props == nil {
		return ""
	}
	return n.Props[key]
}

// SetProp sets a property, allocating the map when needed.
func (n *Node) SetProp(key, value string) {
	if n.Props == nil {
		n.Props = make(map[string]string)
	}
	n.Props[key] = value
}

// Clone returns a deep copy so stores never alias caller-owned maps.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{ID: n.ID, Label: n.Label}
	if n.Props != nil {
		out.Props = make(map[string]string, len(n.Props))
		for k, v := range n.Props {
			out.Props[k] = v
		}
	}
	return out
}

// Validate reports whether the node can be persisted.
func (n *Node) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if n.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidNode)
	}
	if n.Label == "" {
		return fmt.Errorf("%w: empty label for %s", ErrInvalidNode, n.ID)
	}
	return nil
}

// Relation is a directed labeled edge between two nodes.
type Relation struct {
	FromLabel string
	FromID    string
	ToLabel   string
	ToID      string
	Label     string
}

// Match selects nodes with Label whose properties equal Props. When Without is set,
// nodes having at least one incoming Without.Relation edge from a node matching
// Without.FromLabel and Without.FromProps are excluded.
type Match struct {
	Label   string
	Props   map[string]string
	Without *Incoming
}

// Incoming describes the negated incoming-edge pattern of a Match.
type Incoming struct {
	Relation  string
	FromLabel string
	FromProps map[string]string
}

// Matches reports whether n satisfies the label and property part of the match.
func (m Match) Matches(n *Node) bool {
	if n == nil || n.Label != m.Label {
		return false
	}
	return propsMatch(n, m.Props)
}

// MatchesSource reports whether n matches the upstream side of the negated pattern.
func (in *Incoming) MatchesSource(n *Node) bool {
	if in == nil || n == nil || n.Label != in.FromLabel {
		return false
	}
	return propsMatch(n, in.FromProps)
}

func propsMatch(n *Node, want map[string]string) bool {
	for k, v := range want {
		if n.Prop(k) != v {
			return false
		}
	}
	return true
}

// SortedKeys returns map keys in stable order; SQL implementations use it to build
// deterministic predicates.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RelationTableKey identifies a provisioned (fromLabel, toLabel, relation) shape.
func RelationTableKey(fromLabel, toLabel, relation string) string {
	return fromLabel + "-[" + relation + "]->" + toLabel
}

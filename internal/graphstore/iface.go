package graphstore

import "context"

// Store is the property-graph persistence interface the crew schedules against.
// Implementations: *memory.Store, *sqlite.Store and *postgres.Store.
type Store interface {
	// Nodes
	InsertNode(ctx context.Context, n *Node) error
	GetNode(ctx context.Context, label, id string) (*Node, error)
	ListNodes(ctx context.Context, label string) ([]*Node, error)

	// Relations
	EnsureRelationTable(ctx context.Context, fromLabel, toLabel, relation string) error
	CreateRelation(ctx context.Context, from, to *Node, relation string) error
	DeleteRelation(ctx context.Context, from, to *Node, relation string) error
	ListRelations(ctx context.Context, relation string) ([]Relation, error)

	// Query runs a declarative pattern match and returns the matching nodes ordered by insertion.
	Query(ctx context.Context, m Match) ([]*Node, error)

	// Lifecycle
	Close() error
}

// Package memory is an in-memory adjacency-list implementation of graphstore.Store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
)

type nodeKey struct {
	label string
	id    string
}

// Store keeps nodes in insertion order and relations as outgoing/incoming adjacency lists.
type Store struct {
	mu       sync.RWMutex
	nodes    map[nodeKey]*graphstore.Node
	order    []nodeKey
	tables   map[string]bool
	outgoing map[nodeKey][]graphstore.Relation
	incoming map[nodeKey][]graphstore.Relation
	rels     []graphstore.Relation // creation order
	closed   bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		nodes:    make(map[nodeKey]*graphstore.Node),
		tables:   make(map[string]bool),
		outgoing: make(map[nodeKey][]graphstore.Relation),
		incoming: make(map[nodeKey][]graphstore.Relation),
	}
}

func (s *Store) InsertNode(ctx context.Context, n *graphstore.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	k := nodeKey{n.Label, n.ID}
	if _, ok := s.nodes[k]; !ok {
		s.order = append(s.order, k)
	}
	s.nodes[k] = n.Clone()
	return nil
}

func (s *Store) GetNode(ctx context.Context, label, id string) (*graphstore.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[nodeKey{label, id}]
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", graphstore.ErrNotFound, label, id)
	}
	return n.Clone(), nil
}

func (s *Store) ListNodes(ctx context.Context, label string) ([]*graphstore.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graphstore.Node
	for _, k := range s.order {
		if k.label == label {
			out = append(out, s.nodes[k].Clone())
		}
	}
	return out, nil
}

func (s *Store) EnsureRelationTable(ctx context.Context, fromLabel, toLabel, relation string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.tables[graphstore.RelationTableKey(fromLabel, toLabel, relation)] = true
	return nil
}

func (s *Store) CreateRelation(ctx context.Context, from, to *graphstore.Node, relation string) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if !s.tables[graphstore.RelationTableKey(from.Label, to.Label, relation)] {
		return fmt.Errorf("%w: %s", graphstore.ErrRelationTableMissing, graphstore.RelationTableKey(from.Label, to.Label, relation))
	}
	fk, tk := nodeKey{from.Label, from.ID}, nodeKey{to.Label, to.ID}
	if _, ok := s.nodes[fk]; !ok {
		return fmt.Errorf("%w: %s %s", graphstore.ErrNotFound, from.Label, from.ID)
	}
	if _, ok := s.nodes[tk]; !ok {
		return fmt.Errorf("%w: %s %s", graphstore.ErrNotFound, to.Label, to.ID)
	}
	rel := graphstore.Relation{FromLabel: from.Label, FromID: from.ID, ToLabel: to.Label, ToID: to.ID, Label: relation}
	for _, r := range s.outgoing[fk] {
		if r == rel {
			return nil
		}
	}
	s.outgoing[fk] = append(s.outgoing[fk], rel)
	s.incoming[tk] = append(s.incoming[tk], rel)
	s.rels = append(s.rels, rel)
	return nil
}

func (s *Store) DeleteRelation(ctx context.Context, from, to *graphstore.Node, relation string) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rel := graphstore.Relation{FromLabel: from.Label, FromID: from.ID, ToLabel: to.Label, ToID: to.ID, Label: relation}
	fk, tk := nodeKey{from.Label, from.ID}, nodeKey{to.Label, to.ID}
	s.outgoing[fk] = removeRelation(s.outgoing[fk], rel)
	s.incoming[tk] = removeRelation(s.incoming[tk], rel)
	s.rels = removeRelation(s.rels, rel)
	return nil
}

func removeRelation(rels []graphstore.Relation, rel graphstore.Relation) []graphstore.Relation {
	out := rels[:0]
	for _, r := range rels {
		if r != rel {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) ListRelations(ctx context.Context, relation string) ([]graphstore.Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []graphstore.Relation
	for _, r := range s.rels {
		if r.Label == relation {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, m graphstore.Match) ([]*graphstore.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*graphstore.Node
	for _, k := range s.order {
		n := s.nodes[k]
		if !m.Matches(n) {
			continue
		}
		if m.Without != nil && s.hasBlockingUpstream(k, m.Without) {
			continue
		}
		out = append(out, n.Clone())
	}
	return out, nil
}

func (s *Store) hasBlockingUpstream(k nodeKey, in *graphstore.Incoming) bool {
	for _, r := range s.incoming[k] {
		if r.Label != in.Relation {
			continue
		}
		up, ok := s.nodes[nodeKey{r.FromLabel, r.FromID}]
		if ok && in.MatchesSource(up) {
			return true
		}
	}
	return false
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var errClosed = errors.New("graphstore: memory store closed")

// Package storetest is the behavioural suite every graphstore.Store implementation runs.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
)

// Run exercises open() against the graphstore.Store contract. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) graphstore.Store) {
	t.Run("InsertNodeUpsert", func(t *testing.T) { testInsertNodeUpsert(t, open(t)) })
	t.Run("RelationTableRequired", func(t *testing.T) { testRelationTableRequired(t, open(t)) })
	t.Run("RelationsIdempotentAndDeletable", func(t *testing.T) { testRelations(t, open(t)) })
	t.Run("QueryWithoutIncoming", func(t *testing.T) { testQuery(t, open(t)) })
}

func must(t *testing.T, what string, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

func node(label, id string, props map[string]string) *graphstore.Node {
	return &graphstore.Node{ID: id, Label: label, Props: props}
}

func testInsertNodeUpsert(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	if err := s.InsertNode(ctx, node("R", "a", map[string]string{"done": "false"})); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	if err := s.InsertNode(ctx, node("R", "b", nil)); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	if err := s.InsertNode(ctx, node("R", "a", map[string]string{"done": "true"})); err != nil {
		t.Fatalf("InsertNode upsert: %v", err)
	}
	got, err := s.GetNode(ctx, "R", "a")
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if got.Prop("done") != "true" {
		t.Errorf("upsert did not replace props: %+v", got)
	}
	nodes, err := s.ListNodes(ctx, "R")
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 2 || nodes[0].ID != "a" || nodes[1].ID != "b" {
		t.Errorf("ListNodes order: %+v", nodes)
	}
	if _, err := s.GetNode(ctx, "R", "missing"); !errors.Is(err, graphstore.ErrNotFound) {
		t.Errorf("GetNode missing: %v", err)
	}
	if err := s.InsertNode(ctx, node("", "x", nil)); !errors.Is(err, graphstore.ErrInvalidNode) {
		t.Errorf("InsertNode without label: %v", err)
	}
}

func testRelationTableRequired(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	a, b := node("R", "a", nil), node("R", "b", nil)
	must(t, "InsertNode", s.InsertNode(ctx, a))
	must(t, "InsertNode", s.InsertNode(ctx, b))
	if err := s.CreateRelation(ctx, a, b, "up"); !errors.Is(err, graphstore.ErrRelationTableMissing) {
		t.Fatalf("expected ErrRelationTableMissing, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.EnsureRelationTable(ctx, "R", "R", "up"); err != nil {
			t.Fatalf("EnsureRelationTable #%d: %v", i, err)
		}
	}
	if err := s.CreateRelation(ctx, a, b, "up"); err != nil {
		t.Fatalf("CreateRelation: %v", err)
	}
	if err := s.CreateRelation(ctx, a, node("R", "ghost", nil), "up"); !errors.Is(err, graphstore.ErrNotFound) {
		t.Errorf("relation to missing node: %v", err)
	}
}

func testRelations(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	a, b, c := node("R", "a", nil), node("R", "b", nil), node("R", "c", nil)
	for _, n := range []*graphstore.Node{a, b, c} {
		must(t, "InsertNode", s.InsertNode(ctx, n))
	}
	must(t, "EnsureRelationTable", s.EnsureRelationTable(ctx, "R", "R", "up"))
	must(t, "CreateRelation", s.CreateRelation(ctx, a, b, "up"))
	must(t, "CreateRelation", s.CreateRelation(ctx, a, b, "up"))
	must(t, "CreateRelation", s.CreateRelation(ctx, b, c, "up"))
	rels, err := s.ListRelations(ctx, "up")
	if err != nil {
		t.Fatalf("ListRelations: %v", err)
	}
	if len(rels) != 2 || rels[0].FromID != "a" || rels[1].ToID != "c" {
		t.Fatalf("relations: %+v", rels)
	}
	if err := s.DeleteRelation(ctx, a, b, "up"); err != nil {
		t.Fatalf("DeleteRelation: %v", err)
	}
	rels, err = s.ListRelations(ctx, "up")
	must(t, "ListRelations", err)
	if len(rels) != 1 || rels[0].FromID != "b" {
		t.Errorf("after delete: %+v", rels)
	}
	other, err := s.ListRelations(ctx, "other")
	must(t, "ListRelations other", err)
	if len(other) != 0 {
		t.Errorf("unrelated label: %+v", other)
	}
}

func testQuery(t *testing.T, s graphstore.Store) {
	ctx := context.Background()
	pending := map[string]string{"done": "false"}
	a := node("R", "a", map[string]string{"done": "false"})
	b := node("R", "b", map[string]string{"done": "false"})
	c := node("R", "c", map[string]string{"done": "false"})
	d := node("R", "d", map[string]string{"done": "true"})
	for _, n := range []*graphstore.Node{a, b, c, d} {
		if err := s.InsertNode(ctx, n); err != nil {
			t.Fatalf("InsertNode: %v", err)
		}
	}
	must(t, "InsertNode", s.InsertNode(ctx, node("T", "t1", map[string]string{"done": "false"})))
	must(t, "EnsureRelationTable", s.EnsureRelationTable(ctx, "R", "R", "up"))
	must(t, "CreateRelation", s.CreateRelation(ctx, a, b, "up"))
	must(t, "CreateRelation", s.CreateRelation(ctx, d, c, "up"))

	m := graphstore.Match{
		Label:   "R",
		Props:   pending,
		Without: &graphstore.Incoming{Relation: "up", FromLabel: "R", FromProps: pending},
	}
	got, err := s.Query(ctx, m)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ids := nodeIDs(got); ids != "a,c" {
		t.Fatalf("available: %s", ids)
	}

	a.SetProp("done", "true")
	must(t, "InsertNode", s.InsertNode(ctx, a))
	got, err = s.Query(ctx, m)
	must(t, "Query after a done", err)
	if ids := nodeIDs(got); ids != "b,c" {
		t.Fatalf("after a done: %s", ids)
	}

	got, err = s.Query(ctx, graphstore.Match{Label: "R"})
	must(t, "Query label only", err)
	if len(got) != 4 {
		t.Errorf("label-only match: %d", len(got))
	}
}

func nodeIDs(nodes []*graphstore.Node) string {
	out := ""
	for i, n := range nodes {
		if i > 0 {
			out += ","
		}
		out += n.ID
	}
	return out
}

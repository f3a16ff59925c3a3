package memory

import (
	"context"
	"testing"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/graphstore/storetest"
)

func TestStore_contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) graphstore.Store { return New() })
}

func TestStore_nodesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	n := &graphstore.Node{ID: "a", Label: "R", Props: map[string]string{"done": "false"}}
	if err := s.InsertNode(ctx, n); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	n.SetProp("done", "true")
	got, _ := s.GetNode(ctx, "R", "a")
	if got.Prop("done") != "false" {
		t.Error("store aliases caller node")
	}
	got.SetProp("done", "true")
	again, _ := s.GetNode(ctx, "R", "a")
	if again.Prop("done") != "false" {
		t.Error("store returns internal node")
	}
}

func TestStore_closed(t *testing.T) {
	s := New()
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.InsertNode(context.Background(), &graphstore.Node{ID: "a", Label: "R"}); err == nil {
		t.Fatal("expected error after Close")
	}
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/graphstore/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := OpenDSN(filepath.Join(t.TempDir(), "graph.sqlite"))
	if err != nil {
		t.Fatalf("OpenDSN: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) graphstore.Store { return openTemp(t) })
}

func TestOpen_createsProtectedDir(t *testing.T) {
	home := t.TempDir()
	s, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()
	if err := s.InsertNode(context.Background(), &graphstore.Node{ID: "a", Label: "R"}); err != nil {
		t.Fatalf("InsertNode: %v", err)
	}
	s2, err := Open(home)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s2.Close() }()
	if _, err := s2.GetNode(context.Background(), "R", "a"); err != nil {
		t.Errorf("node not persisted: %v", err)
	}
}

func TestMigrate_idempotent(t *testing.T) {
	s := openTemp(t)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	v, err := parseMigrationVersion("001_init.sql")
	if err != nil || v != 1 {
		t.Errorf("got %d %v", v, err)
	}
	if _, err := parseMigrationVersion("init.sql"); err == nil {
		t.Error("expected error for unnumbered migration")
	}
}

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/iSevenDays/motleycrew/internal/graphstore/storetest"
)

func TestStore_contract(t *testing.T) {
	dsn := os.Getenv("MOTLEYCREW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MOTLEYCREW_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) graphstore.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := s.Pool.Exec(ctx, `TRUNCATE relations, relation_tables, nodes RESTART IDENTITY CASCADE`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestOpen_requiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := Open(context.Background(), ""); err == nil {
		t.Fatal("expected error without DSN")
	}
}

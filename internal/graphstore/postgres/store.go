package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the PostgreSQL implementation of graphstore.Store.
type Store struct {
	Pool *pgxpool.Pool
}

// Open opens a PostgreSQL connection pool and runs migrations. dsn may be empty to use DATABASE_URL env.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 20
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{Pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	s.Pool.Close()
	return nil
}

// Migrate runs pending migrations (only those not already in schema_migrations).
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at BIGINT NOT NULL)`); err != nil {
		return err
	}
	applied := make(map[int]bool)
	rows, err := s.Pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	type mig struct {
		version   int
		name, sql string
	}
	var migs []mig
	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") {
			continue
		}
		v, err := strconv.Atoi(strings.SplitN(strings.TrimSuffix(f.Name(), ".sql"), "_", 2)[0])
		if err != nil {
			continue
		}
		if applied[v] {
			continue
		}
		body, err := migrationsFS.ReadFile("migrations/" + f.Name())
		if err != nil {
			return err
		}
		migs = append(migs, mig{v, f.Name(), string(body)})
	}
	sort.Slice(migs, func(i, j int) bool { return migs[i].version < migs[j].version })

	for _, m := range migs {
		if _, err := s.Pool.Exec(ctx, m.sql); err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if _, err := s.Pool.Exec(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT (version) DO NOTHING`, m.version, time.Now().Unix()); err != nil {
			return err
		}
	}
	return nil
}

var dialect = graphstore.Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Prop: func(alias, ph string) string {
		return fmt.Sprintf("(%s.props ->> %s::text)", alias, ph)
	},
	PropArg: func(key string) any { return key },
}

func (s *Store) InsertNode(ctx context.Context, n *graphstore.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	props, err := graphstore.EncodeProps(n.Props)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	_, err = s.Pool.Exec(ctx, `INSERT INTO nodes(label, node_id, props, created_at, updated_at) VALUES($1, $2, $3::jsonb, $4, $4)
ON CONFLICT (label, node_id) DO UPDATE SET props = EXCLUDED.props, updated_at = EXCLUDED.updated_at`,
		n.Label, n.ID, props, now)
	return err
}

func (s *Store) GetNode(ctx context.Context, label, id string) (*graphstore.Node, error) {
	row := s.Pool.QueryRow(ctx, `SELECT node_id, label, props::text FROM nodes WHERE label = $1 AND node_id = $2`, label, id)
	n, err := scanNode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", graphstore.ErrNotFound, label, id)
		}
		return nil, err
	}
	return n, nil
}

func (s *Store) ListNodes(ctx context.Context, label string) ([]*graphstore.Node, error) {
	rows, err := s.Pool.Query(ctx, `SELECT node_id, label, props::text FROM nodes WHERE label = $1 ORDER BY seq ASC`, label)
	if err != nil {
		return nil, err
	}
	return scanNodes(rows)
}

func (s *Store) EnsureRelationTable(ctx context.Context, fromLabel, toLabel, relation string) error {
	_, err := s.Pool.Exec(ctx, `INSERT INTO relation_tables(from_label, to_label, relation, created_at) VALUES($1, $2, $3, $4)
ON CONFLICT (from_label, to_label, relation) DO NOTHING`, fromLabel, toLabel, relation, time.Now().Unix())
	return err
}

func (s *Store) CreateRelation(ctx context.Context, from, to *graphstore.Node, relation string) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM relation_tables WHERE from_label=$1 AND to_label=$2 AND relation=$3)`,
		from.Label, to.Label, relation).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", graphstore.ErrRelationTableMissing, graphstore.RelationTableKey(from.Label, to.Label, relation))
	}
	for _, end := range []*graphstore.Node{from, to} {
		if _, err := s.GetNode(ctx, end.Label, end.ID); err != nil {
			return err
		}
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO relations(from_label, from_id, to_label, to_id, relation, created_at) VALUES($1, $2, $3, $4, $5, $6)
ON CONFLICT (from_label, from_id, to_label, to_id, relation) DO NOTHING`,
		from.Label, from.ID, to.Label, to.ID, relation, time.Now().Unix())
	return err
}

func (s *Store) DeleteRelation(ctx context.Context, from, to *graphstore.Node, relation string) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM relations WHERE from_label=$1 AND from_id=$2 AND to_label=$3 AND to_id=$4 AND relation=$5`,
		from.Label, from.ID, to.Label, to.ID, relation)
	return err
}

func (s *Store) ListRelations(ctx context.Context, relation string) ([]graphstore.Relation, error) {
	rows, err := s.Pool.Query(ctx, `SELECT from_label, from_id, to_label, to_id, relation FROM relations WHERE relation = $1 ORDER BY seq ASC`, relation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []graphstore.Relation
	for rows.Next() {
		var r graphstore.Relation
		if err := rows.Scan(&r.FromLabel, &r.FromID, &r.ToLabel, &r.ToID, &r.Label); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Query(ctx context.Context, m graphstore.Match) ([]*graphstore.Node, error) {
	q, args := graphstore.MatchSQL(m, dialect)
	q = strings.Replace(q, "SELECT n.node_id, n.label, n.props FROM", "SELECT n.node_id, n.label, n.props::text FROM", 1)
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanNodes(rows)
}

func scanNode(row pgx.Row) (*graphstore.Node, error) {
	var (
		n     graphstore.Node
		props string
	)
	if err := row.Scan(&n.ID, &n.Label, &props); err != nil {
		return nil, err
	}
	p, err := graphstore.DecodeProps([]byte(props))
	if err != nil {
		return nil, err
	}
	n.Props = p
	return &n, nil
}

func scanNodes(rows pgx.Rows) ([]*graphstore.Node, error) {
	defer rows.Close()
	var out []*graphstore.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

var _ graphstore.Store = (*Store)(nil)

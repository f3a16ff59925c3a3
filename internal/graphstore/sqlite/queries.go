package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iSevenDays/motleycrew/internal/graphstore"
)

var dialect = graphstore.Dialect{
	Placeholder: func(int) string { return "?" },
	Prop: func(alias, ph string) string {
		return fmt.Sprintf("json_extract(%s.props, %s)", alias, ph)
	},
	PropArg: func(key string) any { return `$."` + key + `"` },
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
	_, err = s.stmtUpsertNode.ExecContext(ctx, n.Label, n.ID, props, now, now)
	return err
}

func (s *Store) GetNode(ctx context.Context, label, id string) (*graphstore.Node, error) {
	n, err := scanNode(s.stmtGetNode.QueryRowContext(ctx, label, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", graphstore.ErrNotFound, label, id)
		}
		return nil, err
	}
	return n, nil
}

func (s *Store) ListNodes(ctx context.Context, label string) ([]*graphstore.Node, error) {
	rows, err := s.stmtListNodes.QueryContext(ctx, label)
	if err != nil {
		return nil, err
	}
	return scanNodes(rows)
}

func (s *Store) EnsureRelationTable(ctx context.Context, fromLabel, toLabel, relation string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT OR IGNORE INTO relation_tables(from_label, to_label, relation, created_at) VALUES(?, ?, ?, ?)`,
		fromLabel, toLabel, relation, time.Now().Unix())
	return err
}

func (s *Store) CreateRelation(ctx context.Context, from, to *graphstore.Node, relation string) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	var n int
	if err := s.stmtHasTable.QueryRowContext(ctx, from.Label, to.Label, relation).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", graphstore.ErrRelationTableMissing, graphstore.RelationTableKey(from.Label, to.Label, relation))
	}
	for _, end := range []*graphstore.Node{from, to} {
		if _, err := s.GetNode(ctx, end.Label, end.ID); err != nil {
			return err
		}
	}
	_, err := s.stmtInsertRel.ExecContext(ctx, from.Label, from.ID, to.Label, to.ID, relation, time.Now().Unix())
	return err
}

func (s *Store) DeleteRelation(ctx context.Context, from, to *graphstore.Node, relation string) error {
	if err := from.Validate(); err != nil {
		return err
	}
	if err := to.Validate(); err != nil {
		return err
	}
	_, err := s.DB.ExecContext(ctx, `DELETE FROM relations WHERE from_label=? AND from_id=? AND to_label=? AND to_id=? AND relation=?`,
		from.Label, from.ID, to.Label, to.ID, relation)
	return err
}

func (s *Store) ListRelations(ctx context.Context, relation string) ([]graphstore.Relation, error) {
	rows, err := s.stmtListRelation.QueryContext(ctx, relation)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
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
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanNodes(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*graphstore.Node, error) {
	var (
		n     graphstore.Node
		props []byte
	)
	if err := row.Scan(&n.ID, &n.Label, &props); err != nil {
		return nil, err
	}
	p, err := graphstore.DecodeProps(props)
	if err != nil {
		return nil, err
	}
	n.Props = p
	return &n, nil
}

func scanNodes(rows *sql.Rows) ([]*graphstore.Node, error) {
	defer func() { _ = rows.Close() }()
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

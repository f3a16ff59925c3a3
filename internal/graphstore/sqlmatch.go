package graphstore

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Dialect adapts match SQL to a driver's placeholder and JSON property syntax.
type Dialect struct {
	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Prop returns an expression extracting the property bound at placeholder ph
	// from the props column of the given table alias.
	Prop func(alias, ph string) string
	// PropArg converts a property key into the bind argument Prop expects.
	PropArg func(key string) any
}

// MatchSQL renders m against the nodes/relations schema shared by the SQL stores.
// The returned query selects node_id, label, props ordered by insertion.
func MatchSQL(m Match, d Dialect) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	bind := func(v any) string {
		args = append(args, v)
		return d.Placeholder(len(args))
	}
	b.WriteString("SELECT n.node_id, n.label, n.props FROM nodes n WHERE n.label = ")
	b.WriteString(bind(m.Label))
	for _, k := range SortedKeys(m.Props) {
		ph := bind(d.PropArg(k))
		fmt.Fprintf(&b, " AND %s = %s", d.Prop("n", ph), bind(m.Props[k]))
	}
	if in := m.Without; in != nil {
		b.WriteString(" AND NOT EXISTS (SELECT 1 FROM relations r JOIN nodes u ON u.label = r.from_label AND u.node_id = r.from_id")
		b.WriteString(" WHERE r.to_label = n.label AND r.to_id = n.node_id AND r.relation = ")
		b.WriteString(bind(in.Relation))
		b.WriteString(" AND u.label = ")
		b.WriteString(bind(in.FromLabel))
		for _, k := range SortedKeys(in.FromProps) {
			ph := bind(d.PropArg(k))
			fmt.Fprintf(&b, " AND %s = %s", d.Prop("u", ph), bind(in.FromProps[k]))
		}
		b.WriteString(")")
	}
	b.WriteString(" ORDER BY n.seq ASC")
	return b.String(), args
}

// EncodeProps serializes node properties for a props column.
func EncodeProps(props map[string]string) (string, error) {
	if len(props) == 0 {
		return "{}", nil
	}
	body, err := json.Marshal(props)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DecodeProps parses a props column.
func DecodeProps(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	out := make(map[string]string)
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode props: %w", err)
	}
	return out, nil
}

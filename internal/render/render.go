package render

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"querycore/internal/condition"
	"querycore/internal/sqlutil"
	"querycore/internal/statement"
)

// Renderer renders statements for one dialect. It is stateless and safe for concurrent use.
type Renderer struct {
	dialect Dialect
}

// New returns a renderer for d.
func New(d Dialect) *Renderer {
	return &Renderer{dialect: d}
}

// Dialect returns the renderer's dialect.
func (r *Renderer) Dialect() Dialect {
	return r.dialect
}

func (r *Renderer) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(r.dialect.PlaceholderFormat())
}

func (r *Renderer) col(c condition.Column) string {
	return sqlutil.Qualified(r.dialect.QuoteIdentifier, c.Alias, c.Name)
}

// Condition renders a tree as a squirrel predicate using ? placeholders. The
// enclosing builder rewrites placeholders for the dialect.
func (r *Renderer) Condition(tree condition.Tree) (sq.Sqlizer, error) {
	switch t := tree.(type) {
	case nil:
		return sq.Expr("1=1"), nil
	case condition.Bool:
		if t.Value {
			return sq.Expr("1=1"), nil
		}
		return sq.Expr("1=0"), nil
	case condition.And:
		if len(t.Children) == 0 {
			return sq.Expr("1=1"), nil
		}
		parts, err := r.conditions(t.Children)
		if err != nil {
			return nil, err
		}
		return sq.And(parts), nil
	case condition.Or:
		if len(t.Children) == 0 {
			return sq.Expr("1=0"), nil
		}
		parts, err := r.conditions(t.Children)
		if err != nil {
			return nil, err
		}
		return sq.Or(parts), nil
	case condition.Not:
		inner, err := r.Condition(t.Child)
		if err != nil {
			return nil, err
		}
		sql, args, err := inner.ToSql()
		if err != nil {
			return nil, err
		}
		return sq.Expr("NOT ("+sql+")", args...), nil
	case condition.Compare:
		if t.Value == nil {
			return nil, fmt.Errorf("comparison %s %s against NULL", t.Column.Name, t.Op)
		}
		if t.Op == condition.OpLike || t.Op == condition.OpNotLike {
			return sq.Expr(fmt.Sprintf("%s %s ? ESCAPE '%s'", r.col(t.Column), t.Op, condition.LikeEscape), t.Value), nil
		}
		return sq.Expr(fmt.Sprintf("%s %s ?", r.col(t.Column), t.Op), t.Value), nil
	case condition.CompareColumns:
		return sq.Expr(fmt.Sprintf("%s %s %s", r.col(t.Left), t.Op, r.col(t.Right))), nil
	case condition.In:
		if len(t.Values) == 0 {
			if t.Negated {
				return sq.Expr("1=1"), nil
			}
			return sq.Expr("1=0"), nil
		}
		op := "IN"
		if t.Negated {
			op = "NOT IN"
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.Values)), ",")
		return sq.Expr(fmt.Sprintf("%s %s (%s)", r.col(t.Column), op, placeholders), t.Values...), nil
	case condition.IsNull:
		if t.Negated {
			return sq.Expr(r.col(t.Column) + " IS NOT NULL"), nil
		}
		return sq.Expr(r.col(t.Column) + " IS NULL"), nil
	case condition.Exists:
		sql, args, err := r.subSelect(t.Select)
		if err != nil {
			return nil, err
		}
		prefix := "EXISTS"
		if t.Negated {
			prefix = "NOT EXISTS"
		}
		return sq.Expr(fmt.Sprintf("%s (%s)", prefix, sql), args...), nil
	case condition.CompareSelect:
		sql, args, err := r.subSelect(t.Select)
		if err != nil {
			return nil, err
		}
		return sq.Expr(fmt.Sprintf("%s %s (%s)", r.col(t.Column), t.Op, sql), args...), nil
	}
	return nil, fmt.Errorf("unsupported condition node %T", tree)
}

func (r *Renderer) conditions(trees []condition.Tree) ([]sq.Sqlizer, error) {
	out := make([]sq.Sqlizer, 0, len(trees))
	for _, child := range trees {
		c, err := r.Condition(child)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Renderer) subSelect(s condition.SubSelect) (string, []any, error) {
	columns := []string{"1"}
	if len(s.Columns) > 0 {
		columns = make([]string, len(s.Columns))
		for i, c := range s.Columns {
			columns[i] = r.col(c)
		}
	}
	b := sq.Select(columns...).From(sqlutil.TableAs(r.dialect.QuoteIdentifier, s.From.Name, s.From.Alias))
	for _, j := range s.Joins {
		on, err := r.Condition(j.On)
		if err != nil {
			return "", nil, err
		}
		onSQL, onArgs, err := on.ToSql()
		if err != nil {
			return "", nil, err
		}
		b = b.Join(sqlutil.TableAs(r.dialect.QuoteIdentifier, j.Table.Name, j.Table.Alias)+" ON "+onSQL, onArgs...)
	}
	if s.Where != nil {
		where, err := r.Condition(s.Where)
		if err != nil {
			return "", nil, err
		}
		b = b.Where(where)
	}
	return b.PlaceholderFormat(sq.Question).ToSql()
}

// Select renders a read.
func (r *Renderer) Select(s statement.Select) (string, []any, error) {
	if len(s.Columns) == 0 {
		return "", nil, fmt.Errorf("select from %s has no columns", s.From.Name)
	}
	columns := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		columns[i] = sqlutil.Qualified(r.dialect.QuoteIdentifier, s.From.Ref(), c)
	}
	b := r.builder().Select(columns...).From(sqlutil.TableAs(r.dialect.QuoteIdentifier, s.From.Name, s.From.Alias))
	if s.Where != nil {
		where, err := r.Condition(s.Where)
		if err != nil {
			return "", nil, err
		}
		b = b.Where(where)
	}
	for _, o := range s.OrderBy {
		dir := "ASC"
		if o.Descending {
			dir = "DESC"
		}
		b = b.OrderBy(r.col(o.Column) + " " + dir)
	}
	b = r.dialect.ApplyLimitOffset(b, s.Limit, s.Offset)
	return b.ToSql()
}

// Statement renders any primitive write or read.
func (r *Renderer) Statement(st statement.Statement) (string, []any, error) {
	q := r.dialect.QuoteIdentifier
	switch s := st.(type) {
	case statement.Select:
		return r.Select(s)
	case statement.Check:
		return r.Select(s.Query)
	case statement.Insert:
		if len(s.Columns) == 0 {
			sql := fmt.Sprintf("INSERT INTO %s %s", q(s.Table), r.dialect.DefaultValuesInsert())
			if s.Returning != "" && r.dialect.SupportsReturning() {
				sql += " RETURNING " + q(s.Returning)
			}
			return sql, nil, nil
		}
		columns := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			columns[i] = q(c)
		}
		b := r.builder().Insert(q(s.Table)).Columns(columns...)
		for _, row := range s.Rows {
			if len(row) != len(columns) {
				return "", nil, fmt.Errorf("insert into %s: row has %d values for %d columns", s.Table, len(row), len(columns))
			}
			b = b.Values(row...)
		}
		if s.Returning != "" && r.dialect.SupportsReturning() {
			b = b.Suffix("RETURNING " + q(s.Returning))
		}
		return b.ToSql()
	case statement.Update:
		if len(s.Set) == 0 {
			return "", nil, fmt.Errorf("update %s has no assignments", s.Table)
		}
		b := r.builder().Update(q(s.Table))
		for _, a := range s.Set {
			b = b.Set(q(a.Column), a.Value)
		}
		where, err := r.Condition(s.Where)
		if err != nil {
			return "", nil, err
		}
		return b.Where(where).ToSql()
	case statement.Delete:
		where, err := r.Condition(s.Where)
		if err != nil {
			return "", nil, err
		}
		return r.builder().Delete(q(s.Table)).Where(where).ToSql()
	case statement.InsertLink:
		return r.builder().Insert(q(s.Table)).
			Columns(q(s.ParentColumn), q(s.ChildColumn)).
			Values(s.ParentID, s.ChildID).
			ToSql()
	case statement.DeleteLinks:
		where, err := r.Condition(s.Where)
		if err != nil {
			return "", nil, err
		}
		return r.builder().Delete(q(s.Table)).Where(where).ToSql()
	}
	return "", nil, fmt.Errorf("unsupported statement %T", st)
}

package condition

import (
	"fmt"
	"strings"

	"querycore/internal/datamodel"
	"querycore/internal/filter"
	"querycore/internal/naming"
	"querycore/internal/queryerr"
)

// Compiler turns filters into condition trees. Each Compiler allocates fresh
// sub-select aliases from its own counter; use one Compiler per query.
type Compiler struct {
	schema       *datamodel.Schema
	aliasCounter int
}

// NewCompiler returns a compiler bound to schema.
func NewCompiler(schema *datamodel.Schema) *Compiler {
	return &Compiler{schema: schema}
}

// Compile compiles f against model with a fresh compiler. An empty alias
// qualifies the model's columns with its table name.
func Compile(schema *datamodel.Schema, model *datamodel.Model, f filter.Filter, alias string) (Tree, error) {
	return NewCompiler(schema).Compile(model, f, alias)
}

// NextAlias allocates a sub-select alias unique within this compiler.
func (c *Compiler) NextAlias(prefix string) string {
	normalized := strings.TrimSpace(prefix)
	if normalized == "" {
		normalized = "rel"
	}
	normalized = strings.ReplaceAll(normalized, ".", "_")
	c.aliasCounter++
	return fmt.Sprintf("__%s_%d", normalized, c.aliasCounter)
}

// Compile compiles f against model. A nil filter compiles to true.
func (c *Compiler) Compile(model *datamodel.Model, f filter.Filter, alias string) (Tree, error) {
	if alias == "" {
		alias = model.DBName()
	}
	if f == nil {
		return True, nil
	}
	return c.compile(model, f, alias)
}

func (c *Compiler) compile(model *datamodel.Model, f filter.Filter, alias string) (Tree, error) {
	switch f := f.(type) {
	case filter.And:
		children, err := c.compileAll(model, f.Filters, alias)
		if err != nil {
			return nil, err
		}
		return AndOf(children...), nil

	case filter.Or:
		children, err := c.compileAll(model, f.Filters, alias)
		if err != nil {
			return nil, err
		}
		return OrOf(children...), nil

	case filter.Not:
		children, err := c.compileAll(model, f.Filters, alias)
		if err != nil {
			return nil, err
		}
		negated := make([]Tree, len(children))
		for i, child := range children {
			negated[i] = NotOf(child)
		}
		return AndOf(negated...), nil

	case filter.Bool:
		return Bool{Value: f.Value}, nil

	case filter.Scalar:
		if err := c.checkOwner(model, f.Field); err != nil {
			return nil, err
		}
		return compileScalar(Col(alias, f.Field.DBName()), f)

	case filter.ScalarList:
		if err := c.checkOwner(model, f.Field); err != nil {
			return nil, err
		}
		return c.compileScalarList(model, f, alias)

	case filter.Relation:
		if err := c.checkOwner(model, f.Field); err != nil {
			return nil, err
		}
		return c.compileRelation(model, f, alias)

	case filter.OneRelationIsNull:
		if err := c.checkOwner(model, f.Field); err != nil {
			return nil, err
		}
		if f.Field.IsList {
			return nil, queryerr.Validation("relation %s.%s is a list and cannot be null", model.Name, f.Field.Name)
		}
		link, err := c.linkSelect(model, f.Field, alias)
		if err != nil {
			return nil, err
		}
		return Exists{Select: link.sub, Negated: true}, nil
	}
	return nil, fmt.Errorf("unsupported filter node %T", f)
}

func (c *Compiler) compileAll(model *datamodel.Model, filters []filter.Filter, alias string) ([]Tree, error) {
	out := make([]Tree, 0, len(filters))
	for _, child := range filters {
		if child == nil {
			continue
		}
		tree, err := c.compile(model, child, alias)
		if err != nil {
			return nil, err
		}
		out = append(out, tree)
	}
	return out, nil
}

func (c *Compiler) checkOwner(model *datamodel.Model, field datamodel.Field) error {
	if field == nil {
		return queryerr.Validation("filter on %s references no field", model.Name)
	}
	if field.OwnerModel() != model.Name {
		return queryerr.Validation("field %s.%s cannot filter %s", field.OwnerModel(), field.FieldName(), model.Name)
	}
	return nil
}

func compileScalar(col Column, f filter.Scalar) (Tree, error) {
	switch f.Op {
	case filter.Equals:
		if f.Value == nil {
			return IsNull{Column: col}, nil
		}
		return Compare{Column: col, Op: OpEq, Value: f.Value}, nil
	case filter.NotEquals:
		if f.Value == nil {
			return IsNull{Column: col, Negated: true}, nil
		}
		return Compare{Column: col, Op: OpNotEq, Value: f.Value}, nil
	case filter.LessThan:
		return Compare{Column: col, Op: OpLt, Value: f.Value}, nil
	case filter.LessOrEqual:
		return Compare{Column: col, Op: OpLte, Value: f.Value}, nil
	case filter.GreaterThan:
		return Compare{Column: col, Op: OpGt, Value: f.Value}, nil
	case filter.GreaterOrEqual:
		return Compare{Column: col, Op: OpGte, Value: f.Value}, nil
	case filter.Contains, filter.NotContains, filter.StartsWith, filter.NotStartsWith, filter.EndsWith, filter.NotEndsWith:
		return likeCondition(col, f)
	case filter.In:
		if len(f.Values) == 0 {
			return False, nil
		}
		return In{Column: col, Values: f.Values}, nil
	case filter.NotIn:
		if len(f.Values) == 0 {
			return True, nil
		}
		return In{Column: col, Values: f.Values, Negated: true}, nil
	}
	return nil, queryerr.Validation("unknown scalar operator %s on %s", f.Op, f.Field.Name)
}

// LikeEscape is the escape character of every LIKE pattern the compiler
// builds. Renderers emit it in an ESCAPE clause.
const LikeEscape = "!"

var likeEscaper = strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "%", LikeEscape+"%", "_", LikeEscape+"_")

func likeCondition(col Column, f filter.Scalar) (Tree, error) {
	s, ok := f.Value.(string)
	if !ok {
		return nil, queryerr.Validation("%s on %s requires a string, got %T", f.Op, f.Field.Name, f.Value)
	}
	s = likeEscaper.Replace(s)
	var pattern string
	op := OpLike
	switch f.Op {
	case filter.Contains:
		pattern = "%" + s + "%"
	case filter.NotContains:
		pattern, op = "%"+s+"%", OpNotLike
	case filter.StartsWith:
		pattern = s + "%"
	case filter.NotStartsWith:
		pattern, op = s+"%", OpNotLike
	case filter.EndsWith:
		pattern = "%" + s
	case filter.NotEndsWith:
		pattern, op = "%"+s, OpNotLike
	}
	return Compare{Column: col, Op: op, Value: pattern}, nil
}

// compileScalarList correlates the list table on nodeId = owner id.
func (c *Compiler) compileScalarList(model *datamodel.Model, f filter.ScalarList, alias string) (Tree, error) {
	if !f.Field.IsList {
		return nil, queryerr.Validation("field %s.%s is not a list", model.Name, f.Field.Name)
	}
	listTable := model.ListTable(f.Field)
	idCol := Col(alias, model.IDField().DBName())

	exists := func(valueCond func(value Column) Tree) Tree {
		la := c.NextAlias(listTable)
		return Exists{Select: SubSelect{
			From: Table{Name: listTable, Alias: la},
			Where: AndOf(
				CompareColumns{Left: Col(la, naming.ListNodeIDColumn), Op: OpEq, Right: idCol},
				valueCond(Col(la, naming.ListValueColumn)),
			),
		}}
	}

	switch f.Op {
	case filter.ListContains:
		return exists(func(v Column) Tree { return Compare{Column: v, Op: OpEq, Value: f.Value} }), nil
	case filter.ContainsEvery:
		parts := make([]Tree, 0, len(f.Values))
		for _, value := range f.Values {
			parts = append(parts, exists(func(v Column) Tree { return Compare{Column: v, Op: OpEq, Value: value} }))
		}
		return AndOf(parts...), nil
	case filter.ContainsSome:
		if len(f.Values) == 0 {
			return False, nil
		}
		return exists(func(v Column) Tree { return In{Column: v, Values: f.Values} }), nil
	}
	return nil, queryerr.Validation("unknown list operator %s on %s", f.Op, f.Field.Name)
}

type linkSubSelect struct {
	sub       SubSelect
	linkAlias string
}

// linkSelect builds SELECT 1 FROM <link> WHERE <link>.<own side> = outer.id.
func (c *Compiler) linkSelect(model *datamodel.Model, rf *datamodel.RelationField, alias string) (linkSubSelect, error) {
	table, own, _, err := c.schema.LinkColumns(rf)
	if err != nil {
		return linkSubSelect{}, err
	}
	la := c.NextAlias(table)
	return linkSubSelect{
		sub: SubSelect{
			From:  Table{Name: table, Alias: la},
			Where: CompareColumns{Left: Col(la, own), Op: OpEq, Right: Col(alias, model.IDField().DBName())},
		},
		linkAlias: la,
	}, nil
}

// compileRelation quantifies the nested filter over related rows reached through
// the link table. Every(F) is NOT EXISTS(related row where NOT F).
func (c *Compiler) compileRelation(model *datamodel.Model, f filter.Relation, alias string) (Tree, error) {
	related, err := c.schema.RelatedModel(f.Field)
	if err != nil {
		return nil, err
	}
	_, _, other, err := c.schema.LinkColumns(f.Field)
	if err != nil {
		return nil, err
	}
	switch f.Condition {
	case filter.Every, filter.AtLeastOne, filter.None:
		if !f.Field.IsList {
			return nil, queryerr.Validation("%s requires list relation, %s.%s is to-one", f.Condition, model.Name, f.Field.Name)
		}
	case filter.ToOne:
		if f.Field.IsList {
			return nil, queryerr.Validation("is requires to-one relation, %s.%s is a list", model.Name, f.Field.Name)
		}
	default:
		return nil, queryerr.Validation("unknown relation condition %q on %s", f.Condition, f.Field.Name)
	}

	link, err := c.linkSelect(model, f.Field, alias)
	if err != nil {
		return nil, err
	}
	ra := c.NextAlias(related.DBName())
	nested, err := c.Compile(related, f.Nested, ra)
	if err != nil {
		return nil, err
	}

	sub := link.sub
	sub.Joins = []Join{{
		Table: Table{Name: related.DBName(), Alias: ra},
		On:    CompareColumns{Left: Col(ra, related.IDField().DBName()), Op: OpEq, Right: Col(link.linkAlias, other)},
	}}

	switch f.Condition {
	case filter.Every:
		failing := NotOf(nested)
		if b, ok := failing.(Bool); ok && !b.Value {
			return True, nil
		}
		sub.Where = AndOf(sub.Where, failing)
		return Exists{Select: sub, Negated: true}, nil
	case filter.None:
		sub.Where = AndOf(sub.Where, nested)
		return Exists{Select: sub, Negated: true}, nil
	default:
		sub.Where = AndOf(sub.Where, nested)
		return Exists{Select: sub}, nil
	}
}

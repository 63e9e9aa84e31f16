package repo

import "gorm.io/gorm/clause"

// Operator is a comparison used by a Cond.
type Operator string

const (
	OpEq  Operator = "="
	OpNeq Operator = "<>"
	OpLt  Operator = "<"
	OpLte Operator = "<="
	OpGt  Operator = ">"
	OpGte Operator = ">="
	OpIn  Operator = "IN"
)

// Cond is a structural filter on a single column. Conditions passed together
// are combined with AND.
type Cond struct {
	Column string
	Op     Operator
	Value  any
}

func Eq(column string, value any) Cond  { return Cond{column, OpEq, value} }
func Neq(column string, value any) Cond { return Cond{column, OpNeq, value} }
func Lt(column string, value any) Cond  { return Cond{column, OpLt, value} }
func Lte(column string, value any) Cond { return Cond{column, OpLte, value} }
func Gt(column string, value any) Cond  { return Cond{column, OpGt, value} }
func Gte(column string, value any) Cond { return Cond{column, OpGte, value} }

func In[V any](column string, values ...V) Cond {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}
	return Cond{column, OpIn, items}
}

func (c Cond) expression() clause.Expression {
	col := clause.Column{Name: c.Column}
	switch c.Op {
	case OpNeq:
		return clause.Neq{Column: col, Value: c.Value}
	case OpLt:
		return clause.Lt{Column: col, Value: c.Value}
	case OpLte:
		return clause.Lte{Column: col, Value: c.Value}
	case OpGt:
		return clause.Gt{Column: col, Value: c.Value}
	case OpGte:
		return clause.Gte{Column: col, Value: c.Value}
	case OpIn:
		values, _ := c.Value.([]any)
		return clause.IN{Column: col, Values: values}
	default:
		return clause.Eq{Column: col, Value: c.Value}
	}
}

func whereClause(conds []Cond) clause.Where {
	exprs := make([]clause.Expression, 0, len(conds))
	for _, c := range conds {
		exprs = append(exprs, c.expression())
	}
	return clause.Where{Exprs: exprs}
}

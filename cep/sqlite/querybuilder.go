package sqlite

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-cep/cep"
)

// sqlBuilder compiles one static predicate into a SQL statement. Table and
// column identifiers come from the tuple declaration; input parameters
// become named binds (:paramPxQ); references to the predicate's own output
// parameters are inlined as their generating expression, since they are
// not bound yet at query time.
type sqlBuilder struct {
	idx   int
	tuple *cep.TupleDeclaration
	pred  *cep.Predicate
}

// BuildStatement compiles the SQL for a static predicate
func BuildStatement(idx int, tuple *cep.TupleDeclaration, pred *cep.Predicate) (string, error) {
	b := &sqlBuilder{idx: idx, tuple: tuple, pred: pred}
	return b.statement()
}

// ParamName is the named-bind identifier of a parameter
func ParamName(key cep.ParamKey) string {
	return fmt.Sprintf("param%dx%d", key.Predicate, key.Parameter)
}

func (b *sqlBuilder) statement() (string, error) {
	var selection, tail string

	switch kind := b.pred.Kind.(type) {
	case *cep.OrderedStatic:
		selection = b.paramSelection(kind.Params)
		orderBy := make([]string, len(kind.Orderings))
		for i, ord := range kind.Orderings {
			dir := "ASC"
			if ord.Direction == cep.Desc {
				dir = "DESC"
			}
			orderBy[i] = fmt.Sprintf("%s.%s %s", b.tuple.Name, b.tuple.Attributes[ord.Attribute].Name, dir)
		}
		tail = " ORDER BY " + strings.Join(orderBy, ", ") + " LIMIT 1"
	case *cep.UnorderedStatic:
		selection = b.paramSelection(kind.Params)
	case *cep.StaticAggregate:
		// The parameter expression is compiled with the Aggregate leaf
		// rendered as the SQL aggregate, so the single result column is
		// the bound parameter value.
		selection = b.exprSQL(kind.Param.Expression) + " AS " + kind.Param.Name
	case *cep.StaticNegation:
		selection = "1"
		tail = " LIMIT 1"
	default:
		return "", fmt.Errorf("predicate kind %T has no SQL form", kind)
	}

	var where string
	if len(b.pred.Tuple.Constraints) > 0 {
		conds := make([]string, len(b.pred.Tuple.Constraints))
		for i, c := range b.pred.Tuple.Constraints {
			conds[i] = b.exprSQL(c)
		}
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	return "SELECT " + selection + " FROM " + b.tuple.Name + where + tail, nil
}

// paramSelection projects the output parameters; a predicate with none
// projects the constant 1 so the engine can count the fan-out.
func (b *sqlBuilder) paramSelection(params []cep.ParameterDeclaration) string {
	if len(params) == 0 {
		return "1"
	}
	cols := make([]string, len(params))
	for i, p := range params {
		cols[i] = b.exprSQL(p.Expression) + " AS " + p.Name
	}
	return strings.Join(cols, ", ")
}

func (b *sqlBuilder) exprSQL(expr cep.Expression) string {
	switch n := expr.(type) {
	case *cep.Immediate:
		return valueSQL(n.Value)
	case *cep.Reference:
		return b.tuple.Name + "." + b.tuple.Attributes[n.Attribute].Name
	case *cep.Parameter:
		if n.Predicate == b.idx {
			// Own output parameter: substitute its generating expression.
			params := b.pred.Kind.Parameters()
			return b.exprSQL(params[n.Parameter].Expression)
		}
		return ":" + ParamName(cep.ParamKey{Predicate: n.Predicate, Parameter: n.Parameter})
	case *cep.Aggregate:
		return b.aggregateSQL()
	case *cep.Cast:
		// SQLite arithmetic coerces integers to reals on demand; the cast
		// is explicit to keep the generated SQL type-faithful.
		return "CAST(" + b.exprSQL(n.Expression) + " AS REAL)"
	case *cep.UnaryOp:
		var op string
		switch n.Operator {
		case cep.UnaryMinus:
			op = "-"
		case cep.UnaryNot:
			op = "NOT "
		}
		return "(" + op + b.exprSQL(n.Expression) + ")"
	case *cep.BinaryOp:
		return "(" + b.exprSQL(n.Left) + " " + binarySQL(n.Operator) + " " + b.exprSQL(n.Right) + ")"
	default:
		return ""
	}
}

func (b *sqlBuilder) aggregateSQL() string {
	kind, ok := b.pred.Kind.(*cep.StaticAggregate)
	if !ok {
		return "NULL"
	}
	if kind.Aggregator.Fn == cep.AggCount {
		return "COUNT(*)"
	}
	column := b.tuple.Name + "." + b.tuple.Attributes[kind.Aggregator.Attribute].Name
	switch kind.Aggregator.Fn {
	case cep.AggAvg:
		return "AVG(" + column + ")"
	case cep.AggSum:
		return "SUM(" + column + ")"
	case cep.AggMin:
		return "MIN(" + column + ")"
	case cep.AggMax:
		return "MAX(" + column + ")"
	}
	return "NULL"
}

func binarySQL(op cep.BinaryOperator) string {
	switch op {
	case cep.OpPlus:
		return "+"
	case cep.OpMinus:
		return "-"
	case cep.OpTimes:
		return "*"
	case cep.OpDivision:
		return "/"
	case cep.OpEqual:
		return "="
	case cep.OpNotEqual:
		return "!="
	case cep.OpGreaterThan:
		return ">"
	case cep.OpGreaterEqual:
		return ">="
	case cep.OpLowerThan:
		return "<"
	case cep.OpLowerEqual:
		return "<="
	default:
		return "?"
	}
}

func valueSQL(v cep.Value) string {
	switch v.Type() {
	case cep.TypeStr:
		s, _ := v.AsStr()
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	case cep.TypeBool:
		x, _ := v.AsBool()
		if x {
			return "1"
		}
		return "0"
	default:
		return v.String()
	}
}

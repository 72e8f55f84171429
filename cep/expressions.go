package cep

import "sort"

// ParamKey addresses a parameter by the predicate that declares it and the
// parameter's position within that predicate.
type ParamKey struct {
	Predicate int
	Parameter int
}

// Expression is a node of the constraint/template expression tree.
//
// Leaves are Immediate values, Reference (an attribute of the predicate's
// own tuple), Aggregate (the enclosing aggregation predicate's result) and
// Parameter (a value declared by an earlier predicate). Interior nodes are
// Cast, UnaryOp and BinaryOp.
type Expression interface {
	expr()
}

// Immediate is a literal value
type Immediate struct {
	Value Value
}

// Reference reads an attribute of the tuple the surrounding predicate
// constrains.
type Reference struct {
	Attribute int
}

// Aggregate reads the result of the aggregation predicate it appears in
type Aggregate struct{}

// Parameter reads a parameter declared by an earlier predicate
type Parameter struct {
	Predicate int
	Parameter int
}

// Cast converts a subexpression; the only legal conversion is Int -> Float
type Cast struct {
	Ty         BasicType
	Expression Expression
}

// UnaryOp applies a unary operator to a subexpression
type UnaryOp struct {
	Operator   UnaryOperator
	Expression Expression
}

// BinaryOp applies a binary operator to two subexpressions
type BinaryOp struct {
	Operator BinaryOperator
	Left     Expression
	Right    Expression
}

func (*Immediate) expr() {}
func (*Reference) expr() {}
func (*Aggregate) expr() {}
func (*Parameter) expr() {}
func (*Cast) expr()      {}
func (*UnaryOp) expr()   {}
func (*BinaryOp) expr()  {}

// IsLocal reports whether the expression contains no Parameter leaf, which
// makes it evaluable against a candidate tuple alone at ingest time.
func IsLocal(e Expression) bool {
	switch n := e.(type) {
	case *Parameter:
		return false
	case *Cast:
		return IsLocal(n.Expression)
	case *UnaryOp:
		return IsLocal(n.Expression)
	case *BinaryOp:
		return IsLocal(n.Left) && IsLocal(n.Right)
	default:
		return true
	}
}

// Parameters returns the parameters referenced anywhere in the expression,
// sorted and deduplicated.
func Parameters(e Expression) []ParamKey {
	keys := collectParameters(e, nil)
	sortKeys(keys)
	return dedupKeys(keys)
}

func sortKeys(keys []ParamKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Predicate != keys[j].Predicate {
			return keys[i].Predicate < keys[j].Predicate
		}
		return keys[i].Parameter < keys[j].Parameter
	})
}

func collectParameters(e Expression, keys []ParamKey) []ParamKey {
	switch n := e.(type) {
	case *Parameter:
		keys = append(keys, ParamKey{Predicate: n.Predicate, Parameter: n.Parameter})
	case *Cast:
		keys = collectParameters(n.Expression, keys)
	case *UnaryOp:
		keys = collectParameters(n.Expression, keys)
	case *BinaryOp:
		keys = collectParameters(n.Left, keys)
		keys = collectParameters(n.Right, keys)
	}
	return keys
}

func dedupKeys(keys []ParamKey) []ParamKey {
	out := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			out = append(out, k)
		}
	}
	return out
}

// Convenience constructors, mostly for building rules in tests and drivers.

// Const wraps a value as an immediate expression
func Const(v Value) Expression { return &Immediate{Value: v} }

// Attr references attribute i of the surrounding predicate's tuple
func Attr(i int) Expression { return &Reference{Attribute: i} }

// Param references parameter par of predicate pred
func Param(pred, par int) Expression {
	return &Parameter{Predicate: pred, Parameter: par}
}

// Unary builds a unary operation node
func Unary(op UnaryOperator, e Expression) Expression {
	return &UnaryOp{Operator: op, Expression: e}
}

// Binary builds a binary operation node
func Binary(op BinaryOperator, left, right Expression) Expression {
	return &BinaryOp{Operator: op, Left: left, Right: right}
}

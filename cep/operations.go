package cep

import "fmt"

// UnaryOperator enumerates the unary operators
type UnaryOperator uint8

const (
	// UnaryMinus is algebraic negation
	UnaryMinus UnaryOperator = iota
	// UnaryNot is boolean negation
	UnaryNot
)

// String returns the operator symbol
func (op UnaryOperator) String() string {
	switch op {
	case UnaryMinus:
		return "-"
	case UnaryNot:
		return "!"
	default:
		return fmt.Sprintf("UnaryOperator(%d)", op)
	}
}

// BinaryOperator enumerates the binary operators
type BinaryOperator uint8

const (
	OpPlus BinaryOperator = iota
	OpMinus
	OpTimes
	OpDivision
	OpEqual
	OpNotEqual
	OpGreaterThan
	OpGreaterEqual
	OpLowerThan
	OpLowerEqual
)

// String returns the operator symbol
func (op BinaryOperator) String() string {
	switch op {
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpTimes:
		return "*"
	case OpDivision:
		return "/"
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterEqual:
		return ">="
	case OpLowerThan:
		return "<"
	case OpLowerEqual:
		return "<="
	default:
		return fmt.Sprintf("BinaryOperator(%d)", op)
	}
}

// ApplyUnary evaluates a unary operator on a value. Operand type mismatches
// raise an evaluation error.
func ApplyUnary(op UnaryOperator, v Value) Value {
	switch op {
	case UnaryMinus:
		switch v.Type() {
		case TypeInt:
			return Int(-v.MustInt())
		case TypeFloat:
			return Float(-v.MustFloat())
		}
		evalPanic("unary - applied to %s", v.Type())
	case UnaryNot:
		if v.Type() == TypeBool {
			return Bool(!v.MustBool())
		}
		evalPanic("unary ! applied to %s", v.Type())
	}
	evalPanic("unknown unary operator %d", op)
	return Value{}
}

// ApplyBinary evaluates a binary operator on two values. Operand type
// mismatches raise an evaluation error.
func ApplyBinary(op BinaryOperator, left, right Value) Value {
	lt, rt := left.Type(), right.Type()
	switch op {
	case OpPlus:
		switch {
		case lt == TypeInt && rt == TypeInt:
			return Int(left.MustInt() + right.MustInt())
		case lt == TypeFloat && rt == TypeFloat:
			return Float(left.MustFloat() + right.MustFloat())
		case lt == TypeStr && rt == TypeStr:
			return Str(left.MustStr() + right.MustStr())
		}
	case OpMinus:
		switch {
		case lt == TypeInt && rt == TypeInt:
			return Int(left.MustInt() - right.MustInt())
		case lt == TypeFloat && rt == TypeFloat:
			return Float(left.MustFloat() - right.MustFloat())
		}
	case OpTimes:
		switch {
		case lt == TypeInt && rt == TypeInt:
			return Int(left.MustInt() * right.MustInt())
		case lt == TypeFloat && rt == TypeFloat:
			return Float(left.MustFloat() * right.MustFloat())
		}
	case OpDivision:
		switch {
		case lt == TypeInt && rt == TypeInt:
			if right.MustInt() == 0 {
				evalPanic("integer division by zero")
			}
			return Int(left.MustInt() / right.MustInt())
		case lt == TypeFloat && rt == TypeFloat:
			return Float(left.MustFloat() / right.MustFloat())
		}
	case OpEqual:
		if lt == rt {
			return Bool(left == right)
		}
	case OpNotEqual:
		if lt == rt {
			return Bool(left != right)
		}
	case OpGreaterThan, OpGreaterEqual, OpLowerThan, OpLowerEqual:
		if c, ok := compareOrdered(left, right); ok {
			switch op {
			case OpGreaterThan:
				return Bool(c > 0)
			case OpGreaterEqual:
				return Bool(c >= 0)
			case OpLowerThan:
				return Bool(c < 0)
			case OpLowerEqual:
				return Bool(c <= 0)
			}
		}
	}
	evalPanic("operator %s applied to %s and %s", op, lt, rt)
	return Value{}
}

// compareOrdered returns -1/0/1 for the ordered types (int, float, str);
// ok is false when the pair is not ordered within a single type.
func compareOrdered(left, right Value) (int, bool) {
	if left.Type() != right.Type() {
		return 0, false
	}
	switch left.Type() {
	case TypeInt:
		l, r := left.MustInt(), right.MustInt()
		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	case TypeFloat:
		l, r := left.MustFloat(), right.MustFloat()
		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	case TypeStr:
		l, r := left.MustStr(), right.MustStr()
		switch {
		case l < r:
			return -1, true
		case l > r:
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// UnaryResultType returns the result type of a unary operator over an
// operand type, or an error when the operator is not defined for it.
func UnaryResultType(op UnaryOperator, ty BasicType) (BasicType, error) {
	switch op {
	case UnaryMinus:
		if ty == TypeInt || ty == TypeFloat {
			return ty, nil
		}
	case UnaryNot:
		if ty == TypeBool {
			return ty, nil
		}
	}
	return 0, fmt.Errorf("operator %s not defined for %s", op, ty)
}

// BinaryResultType returns the result type of a binary operator over two
// operand types, or an error when the combination is not defined.
func BinaryResultType(op BinaryOperator, left, right BasicType) (BasicType, error) {
	switch op {
	case OpPlus:
		if left == TypeStr && right == TypeStr {
			return TypeStr, nil
		}
		fallthrough
	case OpMinus, OpTimes, OpDivision:
		switch {
		case left == TypeInt && right == TypeInt:
			return TypeInt, nil
		case left == TypeFloat && right == TypeFloat:
			return TypeFloat, nil
		}
	case OpEqual, OpNotEqual:
		if left == right {
			return TypeBool, nil
		}
	case OpGreaterThan, OpGreaterEqual, OpLowerThan, OpLowerEqual:
		if left == right && left != TypeBool {
			return TypeBool, nil
		}
	}
	return 0, fmt.Errorf("operator %s not defined for %s and %s", op, left, right)
}

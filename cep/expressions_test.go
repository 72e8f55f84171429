package cep

import (
	"reflect"
	"testing"
)

func TestIsLocal(t *testing.T) {
	tests := []struct {
		name     string
		expr     Expression
		expected bool
	}{
		{"immediate", Const(Int(1)), true},
		{"reference", Attr(0), true},
		{"parameter", Param(0, 0), false},
		{"binary of locals", Binary(OpPlus, Attr(0), Const(Int(1))), true},
		{"binary with parameter", Binary(OpEqual, Attr(0), Param(1, 0)), false},
		{"unary over parameter", Unary(UnaryMinus, Param(0, 1)), false},
		{"cast of local", &Cast{Ty: TypeFloat, Expression: Attr(2)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLocal(tt.expr); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestParameters(t *testing.T) {
	expr := Binary(OpPlus,
		Binary(OpTimes, Param(2, 1), Param(0, 0)),
		Binary(OpMinus, Param(0, 0), Param(1, 0)))

	got := Parameters(expr)
	expected := []ParamKey{
		{Predicate: 0, Parameter: 0},
		{Predicate: 1, Parameter: 0},
		{Predicate: 2, Parameter: 1},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

func TestPredicateUsedParameters(t *testing.T) {
	pred := &Predicate{
		Kind: &UnorderedStatic{Params: []ParameterDeclaration{
			{Name: "z", Expression: Binary(OpPlus, Attr(0), Param(0, 1))},
		}},
		Tuple: ConstrainedTuple{
			TyID: 7,
			Constraints: []Expression{
				Binary(OpGreaterEqual, Attr(0), Param(0, 0)),
				Binary(OpLowerThan, Attr(0), Param(0, 1)),
			},
		},
	}

	got := pred.UsedParameters()
	expected := []ParamKey{
		{Predicate: 0, Parameter: 0},
		{Predicate: 0, Parameter: 1},
	}
	if !reflect.DeepEqual(got, expected) {
		t.Errorf("expected %v, got %v", expected, got)
	}
}

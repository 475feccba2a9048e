package ast

import (
	"fmt"

	"github.com/funvibe/taffy/internal/config"
)

// Operator is a Taffy infix operator.
type Operator uint8

const (
	OpAdd Operator = iota
	OpSubtract
	OpMultiply
	OpDivide
	OpRaise
	OpModulus
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLeftShift
	OpRightShift
	OpEquals
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLast
)

var operatorSymbols = [...]string{
	OpAdd:                "+",
	OpSubtract:           "-",
	OpMultiply:           "*",
	OpDivide:             "/",
	OpRaise:              "^",
	OpModulus:            "%",
	OpBitAnd:             "&",
	OpBitOr:              "|",
	OpBitXor:             "^^",
	OpLeftShift:          "<<",
	OpRightShift:         ">>",
	OpEquals:             "==",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
}

func (o Operator) Symbol() string {
	if o < OpLast {
		return operatorSymbols[o]
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

func (o Operator) String() string { return o.Symbol() }

// MethodName is the name the operator dispatches to, e.g. "#operator(+):".
func (o Operator) MethodName() string { return config.OperatorMethodName(o.Symbol()) }

// AssignMethodName is the compound assignment method, e.g. "#operator(+=):".
func (o Operator) AssignMethodName() string {
	return config.OperatorMethodName(o.Symbol() + "=")
}

// RightAssociative reports whether chains fold from the right.
func (o Operator) RightAssociative() bool { return o == OpRaise }

// Arithmetic reports whether the operator forms FlatArithmetic chains.
func (o Operator) Arithmetic() bool { return o <= OpRightShift }

// OperatorForSymbol looks an operator up by its source symbol.
func OperatorForSymbol(symbol string) (Operator, bool) {
	for i, s := range operatorSymbols {
		if s == symbol {
			return Operator(i), true
		}
	}
	return OpLast, false
}

// OperatorForAssignMethod maps "#operator(+=):" back to OpAdd.
func OperatorForAssignMethod(name string) (Operator, bool) {
	for i := Operator(0); i <= OpRightShift; i++ {
		if i.AssignMethodName() == name {
			return i, true
		}
	}
	return OpLast, false
}

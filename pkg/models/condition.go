package models

import "errors"

// Operator is the fixed comparison set supported by conditions.
type Operator string

const (
	OperatorEquals      Operator = "equals"
	OperatorNotEquals   Operator = "not_equals"
	OperatorGreaterThan Operator = "greater_than"
	OperatorLessThan    Operator = "less_than"
	OperatorContains    Operator = "contains"
	OperatorNotContains Operator = "not_contains"
)

// Valid reports whether o is a supported operator.
func (o Operator) Valid() bool {
	switch o {
	case OperatorEquals, OperatorNotEquals, OperatorGreaterThan, OperatorLessThan, OperatorContains, OperatorNotContains:
		return true
	}

	return false
}

// Logic joins a condition to the running result of the ones before it.
type Logic string

const (
	LogicAnd Logic = "and"
	LogicOr  Logic = "or"
)

var (
	ErrUnknownOperator = errors.New("unknown condition operator")
	ErrUnknownLogic    = errors.New("unknown condition logic")
)

// Condition compares the value at Field (a dotted path) against Value.
type Condition struct {
	Field    string   `json:"field"           validate:"required"`
	Operator Operator `json:"operator"        validate:"required"`
	Value    any      `json:"value"`
	Logic    Logic    `json:"logic,omitempty"`
}

// EffectiveLogic returns the logic with the "and" default applied.
func (c Condition) EffectiveLogic() Logic {
	if c.Logic == "" {
		return LogicAnd
	}

	return c.Logic
}

package models

// FilterLogic combines condition masks: AND requires every condition to
// hold, OR requires at least one.
type FilterLogic string

const (
	FilterLogicAnd FilterLogic = "AND"
	FilterLogicOr  FilterLogic = "OR"
)

// Operator is one comparison in a filter condition.
type Operator string

const (
	OperatorEq       Operator = "=="
	OperatorLt       Operator = "<"
	OperatorGt       Operator = ">"
	OperatorLte      Operator = "<="
	OperatorGte      Operator = ">="
	OperatorContains Operator = "contains"
)

// IsNumeric reports whether the operator only applies to numeric columns.
func (o Operator) IsNumeric() bool {
	switch o {
	case OperatorLt, OperatorGt, OperatorLte, OperatorGte:
		return true
	default:
		return false
	}
}

// Operators is the closed set accepted by filter validation.
var Operators = []Operator{OperatorEq, OperatorLt, OperatorGt, OperatorLte, OperatorGte, OperatorContains}

// Condition narrows rows by comparing one column against a value.
type Condition struct {
	Column   string   `json:"column"   validate:"required"`
	Operator Operator `json:"operator" validate:"required"`
	Value    any      `json:"value"    validate:"required"`
}

// FilterDefinition is the flat condition list applied to rows before
// sending. Nesting is deliberately not supported.
type FilterDefinition struct {
	Logic      FilterLogic `json:"logic"      validate:"required,oneof=AND OR"`
	Conditions []Condition `json:"conditions" validate:"required,min=1,dive"`
}

// IsEmpty reports whether the definition is absent or has no conditions,
// which filtering treats as "pass all rows".
func (f *FilterDefinition) IsEmpty() bool {
	return f == nil || (f.Logic == "" && len(f.Conditions) == 0)
}

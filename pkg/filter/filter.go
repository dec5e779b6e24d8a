// Package filter validates and applies the flat AND/OR condition list
// used to narrow dataset rows before a campaign run.
package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/casthq/caster/pkg/models"
)

// numericRatioThreshold is the share of non-empty values that must parse
// as numeric for a column to be treated as a number column. The same rule
// is applied independently at validation time (against the declared
// schema) and at apply time (against the loaded data), because the two
// call sites may hold different schema snapshots.
const numericRatioThreshold = 0.9

// ValidationError describes one problem found while checking a filter
// definition against a dataset schema.
type ValidationError struct {
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("filter column %q: %s", e.Column, e.Message)
	}

	return e.Message
}

// Validate checks a filter definition against a dataset schema and
// returns every problem found. A nil or empty definition is valid.
func Validate(def *models.FilterDefinition, schema models.Schema) []ValidationError {
	if def.IsEmpty() {
		return nil
	}

	var errs []ValidationError

	if def.Logic != models.FilterLogicAnd && def.Logic != models.FilterLogicOr {
		errs = append(errs, ValidationError{Message: fmt.Sprintf("filter logic must be %q or %q", models.FilterLogicAnd, models.FilterLogicOr)})
	}

	if len(def.Conditions) == 0 {
		errs = append(errs, ValidationError{Message: "filter must contain at least one condition"})

		return errs
	}

	schema = models.NormalizeSchema(schema)

	for _, cond := range def.Conditions {
		column := models.NormalizeName(cond.Column)
		if column == "" {
			errs = append(errs, ValidationError{Message: "condition missing column"})

			continue
		}

		columnType, known := schema.TypeOf(column)
		if !known {
			errs = append(errs, ValidationError{Column: cond.Column, Message: "not present in dataset schema"})

			continue
		}

		if !allowedOperator(cond.Operator) {
			errs = append(errs, ValidationError{
				Column:  cond.Column,
				Message: fmt.Sprintf("invalid operator %q, allowed: %s", cond.Operator, operatorList()),
			})

			continue
		}

		if cond.Value == nil {
			errs = append(errs, ValidationError{Column: cond.Column, Message: "condition must include a value"})

			continue
		}

		if columnType == models.ColumnTypeNumber {
			if _, err := toFloat(cond.Value); err != nil {
				errs = append(errs, ValidationError{Column: cond.Column, Message: "expects a numeric value"})
			}
		}

		if columnType == models.ColumnTypeString && cond.Operator.IsNumeric() {
			errs = append(errs, ValidationError{
				Column:  cond.Column,
				Message: fmt.Sprintf("operator %q not allowed for string column", cond.Operator),
			})
		}
	}

	return errs
}

// Apply narrows rows to the ones matching the filter definition. The
// definition is validated against the schema first; column numeric-ness
// is then re-inferred from the live data before each condition is
// evaluated.
func Apply(rows []models.Row, def *models.FilterDefinition, schema models.Schema) ([]models.Row, error) {
	if def.IsEmpty() {
		return rows, nil
	}

	if errs := Validate(def, schema); len(errs) > 0 {
		return nil, fmt.Errorf("invalid filter definition: %w", errs[0])
	}

	if len(rows) == 0 {
		return rows, nil
	}

	masks := make([][]bool, 0, len(def.Conditions))

	for _, cond := range def.Conditions {
		mask, err := conditionMask(rows, cond)
		if err != nil {
			return nil, err
		}

		masks = append(masks, mask)
	}

	filtered := make([]models.Row, 0, len(rows))

	for i, row := range rows {
		if combine(masks, i, def.Logic) {
			filtered = append(filtered, row)
		}
	}

	return filtered, nil
}

// conditionMask evaluates one condition against every row.
func conditionMask(rows []models.Row, cond models.Condition) ([]bool, error) {
	column := models.NormalizeName(cond.Column)

	values := make([]string, len(rows))
	for i, row := range rows {
		values[i] = strings.TrimSpace(row[column])
	}

	if columnIsNumeric(values) {
		want, err := toFloat(cond.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value for column %q: %w", column, err)
		}

		return numericMask(values, cond.Operator, want, column)
	}

	if cond.Operator.IsNumeric() {
		return nil, fmt.Errorf("operator %q requires numeric data in column %q", cond.Operator, column)
	}

	want := toString(cond.Value)

	return stringMask(values, cond.Operator, want, column)
}

// columnIsNumeric applies the numeric-ratio rule to live data: at least
// 90% of the non-empty values must parse as numbers.
func columnIsNumeric(values []string) bool {
	nonEmpty := 0
	numeric := 0

	for _, v := range values {
		if v == "" {
			continue
		}

		nonEmpty++

		if _, err := strconv.ParseFloat(v, 64); err == nil {
			numeric++
		}
	}

	if nonEmpty == 0 {
		return false
	}

	return float64(numeric)/float64(nonEmpty) >= numericRatioThreshold
}

func numericMask(values []string, op models.Operator, want float64, column string) ([]bool, error) {
	mask := make([]bool, len(values))

	for i, raw := range values {
		if raw == "" {
			continue
		}

		have, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			// Non-numeric stragglers below the ratio threshold never match.
			continue
		}

		switch op {
		case models.OperatorEq:
			mask[i] = have == want
		case models.OperatorLt:
			mask[i] = have < want
		case models.OperatorGt:
			mask[i] = have > want
		case models.OperatorLte:
			mask[i] = have <= want
		case models.OperatorGte:
			mask[i] = have >= want
		case models.OperatorContains:
			return nil, fmt.Errorf("operator %q only valid for string column %q", op, column)
		default:
			return nil, fmt.Errorf("unsupported operator %q", op)
		}
	}

	return mask, nil
}

func stringMask(values []string, op models.Operator, want string, column string) ([]bool, error) {
	mask := make([]bool, len(values))

	for i, have := range values {
		switch op {
		case models.OperatorEq:
			mask[i] = have == want
		case models.OperatorContains:
			mask[i] = have != "" && strings.Contains(have, want)
		default:
			return nil, fmt.Errorf("operator %q not allowed for string column %q", op, column)
		}
	}

	return mask, nil
}

func combine(masks [][]bool, row int, logic models.FilterLogic) bool {
	if logic == models.FilterLogicOr {
		for _, mask := range masks {
			if mask[row] {
				return true
			}
		}

		return false
	}

	for _, mask := range masks {
		if !mask[row] {
			return false
		}
	}

	return true
}

func allowedOperator(op models.Operator) bool {
	for _, allowed := range models.Operators {
		if op == allowed {
			return true
		}
	}

	return false
}

func operatorList() string {
	parts := make([]string, len(models.Operators))
	for i, op := range models.Operators {
		parts[i] = string(op)
	}

	return strings.Join(parts, ", ")
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("value %v is not numeric", value)
	}
}

func toString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	if f, ok := value.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	return fmt.Sprintf("%v", value)
}

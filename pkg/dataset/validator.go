package dataset

import (
	"fmt"

	"github.com/agnivade/levenshtein"

	"github.com/casthq/caster/pkg/models"
)

// DiagnosticKind classifies one compatibility problem.
type DiagnosticKind string

const (
	DiagnosticInvalidSchema           DiagnosticKind = "invalid_schema"
	DiagnosticMissingRecipientColumn  DiagnosticKind = "missing_recipient_column"
	DiagnosticMissingTemplateVariable DiagnosticKind = "missing_template_variable"
	DiagnosticMissingFilterColumn     DiagnosticKind = "missing_filter_column"
	DiagnosticDatatypeMismatch        DiagnosticKind = "datatype_mismatch"
)

// suggestionCutoff is the minimum similarity for a closest-match
// suggestion to be offered at all.
const suggestionCutoff = 0.6

// Diagnostic describes one compatibility problem between a template and
// a dataset schema, with a closest-match suggestion where one exists.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"type"`
	Column     string         `json:"column,omitempty"`
	Operator   string         `json:"operator,omitempty"`
	Suggestion string         `json:"suggestion,omitempty"`
	Expected   string         `json:"expected,omitempty"`
	Found      string         `json:"found,omitempty"`
	Message    string         `json:"message"`
}

// CheckCompatibility cross-checks the template's recipient column,
// variables and filter columns against a dataset schema. It never stops
// at the first problem: every diagnostic is collected so the caller can
// present all of them at once.
func CheckCompatibility(tpl *models.Template, schema models.Schema, recipientColumn string) []Diagnostic {
	if len(schema) == 0 {
		return []Diagnostic{{
			Kind:    DiagnosticInvalidSchema,
			Message: "dataset schema is empty or invalid",
		}}
	}

	schema = models.NormalizeSchema(schema)
	columns := schema.Names()

	var diagnostics []Diagnostic

	if recipient := models.NormalizeName(recipientColumn); recipient != "" {
		if _, ok := schema.TypeOf(recipient); !ok {
			diagnostics = append(diagnostics, Diagnostic{
				Kind:       DiagnosticMissingRecipientColumn,
				Column:     recipientColumn,
				Suggestion: suggestColumn(recipient, columns),
				Message:    fmt.Sprintf("recipient column %q not found in dataset", recipientColumn),
			})
		}
	}

	for _, variable := range tpl.Variables {
		name := models.NormalizeName(variable)
		if _, ok := schema.TypeOf(name); !ok {
			diagnostics = append(diagnostics, Diagnostic{
				Kind:       DiagnosticMissingTemplateVariable,
				Column:     variable,
				Suggestion: suggestColumn(name, columns),
				Message:    fmt.Sprintf("template variable %q missing in dataset", variable),
			})
		}
	}

	if tpl.Filter != nil {
		for _, cond := range tpl.Filter.Conditions {
			name := models.NormalizeName(cond.Column)

			columnType, ok := schema.TypeOf(name)
			if !ok {
				diagnostics = append(diagnostics, Diagnostic{
					Kind:       DiagnosticMissingFilterColumn,
					Column:     cond.Column,
					Suggestion: suggestColumn(name, columns),
					Message:    fmt.Sprintf("filter column %q missing in dataset", cond.Column),
				})

				continue
			}

			if cond.Operator.IsNumeric() && columnType != models.ColumnTypeNumber {
				diagnostics = append(diagnostics, Diagnostic{
					Kind:     DiagnosticDatatypeMismatch,
					Column:   cond.Column,
					Operator: string(cond.Operator),
					Expected: string(models.ColumnTypeNumber),
					Found:    string(columnType),
					Message:  fmt.Sprintf("operator %q requires numeric column for %q", cond.Operator, cond.Column),
				})
			}
		}
	}

	return diagnostics
}

// suggestColumn returns the closest available column name, or "" when no
// candidate clears the similarity cutoff.
func suggestColumn(column string, available []string) string {
	best := ""
	bestScore := suggestionCutoff

	for _, candidate := range available {
		score := similarity(column, candidate)
		if score >= bestScore {
			best = candidate
			bestScore = score
		}
	}

	return best
}

// similarity maps Levenshtein distance onto a 0..1 scale where 1 is an
// exact match.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}

	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 0
	}

	distance := levenshtein.ComputeDistance(a, b)

	return 1 - float64(distance)/float64(longest)
}

package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casthq/caster/pkg/models"
)

func compatSchema() models.Schema {
	return models.Schema{
		{Name: "email", Type: models.ColumnTypeString},
		{Name: "name", Type: models.ColumnTypeString},
		{Name: "attendance", Type: models.ColumnTypeNumber},
	}
}

func TestCheckCompatibility_AllPresent(t *testing.T) {
	tpl := &models.Template{
		Variables: []string{"name"},
		Filter: &models.FilterDefinition{
			Logic:      models.FilterLogicAnd,
			Conditions: []models.Condition{{Column: "attendance", Operator: models.OperatorLt, Value: 75}},
		},
	}

	assert.Empty(t, CheckCompatibility(tpl, compatSchema(), "email"))
}

func TestCheckCompatibility_EmptySchema(t *testing.T) {
	diags := CheckCompatibility(&models.Template{}, nil, "email")
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticInvalidSchema, diags[0].Kind)
}

func TestCheckCompatibility_MissingRecipientWithSuggestion(t *testing.T) {
	diags := CheckCompatibility(&models.Template{}, compatSchema(), "emial")
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticMissingRecipientColumn, diags[0].Kind)
	assert.Equal(t, "email", diags[0].Suggestion)
}

func TestCheckCompatibility_NoSuggestionBelowCutoff(t *testing.T) {
	diags := CheckCompatibility(&models.Template{}, compatSchema(), "zzzzzzzzzz")
	require.Len(t, diags, 1)
	assert.Empty(t, diags[0].Suggestion)
}

func TestCheckCompatibility_CollectsEveryProblem(t *testing.T) {
	tpl := &models.Template{
		Variables: []string{"nmae", "balance"},
		Filter: &models.FilterDefinition{
			Logic: models.FilterLogicAnd,
			Conditions: []models.Condition{
				{Column: "city", Operator: models.OperatorEq, Value: "pune"},
				{Column: "name", Operator: models.OperatorGte, Value: 10},
			},
		},
	}

	diags := CheckCompatibility(tpl, compatSchema(), "phone")
	require.Len(t, diags, 5)

	kinds := make([]DiagnosticKind, 0, len(diags))
	for _, d := range diags {
		kinds = append(kinds, d.Kind)
	}

	assert.Equal(t, []DiagnosticKind{
		DiagnosticMissingRecipientColumn,
		DiagnosticMissingTemplateVariable,
		DiagnosticMissingTemplateVariable,
		DiagnosticMissingFilterColumn,
		DiagnosticDatatypeMismatch,
	}, kinds)
}

func TestCheckCompatibility_DatatypeMismatchDetails(t *testing.T) {
	tpl := &models.Template{
		Filter: &models.FilterDefinition{
			Logic:      models.FilterLogicAnd,
			Conditions: []models.Condition{{Column: "name", Operator: models.OperatorGt, Value: 1}},
		},
	}

	diags := CheckCompatibility(tpl, compatSchema(), "email")
	require.Len(t, diags, 1)
	assert.Equal(t, DiagnosticDatatypeMismatch, diags[0].Kind)
	assert.Equal(t, "number", diags[0].Expected)
	assert.Equal(t, "string", diags[0].Found)
	assert.Equal(t, ">", diags[0].Operator)
}

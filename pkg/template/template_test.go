package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casthq/caster/pkg/models"
)

func TestExtractVariables(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "simple placeholders",
			body: "Hi {{name}}, your balance is {{bal}}",
			want: []string{"name", "bal"},
		},
		{
			name: "whitespace and case normalized",
			body: "{{ Name }} {{  ROLL_NO }}",
			want: []string{"name", "roll_no"},
		},
		{
			name: "duplicates removed, first appearance order kept",
			body: "{{b}} {{a}} {{b}} {{a}}",
			want: []string{"b", "a"},
		},
		{
			name: "no placeholders",
			body: "plain text",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractVariables(tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractVariables_EmptyBody(t *testing.T) {
	_, err := ExtractVariables("   ")
	assert.ErrorIs(t, err, ErrEmptyTemplate)
}

func TestValidate_ReportsMissingVariables(t *testing.T) {
	schema := models.Schema{{Name: "name", Type: models.ColumnTypeString}}

	missing, err := Validate("Hi {{name}}, balance {{bal}}", schema)
	require.NoError(t, err)
	assert.Equal(t, []string{"bal"}, missing)
}

func TestRender_Lenient(t *testing.T) {
	out, err := Render("Hi {{name}}, balance {{bal}}", models.Row{"name": "Amy"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Hi Amy, balance", out)
}

func TestRender_LenientIsDeterministic(t *testing.T) {
	row := models.Row{"name": "Amy"}

	first, err := Render("Hi {{name}}, balance {{bal}}", row, false)
	require.NoError(t, err)

	second, err := Render("Hi {{name}}, balance {{bal}}", row, false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestRender_StrictMissingVariable(t *testing.T) {
	_, err := Render("Hi {{name}}", models.Row{}, true)
	require.Error(t, err)

	var missing *MissingVariableError

	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "name", missing.Variable)
}

func TestRender_StrictEmptyResult(t *testing.T) {
	_, err := Render("{{name}}", models.Row{"name": "   "}, true)
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestRender_NormalizesRowKeys(t *testing.T) {
	out, err := Render("Hi {{name}}", models.Row{"\ufeff Name ": "Amy"}, true)
	require.NoError(t, err)
	assert.Equal(t, "Hi Amy", out)
}

func TestRender_TrimsOutput(t *testing.T) {
	out, err := Render("  Hi {{name}}  ", models.Row{"name": "Amy"}, false)
	require.NoError(t, err)
	assert.Equal(t, "Hi Amy", out)
}

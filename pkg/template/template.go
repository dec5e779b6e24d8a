// Package template provides placeholder extraction and per-row rendering
// for campaign message bodies.
package template

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/casthq/caster/pkg/models"
)

// variablePattern matches {{ identifier }} placeholders with optional
// surrounding whitespace. Identifiers are restricted to alphanumerics and
// underscore.
var variablePattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// ErrEmptyTemplate is returned when a template body is blank.
var ErrEmptyTemplate = errors.New("template body cannot be empty")

// ErrEmptyResult is returned by a strict render whose final trimmed
// output is empty. Callers treat it as a row-level failure.
var ErrEmptyResult = errors.New("rendered message is empty")

// MissingVariableError reports a placeholder with no matching row key
// during a strict render.
type MissingVariableError struct {
	Variable string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("missing value for variable %q in row", e.Variable)
}

// ExtractVariables returns the unique normalized placeholder names of a
// template body in order of first appearance.
func ExtractVariables(body string) ([]string, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyTemplate
	}

	matches := variablePattern.FindAllStringSubmatch(body, -1)

	seen := make(map[string]struct{}, len(matches))
	variables := make([]string, 0, len(matches))

	for _, match := range matches {
		name := models.NormalizeName(match[1])
		if name == "" {
			continue
		}

		if _, ok := seen[name]; ok {
			continue
		}

		seen[name] = struct{}{}
		variables = append(variables, name)
	}

	return variables, nil
}

// Validate checks that every template variable exists in the dataset
// schema and returns the missing ones.
func Validate(body string, schema models.Schema) ([]string, error) {
	variables, err := ExtractVariables(body)
	if err != nil {
		return nil, err
	}

	available := make(map[string]struct{}, len(schema))
	for _, col := range schema {
		available[models.NormalizeName(col.Name)] = struct{}{}
	}

	var missing []string

	for _, variable := range variables {
		if _, ok := available[variable]; !ok {
			missing = append(missing, variable)
		}
	}

	return missing, nil
}

// Render substitutes row values into the template body and trims the
// result. In strict mode a placeholder without a matching row key is an
// error, and so is an empty final string; in lenient mode missing values
// render as empty strings.
func Render(body string, row models.Row, strict bool) (string, error) {
	if body == "" {
		return "", nil
	}

	normalized := models.NormalizeRow(row)

	var missing *MissingVariableError

	rendered := variablePattern.ReplaceAllStringFunc(body, func(match string) string {
		key := models.NormalizeName(variablePattern.FindStringSubmatch(match)[1])

		value, ok := normalized[key]
		if !ok {
			if strict && missing == nil {
				missing = &MissingVariableError{Variable: key}
			}

			return ""
		}

		return value
	})

	if missing != nil {
		return "", missing
	}

	rendered = strings.TrimSpace(rendered)

	if strict && rendered == "" {
		return "", ErrEmptyResult
	}

	return rendered, nil
}

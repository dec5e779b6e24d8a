package models

import "strings"

// NormalizeName canonicalizes a column name or row key: the Excel BOM is
// stripped, surrounding whitespace trimmed and the result lowercased.
// Every column lookup in the engine goes through this same rule so that
// schema-time and execution-time views of a dataset cannot silently
// disagree.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(name, "\ufeff", "")))
}

// NormalizeSchema returns a copy of the schema with every column name
// normalized, so TypeOf lookups with normalized names always match.
func NormalizeSchema(schema Schema) Schema {
	normalized := make(Schema, 0, len(schema))
	for _, col := range schema {
		normalized = append(normalized, Column{Name: NormalizeName(col.Name), Type: col.Type})
	}

	return normalized
}

// NormalizeRow returns a copy of the row with every key normalized.
func NormalizeRow(row Row) Row {
	normalized := make(Row, len(row))
	for key, value := range row {
		normalized[NormalizeName(key)] = value
	}

	return normalized
}

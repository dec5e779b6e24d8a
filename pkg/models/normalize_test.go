package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "name", NormalizeName("\ufeff Name "))
	assert.Equal(t, "age", NormalizeName("AGE"))
	assert.Equal(t, "", NormalizeName(""))
}

func TestNormalizeRow(t *testing.T) {
	row := Row{"\ufeff Name ": "Amy", "AGE": "21"}

	assert.Equal(t, Row{"name": "Amy", "age": "21"}, NormalizeRow(row))
}

func TestNormalizeSchema(t *testing.T) {
	schema := Schema{
		{Name: "\ufeff Name ", Type: ColumnTypeString},
		{Name: "AGE", Type: ColumnTypeNumber},
	}

	normalized := NormalizeSchema(schema)
	assert.Equal(t, Schema{
		{Name: "name", Type: ColumnTypeString},
		{Name: "age", Type: ColumnTypeNumber},
	}, normalized)

	columnType, ok := normalized.TypeOf("age")
	assert.True(t, ok)
	assert.Equal(t, ColumnTypeNumber, columnType)
	assert.Equal(t, []string{"name", "age"}, normalized.Names())
}

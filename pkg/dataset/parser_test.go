package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casthq/caster/pkg/models"
)

func TestParseCSV_NormalizesHeadersAndValues(t *testing.T) {
	csv := "\ufeff Name , AGE \nAmy, 21 \nBob,17\n"

	ds, err := ParseCSV(strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, ds.RowCount)
	assert.Equal(t, models.Row{"name": "Amy", "age": "21"}, ds.Rows[0])
	assert.Equal(t, models.Schema{
		{Name: "name", Type: models.ColumnTypeString},
		{Name: "age", Type: models.ColumnTypeNumber},
	}, ds.Schema)
}

func TestParseCSV_BlankFile(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseCSV_HeaderOnlyIsEmptyDataset(t *testing.T) {
	ds, err := ParseCSV(strings.NewReader("name,age\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, ds.RowCount)
	assert.Empty(t, ds.Rows)
	assert.Equal(t, models.Schema{
		{Name: "name", Type: models.ColumnTypeString},
		{Name: "age", Type: models.ColumnTypeString},
	}, ds.Schema)
}

func TestParseCSV_DuplicateColumnsAfterNormalization(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("Name,NAME\na,b\n"))
	assert.ErrorIs(t, err, ErrDuplicateColumns)
}

func TestParseCSV_ShortRecordsPadToEmpty(t *testing.T) {
	ds, err := ParseCSV(strings.NewReader("name,age\nAmy\n"))
	require.NoError(t, err)
	assert.Equal(t, models.Row{"name": "Amy", "age": ""}, ds.Rows[0])
}

func TestParseCSV_Latin1Fallback(t *testing.T) {
	// 0xE9 is é in Latin-1 and invalid UTF-8 on its own.
	raw := append([]byte("name\nRen"), 0xE9, '\n')

	ds, err := ParseCSV(strings.NewReader(string(raw)))
	require.NoError(t, err)
	assert.Equal(t, "René", ds.Rows[0]["name"])
}

func TestParseFile_UnsupportedExtension(t *testing.T) {
	_, err := ParseFile("recipients.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseCSV_EmptyColumnIsString(t *testing.T) {
	ds, err := ParseCSV(strings.NewReader("email,name\n,Amy\n,Bob\n"))
	require.NoError(t, err)
	assert.Equal(t, models.ColumnTypeString, ds.Schema[0].Type)
}

func TestParseCSV_NumericRatio(t *testing.T) {
	numbers := "score\n10\n20\n30\n40\n50\n60\n70\n80\n90\nabsent\n"

	ds, err := ParseCSV(strings.NewReader(numbers))
	require.NoError(t, err)
	assert.Equal(t, models.ColumnTypeNumber, ds.Schema[0].Type)

	ds, err = ParseCSV(strings.NewReader(numbers + "also absent\n"))
	require.NoError(t, err)
	assert.Equal(t, models.ColumnTypeString, ds.Schema[0].Type)
}

package models

// ColumnType is the inferred type of one dataset column.
type ColumnType string

const (
	ColumnTypeString ColumnType = "string"
	ColumnTypeNumber ColumnType = "number"
)

// Column describes one dataset column as reported by the dataset
// subsystem. Names are stored normalized (trimmed, lowercased, BOM
// stripped).
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Schema is the ordered column list of one dataset.
type Schema []Column

// TypeOf returns the declared type of the named column. The name must
// already be normalized by the caller.
func (s Schema) TypeOf(name string) (ColumnType, bool) {
	for _, col := range s {
		if col.Name == name {
			return col.Type, true
		}
	}

	return "", false
}

// Names returns all column names in schema order.
func (s Schema) Names() []string {
	names := make([]string, 0, len(s))
	for _, col := range s {
		names = append(names, col.Name)
	}

	return names
}

// Row is one flat record from the dataset subsystem. Keys follow the same
// normalization as column names; values are raw cell strings.
type Row map[string]string

package models

// Table is an immutable snapshot of one backing sheet. The first row is the
// header; data rows are addressed by 1-based sheet row numbers, so row 2 is
// the first person.
type Table struct {
	Name    string
	Headers []string
	rows    [][]string
	index   map[string]int
}

// NewTable builds a snapshot from raw sheet values. The header index keeps
// the first occurrence when a column name repeats.
func NewTable(name string, values [][]string) *Table {
	t := &Table{Name: name, index: make(map[string]int)}
	if len(values) == 0 {
		return t
	}

	t.Headers = values[0]
	t.rows = values[1:]
	for i, header := range t.Headers {
		if _, ok := t.index[header]; !ok {
			t.index[header] = i
		}
	}
	return t
}

// ColumnIndex returns the 0-based position of a header, or -1.
func (t *Table) ColumnIndex(name string) int {
	if idx, ok := t.index[name]; ok {
		return idx
	}
	return -1
}

// Row returns the data row at the given 1-based sheet row number. Row 1 is
// the header and is never returned.
func (t *Table) Row(rowNumber int) ([]string, bool) {
	idx := rowNumber - 2
	if idx < 0 || idx >= len(t.rows) {
		return nil, false
	}
	return t.rows[idx], true
}

// Cell returns the value at (rowNumber, column name), tolerating ragged rows.
func (t *Table) Cell(rowNumber int, column string) (string, bool) {
	row, ok := t.Row(rowNumber)
	if !ok {
		return "", false
	}
	idx := t.ColumnIndex(column)
	if idx < 0 || idx >= len(row) {
		return "", false
	}
	return row[idx], true
}

// Body returns the data rows without the header.
func (t *Table) Body() [][]string {
	return t.rows
}

// RowCount is the number of data rows.
func (t *Table) RowCount() int {
	return len(t.rows)
}

// LastRowNumber is the 1-based sheet row number of the final data row, or 1
// when the table holds only a header.
func (t *Table) LastRowNumber() int {
	return len(t.rows) + 1
}

// Values reassembles the raw sheet values including the header.
func (t *Table) Values() [][]string {
	out := make([][]string, 0, len(t.rows)+1)
	if t.Headers != nil {
		out = append(out, t.Headers)
	}
	out = append(out, t.rows...)
	return out
}

package repository

import "context"

// RemoteStore is the backing spreadsheet-like store. Implementations must
// address data with 1-based row numbers where row 1 is the header.
type RemoteStore interface {
	// FetchAll returns every row of the sheet including the header.
	FetchAll(ctx context.Context, sheet string) ([][]string, error)
	// AppendRow adds a row after the current last row and returns its
	// 1-based row number.
	AppendRow(ctx context.Context, sheet string, cells []string) (int, error)
	// UpdateRow replaces the whole row at the given row number.
	UpdateRow(ctx context.Context, sheet string, rowNumber int, cells []string) error
	// SetCellValue writes one cell at (rowNumber, 1-based column index).
	SetCellValue(ctx context.Context, sheet string, rowNumber, column int, value string) error
	// DeleteRow removes the row and shifts subsequent rows up.
	DeleteRow(ctx context.Context, sheet string, rowNumber int) error
	// DeleteColumn removes the 1-based column from every row.
	DeleteColumn(ctx context.Context, sheet string, column int) error
	// CreateSheet makes an empty sheet with the given header row. Creating
	// an existing sheet is not an error.
	CreateSheet(ctx context.Context, sheet string, headers []string) error
}

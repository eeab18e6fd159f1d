package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore implements RemoteStore on a single sheet_rows table. Each
// sheet keeps contiguous row numbers starting at 1 for the header.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a store bound to the given database handle.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the backing table when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const query = `CREATE TABLE IF NOT EXISTS sheet_rows (
		sheet TEXT NOT NULL,
		row_number INT NOT NULL,
		cells TEXT[] NOT NULL,
		PRIMARY KEY (sheet, row_number)
	)`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure sheet schema: %w", err)
	}
	return nil
}

// FetchAll returns every row of the sheet ordered by row number.
func (s *PostgresStore) FetchAll(ctx context.Context, sheet string) ([][]string, error) {
	const query = `SELECT cells FROM sheet_rows WHERE sheet = $1 ORDER BY row_number`
	rows, err := s.db.QueryxContext(ctx, query, sheet)
	if err != nil {
		return nil, fmt.Errorf("fetch sheet %s: %w", sheet, err)
	}
	defer rows.Close() //nolint:errcheck

	var values [][]string
	for rows.Next() {
		var cells pq.StringArray
		if err := rows.Scan(&cells); err != nil {
			return nil, fmt.Errorf("scan sheet row: %w", err)
		}
		values = append(values, []string(cells))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sheet rows: %w", err)
	}
	return values, nil
}

// AppendRow adds a row after the current last one and returns its number.
func (s *PostgresStore) AppendRow(ctx context.Context, sheet string, cells []string) (int, error) {
	const query = `INSERT INTO sheet_rows (sheet, row_number, cells)
		SELECT $1, COALESCE(MAX(row_number), 0) + 1, $2 FROM sheet_rows WHERE sheet = $1
		RETURNING row_number`
	var rowNumber int
	if err := s.db.GetContext(ctx, &rowNumber, query, sheet, pq.Array(cells)); err != nil {
		return 0, fmt.Errorf("append row to %s: %w", sheet, err)
	}
	return rowNumber, nil
}

// UpdateRow replaces the whole row at the given row number.
func (s *PostgresStore) UpdateRow(ctx context.Context, sheet string, rowNumber int, cells []string) error {
	const query = `UPDATE sheet_rows SET cells = $3 WHERE sheet = $1 AND row_number = $2`
	res, err := s.db.ExecContext(ctx, query, sheet, rowNumber, pq.Array(cells))
	if err != nil {
		return fmt.Errorf("update row %d of %s: %w", rowNumber, sheet, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update row %d of %s: %w", rowNumber, sheet, err)
	}
	if affected == 0 {
		return fmt.Errorf("update row %d of %s: row does not exist", rowNumber, sheet)
	}
	return nil
}

// SetCellValue writes one cell, padding the row when the column lies past
// its current width.
func (s *PostgresStore) SetCellValue(ctx context.Context, sheet string, rowNumber, column int, value string) error {
	const query = `UPDATE sheet_rows
		SET cells = (
			SELECT array_agg(CASE WHEN idx = $3 THEN $4 ELSE COALESCE(cells[idx], '') END ORDER BY idx)
			FROM generate_series(1, GREATEST(cardinality(cells), $3)) AS idx
		)
		WHERE sheet = $1 AND row_number = $2`
	res, err := s.db.ExecContext(ctx, query, sheet, rowNumber, column, value)
	if err != nil {
		return fmt.Errorf("set cell (%d,%d) of %s: %w", rowNumber, column, sheet, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set cell (%d,%d) of %s: %w", rowNumber, column, sheet, err)
	}
	if affected == 0 {
		return fmt.Errorf("set cell (%d,%d) of %s: row does not exist", rowNumber, column, sheet)
	}
	return nil
}

// DeleteRow removes a row and shifts subsequent rows up, matching how a
// spreadsheet renumbers after deletion.
func (s *PostgresStore) DeleteRow(ctx context.Context, sheet string, rowNumber int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete row %d of %s: %w", rowNumber, sheet, err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM sheet_rows WHERE sheet = $1 AND row_number = $2`, sheet, rowNumber)
	if err != nil {
		return fmt.Errorf("delete row %d of %s: %w", rowNumber, sheet, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete row %d of %s: %w", rowNumber, sheet, err)
	}
	if affected == 0 {
		return fmt.Errorf("delete row %d of %s: row does not exist", rowNumber, sheet)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sheet_rows SET row_number = row_number - 1 WHERE sheet = $1 AND row_number > $2`, sheet, rowNumber); err != nil {
		return fmt.Errorf("renumber rows of %s: %w", sheet, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete row %d of %s: %w", rowNumber, sheet, err)
	}
	return nil
}

// DeleteColumn removes the 1-based column from every row of the sheet.
func (s *PostgresStore) DeleteColumn(ctx context.Context, sheet string, column int) error {
	const query = `UPDATE sheet_rows
		SET cells = cells[1:$2-1] || cells[$2+1:cardinality(cells)]
		WHERE sheet = $1 AND cardinality(cells) >= $2`
	if _, err := s.db.ExecContext(ctx, query, sheet, column); err != nil {
		return fmt.Errorf("delete column %d of %s: %w", column, sheet, err)
	}
	return nil
}

// CreateSheet writes the header row for a new sheet. An existing sheet is
// left untouched.
func (s *PostgresStore) CreateSheet(ctx context.Context, sheet string, headers []string) error {
	const query = `INSERT INTO sheet_rows (sheet, row_number, cells)
		VALUES ($1, 1, $2)
		ON CONFLICT (sheet, row_number) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, sheet, pq.Array(headers)); err != nil {
		return fmt.Errorf("create sheet %s: %w", sheet, err)
	}
	return nil
}

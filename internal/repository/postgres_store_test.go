package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	db := sqlx.NewDb(mockDB, "sqlmock")
	return NewPostgresStore(db), mock
}

func TestPostgresStoreFetchAll(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"cells"}).
		AddRow([]byte(`{Имя,Фамилия}`)).
		AddRow([]byte(`{Анна,Иванова}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT cells FROM sheet_rows WHERE sheet = $1 ORDER BY row_number`)).
		WithArgs("MainSheet").
		WillReturnRows(rows)

	values, err := store.FetchAll(context.Background(), "MainSheet")
	require.NoError(t, err)
	require.Len(t, values, 2)
	assert.Equal(t, []string{"Имя", "Фамилия"}, values[0])
	assert.Equal(t, []string{"Анна", "Иванова"}, values[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreAppendRowReturnsNumber(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("INSERT INTO sheet_rows").
		WillReturnRows(sqlmock.NewRows([]string{"row_number"}).AddRow(5))

	rowNumber, err := store.AppendRow(context.Background(), "MainSheet", []string{"Пётр", "Сидоров"})
	require.NoError(t, err)
	assert.Equal(t, 5, rowNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreUpdateRowMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE sheet_rows SET cells").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateRow(context.Background(), "MainSheet", 42, []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row does not exist")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDeleteRowRenumbers(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sheet_rows WHERE sheet = $1 AND row_number = $2`)).
		WithArgs("MainSheet", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sheet_rows SET row_number = row_number - 1 WHERE sheet = $1 AND row_number > $2`)).
		WithArgs("MainSheet", 3).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	err := store.DeleteRow(context.Background(), "MainSheet", 3)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreDeleteRowMissingRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sheet_rows").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.DeleteRow(context.Background(), "MainSheet", 99)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreCreateSheetIdempotent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO sheet_rows").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.CreateSheet(context.Background(), "Users", []string{"ID", "Имя"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/config"
	"github.com/parish-tools/rosterbot/pkg/errors"
)

// stubTableStore is an in-memory TableStore for service tests.
type stubTableStore struct {
	mu         sync.Mutex
	sheets     map[string][][]string
	failGet    bool
	failSheets map[string]bool

	appended map[string][][]string
	deleted  []int
}

func newStubTableStore() *stubTableStore {
	return &stubTableStore{
		sheets:     make(map[string][][]string),
		failSheets: make(map[string]bool),
		appended:   make(map[string][][]string),
	}
}

func (s *stubTableStore) Get(_ context.Context, name string) (*models.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet || s.failSheets[name] {
		return nil, errors.Clone(errors.ErrBackingStore, "store offline")
	}
	return models.NewTable(name, s.sheets[name]), nil
}

func (s *stubTableStore) Refresh(ctx context.Context, name string) (*models.Table, error) {
	return s.Get(ctx, name)
}

func (s *stubTableStore) RefreshAll(ctx context.Context, names []string) error {
	for _, name := range names {
		if _, err := s.Get(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubTableStore) AppendRow(_ context.Context, name string, cells []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[name] = append(s.sheets[name], append([]string(nil), cells...))
	s.appended[name] = append(s.appended[name], append([]string(nil), cells...))
	return len(s.sheets[name]), nil
}

func (s *stubTableStore) UpdateRow(_ context.Context, name string, rowNumber int, cells []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sheets[name]
	if rowNumber < 2 || rowNumber > len(rows) {
		return errors.Clone(errors.ErrNotFound, "row not found")
	}
	rows[rowNumber-1] = append([]string(nil), cells...)
	return nil
}

func (s *stubTableStore) SetCell(_ context.Context, name string, rowNumber int, column, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sheets[name]
	if rowNumber < 1 || rowNumber > len(rows) {
		return errors.Clone(errors.ErrNotFound, "row not found")
	}
	table := models.NewTable(name, rows)
	idx := table.ColumnIndex(column)
	if idx < 0 {
		return errors.Clone(errors.ErrNotFound, "column not found")
	}
	row := rows[rowNumber-1]
	for len(row) <= idx {
		row = append(row, "")
	}
	row[idx] = value
	rows[rowNumber-1] = row
	return nil
}

func (s *stubTableStore) AddColumn(_ context.Context, name, column string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sheets[name]
	if len(rows) == 0 {
		return false, fmt.Errorf("sheet %s has no header", name)
	}
	for _, header := range rows[0] {
		if header == column {
			return false, nil
		}
	}
	rows[0] = append(rows[0], column)
	return true, nil
}

func (s *stubTableStore) DeleteRow(_ context.Context, name string, rowNumber int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sheets[name]
	if rowNumber < 2 || rowNumber > len(rows) {
		return errors.Clone(errors.ErrNotFound, "row not found")
	}
	s.sheets[name] = append(rows[:rowNumber-1], rows[rowNumber:]...)
	s.deleted = append(s.deleted, rowNumber)
	return nil
}

func (s *stubTableStore) DeleteColumn(_ context.Context, name, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.sheets[name]
	if len(rows) == 0 {
		return errors.Clone(errors.ErrNotFound, "column not found")
	}
	idx := -1
	for i, header := range rows[0] {
		if header == column {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Clone(errors.ErrNotFound, "column not found")
	}
	for i, row := range rows {
		if idx < len(row) {
			rows[i] = append(row[:idx], row[idx+1:]...)
		}
	}
	return nil
}

// stubAudit collects audit records synchronously.
type stubAudit struct {
	mu      sync.Mutex
	records []models.AuditRecord
}

func (a *stubAudit) Record(record models.AuditRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, record)
}

func (a *stubAudit) byTable(table string) []models.AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.AuditRecord
	for _, r := range a.records {
		if r.Table == table {
			out = append(out, r)
		}
	}
	return out
}

func testRosterConfig() config.RosterConfig {
	return config.RosterConfig{
		MainTable:       "MainSheet",
		UsersTable:      "Users",
		AccessLogTable:  "AccessLog",
		ActionLogTable:  "ActionLog",
		FirstNameColumn: "Имя",
		LastNameColumn:  "Фамилия",
		BirthDateColumn: "Дата рождения",
		HomeroomColumn:  "Домашка",
		StatusColumn:    "Статус",
		PhotoColumn:     "Фото",
		DateColumns:     []string{"Дата рождения", "Дата"},
		HomeroomValues:  []string{"Гоша / Zion", "Ирина / Miracle", "Не распределен"},
		StatusValues:    []string{"активный", "неактивный", "вип"},
		UnassignedGroup: "Не распределен",
	}
}

func seedRoster(store *stubTableStore) {
	store.sheets["MainSheet"] = [][]string{
		{"Имя", "Фамилия", "Дата рождения", "Домашка", "Статус"},
		{"Анна", "Иванова", "2010-03-15", "Гоша / Zion", "активный"},
		{"Пётр", "Сидоров", "2011-07-01", "", "активный"},
		{"Мария", "Иванова", "2012-11-30", "Ирина / Miracle", "вип"},
		{"Анна", "Иванова", "2009-01-02", "Гоша / Zion", "неактивный"},
	}
	store.sheets["Users"] = [][]string{
		{"ID", "Имя", "Username", "Роль", "Дата добавления"},
		{"200", "Оля", "olya", "user", "01.01.2026 10:00:00"},
		{"300", "Max", "max", "admin", "02.01.2026 10:00:00"},
	}
	store.sheets["AccessLog"] = [][]string{
		{"Время", "ID", "Имя", "Решение", "Детали"},
	}
	store.sheets["ActionLog"] = [][]string{
		{"Время", "ID", "Имя", "Действие", "Детали"},
	}
}

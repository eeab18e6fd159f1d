package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/config"
	"github.com/parish-tools/rosterbot/pkg/errors"
)

// Field is one rendered card attribute.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PersonCard is a fully rendered person view.
type PersonCard struct {
	RowNumber int     `json:"row_number"`
	Title     string  `json:"title"`
	Fields    []Field `json:"fields"`
	Age       int     `json:"age,omitempty"`
}

// BirthdayEntry is one line of a month's birthday listing.
type BirthdayEntry struct {
	RowNumber int    `json:"row_number"`
	Name      string `json:"name"`
	Date      string `json:"date"`
	TurnsAge  int    `json:"turns_age"`
}

// HomeroomGroup pairs a group name with its member count.
type HomeroomGroup struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RosterService reads and mutates the main roster table. All reads go
// through the cache snapshot; writes push through to the backing store.
type RosterService struct {
	store  TableStore
	cfg    config.RosterConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRosterService wires the roster domain service.
func NewRosterService(store TableStore, cfg config.RosterConfig, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterService{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Headers returns the main table's column names.
func (s *RosterService) Headers(ctx context.Context) ([]string, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}
	return table.Headers, nil
}

// Letters lists the distinct first letters of first names, sorted.
func (s *RosterService) Letters(ctx context.Context) ([]string, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}

	firstCol := table.ColumnIndex(s.cfg.FirstNameColumn)
	seen := make(map[string]struct{})
	for _, row := range table.Body() {
		letter := firstLetter(cellAt(row, firstCol))
		if letter != "" {
			seen[letter] = struct{}{}
		}
	}

	letters := make([]string, 0, len(seen))
	for letter := range seen {
		letters = append(letters, letter)
	}
	sort.Strings(letters)
	return letters, nil
}

// PeopleByLetter lists people whose first name starts with the letter. When
// two people share a full name their labels carry the birth date so the
// buttons stay distinguishable.
func (s *RosterService) PeopleByLetter(ctx context.Context, letter string) ([]models.PersonRef, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}

	firstCol := table.ColumnIndex(s.cfg.FirstNameColumn)
	lastCol := table.ColumnIndex(s.cfg.LastNameColumn)
	birthCol := table.ColumnIndex(s.cfg.BirthDateColumn)

	type entry struct {
		ref   models.PersonRef
		full  string
		birth string
	}

	var entries []entry
	nameCount := make(map[string]int)
	for i := 2; i <= table.LastRowNumber(); i++ {
		row, _ := table.Row(i)
		first := strings.TrimSpace(cellAt(row, firstCol))
		if !strings.EqualFold(firstLetter(first), letter) {
			continue
		}
		last := strings.TrimSpace(cellAt(row, lastCol))
		full := strings.TrimSpace(first + " " + last)
		if full == "" {
			continue
		}
		nameCount[full]++
		entries = append(entries, entry{
			ref:   models.PersonRef{RowNumber: i, Label: full},
			full:  full,
			birth: cellAt(row, birthCol),
		})
	}

	for i := range entries {
		if nameCount[entries[i].full] > 1 && strings.TrimSpace(entries[i].birth) != "" {
			entries[i].ref.Label = fmt.Sprintf("%s (р. %s)", entries[i].full, models.FormatDisplayDate(entries[i].birth))
		}
	}

	sort.Slice(entries, func(a, b int) bool { return entries[a].ref.Label < entries[b].ref.Label })

	refs := make([]models.PersonRef, len(entries))
	for i, e := range entries {
		refs[i] = e.ref
	}
	return refs, nil
}

// Card renders the person at the given sheet row. Empty cells are omitted,
// date columns come out in display form, and a parseable birth date adds
// the current age.
func (s *RosterService) Card(ctx context.Context, rowNumber int) (*PersonCard, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}

	row, ok := table.Row(rowNumber)
	if !ok {
		return nil, errors.Clone(errors.ErrNotFound, "person not found")
	}

	card := &PersonCard{RowNumber: rowNumber}
	for i, header := range table.Headers {
		value := strings.TrimSpace(cellAt(row, i))
		if value == "" {
			continue
		}
		if s.cfg.DateColumn(header) {
			value = models.FormatDisplayDate(value)
		}
		card.Fields = append(card.Fields, Field{Name: header, Value: value})
	}

	first := cellAt(row, table.ColumnIndex(s.cfg.FirstNameColumn))
	last := cellAt(row, table.ColumnIndex(s.cfg.LastNameColumn))
	card.Title = strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))

	if birth, ok := models.ParseFlexibleDate(cellAt(row, table.ColumnIndex(s.cfg.BirthDateColumn))); ok {
		card.Age = models.Age(birth, s.now())
	}
	return card, nil
}

// DraftForRow copies the person's current values into a draft for editing.
// Dates stay in canonical form so a round-trip save does not reformat them.
func (s *RosterService) DraftForRow(ctx context.Context, rowNumber int) (map[string]string, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}

	row, ok := table.Row(rowNumber)
	if !ok {
		return nil, errors.Clone(errors.ErrNotFound, "person not found")
	}

	draft := make(map[string]string)
	for i, header := range table.Headers {
		value := strings.TrimSpace(cellAt(row, i))
		if value == "" {
			continue
		}
		draft[header] = value
	}
	return draft, nil
}

// SaveDraft persists a draft. With rowNumber 0 a new person is appended,
// otherwise the existing row is replaced. Draft keys that name unknown
// columns are created first, and date columns are canonicalized to
// YYYY-MM-DD. Returns the saved row number.
func (s *RosterService) SaveDraft(ctx context.Context, rowNumber int, draft map[string]string) (int, error) {
	if len(draft) == 0 {
		return 0, errors.Clone(errors.ErrValidation, "nothing to save")
	}

	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return 0, err
	}

	for _, key := range sortedKeys(draft) {
		if table.ColumnIndex(key) < 0 {
			if _, err := s.store.AddColumn(ctx, s.cfg.MainTable, key); err != nil {
				return 0, err
			}
		}
	}
	// Re-read so new columns are part of the header.
	if table, err = s.store.Get(ctx, s.cfg.MainTable); err != nil {
		return 0, err
	}

	cells := make([]string, len(table.Headers))
	if rowNumber > 0 {
		existing, ok := table.Row(rowNumber)
		if !ok {
			return 0, errors.Clone(errors.ErrNotFound, "person not found")
		}
		copy(cells, existing)
	}

	for key, value := range draft {
		idx := table.ColumnIndex(key)
		if idx < 0 || idx >= len(cells) {
			continue
		}
		if s.cfg.DateColumn(key) {
			value = models.CanonicalDate(value)
		}
		cells[idx] = strings.TrimSpace(value)
	}

	if rowNumber > 0 {
		if err := s.store.UpdateRow(ctx, s.cfg.MainTable, rowNumber, cells); err != nil {
			return 0, err
		}
		return rowNumber, nil
	}
	return s.store.AppendRow(ctx, s.cfg.MainTable, cells)
}

// DeletePerson removes the person's row. Cached row numbers below it go
// stale, so the cache reloads as part of the delete.
func (s *RosterService) DeletePerson(ctx context.Context, rowNumber int) error {
	return s.store.DeleteRow(ctx, s.cfg.MainTable, rowNumber)
}

// AddField creates a new roster column. Reports false when it already
// existed.
func (s *RosterService) AddField(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.Clone(errors.ErrValidation, "field name is empty")
	}
	return s.store.AddColumn(ctx, s.cfg.MainTable, name)
}

// DeleteField removes a roster column and every value stored in it. The
// well-known columns from configuration are protected.
func (s *RosterService) DeleteField(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.Clone(errors.ErrValidation, "field name is empty")
	}
	for _, protected := range []string{
		s.cfg.FirstNameColumn, s.cfg.LastNameColumn, s.cfg.BirthDateColumn,
	} {
		if name == protected {
			return errors.Clone(errors.ErrValidation, "cannot delete a core column")
		}
	}

	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return err
	}
	if table.ColumnIndex(name) < 0 {
		return errors.Clone(errors.ErrNotFound, "column not found")
	}
	return s.store.DeleteColumn(ctx, s.cfg.MainTable, name)
}

// Refresh drops all cached tables and reloads them from the store.
func (s *RosterService) Refresh(ctx context.Context) error {
	return s.store.RefreshAll(ctx, s.cfg.KnownTables())
}

// BirthdaysByMonth lists people born in the given month sorted by day.
// Rows whose birth date does not parse are skipped rather than guessed at.
func (s *RosterService) BirthdaysByMonth(ctx context.Context, month time.Month) ([]BirthdayEntry, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}

	firstCol := table.ColumnIndex(s.cfg.FirstNameColumn)
	lastCol := table.ColumnIndex(s.cfg.LastNameColumn)
	birthCol := table.ColumnIndex(s.cfg.BirthDateColumn)
	if birthCol < 0 {
		return nil, errors.Clone(errors.ErrNotFound, "birth date column missing")
	}

	year := s.now().Year()
	var entries []BirthdayEntry
	type keyed struct {
		day   int
		entry BirthdayEntry
	}
	var rows []keyed
	for i := 2; i <= table.LastRowNumber(); i++ {
		row, _ := table.Row(i)
		birth, ok := models.ParseFlexibleDate(cellAt(row, birthCol))
		if !ok || birth.Month() != month {
			continue
		}
		name := strings.TrimSpace(strings.TrimSpace(cellAt(row, firstCol)) + " " + strings.TrimSpace(cellAt(row, lastCol)))
		rows = append(rows, keyed{
			day: birth.Day(),
			entry: BirthdayEntry{
				RowNumber: i,
				Name:      name,
				Date:      birth.Format(models.DisplayDateLayout),
				TurnsAge:  year - birth.Year(),
			},
		})
	}

	sort.Slice(rows, func(a, b int) bool {
		if rows[a].day != rows[b].day {
			return rows[a].day < rows[b].day
		}
		return rows[a].entry.Name < rows[b].entry.Name
	})
	for _, r := range rows {
		entries = append(entries, r.entry)
	}
	return entries, nil
}

// HomeroomGroups lists the groups present in the roster with member counts.
// People without a group fall under the configured unassigned sentinel.
// Configured group order wins; unknown groups follow alphabetically.
func (s *RosterService) HomeroomGroups(ctx context.Context) ([]HomeroomGroup, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}

	homeroomCol := table.ColumnIndex(s.cfg.HomeroomColumn)
	counts := make(map[string]int)
	for _, row := range table.Body() {
		group := strings.TrimSpace(cellAt(row, homeroomCol))
		if group == "" {
			group = s.cfg.UnassignedGroup
		}
		counts[group]++
	}

	var groups []HomeroomGroup
	seen := make(map[string]struct{})
	for _, name := range s.cfg.HomeroomValues {
		if count, ok := counts[name]; ok {
			groups = append(groups, HomeroomGroup{Name: name, Count: count})
			seen[name] = struct{}{}
		}
	}

	var extra []string
	for name := range counts {
		if _, ok := seen[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		groups = append(groups, HomeroomGroup{Name: name, Count: counts[name]})
	}
	return groups, nil
}

// PeopleByHomeroom lists the members of one group sorted by name. Each
// label carries the person's age and status; an unreadable birth date
// shows as "Н/Д" instead of a guessed age.
func (s *RosterService) PeopleByHomeroom(ctx context.Context, group string) ([]models.PersonRef, error) {
	table, err := s.store.Get(ctx, s.cfg.MainTable)
	if err != nil {
		return nil, err
	}

	firstCol := table.ColumnIndex(s.cfg.FirstNameColumn)
	lastCol := table.ColumnIndex(s.cfg.LastNameColumn)
	homeroomCol := table.ColumnIndex(s.cfg.HomeroomColumn)
	birthCol := table.ColumnIndex(s.cfg.BirthDateColumn)
	statusCol := table.ColumnIndex(s.cfg.StatusColumn)

	var refs []models.PersonRef
	for i := 2; i <= table.LastRowNumber(); i++ {
		row, _ := table.Row(i)
		value := strings.TrimSpace(cellAt(row, homeroomCol))
		if value == "" {
			value = s.cfg.UnassignedGroup
		}
		if value != group {
			continue
		}
		name := strings.TrimSpace(strings.TrimSpace(cellAt(row, firstCol)) + " " + strings.TrimSpace(cellAt(row, lastCol)))
		if name == "" {
			continue
		}

		ageStr := "Н/Д"
		if birth, ok := models.ParseFlexibleDate(cellAt(row, birthCol)); ok {
			ageStr = fmt.Sprintf("%d лет", models.Age(birth, s.now()))
		}
		details := []string{ageStr}
		if status := strings.TrimSpace(cellAt(row, statusCol)); status != "" {
			details = append(details, status)
		}
		label := fmt.Sprintf("%s (%s)", name, strings.Join(details, ", "))
		refs = append(refs, models.PersonRef{RowNumber: i, Label: label})
	}

	sort.Slice(refs, func(a, b int) bool { return refs[a].Label < refs[b].Label })
	return refs, nil
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func firstLetter(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(value)
	return strings.ToUpper(string(r))
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

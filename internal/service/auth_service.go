package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/config"
	"github.com/parish-tools/rosterbot/pkg/errors"
)

// TableStore is the slice of the table cache the services consume.
type TableStore interface {
	Get(ctx context.Context, name string) (*models.Table, error)
	Refresh(ctx context.Context, name string) (*models.Table, error)
	RefreshAll(ctx context.Context, names []string) error
	AppendRow(ctx context.Context, name string, cells []string) (int, error)
	UpdateRow(ctx context.Context, name string, rowNumber int, cells []string) error
	SetCell(ctx context.Context, name string, rowNumber int, column, value string) error
	AddColumn(ctx context.Context, name, column string) (bool, error)
	DeleteRow(ctx context.Context, name string, rowNumber int) error
	DeleteColumn(ctx context.Context, name, column string) error
}

// AuditSink receives audit records for asynchronous persistence.
type AuditSink interface {
	Record(record models.AuditRecord)
}

// DatabaseStats summarizes the main roster table. Maps are nil when the
// corresponding column is missing from the sheet.
type DatabaseStats struct {
	Records    int
	Columns    int
	ByStatus   map[string]int
	ByHomeroom map[string]int
}

// UserStats counts the authorized users by role.
type UserStats struct {
	Total   int
	Admins  int
	Regular int
}

// LogStats counts the access log decisions.
type LogStats struct {
	Total   int
	Granted int
	Denied  int
}

// Stats groups the admin panel counters. A section is nil when its table
// could not be loaded.
type Stats struct {
	Database *DatabaseStats
	Users    *UserStats
	Logs     *LogStats
}

// AuthService decides who may talk to the bot and manages the users table.
// The main administrator from configuration is always allowed; user
// management takes admin rights (the main admin or a row with the admin
// role).
type AuthService struct {
	store  TableStore
	audit  AuditSink
	cfg    config.RosterConfig
	admin  int64
	logger *zap.Logger
}

// NewAuthService wires the access control service.
func NewAuthService(store TableStore, auditSink AuditSink, cfg config.RosterConfig, mainAdminID int64, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{store: store, audit: auditSink, cfg: cfg, admin: mainAdminID, logger: logger}
}

// IsAdmin reports whether the user is the main administrator.
func (s *AuthService) IsAdmin(userID int64) bool {
	return userID == s.admin
}

// CheckAccess resolves the user's access level and records the decision in
// the access log. Every check is audited, denied ones included. Users
// whose table row carries the admin role resolve to GRANTED_ADMIN.
func (s *AuthService) CheckAccess(ctx context.Context, userID int64, displayName string) (models.AccessDecision, error) {
	if s.IsAdmin(userID) {
		s.logAccess(userID, displayName, models.AccessGrantedAdmin)
		return models.AccessGrantedAdmin, nil
	}

	table, err := s.store.Get(ctx, s.cfg.UsersTable)
	if err != nil {
		s.logAccess(userID, displayName, models.AccessDenied)
		return models.AccessDenied, err
	}

	rowNumber, found := s.findUserRow(table, userID)
	if !found {
		s.logAccess(userID, displayName, models.AccessDenied)
		return models.AccessDenied, nil
	}

	if user, ok := s.userAt(table, rowNumber); ok && user.Admin() {
		s.logAccess(userID, displayName, models.AccessGrantedAdmin)
		return models.AccessGrantedAdmin, nil
	}
	s.logAccess(userID, displayName, models.AccessGranted)
	return models.AccessGranted, nil
}

// HasAdminRights reports whether the user may use the admin surface: the
// main administrator, or any users-table entry with the admin role.
func (s *AuthService) HasAdminRights(ctx context.Context, userID int64) (bool, error) {
	if s.IsAdmin(userID) {
		return true, nil
	}
	table, err := s.store.Get(ctx, s.cfg.UsersTable)
	if err != nil {
		return false, err
	}
	rowNumber, found := s.findUserRow(table, userID)
	if !found {
		return false, nil
	}
	user, ok := s.userAt(table, rowNumber)
	return ok && user.Admin(), nil
}

// Users lists the authorized users from the users table.
func (s *AuthService) Users(ctx context.Context) ([]models.AuthorizedUser, error) {
	table, err := s.store.Get(ctx, s.cfg.UsersTable)
	if err != nil {
		return nil, err
	}

	users := make([]models.AuthorizedUser, 0, table.RowCount())
	for i := 2; i <= table.LastRowNumber(); i++ {
		user, ok := s.userAt(table, i)
		if !ok {
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

// AddUser grants access to a new user ID. Duplicates are a conflict, the
// main administrator needs no entry.
func (s *AuthService) AddUser(ctx context.Context, actorID int64, actorName string, newUser models.AuthorizedUser) error {
	if err := s.requireAdminRights(ctx, actorID); err != nil {
		return err
	}
	if newUser.ID == s.admin {
		return errors.Clone(errors.ErrConflict, "main administrator always has access")
	}

	table, err := s.store.Get(ctx, s.cfg.UsersTable)
	if err != nil {
		return err
	}
	if _, found := s.findUserRow(table, newUser.ID); found {
		return errors.Clone(errors.ErrConflict, "user already authorized")
	}

	role := newUser.Role
	if role == "" {
		role = models.RoleUser
	}
	cells := []string{
		strconv.FormatInt(newUser.ID, 10),
		newUser.Name,
		newUser.Username,
		role,
		time.Now().Format("02.01.2006 15:04:05"),
	}
	if _, err := s.store.AppendRow(ctx, s.cfg.UsersTable, cells); err != nil {
		return err
	}

	s.LogAction(actorID, actorName, "ADD_USER", strconv.FormatInt(newUser.ID, 10))
	return nil
}

// RemoveUser revokes access. The main administrator cannot be removed. When
// an ID occurs more than once the newest entry goes first.
func (s *AuthService) RemoveUser(ctx context.Context, actorID int64, actorName string, userID int64) error {
	if err := s.requireAdminRights(ctx, actorID); err != nil {
		return err
	}
	if userID == s.admin {
		return errors.Clone(errors.ErrForbidden, "cannot remove the main administrator")
	}

	table, err := s.store.Get(ctx, s.cfg.UsersTable)
	if err != nil {
		return err
	}
	rowNumber, found := s.findUserRow(table, userID)
	if !found {
		return errors.Clone(errors.ErrNotFound, "user not authorized")
	}

	if err := s.store.DeleteRow(ctx, s.cfg.UsersTable, rowNumber); err != nil {
		return err
	}

	s.LogAction(actorID, actorName, "REMOVE_USER", strconv.FormatInt(userID, 10))
	return nil
}

// Stats aggregates roster counters for the admin panel. Each section is
// computed independently: a table that fails to load drops its section
// instead of failing the whole call.
func (s *AuthService) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if main, err := s.store.Get(ctx, s.cfg.MainTable); err != nil {
		s.logger.Warn("stats: main table unavailable", zap.Error(err))
	} else {
		db := &DatabaseStats{
			Records: main.RowCount(),
			Columns: len(main.Headers),
		}
		if idx := main.ColumnIndex(s.cfg.StatusColumn); idx >= 0 {
			db.ByStatus = countColumn(main, idx)
		}
		if idx := main.ColumnIndex(s.cfg.HomeroomColumn); idx >= 0 {
			db.ByHomeroom = countColumn(main, idx)
		}
		stats.Database = db
	}

	if users, err := s.store.Get(ctx, s.cfg.UsersTable); err != nil {
		s.logger.Warn("stats: users table unavailable", zap.Error(err))
	} else {
		us := &UserStats{Total: users.RowCount()}
		for i := 2; i <= users.LastRowNumber(); i++ {
			if user, ok := s.userAt(users, i); ok && user.Admin() {
				us.Admins++
			}
		}
		us.Regular = us.Total - us.Admins
		stats.Users = us
	}

	if log, err := s.store.Get(ctx, s.cfg.AccessLogTable); err != nil {
		s.logger.Warn("stats: access log unavailable", zap.Error(err))
	} else {
		decisionCol := log.ColumnIndex("Решение")
		if decisionCol < 0 {
			decisionCol = 3
		}
		ls := &LogStats{Total: log.RowCount()}
		for _, row := range log.Body() {
			switch models.AccessDecision(strings.TrimSpace(cellAt(row, decisionCol))) {
			case models.AccessGranted, models.AccessGrantedAdmin:
				ls.Granted++
			case models.AccessDenied:
				ls.Denied++
			}
		}
		stats.Logs = ls
	}

	return stats, nil
}

// AccessLogTail returns the newest n access log rows, newest first.
func (s *AuthService) AccessLogTail(ctx context.Context, n int) ([][]string, error) {
	table, err := s.store.Get(ctx, s.cfg.AccessLogTable)
	if err != nil {
		return nil, err
	}

	body := table.Body()
	if n <= 0 || n > len(body) {
		n = len(body)
	}
	out := make([][]string, 0, n)
	for i := len(body) - 1; i >= len(body)-n; i-- {
		out = append(out, body[i])
	}
	return out, nil
}

// LogAction records a user action in the action log.
func (s *AuthService) LogAction(userID int64, userName, action, details string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(models.AuditRecord{
		Table:    s.cfg.ActionLogTable,
		UserID:   userID,
		UserName: userName,
		Action:   action,
		Details:  details,
	})
}

func (s *AuthService) logAccess(userID int64, displayName string, decision models.AccessDecision) {
	if s.audit == nil {
		return
	}
	s.audit.Record(models.AuditRecord{
		Table:    s.cfg.AccessLogTable,
		UserID:   userID,
		UserName: displayName,
		Action:   string(decision),
	})
}

// findUserRow scans from the bottom so a duplicate ID resolves to the most
// recently added entry.
func (s *AuthService) findUserRow(table *models.Table, userID int64) (int, bool) {
	idCol := table.ColumnIndex("ID")
	if idCol < 0 {
		idCol = 0
	}
	target := strconv.FormatInt(userID, 10)
	for i := table.LastRowNumber(); i >= 2; i-- {
		row, ok := table.Row(i)
		if !ok {
			continue
		}
		if idCol < len(row) && strings.TrimSpace(row[idCol]) == target {
			return i, true
		}
	}
	return 0, false
}

func (s *AuthService) userAt(table *models.Table, rowNumber int) (models.AuthorizedUser, bool) {
	row, ok := table.Row(rowNumber)
	if !ok {
		return models.AuthorizedUser{}, false
	}

	get := func(column string, fallback int) string {
		idx := table.ColumnIndex(column)
		if idx < 0 {
			idx = fallback
		}
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	id, err := strconv.ParseInt(get("ID", 0), 10, 64)
	if err != nil {
		return models.AuthorizedUser{}, false
	}
	return models.AuthorizedUser{
		ID:       id,
		Name:     get("Имя", 1),
		Username: get("Username", 2),
		Role:     get("Роль", 3),
		AddedAt:  get("Дата добавления", 4),
	}, true
}

func (s *AuthService) requireAdminRights(ctx context.Context, userID int64) error {
	ok, err := s.HasAdminRights(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Clone(errors.ErrForbidden, "administrator rights required")
	}
	return nil
}

func countColumn(table *models.Table, idx int) map[string]int {
	counts := make(map[string]int)
	for _, row := range table.Body() {
		value := ""
		if idx < len(row) {
			value = strings.TrimSpace(row[idx])
		}
		if value == "" {
			continue
		}
		counts[value]++
	}
	return counts
}

package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/errors"
)

const mainAdminID int64 = 100

func newAuthService(store *stubTableStore, audit *stubAudit) *AuthService {
	return NewAuthService(store, audit, testRosterConfig(), mainAdminID, nil)
}

func TestCheckAccessAdmin(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	audit := &stubAudit{}
	svc := newAuthService(store, audit)

	decision, err := svc.CheckAccess(context.Background(), mainAdminID, "Admin")
	require.NoError(t, err)
	assert.Equal(t, models.AccessGrantedAdmin, decision)

	records := audit.byTable("AccessLog")
	require.Len(t, records, 1)
	assert.Equal(t, "GRANTED_ADMIN", records[0].Action)
}

func TestCheckAccessAuthorizedUser(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	audit := &stubAudit{}
	svc := newAuthService(store, audit)

	decision, err := svc.CheckAccess(context.Background(), 200, "Оля")
	require.NoError(t, err)
	assert.Equal(t, models.AccessGranted, decision)
}

func TestCheckAccessRoleAdmin(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	audit := &stubAudit{}
	svc := newAuthService(store, audit)

	decision, err := svc.CheckAccess(context.Background(), 300, "Max")
	require.NoError(t, err)
	assert.Equal(t, models.AccessGrantedAdmin, decision)

	records := audit.byTable("AccessLog")
	require.Len(t, records, 1)
	assert.Equal(t, "GRANTED_ADMIN", records[0].Action)
}

func TestHasAdminRights(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	svc := newAuthService(store, &stubAudit{})

	ok, err := svc.HasAdminRights(context.Background(), mainAdminID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAdminRights(context.Background(), 300)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAdminRights(context.Background(), 200)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoleAdminMayManageUsers(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	svc := newAuthService(store, &stubAudit{})

	err := svc.AddUser(context.Background(), 300, "Max", models.AuthorizedUser{ID: 400, Name: "Новый"})
	require.NoError(t, err)

	require.Len(t, store.appended["Users"], 1)
	assert.Equal(t, models.RoleUser, store.appended["Users"][0][3])
}

func TestCheckAccessDeniedIsStillAudited(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	audit := &stubAudit{}
	svc := newAuthService(store, audit)

	decision, err := svc.CheckAccess(context.Background(), 999, "Чужой")
	require.NoError(t, err)
	assert.Equal(t, models.AccessDenied, decision)

	records := audit.byTable("AccessLog")
	require.Len(t, records, 1)
	assert.Equal(t, "DENIED", records[0].Action)
	assert.Equal(t, int64(999), records[0].UserID)
}

func TestAddUserRequiresAdmin(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	svc := newAuthService(store, &stubAudit{})

	err := svc.AddUser(context.Background(), 200, "Оля", models.AuthorizedUser{ID: 400, Name: "Новый"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}

func TestAddUserDuplicateConflicts(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	svc := newAuthService(store, &stubAudit{})

	err := svc.AddUser(context.Background(), mainAdminID, "Admin", models.AuthorizedUser{ID: 200, Name: "Оля"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestAddUserAppendsAndLogsAction(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	audit := &stubAudit{}
	svc := newAuthService(store, audit)

	err := svc.AddUser(context.Background(), mainAdminID, "Admin", models.AuthorizedUser{ID: 400, Name: "Новый", Username: "newbie"})
	require.NoError(t, err)

	require.Len(t, store.appended["Users"], 1)
	assert.Equal(t, "400", store.appended["Users"][0][0])

	records := audit.byTable("ActionLog")
	require.Len(t, records, 1)
	assert.Equal(t, "ADD_USER", records[0].Action)
	assert.Equal(t, "400", records[0].Details)
}

func TestRemoveMainAdminRefused(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	svc := newAuthService(store, &stubAudit{})

	err := svc.RemoveUser(context.Background(), mainAdminID, "Admin", mainAdminID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrForbidden))
}

func TestRemoveUserDeletesNewestDuplicate(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	// A second entry for the same ID further down the sheet.
	store.sheets["Users"] = append(store.sheets["Users"], []string{"200", "Оля 2", "olya2", "03.01.2026 10:00:00"})
	svc := newAuthService(store, &stubAudit{})

	err := svc.RemoveUser(context.Background(), mainAdminID, "Admin", 200)
	require.NoError(t, err)
	require.Len(t, store.deleted, 1)
	assert.Equal(t, 4, store.deleted[0])
}

func TestRemoveUnknownUser(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	svc := newAuthService(store, &stubAudit{})

	err := svc.RemoveUser(context.Background(), mainAdminID, "Admin", 12345)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUsersListSkipsMalformedRows(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.sheets["Users"] = append(store.sheets["Users"], []string{"not-a-number", "Сломан"})
	svc := newAuthService(store, &stubAudit{})

	users, err := svc.Users(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, int64(200), users[0].ID)
	assert.Equal(t, "Оля", users[0].Name)
}

func TestStatsSections(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.sheets["AccessLog"] = append(store.sheets["AccessLog"],
		[]string{"t1", "1", "a", "GRANTED", ""},
		[]string{"t2", "2", "b", "GRANTED_ADMIN", ""},
		[]string{"t3", "3", "c", "DENIED", ""},
	)
	svc := newAuthService(store, &stubAudit{})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)

	require.NotNil(t, stats.Database)
	assert.Equal(t, 4, stats.Database.Records)
	assert.Equal(t, 5, stats.Database.Columns)
	assert.Equal(t, 2, stats.Database.ByStatus["активный"])
	assert.Equal(t, 2, stats.Database.ByHomeroom["Гоша / Zion"])

	require.NotNil(t, stats.Users)
	assert.Equal(t, 2, stats.Users.Total)
	assert.Equal(t, 1, stats.Users.Admins)
	assert.Equal(t, 1, stats.Users.Regular)

	require.NotNil(t, stats.Logs)
	assert.Equal(t, 3, stats.Logs.Total)
	assert.Equal(t, 2, stats.Logs.Granted)
	assert.Equal(t, 1, stats.Logs.Denied)
}

func TestStatsOmitsMissingColumns(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.sheets["MainSheet"] = [][]string{
		{"Имя", "Фамилия"},
		{"Анна", "Иванова"},
	}
	svc := newAuthService(store, &stubAudit{})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats.Database)
	assert.Equal(t, 1, stats.Database.Records)
	assert.Nil(t, stats.Database.ByStatus)
	assert.Nil(t, stats.Database.ByHomeroom)
}

func TestStatsDropsUnavailableSections(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.failSheets["Users"] = true
	store.failSheets["AccessLog"] = true
	svc := newAuthService(store, &stubAudit{})

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stats.Database)
	assert.Equal(t, 4, stats.Database.Records)
	assert.Nil(t, stats.Users)
	assert.Nil(t, stats.Logs)
}

func TestCheckAccessStoreFailureAudited(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.failGet = true
	audit := &stubAudit{}
	svc := newAuthService(store, audit)

	decision, err := svc.CheckAccess(context.Background(), 200, "Оля")
	require.Error(t, err)
	assert.Equal(t, models.AccessDenied, decision)

	records := audit.byTable("AccessLog")
	require.Len(t, records, 1)
	assert.Equal(t, "DENIED", records[0].Action)
	assert.Equal(t, int64(200), records[0].UserID)
}

func TestAccessLogTailNewestFirst(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.sheets["AccessLog"] = append(store.sheets["AccessLog"],
		[]string{"t1", "1", "a", "GRANTED", ""},
		[]string{"t2", "2", "b", "DENIED", ""},
		[]string{"t3", "3", "c", "GRANTED", ""},
	)
	svc := newAuthService(store, &stubAudit{})

	tail, err := svc.AccessLogTail(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, "t3", tail[0][0])
	assert.Equal(t, "t2", tail[1][0])
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parish-tools/rosterbot/internal/dto"
	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/internal/service"
	"github.com/parish-tools/rosterbot/pkg/config"
	appErrors "github.com/parish-tools/rosterbot/pkg/errors"
)

type rosterServiceMock struct {
	headersResp   []string
	lettersResp   []string
	peopleResp    []models.PersonRef
	cardResp      *service.PersonCard
	cardErr       error
	savedRow      int
	savedDraft    map[string]string
	saveErr       error
	deleteErr     error
	deletedRow    int
	addFieldResp   bool
	deletedField   string
	deleteFieldErr error
	birthdaysResp  []service.BirthdayEntry
	groupsResp    []service.HomeroomGroup
	lastLetter    string
	lastMonth     time.Month
	lastGroup     string
}

func (m *rosterServiceMock) Headers(ctx context.Context) ([]string, error) {
	return m.headersResp, nil
}

func (m *rosterServiceMock) Letters(ctx context.Context) ([]string, error) {
	return m.lettersResp, nil
}

func (m *rosterServiceMock) PeopleByLetter(ctx context.Context, letter string) ([]models.PersonRef, error) {
	m.lastLetter = letter
	return m.peopleResp, nil
}

func (m *rosterServiceMock) Card(ctx context.Context, rowNumber int) (*service.PersonCard, error) {
	return m.cardResp, m.cardErr
}

func (m *rosterServiceMock) SaveDraft(ctx context.Context, rowNumber int, draft map[string]string) (int, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	m.savedRow = rowNumber
	m.savedDraft = draft
	if rowNumber == 0 {
		return 5, nil
	}
	return rowNumber, nil
}

func (m *rosterServiceMock) DeletePerson(ctx context.Context, rowNumber int) error {
	m.deletedRow = rowNumber
	return m.deleteErr
}

func (m *rosterServiceMock) AddField(ctx context.Context, name string) (bool, error) {
	return m.addFieldResp, nil
}

func (m *rosterServiceMock) DeleteField(ctx context.Context, name string) error {
	m.deletedField = name
	return m.deleteFieldErr
}

func (m *rosterServiceMock) BirthdaysByMonth(ctx context.Context, month time.Month) ([]service.BirthdayEntry, error) {
	m.lastMonth = month
	return m.birthdaysResp, nil
}

func (m *rosterServiceMock) HomeroomGroups(ctx context.Context) ([]service.HomeroomGroup, error) {
	return m.groupsResp, nil
}

func (m *rosterServiceMock) PeopleByHomeroom(ctx context.Context, group string) ([]models.PersonRef, error) {
	m.lastGroup = group
	return m.peopleResp, nil
}

type assistantServiceMock struct {
	answer string
	err    error
}

func (m *assistantServiceMock) Ask(ctx context.Context, question string) (string, error) {
	return m.answer, m.err
}

type photoStoreMock struct {
	savedName string
}

func (m *photoStoreMock) SaveStream(filename string, r io.Reader) (string, error) {
	m.savedName = filename
	_, _ = io.Copy(io.Discard, r)
	return "/photos/" + filename, nil
}

type exportSourceMock struct {
	table *models.Table
}

func (m *exportSourceMock) Get(ctx context.Context, name string) (*models.Table, error) {
	return m.table, nil
}

type accessCheckerMock struct {
	adminID int64
}

func (m *accessCheckerMock) HasAdminRights(_ context.Context, userID int64) (bool, error) {
	return userID == m.adminID, nil
}

func handlerConfig() *config.Config {
	return &config.Config{
		Roster: config.RosterConfig{
			MainTable:       "MainSheet",
			HomeroomColumn:  "Домашка",
			StatusColumn:    "Статус",
			PhotoColumn:     "Фото",
			DateColumns:     []string{"Дата рождения"},
			HomeroomValues:  []string{"Иордан", "Grace"},
			StatusValues:    []string{"активный"},
			UnassignedGroup: "Не распределен",
		},
	}
}

func newTestHandler(roster *rosterServiceMock, assistant *assistantServiceMock, photos *photoStoreMock, tables *exportSourceMock) *MiniAppHandler {
	if roster == nil {
		roster = &rosterServiceMock{}
	}
	if assistant == nil {
		assistant = &assistantServiceMock{}
	}
	if photos == nil {
		photos = &photoStoreMock{}
	}
	if tables == nil {
		tables = &exportSourceMock{}
	}
	return NewMiniAppHandler(roster, assistant, photos, tables, &accessCheckerMock{adminID: 100}, handlerConfig(), nil)
}

func TestMiniAppConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{headersResp: []string{"Имя", "Фамилия"}}
	handler := newTestHandler(roster, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/config", nil)

	handler.Config(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.ConfigResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, []string{"Имя", "Фамилия"}, envelope.Data.Columns)
	assert.Equal(t, "Не распределен", envelope.Data.UnassignedGroup)
}

func TestMiniAppPeopleRequiresLetter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/people", nil)

	handler.People(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniAppPeoplePassesLetter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{peopleResp: []models.PersonRef{{RowNumber: 2, Label: "Иванова Анна"}}}
	handler := newTestHandler(roster, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/people?letter=%D0%98", nil)

	handler.People(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "И", roster.lastLetter)
	assert.Contains(t, w.Body.String(), "Иванова Анна")
}

func TestMiniAppPersonInvalidRow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/people/abc", nil)
	c.Params = gin.Params{{Key: "row", Value: "abc"}}

	handler.Person(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniAppPersonNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{cardErr: appErrors.ErrNotFound}
	handler := newTestHandler(roster, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/people/99", nil)
	c.Params = gin.Params{{Key: "row", Value: "99"}}

	handler.Person(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestMiniAppCreatePerson(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{
		cardResp: &service.PersonCard{RowNumber: 5, Title: "Новиков Олег"},
	}
	handler := newTestHandler(roster, nil, nil, nil)

	payload, _ := json.Marshal(dto.PersonRequest{Fields: map[string]string{"Имя": "Олег", "Фамилия": "Новиков"}})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/people", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreatePerson(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 0, roster.savedRow)
	assert.Equal(t, "Новиков", roster.savedDraft["Фамилия"])
	assert.Contains(t, w.Body.String(), "Новиков Олег")
}

func TestMiniAppCreatePersonInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/people", bytes.NewBufferString(`{"fields":`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.CreatePerson(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniAppUpdatePersonValidationError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{saveErr: appErrors.Clone(appErrors.ErrValidation, "карточка пуста")}
	handler := newTestHandler(roster, nil, nil, nil)

	payload, _ := json.Marshal(dto.PersonRequest{Fields: map[string]string{}})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPut, "/api/v1/people/3", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "row", Value: "3"}}

	handler.UpdatePerson(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniAppDeletePerson(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{}
	handler := newTestHandler(roster, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodDelete, "/api/v1/people/4", nil)
	c.Params = gin.Params{{Key: "row", Value: "4"}}

	handler.DeletePerson(c)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 4, roster.deletedRow)
}

func TestMiniAppDeleteColumn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{}
	handler := newTestHandler(roster, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodDelete, "/api/v1/columns/Прим", nil)
	c.Params = gin.Params{{Key: "name", Value: "Прим"}}
	c.Set("telegram_user_id", int64(100))

	handler.DeleteColumn(c)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "Прим", roster.deletedField)
}

func TestMiniAppDeleteColumnForbiddenForNonAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{}
	handler := newTestHandler(roster, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodDelete, "/api/v1/columns/Прим", nil)
	c.Params = gin.Params{{Key: "name", Value: "Прим"}}
	c.Set("telegram_user_id", int64(200))

	handler.DeleteColumn(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, roster.deletedField)
}

func TestMiniAppExportForbiddenForNonAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/export/csv", nil)
	c.Set("telegram_user_id", int64(200))

	handler.ExportCSV(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestMiniAppBirthdaysValidatesMonth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/birthdays?month=13", nil)

	handler.Birthdays(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniAppBirthdays(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{
		birthdaysResp: []service.BirthdayEntry{{RowNumber: 2, Name: "Иванова Анна", Date: "15.03.2010", TurnsAge: 16}},
	}
	handler := newTestHandler(roster, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/birthdays?month=3", nil)

	handler.Birthdays(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.March, roster.lastMonth)
	assert.Contains(t, w.Body.String(), "Иванова Анна")
}

func TestMiniAppAsk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, &assistantServiceMock{answer: "В таблице 4 записей."}, nil, nil)

	payload, _ := json.Marshal(dto.AskRequest{Question: "сколько людей в таблице?"})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/assistant/ask", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Ask(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "В таблице 4 записей.")
}

func TestMiniAppAskShortQuestionRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, nil, nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/assistant/ask", bytes.NewBufferString(`{"question":"а"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Ask(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniAppUploadPhoto(t *testing.T) {
	gin.SetMode(gin.TestMode)
	roster := &rosterServiceMock{}
	photos := &photoStoreMock{}
	handler := newTestHandler(roster, nil, photos, nil)

	var body bytes.Buffer
	form := multipartForm(t, &body, "photo", "face.jpg", []byte("jpeg-bytes"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/people/2/photo", &body)
	c.Request.Header.Set("Content-Type", form)
	c.Params = gin.Params{{Key: "row", Value: "2"}}

	handler.UploadPhoto(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(photos.savedName, "2_"))
	assert.True(t, strings.HasSuffix(photos.savedName, ".jpg"))
	assert.Equal(t, photos.savedName, roster.savedDraft["Фото"])
}

func TestMiniAppUploadPhotoRejectsFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newTestHandler(nil, nil, nil, nil)

	var body bytes.Buffer
	form := multipartForm(t, &body, "photo", "notes.txt", []byte("text"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/api/v1/people/2/photo", &body)
	c.Request.Header.Set("Content-Type", form)
	c.Params = gin.Params{{Key: "row", Value: "2"}}

	handler.UploadPhoto(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMiniAppExportCSV(t *testing.T) {
	gin.SetMode(gin.TestMode)
	table := models.NewTable("MainSheet", [][]string{
		{"Имя", "Фамилия"},
		{"Анна", "Иванова"},
	})
	handler := newTestHandler(nil, nil, nil, &exportSourceMock{table: table})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/export/csv", nil)

	handler.ExportCSV(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "roster.csv")
	assert.Contains(t, w.Body.String(), "Анна,Иванова")
}

func TestMiniAppExportPDF(t *testing.T) {
	gin.SetMode(gin.TestMode)
	table := models.NewTable("MainSheet", [][]string{
		{"Имя", "Фамилия"},
		{"Анна", "Иванова"},
	})
	handler := newTestHandler(nil, nil, nil, &exportSourceMock{table: table})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/api/v1/export/pdf", nil)

	handler.ExportPDF(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func multipartForm(t *testing.T, body *bytes.Buffer, field, filename string, content []byte) string {
	t.Helper()

	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return writer.FormDataContentType()
}

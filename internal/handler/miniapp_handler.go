package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/dto"
	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/internal/service"
	"github.com/parish-tools/rosterbot/pkg/config"
	appErrors "github.com/parish-tools/rosterbot/pkg/errors"
	"github.com/parish-tools/rosterbot/pkg/export"
	"github.com/parish-tools/rosterbot/pkg/middleware/initdata"
	"github.com/parish-tools/rosterbot/pkg/response"
)

type rosterService interface {
	Headers(ctx context.Context) ([]string, error)
	Letters(ctx context.Context) ([]string, error)
	PeopleByLetter(ctx context.Context, letter string) ([]models.PersonRef, error)
	Card(ctx context.Context, rowNumber int) (*service.PersonCard, error)
	SaveDraft(ctx context.Context, rowNumber int, draft map[string]string) (int, error)
	DeletePerson(ctx context.Context, rowNumber int) error
	AddField(ctx context.Context, name string) (bool, error)
	DeleteField(ctx context.Context, name string) error
	BirthdaysByMonth(ctx context.Context, month time.Month) ([]service.BirthdayEntry, error)
	HomeroomGroups(ctx context.Context) ([]service.HomeroomGroup, error)
	PeopleByHomeroom(ctx context.Context, group string) ([]models.PersonRef, error)
}

type assistantService interface {
	Ask(ctx context.Context, question string) (string, error)
}

type photoStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

type exportSource interface {
	Get(ctx context.Context, name string) (*models.Table, error)
}

type accessChecker interface {
	HasAdminRights(ctx context.Context, userID int64) (bool, error)
}

// MiniAppHandler serves the Telegram Mini App REST surface.
type MiniAppHandler struct {
	roster    rosterService
	assistant assistantService
	photos    photoStore
	tables    exportSource
	auth      accessChecker
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	cfg       *config.Config
	logger    *zap.Logger
}

// NewMiniAppHandler builds the handler.
func NewMiniAppHandler(
	roster rosterService,
	assistant assistantService,
	photos photoStore,
	tables exportSource,
	auth accessChecker,
	cfg *config.Config,
	logger *zap.Logger,
) *MiniAppHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MiniAppHandler{
		roster:    roster,
		assistant: assistant,
		photos:    photos,
		tables:    tables,
		auth:      auth,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		cfg:       cfg,
		logger:    logger,
	}
}

// Config describes the roster layout so the client can render forms.
func (h *MiniAppHandler) Config(c *gin.Context) {
	columns, err := h.roster.Headers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ConfigResponse{
		Columns:         columns,
		DateColumns:     h.cfg.Roster.DateColumns,
		HomeroomColumn:  h.cfg.Roster.HomeroomColumn,
		HomeroomValues:  h.cfg.Roster.HomeroomValues,
		StatusColumn:    h.cfg.Roster.StatusColumn,
		StatusValues:    h.cfg.Roster.StatusValues,
		UnassignedGroup: h.cfg.Roster.UnassignedGroup,
	})
}

// Letters lists the available last-name letters.
func (h *MiniAppHandler) Letters(c *gin.Context) {
	letters, err := h.roster.Letters(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, letters)
}

// People lists people, filtered by the letter query parameter.
func (h *MiniAppHandler) People(c *gin.Context) {
	letter := strings.TrimSpace(c.Query("letter"))
	if letter == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "letter query parameter is required"))
		return
	}
	people, err := h.roster.PeopleByLetter(c.Request.Context(), letter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, people)
}

// Person returns one rendered card.
func (h *MiniAppHandler) Person(c *gin.Context) {
	rowNumber, ok := h.rowParam(c)
	if !ok {
		return
	}
	card, err := h.roster.Card(c.Request.Context(), rowNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card)
}

// CreatePerson appends a new card.
func (h *MiniAppHandler) CreatePerson(c *gin.Context) {
	var req dto.PersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid person payload"))
		return
	}
	rowNumber, err := h.roster.SaveDraft(c.Request.Context(), 0, req.Fields)
	if err != nil {
		response.Error(c, err)
		return
	}
	card, err := h.roster.Card(c.Request.Context(), rowNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, card)
}

// UpdatePerson replaces card fields on an existing row.
func (h *MiniAppHandler) UpdatePerson(c *gin.Context) {
	rowNumber, ok := h.rowParam(c)
	if !ok {
		return
	}
	var req dto.PersonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid person payload"))
		return
	}
	if _, err := h.roster.SaveDraft(c.Request.Context(), rowNumber, req.Fields); err != nil {
		response.Error(c, err)
		return
	}
	card, err := h.roster.Card(c.Request.Context(), rowNumber)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, card)
}

// DeletePerson removes a card.
func (h *MiniAppHandler) DeletePerson(c *gin.Context) {
	rowNumber, ok := h.rowParam(c)
	if !ok {
		return
	}
	if err := h.roster.DeletePerson(c.Request.Context(), rowNumber); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AddColumn creates a new roster column.
func (h *MiniAppHandler) AddColumn(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var req struct {
		Name string `json:"name" binding:"required,min=1,max=100"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid column payload"))
		return
	}
	added, err := h.roster.AddField(c.Request.Context(), req.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"name": req.Name, "added": added})
}

// DeleteColumn removes a roster column with all its values.
func (h *MiniAppHandler) DeleteColumn(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "column name is required"))
		return
	}
	if err := h.roster.DeleteField(c.Request.Context(), name); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UploadPhoto stores a photo and writes its filename into the photo column.
func (h *MiniAppHandler) UploadPhoto(c *gin.Context) {
	rowNumber, ok := h.rowParam(c)
	if !ok {
		return
	}
	if h.cfg.Roster.PhotoColumn == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "photo column is not configured"))
		return
	}

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "photo file is required"))
		return
	}
	defer file.Close() //nolint:errcheck

	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unsupported photo format"))
		return
	}

	filename := fmt.Sprintf("%d_%s%s", rowNumber, uuid.NewString(), ext)
	if _, err := h.photos.SaveStream(filename, file); err != nil {
		response.Error(c, err)
		return
	}

	if _, err := h.roster.SaveDraft(c.Request.Context(), rowNumber, map[string]string{h.cfg.Roster.PhotoColumn: filename}); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"photo": filename})
}

// Birthdays lists birthdays for the month query parameter.
func (h *MiniAppHandler) Birthdays(c *gin.Context) {
	monthNum, err := strconv.Atoi(c.Query("month"))
	if err != nil || monthNum < 1 || monthNum > 12 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "month must be between 1 and 12"))
		return
	}
	entries, err := h.roster.BirthdaysByMonth(c.Request.Context(), time.Month(monthNum))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries)
}

// Homerooms lists groups with member counts.
func (h *MiniAppHandler) Homerooms(c *gin.Context) {
	groups, err := h.roster.HomeroomGroups(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups)
}

// HomeroomPeople lists members of one group.
func (h *MiniAppHandler) HomeroomPeople(c *gin.Context) {
	group := strings.TrimSpace(c.Query("group"))
	if group == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "group query parameter is required"))
		return
	}
	people, err := h.roster.PeopleByHomeroom(c.Request.Context(), group)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, people)
}

// Ask forwards a question to the query assistant.
func (h *MiniAppHandler) Ask(c *gin.Context) {
	var req dto.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid question payload"))
		return
	}
	answer, err := h.assistant.Ask(c.Request.Context(), req.Question)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"answer": answer})
}

// ExportCSV streams the main table as CSV.
func (h *MiniAppHandler) ExportCSV(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	dataset, err := h.exportDataset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.csv.Render(*dataset)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="roster.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", payload)
}

// ExportPDF streams the main table as a PDF.
func (h *MiniAppHandler) ExportPDF(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	dataset, err := h.exportDataset(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, err := h.pdf.Render(*dataset, h.cfg.Roster.MainTable)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="roster.pdf"`)
	c.Data(http.StatusOK, "application/pdf", payload)
}

func (h *MiniAppHandler) exportDataset(ctx context.Context) (*export.Dataset, error) {
	table, err := h.tables.Get(ctx, h.cfg.Roster.MainTable)
	if err != nil {
		return nil, err
	}
	return &export.Dataset{Headers: table.Headers, Rows: table.Body()}, nil
}

// requireAdmin guards destructive endpoints. With init-data verification
// disabled (empty bot token, local development) the user ID is 0 and the
// guard passes.
func (h *MiniAppHandler) requireAdmin(c *gin.Context) bool {
	userID := initdata.UserID(c)
	if userID == 0 {
		return true
	}
	ok, err := h.auth.HasAdminRights(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "administrator only"))
		return false
	}
	return true
}

func (h *MiniAppHandler) rowParam(c *gin.Context) (int, bool) {
	rowNumber, err := strconv.Atoi(c.Param("row"))
	if err != nil || rowNumber < 2 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "row must be a sheet row number"))
		return 0, false
	}
	return rowNumber, true
}

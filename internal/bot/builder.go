package bot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/errors"
	"github.com/parish-tools/rosterbot/pkg/telegram"
)

func (b *Bot) startBuilderCreate(ctx context.Context, chatID, messageID int64, sess *models.Session) {
	headers, err := b.roster.Headers(ctx)
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, nil)
		return
	}

	sess.Reset()
	sess.State = models.StateBuilderMode
	sess.Mode = models.ModeCreate
	sess.Step = models.StepMenu
	sess.Draft = make(map[string]string)
	b.save(ctx, sess)

	text, keyboard := b.builderView(sess, b.builderFields(headers, sess.Draft))
	b.edit(ctx, chatID, messageID, text, keyboard)
}

func (b *Bot) startBuilderEdit(ctx context.Context, chatID, messageID int64, sess *models.Session, rowNumber int) {
	draft, err := b.roster.DraftForRow(ctx, rowNumber)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			b.send(ctx, chatID, textStaleData, nil)
			b.openLetters(ctx, chatID, messageID, sess, models.ModeEdit)
			return
		}
		b.edit(ctx, chatID, messageID, textServiceUnavailable, nil)
		return
	}
	headers, err := b.roster.Headers(ctx)
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, nil)
		return
	}

	people := sess.People
	letter := sess.LastLetter
	sess.Reset()
	sess.State = models.StateBuilderMode
	sess.Mode = models.ModeEdit
	sess.Step = models.StepMenu
	sess.Draft = draft
	sess.EditingRow = rowNumber
	sess.People = people
	sess.LastLetter = letter
	b.save(ctx, sess)

	text, keyboard := b.builderView(sess, b.builderFields(headers, draft))
	b.edit(ctx, chatID, messageID, text, keyboard)
}

func (b *Bot) openBuilderMenu(ctx context.Context, chatID, messageID int64, sess *models.Session) {
	if sess.State != models.StateBuilderMode {
		b.staleToMainMenu(ctx, chatID, messageID, sess)
		return
	}
	headers, err := b.roster.Headers(ctx)
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, nil)
		return
	}

	sess.Step = models.StepMenu
	sess.CurrentField = ""
	b.save(ctx, sess)

	text, keyboard := b.builderView(sess, b.builderFields(headers, sess.Draft))
	b.edit(ctx, chatID, messageID, text, keyboard)
}

// promptFieldValue routes a field either to an option picker or a free-text
// prompt.
func (b *Bot) promptFieldValue(ctx context.Context, chatID, messageID int64, sess *models.Session, field string) {
	if sess.State != models.StateBuilderMode {
		b.staleToMainMenu(ctx, chatID, messageID, sess)
		return
	}

	switch field {
	case b.cfg.Roster.HomeroomColumn:
		sess.Step = models.StepWaitingHomeroomPick
		sess.CurrentField = field
		b.save(ctx, sess)
		text, keyboard := optionPickView(field, b.cfg.Roster.HomeroomValues, cbSelectHomeroomPrefix)
		b.edit(ctx, chatID, messageID, text, keyboard)

	case b.cfg.Roster.StatusColumn:
		sess.Step = models.StepWaitingStatusPick
		sess.CurrentField = field
		b.save(ctx, sess)
		text, keyboard := optionPickView(field, b.cfg.Roster.StatusValues, cbSelectStatusPrefix)
		b.edit(ctx, chatID, messageID, text, keyboard)

	default:
		sess.Step = models.StepWaitingValue
		sess.CurrentField = field
		b.save(ctx, sess)
		prompt := fmt.Sprintf("Отправьте значение для поля <b>%s</b>.", esc(field))
		if b.cfg.Roster.DateColumn(field) {
			prompt += "\nФормат даты: <code>ДД.ММ.ГГГГ</code> или <code>ГГГГ-ММ-ДД</code>."
		}
		b.edit(ctx, chatID, messageID, prompt, builderBackKeyboard())
	}
}

func (b *Bot) promptNewCategory(ctx context.Context, chatID, messageID int64, sess *models.Session) {
	if sess.State != models.StateBuilderMode {
		b.staleToMainMenu(ctx, chatID, messageID, sess)
		return
	}
	sess.Step = models.StepWaitingNewCategory
	sess.CurrentField = ""
	b.save(ctx, sess)
	b.edit(ctx, chatID, messageID, "Отправьте название новой категории.", builderBackKeyboard())
}

// pickOption lands an option-button press into the draft.
func (b *Bot) pickOption(ctx context.Context, chatID, messageID int64, sess *models.Session, field string, options []string, arg string) {
	if sess.State != models.StateBuilderMode {
		b.staleToMainMenu(ctx, chatID, messageID, sess)
		return
	}
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(options) {
		b.logger.Warn("option_pick_out_of_range", zap.String("field", field), zap.String("arg", arg))
		b.send(ctx, chatID, "❌ Некорректный вариант, выберите из списка.", nil)
		return
	}

	if sess.Draft == nil {
		sess.Draft = make(map[string]string)
	}
	sess.Draft[field] = options[idx]
	b.openBuilderMenu(ctx, chatID, messageID, sess)
}

func (b *Bot) saveBuilderCard(ctx context.Context, chatID, messageID int64, sess *models.Session, name string, isAdmin bool) {
	if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
		return
	}
	if sess.State != models.StateBuilderMode {
		b.staleToMainMenu(ctx, chatID, messageID, sess)
		return
	}

	rowNumber, err := b.roster.SaveDraft(ctx, sess.EditingRow, sess.Draft)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrValidation):
			b.edit(ctx, chatID, messageID, "Заполните хотя бы одно поле перед сохранением.", builderBackKeyboard())
		case errors.Is(err, errors.ErrNotFound):
			b.send(ctx, chatID, textStaleData, nil)
			b.openLetters(ctx, chatID, messageID, sess, models.ModeEdit)
		default:
			b.logger.Error("save_card_failed", zap.Error(err))
			b.edit(ctx, chatID, messageID, textServiceUnavailable, builderBackKeyboard())
		}
		return
	}

	action := "EDIT_CARD"
	if sess.EditingRow == 0 {
		action = "CREATE_CARD"
	}

	card, err := b.roster.Card(ctx, rowNumber)
	if err != nil {
		b.edit(ctx, chatID, messageID, "✅ Сохранено.", nil)
		sess.Reset()
		b.save(ctx, sess)
		return
	}

	b.auth.LogAction(sess.UserID, name, action, fmt.Sprintf("%s [#%d]", card.Title, rowNumber))

	sess.Reset()
	sess.State = models.StateViewingCard
	sess.ViewingRow = rowNumber
	b.save(ctx, sess)

	text, keyboard := cardView(card, isAdmin)
	b.edit(ctx, chatID, messageID, "✅ Сохранено.\n\n"+text, keyboard)
}

// handleBuilderText lands free-text input for the builder.
func (b *Bot) handleBuilderText(ctx context.Context, chatID int64, sess *models.Session, text string) {
	switch sess.Step {
	case models.StepWaitingValue:
		field := sess.CurrentField
		if field == "" {
			b.send(ctx, chatID, textUseButtons, nil)
			return
		}
		if sess.Draft == nil {
			sess.Draft = make(map[string]string)
		}
		sess.Draft[field] = strings.TrimSpace(text)
		sess.Step = models.StepMenu
		sess.CurrentField = ""
		b.save(ctx, sess)
		b.sendBuilderMenu(ctx, chatID, sess)

	case models.StepWaitingNewCategory:
		field := strings.TrimSpace(text)
		if field == "" {
			b.send(ctx, chatID, "Название категории не может быть пустым.", builderBackKeyboard())
			return
		}
		added, err := b.roster.AddField(ctx, field)
		if err != nil {
			b.logger.Error("add_category_failed", zap.Error(err))
			b.send(ctx, chatID, textServiceUnavailable, builderBackKeyboard())
			return
		}
		sess.Step = models.StepMenu
		sess.CurrentField = ""
		b.save(ctx, sess)
		if !added {
			b.send(ctx, chatID, fmt.Sprintf("❌ Категория <b>%s</b> уже существует!", esc(field)), nil)
		} else {
			b.send(ctx, chatID, fmt.Sprintf("✅ Категория <b>%s</b> добавлена.", esc(field)), nil)
		}
		b.sendBuilderMenu(ctx, chatID, sess)

	default:
		b.send(ctx, chatID, textUseButtons, nil)
	}
}

// sendBuilderMenu posts the builder menu as a new message, used after text
// input when there is no message to edit in place.
func (b *Bot) sendBuilderMenu(ctx context.Context, chatID int64, sess *models.Session) {
	headers, err := b.roster.Headers(ctx)
	if err != nil {
		b.send(ctx, chatID, textServiceUnavailable, nil)
		return
	}
	text, keyboard := b.builderView(sess, b.builderFields(headers, sess.Draft))
	b.send(ctx, chatID, text, keyboard)
}

// builderFields merges table headers with draft-only categories so a field
// added during this session gets a button too.
func (b *Bot) builderFields(headers []string, draft map[string]string) []string {
	seen := make(map[string]struct{}, len(headers))
	fields := make([]string, 0, len(headers)+len(draft))
	for _, h := range headers {
		fields = append(fields, h)
		seen[h] = struct{}{}
	}
	var extra []string
	for key := range draft {
		if _, ok := seen[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return append(fields, extra...)
}

func (b *Bot) staleToMainMenu(ctx context.Context, chatID, messageID int64, sess *models.Session) {
	isAdmin, _ := b.auth.HasAdminRights(ctx, sess.UserID)
	sess.Reset()
	b.save(ctx, sess)
	text, keyboard := b.mainMenuView(isAdmin)
	b.edit(ctx, chatID, messageID, text, keyboard)
}

func builderBackKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.Button("⬅️ К карточке", cbBuilderMenu)),
	}}
}

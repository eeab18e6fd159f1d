package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/telegram"
)

// Callback data vocabulary. Prefixed entries carry an argument after the
// prefix.
const (
	cbView         = "view"
	cbEdit         = "edit"
	cbCreate       = "create"
	cbAskAssistant = "ask_assistant"
	cbOtherMenu    = "other_menu"
	cbAdminMenu    = "admin_menu"

	cbBackToMain    = "back_to_main"
	cbBackToLetters = "back_to_letters"
	cbBackToPeople  = "back_to_people"
	cbBackToAdmin   = "back_to_admin"
	cbBackToOther   = "back_to_other"
	cbBuilderMenu   = "builder_menu"

	cbLetterPrefix   = "letter_"
	cbPersonPrefix   = "person_"
	cbEditCardPrefix = "edit_card_"

	cbEditFieldPrefix = "edit_field_"
	cbAddCategory     = "add_category"
	cbSaveCard        = "save_card"
	cbCancelBuilder   = "cancel_builder"

	cbSelectHomeroomPrefix      = "select_homeroom_"
	cbSelectStatusPrefix        = "select_status_"
	cbSelectMonthPrefix         = "select_month_"
	cbSelectHomeroomGroupPrefix = "select_group_"

	cbShowBirthdays      = "show_birthdays"
	cbShowHomeroomGroups = "show_groups"

	cbAdminUsers          = "admin_users"
	cbAdminStats          = "admin_stats"
	cbAdminSummary        = "admin_summary"
	cbAdminLogs           = "admin_logs"
	cbAdminReload         = "admin_reload"
	cbAdminAssistantStats = "admin_assistant_stats"
	cbAdminAddUser        = "admin_add_user"
	cbAdminRemoveUser     = "admin_remove_user"
)

const textStaleData = "Данные устарели, меню обновлено."

func (b *Bot) ack(ctx context.Context, callbackID, text string, alert bool) {
	err := b.transport.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryRequest{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		b.logger.Debug("answer_callback_failed", zap.Error(err))
	}
}

func (b *Bot) handleCallback(ctx context.Context, cq *telegram.CallbackQuery) {
	if cq.Message == nil {
		b.ack(ctx, cq.ID, "", false)
		return
	}

	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID
	name := displayName(&cq.From)
	data := cq.Data

	decision, err := b.auth.CheckAccess(ctx, userID, name)
	if err != nil {
		b.ack(ctx, cq.ID, textServiceUnavailable, true)
		return
	}
	if decision == models.AccessDenied {
		b.ack(ctx, cq.ID, "⛔ Нет доступа.", true)
		return
	}
	isAdmin := decision == models.AccessGrantedAdmin

	sess, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.ack(ctx, cq.ID, textServiceUnavailable, true)
		return
	}

	b.ack(ctx, cq.ID, "", false)

	switch data {
	case cbBackToMain:
		sess.Reset()
		b.save(ctx, sess)
		text, keyboard := b.mainMenuView(isAdmin)
		b.edit(ctx, chatID, messageID, text, keyboard)
		return

	case cbView:
		b.openLetters(ctx, chatID, messageID, sess, models.ModeViewOnly)
		return

	case cbEdit:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		b.openLetters(ctx, chatID, messageID, sess, models.ModeEdit)
		return

	case cbCreate:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		b.startBuilderCreate(ctx, chatID, messageID, sess)
		return

	case cbAskAssistant:
		sess.Reset()
		sess.State = models.StateAskingAssistant
		sess.Step = models.StepWaitingQuestion
		b.save(ctx, sess)
		b.edit(ctx, chatID, messageID, "🤖 Отправьте ваш вопрос о таблице текстом.", nil)
		return

	case cbOtherMenu, cbBackToOther:
		sess.Reset()
		sess.State = models.StateOtherMenu
		b.save(ctx, sess)
		text, keyboard := otherMenuView()
		b.edit(ctx, chatID, messageID, text, keyboard)
		return

	case cbAdminMenu, cbBackToAdmin:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		sess.Reset()
		sess.State = models.StateAdminMenu
		b.save(ctx, sess)
		text, keyboard := adminMenuView()
		b.edit(ctx, chatID, messageID, text, keyboard)
		return

	case cbBackToLetters:
		b.openLetters(ctx, chatID, messageID, sess, sess.Mode)
		return

	case cbBackToPeople:
		b.openPeople(ctx, chatID, messageID, sess, sess.LastLetter)
		return

	case cbShowBirthdays:
		sess.State = models.StateSelectingMonth
		b.save(ctx, sess)
		text, keyboard := monthsView()
		b.edit(ctx, chatID, messageID, text, keyboard)
		return

	case cbShowHomeroomGroups:
		b.openHomeroomGroups(ctx, chatID, messageID, sess)
		return

	case cbBuilderMenu:
		b.openBuilderMenu(ctx, chatID, messageID, sess)
		return

	case cbAddCategory:
		b.promptNewCategory(ctx, chatID, messageID, sess)
		return

	case cbSaveCard:
		b.saveBuilderCard(ctx, chatID, messageID, sess, name, isAdmin)
		return

	case cbCancelBuilder:
		sess.Reset()
		b.save(ctx, sess)
		text, keyboard := b.mainMenuView(isAdmin)
		b.edit(ctx, chatID, messageID, text, keyboard)
		return

	case cbAdminUsers:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		users, err := b.auth.Users(ctx)
		if err != nil {
			b.edit(ctx, chatID, messageID, textServiceUnavailable, backToAdminKeyboard())
			return
		}
		b.edit(ctx, chatID, messageID, usersText(users), backToAdminKeyboard())
		return

	case cbAdminStats:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		stats, err := b.auth.Stats(ctx)
		if err != nil {
			b.edit(ctx, chatID, messageID, textServiceUnavailable, backToAdminKeyboard())
			return
		}
		b.edit(ctx, chatID, messageID, statsText(stats), backToAdminKeyboard())
		return

	case cbAdminLogs:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		rows, err := b.auth.AccessLogTail(ctx, 15)
		if err != nil {
			b.edit(ctx, chatID, messageID, textServiceUnavailable, backToAdminKeyboard())
			return
		}
		b.edit(ctx, chatID, messageID, logsText(rows), backToAdminKeyboard())
		return

	case cbAdminSummary:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		summary, err := b.assistant.Summarize(ctx)
		if err != nil {
			b.edit(ctx, chatID, messageID, textServiceUnavailable, backToAdminKeyboard())
			return
		}
		b.auth.LogAction(sess.UserID, name, "TABLE_SUMMARY", "")
		b.edit(ctx, chatID, messageID, "<b>📊 Анализ таблицы</b>\n\n"+esc(summary), backToAdminKeyboard())
		return

	case cbAdminAssistantStats:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		b.edit(ctx, chatID, messageID, assistantStatsText(b.assistant.Stats()), backToAdminKeyboard())
		return

	case cbAdminReload:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		b.reloadTables(ctx, chatID, sess, name, messageID)
		return

	case cbAdminAddUser:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		sess.State = models.StateAdminMenu
		sess.Step = models.StepWaitingUserIDForAdd
		b.save(ctx, sess)
		b.edit(ctx, chatID, messageID, "Отправьте ID нового пользователя, можно с именем:\n<code>123456789 Иван</code>", backToAdminKeyboard())
		return

	case cbAdminRemoveUser:
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		sess.State = models.StateAdminMenu
		sess.Step = models.StepWaitingUserIDForRemove
		b.save(ctx, sess)
		b.edit(ctx, chatID, messageID, "Отправьте ID пользователя, у которого нужно отозвать доступ.", backToAdminKeyboard())
		return
	}

	switch {
	case strings.HasPrefix(data, cbLetterPrefix):
		b.openPeople(ctx, chatID, messageID, sess, strings.TrimPrefix(data, cbLetterPrefix))

	case strings.HasPrefix(data, cbPersonPrefix):
		b.openPerson(ctx, chatID, messageID, sess, strings.TrimPrefix(data, cbPersonPrefix), name, isAdmin)

	case strings.HasPrefix(data, cbEditCardPrefix):
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		rowNumber, err := strconv.Atoi(strings.TrimPrefix(data, cbEditCardPrefix))
		if err != nil {
			return
		}
		b.startBuilderEdit(ctx, chatID, messageID, sess, rowNumber)

	case strings.HasPrefix(data, cbEditFieldPrefix):
		b.promptFieldValue(ctx, chatID, messageID, sess, strings.TrimPrefix(data, cbEditFieldPrefix))

	case strings.HasPrefix(data, cbSelectHomeroomPrefix):
		b.pickOption(ctx, chatID, messageID, sess, b.cfg.Roster.HomeroomColumn, b.cfg.Roster.HomeroomValues, strings.TrimPrefix(data, cbSelectHomeroomPrefix))

	case strings.HasPrefix(data, cbSelectStatusPrefix):
		b.pickOption(ctx, chatID, messageID, sess, b.cfg.Roster.StatusColumn, b.cfg.Roster.StatusValues, strings.TrimPrefix(data, cbSelectStatusPrefix))

	case strings.HasPrefix(data, cbSelectMonthPrefix):
		b.showBirthdays(ctx, chatID, messageID, strings.TrimPrefix(data, cbSelectMonthPrefix))

	case strings.HasPrefix(data, cbSelectHomeroomGroupPrefix):
		b.showHomeroomMembers(ctx, chatID, messageID, sess, strings.TrimPrefix(data, cbSelectHomeroomGroupPrefix))

	default:
		b.logger.Warn("unknown_callback", zap.String("data", data), zap.Int64("user_id", userID))
	}
}

// requireAdmin re-renders the main menu for non-admins poking at admin
// buttons, e.g. from an old message rendered for another account.
func (b *Bot) requireAdmin(ctx context.Context, chatID, messageID int64, isAdmin bool) bool {
	if isAdmin {
		return true
	}
	text, keyboard := b.mainMenuView(false)
	b.edit(ctx, chatID, messageID, text, keyboard)
	return false
}

func (b *Bot) openLetters(ctx context.Context, chatID, messageID int64, sess *models.Session, mode models.Mode) {
	letters, err := b.roster.Letters(ctx)
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, nil)
		return
	}

	if mode == "" {
		mode = models.ModeViewOnly
	}
	sess.State = models.StateSelectingLetter
	sess.Mode = mode
	sess.LastLetter = ""
	sess.People = nil
	sess.ViewingRow = 0
	b.save(ctx, sess)

	text, keyboard := alphabetView(letters)
	b.edit(ctx, chatID, messageID, text, keyboard)
}

func (b *Bot) openPeople(ctx context.Context, chatID, messageID int64, sess *models.Session, letter string) {
	if letter == "" {
		b.openLetters(ctx, chatID, messageID, sess, sess.Mode)
		return
	}

	people, err := b.roster.PeopleByLetter(ctx, letter)
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, nil)
		return
	}

	sess.State = models.StateSelectingPerson
	sess.LastLetter = letter
	sess.People = people
	sess.ViewingRow = 0
	b.save(ctx, sess)

	text, keyboard := peopleView(letter, people)
	b.edit(ctx, chatID, messageID, text, keyboard)
}

// openPerson resolves a person button press. The row must still be in the
// session's listing; otherwise the button is from a stale message and the
// listing is rebuilt instead of showing the wrong person.
func (b *Bot) openPerson(ctx context.Context, chatID, messageID int64, sess *models.Session, arg, name string, isAdmin bool) {
	rowNumber, err := strconv.Atoi(arg)
	if err != nil {
		return
	}

	known := false
	for _, p := range sess.People {
		if p.RowNumber == rowNumber {
			known = true
			break
		}
	}
	if !known {
		b.send(ctx, chatID, textStaleData, nil)
		b.openLetters(ctx, chatID, messageID, sess, sess.Mode)
		return
	}

	if sess.Mode == models.ModeEdit {
		if !b.requireAdmin(ctx, chatID, messageID, isAdmin) {
			return
		}
		b.startBuilderEdit(ctx, chatID, messageID, sess, rowNumber)
		return
	}

	card, err := b.roster.Card(ctx, rowNumber)
	if err != nil {
		b.send(ctx, chatID, textStaleData, nil)
		b.openLetters(ctx, chatID, messageID, sess, sess.Mode)
		return
	}

	sess.State = models.StateViewingCard
	sess.ViewingRow = rowNumber
	b.save(ctx, sess)

	b.auth.LogAction(sess.UserID, name, "VIEW_CARD", card.Title)
	text, keyboard := cardView(card, isAdmin)
	b.edit(ctx, chatID, messageID, text, keyboard)
}

func (b *Bot) openHomeroomGroups(ctx context.Context, chatID, messageID int64, sess *models.Session) {
	groups, err := b.roster.HomeroomGroups(ctx)
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, nil)
		return
	}

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	sess.State = models.StateSelectingHomeroom
	sess.HomeroomGroups = names
	b.save(ctx, sess)

	text, keyboard := homeroomGroupsView(groups)
	b.edit(ctx, chatID, messageID, text, keyboard)
}

func (b *Bot) showBirthdays(ctx context.Context, chatID, messageID int64, arg string) {
	monthNum, err := strconv.Atoi(arg)
	if err != nil || monthNum < 1 || monthNum > 12 {
		return
	}

	entries, err := b.roster.BirthdaysByMonth(ctx, time.Month(monthNum))
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, backKeyboard(cbShowBirthdays))
		return
	}
	b.edit(ctx, chatID, messageID, birthdaysText(time.Month(monthNum), entries), backKeyboard(cbShowBirthdays))
}

func (b *Bot) showHomeroomMembers(ctx context.Context, chatID, messageID int64, sess *models.Session, arg string) {
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 0 || idx >= len(sess.HomeroomGroups) {
		b.send(ctx, chatID, textStaleData, nil)
		b.openHomeroomGroups(ctx, chatID, messageID, sess)
		return
	}
	group := sess.HomeroomGroups[idx]

	people, err := b.roster.PeopleByHomeroom(ctx, group)
	if err != nil {
		b.edit(ctx, chatID, messageID, textServiceUnavailable, backKeyboard(cbShowHomeroomGroups))
		return
	}
	b.edit(ctx, chatID, messageID, homeroomMembersText(group, people), backKeyboard(cbShowHomeroomGroups))
}

func backKeyboard(data string) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(
			telegram.Button("⬅️ Назад", data),
			telegram.Button("🏠 Меню", cbBackToMain),
		),
	}}
}

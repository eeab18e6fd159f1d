package bot

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/pkg/errors"
	"github.com/parish-tools/rosterbot/pkg/telegram"
)

const (
	textServiceUnavailable = "⚠️ Сервис временно недоступен, попробуйте позже."
	textUseButtons         = "Пожалуйста, используйте кнопки меню."
)

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	name := displayName(msg.From)

	decision, err := b.auth.CheckAccess(ctx, userID, name)
	if err != nil {
		b.logger.Error("access_check_failed", zap.Int64("user_id", userID), zap.Error(err))
		b.send(ctx, chatID, textServiceUnavailable, nil)
		return
	}
	if decision == models.AccessDenied {
		b.send(ctx, chatID, deniedText(userID), nil)
		return
	}
	isAdmin := decision == models.AccessGrantedAdmin

	text := strings.TrimSpace(msg.Text)

	// Global navigation beats any in-flight flow.
	if isGlobalNav(text) {
		if err := b.sessions.Clear(ctx, userID); err != nil {
			b.logger.Warn("session_clear_failed", zap.Int64("user_id", userID), zap.Error(err))
		}
		menuText, keyboard := b.mainMenuView(isAdmin)
		b.send(ctx, chatID, menuText, keyboard)
		return
	}

	sess, err := b.sessions.Get(ctx, userID)
	if err != nil {
		b.logger.Error("session_get_failed", zap.Int64("user_id", userID), zap.Error(err))
		b.send(ctx, chatID, textServiceUnavailable, nil)
		return
	}

	// Leaving the assistant takes more than the global phrases: "отмена",
	// "назад" and /help end the conversation too instead of being sent
	// to the model as questions.
	if sess.State == models.StateAskingAssistant && isQuestionExit(text) {
		sess.Reset()
		b.save(ctx, sess)
		menuText, keyboard := b.mainMenuView(isAdmin)
		b.send(ctx, chatID, menuText, keyboard)
		return
	}

	if strings.HasPrefix(text, "/") {
		b.handleCommand(ctx, chatID, sess, text, name, isAdmin)
		return
	}

	switch sess.State {
	case models.StateBuilderMode:
		b.handleBuilderText(ctx, chatID, sess, text)
	case models.StateAskingAssistant:
		b.handleQuestion(ctx, chatID, sess, text)
	case models.StateAdminMenu:
		b.handleAdminText(ctx, chatID, sess, text, name, isAdmin)
	case models.StateIdle:
		menuText, keyboard := b.mainMenuView(isAdmin)
		b.send(ctx, chatID, menuText, keyboard)
	case models.StateSelectingLetter, models.StateSelectingPerson, models.StateViewingCard,
		models.StateOtherMenu, models.StateSelectingMonth, models.StateSelectingHomeroom:
		b.send(ctx, chatID, textUseButtons, nil)
	default:
		// Unknown state, likely from an older build. Start over.
		sess.Reset()
		b.save(ctx, sess)
		menuText, keyboard := b.mainMenuView(isAdmin)
		b.send(ctx, chatID, menuText, keyboard)
	}
}

func (b *Bot) handleCommand(ctx context.Context, chatID int64, sess *models.Session, text, name string, isAdmin bool) {
	parts := strings.Fields(text)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/help":
		b.send(ctx, chatID, helpText(isAdmin), nil)
	case "/view":
		b.openLetters(ctx, chatID, 0, sess, models.ModeViewOnly)
	case "/edit":
		if !isAdmin {
			b.send(ctx, chatID, "⛔ Команда доступна только администратору.", nil)
			return
		}
		b.openLetters(ctx, chatID, 0, sess, models.ModeEdit)
	case "/create":
		if !isAdmin {
			b.send(ctx, chatID, "⛔ Команда доступна только администратору.", nil)
			return
		}
		b.startBuilderCreate(ctx, chatID, 0, sess)
	case "/ask":
		sess.Reset()
		sess.State = models.StateAskingAssistant
		sess.Step = models.StepWaitingQuestion
		b.save(ctx, sess)
		b.send(ctx, chatID, "🤖 Отправьте ваш вопрос о таблице текстом.", nil)
	case "/admin":
		if !isAdmin {
			b.send(ctx, chatID, "⛔ Команда доступна только администратору.", nil)
			return
		}
		b.handleAdminCommand(ctx, chatID, sess, args, name)
	case "/refresh":
		if !isAdmin {
			b.send(ctx, chatID, "⛔ Команда доступна только администратору.", nil)
			return
		}
		b.reloadTables(ctx, chatID, sess, name, 0)
	default:
		b.send(ctx, chatID, "Неизвестная команда. Отправьте /menu.", nil)
	}
}

func helpText(isAdmin bool) string {
	var b strings.Builder
	b.WriteString("<b>Команды</b>\n")
	b.WriteString("/menu — главное меню\n")
	b.WriteString("/view — просмотр карточек\n")
	b.WriteString("/ask — вопрос помощнику\n")
	b.WriteString("/help — эта справка\n")
	if isAdmin {
		b.WriteString("/edit — редактирование карточек\n")
		b.WriteString("/create — новая карточка\n")
		b.WriteString("/admin — админ-панель\n")
		b.WriteString("/admin add &lt;id&gt; [имя] — выдать доступ\n")
		b.WriteString("/admin remove &lt;id&gt; — отозвать доступ\n")
		b.WriteString("/admin users|stats|logs|reload — быстрые отчёты\n")
		b.WriteString("/refresh — перезагрузить данные\n")
	}
	return b.String()
}

// handleAdminCommand serves /admin and its argument forms.
func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, sess *models.Session, args []string, name string) {
	if len(args) == 0 {
		sess.Reset()
		sess.State = models.StateAdminMenu
		b.save(ctx, sess)
		text, keyboard := adminMenuView()
		b.send(ctx, chatID, text, keyboard)
		return
	}

	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 2 {
			b.send(ctx, chatID, "Использование: /admin add &lt;id&gt; [admin] [имя]", nil)
			return
		}
		b.addUserFromText(ctx, chatID, sess, strings.Join(args[1:], " "), name)
	case "remove":
		if len(args) < 2 {
			b.send(ctx, chatID, "Использование: /admin remove &lt;id&gt;", nil)
			return
		}
		b.removeUserFromText(ctx, chatID, sess, args[1], name)
	case "users":
		users, err := b.auth.Users(ctx)
		if err != nil {
			b.send(ctx, chatID, textServiceUnavailable, nil)
			return
		}
		b.send(ctx, chatID, usersText(users), backToAdminKeyboard())
	case "stats":
		stats, err := b.auth.Stats(ctx)
		if err != nil {
			b.send(ctx, chatID, textServiceUnavailable, nil)
			return
		}
		b.send(ctx, chatID, statsText(stats), backToAdminKeyboard())
	case "logs":
		rows, err := b.auth.AccessLogTail(ctx, 15)
		if err != nil {
			b.send(ctx, chatID, textServiceUnavailable, nil)
			return
		}
		b.send(ctx, chatID, logsText(rows), backToAdminKeyboard())
	case "reload":
		b.reloadTables(ctx, chatID, sess, name, 0)
	case "help":
		b.send(ctx, chatID, helpText(true), nil)
	default:
		b.send(ctx, chatID, "Неизвестная подкоманда. Доступно: add, remove, users, stats, logs, reload.", nil)
	}
}

func (b *Bot) handleAdminText(ctx context.Context, chatID int64, sess *models.Session, text, name string, isAdmin bool) {
	if !isAdmin {
		sess.Reset()
		b.save(ctx, sess)
		b.send(ctx, chatID, textUseButtons, nil)
		return
	}

	switch sess.Step {
	case models.StepWaitingUserIDForAdd:
		b.addUserFromText(ctx, chatID, sess, text, name)
	case models.StepWaitingUserIDForRemove:
		b.removeUserFromText(ctx, chatID, sess, text, name)
	default:
		b.send(ctx, chatID, textUseButtons, nil)
	}
}

// addUserFromText parses "<id> [admin|user] [имя...]" and grants access.
func (b *Bot) addUserFromText(ctx context.Context, chatID int64, sess *models.Session, text, actorName string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		b.send(ctx, chatID, "Отправьте ID пользователя числом.", nil)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		b.send(ctx, chatID, "❌ Некорректный ID. Отправьте число, например: <code>123456789 Иван</code>", nil)
		return
	}
	rest := parts[1:]
	role := ""
	if len(rest) > 0 && (rest[0] == models.RoleAdmin || rest[0] == models.RoleUser) {
		role = rest[0]
		rest = rest[1:]
	}
	newName := strings.Join(rest, " ")
	if newName == "" {
		newName = "Без имени"
	}

	err = b.auth.AddUser(ctx, sess.UserID, actorName, models.AuthorizedUser{ID: id, Name: newName, Role: role})
	sess.Step = ""
	b.save(ctx, sess)
	switch {
	case err == nil:
		b.send(ctx, chatID, "✅ Пользователь <code>"+parts[0]+"</code> добавлен.", backToAdminKeyboard())
	case errors.Is(err, errors.ErrConflict):
		b.send(ctx, chatID, "ℹ️ У этого пользователя уже есть доступ.", backToAdminKeyboard())
	default:
		b.logger.Error("add_user_failed", zap.Error(err))
		b.send(ctx, chatID, textServiceUnavailable, backToAdminKeyboard())
	}
}

func (b *Bot) removeUserFromText(ctx context.Context, chatID int64, sess *models.Session, text, actorName string) {
	id, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		b.send(ctx, chatID, "❌ Некорректный ID. Отправьте число.", nil)
		return
	}

	err = b.auth.RemoveUser(ctx, sess.UserID, actorName, id)
	sess.Step = ""
	b.save(ctx, sess)
	switch {
	case err == nil:
		b.send(ctx, chatID, "✅ Доступ отозван.", backToAdminKeyboard())
	case errors.Is(err, errors.ErrNotFound):
		b.send(ctx, chatID, "ℹ️ Пользователь с таким ID не найден.", backToAdminKeyboard())
	case errors.Is(err, errors.ErrForbidden):
		b.send(ctx, chatID, "⛔ Главного администратора удалить нельзя.", backToAdminKeyboard())
	default:
		b.logger.Error("remove_user_failed", zap.Error(err))
		b.send(ctx, chatID, textServiceUnavailable, backToAdminKeyboard())
	}
}

func (b *Bot) handleQuestion(ctx context.Context, chatID int64, sess *models.Session, question string) {
	if question == "" {
		b.send(ctx, chatID, "Отправьте вопрос текстом.", nil)
		return
	}

	answer, err := b.assistant.Ask(ctx, question)
	if err != nil {
		b.logger.Error("assistant_ask_failed", zap.Error(err))
		b.send(ctx, chatID, textServiceUnavailable, nil)
		return
	}

	b.auth.LogAction(sess.UserID, "", "ASK_ASSISTANT", truncateDetails(question))

	keyboard := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.Button("🏠 Меню", cbBackToMain)),
	}}
	b.send(ctx, chatID, esc(answer)+"\n\nМожете задать следующий вопрос.", keyboard)
}

// reloadTables refreshes every cached table. A non-zero editMessageID
// rewrites the admin panel message instead of sending a new one.
func (b *Bot) reloadTables(ctx context.Context, chatID int64, sess *models.Session, name string, editMessageID int64) {
	text := "✅ Данные перезагружены."
	if err := b.roster.Refresh(ctx); err != nil {
		b.logger.Error("reload_failed", zap.Error(err))
		text = textServiceUnavailable
	} else {
		b.auth.LogAction(sess.UserID, name, "RELOAD", "")
	}

	if editMessageID > 0 {
		b.edit(ctx, chatID, editMessageID, text, backToAdminKeyboard())
		return
	}
	b.send(ctx, chatID, text, nil)
}

func truncateDetails(s string) string {
	runes := []rune(s)
	if len(runes) <= 200 {
		return s
	}
	return string(runes[:200]) + "…"
}

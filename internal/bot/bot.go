package bot

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/internal/service"
	"github.com/parish-tools/rosterbot/internal/session"
	"github.com/parish-tools/rosterbot/pkg/config"
	"github.com/parish-tools/rosterbot/pkg/telegram"
)

// Transport is the slice of the Telegram client the bot consumes.
type Transport interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, req telegram.AnswerCallbackQueryRequest) error
}

// UpdateMetrics counts processed updates.
type UpdateMetrics interface {
	ObserveUpdate(kind string)
}

// Bot routes incoming updates through the conversation state machine.
// Updates for the same chat are handled one at a time; different chats
// proceed in parallel.
type Bot struct {
	transport Transport
	sessions  session.Store
	auth      *service.AuthService
	roster    *service.RosterService
	assistant *service.AssistantService
	cfg       *config.Config
	metrics   UpdateMetrics
	logger    *zap.Logger

	lockMu    sync.Mutex
	chatLocks map[int64]*sync.Mutex
}

// New wires the bot. Metrics may be nil.
func New(
	transport Transport,
	sessions session.Store,
	auth *service.AuthService,
	roster *service.RosterService,
	assistant *service.AssistantService,
	cfg *config.Config,
	metrics UpdateMetrics,
	logger *zap.Logger,
) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		transport: transport,
		sessions:  sessions,
		auth:      auth,
		roster:    roster,
		assistant: assistant,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		chatLocks: make(map[int64]*sync.Mutex),
	}
}

// HandleUpdate implements telegram.Handler.
func (b *Bot) HandleUpdate(ctx context.Context, update telegram.Update) {
	switch {
	case update.CallbackQuery != nil:
		if b.metrics != nil {
			b.metrics.ObserveUpdate("callback_query")
		}
		b.withChatLock(update.CallbackQuery.From.ID, func() {
			b.handleCallback(ctx, update.CallbackQuery)
		})
	case update.Message != nil && update.Message.From != nil:
		if b.metrics != nil {
			b.metrics.ObserveUpdate("message")
		}
		b.withChatLock(update.Message.From.ID, func() {
			b.handleMessage(ctx, update.Message)
		})
	}
}

func (b *Bot) withChatLock(chatID int64, fn func()) {
	b.lockMu.Lock()
	mu, ok := b.chatLocks[chatID]
	if !ok {
		mu = &sync.Mutex{}
		b.chatLocks[chatID] = mu
	}
	b.lockMu.Unlock()

	mu.Lock()
	defer mu.Unlock()
	fn()
}

// displayName builds the audit-friendly name for a Telegram account.
func displayName(user *telegram.User) string {
	if user == nil {
		return ""
	}
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if user.Username != "" {
		if name == "" {
			return "@" + user.Username
		}
		return name + " (@" + user.Username + ")"
	}
	return name
}

// isGlobalNav reports whether the text should abandon any in-flight flow
// and return to the main menu.
func isGlobalNav(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/start", "/menu", "меню", "menu", "главное меню":
		return true
	}
	return false
}

// isQuestionExit reports whether the text should leave the assistant
// conversation instead of being forwarded as a question.
func isQuestionExit(text string) bool {
	if isGlobalNav(text) {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "отмена", "назад", "/help":
		return true
	}
	return false
}

// send posts a new message into the chat.
func (b *Bot) send(ctx context.Context, chatID int64, text string, keyboard *telegram.InlineKeyboardMarkup) {
	_, err := b.transport.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   telegram.ParseModeHTML,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		b.logger.Error("send_message_failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

// edit rewrites the message a callback came from; when Telegram refuses the
// edit (message too old, already gone) a fresh message is sent instead.
func (b *Bot) edit(ctx context.Context, chatID, messageID int64, text string, keyboard *telegram.InlineKeyboardMarkup) {
	_, err := b.transport.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   telegram.ParseModeHTML,
		ReplyMarkup: keyboard,
	})
	if err == nil {
		return
	}
	b.logger.Debug("edit_failed_sending_new", zap.Int64("chat_id", chatID), zap.Error(err))
	b.send(ctx, chatID, text, keyboard)
}

// save persists the session, logging instead of failing the update.
func (b *Bot) save(ctx context.Context, s *models.Session) {
	if err := b.sessions.Save(ctx, s); err != nil {
		b.logger.Error("session_save_failed", zap.Int64("user_id", s.UserID), zap.Error(err))
	}
}

package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/pkg/config"
	"github.com/parish-tools/rosterbot/pkg/errors"
)

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AssistantStats tracks query assistant usage for the admin panel.
type AssistantStats struct {
	Questions    int       `json:"questions"`
	Fallbacks    int       `json:"fallbacks"`
	LastQuestion time.Time `json:"last_question,omitempty"`
}

const answerTruncatedNotice = "\n\n… ответ сокращён."

const summaryUnavailable = "Не удалось получить анализ таблицы."

// summarySampleRows caps how much of the table goes into the summary prompt.
const summarySampleRows = 50

// AssistantService answers free-form questions about the roster. The whole
// table snapshot goes into the prompt; when the model is unreachable a
// small set of counting heuristics keeps the feature alive.
type AssistantService struct {
	generator Generator
	store     TableStore
	roster    config.RosterConfig
	maxRunes  int
	validate  *validator.Validate
	logger    *zap.Logger

	mu    sync.Mutex
	stats AssistantStats
}

// NewAssistantService wires the assistant.
func NewAssistantService(generator Generator, store TableStore, roster config.RosterConfig, maxRunes int, logger *zap.Logger) *AssistantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRunes <= 0 {
		maxRunes = 3000
	}
	return &AssistantService{
		generator: generator,
		store:     store,
		roster:    roster,
		maxRunes:  maxRunes,
		validate:  validator.New(),
		logger:    logger,
	}
}

// Ask answers a question about the roster. Model failures degrade to
// heuristic answers instead of surfacing an error to the chat.
func (s *AssistantService) Ask(ctx context.Context, question string) (string, error) {
	if err := s.validate.Var(question, "required,min=2,max=1000"); err != nil {
		return "", errors.Wrap(err, errors.ErrValidation.Code, errors.ErrValidation.Status, "question must be 2-1000 characters")
	}

	table, err := s.store.Get(ctx, s.roster.MainTable)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.stats.Questions++
	s.stats.LastQuestion = time.Now()
	s.mu.Unlock()

	prompt := s.buildPrompt(question, table.Headers, table.Body())

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("assistant_generate_failed", zap.Error(err))
		s.mu.Lock()
		s.stats.Fallbacks++
		s.mu.Unlock()
		return s.fallbackAnswer(question, len(table.Body()), len(table.Headers)), nil
	}

	return s.truncate(answer), nil
}

// Summarize produces a short model-written overview of the whole roster
// table. Model failures degrade to a fixed notice instead of an error; only
// a missing table snapshot surfaces one.
func (s *AssistantService) Summarize(ctx context.Context) (string, error) {
	table, err := s.store.Get(ctx, s.roster.MainTable)
	if err != nil {
		return "", err
	}

	prompt := s.buildSummaryPrompt(table.Headers, table.Body())

	answer, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		s.logger.Warn("assistant_summary_failed", zap.Error(err))
		s.mu.Lock()
		s.stats.Fallbacks++
		s.mu.Unlock()
		return summaryUnavailable, nil
	}

	return s.truncate(answer), nil
}

// Stats returns a copy of the usage counters.
func (s *AssistantService) Stats() AssistantStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *AssistantService) buildPrompt(question string, headers []string, body [][]string) string {
	var b strings.Builder
	b.WriteString("Ты помощник, отвечающий на вопросы по таблице участников.\n")
	b.WriteString("Отвечай кратко и по-русски, опираясь только на данные таблицы.\n\n")
	b.WriteString("Колонки: ")
	b.WriteString(strings.Join(headers, " | "))
	b.WriteString("\n\nДанные:\n")
	for _, row := range body {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	b.WriteString("\nВопрос: ")
	b.WriteString(question)
	return b.String()
}

func (s *AssistantService) buildSummaryPrompt(headers []string, body [][]string) string {
	sample := body
	if len(sample) > summarySampleRows {
		sample = sample[:summarySampleRows]
	}

	var b strings.Builder
	b.WriteString("Проанализируй таблицу участников.\n")
	b.WriteString("Колонки: ")
	b.WriteString(strings.Join(headers, ", "))
	b.WriteString(fmt.Sprintf("\nВсего записей: %d\n\nПримеры строк:\n", len(body)))
	for _, row := range sample {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}
	b.WriteString("\nСделай краткий анализ таблицы по пунктам: сколько записей, какие колонки, что примечательного в данных.")
	return b.String()
}

func (s *AssistantService) truncate(answer string) string {
	runes := []rune(answer)
	if len(runes) <= s.maxRunes {
		return answer
	}
	return string(runes[:s.maxRunes]) + answerTruncatedNotice
}

// fallbackAnswer covers the questions people actually ask when the model is
// down. Anything else gets an honest "try later".
func (s *AssistantService) fallbackAnswer(question string, rowCount, columnCount int) string {
	q := strings.ToLower(question)
	switch {
	case strings.Contains(q, "сколько"):
		return fmt.Sprintf("В таблице %d записей.", rowCount)
	case strings.Contains(q, "колонк"):
		return fmt.Sprintf("В таблице %d колонок.", columnCount)
	default:
		return "Помощник временно недоступен, попробуйте позже."
	}
}

package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parish-tools/rosterbot/pkg/errors"
)

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompt = prompt
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func TestAskIncludesTableInPrompt(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{answer: "Всего 4 участника."}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	answer, err := svc.Ask(context.Background(), "Сколько всего участников?")
	require.NoError(t, err)
	assert.Equal(t, "Всего 4 участника.", answer)
	assert.Contains(t, gen.prompt, "Иванова")
	assert.Contains(t, gen.prompt, "Сколько всего участников?")
}

func TestAskTruncatesLongAnswers(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{answer: strings.Repeat("я", 50)}
	svc := NewAssistantService(gen, store, testRosterConfig(), 10, nil)

	answer, err := svc.Ask(context.Background(), "вопрос")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(answer, strings.Repeat("я", 10)))
	assert.Contains(t, answer, "ответ сокращён")
}

func TestAskShortAnswerNotTruncated(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{answer: "коротко"}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	answer, err := svc.Ask(context.Background(), "вопрос")
	require.NoError(t, err)
	assert.Equal(t, "коротко", answer)
}

func TestAskFallbackRowCount(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{err: fmt.Errorf("model offline")}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	answer, err := svc.Ask(context.Background(), "Сколько человек в списке?")
	require.NoError(t, err)
	assert.Equal(t, "В таблице 4 записей.", answer)
}

func TestAskFallbackColumnCount(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{err: fmt.Errorf("model offline")}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	answer, err := svc.Ask(context.Background(), "Какие колонки есть?")
	require.NoError(t, err)
	assert.Equal(t, "В таблице 5 колонок.", answer)
}

func TestAskFallbackUnknownQuestion(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{err: fmt.Errorf("model offline")}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	answer, err := svc.Ask(context.Background(), "Кто самый старший?")
	require.NoError(t, err)
	assert.Contains(t, answer, "временно недоступен")
}

func TestAssistantStatsCount(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{answer: "ок"}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	ctx := context.Background()
	_, err := svc.Ask(ctx, "раз")
	require.NoError(t, err)
	gen.err = fmt.Errorf("model offline")
	_, err = svc.Ask(ctx, "сколько")
	require.NoError(t, err)

	stats := svc.Stats()
	assert.Equal(t, 2, stats.Questions)
	assert.Equal(t, 1, stats.Fallbacks)
	assert.False(t, stats.LastQuestion.IsZero())
}

func TestSummarizeIncludesHeadersAndRows(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{answer: "Анализ: 4 записи."}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	summary, err := svc.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Анализ: 4 записи.", summary)
	assert.Contains(t, gen.prompt, "Имя, Фамилия, Дата рождения, Домашка, Статус")
	assert.Contains(t, gen.prompt, "Всего записей: 4")
	assert.Contains(t, gen.prompt, "Иванова")
	assert.Contains(t, gen.prompt, "краткий анализ")
}

func TestSummarizeCapsSampleRows(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	for i := 0; i < 100; i++ {
		store.sheets["MainSheet"] = append(store.sheets["MainSheet"],
			[]string{fmt.Sprintf("Имя%d", i), "Массов", "", "", ""},
		)
	}
	gen := &stubGenerator{answer: "ок"}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	_, err := svc.Summarize(context.Background())
	require.NoError(t, err)
	assert.Contains(t, gen.prompt, "Всего записей: 104")
	assert.NotContains(t, gen.prompt, "Имя99")
}

func TestSummarizeModelFailureReturnsNotice(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{err: fmt.Errorf("model offline")}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	summary, err := svc.Summarize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Не удалось получить анализ таблицы.", summary)
	assert.Equal(t, 1, svc.Stats().Fallbacks)
}

func TestSummarizeStoreFailurePropagates(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.failGet = true
	gen := &stubGenerator{answer: "ок"}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	_, err := svc.Summarize(context.Background())
	require.Error(t, err)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	gen := &stubGenerator{answer: "ок"}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	_, err := svc.Ask(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, gen.prompt)
}

func TestAskStoreFailurePropagates(t *testing.T) {
	store := newStubTableStore()
	seedRoster(store)
	store.failGet = true
	gen := &stubGenerator{answer: "ок"}
	svc := NewAssistantService(gen, store, testRosterConfig(), 3000, nil)

	_, err := svc.Ask(context.Background(), "вопрос")
	require.Error(t, err)
}

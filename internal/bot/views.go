package bot

import (
	"fmt"
	"html"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parish-tools/rosterbot/internal/models"
	"github.com/parish-tools/rosterbot/internal/service"
	"github.com/parish-tools/rosterbot/pkg/telegram"
)

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

func esc(s string) string {
	return html.EscapeString(s)
}

func (b *Bot) mainMenuView(isAdmin bool) (string, *telegram.InlineKeyboardMarkup) {
	rows := [][]telegram.InlineKeyboardButton{
		{telegram.Button("👥 Просмотр участников", cbView)},
	}
	if isAdmin {
		rows = append(rows, telegram.Row(
			telegram.Button("✏️ Редактировать", cbEdit),
			telegram.Button("➕ Создать", cbCreate),
		))
	}
	rows = append(rows,
		telegram.Row(telegram.Button("🤖 Задать вопрос", cbAskAssistant)),
		telegram.Row(telegram.Button("📋 Прочее", cbOtherMenu)),
	)
	if isAdmin {
		rows = append(rows, telegram.Row(telegram.Button("⚙️ Админ-панель", cbAdminMenu)))
	}
	if b.cfg.Telegram.WebAppURL != "" {
		rows = append(rows, telegram.Row(telegram.InlineKeyboardButton{
			Text:   "📱 Открыть приложение",
			WebApp: &telegram.WebAppInfo{URL: b.cfg.Telegram.WebAppURL},
		}))
	}
	return "<b>Главное меню</b>\nВыберите действие:", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func deniedText(userID int64) string {
	return fmt.Sprintf(
		"⛔ У вас нет доступа к боту.\nВаш ID: <code>%d</code>\nПередайте его администратору для получения доступа.",
		userID,
	)
}

func alphabetView(letters []string) (string, *telegram.InlineKeyboardMarkup) {
	var rows [][]telegram.InlineKeyboardButton
	var row []telegram.InlineKeyboardButton
	for _, letter := range letters {
		row = append(row, telegram.Button(letter, cbLetterPrefix+letter))
		if len(row) == 4 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, telegram.Row(telegram.Button("⬅️ Назад", cbBackToMain)))
	return "Выберите первую букву имени:", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func peopleView(letter string, people []models.PersonRef) (string, *telegram.InlineKeyboardMarkup) {
	var rows [][]telegram.InlineKeyboardButton
	for _, p := range people {
		rows = append(rows, telegram.Row(
			telegram.Button(p.Label, cbPersonPrefix+strconv.Itoa(p.RowNumber)),
		))
	}
	rows = append(rows, telegram.Row(
		telegram.Button("⬅️ К буквам", cbBackToLetters),
		telegram.Button("🏠 Меню", cbBackToMain),
	))
	text := fmt.Sprintf("Имена на букву <b>%s</b>:", esc(letter))
	if len(people) == 0 {
		text = fmt.Sprintf("На букву <b>%s</b> никого не найдено.", esc(letter))
	}
	return text, &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func cardText(card *service.PersonCard) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> [#%d]\n\n", esc(card.Title), card.RowNumber)
	for _, f := range card.Fields {
		fmt.Fprintf(&b, "<b>%s:</b> %s\n", esc(f.Name), esc(f.Value))
	}
	if card.Age > 0 {
		fmt.Fprintf(&b, "\nВозраст: %d", card.Age)
	}
	return b.String()
}

func cardView(card *service.PersonCard, isAdmin bool) (string, *telegram.InlineKeyboardMarkup) {
	var rows [][]telegram.InlineKeyboardButton
	if isAdmin {
		rows = append(rows, telegram.Row(telegram.Button("✏️ Редактировать", cbEditCardPrefix+strconv.Itoa(card.RowNumber))))
	}
	rows = append(rows, telegram.Row(
		telegram.Button("⬅️ К списку", cbBackToPeople),
		telegram.Button("🏠 Меню", cbBackToMain),
	))
	return cardText(card), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func (b *Bot) builderView(s *models.Session, headers []string) (string, *telegram.InlineKeyboardMarkup) {
	var text strings.Builder
	if s.Mode == models.ModeCreate {
		text.WriteString("<b>Создание карточки</b>\n\n")
	} else {
		text.WriteString("<b>Редактирование карточки</b>\n\n")
	}
	if len(s.Draft) == 0 {
		text.WriteString("Пока ничего не заполнено.\n")
	} else {
		for _, header := range headers {
			if value, ok := s.Draft[header]; ok {
				if b.cfg.Roster.DateColumn(header) {
					value = models.FormatDisplayDate(value)
				}
				fmt.Fprintf(&text, "<b>%s:</b> %s\n", esc(header), esc(value))
			}
		}
	}
	text.WriteString("\nВыберите поле для заполнения:")

	var rows [][]telegram.InlineKeyboardButton
	var row []telegram.InlineKeyboardButton
	for _, header := range headers {
		label := header
		if _, ok := s.Draft[header]; ok {
			label = "✅ " + header
		}
		row = append(row, telegram.Button(label, cbEditFieldPrefix+header))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows,
		telegram.Row(telegram.Button("➕ Новая категория", cbAddCategory)),
		telegram.Row(
			telegram.Button("💾 Сохранить", cbSaveCard),
			telegram.Button("❌ Отмена", cbCancelBuilder),
		),
	)
	return text.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func optionPickView(field string, options []string, callbackPrefix string) (string, *telegram.InlineKeyboardMarkup) {
	var rows [][]telegram.InlineKeyboardButton
	for i, option := range options {
		rows = append(rows, telegram.Row(telegram.Button(option, callbackPrefix+strconv.Itoa(i))))
	}
	rows = append(rows, telegram.Row(telegram.Button("⬅️ Назад", cbBuilderMenu)))
	return fmt.Sprintf("Выберите значение для поля <b>%s</b>:", esc(field)), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func adminMenuView() (string, *telegram.InlineKeyboardMarkup) {
	rows := [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.Button("👤 Пользователи", cbAdminUsers)),
		telegram.Row(
			telegram.Button("➕ Добавить", cbAdminAddUser),
			telegram.Button("➖ Удалить", cbAdminRemoveUser),
		),
		telegram.Row(telegram.Button("📊 Статистика", cbAdminStats)),
		telegram.Row(telegram.Button("📈 Анализ таблицы", cbAdminSummary)),
		telegram.Row(telegram.Button("📜 Журнал доступа", cbAdminLogs)),
		telegram.Row(telegram.Button("🤖 Статистика помощника", cbAdminAssistantStats)),
		telegram.Row(telegram.Button("🔄 Перезагрузить данные", cbAdminReload)),
		telegram.Row(telegram.Button("🏠 Меню", cbBackToMain)),
	}
	return "<b>Админ-панель</b>", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func backToAdminKeyboard() *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.Button("⬅️ Назад", cbBackToAdmin)),
	}}
}

func usersText(users []models.AuthorizedUser) string {
	if len(users) == 0 {
		return "Список пользователей пуст."
	}
	var b strings.Builder
	b.WriteString("<b>Пользователи с доступом:</b>\n\n")
	for _, u := range users {
		fmt.Fprintf(&b, "• <code>%d</code> — %s", u.ID, esc(u.Name))
		if u.Username != "" {
			fmt.Fprintf(&b, " (@%s)", esc(u.Username))
		}
		if u.Admin() {
			b.WriteString(" 👑")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// statsText renders the available sections; one that failed to load is
// simply left out.
func statsText(stats *service.Stats) string {
	var b strings.Builder
	b.WriteString("<b>Статистика</b>\n")

	if db := stats.Database; db != nil {
		b.WriteString("\n<b>База:</b>\n")
		fmt.Fprintf(&b, "• Записей: %d\n", db.Records)
		fmt.Fprintf(&b, "• Колонок: %d\n", db.Columns)
		if len(db.ByStatus) > 0 {
			b.WriteString("\n<b>По статусу:</b>\n")
			for _, line := range sortedCountLines(db.ByStatus) {
				b.WriteString(line)
			}
		}
		if len(db.ByHomeroom) > 0 {
			b.WriteString("\n<b>По домашкам:</b>\n")
			for _, line := range sortedCountLines(db.ByHomeroom) {
				b.WriteString(line)
			}
		}
	}

	if us := stats.Users; us != nil {
		b.WriteString("\n<b>Пользователи:</b>\n")
		fmt.Fprintf(&b, "• Всего: %d\n", us.Total)
		fmt.Fprintf(&b, "• Администраторов: %d\n", us.Admins)
		fmt.Fprintf(&b, "• Обычных: %d\n", us.Regular)
	}

	if ls := stats.Logs; ls != nil {
		b.WriteString("\n<b>Журнал доступа:</b>\n")
		fmt.Fprintf(&b, "• Всего обращений: %d\n", ls.Total)
		fmt.Fprintf(&b, "• Разрешено: %d\n", ls.Granted)
		fmt.Fprintf(&b, "• Отказано: %d\n", ls.Denied)
	}

	if stats.Database == nil && stats.Users == nil && stats.Logs == nil {
		b.WriteString("\nДанные временно недоступны.")
	}
	return b.String()
}

func sortedCountLines(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("• %s: %d\n", esc(k), counts[k]))
	}
	return lines
}

func logsText(rows [][]string) string {
	if len(rows) == 0 {
		return "Журнал доступа пуст."
	}
	var b strings.Builder
	b.WriteString("<b>Последние обращения:</b>\n\n")
	for _, row := range rows {
		b.WriteString("• ")
		b.WriteString(esc(strings.Join(row, " | ")))
		b.WriteString("\n")
	}
	return b.String()
}

func assistantStatsText(stats service.AssistantStats) string {
	var b strings.Builder
	b.WriteString("<b>Статистика помощника</b>\n\n")
	fmt.Fprintf(&b, "Вопросов задано: <b>%d</b>\n", stats.Questions)
	fmt.Fprintf(&b, "Ответов без модели: <b>%d</b>\n", stats.Fallbacks)
	if !stats.LastQuestion.IsZero() {
		fmt.Fprintf(&b, "Последний вопрос: %s\n", stats.LastQuestion.Format("02.01.2006 15:04"))
	}
	return b.String()
}

func otherMenuView() (string, *telegram.InlineKeyboardMarkup) {
	rows := [][]telegram.InlineKeyboardButton{
		telegram.Row(telegram.Button("🎂 Дни рождения", cbShowBirthdays)),
		telegram.Row(telegram.Button("🏠 Домашки", cbShowHomeroomGroups)),
		telegram.Row(telegram.Button("⬅️ Меню", cbBackToMain)),
	}
	return "<b>Прочее</b>", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func monthsView() (string, *telegram.InlineKeyboardMarkup) {
	var rows [][]telegram.InlineKeyboardButton
	var row []telegram.InlineKeyboardButton
	for i, name := range monthNames {
		row = append(row, telegram.Button(name, cbSelectMonthPrefix+strconv.Itoa(i+1)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = nil
		}
	}
	rows = append(rows, telegram.Row(telegram.Button("⬅️ Назад", cbBackToOther)))
	return "Выберите месяц:", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func birthdaysText(month time.Month, entries []service.BirthdayEntry) string {
	name := monthNames[int(month)-1]
	if len(entries) == 0 {
		return fmt.Sprintf("В месяце <b>%s</b> дней рождения нет.", name)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Дни рождения — %s:</b>\n\n", name)
	for _, e := range entries {
		fmt.Fprintf(&b, "🎂 %s — %s (исполняется %d)\n", esc(e.Name), e.Date, e.TurnsAge)
	}
	return b.String()
}

func homeroomGroupsView(groups []service.HomeroomGroup) (string, *telegram.InlineKeyboardMarkup) {
	var rows [][]telegram.InlineKeyboardButton
	for i, g := range groups {
		label := fmt.Sprintf("%s (%d)", g.Name, g.Count)
		rows = append(rows, telegram.Row(telegram.Button(label, cbSelectHomeroomGroupPrefix+strconv.Itoa(i))))
	}
	rows = append(rows, telegram.Row(telegram.Button("⬅️ Назад", cbBackToOther)))
	return "Выберите домашку:", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func homeroomMembersText(group string, people []models.PersonRef) string {
	if len(people) == 0 {
		return fmt.Sprintf("В домашке <b>%s</b> никого нет.", esc(group))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b> — %d чел.\n\n", esc(group), len(people))
	for _, p := range people {
		fmt.Fprintf(&b, "• %s\n", esc(p.Label))
	}
	return b.String()
}

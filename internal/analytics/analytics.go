package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"match-chatter/internal/storage"
)

// DailyStats содержит статистику за день
type DailyStats struct {
	Date           string                  `json:"date"`
	TotalMessages  int                     `json:"total_messages"`
	UniqueSessions int                     `json:"unique_sessions"`
	Failures       int                     `json:"failures"`
	Timeouts       int                     `json:"timeouts"`
	Rejected       int                     `json:"rejected"`
	ByPersona      map[string]int          `json:"by_persona"`
	SessionStats   map[string]SessionStats `json:"session_stats"`
}

// SessionStats содержит статистику по сессии
type SessionStats struct {
	SessionID string `json:"session_id"`
	Messages  int    `json:"messages"`
	Failures  int    `json:"failures"`
}

// AnalyzeDailyLogs анализирует события за указанную дату
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	// Нормализуем дату до начала дня
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:         startOfDay.Format("2006-01-02"),
		ByPersona:    make(map[string]int),
		SessionStats: make(map[string]SessionStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		// записи без текста пользователя не считаются
		if event.UserMessage == "" {
			continue
		}

		stats.TotalMessages++
		s := stats.SessionStats[event.SessionID]
		s.SessionID = event.SessionID
		s.Messages++

		if event.Persona != "" {
			stats.ByPersona[event.Persona]++
		}

		switch event.Outcome {
		case storage.OutcomeTimeout:
			stats.Timeouts++
			s.Failures++
		case storage.OutcomeService:
			stats.Failures++
			s.Failures++
		case storage.OutcomeRejected:
			stats.Rejected++
		}
		stats.SessionStats[event.SessionID] = s
	}

	stats.UniqueSessions = len(stats.SessionStats)
	return stats
}

// GenerateReportSummary создает текстовое резюме отчета
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Статистика прогнозов за %s:\n\n", ds.Date)
	b.WriteString("Общая активность:\n")
	fmt.Fprintf(&b, "- Всего сообщений: %d\n", ds.TotalMessages)
	fmt.Fprintf(&b, "- Уникальных сессий: %d\n", ds.UniqueSessions)
	fmt.Fprintf(&b, "- Ошибок сервиса: %d\n", ds.Failures)
	fmt.Fprintf(&b, "- Таймаутов: %d\n", ds.Timeouts)
	fmt.Fprintf(&b, "- Отклонено параллельных запросов: %d\n\n", ds.Rejected)

	if len(ds.ByPersona) > 0 {
		b.WriteString("Режимы ответа:\n")
		for _, name := range sortedKeys(ds.ByPersona) {
			fmt.Fprintf(&b, "- %s: %d\n", name, ds.ByPersona[name])
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Активность сессий (%d):\n", len(ds.SessionStats))
	ids := make([]string, 0, len(ds.SessionStats))
	for id := range ds.SessionStats {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := ds.SessionStats[id]
		fmt.Fprintf(&b, "- Сессия %s: %d сообщений", id, s.Messages)
		if s.Failures > 0 {
			fmt.Fprintf(&b, ", %d неудачных", s.Failures)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ToJSON сериализует статистику в JSON для детального анализа
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

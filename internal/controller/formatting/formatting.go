package formatting

import (
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/service"
)

// FormatDateTime форматирует дату и время
func FormatDateTime(t time.Time) string {
	return t.Format("02.01.2006 15:04")
}

// FormatDate форматирует только дату
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

// FormatTime форматирует только время
func FormatTime(t time.Time) string {
	return t.Format("15:04")
}

// FormatTimeRange форматирует диапазон времени
func FormatTimeRange(start, end time.Time) string {
	return fmt.Sprintf("%s-%s", start.Format("15:04"), end.Format("15:04"))
}

// FormatDuration форматирует длительность
func FormatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%d мин", minutes)
	}
	hours := minutes / 60
	mins := minutes % 60
	if mins == 0 {
		return fmt.Sprintf("%d ч", hours)
	}
	return fmt.Sprintf("%d ч %d мин", hours, mins)
}

// GetWeekdayShortName возвращает краткое название дня недели на русском
func GetWeekdayShortName(weekday time.Weekday) string {
	names := []string{"Вс", "Пн", "Вт", "Ср", "Чт", "Пт", "Сб"}
	if weekday >= 0 && int(weekday) < len(names) {
		return names[weekday]
	}
	return "?"
}

// StatusDisplay emoji и текст статуса
type StatusDisplay struct {
	Emoji string
	Text  string
}

// GetAppointmentStatusDisplay возвращает emoji и текст для статуса записи
func GetAppointmentStatusDisplay(status model.AppointmentStatus) StatusDisplay {
	displays := map[model.AppointmentStatus]StatusDisplay{
		model.AppointmentStatusPending:   {"⏳", "Ожидает подтверждения"},
		model.AppointmentStatusConfirmed: {"✅", "Подтверждена"},
		model.AppointmentStatusCompleted: {"✔️", "Завершена"},
		model.AppointmentStatusCancelled: {"❌", "Отменена"},
		model.AppointmentStatusNoShow:    {"🚫", "Клиент не пришёл"},
	}

	if display, ok := displays[status]; ok {
		return display
	}

	return StatusDisplay{"❓", "Неизвестно"}
}

// GetSyncStateDisplay возвращает пометку о состоянии синхронизации; для synced пусто
func GetSyncStateDisplay(state model.SyncState) string {
	switch state {
	case model.SyncStateUnsynced, model.SyncStateSyncing:
		return "🔄 ждёт синхронизации"
	case model.SyncStateSyncError:
		return "⚠️ ошибка синхронизации"
	}
	return ""
}

// GetReasonText возвращает описание причины отказа
func GetReasonText(reason service.Reason) string {
	texts := map[service.Reason]string{
		service.ReasonInvalidInterval:  "некорректный интервал",
		service.ReasonMinNotice:        "слишком поздно для записи",
		service.ReasonAdvanceHorizon:   "слишком далеко вперёд",
		service.ReasonDailyCap:         "в этот день нет мест",
		service.ReasonOutsideWorkHours: "вне рабочего времени",
		service.ReasonBlocked:          "время закрыто провайдером",
		service.ReasonOverlap:          "время занято",
	}

	if text, ok := texts[reason]; ok {
		return text
	}
	return string(reason)
}

// FormatAppointment форматирует запись в часовом поясе провайдера
func FormatAppointment(a *model.Appointment, loc *time.Location) string {
	display := GetAppointmentStatusDisplay(a.Status)
	start := a.StartTime.In(loc)

	var b strings.Builder
	fmt.Fprintf(&b, "%s #%d %s %s %s (%s)",
		display.Emoji,
		a.ID,
		GetWeekdayShortName(start.Weekday()),
		FormatDate(start),
		FormatTimeRange(start, a.EndTime.In(loc)),
		display.Text,
	)
	if a.SeriesID != nil {
		b.WriteString(" 🔁")
	}
	if sync := GetSyncStateDisplay(a.ExternalSyncState); sync != "" {
		b.WriteString(" " + sync)
	}
	return b.String()
}

// FormatRejections перечисляет отклонённые вхождения с причинами
func FormatRejections(results []*service.ValidationResult, loc *time.Location) string {
	var lines []string
	for _, r := range results {
		if r.OK {
			continue
		}
		start := r.Candidate.Start.In(loc)
		reasons := make([]string, 0, len(r.Conflicts))
		seen := make(map[service.Reason]bool)
		for _, c := range r.Conflicts {
			if !seen[c.Reason] {
				seen[c.Reason] = true
				reasons = append(reasons, GetReasonText(c.Reason))
			}
		}
		if len(reasons) == 0 {
			reasons = append(reasons, GetReasonText(r.Reason))
		}
		lines = append(lines, fmt.Sprintf("• %s %s: %s", FormatDate(start), FormatTime(start), strings.Join(reasons, ", ")))
	}
	return strings.Join(lines, "\n")
}

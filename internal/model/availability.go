package model

import (
	"fmt"
	"time"
)

// WorkInterval рабочий интервал внутри дня, в минутах от полуночи по местному времени
type WorkInterval struct {
	StartMinute int `json:"start_minute"` // 0-1439
	EndMinute   int `json:"end_minute"`   // 1-1440
}

// NewWorkInterval собирает интервал из часов и минут
func NewWorkInterval(startHour, startMinute, endHour, endMinute int) WorkInterval {
	return WorkInterval{
		StartMinute: startHour*60 + startMinute,
		EndMinute:   endHour*60 + endMinute,
	}
}

func (w WorkInterval) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.StartMinute/60, w.StartMinute%60, w.EndMinute/60, w.EndMinute%60)
}

// On переводит интервал в абсолютное время для указанной даты в локации loc
func (w WorkInterval) On(year int, month time.Month, day int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, day, w.StartMinute/60, w.StartMinute%60, 0, 0, loc)
	end := time.Date(year, month, day, w.EndMinute/60, w.EndMinute%60, 0, 0, loc)
	return start, end
}

// AvailabilityTemplate недельный шаблон провайдера и его политика записи
type AvailabilityTemplate struct {
	ProviderID           int64                           `json:"provider_id"`
	WeeklySchedule       map[time.Weekday][]WorkInterval `json:"weekly_schedule"` // 0 = Sunday, 6 = Saturday
	BufferMinutes        int                             `json:"buffer_minutes"`
	MaxDailyAppointments int                             `json:"max_daily_appointments"`
	AdvanceBookingDays   int                             `json:"advance_booking_days"`
	MinNoticeHours       int                             `json:"min_notice_hours"`
	Timezone             string                          `json:"timezone"`
	UpdatedAt            time.Time                       `json:"updated_at"`
}

// Location возвращает часовой пояс шаблона
func (t *AvailabilityTemplate) Location() (*time.Location, error) {
	return time.LoadLocation(t.Timezone)
}

// Buffer возвращает буфер как time.Duration
func (t *AvailabilityTemplate) Buffer() time.Duration {
	return time.Duration(t.BufferMinutes) * time.Minute
}

// Clone возвращает глубокую копию шаблона
func (t *AvailabilityTemplate) Clone() *AvailabilityTemplate {
	cp := *t
	cp.WeeklySchedule = make(map[time.Weekday][]WorkInterval, len(t.WeeklySchedule))
	for day, intervals := range t.WeeklySchedule {
		cp.WeeklySchedule[day] = append([]WorkInterval(nil), intervals...)
	}
	return &cp
}

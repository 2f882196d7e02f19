package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
	"go.uber.org/zap"
)

const (
	maxBufferMinutes      = 120
	maxDailyAppointments  = 100
	maxAdvanceBookingDays = 730
	maxMinNoticeHours     = 720
	minutesPerDay         = 24 * 60
)

// TemplateDefaults политика и недельный график нового провайдера
type TemplateDefaults struct {
	WeeklySchedule       map[time.Weekday][]model.WorkInterval
	BufferMinutes        int
	MaxDailyAppointments int
	AdvanceBookingDays   int
	MinNoticeHours       int
	Timezone             string
}

// DefaultWeeklySchedule понедельник-пятница 09:00-17:00
func DefaultWeeklySchedule() map[time.Weekday][]model.WorkInterval {
	schedule := make(map[time.Weekday][]model.WorkInterval)
	for day := time.Monday; day <= time.Friday; day++ {
		schedule[day] = []model.WorkInterval{model.NewWorkInterval(9, 0, 17, 0)}
	}
	return schedule
}

// AvailabilityService хранилище недельных шаблонов провайдеров
type AvailabilityService struct {
	templates TemplateStore
	defaults  TemplateDefaults
	logger    *zap.Logger
	now       func() time.Time
}

func NewAvailabilityService(templates TemplateStore, defaults TemplateDefaults, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		templates: templates,
		defaults:  defaults,
		logger:    logger,
		now:       time.Now,
	}
}

// GetTemplate возвращает шаблон провайдера или шаблон по умолчанию, если провайдер его ещё не задал
func (s *AvailabilityService) GetTemplate(ctx context.Context, providerID int64) (*model.AvailabilityTemplate, error) {
	template, err := s.templates.Get(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}

	if template == nil {
		return s.defaultTemplate(providerID), nil
	}

	return template, nil
}

// ReplaceTemplate проверяет шаблон целиком и атомарно заменяет им текущий
func (s *AvailabilityService) ReplaceTemplate(ctx context.Context, providerID int64, template *model.AvailabilityTemplate) error {
	candidate := template.Clone()
	candidate.ProviderID = providerID

	if violations := ValidateTemplate(candidate); len(violations) > 0 {
		s.logger.Info("Template rejected",
			zap.Int64("provider_id", providerID),
			zap.Int("violations", len(violations)),
		)
		return &TemplateError{ProviderID: providerID, Violations: violations}
	}

	candidate.UpdatedAt = s.now()
	if err := s.templates.Save(ctx, candidate); err != nil {
		return fmt.Errorf("save template: %w", err)
	}

	s.logger.Info("Template replaced",
		zap.Int64("provider_id", providerID),
		zap.Int("buffer_minutes", candidate.BufferMinutes),
		zap.Int("max_daily", candidate.MaxDailyAppointments),
		zap.String("timezone", candidate.Timezone),
	)

	return nil
}

// ListProviderIDs возвращает провайдеров, у которых есть сохранённый шаблон
func (s *AvailabilityService) ListProviderIDs(ctx context.Context) ([]int64, error) {
	return s.templates.ListProviderIDs(ctx)
}

func (s *AvailabilityService) defaultTemplate(providerID int64) *model.AvailabilityTemplate {
	schedule := s.defaults.WeeklySchedule
	if schedule == nil {
		schedule = DefaultWeeklySchedule()
	}

	template := &model.AvailabilityTemplate{
		ProviderID:           providerID,
		WeeklySchedule:       schedule,
		BufferMinutes:        s.defaults.BufferMinutes,
		MaxDailyAppointments: s.defaults.MaxDailyAppointments,
		AdvanceBookingDays:   s.defaults.AdvanceBookingDays,
		MinNoticeHours:       s.defaults.MinNoticeHours,
		Timezone:             s.defaults.Timezone,
	}
	if template.Timezone == "" {
		template.Timezone = "UTC"
	}

	return template.Clone()
}

// ValidateTemplate возвращает все нарушения инвариантов шаблона
func ValidateTemplate(t *model.AvailabilityTemplate) []TemplateViolation {
	var violations []TemplateViolation
	add := func(field, format string, args ...any) {
		violations = append(violations, TemplateViolation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	for day := time.Sunday; day <= time.Saturday; day++ {
		intervals, ok := t.WeeklySchedule[day]
		if !ok {
			continue
		}
		field := fmt.Sprintf("weekly_schedule[%d]", day)

		for i, wi := range intervals {
			if wi.StartMinute < 0 || wi.EndMinute > minutesPerDay {
				add(field, "interval %d (%s) is outside 00:00-24:00", i, wi)
				continue
			}
			if wi.EndMinute <= wi.StartMinute {
				add(field, "interval %d (%s) ends before it starts", i, wi)
				continue
			}
			if i > 0 && wi.StartMinute < intervals[i-1].EndMinute {
				add(field, "interval %d (%s) overlaps or precedes %s", i, wi, intervals[i-1])
			}
		}
	}

	for day := range t.WeeklySchedule {
		if day < time.Sunday || day > time.Saturday {
			add("weekly_schedule", "unknown day of week %d", day)
		}
	}

	if t.BufferMinutes < 0 || t.BufferMinutes > maxBufferMinutes {
		add("buffer_minutes", "must be within [0, %d], got %d", maxBufferMinutes, t.BufferMinutes)
	}
	if t.MaxDailyAppointments < 1 || t.MaxDailyAppointments > maxDailyAppointments {
		add("max_daily_appointments", "must be within [1, %d], got %d", maxDailyAppointments, t.MaxDailyAppointments)
	}
	if t.AdvanceBookingDays < 1 || t.AdvanceBookingDays > maxAdvanceBookingDays {
		add("advance_booking_days", "must be within [1, %d], got %d", maxAdvanceBookingDays, t.AdvanceBookingDays)
	}
	if t.MinNoticeHours < 0 || t.MinNoticeHours > maxMinNoticeHours {
		add("min_notice_hours", "must be within [0, %d], got %d", maxMinNoticeHours, t.MinNoticeHours)
	}
	if t.Timezone == "" {
		add("timezone", "is required")
	} else if _, err := time.LoadLocation(t.Timezone); err != nil {
		add("timezone", "unknown timezone %q", t.Timezone)
	}

	return violations
}

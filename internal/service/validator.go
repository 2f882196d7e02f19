package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/interval"
	"github.com/Freeeeeet/booking_engine/internal/model"
)

// Reason категория нарушения; категории проверяются в порядке объявления
type Reason string

const (
	ReasonInvalidInterval  Reason = "invalid_interval"
	ReasonMinNotice        Reason = "min_notice"
	ReasonAdvanceHorizon   Reason = "advance_horizon"
	ReasonDailyCap         Reason = "daily_cap"
	ReasonOutsideWorkHours Reason = "outside_work_hours"
	ReasonBlocked          Reason = "blocked"
	ReasonOverlap          Reason = "overlap"
)

// Conflict конкретное нарушение: интервал, который мешает, и его источник
type Conflict struct {
	Reason            Reason            `json:"reason"`
	Interval          interval.Interval `json:"interval"`
	AppointmentID     int64             `json:"appointment_id,omitempty"`
	BlockedIntervalID int64             `json:"blocked_interval_id,omitempty"`
	Message           string            `json:"message"`
}

// ValidationResult результат проверки одного кандидата
type ValidationResult struct {
	OK        bool              `json:"ok"`
	Candidate interval.Interval `json:"candidate"`
	Reason    Reason            `json:"reason,omitempty"`
	Conflicts []Conflict        `json:"conflicts,omitempty"`
}

// Reasons возвращает текстовые описания всех нарушений
func (r *ValidationResult) Reasons() []string {
	reasons := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		reasons = append(reasons, c.Message)
	}
	return reasons
}

// providerState снимок состояния провайдера, против которого идёт проверка
type providerState struct {
	template     *model.AvailabilityTemplate
	loc          *time.Location
	blocked      []*model.BlockedInterval
	appointments []*model.Appointment
}

// Validator единственная точка допуска кандидата перед сохранением
type Validator struct {
	availability *AvailabilityService
	blocked      BlockedIntervalStore
	appointments AppointmentStore
	now          func() time.Time
}

func NewValidator(availability *AvailabilityService, blocked BlockedIntervalStore, appointments AppointmentStore) *Validator {
	return &Validator{
		availability: availability,
		blocked:      blocked,
		appointments: appointments,
		now:          time.Now,
	}
}

// ValidateCandidate проверяет интервал против текущего состояния провайдера.
// excludeID исключает запись из проверки (перенос самой себя); 0 - ничего не исключать.
func (v *Validator) ValidateCandidate(ctx context.Context, providerID int64, candidate interval.Interval, excludeID int64) (*ValidationResult, error) {
	results, err := v.ValidateSeries(ctx, providerID, []interval.Interval{candidate}, excludeID)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// ValidateSeries проверяет каждое вхождение отдельно. Предыдущие вхождения серии
// учитываются как уже занятые, чтобы серия не конфликтовала сама с собой.
func (v *Validator) ValidateSeries(ctx context.Context, providerID int64, candidates []interval.Interval, excludeID int64) ([]*ValidationResult, error) {
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", ErrInvalidInterval)
	}

	from, to := candidates[0].Start, candidates[0].End
	for _, c := range candidates[1:] {
		if c.Start.Before(from) {
			from = c.Start
		}
		if c.End.After(to) {
			to = c.End
		}
	}

	state, err := v.loadState(ctx, providerID, from, to)
	if err != nil {
		return nil, err
	}

	now := v.now()
	results := make([]*ValidationResult, 0, len(candidates))
	for _, candidate := range candidates {
		results = append(results, state.check(candidate, excludeID, now))
		state.appointments = append(state.appointments, &model.Appointment{
			ProviderID: providerID,
			StartTime:  candidate.Start,
			EndTime:    candidate.End,
			Status:     model.AppointmentStatusPending,
		})
	}

	return results, nil
}

// loadState загружает шаблон, блокировки и записи, покрывающие локальные дни [from, to]
// с запасом на буфер
func (v *Validator) loadState(ctx context.Context, providerID int64, from, to time.Time) (*providerState, error) {
	template, err := v.availability.GetTemplate(ctx, providerID)
	if err != nil {
		return nil, err
	}

	loc, err := template.Location()
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", template.Timezone, err)
	}

	windowStart := startOfDay(from, loc).Add(-template.Buffer())
	windowEnd := startOfDay(to, loc).AddDate(0, 0, 1).Add(template.Buffer())

	blocked, err := v.blocked.ListInRange(ctx, providerID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list blocked intervals: %w", err)
	}

	appointments, err := v.appointments.ListActiveInRange(ctx, providerID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}

	return &providerState{
		template:     template,
		loc:          loc,
		blocked:      blocked,
		appointments: appointments,
	}, nil
}

// check выполняет проверки по категориям и останавливается на первой нарушенной,
// сообщая все нарушения внутри неё
func (st *providerState) check(candidate interval.Interval, excludeID int64, now time.Time) *ValidationResult {
	result := &ValidationResult{Candidate: candidate}
	fail := func(reason Reason, conflicts ...Conflict) *ValidationResult {
		result.Reason = reason
		result.Conflicts = conflicts
		return result
	}

	if err := candidate.Validate(); err != nil {
		return fail(ReasonInvalidInterval, Conflict{
			Reason:   ReasonInvalidInterval,
			Interval: candidate,
			Message:  err.Error(),
		})
	}

	t := st.template

	earliest := now.Add(time.Duration(t.MinNoticeHours) * time.Hour)
	if candidate.Start.Before(earliest) {
		return fail(ReasonMinNotice, Conflict{
			Reason:   ReasonMinNotice,
			Interval: interval.Interval{Start: now, End: earliest},
			Message:  fmt.Sprintf("starts less than %d hour(s) from now", t.MinNoticeHours),
		})
	}

	latest := now.In(st.loc).AddDate(0, 0, t.AdvanceBookingDays)
	if candidate.Start.After(latest) {
		return fail(ReasonAdvanceHorizon, Conflict{
			Reason:   ReasonAdvanceHorizon,
			Interval: interval.Interval{Start: latest, End: candidate.Start},
			Message:  fmt.Sprintf("starts more than %d day(s) ahead", t.AdvanceBookingDays),
		})
	}

	dayStart := startOfDay(candidate.Start, st.loc)
	if count := st.countOnDay(dayStart, excludeID); count >= t.MaxDailyAppointments {
		return fail(ReasonDailyCap, Conflict{
			Reason:   ReasonDailyCap,
			Interval: interval.Interval{Start: dayStart, End: dayStart.AddDate(0, 0, 1)},
			Message:  fmt.Sprintf("day already has %d of %d appointments", count, t.MaxDailyAppointments),
		})
	}

	work := st.workIntervals(dayStart)
	if !interval.ContainedInAny(work, candidate) {
		var conflicts []Conflict
		for _, outside := range interval.Subtract([]interval.Interval{candidate}, work) {
			conflicts = append(conflicts, Conflict{
				Reason:   ReasonOutsideWorkHours,
				Interval: outside,
				Message:  fmt.Sprintf("%s-%s is outside working hours", clock(outside.Start, st.loc), clock(outside.End, st.loc)),
			})
		}
		return fail(ReasonOutsideWorkHours, conflicts...)
	}

	var blocked []Conflict
	for _, b := range st.blocked {
		bi := interval.Interval{Start: b.StartTime, End: b.EndTime}
		if interval.Overlaps(candidate, bi) {
			blocked = append(blocked, Conflict{
				Reason:            ReasonBlocked,
				Interval:          bi,
				BlockedIntervalID: b.ID,
				Message:           fmt.Sprintf("blocked (%s)", b.Reason),
			})
		}
	}
	if len(blocked) > 0 {
		return fail(ReasonBlocked, blocked...)
	}

	var overlaps []Conflict
	for _, a := range st.appointments {
		if !a.Status.IsActive() || (excludeID != 0 && a.ID == excludeID) {
			continue
		}
		padded := interval.Pad(interval.Interval{Start: a.StartTime, End: a.EndTime}, t.Buffer())
		if interval.Overlaps(candidate, padded) {
			message := "overlaps another occurrence of this request"
			if a.ID != 0 {
				message = fmt.Sprintf("overlaps appointment #%d with %d min buffer", a.ID, t.BufferMinutes)
			}
			overlaps = append(overlaps, Conflict{
				Reason:        ReasonOverlap,
				Interval:      padded,
				AppointmentID: a.ID,
				Message:       message,
			})
		}
	}
	if len(overlaps) > 0 {
		return fail(ReasonOverlap, overlaps...)
	}

	result.OK = true
	return result
}

// countOnDay считает активные записи, начинающиеся в локальный день dayStart
func (st *providerState) countOnDay(dayStart time.Time, excludeID int64) int {
	dayEnd := dayStart.AddDate(0, 0, 1)
	count := 0
	for _, a := range st.appointments {
		if !a.Status.IsActive() || (excludeID != 0 && a.ID == excludeID) {
			continue
		}
		if !a.StartTime.Before(dayStart) && a.StartTime.Before(dayEnd) {
			count++
		}
	}
	return count
}

// workIntervals объединение рабочих интервалов шаблона для локального дня
func (st *providerState) workIntervals(dayStart time.Time) []interval.Interval {
	y, m, d := dayStart.Date()
	var work []interval.Interval
	for _, wi := range st.template.WeeklySchedule[dayStart.Weekday()] {
		start, end := wi.On(y, m, d, st.loc)
		work = append(work, interval.Interval{Start: start, End: end})
	}
	return interval.Union(work)
}

// busyIntervals блокировки и записи с буфером - всё, что вычитается из рабочего времени
func (st *providerState) busyIntervals() []interval.Interval {
	busy := make([]interval.Interval, 0, len(st.blocked)+len(st.appointments))
	for _, b := range st.blocked {
		busy = append(busy, interval.Interval{Start: b.StartTime, End: b.EndTime})
	}
	for _, a := range st.appointments {
		if !a.Status.IsActive() {
			continue
		}
		busy = append(busy, interval.Pad(interval.Interval{Start: a.StartTime, End: a.EndTime}, st.template.Buffer()))
	}
	return interval.Union(busy)
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func clock(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04")
}

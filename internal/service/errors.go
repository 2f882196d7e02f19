package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/interval"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/recurrence"
)

var (
	ErrInvalidInterval    = interval.ErrInvalidInterval
	ErrInvalidRecurrence  = recurrence.ErrInvalidRecurrence
	ErrRecurrenceTooLong  = recurrence.ErrRecurrenceTooLong
	ErrInvalidTemplate    = errors.New("invalid template")
	ErrBookingConflict    = errors.New("booking conflict")
	ErrSyncConflict       = errors.New("sync conflict")
	ErrReservationTimeout = errors.New("reservation timeout")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
)

// TemplateViolation одно нарушение инварианта шаблона
type TemplateViolation struct {
	Field   string // например "weekly_schedule[1]" или "buffer_minutes"
	Message string
}

// TemplateError перечисляет все нарушения отклонённого шаблона
type TemplateError struct {
	ProviderID int64
	Violations []TemplateViolation
}

func (e *TemplateError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return fmt.Sprintf("invalid template for provider %d: %s", e.ProviderID, strings.Join(parts, "; "))
}

func (e *TemplateError) Is(target error) bool {
	return target == ErrInvalidTemplate
}

// BookingConflictError содержит результат проверки каждого вхождения,
// чтобы вызывающий мог показать, какие именно даты заняты
type BookingConflictError struct {
	ProviderID  int64
	Occurrences []*ValidationResult
}

func (e *BookingConflictError) Error() string {
	failed := e.Failed()
	if len(failed) == 0 {
		return "booking conflict"
	}
	first := failed[0]
	return fmt.Sprintf("booking conflict: %d of %d occurrence(s) rejected, first at %s: %s",
		len(failed), len(e.Occurrences), first.Candidate.Start.Format(time.RFC3339), first.Reason)
}

func (e *BookingConflictError) Is(target error) bool {
	return target == ErrBookingConflict
}

// Failed возвращает только отклонённые вхождения
func (e *BookingConflictError) Failed() []*ValidationResult {
	var failed []*ValidationResult
	for _, r := range e.Occurrences {
		if !r.OK {
			failed = append(failed, r)
		}
	}
	return failed
}

// SyncConflictError внешнее изменение, которое нельзя применить автоматически
type SyncConflictError struct {
	AppointmentID int64
	Field         string
	OldValue      string
	NewValue      string
	Source        model.SyncSource
	Cause         error
}

func (e *SyncConflictError) Error() string {
	return fmt.Sprintf("sync conflict on appointment %d (%s): %s -> %s from %s: %v",
		e.AppointmentID, e.Field, e.OldValue, e.NewValue, e.Source, e.Cause)
}

func (e *SyncConflictError) Is(target error) bool {
	return target == ErrSyncConflict
}

func (e *SyncConflictError) Unwrap() error {
	return e.Cause
}

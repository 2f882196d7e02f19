package formatting

import (
	"testing"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/interval"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45 мин", FormatDuration(45*time.Minute))
	assert.Equal(t, "2 ч", FormatDuration(2*time.Hour))
	assert.Equal(t, "1 ч 30 мин", FormatDuration(90*time.Minute))
}

func TestFormatAppointmentUsesProviderTimezone(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	seriesID := uuid.New()
	a := &model.Appointment{
		ID:                42,
		StartTime:         time.Date(2026, 10, 19, 1, 0, 0, 0, time.UTC),
		EndTime:           time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC),
		Status:            model.AppointmentStatusConfirmed,
		SeriesID:          &seriesID,
		ExternalSyncState: model.SyncStateSyncError,
	}

	text := FormatAppointment(a, tokyo)
	assert.Contains(t, text, "#42")
	assert.Contains(t, text, "Пн 19.10.2026 10:00-11:00")
	assert.Contains(t, text, "Подтверждена")
	assert.Contains(t, text, "🔁")
	assert.Contains(t, text, "ошибка синхронизации")
}

func TestFormatAppointmentSyncedHasNoMarker(t *testing.T) {
	a := &model.Appointment{
		ID:                1,
		StartTime:         time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC),
		EndTime:           time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
		Status:            model.AppointmentStatusPending,
		ExternalSyncState: model.SyncStateSynced,
	}

	assert.Equal(t, "⏳ #1 Пн 19.10.2026 09:00-10:00 (Ожидает подтверждения)", FormatAppointment(a, time.UTC))
}

func TestFormatRejectionsSkipsAcceptedAndDeduplicatesReasons(t *testing.T) {
	start := time.Date(2026, 10, 20, 11, 0, 0, 0, time.UTC)
	results := []*service.ValidationResult{
		{OK: true, Candidate: interval.Interval{Start: start.AddDate(0, 0, -1), End: start.AddDate(0, 0, -1).Add(time.Hour)}},
		{
			Candidate: interval.Interval{Start: start, End: start.Add(time.Hour)},
			Reason:    service.ReasonOverlap,
			Conflicts: []service.Conflict{
				{Reason: service.ReasonOverlap, AppointmentID: 1},
				{Reason: service.ReasonOverlap, AppointmentID: 2},
			},
		},
	}

	assert.Equal(t, "• 20.10.2026 11:00: время занято", FormatRejections(results, time.UTC))
}

func TestStatusDisplayUnknown(t *testing.T) {
	assert.Equal(t, StatusDisplay{"❓", "Неизвестно"}, GetAppointmentStatusDisplay("archived"))
	assert.Equal(t, "mystery", GetReasonText("mystery"))
}

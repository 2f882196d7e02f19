package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"   // Ожидает подтверждения провайдера
	AppointmentStatusConfirmed AppointmentStatus = "confirmed" // Подтверждено
	AppointmentStatusCompleted AppointmentStatus = "completed" // Завершено
	AppointmentStatusCancelled AppointmentStatus = "cancelled" // Отменено (хранится для аудита)
	AppointmentStatusNoShow    AppointmentStatus = "no_show"   // Клиент не пришёл
)

// IsActive true для записей, которые занимают время провайдера
func (s AppointmentStatus) IsActive() bool {
	return s != AppointmentStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода статуса
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case AppointmentStatusPending:
		return next == AppointmentStatusConfirmed || next == AppointmentStatusCancelled
	case AppointmentStatusConfirmed:
		return next == AppointmentStatusCompleted ||
			next == AppointmentStatusCancelled ||
			next == AppointmentStatusNoShow
	}
	return false
}

type SyncState string

const (
	SyncStateUnsynced  SyncState = "unsynced"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateSynced    SyncState = "synced"
	SyncStateSyncError SyncState = "sync_error"
)

type Frequency string

const (
	FrequencyDaily    Frequency = "daily"
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// Recurrence описывает повторение записи; EndDate не включается
type Recurrence struct {
	Frequency Frequency `json:"frequency"`
	EndDate   time.Time `json:"end_date"`
}

type Appointment struct {
	ID                int64             `json:"id"`
	ProviderID        int64             `json:"provider_id"`
	ClientID          int64             `json:"client_id"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time"`
	Status            AppointmentStatus `json:"status"`
	Recurrence        *Recurrence       `json:"recurrence,omitempty"`
	SeriesID          *uuid.UUID        `json:"series_id"` // общий для всех вхождений одной серии
	ExternalSyncState SyncState         `json:"external_sync_state"`
	ExternalEventID   *string           `json:"external_event_id"`
	SyncedAt          *time.Time        `json:"synced_at"` // момент последней успешной синхронизации
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"` // момент последнего локального изменения
}

// Duration возвращает длительность записи
func (a *Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// ChangedSinceSync true если запись менялась локально после последней синхронизации
func (a *Appointment) ChangedSinceSync() bool {
	if a.SyncedAt == nil {
		return true
	}
	return a.UpdatedAt.After(*a.SyncedAt)
}

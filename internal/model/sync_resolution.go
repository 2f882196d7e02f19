package model

import "time"

type SyncSource string

const (
	SyncSourceLocal    SyncSource = "local"
	SyncSourceExternal SyncSource = "external"
)

type SyncOutcome string

const (
	SyncOutcomeAppliedExternal SyncOutcome = "applied_external" // внешнее изменение применено локально
	SyncOutcomeKeptLocal       SyncOutcome = "kept_local"       // локальное состояние победило и будет отправлено наружу
	SyncOutcomeRejected        SyncOutcome = "rejected"         // внешнее изменение создаёт конфликт, нужен ручной разбор
)

// SyncResolution запись аудита о разрешении расхождения с внешним календарём
type SyncResolution struct {
	ID            int64       `json:"id"`
	AppointmentID int64       `json:"appointment_id"`
	ProviderID    int64       `json:"provider_id"`
	Field         string      `json:"field"` // "time" или "status"
	OldValue      string      `json:"old_value"`
	NewValue      string      `json:"new_value"`
	Source        SyncSource  `json:"source"` // сторона, чьё значение выиграло
	Outcome       SyncOutcome `json:"outcome"`
	ResolvedAt    time.Time   `json:"resolved_at"`
}

package model

import "time"

type BlockReason string

const (
	BlockReasonVacation BlockReason = "vacation"
	BlockReasonSick     BlockReason = "sick"
	BlockReasonTraining BlockReason = "training"
	BlockReasonPersonal BlockReason = "personal"
	BlockReasonOffHours BlockReason = "off_hours"
	BlockReasonOther    BlockReason = "other"
)

// IsValid проверяет что причина из допустимого набора
func (r BlockReason) IsValid() bool {
	switch r {
	case BlockReasonVacation, BlockReasonSick, BlockReasonTraining,
		BlockReasonPersonal, BlockReasonOffHours, BlockReasonOther:
		return true
	}
	return false
}

// BlockedInterval закрытый интервал [StartTime, EndTime) провайдера
type BlockedInterval struct {
	ID         int64       `json:"id"`
	ProviderID int64       `json:"provider_id"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	Reason     BlockReason `json:"reason"`
	Notes      *string     `json:"notes"`
	CreatedAt  time.Time   `json:"created_at"`
}

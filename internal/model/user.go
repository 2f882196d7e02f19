package model

import "time"

type User struct {
	ID                  int64     `json:"id"`
	TelegramID          int64     `json:"telegram_id"`
	Username            string    `json:"username"`
	FirstName           string    `json:"first_name"`
	LastName            string    `json:"last_name"`
	IsProvider          bool      `json:"is_provider"`
	AutoConfirmBookings bool      `json:"auto_confirm_bookings"` // Автоматически подтверждать записи
	CalendarID          *string   `json:"calendar_id"`           // идентификатор внешнего календаря провайдера
	CreatedAt           time.Time `json:"created_at"`
}

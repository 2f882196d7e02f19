package handlers

// Ограничения длительности записи, принимаемой из команд (в минутах)
const (
	DefaultDurationMinutes = 60
	MinDurationMinutes     = 5
	MaxDurationMinutes     = 480 // 8 часов
)

// Сколько записей показывать в списках
const listLimit = 20

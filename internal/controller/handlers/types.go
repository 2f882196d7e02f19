package handlers

import (
	"github.com/Freeeeeet/booking_engine/internal/service"
	"go.uber.org/zap"
)

// Handlers содержит все зависимости для обработки команд
type Handlers struct {
	userService         *service.UserService
	bookingService      *service.BookingService
	slotService         *service.SlotService
	availabilityService *service.AvailabilityService
	blockedService      *service.BlockedIntervalService
	syncService         *service.SyncService
	logger              *zap.Logger
}

// NewHandlers создаёт новый обработчик команд
func NewHandlers(
	userService *service.UserService,
	bookingService *service.BookingService,
	slotService *service.SlotService,
	availabilityService *service.AvailabilityService,
	blockedService *service.BlockedIntervalService,
	syncService *service.SyncService,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		userService:         userService,
		bookingService:      bookingService,
		slotService:         slotService,
		availabilityService: availabilityService,
		blockedService:      blockedService,
		syncService:         syncService,
		logger:              logger,
	}
}

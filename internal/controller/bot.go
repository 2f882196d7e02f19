package controller

import (
	"context"
	"strings"

	"github.com/Freeeeeet/booking_engine/internal/controller/handlers"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

type BotController struct {
	bot      *bot.Bot
	handlers *handlers.Handlers
	routes   map[string]bot.HandlerFunc
	logger   *zap.Logger
}

func NewBotController(botInstance *bot.Bot, cmdHandlers *handlers.Handlers, logger *zap.Logger) *BotController {
	c := &BotController{
		bot:      botInstance,
		handlers: cmdHandlers,
		logger:   logger,
	}

	c.routes = map[string]bot.HandlerFunc{
		"start":          cmdHandlers.HandleStart,
		"help":           cmdHandlers.HandleHelp,
		"slots":          cmdHandlers.HandleSlots,
		"book":           cmdHandlers.HandleBook,
		"mybookings":     cmdHandlers.HandleMyBookings,
		"reschedule":     cmdHandlers.HandleReschedule,
		"cancel":         cmdHandlers.HandleCancel,
		"becomeprovider": cmdHandlers.HandleBecomeProvider,
		"hours":          cmdHandlers.HandleHours,
		"block":          cmdHandlers.HandleBlock,
		"schedule":       cmdHandlers.HandleSchedule,
		"confirm":        cmdHandlers.HandleConfirm,
		"complete":       cmdHandlers.HandleComplete,
		"noshow":         cmdHandlers.HandleNoShow,
		"autoconfirm":    cmdHandlers.HandleAutoConfirm,
		"calendar":       cmdHandlers.HandleCalendar,
		"sync":           cmdHandlers.HandleSync,
		"retry":          cmdHandlers.HandleRetry,
	}

	return c
}

// RegisterHandlers регистрирует обработчик команд и меню бота
func (c *BotController) RegisterHandlers(ctx context.Context) error {
	c.bot.RegisterHandler(bot.HandlerTypeMessageText, "/", bot.MatchTypePrefix, c.route)

	return c.setCommands(ctx)
}

// route выбирает обработчик по имени команды; аргументы команда разбирает сама
func (c *BotController) route(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	name := commandName(update.Message.Text)
	handler, ok := c.routes[name]
	if !ok {
		c.logger.Debug("Unknown command", zap.String("command", name))
		c.handlers.HandleHelp(ctx, b, update)
		return
	}

	handler(ctx, b, update)
}

// commandName возвращает имя команды без "/" и суффикса "@botname"
func commandName(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	return strings.ToLower(name)
}

// setCommands устанавливает список команд в меню бота
func (c *BotController) setCommands(ctx context.Context) error {
	commands := []models.BotCommand{
		{Command: "start", Description: "🚀 Начать работу с ботом"},
		{Command: "help", Description: "❓ Справка по командам"},
		{Command: "slots", Description: "🗓 Свободное время провайдера"},
		{Command: "book", Description: "📝 Записаться"},
		{Command: "mybookings", Description: "📅 Мои записи"},
		{Command: "becomeprovider", Description: "🎓 Стать провайдером"},
		{Command: "schedule", Description: "🗓 Мои записи на неделю (провайдер)"},
		{Command: "sync", Description: "🔄 Синхронизировать календарь (провайдер)"},
	}

	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{
		Commands: commands,
	})

	if err != nil {
		c.logger.Error("Failed to set bot commands", zap.Error(err))
		return err
	}

	c.logger.Info("Bot commands menu set")
	return nil
}

// Start запускает бота; блокируется до отмены ctx
func (c *BotController) Start(ctx context.Context) error {
	c.logger.Info("Starting bot...")
	c.bot.Start(ctx)
	return nil
}

package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/controller/formatting"
	"github.com/Freeeeeet/booking_engine/internal/model"
	"github.com/Freeeeeet/booking_engine/internal/service"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"
)

const helpText = "📚 Справка по командам:\n\n" +
	"Для клиентов:\n" +
	"/slots <provider_id> <YYYY-MM-DD> [минуты] - Свободное время\n" +
	"/book <provider_id> <YYYY-MM-DD> <HH:MM> <минуты> [weekly <до YYYY-MM-DD>] - Записаться\n" +
	"/mybookings - Мои записи\n" +
	"/reschedule <id> <YYYY-MM-DD> <HH:MM> - Перенести запись\n" +
	"/cancel <id> - Отменить запись\n\n" +
	"Для провайдеров:\n" +
	"/becomeprovider - Стать провайдером\n" +
	"/hours <mon..sun> <HH:MM-HH:MM> - Рабочие часы дня\n" +
	"/block <YYYY-MM-DD> <HH:MM> <YYYY-MM-DD> <HH:MM> [причина] - Закрыть время\n" +
	"/schedule - Записи на неделю\n" +
	"/confirm, /complete, /noshow <id> - Статус записи\n" +
	"/autoconfirm on|off - Автоподтверждение\n" +
	"/calendar <calendar_id> - Внешний календарь\n" +
	"/sync - Синхронизировать сейчас\n" +
	"/retry <id> - Повторить синхронизацию записи"

// HandleStart обрабатывает команду /start
func (h *Handlers) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	from := update.Message.From

	user, err := h.userService.RegisterUser(ctx, from.ID, from.Username, from.FirstName, from.LastName)
	if err != nil {
		h.logger.Error("Failed to register user", zap.Error(err))
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Произошла ошибка при регистрации. Попробуйте позже.")
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
		"👋 Привет, %s!\n\nВаш ID: %d\n\n%s",
		user.FirstName, user.ID, helpText,
	))
}

// HandleHelp обрабатывает команду /help
func (h *Handlers) HandleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, helpText)
}

// HandleBecomeProvider обрабатывает команду /becomeprovider
func (h *Handlers) HandleBecomeProvider(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	if user.IsProvider {
		h.sendMessage(ctx, b, update.Message.Chat.ID, "ℹ️ Вы уже провайдер.")
		return
	}

	if _, err := h.userService.BecomeProvider(ctx, user.TelegramID); err != nil {
		h.replyError(ctx, b, update, "become provider", err, time.UTC)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
		"🎉 Теперь вы провайдер!\n\nВаш provider_id: %d\nРабочие часы по умолчанию: пн-пт 09:00-17:00. Изменить: /hours",
		user.ID,
	))
}

// HandleAutoConfirm обрабатывает команду /autoconfirm on|off
func (h *Handlers) HandleAutoConfirm(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireProvider(ctx, b, update)
	if !ok {
		return
	}

	enabled, err := parseToggle(update.Message.Text, "/autoconfirm on|off")
	if err != nil {
		h.replyError(ctx, b, update, "autoconfirm", err, time.UTC)
		return
	}

	if _, err := h.userService.SetAutoConfirm(ctx, user.TelegramID, enabled); err != nil {
		h.replyError(ctx, b, update, "autoconfirm", err, time.UTC)
		return
	}

	text := "✅ Новые записи будут подтверждаться автоматически."
	if !enabled {
		text = "✅ Новые записи будут ждать вашего подтверждения."
	}
	h.sendMessage(ctx, b, update.Message.Chat.ID, text)
}

// HandleCalendar обрабатывает команду /calendar <calendar_id>
func (h *Handlers) HandleCalendar(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireProvider(ctx, b, update)
	if !ok {
		return
	}

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		h.replyError(ctx, b, update, "calendar", usage("/calendar <calendar_id>", ""), time.UTC)
		return
	}

	if _, err := h.userService.SetCalendarID(ctx, user.TelegramID, args[0]); err != nil {
		h.replyError(ctx, b, update, "calendar", err, time.UTC)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, "✅ Календарь привязан. Записи появятся в нём после /sync.")
}

// HandleHours обрабатывает команду /hours: заменяет рабочие интервалы одного дня недели
func (h *Handlers) HandleHours(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireProvider(ctx, b, update)
	if !ok {
		return
	}

	args, err := parseHoursArgs(update.Message.Text)
	if err != nil {
		h.replyError(ctx, b, update, "hours", err, time.UTC)
		return
	}

	template, err := h.availabilityService.GetTemplate(ctx, user.ID)
	if err != nil {
		h.replyError(ctx, b, update, "hours", err, time.UTC)
		return
	}

	updated := template.Clone()
	if len(args.Intervals) == 0 {
		delete(updated.WeeklySchedule, args.Weekday)
	} else {
		updated.WeeklySchedule[args.Weekday] = args.Intervals
	}

	if err := h.availabilityService.ReplaceTemplate(ctx, user.ID, updated); err != nil {
		h.replyError(ctx, b, update, "hours", err, time.UTC)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, "✅ Расписание обновлено:\n"+formatWeek(updated))
}

// HandleSlots обрабатывает команду /slots
func (h *Handlers) HandleSlots(ctx context.Context, b *bot.Bot, update *models.Update) {
	if _, ok := h.requireUser(ctx, b, update); !ok {
		return
	}

	args, err := parseSlotsArgs(update.Message.Text)
	if err != nil {
		h.replyError(ctx, b, update, "slots", err, time.UTC)
		return
	}

	loc := h.providerLocation(ctx, args.ProviderID)
	dayStart := args.Day.In(loc)

	slots, err := h.slotService.ComputeAvailableSlots(ctx, args.ProviderID, dayStart, dayStart.AddDate(0, 0, 1), args.Duration)
	if err != nil {
		h.replyError(ctx, b, update, "slots", err, loc)
		return
	}

	if len(slots) == 0 {
		h.sendMessage(ctx, b, update.Message.Chat.ID, fmt.Sprintf("📭 На %s свободного времени нет.", formatting.FormatDate(dayStart)))
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
		"🗓 Свободно %s (%s, %s):\n%s",
		formatting.FormatDate(dayStart),
		formatting.FormatDuration(args.Duration),
		loc.String(),
		formatSlots(slots, loc),
	))
}

// HandleBook обрабатывает команду /book
func (h *Handlers) HandleBook(ctx context.Context, b *bot.Bot, update *models.Update) {
	client, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	args, err := parseBookArgs(update.Message.Text)
	if err != nil {
		h.replyError(ctx, b, update, "book", err, time.UTC)
		return
	}

	provider, err := h.userService.GetByID(ctx, args.ProviderID)
	if err != nil {
		h.replyError(ctx, b, update, "book", err, time.UTC)
		return
	}
	if provider == nil || !provider.IsProvider {
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Провайдер не найден.")
		return
	}
	if provider.ID == client.ID {
		h.sendError(ctx, b, update.Message.Chat.ID, "❌ Нельзя записаться к самому себе.")
		return
	}

	loc := h.providerLocation(ctx, provider.ID)

	req := service.BookingRequest{
		ProviderID: provider.ID,
		ClientID:   client.ID,
		Start:      args.Start.In(loc),
		Duration:   args.Duration,
		Recurrence: args.recurrence(loc),
	}
	if provider.AutoConfirmBookings {
		req.InitialStatus = model.AppointmentStatusConfirmed
	}

	appointments, err := h.bookingService.RequestBooking(ctx, req)
	if err != nil {
		h.replyError(ctx, b, update, "book", err, loc)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
		"✅ Записей создано: %d\n\n%s",
		len(appointments),
		formatAppointments(appointments, loc),
	))
}

// HandleMyBookings обрабатывает команду /mybookings
func (h *Handlers) HandleMyBookings(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	appointments, err := h.bookingService.ListClientAppointments(ctx, user.ID, time.Now())
	if err != nil {
		h.replyError(ctx, b, update, "my bookings", err, time.UTC)
		return
	}

	if len(appointments) == 0 {
		h.sendMessage(ctx, b, update.Message.Chat.ID, "📭 У вас нет предстоящих записей.\n\nСвободное время: /slots")
		return
	}

	// Каждую запись показываем в часовом поясе её провайдера
	locs := make(map[int64]*time.Location)
	lines := make([]string, 0, len(appointments))
	for i, a := range appointments {
		if i == listLimit {
			lines = append(lines, fmt.Sprintf("… и ещё %d", len(appointments)-listLimit))
			break
		}
		loc, ok := locs[a.ProviderID]
		if !ok {
			loc = h.providerLocation(ctx, a.ProviderID)
			locs[a.ProviderID] = loc
		}
		lines = append(lines, formatting.FormatAppointment(a, loc))
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, "📅 Мои записи:\n\n"+strings.Join(lines, "\n"))
}

// HandleSchedule обрабатывает команду /schedule: записи провайдера на 7 дней вперёд
func (h *Handlers) HandleSchedule(ctx context.Context, b *bot.Bot, update *models.Update) {
	provider, ok := h.requireProvider(ctx, b, update)
	if !ok {
		return
	}

	loc := h.providerLocation(ctx, provider.ID)
	now := time.Now().In(loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	appointments, err := h.bookingService.ListProviderAppointments(ctx, provider.ID, from, from.AddDate(0, 0, 7))
	if err != nil {
		h.replyError(ctx, b, update, "schedule", err, loc)
		return
	}

	if len(appointments) == 0 {
		h.sendMessage(ctx, b, update.Message.Chat.ID, "📭 На ближайшую неделю записей нет.")
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, "🗓 Записи на неделю:\n\n"+formatAppointments(appointments, loc))
}

// HandleReschedule обрабатывает команду /reschedule
func (h *Handlers) HandleReschedule(ctx context.Context, b *bot.Bot, update *models.Update) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	args, err := parseRescheduleArgs(update.Message.Text)
	if err != nil {
		h.replyError(ctx, b, update, "reschedule", err, time.UTC)
		return
	}

	appt, err := h.ownAppointment(ctx, user, args.AppointmentID, false)
	if err != nil {
		h.replyError(ctx, b, update, "reschedule", err, time.UTC)
		return
	}

	loc := h.providerLocation(ctx, appt.ProviderID)

	moved, err := h.bookingService.RescheduleAppointment(ctx, appt.ID, args.Start.In(loc))
	if err != nil {
		h.replyError(ctx, b, update, "reschedule", err, loc)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, "✅ Запись перенесена:\n"+formatting.FormatAppointment(moved, loc))
}

// HandleCancel обрабатывает команду /cancel <id>
func (h *Handlers) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleTransition(ctx, b, update, "/cancel <appointment_id>", false, h.bookingService.CancelAppointment)
}

// HandleConfirm обрабатывает команду /confirm <id>
func (h *Handlers) HandleConfirm(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleTransition(ctx, b, update, "/confirm <appointment_id>", true, h.bookingService.ConfirmAppointment)
}

// HandleComplete обрабатывает команду /complete <id>
func (h *Handlers) HandleComplete(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleTransition(ctx, b, update, "/complete <appointment_id>", true, h.bookingService.CompleteAppointment)
}

// HandleNoShow обрабатывает команду /noshow <id>
func (h *Handlers) HandleNoShow(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleTransition(ctx, b, update, "/noshow <appointment_id>", true, h.bookingService.MarkNoShow)
}

func (h *Handlers) handleTransition(
	ctx context.Context,
	b *bot.Bot,
	update *models.Update,
	format string,
	providerOnly bool,
	apply func(ctx context.Context, id int64) (*model.Appointment, error),
) {
	user, ok := h.requireUser(ctx, b, update)
	if !ok {
		return
	}

	id, err := parseIDArg(update.Message.Text, format)
	if err != nil {
		h.replyError(ctx, b, update, format, err, time.UTC)
		return
	}

	appt, err := h.ownAppointment(ctx, user, id, providerOnly)
	if err != nil {
		h.replyError(ctx, b, update, format, err, time.UTC)
		return
	}

	loc := h.providerLocation(ctx, appt.ProviderID)

	updated, err := apply(ctx, appt.ID)
	if err != nil {
		h.replyError(ctx, b, update, format, err, loc)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, formatting.FormatAppointment(updated, loc))
}

// HandleBlock обрабатывает команду /block
func (h *Handlers) HandleBlock(ctx context.Context, b *bot.Bot, update *models.Update) {
	provider, ok := h.requireProvider(ctx, b, update)
	if !ok {
		return
	}

	args, err := parseBlockArgs(update.Message.Text)
	if err != nil {
		h.replyError(ctx, b, update, "block", err, time.UTC)
		return
	}

	loc := h.providerLocation(ctx, provider.ID)

	block, err := h.blockedService.Add(ctx, provider.ID, args.Start.In(loc), args.End.In(loc), args.Reason, nil)
	if err != nil {
		h.replyError(ctx, b, update, "block", err, loc)
		return
	}

	start := block.StartTime.In(loc)
	end := block.EndTime.In(loc)
	h.sendMessage(ctx, b, update.Message.Chat.ID, fmt.Sprintf(
		"🔒 Время закрыто: %s %s - %s %s",
		formatting.FormatDate(start), formatting.FormatTime(start),
		formatting.FormatDate(end), formatting.FormatTime(end),
	))
}

// HandleSync обрабатывает команду /sync
func (h *Handlers) HandleSync(ctx context.Context, b *bot.Bot, update *models.Update) {
	provider, ok := h.requireProvider(ctx, b, update)
	if !ok {
		return
	}

	report, err := h.syncService.Reconcile(ctx, provider.ID)
	if err != nil {
		h.replyError(ctx, b, update, "sync", err, time.UTC)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, formatReport(report))
}

// HandleRetry обрабатывает команду /retry <id>: повторная отправка записи в состоянии sync_error
func (h *Handlers) HandleRetry(ctx context.Context, b *bot.Bot, update *models.Update) {
	provider, ok := h.requireProvider(ctx, b, update)
	if !ok {
		return
	}

	id, err := parseIDArg(update.Message.Text, "/retry <appointment_id>")
	if err != nil {
		h.replyError(ctx, b, update, "retry", err, time.UTC)
		return
	}

	if _, err := h.ownAppointment(ctx, provider, id, true); err != nil {
		h.replyError(ctx, b, update, "retry", err, time.UTC)
		return
	}

	report, err := h.syncService.RetrySync(ctx, id)
	if err != nil {
		h.replyError(ctx, b, update, "retry", err, time.UTC)
		return
	}

	h.sendMessage(ctx, b, update.Message.Chat.ID, formatReport(report))
}

func formatSlots(slots []time.Time, loc *time.Location) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, formatting.FormatTime(s.In(loc)))
	}
	return strings.Join(parts, " ")
}

func formatAppointments(appointments []*model.Appointment, loc *time.Location) string {
	lines := make([]string, 0, len(appointments))
	for i, a := range appointments {
		if i == listLimit {
			lines = append(lines, fmt.Sprintf("… и ещё %d", len(appointments)-listLimit))
			break
		}
		lines = append(lines, formatting.FormatAppointment(a, loc))
	}
	return strings.Join(lines, "\n")
}

func formatWeek(t *model.AvailabilityTemplate) string {
	lines := make([]string, 0, 7)
	for i := 1; i <= 7; i++ {
		day := time.Weekday(i % 7)
		intervals := t.WeeklySchedule[day]
		text := "выходной"
		if len(intervals) > 0 {
			parts := make([]string, 0, len(intervals))
			for _, w := range intervals {
				parts = append(parts, w.String())
			}
			text = strings.Join(parts, ", ")
		}
		lines = append(lines, formatting.GetWeekdayShortName(day)+": "+text)
	}
	return strings.Join(lines, "\n")
}

func formatReport(r *service.SyncReport) string {
	text := fmt.Sprintf(
		"🔄 Синхронизация завершена\n\nСоздано: %d\nОбновлено: %d\nУдалено: %d\nКонфликтов: %d\nОшибок: %d",
		r.Created, r.Updated, r.Deleted, r.Conflicted, r.Failed,
	)
	if len(r.Conflicts) > 0 {
		lines := make([]string, 0, len(r.Conflicts))
		for _, c := range r.Conflicts {
			lines = append(lines, fmt.Sprintf("• #%d: %s -> %s", c.AppointmentID, c.OldValue, c.NewValue))
		}
		text += "\n\n⚠️ Не применено (время занято):\n" + strings.Join(lines, "\n") + "\n\nПовторить отправку своей версии: /retry <id>"
	}
	return text
}

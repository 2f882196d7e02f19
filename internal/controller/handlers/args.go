package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

const (
	dateLayout     = "2006-01-02"
	clockLayout    = "15:04"
	dateTimeLayout = dateLayout + " " + clockLayout
)

var errUsage = errors.New("usage")

// usageError ошибка разбора аргументов вместе с подсказкой по формату команды
type usageError struct {
	usage  string
	reason string
}

func (e *usageError) Error() string {
	if e.reason == "" {
		return "usage: " + e.usage
	}
	return e.reason + "\nusage: " + e.usage
}

func (e *usageError) Is(target error) bool {
	return target == errUsage
}

func usage(format, reason string, args ...any) error {
	return &usageError{usage: format, reason: fmt.Sprintf(reason, args...)}
}

// localDateTime дата и время по часовому поясу провайдера, который становится известен позже разбора
type localDateTime struct {
	date  string
	clock string
}

func (d localDateTime) In(loc *time.Location) time.Time {
	t, _ := time.ParseInLocation(dateTimeLayout, d.date+" "+d.clock, loc)
	return t
}

func parseLocalDateTime(date, clock string) (localDateTime, error) {
	if _, err := time.Parse(dateTimeLayout, date+" "+clock); err != nil {
		return localDateTime{}, fmt.Errorf("bad date or time %q %q", date, clock)
	}
	return localDateTime{date: date, clock: clock}, nil
}

func parseDay(date string) (localDateTime, error) {
	return parseLocalDateTime(date, "00:00")
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad id %q", raw)
	}
	return id, nil
}

func parseMinutes(raw string) (time.Duration, error) {
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes < MinDurationMinutes || minutes > MaxDurationMinutes {
		return 0, fmt.Errorf("duration must be %d-%d minutes, got %q", MinDurationMinutes, MaxDurationMinutes, raw)
	}
	return time.Duration(minutes) * time.Minute, nil
}

// commandArgs отбрасывает саму команду и возвращает аргументы
func commandArgs(text string) []string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil
	}
	return fields[1:]
}

// slotsArgs /slots <provider_id> <YYYY-MM-DD> [minutes]
type slotsArgs struct {
	ProviderID int64
	Day        localDateTime
	Duration   time.Duration
}

const slotsUsage = "/slots <provider_id> <YYYY-MM-DD> [minutes]"

func parseSlotsArgs(text string) (slotsArgs, error) {
	args := commandArgs(text)
	if len(args) < 2 || len(args) > 3 {
		return slotsArgs{}, usage(slotsUsage, "")
	}

	providerID, err := parseID(args[0])
	if err != nil {
		return slotsArgs{}, usage(slotsUsage, "%v", err)
	}

	day, err := parseDay(args[1])
	if err != nil {
		return slotsArgs{}, usage(slotsUsage, "%v", err)
	}

	duration := time.Duration(DefaultDurationMinutes) * time.Minute
	if len(args) == 3 {
		if duration, err = parseMinutes(args[2]); err != nil {
			return slotsArgs{}, usage(slotsUsage, "%v", err)
		}
	}

	return slotsArgs{ProviderID: providerID, Day: day, Duration: duration}, nil
}

// bookArgs /book <provider_id> <YYYY-MM-DD> <HH:MM> <minutes> [daily|weekly|biweekly|monthly <until YYYY-MM-DD>]
type bookArgs struct {
	ProviderID int64
	Start      localDateTime
	Duration   time.Duration
	Frequency  model.Frequency
	// Until последний день серии включительно
	Until *localDateTime
}

const bookUsage = "/book <provider_id> <YYYY-MM-DD> <HH:MM> <minutes> [daily|weekly|biweekly|monthly <until YYYY-MM-DD>]"

func parseBookArgs(text string) (bookArgs, error) {
	args := commandArgs(text)
	if len(args) != 4 && len(args) != 6 {
		return bookArgs{}, usage(bookUsage, "")
	}

	providerID, err := parseID(args[0])
	if err != nil {
		return bookArgs{}, usage(bookUsage, "%v", err)
	}

	start, err := parseLocalDateTime(args[1], args[2])
	if err != nil {
		return bookArgs{}, usage(bookUsage, "%v", err)
	}

	duration, err := parseMinutes(args[3])
	if err != nil {
		return bookArgs{}, usage(bookUsage, "%v", err)
	}

	result := bookArgs{ProviderID: providerID, Start: start, Duration: duration}
	if len(args) == 4 {
		return result, nil
	}

	result.Frequency = model.Frequency(strings.ToLower(args[4]))
	switch result.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyBiweekly, model.FrequencyMonthly:
	default:
		return bookArgs{}, usage(bookUsage, "unknown frequency %q", args[4])
	}

	until, err := parseDay(args[5])
	if err != nil {
		return bookArgs{}, usage(bookUsage, "%v", err)
	}
	result.Until = &until

	return result, nil
}

// recurrence переводит дату окончания включительно в исключающую границу: полночь следующего дня
func (a bookArgs) recurrence(loc *time.Location) *model.Recurrence {
	if a.Until == nil {
		return nil
	}
	return &model.Recurrence{
		Frequency: a.Frequency,
		EndDate:   a.Until.In(loc).AddDate(0, 0, 1),
	}
}

// rescheduleArgs /reschedule <appointment_id> <YYYY-MM-DD> <HH:MM>
type rescheduleArgs struct {
	AppointmentID int64
	Start         localDateTime
}

const rescheduleUsage = "/reschedule <appointment_id> <YYYY-MM-DD> <HH:MM>"

func parseRescheduleArgs(text string) (rescheduleArgs, error) {
	args := commandArgs(text)
	if len(args) != 3 {
		return rescheduleArgs{}, usage(rescheduleUsage, "")
	}

	id, err := parseID(args[0])
	if err != nil {
		return rescheduleArgs{}, usage(rescheduleUsage, "%v", err)
	}

	start, err := parseLocalDateTime(args[1], args[2])
	if err != nil {
		return rescheduleArgs{}, usage(rescheduleUsage, "%v", err)
	}

	return rescheduleArgs{AppointmentID: id, Start: start}, nil
}

// parseIDArg разбирает команды вида /cancel <appointment_id>
func parseIDArg(text, format string) (int64, error) {
	args := commandArgs(text)
	if len(args) != 1 {
		return 0, usage(format, "")
	}

	id, err := parseID(args[0])
	if err != nil {
		return 0, usage(format, "%v", err)
	}
	return id, nil
}

// blockArgs /block <YYYY-MM-DD> <HH:MM> <YYYY-MM-DD> <HH:MM> [reason]
type blockArgs struct {
	Start  localDateTime
	End    localDateTime
	Reason model.BlockReason
}

const blockUsage = "/block <YYYY-MM-DD> <HH:MM> <YYYY-MM-DD> <HH:MM> [vacation|sick|training|personal|other]"

func parseBlockArgs(text string) (blockArgs, error) {
	args := commandArgs(text)
	if len(args) != 4 && len(args) != 5 {
		return blockArgs{}, usage(blockUsage, "")
	}

	start, err := parseLocalDateTime(args[0], args[1])
	if err != nil {
		return blockArgs{}, usage(blockUsage, "%v", err)
	}
	end, err := parseLocalDateTime(args[2], args[3])
	if err != nil {
		return blockArgs{}, usage(blockUsage, "%v", err)
	}

	reason := model.BlockReasonPersonal
	if len(args) == 5 {
		reason = model.BlockReason(strings.ToLower(args[4]))
		if !reason.IsValid() {
			return blockArgs{}, usage(blockUsage, "unknown reason %q", args[4])
		}
	}

	return blockArgs{Start: start, End: end, Reason: reason}, nil
}

// hoursArgs /hours <mon..sun> <HH:MM-HH:MM>[,HH:MM-HH:MM...] | off
type hoursArgs struct {
	Weekday   time.Weekday
	Intervals []model.WorkInterval
}

const hoursUsage = "/hours <mon|tue|wed|thu|fri|sat|sun> <HH:MM-HH:MM>[,HH:MM-HH:MM] | off"

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

func parseHoursArgs(text string) (hoursArgs, error) {
	args := commandArgs(text)
	if len(args) != 2 {
		return hoursArgs{}, usage(hoursUsage, "")
	}

	weekday, ok := weekdays[strings.ToLower(args[0])]
	if !ok {
		return hoursArgs{}, usage(hoursUsage, "unknown weekday %q", args[0])
	}

	result := hoursArgs{Weekday: weekday}
	if strings.EqualFold(args[1], "off") {
		return result, nil
	}

	for _, part := range strings.Split(args[1], ",") {
		from, to, found := strings.Cut(part, "-")
		if !found {
			return hoursArgs{}, usage(hoursUsage, "bad interval %q", part)
		}
		start, err := parseClockMinutes(from)
		if err != nil {
			return hoursArgs{}, usage(hoursUsage, "%v", err)
		}
		end, err := parseClockMinutes(to)
		if err != nil {
			return hoursArgs{}, usage(hoursUsage, "%v", err)
		}
		result.Intervals = append(result.Intervals, model.WorkInterval{StartMinute: start, EndMinute: end})
	}

	return result, nil
}

// parseClockMinutes разбирает HH:MM в минуты от полуночи; 24:00 допустимо как конец дня
func parseClockMinutes(raw string) (int, error) {
	if raw == "24:00" {
		return 24 * 60, nil
	}
	t, err := time.Parse(clockLayout, raw)
	if err != nil {
		return 0, fmt.Errorf("bad time %q", raw)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseToggle(text, format string) (bool, error) {
	args := commandArgs(text)
	if len(args) != 1 {
		return false, usage(format, "")
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, usage(format, "expected on or off, got %q", args[0])
}

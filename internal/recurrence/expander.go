package recurrence

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/Freeeeeet/booking_engine/internal/model"
)

// MaxOccurrences жёсткий предел числа вхождений одной серии
const MaxOccurrences = 500

var (
	ErrInvalidRecurrence = errors.New("invalid recurrence")
	ErrRecurrenceTooLong = errors.New("recurrence too long")
)

// Rule описание повторения: первое вхождение, частота и граница (не включается)
type Rule struct {
	Start     time.Time
	Frequency model.Frequency
	EndDate   time.Time
}

// Validate проверяет частоту и что EndDate позже Start
func (r Rule) Validate() error {
	switch r.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyBiweekly, model.FrequencyMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, r.Frequency)
	}

	if !r.EndDate.After(r.Start) {
		return fmt.Errorf("%w: end date %s is not after start %s", ErrInvalidRecurrence,
			r.EndDate.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}

	return nil
}

// Occurrences ленивая последовательность вхождений (index, start).
// Каждое вхождение считается от Start, поэтому последовательность можно перезапускать.
func (r Rule) Occurrences() iter.Seq2[int, time.Time] {
	return func(yield func(int, time.Time) bool) {
		if r.Validate() != nil {
			return
		}
		for n := 0; ; n++ {
			occurrence := r.nth(n)
			if !occurrence.Before(r.EndDate) {
				return
			}
			if !yield(n, occurrence) {
				return
			}
		}
	}
}

// Expand возвращает все вхождения или ErrRecurrenceTooLong, если их больше MaxOccurrences
func (r Rule) Expand() ([]time.Time, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var starts []time.Time
	for n, occurrence := range r.Occurrences() {
		if n >= MaxOccurrences {
			return nil, fmt.Errorf("%w: more than %d occurrences before %s", ErrRecurrenceTooLong,
				MaxOccurrences, r.EndDate.Format(time.RFC3339))
		}
		starts = append(starts, occurrence)
	}

	return starts, nil
}

// nth вычисляет n-е вхождение в часовом поясе Start
func (r Rule) nth(n int) time.Time {
	switch r.Frequency {
	case model.FrequencyDaily:
		return r.Start.AddDate(0, 0, n)
	case model.FrequencyWeekly:
		return r.Start.AddDate(0, 0, 7*n)
	case model.FrequencyBiweekly:
		return r.Start.AddDate(0, 0, 14*n)
	default:
		return addMonthsClamped(r.Start, n)
	}
}

// addMonthsClamped сдвигает дату на n месяцев, сохраняя день месяца
// или последний день целевого месяца, если он короче
func addMonthsClamped(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	firstOfTarget := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := daysIn(firstOfTarget.Year(), firstOfTarget.Month())
	if day > lastDay {
		day = lastDay
	}

	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

package handlers

import (
	"time"

	"github.com/Freeeeeet/booking_engine/internal/interval"
)

func candidateAt(start time.Time) interval.Interval {
	return interval.Interval{Start: start, End: start.Add(time.Hour)}
}

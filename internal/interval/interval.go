package interval

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidInterval возвращается для интервала с end <= start
var ErrInvalidInterval = errors.New("invalid interval")

// Interval полуоткрытый интервал [Start, End)
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New создаёт интервал и проверяет что end > start
func New(start, end time.Time) (Interval, error) {
	iv := Interval{Start: start, End: end}
	if err := iv.Validate(); err != nil {
		return Interval{}, err
	}
	return iv, nil
}

// Validate проверяет структурную корректность интервала
func (i Interval) Validate() error {
	if !i.End.After(i.Start) {
		return fmt.Errorf("%w: end %s is not after start %s", ErrInvalidInterval,
			i.End.Format(time.RFC3339), i.Start.Format(time.RFC3339))
	}
	return nil
}

// Duration возвращает длительность интервала
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Contains true если other целиком лежит внутри i
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// In возвращает интервал в указанной локации (момент времени не меняется)
func (i Interval) In(loc *time.Location) Interval {
	return Interval{Start: i.Start.In(loc), End: i.End.In(loc)}
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Overlaps true iff a.Start < b.End && b.Start < a.End
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Pad расширяет интервал на d с обеих сторон
func Pad(i Interval, d time.Duration) Interval {
	return Interval{Start: i.Start.Add(-d), End: i.End.Add(d)}
}

// Union сливает пересекающиеся и смежные интервалы в минимальный отсортированный набор.
// Интервалы с end <= start отбрасываются.
func Union(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.End.After(iv.Start) {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return nil
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}

	return merged
}

// Subtract возвращает части base, не покрытые ни одним из cuts (разность множеств)
func Subtract(base, cuts []Interval) []Interval {
	remaining := Union(base)
	for _, cut := range Union(cuts) {
		var next []Interval
		for _, iv := range remaining {
			if !Overlaps(iv, cut) {
				next = append(next, iv)
				continue
			}
			if iv.Start.Before(cut.Start) {
				next = append(next, Interval{Start: iv.Start, End: cut.Start})
			}
			if iv.End.After(cut.End) {
				next = append(next, Interval{Start: cut.End, End: iv.End})
			}
		}
		remaining = next
	}
	return remaining
}

// ContainedInAny true если candidate целиком помещается в один из интервалов набора
func ContainedInAny(set []Interval, candidate Interval) bool {
	for _, iv := range set {
		if iv.Contains(candidate) {
			return true
		}
	}
	return false
}

package calendar

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryCalendar внешний календарь в памяти: для разработки без Google и для тестов.
// Все изменения, включая сделанные через Client, попадают в журнал изменений.
type MemoryCalendar struct {
	mu     sync.Mutex
	now    func() time.Time
	seq    int
	events map[int64]map[string]*Event
	log    map[int64][]Change
}

func NewMemoryCalendar(now func() time.Time) *MemoryCalendar {
	if now == nil {
		now = time.Now
	}
	return &MemoryCalendar{
		now:    now,
		events: make(map[int64]map[string]*Event),
		log:    make(map[int64][]Change),
	}
}

func (c *MemoryCalendar) CreateEvent(ctx context.Context, providerID int64, event *Event) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	stored := *event
	stored.ID = "evt-" + strconv.Itoa(c.seq)
	stored.Status = EventStatusConfirmed
	stored.Updated = c.now()

	if c.events[providerID] == nil {
		c.events[providerID] = make(map[string]*Event)
	}
	c.events[providerID][stored.ID] = &stored
	c.appendLocked(providerID, ChangeCreated, stored)

	return stored.ID, nil
}

func (c *MemoryCalendar) UpdateEvent(ctx context.Context, providerID int64, eventID string, event *Event) error {
	return c.modify(providerID, eventID, func(stored *Event) {
		stored.Summary = event.Summary
		stored.Start = event.Start
		stored.End = event.End
		if event.Status != "" {
			stored.Status = event.Status
		}
	}, c.now())
}

func (c *MemoryCalendar) DeleteEvent(ctx context.Context, providerID int64, eventID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.events[providerID][eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}

	delete(c.events[providerID], eventID)
	stored.Status = EventStatusCancelled
	stored.Updated = c.now()
	c.appendLocked(providerID, ChangeDeleted, *stored)

	return nil
}

func (c *MemoryCalendar) ChangesSince(ctx context.Context, providerID int64, cursor string) ([]Change, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	from := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil {
			return nil, "", fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		from = n
	}

	entries := c.log[providerID]
	if from > len(entries) {
		from = len(entries)
	}

	changes := append([]Change(nil), entries[from:]...)
	return changes, strconv.Itoa(len(entries)), nil
}

// Get возвращает копию события
func (c *MemoryCalendar) Get(providerID int64, eventID string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.events[providerID][eventID]
	if !ok {
		return Event{}, false
	}
	return *stored, true
}

// Move имитирует перенос события на стороне внешнего календаря
func (c *MemoryCalendar) Move(providerID int64, eventID string, start, end, at time.Time) error {
	return c.modify(providerID, eventID, func(stored *Event) {
		stored.Start = start
		stored.End = end
	}, at)
}

// Cancel имитирует отмену события на стороне внешнего календаря
func (c *MemoryCalendar) Cancel(providerID int64, eventID string, at time.Time) error {
	return c.modify(providerID, eventID, func(stored *Event) {
		stored.Status = EventStatusCancelled
	}, at)
}

// Remove имитирует удаление события на стороне внешнего календаря
func (c *MemoryCalendar) Remove(providerID int64, eventID string, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.events[providerID][eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}
	delete(c.events[providerID], eventID)
	stored.Updated = at
	c.appendLocked(providerID, ChangeDeleted, *stored)
	return nil
}

func (c *MemoryCalendar) modify(providerID int64, eventID string, apply func(*Event), at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, ok := c.events[providerID][eventID]
	if !ok {
		return fmt.Errorf("event %s not found", eventID)
	}

	apply(stored)
	stored.Updated = at
	c.appendLocked(providerID, ChangeUpdated, *stored)
	return nil
}

func (c *MemoryCalendar) appendLocked(providerID int64, kind ChangeKind, event Event) {
	c.log[providerID] = append(c.log[providerID], Change{
		Kind:       kind,
		EventID:    event.ID,
		Event:      event,
		ModifiedAt: event.Updated,
	})
}

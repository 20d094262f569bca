package clock

import (
	"sync"
	"time"
)

// Clock is the time source used by services. Injected so tests can move across days.
type Clock interface {
	Now() time.Time
}

type Real struct{}

func (Real) Now() time.Time {
	return time.Now()
}

// Manual is a settable clock for tests. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// AddDays moves the clock by whole calendar days.
func (m *Manual) AddDays(days int) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.AddDate(0, 0, days)
	return m.now
}

// DayOf returns the calendar day of t in loc, encoded as midnight UTC.
// Every stored date uses this encoding so equality comparisons in SQL are exact.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WeekStart returns the Monday of the ISO week containing t, encoded like DayOf.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	day := DayOf(t, loc)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// WeekEnd returns the Sunday closing the week that starts at weekStart.
func WeekEnd(weekStart time.Time) time.Time {
	return weekStart.AddDate(0, 0, 6)
}

// EndOfDay returns the instant the calendar day of t (in loc) ends.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).AddDate(0, 0, 1)
}

// StartOf returns the instant a day (encoded like DayOf) begins in loc.
func StartOf(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
}

// DayKey formats a day as YYYYMMDD, used where an integer window key is needed.
func DayKey(day time.Time) int {
	y, m, d := day.Date()
	return y*10000 + int(m)*100 + d
}

package gamification

import "time"

// DayLayout is the canonical form of a calendar day.
const DayLayout = "2006-01-02"

// Calendar pins every day-boundary decision (check-ins, "yesterday", the nightly reset,
// mood streaks) to one location.
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar builds a calendar. Nil arguments fall back to UTC and time.Now.
func NewCalendar(loc *time.Location, now func() time.Time) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return Calendar{loc: loc, now: now}
}

func (c Calendar) Location() *time.Location {
	return c.location()
}

// Now returns the current instant in the calendar's location.
func (c Calendar) Now() time.Time {
	if c.now == nil {
		return time.Now().In(c.location())
	}
	return c.now().In(c.location())
}

// Day formats t as a calendar day.
func (c Calendar) Day(t time.Time) string {
	return t.In(c.location()).Format(DayLayout)
}

func (c Calendar) Today() string {
	return c.Day(c.Now())
}

func (c Calendar) Yesterday() string {
	y, m, d := c.Now().Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, c.location()).Format(DayLayout)
}

// StartOfDay returns midnight of the day containing t.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(c.location()).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.location())
}

// PreviousDay returns the day before a "2006-01-02" day.
func PreviousDay(day string) (string, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, -1).Format(DayLayout), nil
}

func (c Calendar) location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

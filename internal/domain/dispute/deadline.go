package dispute

import "time"

const DefaultWarningDays = 7

// Deadlines classifies due dates against a single reference time. Build one
// per request so every row on a board agrees on what "today" is.
type Deadlines struct {
	Now         time.Time
	WarningDays int
}

func NewDeadlines(now time.Time, warningDays int) Deadlines {
	return Deadlines{Now: now, WarningDays: warningDays}
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil counts calendar days from today to date, both taken as UTC dates.
// Negative means the date has passed.
func (d Deadlines) DaysUntil(date time.Time) int {
	return int(utcDate(date).Sub(utcDate(d.Now)).Hours() / 24)
}

// IsApproaching is true from the due date back to WarningDays before it.
func (d Deadlines) IsApproaching(date time.Time) bool {
	n := d.DaysUntil(date)
	return n >= 0 && n <= d.WarningDays
}

func (d Deadlines) IsOverdue(date time.Time) bool {
	return d.DaysUntil(date) < 0
}

// DeadlineFlag is one named due date as shown on the board.
type DeadlineFlag struct {
	Name        string    `json:"name"`
	Date        time.Time `json:"date"`
	DaysUntil   int       `json:"days_until"`
	Approaching bool      `json:"approaching"`
	Overdue     bool      `json:"overdue"`
}

// Flag classifies date, returning nil when there is no date.
func (d Deadlines) Flag(name string, date *time.Time) *DeadlineFlag {
	if date == nil {
		return nil
	}
	n := d.DaysUntil(*date)
	return &DeadlineFlag{
		Name:        name,
		Date:        *date,
		DaysUntil:   n,
		Approaching: n >= 0 && n <= d.WarningDays,
		Overdue:     n < 0,
	}
}

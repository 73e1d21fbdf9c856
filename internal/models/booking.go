package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Booking struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Date      time.Time `json:"-"`
	Time      TimeOfDay `json:"time"`
	Status    string    `json:"status"` // PENDING, CONFIRMED, CANCELLED
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DateString returns the calendar date in YYYY-MM-DD form.
func (b *Booking) DateString() string {
	return b.Date.Format(DateLayout)
}

// StartsAt combines date and time of day in the given location.
func (b *Booking) StartsAt(loc *time.Location) time.Time {
	return b.Time.On(b.Date, loc)
}

// Fields returns the values available to notification templates.
func (b *Booking) Fields() map[string]string {
	return map[string]string{
		"id":         fmt.Sprintf("%d", b.ID),
		"name":       b.Name,
		"email":      b.Email,
		"phone":      b.Phone,
		"date":       b.DateString(),
		"time":       b.Time.String(),
		"status":     b.Status,
		"created_at": b.CreatedAt.Format(DateTimeLayout),
	}
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (b Booking) MarshalJSON() ([]byte, error) {
	type alias Booking
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(b), Date: b.DateString()})
}

func (b *Booking) String() string {
	return fmt.Sprintf("%s – %s %s (%s)", b.Name, b.DateString(), b.Time, b.Status)
}

// TimeOfDay is a wall clock time with minute precision.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts HH:MM and HH:MM:SS; seconds are dropped.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{TimeLayout, "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q; expected HH:MM", raw)
}

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(raw string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q; expected YYYY-MM-DD", raw)
	}
	return d, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On places the time of day on the calendar date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

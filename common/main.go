package common

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mcnijman/go-emailaddress"
)

// AMQPSettings represents the settings that we require in order to connect to the AMQP exchange.
type AMQPSettings struct {
	URI          string
	ExchangeName string
	ExchangeType string
}

// FormatTimestamp formats a timestamp as the number of milliseconds since the epoch.
func FormatTimestamp(timestamp time.Time) string {
	return strconv.FormatInt(timestamp.UnixNano()/1000000, 10)
}

// ValidateEmailAddress returns an error if the format of an email address is invalid.
func ValidateEmailAddress(emailAddress string) error {
	_, err := emailaddress.Parse(emailAddress)
	return err
}

// TimeOfDay represents a wall-clock time with minute precision, as used for
// quiet-hours boundaries.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a time of day in HH:MM format. The entire string must
// match; trailing text is rejected.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day `%s`: expected HH:MM", s)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// String formats a time of day in HH:MM format.
func (tod TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", tod.Hour, tod.Minute)
}

// MinuteOfDay returns the number of minutes past midnight.
func (tod TimeOfDay) MinuteOfDay() int {
	return tod.Hour*60 + tod.Minute
}

// At returns the time of day applied to the date of the given instant, in that
// instant's location.
func (tod TimeOfDay) At(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), tod.Hour, tod.Minute, 0, 0, t.Location())
}

// QuietWindow represents a daily window during which non-critical notifications
// are not actively pushed. A window whose end is at or before its start spans
// midnight: start=22:00 end=06:00 covers 22:00-24:00 and 00:00-06:00.
type QuietWindow struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains returns true if the given instant falls within the window. The start
// boundary is inclusive and the end boundary is exclusive.
func (w QuietWindow) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	start := w.Start.MinuteOfDay()
	end := w.End.MinuteOfDay()
	if start < end {
		return minute >= start && minute < end
	}
	// The window spans midnight.
	return minute >= start || minute < end
}

// NextEnd returns the first instant at or after t at which the window ends.
func (w QuietWindow) NextEnd(t time.Time) time.Time {
	end := w.End.At(t)
	if !end.Before(t) {
		return end
	}
	return end.AddDate(0, 0, 1)
}

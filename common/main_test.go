package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func GetTestTimestamp() time.Time {
	return time.Unix(int64(1594336370), int64(706917000))
}

func TestFormatTimestamp(t *testing.T) {
	timestamp := GetTestTimestamp()
	expected := "1594336370706"
	actual := FormatTimestamp(timestamp)
	if actual != expected {
		t.Errorf("unexpected timestamp: got '%s' instead of '%s'", actual, expected)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	assert := assert.New(t)

	tod, err := ParseTimeOfDay("22:30")
	assert.NoError(err, "unexpected error for a valid time of day")
	assert.Equal(22, tod.Hour)
	assert.Equal(30, tod.Minute)
	assert.Equal("22:30", tod.String())
}

func TestParseTimeOfDayInvalid(t *testing.T) {
	assert := assert.New(t)

	for _, input := range []string{"", "25:00", "12:60", "noon", "-1:30", "22:00junk", "22:00:00"} {
		_, err := ParseTimeOfDay(input)
		assert.Errorf(err, "expected an error for `%s`", input)
	}
}

func TestQuietWindowSameDay(t *testing.T) {
	assert := assert.New(t)

	window := QuietWindow{
		Start: TimeOfDay{Hour: 13, Minute: 0},
		End:   TimeOfDay{Hour: 15, Minute: 0},
	}

	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	at := func(hour, minute int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
	}

	assert.False(window.Contains(at(12, 59)), "just before the window")
	assert.True(window.Contains(at(13, 0)), "the start boundary is inclusive")
	assert.True(window.Contains(at(14, 30)), "inside the window")
	assert.False(window.Contains(at(15, 0)), "the end boundary is exclusive")
}

func TestQuietWindowSpansMidnight(t *testing.T) {
	assert := assert.New(t)

	window := QuietWindow{
		Start: TimeOfDay{Hour: 22, Minute: 0},
		End:   TimeOfDay{Hour: 6, Minute: 0},
	}

	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	at := func(hour, minute int) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
	}

	assert.True(window.Contains(at(23, 0)), "before midnight")
	assert.True(window.Contains(at(2, 0)), "after midnight")
	assert.False(window.Contains(at(6, 0)), "the end boundary is exclusive")
	assert.False(window.Contains(at(12, 0)), "midday is outside the window")
}

func TestQuietWindowNextEnd(t *testing.T) {
	assert := assert.New(t)

	window := QuietWindow{
		Start: TimeOfDay{Hour: 22, Minute: 0},
		End:   TimeOfDay{Hour: 6, Minute: 0},
	}

	// Before midnight, the window ends on the following day.
	now := time.Date(2024, time.March, 5, 23, 0, 0, 0, time.UTC)
	assert.Equal(time.Date(2024, time.March, 6, 6, 0, 0, 0, time.UTC), window.NextEnd(now))

	// After midnight, the window ends the same day.
	now = time.Date(2024, time.March, 6, 2, 0, 0, 0, time.UTC)
	assert.Equal(time.Date(2024, time.March, 6, 6, 0, 0, 0, time.UTC), window.NextEnd(now))
}

func TestValidateEmailAddress(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(ValidateEmailAddress("sarahr@example.org"))
	assert.Error(ValidateEmailAddress("not-an-email-address"))
}

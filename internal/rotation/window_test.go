package rotation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestForAlignsToIntervalGrid(t *testing.T) {
	interval := 5 * time.Minute
	t0 := time.Date(2026, 7, 30, 10, 7, 33, 0, time.UTC)

	w := For(t0, interval)

	assert.Equal(t, time.Date(2026, 7, 30, 10, 5, 0, 0, time.UTC), w.Start)
	assert.Equal(t, interval, w.Interval)
}

func TestForDefaultsInvalidIntervalToFiveMinutes(t *testing.T) {
	w := For(time.Unix(0, 0).UTC(), 0)
	assert.Equal(t, 5*time.Minute, w.Interval)
}

func TestWindowContainsAndElapsed(t *testing.T) {
	w := Window{Start: time.Unix(1000, 0), Interval: 300 * time.Second}

	assert.True(t, w.Contains(time.Unix(1000, 0)))
	assert.True(t, w.Contains(time.Unix(1299, 0)))
	assert.False(t, w.Contains(time.Unix(1300, 0)))

	assert.False(t, w.Elapsed(time.Unix(1299, 0)))
	assert.True(t, w.Elapsed(time.Unix(1300, 0)))
	assert.True(t, w.Elapsed(time.Unix(1400, 0)))
}

func TestWindowNextChains(t *testing.T) {
	w := Window{Start: time.Unix(1000, 0), Interval: 300 * time.Second}
	next := w.Next()

	assert.Equal(t, w.End(), next.Start)
	assert.Equal(t, w.Interval, next.Interval)
}

func TestTimeFormatPicksSecondPrecisionBelowOneMinute(t *testing.T) {
	assert.Equal(t, "20060102150405", TimeFormat(30*time.Second))
	assert.Equal(t, "200601021504", TimeFormat(5*time.Minute))
}

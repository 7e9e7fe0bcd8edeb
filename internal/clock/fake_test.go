package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	loc := time.FixedZone("WIB", 7*60*60)
	c := NewFakeClock(time.Date(2026, 1, 1, 7, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), c.Now())
	assert.Equal(t, time.UTC, c.Now().Location())

	c.Advance(36 * time.Hour)
	assert.Equal(t, time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC), c.Now())

	c.Set(time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 2027, c.Now().Year())
}

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	start := time.Date(2025, 6, 1, 9, 0, 0, 0, time.FixedZone("ICT", 7*3600))
	c := NewManual(start)
	assert.Equal(t, time.UTC, c.Now().Location())
	assert.True(t, c.Now().Equal(start))

	c.Advance(30 * time.Minute)
	assert.True(t, c.Now().Equal(start.Add(30*time.Minute)))

	c.Set(start)
	assert.True(t, c.Now().Equal(start))
}

func TestFixedAndSystemAreUTC(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.Local)
	assert.Equal(t, time.UTC, NewFixed(at).Now().Location())
	assert.Equal(t, NewFixed(at).Now(), NewFixed(at).Now())
	assert.Equal(t, time.UTC, NewSystem().Now().Location())
}

package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallerLimiterDisabled(t *testing.T) {
	l := NewCallerLimiter(0, 10, 0)
	assert.Nil(t, l)
	assert.True(t, l.Allow("0xaa", time.Now()))
	assert.Equal(t, 0, l.Len())
}

func TestCallerLimiterBurstAndRefill(t *testing.T) {
	l := NewCallerLimiter(1, 2, time.Minute)
	require.NotNil(t, l)
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, l.Allow("0xAA", now))
	assert.True(t, l.Allow("0xaa", now), "keys are case-insensitive")
	assert.False(t, l.Allow("0xAa", now))
	assert.True(t, l.Allow("0xbb", now))

	assert.True(t, l.Allow("0xaa", now.Add(time.Second)))
	assert.Equal(t, 2, l.Len())
}

func TestCallerLimiterEmptyKey(t *testing.T) {
	l := NewCallerLimiter(1, 1, 0)
	now := time.Now()
	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("  ", now))
	}
	assert.Equal(t, 0, l.Len())
}

func TestCallerLimiterEvictsIdle(t *testing.T) {
	l := NewCallerLimiter(100, 100, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("idle", start)

	later := start.Add(time.Hour)
	for i := 0; i < 511; i++ {
		l.Allow("busy", later)
	}
	assert.Equal(t, 1, l.Len())
}

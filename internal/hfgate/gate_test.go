package hfgate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate_InactiveByDefault(t *testing.T) {
	t.Parallel()
	g := New()
	assert.False(t, g.Active())
	assert.True(t, g.BlockedUntil().IsZero())
}

func TestGate_MarkExhausted(t *testing.T) {
	t.Parallel()
	g := New()
	g.MarkExhausted(50 * time.Millisecond)
	assert.True(t, g.Active())

	time.Sleep(75 * time.Millisecond)
	assert.False(t, g.Active())
}

func TestGate_DefaultDurationOnNonPositive(t *testing.T) {
	t.Parallel()
	g := New()
	g.MarkExhausted(0)
	assert.True(t, g.BlockedUntil().After(time.Now().Add(23*time.Hour)))
}

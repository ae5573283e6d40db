package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayGrowth(t *testing.T) {
	p := DefaultRetryPolicy

	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
	// capped at the ceiling from here on
	assert.Equal(t, 5*time.Second, p.Delay(4))
	assert.Equal(t, 5*time.Second, p.Delay(5))
	assert.Equal(t, 5*time.Second, p.Delay(50))
}

func TestRetryDelayBounds(t *testing.T) {
	p := DefaultRetryPolicy
	assert.Equal(t, p.BaseDelay, p.Delay(0))
	assert.Equal(t, p.BaseDelay, p.Delay(-3))
}

func TestRetryExhausted(t *testing.T) {
	p := DefaultRetryPolicy
	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(4))
	assert.True(t, p.Exhausted(5))
	assert.True(t, p.Exhausted(6))
}

package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayDoubles(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	assert.Equal(t, 30*time.Second, backoffDelay(base, max, 0))
	assert.Equal(t, time.Minute, backoffDelay(base, max, 1))
	assert.Equal(t, 2*time.Minute, backoffDelay(base, max, 2))
	assert.Equal(t, 4*time.Minute, backoffDelay(base, max, 3))
}

func TestBackoffDelayCapped(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	assert.Equal(t, max, backoffDelay(base, max, 7))
	assert.Equal(t, max, backoffDelay(base, max, 50))
}

func TestBackoffDelayMonotone(t *testing.T) {
	base := 30 * time.Second
	max := time.Hour

	prev := time.Duration(0)
	for attempts := 0; attempts < 20; attempts++ {
		d := backoffDelay(base, max, attempts)
		assert.GreaterOrEqual(t, d, prev, "attempts=%d", attempts)
		prev = d
	}
}

func TestBackoffDelayZeroBase(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoffDelay(0, time.Hour, 3))
}

func TestWithJitterBounds(t *testing.T) {
	d := time.Minute
	for i := 0; i < 100; i++ {
		j := withJitter(d)
		assert.GreaterOrEqual(t, j, d)
		assert.LessOrEqual(t, j, d+d/4)
	}

	assert.Equal(t, time.Duration(0), withJitter(0))
}

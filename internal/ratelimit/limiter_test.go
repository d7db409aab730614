package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecide(t *testing.T) {
	window := time.Minute

	t.Run("exactly limit requests in a fresh window succeed", func(t *testing.T) {
		limit := 10
		for i := int64(1); i <= int64(limit); i++ {
			d := decide(0, i, 10*time.Second, window, limit)
			assert.True(t, d.Allowed, "request %d should pass", i)
		}
	})

	t.Run("request over the limit is denied", func(t *testing.T) {
		d := decide(0, 11, 10*time.Second, window, 10)
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
		assert.Greater(t, d.ResetAfter, 0)
	})

	t.Run("previous window weighs in near the boundary", func(t *testing.T) {
		// 10 requests filled the previous window; 6 seconds into the new one
		// the sliding interval still covers 90% of them.
		d := decide(10, 2, 6*time.Second, window, 10)
		assert.False(t, d.Allowed) // 10*0.9 + 2 = 11 > 10
	})

	t.Run("previous window decays as time passes", func(t *testing.T) {
		d := decide(10, 2, 54*time.Second, window, 10)
		assert.True(t, d.Allowed) // 10*0.1 + 2 = 3
	})

	t.Run("fully elapsed window resets the quota", func(t *testing.T) {
		d := decide(0, 1, 0, window, 10)
		assert.True(t, d.Allowed)
		assert.Equal(t, 9, d.Remaining)
	})

	t.Run("remaining never goes negative", func(t *testing.T) {
		d := decide(50, 50, 0, window, 10)
		assert.Equal(t, 0, d.Remaining)
	})

	t.Run("reset counts down with elapsed time", func(t *testing.T) {
		early := decide(0, 1, 5*time.Second, window, 10)
		late := decide(0, 1, 55*time.Second, window, 10)
		assert.Greater(t, early.ResetAfter, late.ResetAfter)
	})
}

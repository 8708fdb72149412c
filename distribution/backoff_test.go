package distribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffSchedule(t *testing.T) {
	assert.Equal(t, 2*time.Minute, Backoff(1))
	assert.Equal(t, 4*time.Minute, Backoff(2))
	assert.Equal(t, 8*time.Minute, Backoff(3))
}

func TestBackoffDeterminism(t *testing.T) {
	for n := 1; n <= MaxRetries; n++ {
		first := Backoff(n)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Backoff(n), "Backoff(%d) must be pure", n)
		}
	}
}

func TestBackoffClampsInvalidAttempt(t *testing.T) {
	assert.Equal(t, Backoff(1), Backoff(0))
	assert.Equal(t, Backoff(1), Backoff(-3))
}

package worker

import (
	"testing"
	"time"

	"clipcast/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestPublishRetryDelayProgression(t *testing.T) {
	policy := PublishRetryPolicy(config.QueueConfig{
		MaxRetries:     3,
		RetryBaseDelay: 5 * time.Minute,
		RetryMaxDelay:  6 * time.Hour,
	})

	// 5m, 10m, 20m, ... doubling until the 6h cap.
	assert.Equal(t, 5*time.Minute, policy.NextDelay(1))
	assert.Equal(t, 10*time.Minute, policy.NextDelay(2))
	assert.Equal(t, 20*time.Minute, policy.NextDelay(3))
	assert.Equal(t, 320*time.Minute, policy.NextDelay(7))
	assert.Equal(t, 6*time.Hour, policy.NextDelay(8))
	assert.Equal(t, 6*time.Hour, policy.NextDelay(20))
}

func TestRetryDelayDefensiveDefaults(t *testing.T) {
	var policy RetryPolicy

	// Zero-valued policy still yields something sane.
	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
}

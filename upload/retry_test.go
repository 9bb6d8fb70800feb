package upload_test

import (
	"context"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sagarc03/bigstash/upload"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Intervals(t *testing.T) {
	b := upload.DefaultRetryPolicy().BackOff(context.Background())

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, b.NextBackOff(), "interval %d", i)
	}
}

func TestRetryPolicy_MaxRetries(t *testing.T) {
	b := upload.RetryPolicy{MaxRetries: 2}.BackOff(context.Background())

	assert.Equal(t, time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestRetryPolicy_Context(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := upload.DefaultRetryPolicy().BackOff(ctx)
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

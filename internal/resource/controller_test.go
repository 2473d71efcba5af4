package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_InFlight(t *testing.T) {
	c := NewController(Config{MaxInFlight: 2})

	r1, err := c.Acquire(context.Background())
	require.NoError(t, err)
	r2, err := c.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.InFlight())

	_, ok := c.TryAcquire()
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r1()
	r1() // second release is a no-op
	assert.Equal(t, int64(1), c.InFlight())

	r3, ok := c.TryAcquire()
	require.True(t, ok)
	r2()
	r3()
	assert.Equal(t, int64(0), c.InFlight())
}

func TestController_Rate(t *testing.T) {
	c := NewController(Config{MaxInFlight: 10, RequestsPerSecond: 1, Burst: 1})

	release, ok := c.TryAcquire()
	require.True(t, ok)
	release()

	// The single token is spent; the next call must wait about a second.
	_, ok = c.TryAcquire()
	assert.False(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, int64(0), c.InFlight())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	release, err := c.Acquire(context.Background())
	require.NoError(t, err)
	release()
	_, ok := c.TryAcquire()
	assert.True(t, ok)
	assert.Equal(t, int64(0), c.InFlight())
}

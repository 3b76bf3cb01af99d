package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/paid-chapter-feed/internal/pipeline"
)

type countingTrigger struct {
	calls atomic.Int32
	err   error
}

func (c *countingTrigger) Start(context.Context) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}
	return "run-1", nil
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New("not a cron", &countingTrigger{}, nil)
	require.Error(t, err)

	_, err = New("* * * * *", nil, nil)
	require.Error(t, err)

	s, err := New("", &countingTrigger{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSpec, s.spec)
}

func TestScheduler_Next(t *testing.T) {
	t.Parallel()

	s, err := New("*/30 * * * *", &countingTrigger{}, nil)
	require.NoError(t, err)

	from := time.Date(2025, 2, 20, 12, 10, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 2, 20, 12, 30, 0, 0, time.UTC), s.Next(from))
}

func TestScheduler_FiresTrigger(t *testing.T) {
	t.Parallel()

	trigger := &countingTrigger{}
	s, err := New("@every 1s", trigger, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	require.Error(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return trigger.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()
	s.Stop()
}

func TestScheduler_FireSkipsWhenBuildRunning(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	trigger := &countingTrigger{err: pipeline.ErrRunInProgress}
	s, err := New("* * * * *", trigger, zap.New(core))
	require.NoError(t, err)

	s.fire(context.Background())
	assert.Equal(t, int32(1), trigger.calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("previous feed build still running, skipping tick").Len())

	trigger.err = errors.New("boom")
	s.fire(context.Background())
	assert.Equal(t, 1, logs.FilterMessage("scheduled feed build failed to start").Len())
}

func TestScheduler_FireIgnoresCanceledContext(t *testing.T) {
	t.Parallel()

	trigger := &countingTrigger{}
	s, err := New("* * * * *", trigger, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.fire(ctx)
	assert.Equal(t, int32(0), trigger.calls.Load())
}

package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingBackfiller struct {
	calls       atomic.Int32
	err         error
	sawDeadline atomic.Bool
}

func (b *countingBackfiller) Refresh(ctx context.Context) error {
	b.calls.Add(1)
	if _, ok := ctx.Deadline(); ok {
		b.sawDeadline.Store(true)
	}
	return b.err
}

func TestNew_Disabled(t *testing.T) {
	for _, spec := range []string{"", "off", " OFF "} {
		s, err := New(spec, &countingBackfiller{}, 0, nil)
		require.NoError(t, err)
		require.Nil(t, s, "spec %q", spec)

		// nil scheduler is safe to drive
		s.Start(context.Background())
		s.Stop()
	}
}

func TestNew_InvalidSpec(t *testing.T) {
	_, err := New("every ten minutes", &countingBackfiller{}, 0, nil)
	require.Error(t, err)
}

func TestNew_AcceptsStandardAndDescriptors(t *testing.T) {
	for _, spec := range []string{"@every 10m", "0 3 * * *", "@daily"} {
		s, err := New(spec, &countingBackfiller{}, 0, nil)
		require.NoError(t, err, "spec %q", spec)
		require.NotNil(t, s)
	}
}

func TestRunOnce(t *testing.T) {
	job := &countingBackfiller{}
	require.NoError(t, RunOnce(context.Background(), job, time.Minute, nil))
	require.Equal(t, int32(1), job.calls.Load())
	require.True(t, job.sawDeadline.Load())
}

func TestRunOnce_Error(t *testing.T) {
	job := &countingBackfiller{err: errors.New("embedding down")}
	err := RunOnce(context.Background(), job, 0, nil)
	require.ErrorContains(t, err, "embedding down")
	require.False(t, job.sawDeadline.Load())
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	job := &countingBackfiller{}
	s, err := New("@every 1s", job, time.Second, nil)
	require.NoError(t, err)

	s.Start(context.Background())
	require.Eventually(t, func() bool { return job.calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
	s.Stop()

	after := job.calls.Load()
	time.Sleep(1200 * time.Millisecond)
	require.Equal(t, after, job.calls.Load(), "no runs after Stop")
}

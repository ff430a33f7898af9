package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu      sync.Mutex
	calls   int
	lastTTL time.Duration
	removed int
}

func (f *fakeSweeper) Sweep(idleTTL time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastTTL = idleTTL
	return f.removed
}

func (f *fakeSweeper) Len() int { return 0 }

func (f *fakeSweeper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSweepJob_Run(t *testing.T) {
	s := &fakeSweeper{removed: 3}
	NewSweepJob(s, 30*time.Minute).Run()
	require.Equal(t, 1, s.callCount())
	require.Equal(t, 30*time.Minute, s.lastTTL)
}

func TestNewScheduler(t *testing.T) {
	sched, err := NewScheduler(&fakeSweeper{}, time.Minute, "0 */5 * * * *")
	require.NoError(t, err)
	require.Equal(t, 1, sched.Entries())

	sched, err = NewScheduler(&fakeSweeper{}, time.Minute, "")
	require.NoError(t, err)
	require.Equal(t, 0, sched.Entries())

	_, err = NewScheduler(&fakeSweeper{}, time.Minute, "not a cron spec")
	require.Error(t, err)
}

func TestScheduler_RunsSweep(t *testing.T) {
	s := &fakeSweeper{}
	sched, err := NewScheduler(s, time.Minute, "* * * * * *")
	require.NoError(t, err)

	sched.Start()
	defer sched.Stop()
	require.Eventually(t, func() bool { return s.callCount() > 0 }, 3*time.Second, 50*time.Millisecond)
}

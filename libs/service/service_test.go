package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testService struct {
	BaseService

	started chan struct{}
	stopped int
}

func newTestService() *testService {
	ts := &testService{started: make(chan struct{}, 1)}
	ts.BaseService = *NewBaseService(nil, "TestService", ts)
	return ts
}

func (ts *testService) OnStart(ctx context.Context) error {
	ts.started <- struct{}{}
	return nil
}

func (ts *testService) OnStop() { ts.stopped++ }

func TestBaseServiceWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ts := newTestService()
	require.NoError(t, ts.Start(ctx))
	require.True(t, ts.IsRunning())

	waitFinished := make(chan struct{})
	go func() {
		ts.Wait()
		close(waitFinished)
	}()

	go ts.Stop() //nolint:errcheck // ignore for tests

	select {
	case <-waitFinished:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected Wait() to finish within 100 ms.")
	}
	require.False(t, ts.IsRunning())
	require.Equal(t, 1, ts.stopped)
}

func TestBaseServiceStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ts := newTestService()
	require.NoError(t, ts.Start(ctx))
	require.ErrorIs(t, ts.Start(ctx), ErrAlreadyStarted)

	cancel()
	ts.Wait()

	require.ErrorIs(t, ts.Stop(), ErrAlreadyStopped)
	require.ErrorIs(t, ts.Start(context.Background()), ErrAlreadyStopped)
	require.Equal(t, 1, ts.stopped)
}

func TestBaseServiceStopBeforeStart(t *testing.T) {
	ts := newTestService()
	require.ErrorIs(t, ts.Stop(), ErrNotStarted)
}

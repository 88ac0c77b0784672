package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"
)

type mockHTTPServer struct {
	listenErr error
	started   chan struct{}
	stopCh    chan struct{}
	shutdowns atomic.Int32
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	select {
	case m.started <- struct{}{}:
	default:
	}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(ctx context.Context) error {
	m.shutdowns.Add(1)
	close(m.stopCh)
	return nil
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	srv := newMockHTTPServer()
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	<-srv.started
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, int32(1), srv.shutdowns.Load())
	assert.Equal(t, "http-server", svc.String())
}

func TestHTTPServerService_ListenError(t *testing.T) {
	srv := newMockHTTPServer()
	srv.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(srv, 0)

	err := svc.Serve(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

type mockRouter struct {
	runErr error
	closed atomic.Bool
}

func (m *mockRouter) Run(ctx context.Context) error {
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return nil
}

func (m *mockRouter) Close() error {
	m.closed.Store(true)
	return nil
}

func TestEventBusService_ClosesOnCancel(t *testing.T) {
	bus := &mockRouter{}
	svc := NewEventBusService(bus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Serve(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, bus.closed.Load())
}

func TestEventBusService_FailureTerminatesTree(t *testing.T) {
	svc := NewEventBusService(&mockRouter{runErr: errors.New("router already closed")})

	err := svc.Serve(context.Background())

	assert.ErrorIs(t, err, suture.ErrTerminateSupervisorTree)
	assert.Contains(t, err.Error(), "router already closed")
}

type jobFunc func(ctx context.Context) error

func (f jobFunc) Run(ctx context.Context) error { return f(ctx) }

func TestPeriodicService_RunsImmediatelyAndOnTick(t *testing.T) {
	var runs atomic.Int32
	ran := make(chan struct{}, 10)
	job := jobFunc(func(ctx context.Context) error {
		runs.Add(1)
		ran <- struct{}{}
		return errors.New("transient")
	})
	var buf bytes.Buffer
	svc := NewPeriodicService("overdue-reminder", job, 10*time.Millisecond, slog.New(slog.NewJSONHandler(&buf, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("job ran %d times, want at least 2", runs.Load())
		}
	}
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Contains(t, buf.String(), "定期ジョブの実行に失敗しました")
	assert.Equal(t, "overdue-reminder", svc.String())
}

func TestPeriodicService_InvalidIntervalIsNotRestarted(t *testing.T) {
	svc := NewPeriodicService("cleanup", jobFunc(func(ctx context.Context) error { return nil }), 0, nil)

	err := svc.Serve(context.Background())

	assert.ErrorIs(t, err, suture.ErrDoNotRestart)
}

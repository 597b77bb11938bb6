package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	stop     chan struct{}
	listen   error
	shutdown atomic.Bool
}

func (f *fakeServer) ListenAndServe() error {
	if f.listen != nil {
		return f.listen
	}
	<-f.stop
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.shutdown.Store(true)
	close(f.stop)
	return nil
}

func TestHTTPServiceShutsDownOnCancel(t *testing.T) {
	srv := &fakeServer{stop: make(chan struct{})}
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}
	assert.True(t, srv.shutdown.Load())
}

func TestHTTPServiceListenFailure(t *testing.T) {
	svc := NewHTTPService(&fakeServer{listen: errors.New("address in use")}, time.Second)
	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}

type countingService struct{ runs atomic.Int32 }

func (c *countingService) Serve(ctx context.Context) error {
	c.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisorRunsServices(t *testing.T) {
	sup := New("test", nil, time.Second)
	svc := &countingService{}
	sup.Add(svc)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)
	require.Eventually(t, func() bool { return svc.runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-errCh
}

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownManager_RunsFuncs(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, time.Second, &http.Server{Addr: ":0"})

	var calls int32
	for i := 0; i < 3; i++ {
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
	}

	require.NoError(t, sm.Shutdown())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestShutdownManager_CollectsErrors(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, time.Second)

	boom := errors.New("boom")
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return boom })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { return nil })

	err := sm.Shutdown()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestShutdownManager_Timeout(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, 20*time.Millisecond)

	release := make(chan struct{})
	defer close(release)
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		<-release
		return nil
	})

	err := sm.Shutdown()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestShutdownManager_WaitForShutdown(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	sm := NewShutdownManager(logger, time.Second)

	var ran int32
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		atomic.StoreInt32(&ran, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, sm.WaitForShutdown(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestMustRecover(t *testing.T) {
	assert.NoError(t, MustRecover(nil))
	assert.EqualError(t, MustRecover("bad"), "panic: bad")
}

func TestRecoverPanic(t *testing.T) {
	logger := NewLogger(ErrorLevel, io.Discard)
	assert.NotPanics(t, func() {
		defer RecoverPanic(logger, "test")
		panic("boom")
	})
}

package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dingodb/dingo-store/pkg/dingoerr"
)

func testConfig() Config {
	return Config{
		ReadWorkers:            2,
		WriteWorkers:           2,
		QueueDepth:             4,
		BackgroundQueueDepth:   4,
		MaxBackgroundTaskCount: 2,
	}
}

func TestSchedulerSubmitReadAndWrite(t *testing.T) {
	s := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	require.Nil(t, s.SubmitRead(func(context.Context) { wg.Done() }))
	require.Nil(t, s.SubmitWrite(func(context.Context) { wg.Done() }))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("read/write tasks did not complete in time")
	}
}

func TestSchedulerBackgroundHighWatermarkRejectsWrites(t *testing.T) {
	cfg := testConfig()
	s := New(cfg)
	// Don't Start the background queue: submitted tasks sit pending
	// forever, which is exactly what the high-watermark check needs.
	for i := int64(0); i <= cfg.MaxBackgroundTaskCount; i++ {
		require.Nil(t, s.SubmitBackground(func(context.Context) {}))
	}

	err := s.SubmitWrite(func(context.Context) {})
	require.NotNil(t, err)
	assert.True(t, dingoerr.Is(err, dingoerr.RequestFull))

	// Reads are unaffected by background-queue backpressure.
	assert.Nil(t, s.SubmitRead(func(context.Context) {}))
}

func TestSchedulerBackgroundQueueDrainsWhenStarted(t *testing.T) {
	s := New(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	done := make(chan struct{})
	require.Nil(t, s.SubmitBackground(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background task did not run")
	}
}

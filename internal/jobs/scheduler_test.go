package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsTasksUntilStopped(t *testing.T) {
	var fast, failing, panicking atomic.Int32
	s := NewScheduler(zerolog.Nop())
	s.Every("fast", 5*time.Millisecond, func(context.Context) error {
		fast.Add(1)
		return nil
	})
	s.Every("failing", 5*time.Millisecond, func(context.Context) error {
		failing.Add(1)
		return errors.New("boom")
	})
	s.Every("panicking", 5*time.Millisecond, func(context.Context) error {
		panicking.Add(1)
		panic("bad row")
	})
	s.Every("disabled", 0, func(context.Context) error {
		t.Error("disabled task ran")
		return nil
	})

	s.Start(context.Background())
	assert.Eventually(t, func() bool {
		return fast.Load() >= 3 && failing.Load() >= 3 && panicking.Load() >= 3
	}, 5*time.Second, 5*time.Millisecond)
	s.Stop()

	after := fast.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, fast.Load())
}

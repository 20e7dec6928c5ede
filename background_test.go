package offlinecache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestBackgroundStopCancelsAndDrops(t *testing.T) {
	b := newBackground(zerolog.Nop())
	started := make(chan struct{})
	var cancelled atomic.Bool
	b.Go("wait", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started
	b.Stop()
	assert.True(t, cancelled.Load())

	var ran atomic.Bool
	b.Go("late", func(ctx context.Context) { ran.Store(true) })
	b.Wait()
	assert.False(t, ran.Load())
}

func TestBackgroundRecoversPanics(t *testing.T) {
	b := newBackground(zerolog.Nop())
	b.Go("panic", func(ctx context.Context) { panic("boom") })
	b.Wait()
	b.Stop()
}

func TestBackgroundGoRacingStop(t *testing.T) {
	b := newBackground(zerolog.Nop())
	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Go("job", func(ctx context.Context) { ran.Add(1) })
		}()
	}
	b.Stop()
	atStop := ran.Load()
	wg.Wait()
	// jobs accepted before Stop have finished, later ones never start
	b.Wait()
	assert.Equal(t, atStop, ran.Load())
}

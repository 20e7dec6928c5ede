package offlinecache

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// background runs fire-and-forget jobs: cache writes, refreshes and revalidations.
// Callers get no handle to a job and never see its failure; jobs log their own errors.
// All jobs share one base context that is only cancelled when the worker closes,
// so a job outlives the request that spawned it and is abandoned on shutdown.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger

	// guards closed and wg.Add against Stop
	mu     sync.Mutex
	closed bool
}

func newBackground(log zerolog.Logger) *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel, log: log}
}

// Go starts the job unless the worker is already closed.
func (b *background) Go(name string, job func(ctx context.Context)) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.log.Trace().Str("job", name).Msg("Worker closed, dropping background job")
		return
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer func() {
			if err := recover(); err != nil {
				b.log.WithLevel(zerolog.PanicLevel).Interface("error", err).Str("job", name).Msg("Panic in background job")
			}
		}()
		job(b.ctx)
	}()
}

// Wait blocks until all started jobs have returned.
func (b *background) Wait() {
	b.wg.Wait()
}

// Stop cancels the jobs in flight and waits for them to return.
// No job starts after Stop.
func (b *background) Stop() {
	b.mu.Lock()
	b.closed = true
	b.cancel()
	b.mu.Unlock()
	b.wg.Wait()
}

package offlinecache

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/always-cache/offline-cache/cache"
	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	"github.com/always-cache/offline-cache/pkg/route"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotInstalled is returned when activating a worker that has not been installed.
	ErrNotInstalled = errors.New("worker is not installed")
	// ErrInstalling is returned when an install is already running.
	ErrInstalling = errors.New("worker is installing")
)

type State int

const (
	StateParsed State = iota
	StateInstalling
	// StateInstalled is the waiting state: installed, but not yet in control.
	StateInstalled
	StateActivating
	StateActivated
	// StateRedundant follows a failed install. Register may be called again.
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateParsed:
		return "parsed"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	}
	return "unknown"
}

type lifecycle struct {
	mu    sync.Mutex
	state State
	// SKIP_WAITING arrived before the worker was installed
	skipWaiting bool
}

// State returns the current lifecycle state.
func (w *Worker) State() State {
	w.lifecycle.mu.Lock()
	defer w.lifecycle.mu.Unlock()
	return w.lifecycle.state
}

// Register installs the worker and activates it, unless it was configured to wait
// for SKIP_WAITING.
func (w *Worker) Register(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	w.lifecycle.mu.Lock()
	wait := w.waitForSkip && !w.lifecycle.skipWaiting
	w.lifecycle.mu.Unlock()
	if wait {
		w.log.Info().Msg("Installed, waiting for SKIP_WAITING")
		return nil
	}
	return w.Activate(ctx)
}

// Install pre-warms the static partition with the app shell.
// Either every app shell URL is stored or none is; on failure the worker becomes redundant.
// The lifecycle lock is not held while the app shell is fetched.
func (w *Worker) Install(ctx context.Context) error {
	w.lifecycle.mu.Lock()
	switch w.lifecycle.state {
	case StateInstalled, StateActivating, StateActivated:
		w.lifecycle.mu.Unlock()
		return nil
	case StateInstalling:
		w.lifecycle.mu.Unlock()
		return ErrInstalling
	}
	w.lifecycle.state = StateInstalling
	w.lifecycle.mu.Unlock()
	w.log.Debug().Int("urls", len(w.appShell)).Msg("Installing")

	err := w.prewarm(ctx)

	w.lifecycle.mu.Lock()
	defer w.lifecycle.mu.Unlock()
	if err != nil {
		w.lifecycle.state = StateRedundant
		w.log.Error().Err(err).Msg("Install failed")
		return fmt.Errorf("install: %w", err)
	}
	w.lifecycle.state = StateInstalled
	w.log.Info().Str("partition", w.names.Static).Msg("Installed")
	return nil
}

func (w *Worker) prewarm(ctx context.Context) error {
	urls := make([]*url.URL, len(w.appShell))
	for i, ref := range w.appShell {
		u, err := w.keyer.Resolve(ref)
		if err != nil {
			return err
		}
		urls[i] = u
	}

	// fetch everything before storing anything
	responses := make([]serializer.Buffered, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			res, err := w.fetchURL(gctx, u, nil)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}
			if !res.OK() {
				return fmt.Errorf("fetch %s: status %d", u, res.StatusCode)
			}
			responses[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, u := range urls {
		key := http.MethodGet + ":" + u.String()
		if err := w.put(route.Static, http.MethodGet, key, u.String(), responses[i]); err != nil {
			return fmt.Errorf("store %s: %w", u, err)
		}
	}
	return nil
}

// Activate deletes partitions of other versions and claims the scope.
// From then on requests are intercepted.
func (w *Worker) Activate(ctx context.Context) error {
	w.lifecycle.mu.Lock()
	defer w.lifecycle.mu.Unlock()
	switch w.lifecycle.state {
	case StateActivated:
		return nil
	case StateInstalled:
	default:
		return fmt.Errorf("activate in state %s: %w", w.lifecycle.state, ErrNotInstalled)
	}
	w.lifecycle.state = StateActivating

	deleted, err := cache.Sweep(w.storage, w.names.All(), w.log)
	if err != nil {
		// a failed sweep does not block activation
		w.log.Error().Err(err).Msg("Could not sweep stale partitions")
	}
	w.metrics.observeSwept(len(deleted))

	w.lifecycle.state = StateActivated
	w.controlling.Store(true)
	w.log.Info().Strs("deleted", deleted).Msg("Activated, controlling scope")
	return nil
}

// SkipWaiting activates a waiting worker. Sent before install, it makes the next
// Register activate right away.
func (w *Worker) SkipWaiting(ctx context.Context) error {
	w.lifecycle.mu.Lock()
	state := w.lifecycle.state
	if state != StateInstalled && state != StateActivated {
		w.lifecycle.skipWaiting = true
	}
	w.lifecycle.mu.Unlock()

	switch state {
	case StateInstalled:
		return w.Activate(ctx)
	case StateRedundant:
		return fmt.Errorf("skip waiting: %w", ErrNotInstalled)
	}
	return nil
}

package offlinecache

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"

	offlinequeue "github.com/always-cache/offline-cache/pkg/offline-queue"
	"github.com/always-cache/offline-cache/pkg/route"
)

// SyncTag is the only background sync tag the worker handles.
const SyncTag = "background-sync"

// Sync replays the queued offline actions for the tag and returns how many were flushed.
// An action leaves the queue once the network answered it, whatever the status;
// actions that fail to reach the network stay queued for the next sync.
// Actions outside the scope are dropped without being sent.
func (w *Worker) Sync(ctx context.Context, tag string) (int, error) {
	if tag != SyncTag {
		w.log.Debug().Str("tag", tag).Msg("Ignoring unknown sync tag")
		return 0, nil
	}
	if w.queue == nil {
		w.log.Debug().Msg("No offline queue, nothing to sync")
		return 0, nil
	}
	actions, err := w.queue.Pending()
	if err != nil {
		return 0, err
	}
	flushed := 0
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			return flushed, err
		}
		log := w.log.With().Str("id", a.ID).Str("method", a.Method).Str("url", a.URL).Logger()
		u, err := url.Parse(a.URL)
		if err == nil && !route.SameOrigin(u, w.scope) {
			err = ErrCrossOrigin
		}
		if err != nil {
			// never replayable, so it is dropped
			log.Warn().Err(err).Msg("Dropping offline action")
			if err := w.queue.Remove(a.ID); err != nil && !errors.Is(err, offlinequeue.ErrNotFound) {
				log.Error().Err(err).Msg("Could not remove offline action")
			}
			continue
		}
		status, err := w.replay(ctx, u, a)
		if err != nil {
			log.Warn().Err(err).Msg("Offline action not replayed, keeping it queued")
			continue
		}
		if err := w.queue.Remove(a.ID); err != nil && !errors.Is(err, offlinequeue.ErrNotFound) {
			log.Error().Err(err).Msg("Could not remove replayed action")
			continue
		}
		flushed++
		log.Debug().Int("status", status).Msg("Offline action replayed")
	}
	w.metrics.observeSynced(flushed)
	w.log.Info().Int("flushed", flushed).Int("pending", len(actions)-flushed).Msg("Background sync done")
	return flushed, nil
}

// replay sends the action to the upstream. u is the action's URL, which is in scope.
func (w *Worker) replay(ctx context.Context, u *url.URL, a offlinequeue.Action) (int, error) {
	u.Scheme = w.upstream.Scheme
	u.Host = w.upstream.Host
	req, err := http.NewRequestWithContext(ctx, a.Method, u.String(), bytes.NewReader(a.Body))
	if err != nil {
		return 0, err
	}
	copyHeader(req.Header, a.Header)
	if w.upstreamHost != "" {
		req.Host = w.upstreamHost
	}
	res, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	res.Body.Close()
	return res.StatusCode, nil
}

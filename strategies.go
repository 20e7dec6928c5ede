package offlinecache

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/always-cache/offline-cache/cache"
	serializer "github.com/always-cache/offline-cache/pkg/response-serializer"
	"github.com/always-cache/offline-cache/pkg/route"
	"github.com/always-cache/offline-cache/rfc9211"
)

// networkFirst prefers a live answer and falls back to the dynamic partition when
// the network fails or does not answer within the network timeout.
func (w *Worker) networkFirst(r *http.Request, gen uint64) *http.Response {
	const strategy = "network-first"
	log := w.log.With().Str("strategy", strategy).Str("url", r.URL.String()).Logger()
	cs := rfc9211.CacheStatus{}

	ctx, cancel := context.WithTimeout(r.Context(), w.networkTimeout)
	defer cancel()
	res, err := w.fetch(ctx, r)
	if err == nil {
		cs.Forward(rfc9211.FwdReasonRequest)
		cs.FwdStatus = res.StatusCode
		// non-OK answers are for the page to interpret, they are not cached
		if res.OK() {
			w.store(route.Dynamic, r, res, gen)
			cs.Stored = true
		}
		w.metrics.observeResponse(strategy, "network")
		log.Debug().Int("status", res.StatusCode).Msg("Answered from network")
		return withStatus(res.Response(r), cs)
	}

	log.Debug().Err(err).Msg("Network failed, looking up cache")
	if cached, ok := w.match(route.Dynamic, r); ok {
		if strings.Contains(r.URL.Path, "/api/") && w.session.Expired(w.now()) {
			log.Debug().Msg("Session expired, refreshing cached response in background")
			w.refresh(r, route.Dynamic, gen)
		}
		cs.Hit()
		cs.Detail("network-error")
		w.metrics.observeResponse(strategy, "hit")
		return withStatus(cached.Response(r), cs)
	}
	if isNavigation(r) {
		w.metrics.observeResponse(strategy, "fallback")
		return w.offlineFallback(r)
	}
	w.metrics.observeResponse(strategy, "synthetic")
	return w.synthetic(r, http.StatusGatewayTimeout)
}

// cacheFirst answers from the partition when it can, without touching the network.
func (w *Worker) cacheFirst(r *http.Request, role route.Role, gen uint64) *http.Response {
	const strategy = "cache-first"
	log := w.log.With().Str("strategy", strategy).Str("partition", role.String()).Str("url", r.URL.String()).Logger()
	cs := rfc9211.CacheStatus{}

	if cached, ok := w.match(role, r); ok {
		cs.Hit()
		w.metrics.observeResponse(strategy, "hit")
		log.Trace().Msg("Answered from cache")
		return withStatus(cached.Response(r), cs)
	}

	res, err := w.fetch(r.Context(), r)
	if err != nil {
		log.Debug().Err(err).Msg("Network failed on cache miss")
		if isNavigation(r) {
			w.metrics.observeResponse(strategy, "fallback")
			return w.offlineFallback(r)
		}
		w.metrics.observeResponse(strategy, "synthetic")
		if isSubresource(r) {
			return w.synthetic(r, http.StatusGatewayTimeout)
		}
		return w.synthetic(r, http.StatusRequestTimeout)
	}

	cs.Forward(rfc9211.FwdReasonUriMiss)
	cs.FwdStatus = res.StatusCode
	if res.OK() {
		w.store(role, r, res, gen)
		cs.Stored = true
	}
	w.metrics.observeResponse(strategy, "network")
	return withStatus(res.Response(r), cs)
}

// staleWhileRevalidate answers from the dynamic partition immediately and refreshes
// the entry in the background, so the next request sees the newer copy.
func (w *Worker) staleWhileRevalidate(r *http.Request, gen uint64) *http.Response {
	const strategy = "stale-while-revalidate"
	log := w.log.With().Str("strategy", strategy).Str("url", r.URL.String()).Logger()
	cs := rfc9211.CacheStatus{}

	if cached, ok := w.match(route.Dynamic, r); ok {
		w.refresh(r, route.Dynamic, gen)
		cs.Hit()
		w.metrics.observeResponse(strategy, "hit")
		log.Trace().Msg("Answered from cache, revalidating")
		return withStatus(cached.Response(r), cs)
	}

	res, err := w.fetch(r.Context(), r)
	if err != nil {
		log.Debug().Err(err).Msg("Network failed on cache miss")
		w.metrics.observeResponse(strategy, "fallback")
		return w.offlineFallback(r)
	}
	cs.Forward(rfc9211.FwdReasonUriMiss)
	cs.FwdStatus = res.StatusCode
	if revalidationStorable(res) {
		w.store(route.Dynamic, r, res, gen)
		cs.Stored = true
	}
	w.metrics.observeResponse(strategy, "network")
	return withStatus(res.Response(r), cs)
}

func revalidationStorable(res serializer.Buffered) bool {
	return res.OK() && len(res.Body) > 0
}

// refresh re-fetches the request in the background and stores an OK answer.
// Nobody waits for it and its failures are only logged.
func (w *Worker) refresh(r *http.Request, role route.Role, gen uint64) {
	req := r.Clone(context.Background())
	key := w.keyer.Key(req)
	rawURL := w.keyer.AbsoluteURL(req).String()
	w.jobs.Go("refresh", func(ctx context.Context) {
		res, err := w.fetch(ctx, req)
		if err != nil {
			w.log.Debug().Err(err).Str("url", rawURL).Msg("Background refresh failed")
			return
		}
		if !revalidationStorable(res) {
			w.log.Trace().Int("status", res.StatusCode).Str("url", rawURL).Msg("Background refresh not stored")
			return
		}
		if err := w.putCurrent(gen, role, req.Method, key, rawURL, res); err != nil {
			w.metrics.observeStoreFailure(w.names.For(role))
			w.log.Warn().Err(err).Str("url", rawURL).Msg("Could not store refreshed response")
		}
	})
}

// fetch sends the request to the network. Requests for the scope go to the upstream.
// The whole body is read before returning, so ctx also bounds the body transfer.
func (w *Worker) fetch(ctx context.Context, r *http.Request) (serializer.Buffered, error) {
	return w.fetchURL(ctx, w.keyer.AbsoluteURL(r), r.Header)
}

func (w *Worker) fetchURL(ctx context.Context, target *url.URL, header http.Header) (serializer.Buffered, error) {
	u := *target
	if route.SameOrigin(&u, w.scope) {
		u.Scheme = w.upstream.Scheme
		u.Host = w.upstream.Host
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return serializer.Buffered{}, err
	}
	copyHeader(req.Header, header)
	req.Header.Del("Connection")
	if w.upstreamHost != "" {
		req.Host = w.upstreamHost
	}
	res, err := w.client.Do(req)
	if err != nil {
		return serializer.Buffered{}, err
	}
	return serializer.Read(res)
}

// store writes a copy of the response to the partition without waiting for it.
// Only GET responses are ever stored.
func (w *Worker) store(role route.Role, r *http.Request, res serializer.Buffered, gen uint64) {
	if r.Method != http.MethodGet {
		return
	}
	key := w.keyer.Key(r)
	rawURL := w.keyer.AbsoluteURL(r).String()
	w.jobs.Go("store", func(ctx context.Context) {
		if err := w.putCurrent(gen, role, http.MethodGet, key, rawURL, res); err != nil {
			w.metrics.observeStoreFailure(w.names.For(role))
			w.log.Warn().Err(err).Str("url", rawURL).Str("partition", w.names.For(role)).Msg("Could not store response")
		}
	})
}

// putCurrent stores the response unless the session was logged out after gen was taken.
// A logout waits for puts in progress, and puts wait for a logout's purge to finish.
func (w *Worker) putCurrent(gen uint64, role route.Role, method, key, rawURL string, res serializer.Buffered) error {
	w.purgeMu.RLock()
	defer w.purgeMu.RUnlock()
	if w.session.Generation() != gen {
		w.log.Debug().Str("url", rawURL).Msg("Logged out meanwhile, not storing response")
		return nil
	}
	return w.put(role, method, key, rawURL, res)
}

func (w *Worker) put(role route.Role, method, key, rawURL string, res serializer.Buffered) error {
	bts, err := res.ToBytes()
	if err != nil {
		return err
	}
	p, err := w.storage.Open(w.names.For(role))
	if err != nil {
		return err
	}
	w.log.Trace().Str("key", key).Str("partition", p.Name()).Msg("Writing to cache")
	return p.Put(cache.Entry{
		Key:      key,
		Method:   method,
		URL:      rawURL,
		StoredAt: w.now(),
		Bytes:    bts,
	})
}

// match looks the request up in the partition. Storage errors count as a miss.
func (w *Worker) match(role route.Role, r *http.Request) (serializer.Buffered, bool) {
	return w.matchKey(w.names.For(role), w.keyer.Key(r))
}

func (w *Worker) matchKey(name, key string) (serializer.Buffered, bool) {
	p, err := w.storage.Open(name)
	if err != nil {
		w.log.Warn().Err(err).Str("partition", name).Msg("Could not open partition")
		return serializer.Buffered{}, false
	}
	entry, ok, err := p.Match(key)
	if err != nil {
		w.log.Warn().Err(err).Str("key", key).Msg("Could not read from cache")
		return serializer.Buffered{}, false
	}
	if !ok {
		return serializer.Buffered{}, false
	}
	res, err := serializer.FromBytes(entry.Bytes)
	if err != nil {
		w.log.Warn().Err(err).Str("key", key).Msg("Could not parse cached response")
		return serializer.Buffered{}, false
	}
	return res, true
}

// offlineFallback returns the stored offline page, looked up in the static partition
// first. If it was never stored, a plain 503 is returned.
func (w *Worker) offlineFallback(r *http.Request) *http.Response {
	cs := rfc9211.CacheStatus{}
	cs.Forward(rfc9211.FwdReasonMiss)
	cs.Detail("offline-fallback")

	if u, err := w.keyer.Resolve(w.offlinePage); err == nil {
		key := http.MethodGet + ":" + u.String()
		for _, role := range route.Roles {
			if page, ok := w.matchKey(w.names.For(role), key); ok {
				return withStatus(page.Response(r), cs)
			}
		}
	}
	w.log.Warn().Str("page", w.offlinePage).Msg("Offline page not cached")
	res := serializer.Buffered{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:       []byte("offline"),
	}
	return withStatus(res.Response(r), cs)
}

// synthetic builds an empty-bodied response for requests that cannot be answered.
func (w *Worker) synthetic(r *http.Request, status int) *http.Response {
	cs := rfc9211.CacheStatus{}
	cs.Forward(rfc9211.FwdReasonMiss)
	cs.Detail("offline")
	res := serializer.Buffered{StatusCode: status, Header: http.Header{}}
	return withStatus(res.Response(r), cs)
}

func withStatus(res *http.Response, cs rfc9211.CacheStatus) *http.Response {
	res.Header.Set(rfc9211.HeaderName, cs.String())
	return res
}

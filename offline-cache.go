package offlinecache

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/always-cache/offline-cache/cache"
	cachekey "github.com/always-cache/offline-cache/pkg/cache-key"
	offlinequeue "github.com/always-cache/offline-cache/pkg/offline-queue"
	tee "github.com/always-cache/offline-cache/pkg/response-writer-tee"
	"github.com/always-cache/offline-cache/pkg/route"
	"github.com/always-cache/offline-cache/pkg/session"
	"github.com/always-cache/offline-cache/rfc9211"

	"github.com/rs/zerolog"
)

const (
	DefaultVersion        = "v2"
	DefaultOfflinePage    = "/offline.html"
	DefaultNetworkTimeout = 10 * time.Second
)

type Config struct {
	// Storage for cache partitions.
	Storage cache.Storage
	// Origin of the controlled pages. Only same-origin GET requests are intercepted.
	Scope url.URL
	// Where network requests for the scope are sent. Defaults to Scope.
	Upstream *url.URL
	// Hostname to use for upstream HTTP requests and TLS negotiation.
	// Use if needed if e.g. the upstream URL is just an IP address.
	UpstreamHost string
	// Version token embedded in partition names, e.g. "v2" gives `static-v2`.
	Version string
	// Path of the page served to navigations that cannot be answered.
	OfflinePage string
	// App shell URLs pre-warmed into the static partition on install.
	AppShell []string
	// Bound on network-first fetches.
	NetworkTimeout time.Duration
	// Stay in the installed (waiting) state after install until SKIP_WAITING.
	WaitForSkip bool
	// Session state shared with the page. A fresh unauthenticated state is used if nil.
	Session *session.State
	// Durable queue for actions made offline. Background sync is a no-op without it.
	Queue *offlinequeue.Queue
	// Metrics to record to. Nothing is recorded if nil.
	Metrics *Metrics
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Transport for network requests. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
}

// Worker is the caching proxy. It intercepts same-origin GET requests once it
// controls the scope (after activation) and answers them through one of the
// caching strategies. Everything else goes to the network untouched.
type Worker struct {
	storage        cache.Storage
	scope          *url.URL
	upstream       *url.URL
	upstreamHost   string
	names          route.Names
	keyer          cachekey.CacheKeyer
	offlinePage    string
	appShell       []string
	networkTimeout time.Duration
	waitForSkip    bool
	session        *session.State
	queue          *offlinequeue.Queue
	metrics        *Metrics
	log            zerolog.Logger
	client         *http.Client
	reverseproxy   httputil.ReverseProxy
	jobs           *background
	// held exclusively while logging out and purging, shared by background writes
	purgeMu        sync.RWMutex
	lifecycle      lifecycle
	controlling    atomic.Bool
	now            func() time.Time
}

// CreateWorker sets up the worker. It does not install it; call Register for that.
func CreateWorker(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	scope := config.Scope
	upstream := &scope
	if config.Upstream != nil {
		upstream = config.Upstream
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("scope", scope.String()).
		Logger()

	w := &Worker{
		storage:        config.Storage,
		scope:          &scope,
		upstream:       upstream,
		upstreamHost:   config.UpstreamHost,
		names:          route.NewNames(orDefault(config.Version, DefaultVersion)),
		keyer:          cachekey.NewCacheKeyer(&scope),
		offlinePage:    orDefault(config.OfflinePage, DefaultOfflinePage),
		appShell:       config.AppShell,
		networkTimeout: config.NetworkTimeout,
		waitForSkip:    config.WaitForSkip,
		session:        config.Session,
		queue:          config.Queue,
		metrics:        config.Metrics,
		log:            logger,
		jobs:           newBackground(logger),
		now:            time.Now,
	}
	if w.storage == nil {
		w.storage = cache.NewMemStorage()
	}
	if w.session == nil {
		w.session = session.New()
	}
	if w.networkTimeout <= 0 {
		w.networkTimeout = DefaultNetworkTimeout
	}

	transport := config.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	// use provided hostname for upstream if configured
	if config.UpstreamHost != "" && config.Transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: config.UpstreamHost,
			},
		}
	}
	w.client = &http.Client{
		Transport: transport,
		// do not follow redirects, the page does that
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	w.reverseproxy = httputil.ReverseProxy{
		Director:  w.direct,
		Transport: transport,
		ErrorHandler: func(rw http.ResponseWriter, r *http.Request, err error) {
			w.log.Warn().Err(err).Str("url", r.URL.String()).Msg("Pass-through request failed")
			rw.WriteHeader(http.StatusBadGateway)
		},
	}

	return w
}

// Close abandons background jobs and releases nothing else; storage and queue
// belong to the caller.
func (w *Worker) Close() {
	w.jobs.Stop()
}

// Settle waits for the background jobs started so far to finish.
func (w *Worker) Settle() {
	w.jobs.Wait()
}

// Names returns the current partition names.
func (w *Worker) Names() route.Names {
	return w.names
}

// ServeHTTP implements the http.Handler interface.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.log.Trace().Str("method", r.Method).Str("url", r.URL.String()).Msg("Incoming request")

	if !w.controlling.Load() {
		w.passThrough(rw, r, rfc9211.FwdReasonBypass)
		return
	}
	decision := route.Classify(r.Method, w.keyer.AbsoluteURL(r), w.scope)
	if decision.Strategy == route.PassThrough {
		reason := rfc9211.FwdReasonBypass
		if r.Method != http.MethodGet {
			reason = rfc9211.FwdReasonMethod
		}
		w.passThrough(rw, r, reason)
		return
	}

	res := w.respond(r, decision)
	send(rw, res)
}

// respond answers the request with the strategy of the decision.
// It always returns a response.
func (w *Worker) respond(r *http.Request, decision route.Decision) *http.Response {
	// responses fetched for this request are only stored while the session generation holds
	gen := w.session.Generation()
	switch decision.Strategy {
	case route.NetworkFirst:
		return w.networkFirst(r, gen)
	case route.CacheFirst:
		return w.cacheFirst(r, decision.Partition, gen)
	case route.StaleWhileRevalidate:
		return w.staleWhileRevalidate(r, gen)
	}
	res, err := w.fetch(r.Context(), r)
	if err != nil {
		return w.synthetic(r, http.StatusBadGateway)
	}
	return res.Response(r)
}

// passThrough sends the request to the network as is.
func (w *Worker) passThrough(rw http.ResponseWriter, r *http.Request, reason rfc9211.FwdReason) {
	cs := rfc9211.CacheStatus{}
	cs.Forward(reason)
	rw.Header().Add(rfc9211.HeaderName, cs.String())

	rwtee := tee.NewResponseSaver(rw)
	w.reverseproxy.ServeHTTP(rwtee, r)

	w.metrics.observeResponse(route.PassThrough.String(), "network")
	w.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("fwd", string(reason)).
		Int("status", rwtee.StatusCode()).
		Int64("bytes", rwtee.BytesWritten()).
		Dur("duration", rwtee.Duration()).
		Msg("Passed through")
}

// direct points requests for the scope at the upstream.
// Cross-origin requests keep their own host.
func (w *Worker) direct(req *http.Request) {
	if req.URL.Host == "" || route.SameOrigin(req.URL, w.scope) {
		req.URL.Scheme = w.upstream.Scheme
		req.URL.Host = w.upstream.Host
		req.Host = w.upstream.Host
		if w.upstreamHost != "" {
			req.Host = w.upstreamHost
		}
	}
}

func send(rw http.ResponseWriter, res *http.Response) {
	defer res.Body.Close()
	copyHeader(rw.Header(), res.Header)
	rw.WriteHeader(res.StatusCode)
	io.Copy(rw, res.Body)
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a warkaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

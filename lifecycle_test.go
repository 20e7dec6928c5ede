package offlinecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/always-cache/offline-cache/pkg/route"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appShellOrigin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/offline.html", "/manifest.json", "/icon.png":
			w.Write([]byte("shell " + r.URL.Path))
		default:
			http.NotFound(w, r)
		}
	}
}

func TestRegisterInstallsAndActivates(t *testing.T) {
	tw := newTestWorker(t, appShellOrigin(), func(c *Config) {
		c.AppShell = []string{"/", "/offline.html", "/manifest.json", "/icon.png"}
	})
	assert.Equal(t, StateParsed, tw.State())

	require.NoError(t, tw.Register(context.Background()))
	assert.Equal(t, StateActivated, tw.State())
	assert.True(t, tw.controlling.Load())

	for _, path := range []string{"/", "/offline.html", "/manifest.json", "/icon.png"} {
		body, ok := tw.cached(t, route.Static, path)
		assert.True(t, ok, path)
		assert.Equal(t, "shell "+path, body)
	}
}

func TestInstallIsAllOrNothing(t *testing.T) {
	tw := newTestWorker(t, appShellOrigin(), func(c *Config) {
		c.AppShell = []string{"/", "/offline.html", "/missing.css"}
	})

	err := tw.Register(context.Background())
	assert.ErrorContains(t, err, "status 404")
	assert.Equal(t, StateRedundant, tw.State())
	assert.False(t, tw.controlling.Load())

	_, ok := tw.cached(t, route.Static, "/")
	assert.False(t, ok)
	_, ok = tw.cached(t, route.Static, "/offline.html")
	assert.False(t, ok)

	assert.ErrorIs(t, tw.Activate(context.Background()), ErrNotInstalled)
}

func TestInstallFailsOffline(t *testing.T) {
	tw := newTestWorker(t, appShellOrigin(), func(c *Config) {
		c.AppShell = []string{"/"}
	})
	tw.transport.offline.Store(true)
	assert.Error(t, tw.Register(context.Background()))
	assert.Equal(t, StateRedundant, tw.State())

	// a later registration may succeed
	tw.transport.offline.Store(false)
	require.NoError(t, tw.Register(context.Background()))
	assert.Equal(t, StateActivated, tw.State())
}

func TestActivateSweepsOldVersions(t *testing.T) {
	tw := newTestWorker(t, appShellOrigin())
	for _, name := range []string{"static-v1", "dynamic-v1", "learning-v1", "static-v2", "dynamic-v2"} {
		_, err := tw.storage.Open(name)
		require.NoError(t, err)
	}

	require.NoError(t, tw.Register(context.Background()))

	names, err := tw.storage.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"dynamic-v2", "static-v2"}, names)
}

func TestWaitForSkip(t *testing.T) {
	tw := newTestWorker(t, appShellOrigin(), func(c *Config) {
		c.WaitForSkip = true
	})

	require.NoError(t, tw.Register(context.Background()))
	assert.Equal(t, StateInstalled, tw.State())
	assert.False(t, tw.controlling.Load())

	require.NoError(t, tw.Dispatch(context.Background(), SkipWaiting{}))
	assert.Equal(t, StateActivated, tw.State())
	assert.True(t, tw.controlling.Load())
}

func TestSkipWaitingBeforeInstall(t *testing.T) {
	tw := newTestWorker(t, appShellOrigin(), func(c *Config) {
		c.WaitForSkip = true
	})

	require.NoError(t, tw.SkipWaiting(context.Background()))
	assert.Equal(t, StateParsed, tw.State())

	require.NoError(t, tw.Register(context.Background()))
	assert.Equal(t, StateActivated, tw.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "installed", StateInstalled.String())
	assert.Equal(t, "redundant", StateRedundant.String())
}

func TestStatusDuringInstall(t *testing.T) {
	release := make(chan struct{})
	var once sync.Once
	unblock := func() { once.Do(func() { close(release) }) }
	t.Cleanup(unblock)

	tw := newTestWorker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.Write([]byte("shell"))
	}), func(c *Config) {
		c.AppShell = []string{"/"}
	})
	router := NewRouter(tw.Worker)

	done := make(chan error, 1)
	go func() { done <- tw.Register(context.Background()) }()
	assert.Eventually(t, func() bool { return tw.State() == StateInstalling }, time.Second, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ControlPrefix+"/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"installing"`)

	assert.ErrorIs(t, tw.Install(context.Background()), ErrInstalling)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, ControlPrefix+"/register", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)

	unblock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Register did not return")
	}
	assert.Equal(t, StateActivated, tw.State())
}

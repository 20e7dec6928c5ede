package offlinecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	offlinequeue "github.com/always-cache/offline-cache/pkg/offline-queue"
	"github.com/always-cache/offline-cache/pkg/route"
)

var (
	// ErrUnknownMessage is returned for messages of a type the worker does not handle.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrCrossOrigin is returned for message URLs outside the scope.
	ErrCrossOrigin = errors.New("URL is not in scope")
)

const (
	TypeSkipWaiting          = "SKIP_WAITING"
	TypeCacheLearningContent = "CACHE_LEARNING_CONTENT"
	TypeAuthStateChanged     = "AUTH_STATE_CHANGED"
	TypeClearCache           = "CLEAR_CACHE"
	TypeQueueOfflineAction   = "QUEUE_OFFLINE_ACTION"
)

// Message is a control message sent by the page.
// The set of variants is closed; Dispatch handles each of them.
type Message interface {
	Type() string
	isMessage()
}

type SkipWaiting struct{}

type LearningItem struct {
	URL string `json:"url"`
}

// CacheLearningContent pins the listed URLs into the learning partition.
type CacheLearningContent struct {
	Content []LearningItem
}

// AuthStateChanged reports a login or logout of the page.
// ExpiresAt is in seconds since the epoch.
type AuthStateChanged struct {
	Authenticated bool
	ExpiresAt     *float64
}

type ClearCache struct{}

// QueueOfflineAction records a request the page could not send while offline.
type QueueOfflineAction struct {
	Method string
	URL    string
	Header map[string]string
	Body   string
}

func (SkipWaiting) Type() string          { return TypeSkipWaiting }
func (CacheLearningContent) Type() string { return TypeCacheLearningContent }
func (AuthStateChanged) Type() string     { return TypeAuthStateChanged }
func (ClearCache) Type() string           { return TypeClearCache }
func (QueueOfflineAction) Type() string   { return TypeQueueOfflineAction }

func (SkipWaiting) isMessage()          {}
func (CacheLearningContent) isMessage() {}
func (AuthStateChanged) isMessage()     {}
func (ClearCache) isMessage()           {}
func (QueueOfflineAction) isMessage()   {}

type authPayload struct {
	IsAuthenticated *bool    `json:"isAuthenticated"`
	ExpiresAt       *float64 `json:"expiresAt"`
}

type actionPayload struct {
	Method string            `json:"method"`
	URL    string            `json:"url"`
	Header map[string]string `json:"headers"`
	Body   string            `json:"body"`
}

type envelope struct {
	Type          string         `json:"type"`
	Content       []LearningItem `json:"content"`
	Authenticated *bool          `json:"authenticated"`
	ExpiresAt     *float64       `json:"expiresAt"`
	Payload       *authPayload   `json:"payload"`
	Action        *actionPayload `json:"action"`
}

// DecodeMessage parses a JSON control message.
// AUTH_STATE_CHANGED may carry its fields flat or nested in `payload`;
// flat fields take precedence.
func DecodeMessage(b []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch env.Type {
	case TypeSkipWaiting:
		return SkipWaiting{}, nil
	case TypeCacheLearningContent:
		return CacheLearningContent{Content: env.Content}, nil
	case TypeAuthStateChanged:
		msg := AuthStateChanged{ExpiresAt: env.ExpiresAt}
		if env.Authenticated != nil {
			msg.Authenticated = *env.Authenticated
		} else if env.Payload != nil && env.Payload.IsAuthenticated != nil {
			msg.Authenticated = *env.Payload.IsAuthenticated
		}
		if msg.ExpiresAt == nil && env.Payload != nil {
			msg.ExpiresAt = env.Payload.ExpiresAt
		}
		return msg, nil
	case TypeClearCache:
		return ClearCache{}, nil
	case TypeQueueOfflineAction:
		if env.Action == nil {
			return nil, fmt.Errorf("decode message: %s without action", env.Type)
		}
		return QueueOfflineAction{
			Method: env.Action.Method,
			URL:    env.Action.URL,
			Header: env.Action.Header,
			Body:   env.Action.Body,
		}, nil
	}
	return nil, fmt.Errorf("decode message %q: %w", env.Type, ErrUnknownMessage)
}

// Dispatch applies the message to the worker.
func (w *Worker) Dispatch(ctx context.Context, msg Message) error {
	if msg == nil {
		return ErrUnknownMessage
	}
	w.log.Debug().Str("type", msg.Type()).Msg("Message received")

	switch m := msg.(type) {
	case SkipWaiting:
		return w.SkipWaiting(ctx)
	case CacheLearningContent:
		w.cacheLearningContent(ctx, m.Content)
		return nil
	case AuthStateChanged:
		_, err := w.authStateChanged(ctx, m)
		return err
	case ClearCache:
		return w.ClearCache()
	case QueueOfflineAction:
		_, err := w.queueOfflineAction(m)
		return err
	}
	return fmt.Errorf("dispatch %T: %w", msg, ErrUnknownMessage)
}

// cacheLearningContent stores each URL in the learning partition.
// Failures are logged and skipped.
func (w *Worker) cacheLearningContent(ctx context.Context, items []LearningItem) {
	stored := 0
	for _, item := range items {
		log := w.log.With().Str("url", item.URL).Logger()
		u, err := w.keyer.Resolve(item.URL)
		if err != nil {
			log.Warn().Err(err).Msg("Invalid learning content URL")
			continue
		}
		if !route.SameOrigin(u, w.scope) {
			log.Warn().Err(ErrCrossOrigin).Msg("Skipping learning content")
			continue
		}
		res, err := w.fetchURL(ctx, u, nil)
		if err != nil {
			log.Warn().Err(err).Msg("Could not fetch learning content")
			continue
		}
		if !res.OK() {
			log.Warn().Int("status", res.StatusCode).Msg("Learning content not cached")
			continue
		}
		key := http.MethodGet + ":" + u.String()
		if err := w.put(route.Learning, http.MethodGet, key, u.String(), res); err != nil {
			w.metrics.observeStoreFailure(w.names.Learning)
			log.Warn().Err(err).Msg("Could not store learning content")
			continue
		}
		stored++
	}
	w.log.Debug().Int("requested", len(items)).Int("stored", stored).Msg("Learning content cached")
}

// authStateChanged updates the session. Anything but an authenticated session with
// an expiry logs the session out and purges authenticated entries. An expiry of zero
// or less counts as no expiry.
// It returns the number of purged entries.
func (w *Worker) authStateChanged(ctx context.Context, m AuthStateChanged) (int, error) {
	if m.Authenticated && m.ExpiresAt != nil && *m.ExpiresAt > 0 {
		expiresAt := time.UnixMilli(int64(*m.ExpiresAt * 1000))
		w.session.Login(expiresAt)
		w.log.Debug().Time("expiresAt", expiresAt).Msg("Session authenticated")
		return 0, nil
	}
	w.purgeMu.Lock()
	defer w.purgeMu.Unlock()
	w.session.Logout()
	w.log.Debug().Msg("Session ended, purging authenticated entries")
	return w.PurgeAuthenticated(ctx)
}

// ClearCache deletes all three partitions.
func (w *Worker) ClearCache() error {
	var errs []error
	for _, name := range w.names.All() {
		if _, err := w.storage.Delete(name); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", name, err))
		}
	}
	w.log.Info().Msg("Cache cleared")
	return errors.Join(errs...)
}

func (w *Worker) queueOfflineAction(m QueueOfflineAction) (offlinequeue.Action, error) {
	if w.queue == nil {
		return offlinequeue.Action{}, errors.New("no offline queue configured")
	}
	u, err := w.keyer.Resolve(m.URL)
	if err != nil {
		return offlinequeue.Action{}, err
	}
	if !route.SameOrigin(u, w.scope) {
		return offlinequeue.Action{}, fmt.Errorf("queue offline action %s: %w", u, ErrCrossOrigin)
	}
	header := http.Header{}
	for k, v := range m.Header {
		header.Set(k, v)
	}
	a, err := w.queue.Enqueue(offlinequeue.Action{
		Method: m.Method,
		URL:    u.String(),
		Header: header,
		Body:   []byte(m.Body),
	})
	if err != nil {
		return offlinequeue.Action{}, fmt.Errorf("queue offline action: %w", err)
	}
	w.log.Debug().Str("id", a.ID).Str("method", a.Method).Str("url", a.URL).Msg("Offline action queued")
	return a, nil
}

// Package offlinequeue persists requests made while offline so they can be replayed
// on the next background sync. The queue lives in a LevelDB directory and survives
// restarts of the worker.
package offlinequeue

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var ErrNotFound = errors.New("action not found")

const (
	actionPrefix = "a:"
	indexPrefix  = "i:"
)

// Action is a user request recorded while the network was unavailable.
type Action struct {
	ID       string
	Method   string
	URL      string
	Header   http.Header
	Body     []byte
	QueuedAt time.Time
}

type Queue struct {
	db *leveldb.DB

	mu  sync.Mutex
	seq uint64
}

// Open opens (or creates) the queue stored in dir.
func Open(dir string) (*Queue, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("open offline queue: %w", err)
	}
	return &Queue{db: db}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue stores the action, assigning an id and a queue time when missing.
func (q *Queue) Enqueue(a Action) (Action, error) {
	if a.Method == "" || a.URL == "" {
		return Action{}, errors.New("action needs a method and a URL")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.QueuedAt.IsZero() {
		a.QueuedAt = time.Now()
	}
	b, err := encodeGob(a)
	if err != nil {
		return Action{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	// keys sort in enqueue order
	key := fmt.Sprintf("%s%020d:%06d:%s", actionPrefix, a.QueuedAt.UnixNano(), q.seq%1000000, a.ID)
	batch := new(leveldb.Batch)
	batch.Put([]byte(key), b)
	batch.Put([]byte(indexPrefix+a.ID), []byte(key))
	if err := q.db.Write(batch, nil); err != nil {
		return Action{}, err
	}
	return a, nil
}

// Pending returns all queued actions, oldest first.
func (q *Queue) Pending() ([]Action, error) {
	it := q.db.NewIterator(util.BytesPrefix([]byte(actionPrefix)), nil)
	defer it.Release()

	actions := make([]Action, 0)
	for it.Next() {
		var a Action
		if err := decodeGob(it.Value(), &a); err != nil {
			continue
		}
		actions = append(actions, a)
	}
	return actions, it.Error()
}

// Remove deletes the action with the given id.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	key, err := q.db.Get([]byte(indexPrefix+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Delete(key)
	batch.Delete([]byte(indexPrefix + id))
	return q.db.Write(batch, nil)
}

func encodeGob(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}

package cache

import (
	"errors"
	"net/http"
	"time"
)

var (
	// ErrNotCacheable is returned when storing an entry for a request method other than GET.
	ErrNotCacheable = errors.New("only GET responses may be cached")
	// ErrInvalidName is returned when opening a partition with an empty name.
	ErrInvalidName = errors.New("partition name must not be empty")
)

// Storage holds named cache partitions.
// Bumping the version suffix of a partition name is the only invalidation mechanism
// for whole partitions; stale names are removed with Sweep.
//
// Implementations must be thread-safe!
type Storage interface {
	// Open returns the partition with the given name, creating it if absent.
	Open(name string) (Partition, error)
	// Has reports whether a partition with the given name exists.
	Has(name string) (bool, error)
	// Delete removes the partition and all of its entries.
	// It reports whether the partition existed.
	Delete(name string) (bool, error)
	// Names lists all partitions that exist in storage.
	Names() ([]string, error)
	// Close releases the underlying resources.
	Close() error
}

// Partition is a named store of request key -> response entries.
// Entries are only ever replaced as a whole.
type Partition interface {
	Name() string
	// Match returns the entry stored under key, if any.
	Match(key string) (Entry, bool, error)
	// Put stores (or replaces) the entry. Non-GET entries are rejected with ErrNotCacheable.
	Put(Entry) error
	// Delete removes the entry stored under key, reporting whether it existed.
	Delete(key string) (bool, error)
	// Entries returns all entries of the partition.
	Entries() ([]Entry, error)
}

type Entry struct {
	Key      string
	Method   string
	URL      string
	StoredAt time.Time
	// HTTP/1.1 representation of the stored response
	Bytes []byte
}

func checkEntry(e Entry) error {
	if e.Method != http.MethodGet {
		return ErrNotCacheable
	}
	return nil
}

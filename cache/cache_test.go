package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storages returns one instance of every provider, each backed by fresh state.
func storages(t *testing.T) map[string]Storage {
	t.Helper()
	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Storage{
		"memory": NewMemStorage(),
		"sqlite": sqlite,
	}
}

func entry(url string) Entry {
	return Entry{
		Key:      "GET:" + url,
		Method:   "GET",
		URL:      url,
		StoredAt: time.Unix(1700000000, 0),
		Bytes:    []byte("HTTP/1.1 200 OK\r\n\r\n" + url),
	}
}

func TestPartitionPutMatchDelete(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			p, err := s.Open("dynamic-v2")
			require.NoError(t, err)
			assert.Equal(t, "dynamic-v2", p.Name())

			_, ok, err := p.Match("GET:https://app.example/a")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, p.Put(entry("https://app.example/a")))
			got, ok, err := p.Match("GET:https://app.example/a")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "https://app.example/a", got.URL)
			assert.Equal(t, []byte("HTTP/1.1 200 OK\r\n\r\nhttps://app.example/a"), got.Bytes)
			assert.Equal(t, int64(1700000000), got.StoredAt.Unix())

			replaced := entry("https://app.example/a")
			replaced.Bytes = []byte("new")
			require.NoError(t, p.Put(replaced))
			got, _, _ = p.Match("GET:https://app.example/a")
			assert.Equal(t, []byte("new"), got.Bytes)

			existed, err := p.Delete("GET:https://app.example/a")
			require.NoError(t, err)
			assert.True(t, existed)
			existed, err = p.Delete("GET:https://app.example/a")
			require.NoError(t, err)
			assert.False(t, existed)
		})
	}
}

func TestPartitionRejectsNonGet(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			p, err := s.Open("dynamic-v2")
			require.NoError(t, err)
			e := entry("https://app.example/api/lessons")
			e.Method = "POST"
			err = p.Put(e)
			assert.True(t, errors.Is(err, ErrNotCacheable))
			entries, err := p.Entries()
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestOpenEmptyName(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Open("")
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestPartitionsAreIndependent(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			static, _ := s.Open("static-v2")
			learning, _ := s.Open("learning-v2")
			require.NoError(t, static.Put(entry("https://app.example/app.js")))

			_, ok, err := learning.Match("GET:https://app.example/app.js")
			require.NoError(t, err)
			assert.False(t, ok)

			names, err := s.Names()
			require.NoError(t, err)
			assert.Equal(t, []string{"learning-v2", "static-v2"}, names)
		})
	}
}

func TestDeletePartitionDropsEntries(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			p, _ := s.Open("dynamic-v2")
			require.NoError(t, p.Put(entry("https://app.example/a")))

			existed, err := s.Delete("dynamic-v2")
			require.NoError(t, err)
			assert.True(t, existed)
			has, err := s.Has("dynamic-v2")
			require.NoError(t, err)
			assert.False(t, has)

			// a put through a handle of a deleted partition is lost
			require.NoError(t, p.Put(entry("https://app.example/b")))
			reopened, _ := s.Open("dynamic-v2")
			entries, err := reopened.Entries()
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestSweepDeletesOnlyStaleNames(t *testing.T) {
	for name, s := range storages(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []string{"static-v1", "static-v2", "dynamic-v2"} {
				_, err := s.Open(n)
				require.NoError(t, err)
			}
			allow := []string{"static-v2", "dynamic-v2", "learning-v2"}

			deleted, err := Sweep(s, allow, zerolog.Nop())
			require.NoError(t, err)
			assert.Equal(t, []string{"static-v1"}, deleted)

			names, _ := s.Names()
			assert.Equal(t, []string{"dynamic-v2", "static-v2"}, names)

			deleted, err = Sweep(s, allow, zerolog.Nop())
			require.NoError(t, err)
			assert.Empty(t, deleted)
		})
	}
}

type failingStorage struct {
	Storage
	fail string
}

func (f failingStorage) Delete(name string) (bool, error) {
	if name == f.fail {
		return false, errors.New("quota exceeded")
	}
	return f.Storage.Delete(name)
}

func TestSweepContinuesAfterDeleteFailure(t *testing.T) {
	mem := NewMemStorage()
	for _, n := range []string{"a-v1", "b-v1", "c-v2"} {
		mem.Open(n)
	}
	deleted, err := Sweep(failingStorage{Storage: mem, fail: "a-v1"}, []string{"c-v2"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"b-v1"}, deleted)
	names, _ := mem.Names()
	assert.Equal(t, []string{"a-v1", "c-v2"}, names)
}

func TestSQLiteStoragePersists(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "persist.db")
	s, err := NewSQLiteStorage(filename)
	require.NoError(t, err)
	p, _ := s.Open("learning-v2")
	require.NoError(t, p.Put(entry("https://app.example/modules/algebra.json")))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(filename)
	require.NoError(t, err)
	defer s.Close()
	p, _ = s.Open("learning-v2")
	_, ok, err := p.Match("GET:https://app.example/modules/algebra.json")
	require.NoError(t, err)
	assert.True(t, ok)
}

package cache

import (
	"sort"
	"sync"
)

// MemStorage keeps partitions in process memory. Contents are lost on restart.
type MemStorage struct {
	mutex      *sync.RWMutex
	partitions map[string]map[string]Entry
}

func NewMemStorage() *MemStorage {
	return &MemStorage{
		mutex:      &sync.RWMutex{},
		partitions: make(map[string]map[string]Entry),
	}
}

func (m *MemStorage) Open(name string) (Partition, error) {
	if name == "" {
		return nil, ErrInvalidName
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.partitions[name]; !ok {
		m.partitions[name] = make(map[string]Entry)
	}
	return &memPartition{m: m, name: name}, nil
}

func (m *MemStorage) Has(name string) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.partitions[name]
	return ok, nil
}

func (m *MemStorage) Delete(name string) (bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, ok := m.partitions[name]
	delete(m.partitions, name)
	return ok, nil
}

func (m *MemStorage) Names() ([]string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	names := make([]string, 0, len(m.partitions))
	for name := range m.partitions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemStorage) Close() error {
	return nil
}

type memPartition struct {
	m    *MemStorage
	name string
}

func (p *memPartition) Name() string {
	return p.name
}

func (p *memPartition) Match(key string) (Entry, bool, error) {
	p.m.mutex.RLock()
	defer p.m.mutex.RUnlock()
	entry, ok := p.m.partitions[p.name][key]
	return entry, ok, nil
}

func (p *memPartition) Put(e Entry) error {
	if err := checkEntry(e); err != nil {
		return err
	}
	p.m.mutex.Lock()
	defer p.m.mutex.Unlock()
	entries, ok := p.m.partitions[p.name]
	if !ok {
		// partition was deleted after it was opened
		return nil
	}
	entries[e.Key] = e
	return nil
}

func (p *memPartition) Delete(key string) (bool, error) {
	p.m.mutex.Lock()
	defer p.m.mutex.Unlock()
	entries := p.m.partitions[p.name]
	_, ok := entries[key]
	delete(entries, key)
	return ok, nil
}

func (p *memPartition) Entries() ([]Entry, error) {
	p.m.mutex.RLock()
	defer p.m.mutex.RUnlock()
	entries := make([]Entry, 0, len(p.m.partitions[p.name]))
	for _, e := range p.m.partitions[p.name] {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

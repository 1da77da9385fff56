package checkpoint

import (
	"slices"
	"strings"
	"sync"
)

type key struct {
	tag, label string
}

// MemoryBackend keeps records in memory for the lifetime of the process.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[key]*Record
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[key]*Record)}
}

func (m *MemoryBackend) Load(tag, label string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key{tag, label}]
	if !ok {
		return nil, ErrNotFound
	}

	return copyRecord(rec), nil
}

func (m *MemoryBackend) Save(rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key{rec.Tag, rec.Label}] = copyRecord(rec)

	return nil
}

func (m *MemoryBackend) Delete(tag, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[key{tag, label}]; !ok {
		return ErrNotFound
	}
	delete(m.records, key{tag, label})

	return nil
}

func (m *MemoryBackend) List(tag string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for k, rec := range m.records {
		if k.tag == tag {
			out = append(out, copyRecord(rec))
		}
	}
	sortRecords(out)

	return out, nil
}

func (m *MemoryBackend) Clear(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k := range m.records {
		if k.tag == tag {
			delete(m.records, k)
		}
	}

	return nil
}

func copyRecord(rec *Record) *Record {
	out := *rec
	out.Snapshot = slices.Clone(rec.Snapshot)
	if rec.DebugScore != nil {
		score := *rec.DebugScore
		out.DebugScore = &score
	}

	return &out
}

func sortRecords(recs []*Record) {
	slices.SortFunc(recs, func(a, b *Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Label, b.Label)
	})
}

var _ Backend = (*MemoryBackend)(nil)

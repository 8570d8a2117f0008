package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore is safe for concurrent use. It assigns IDs and timestamps the
// same way the SQL store does. When capacity is positive, only the most
// recent capacity records are retained; older ones are evicted on insert.
//
// labwatch uses a bounded MemoryStore to mirror recently committed records
// for the status server, so that HTTP requests never touch the database
// connection owned by the poller.
type MemoryStore struct {
	mu       sync.RWMutex
	records  []Record
	nextID   int64
	capacity int
	now      func() time.Time
}

// NewMemoryStore creates a new in-memory [Store]. A capacity of zero or less
// means unbounded.
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Insert implements [Recorder.Insert]. The stored copy is independent of r.
func (m *MemoryStore) Insert(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	} else {
		r.CreatedAt = r.CreatedAt.UTC()
	}
	if r.ID == 0 {
		r.ID = m.nextID
	}
	if r.ID >= m.nextID {
		m.nextID = r.ID + 1
	}

	m.records = append(m.records, *r)
	if m.capacity > 0 && len(m.records) > m.capacity {
		m.records = append([]Record(nil), m.records[len(m.records)-m.capacity:]...)
	}
	return nil
}

// List implements [Reader.List].
func (m *MemoryStore) List(ctx context.Context, filter Filter, fn func(Record) error) error {
	m.mu.RLock()
	matched := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		if filter.Match(r) {
			r.Responses = Responses{}
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	for _, r := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Responses implements [Reader.Responses].
func (m *MemoryStore) Responses(_ context.Context, ids []int64) (map[int64]Responses, error) {
	wanted := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[int64]Responses, len(ids))
	for _, r := range m.records {
		if _, ok := wanted[r.ID]; ok {
			result[r.ID] = r.Responses
		}
	}
	return result, nil
}

// Recent implements [Reader.Recent].
func (m *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	all := make([]Record, len(m.records))
	copy(all, m.records)
	m.mu.RUnlock()

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})

	if limit < 0 {
		limit = 0
	}
	if limit < len(all) {
		all = all[:limit]
	}
	for i := range all {
		all[i].Responses = Responses{}
	}
	return all, nil
}

// Len returns the number of records currently held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// Close is a no-op; it exists to satisfy [Store].
func (m *MemoryStore) Close() error {
	return nil
}

package tokenstore

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record), now: time.Now}
}

func (m *Memory) Read(ctx context.Context, accountID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[accountID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Write stores rec, stamping UpdatedAt. An empty RefreshToken keeps the existing one,
// since token endpoints usually omit it on refresh.
func (m *Memory) Write(ctx context.Context, accountID string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.RefreshToken == "" {
		rec.RefreshToken = m.records[accountID].RefreshToken
	}
	rec.UpdatedAt = m.now().UTC()
	m.records[accountID] = rec
	return nil
}

func (m *Memory) Delete(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[accountID]; !ok {
		return ErrNotFound
	}
	delete(m.records, accountID)
	return nil
}

// Len returns the number of stored accounts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

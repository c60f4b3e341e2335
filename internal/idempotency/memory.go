package idempotency

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process claim store with the same claim rules as Store.
type Memory struct {
	mu      sync.Mutex
	records map[string]ClaimRecord
	lease   time.Duration
	nowFunc func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory(lease time.Duration) *Memory {
	return &Memory{records: map[string]ClaimRecord{}, lease: lease, nowFunc: time.Now}
}

func (m *Memory) Claim(ctx context.Context, key, orderID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	if rec, ok := m.records[key]; ok {
		expired := rec.Status == StatusInProgress && rec.LeaseUntil < now.Unix()
		if rec.Status != StatusFailed && !expired {
			return false, nil
		}
	}
	m.records[key] = ClaimRecord{
		ClaimKey:   key,
		Status:     StatusInProgress,
		OrderID:    orderID,
		LeaseUntil: now.Add(m.lease).Unix(),
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(retention).Unix(),
	}
	return true, nil
}

func (m *Memory) Get(ctx context.Context, key string) (*ClaimRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) MarkDone(ctx context.Context, key, purchaseID string) error {
	return m.set(key, func(rec *ClaimRecord) {
		rec.Status = StatusDone
		rec.PurchaseID = purchaseID
	})
}

func (m *Memory) MarkFailed(ctx context.Context, key, note string) error {
	return m.set(key, func(rec *ClaimRecord) {
		rec.Status = StatusFailed
		rec.Note = note
	})
}

func (m *Memory) set(key string, fn func(*ClaimRecord)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[key]
	rec.ClaimKey = key
	fn(&rec)
	rec.UpdatedAt = m.nowFunc()
	m.records[key] = rec
	return nil
}

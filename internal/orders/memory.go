package orders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process order store with the same conditional semantics as Store.
type Memory struct {
	mu      sync.Mutex
	orders  map[string]Order
	nowFunc func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{orders: map[string]Order{}, nowFunc: time.Now}
}

func clone(o Order) Order {
	o.Items = append([]LineItem(nil), o.Items...)
	o.CouponCodes = append([]string(nil), o.CouponCodes...)
	o.Notes = append([]Note(nil), o.Notes...)
	return o
}

func (m *Memory) Create(ctx context.Context, order Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.OrderID]; ok {
		return ErrOrderExists
	}
	now := m.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	m.orders[order.OrderID] = clone(order)
	return nil
}

func (m *Memory) Get(ctx context.Context, orderID string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(o)
	return &c, nil
}

// update applies fn to an existing order under the lock.
func (m *Memory) update(orderID string, fn func(o *Order) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	if err := fn(&o); err != nil {
		return err
	}
	o.UpdatedAt = m.nowFunc()
	m.orders[orderID] = o
	return nil
}

func (m *Memory) UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	err := m.update(orderID, func(o *Order) error {
		if o.Status != expectedStatus {
			return ErrStatusMismatch
		}
		o.Status = newStatus
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrStatusMismatch
	}
	return err
}

func (m *Memory) MarkOptInProcessed(ctx context.Context, orderID string) error {
	return m.update(orderID, func(o *Order) error {
		o.OptInProcessed = true
		return nil
	})
}

func (m *Memory) MarkPurchaseSent(ctx context.Context, orderID, purchaseID string) error {
	err := m.update(orderID, func(o *Order) error {
		if o.PurchaseDataSent {
			return ErrPurchaseMarked
		}
		o.PurchaseDataSent = true
		if purchaseID != "" {
			o.PurchaseDataID = purchaseID
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return ErrPurchaseMarked
	}
	return err
}

func (m *Memory) AddNote(ctx context.Context, orderID, message string) error {
	return m.update(orderID, func(o *Order) error {
		o.Notes = append(o.Notes, Note{Message: message, CreatedAt: m.nowFunc()})
		return nil
	})
}

func (m *Memory) IncrementPurchaseAttempts(ctx context.Context, orderID string) error {
	return m.update(orderID, func(o *Order) error {
		o.PurchaseAttempts++
		return nil
	})
}

func (m *Memory) ListAwaitingPurchase(ctx context.Context, statuses []string, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, status := range statuses {
		var page []Order
		for _, o := range m.orders {
			if o.Status == status && !o.PurchaseDataSent {
				page = append(page, clone(o))
			}
		}
		sort.Slice(page, func(i, j int) bool {
			if !page[i].CreatedAt.Equal(page[j].CreatedAt) {
				return page[i].CreatedAt.Before(page[j].CreatedAt)
			}
			return page[i].OrderID < page[j].OrderID
		})
		for _, o := range page {
			out = append(out, o)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

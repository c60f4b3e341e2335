// Package catalog stores product and coupon level subscription overrides.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
)

// OptionStore is the key/value store overrides are kept in.
type OptionStore interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// Store reads and writes overrides as "product_subscription:<id>" and
// "coupon_subscription:<code>" options holding a target string.
type Store struct {
	opts OptionStore
}

// NewStore returns a catalog Store backed by opts.
func NewStore(opts OptionStore) *Store {
	return &Store{opts: opts}
}

func productKey(productID string) string { return "product_subscription:" + productID }

// Coupon codes are case-insensitive on the commerce platform.
func couponKey(code string) string {
	return "coupon_subscription:" + strings.ToLower(strings.TrimSpace(code))
}

func (s *Store) target(ctx context.Context, key string) (crm.Target, error) {
	var raw string
	found, err := s.opts.Get(ctx, key, &raw)
	if err != nil {
		return crm.Target{}, fmt.Errorf("get %s: %w", key, err)
	}
	if !found {
		return crm.Target{}, nil
	}
	t, err := crm.ParseTarget(raw)
	if err != nil {
		return crm.Target{}, fmt.Errorf("parse %s: %w", key, err)
	}
	return t, nil
}

func (s *Store) put(ctx context.Context, key, target string) error {
	t, err := crm.ParseTarget(target)
	if err != nil {
		return err
	}
	if t.IsZero() {
		return s.opts.Delete(ctx, key)
	}
	return s.opts.Put(ctx, key, t.String())
}

// ProductTarget returns the override of a product; the zero Target when unset.
func (s *Store) ProductTarget(ctx context.Context, productID string) (crm.Target, error) {
	return s.target(ctx, productKey(productID))
}

// CouponTarget returns the override of a coupon code; the zero Target when unset.
func (s *Store) CouponTarget(ctx context.Context, code string) (crm.Target, error) {
	return s.target(ctx, couponKey(code))
}

// PutProductTarget sets the product override. An empty target clears it.
func (s *Store) PutProductTarget(ctx context.Context, productID, target string) error {
	return s.put(ctx, productKey(productID), target)
}

// PutCouponTarget sets the coupon override. An empty target clears it.
func (s *Store) PutCouponTarget(ctx context.Context, code, target string) error {
	return s.put(ctx, couponKey(code), target)
}

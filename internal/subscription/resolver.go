// Package subscription resolves which CRM forms, tags and sequences an order's
// customer joins.
package subscription

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/settings"
)

// TargetLookup returns product and coupon level overrides. The zero Target means
// no override.
type TargetLookup interface {
	ProductTarget(ctx context.Context, productID string) (crm.Target, error)
	CouponTarget(ctx context.Context, code string) (crm.Target, error)
}

// LegacyChecker reports whether a form id is a legacy form.
type LegacyChecker interface {
	IsLegacyForm(ctx context.Context, id int64) (bool, error)
}

// OverrideProvider may rewrite the resolved target list of an order. The result is
// deduplicated again.
type OverrideProvider interface {
	Override(ctx context.Context, order *orders.Order, targets []crm.Target) ([]crm.Target, error)
}

// NoOverride returns the targets unchanged.
type NoOverride struct{}

func (NoOverride) Override(_ context.Context, _ *orders.Order, targets []crm.Target) ([]crm.Target, error) {
	return targets, nil
}

// Resolver builds the deduplicated target list of an order.
type Resolver struct {
	lookup   TargetLookup
	legacy   LegacyChecker
	override OverrideProvider
	logger   *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOverrideProvider installs p in place of NoOverride.
func WithOverrideProvider(p OverrideProvider) Option {
	return func(r *Resolver) { r.override = p }
}

// NewResolver returns a Resolver.
func NewResolver(lookup TargetLookup, legacy LegacyChecker, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{lookup: lookup, legacy: legacy, override: NoOverride{}, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the targets for order: the global default, then each line item's
// product override, then each coupon override, deduplicated on (kind, id) keeping
// the first occurrence. Form targets are annotated with Legacy.
func (r *Resolver) Resolve(ctx context.Context, order *orders.Order, st settings.Settings) ([]crm.Target, error) {
	var targets []crm.Target

	global, err := st.Target()
	if err != nil {
		return nil, fmt.Errorf("global subscription: %w", err)
	}
	targets = append(targets, global)

	for _, item := range order.Items {
		t, err := r.lookup.ProductTarget(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("product %s override: %w", item.ProductID, err)
		}
		targets = append(targets, t)
	}
	for _, code := range order.CouponCodes {
		t, err := r.lookup.CouponTarget(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("coupon %s override: %w", code, err)
		}
		targets = append(targets, t)
	}

	targets, err = r.override.Override(ctx, order, dedupe(targets))
	if err != nil {
		return nil, fmt.Errorf("override targets: %w", err)
	}
	targets = dedupe(targets)

	for i := range targets {
		if targets[i].Kind != crm.KindForm {
			continue
		}
		legacy, err := r.legacy.IsLegacyForm(ctx, targets[i].ID)
		if err != nil {
			r.logger.Warn("legacy form lookup failed; using form operation",
				zap.String("order_id", order.OrderID),
				zap.String("target", targets[i].String()),
				zap.Error(err))
			continue
		}
		targets[i].Legacy = legacy
	}
	return targets, nil
}

// dedupe drops zero targets and repeated (kind, id) pairs, keeping first occurrences.
func dedupe(in []crm.Target) []crm.Target {
	out := make([]crm.Target, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, t := range in {
		if t.IsZero() {
			continue
		}
		if _, ok := seen[t.Key()]; ok {
			continue
		}
		seen[t.Key()] = struct{}{}
		out = append(out, t)
	}
	return out
}

package catalog

import (
	"context"
	"testing"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/options"
)

func TestProductAndCouponTargets(t *testing.T) {
	opts := options.NewMemory()
	s := NewStore(opts)
	ctx := context.Background()

	if err := s.PutProductTarget(ctx, "p1", "tag:5"); err != nil {
		t.Fatalf("put product: %v", err)
	}
	if err := s.PutCouponTarget(ctx, "SAVE10", "sequence:9"); err != nil {
		t.Fatalf("put coupon: %v", err)
	}

	got, err := s.ProductTarget(ctx, "p1")
	if err != nil || !got.Equal(crm.Target{Kind: crm.KindTag, ID: 5}) {
		t.Fatalf("product target %v err=%v", got, err)
	}
	got, err = s.CouponTarget(ctx, "save10")
	if err != nil || !got.Equal(crm.Target{Kind: crm.KindSequence, ID: 9}) {
		t.Fatalf("coupon target %v err=%v", got, err)
	}

	got, err = s.ProductTarget(ctx, "p2")
	if err != nil || !got.IsZero() {
		t.Fatalf("expected unset product, got %v err=%v", got, err)
	}

	if err := s.PutProductTarget(ctx, "p1", ""); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got, _ := s.ProductTarget(ctx, "p1"); !got.IsZero() {
		t.Fatalf("expected cleared override, got %v", got)
	}
	if opts.Len() != 1 {
		t.Fatalf("expected only the coupon option left, got %d", opts.Len())
	}
}

func TestPut_RejectsInvalidTarget(t *testing.T) {
	s := NewStore(options.NewMemory())
	err := s.PutProductTarget(context.Background(), "p1", "list:3")
	if !crm.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLegacyBareFormID(t *testing.T) {
	opts := options.NewMemory()
	_ = opts.Put(context.Background(), "product_subscription:p9", "12")
	got, err := NewStore(opts).ProductTarget(context.Background(), "p9")
	if err != nil || !got.Equal(crm.Target{Kind: crm.KindForm, ID: 12}) {
		t.Fatalf("expected form:12, got %v err=%v", got, err)
	}
}

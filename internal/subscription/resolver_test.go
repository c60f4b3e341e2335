package subscription

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/imrishuroy/go-crm-ordersync/internal/catalog"
	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/options"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/settings"
)

type legacyForms struct {
	ids   map[int64]bool
	err   error
	calls int
}

func (l *legacyForms) IsLegacyForm(ctx context.Context, id int64) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.ids[id], nil
}

type failingLookup struct{}

func (failingLookup) ProductTarget(context.Context, string) (crm.Target, error) {
	return crm.Target{}, errors.New("options table unavailable")
}

func (failingLookup) CouponTarget(context.Context, string) (crm.Target, error) {
	return crm.Target{}, nil
}

type appendProvider struct{ extra []crm.Target }

func (p appendProvider) Override(_ context.Context, _ *orders.Order, targets []crm.Target) ([]crm.Target, error) {
	return append(targets, p.extra...), nil
}

func form(id int64) crm.Target     { return crm.Target{Kind: crm.KindForm, ID: id} }
func tag(id int64) crm.Target      { return crm.Target{Kind: crm.KindTag, ID: id} }
func sequence(id int64) crm.Target { return crm.Target{Kind: crm.KindSequence, ID: id} }

func newCatalog(t *testing.T, products, coupons map[string]string) *catalog.Store {
	t.Helper()
	c := catalog.NewStore(options.NewMemory())
	for id, target := range products {
		if err := c.PutProductTarget(context.Background(), id, target); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	for code, target := range coupons {
		if err := c.PutCouponTarget(context.Background(), code, target); err != nil {
			t.Fatalf("seed coupon: %v", err)
		}
	}
	return c
}

func exampleOrder() *orders.Order {
	return &orders.Order{
		OrderID: "1001",
		Items: []orders.LineItem{
			{ItemID: "1", ProductID: "product-a", Name: "Product A", Quantity: 1, UnitPrice: 9.99},
			{ItemID: "2", ProductID: "product-b", Name: "Product B", Quantity: 1, UnitPrice: 9.99},
		},
		CouponCodes: []string{"SAVE10"},
	}
}

func TestResolve_ExampleScenario(t *testing.T) {
	cat := newCatalog(t, map[string]string{"product-a": "tag:5"}, map[string]string{"SAVE10": "sequence:9"})
	r := NewResolver(cat, &legacyForms{}, nil)
	st := settings.Defaults()
	st.Subscription = "form:1"

	want := []crm.Target{form(1), tag(5), sequence(9)}
	for i := 0; i < 2; i++ {
		got, err := r.Resolve(context.Background(), exampleOrder(), st)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("call %d targets mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestResolve_Dedup(t *testing.T) {
	cat := newCatalog(t,
		map[string]string{"product-a": "form:1", "product-b": "tag:5"},
		map[string]string{"SAVE10": "tag:5", "VIP": "form:1"})
	r := NewResolver(cat, &legacyForms{}, nil)
	st := settings.Defaults()
	st.Subscription = "1" // bare form id

	o := exampleOrder()
	o.Items = append(o.Items, orders.LineItem{ProductID: "product-a"})
	o.CouponCodes = append(o.CouponCodes, "VIP")

	got, err := r.Resolve(context.Background(), o, st)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := cmp.Diff([]crm.Target{form(1), tag(5)}, got); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_NoTargets(t *testing.T) {
	r := NewResolver(newCatalog(t, nil, nil), &legacyForms{}, nil)
	got, err := r.Resolve(context.Background(), exampleOrder(), settings.Defaults())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no targets, got %v", got)
	}
}

func TestResolve_LegacyAnnotation(t *testing.T) {
	cat := newCatalog(t, map[string]string{"product-a": "form:2"}, nil)
	legacy := &legacyForms{ids: map[int64]bool{2: true}}
	r := NewResolver(cat, legacy, nil)
	st := settings.Defaults()
	st.Subscription = "form:1"

	got, err := r.Resolve(context.Background(), exampleOrder(), st)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	want := []crm.Target{form(1), {Kind: crm.KindForm, ID: 2, Legacy: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
	if legacy.calls != 2 {
		t.Fatalf("expected one legacy lookup per form, got %d", legacy.calls)
	}
}

func TestResolve_LegacyLookupFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	legacy := &legacyForms{err: &crm.RemoteError{StatusCode: 503, Message: "unavailable"}}
	r := NewResolver(newCatalog(t, nil, nil), legacy, zap.New(core))
	st := settings.Defaults()
	st.Subscription = "form:4"

	got, err := r.Resolve(context.Background(), exampleOrder(), st)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := cmp.Diff([]crm.Target{form(4)}, got); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
	entries := logs.FilterMessage("legacy form lookup failed; using form operation").All()
	if len(entries) != 1 {
		t.Fatalf("expected one warning, got %d", len(entries))
	}
	if entries[0].ContextMap()["target"] != "form:4" {
		t.Fatalf("unexpected log fields %v", entries[0].ContextMap())
	}
}

func TestResolve_OverrideProviderIsDeduped(t *testing.T) {
	cat := newCatalog(t, map[string]string{"product-a": "tag:5"}, nil)
	r := NewResolver(cat, &legacyForms{}, nil,
		WithOverrideProvider(appendProvider{extra: []crm.Target{tag(5), sequence(3), {}}}))
	st := settings.Defaults()
	st.Subscription = "form:1"

	got, err := r.Resolve(context.Background(), exampleOrder(), st)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if diff := cmp.Diff([]crm.Target{form(1), tag(5), sequence(3)}, got); diff != "" {
		t.Fatalf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_LookupError(t *testing.T) {
	r := NewResolver(failingLookup{}, &legacyForms{}, nil)
	if _, err := r.Resolve(context.Background(), exampleOrder(), settings.Defaults()); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestPolicies(t *testing.T) {
	cases := []struct {
		name   string
		policy OptInPolicy
		order  orders.Order
		want   bool
	}{
		{"consent given", ConsentPolicy{}, orders.Order{OptIn: true}, true},
		{"consent missing", ConsentPolicy{}, orders.Order{}, false},
		{"renewal suppressed", RenewalPolicy{}, orders.Order{OptIn: true, CreatedVia: orders.CreatedViaRenewal}, false},
		{"resubscribe suppressed", RenewalPolicy{}, orders.Order{OptIn: true, CreatedVia: orders.CreatedViaResubscribe}, false},
		{"checkout defers to base", RenewalPolicy{Base: ConsentPolicy{}}, orders.Order{OptIn: true, CreatedVia: orders.CreatedViaCheckout}, true},
	}
	for _, tc := range cases {
		if got := tc.policy.AllowSubscribe(&tc.order); got != tc.want {
			t.Errorf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

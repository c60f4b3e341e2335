package resources

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/crm/crmtest"
	"github.com/imrishuroy/go-crm-ordersync/internal/options"
)

var (
	formA   = crm.Resource{ID: 1, Name: "Newsletter", Type: crm.ResourceForms}
	formOld = crm.Resource{ID: 2, Name: "Old landing page", Type: crm.ResourceForms, Legacy: true}
	tag5    = crm.Resource{ID: 5, Name: "Customers", Type: crm.ResourceTags}
)

func newTestSet(t *testing.T, gw *crmtest.Gateway, ttl time.Duration) (*Set, *OptionEntryStore, *time.Time) {
	t.Helper()
	store := NewOptionEntryStore(options.NewMemory())
	set := NewSet(gw, store, ttl, nil)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, c := range set.caches {
		c.nowFunc = func() time.Time { return now }
	}
	return set, store, &now
}

func TestEntryStale(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ttl := time.Hour
	if !(Entry{}).Stale(now) {
		t.Fatal("never-queried entry must be stale")
	}
	if (Entry{LastQueried: now.Add(-ttl), TTL: ttl}).Stale(now) {
		t.Fatal("entry exactly at ttl is not stale")
	}
	if !(Entry{LastQueried: now.Add(-ttl - time.Second), TTL: ttl}).Stale(now) {
		t.Fatal("entry past ttl must be stale")
	}
}

func TestGet_RefreshesMissingThenServesCache(t *testing.T) {
	gw := &crmtest.Gateway{Resources: map[crm.ResourceType][]crm.Resource{crm.ResourceForms: {formA, formOld}}}
	set, _, _ := newTestSet(t, gw, time.Hour)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := set.Get(ctx, crm.ResourceForms)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if diff := cmp.Diff([]crm.Resource{formA, formOld}, got); diff != "" {
			t.Fatalf("resources mismatch (-want +got):\n%s", diff)
		}
	}
	if n := gw.ListCount(crm.ResourceForms); n != 1 {
		t.Fatalf("expected exactly one fetch, got %d", n)
	}
}

func TestGet_StaleEntryRefreshesOnce(t *testing.T) {
	gw := &crmtest.Gateway{Resources: map[crm.ResourceType][]crm.Resource{crm.ResourceTags: {tag5}}}
	ttl := 24 * time.Hour
	set, store, now := newTestSet(t, gw, ttl)
	ctx := context.Background()

	// fresh entry: zero fetches
	if err := store.Save(ctx, crm.ResourceTags, Entry{Resources: []crm.Resource{tag5}, LastQueried: now.Add(-ttl), TTL: ttl}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := set.Get(ctx, crm.ResourceTags); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := gw.ListCount(crm.ResourceTags); n != 0 {
		t.Fatalf("fresh entry: expected 0 fetches, got %d", n)
	}

	// stale by one second: exactly one fetch
	if err := store.Save(ctx, crm.ResourceTags, Entry{Resources: nil, LastQueried: now.Add(-ttl - time.Second), TTL: ttl}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got, err := set.Get(ctx, crm.ResourceTags)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].ID != 5 {
		t.Fatalf("unexpected resources %+v", got)
	}
	if _, err := set.Get(ctx, crm.ResourceTags); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := gw.ListCount(crm.ResourceTags); n != 1 {
		t.Fatalf("stale entry: expected 1 fetch, got %d", n)
	}

	e, _ := store.Load(ctx, crm.ResourceTags)
	if !e.LastQueried.Equal(*now) || e.TTL != ttl {
		t.Fatalf("entry not reset: %+v", e)
	}
}

func TestRefresh_ErrorKeepsEntry(t *testing.T) {
	gw := &crmtest.Gateway{}
	set, store, now := newTestSet(t, gw, time.Hour)
	ctx := context.Background()
	seeded := Entry{Resources: []crm.Resource{tag5}, LastQueried: now.Add(-2 * time.Hour), TTL: time.Hour}
	if err := store.Save(ctx, crm.ResourceTags, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	gw.ListErr = &crm.RemoteError{StatusCode: 429, Message: "slow down"}
	_, err := set.Get(ctx, crm.ResourceTags)
	var re *crm.RemoteError
	if !errors.As(err, &re) || !re.RateLimited() {
		t.Fatalf("expected rate limited remote error, got %v", err)
	}

	e, err := store.Load(ctx, crm.ResourceTags)
	if err != nil || e == nil {
		t.Fatalf("entry must survive, got %+v err=%v", e, err)
	}
	if diff := cmp.Diff(seeded.Resources, e.Resources); diff != "" || !e.LastQueried.Equal(seeded.LastQueried) {
		t.Fatalf("entry modified on failed refresh: %+v", e)
	}
}

func TestInvalidate_ForcesRefresh(t *testing.T) {
	gw := &crmtest.Gateway{Resources: map[crm.ResourceType][]crm.Resource{crm.ResourceForms: {formA}}}
	set, store, _ := newTestSet(t, gw, time.Hour)
	ctx := context.Background()

	if _, err := set.Get(ctx, crm.ResourceForms); err != nil {
		t.Fatalf("get: %v", err)
	}
	if err := set.InvalidateAll(ctx); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if e, _ := store.Load(ctx, crm.ResourceForms); e != nil {
		t.Fatalf("expected entry dropped, got %+v", e)
	}
	if _, err := set.Get(ctx, crm.ResourceForms); err != nil {
		t.Fatalf("get: %v", err)
	}
	if n := gw.ListCount(crm.ResourceForms); n != 2 {
		t.Fatalf("expected refetch after invalidate, got %d fetches", n)
	}
}

func TestRefreshAll_JoinsErrors(t *testing.T) {
	gw := &crmtest.Gateway{ListErr: &crm.RemoteError{StatusCode: 401, Message: "bad token"}}
	set, _, _ := newTestSet(t, gw, time.Hour)
	err := set.RefreshAll(context.Background())
	if err == nil || !crm.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	for _, rt := range crm.ResourceTypes {
		if gw.ListCount(rt) != 1 {
			t.Fatalf("%s: expected one attempt", rt)
		}
	}
}

func TestIsLegacyForm(t *testing.T) {
	gw := &crmtest.Gateway{Resources: map[crm.ResourceType][]crm.Resource{crm.ResourceForms: {formA, formOld}}}
	set, _, _ := newTestSet(t, gw, time.Hour)
	ctx := context.Background()
	for id, want := range map[int64]bool{1: false, 2: true, 99: false} {
		got, err := set.IsLegacyForm(ctx, id)
		if err != nil || got != want {
			t.Errorf("form %d: got %v err=%v want %v", id, got, err, want)
		}
	}
}

func TestUnknownType(t *testing.T) {
	set, _, _ := newTestSet(t, &crmtest.Gateway{}, time.Hour)
	_, err := set.Get(context.Background(), "webhooks")
	if !crm.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

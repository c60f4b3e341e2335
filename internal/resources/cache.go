// Package resources caches CRM reference lists (forms, tags, sequences and custom
// fields) with a per-entry TTL.
package resources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
)

// FetchFunc lists the current resources of one type from the CRM.
type FetchFunc func(ctx context.Context) ([]crm.Resource, error)

// Cache is the TTL cache of a single resource type.
type Cache struct {
	kind    crm.ResourceType
	fetch   FetchFunc
	store   EntryStore
	ttl     time.Duration
	nowFunc func() time.Time
	logger  *zap.Logger
}

// NewCache returns a cache for kind. New entries are stored with ttl.
func NewCache(kind crm.ResourceType, fetch FetchFunc, store EntryStore, ttl time.Duration, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		kind:    kind,
		fetch:   fetch,
		store:   store,
		ttl:     ttl,
		nowFunc: time.Now,
		logger:  logger.With(zap.String("resource_type", string(kind))),
	}
}

// Kind returns the resource type the cache holds.
func (c *Cache) Kind() crm.ResourceType { return c.kind }

// Get returns the cached resources, refreshing first when the entry is missing or stale.
func (c *Cache) Get(ctx context.Context) ([]crm.Resource, error) {
	entry, err := c.store.Load(ctx, c.kind)
	if err != nil {
		return nil, err
	}
	if entry != nil && !entry.Stale(c.nowFunc()) {
		return entry.Resources, nil
	}
	return c.Refresh(ctx)
}

// Refresh fetches the list from the CRM and replaces the stored entry. On error the
// stored entry is left untouched.
func (c *Cache) Refresh(ctx context.Context) ([]crm.Resource, error) {
	res, err := c.fetch(ctx)
	if err != nil {
		c.logger.Warn("resource refresh failed", zap.Error(err))
		return nil, fmt.Errorf("refresh %s: %w", c.kind, err)
	}
	if res == nil {
		res = []crm.Resource{}
	}
	entry := Entry{Resources: res, LastQueried: c.nowFunc(), TTL: c.ttl}
	if err := c.store.Save(ctx, c.kind, entry); err != nil {
		return nil, err
	}
	c.logger.Debug("resources refreshed", zap.Int("count", len(res)))
	return res, nil
}

// Invalidate drops the stored entry so the next Get refreshes.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.Delete(ctx, c.kind)
}

// Set bundles one Cache per resource type.
type Set struct {
	caches map[crm.ResourceType]*Cache
}

// NewSet builds caches for every resource type, each fetching through gw.
func NewSet(gw crm.Gateway, store EntryStore, ttl time.Duration, logger *zap.Logger) *Set {
	s := &Set{caches: make(map[crm.ResourceType]*Cache, len(crm.ResourceTypes))}
	for _, t := range crm.ResourceTypes {
		t := t
		fetch := func(ctx context.Context) ([]crm.Resource, error) {
			return gw.ListResources(ctx, t)
		}
		s.caches[t] = NewCache(t, fetch, store, ttl, logger)
	}
	return s
}

// Cache returns the cache for t.
func (s *Set) Cache(t crm.ResourceType) (*Cache, error) {
	c, ok := s.caches[t]
	if !ok {
		return nil, &crm.ValidationError{Field: "resource type", Reason: fmt.Sprintf("unknown type %q", t)}
	}
	return c, nil
}

// Get returns the resources of type t.
func (s *Set) Get(ctx context.Context, t crm.ResourceType) ([]crm.Resource, error) {
	c, err := s.Cache(t)
	if err != nil {
		return nil, err
	}
	return c.Get(ctx)
}

// Refresh refetches the resources of type t.
func (s *Set) Refresh(ctx context.Context, t crm.ResourceType) ([]crm.Resource, error) {
	c, err := s.Cache(t)
	if err != nil {
		return nil, err
	}
	return c.Refresh(ctx)
}

// RefreshAll refetches every type, continuing past failures.
func (s *Set) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, t := range crm.ResourceTypes {
		if _, err := s.caches[t].Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// InvalidateAll drops every stored entry.
func (s *Set) InvalidateAll(ctx context.Context) error {
	var errs []error
	for _, t := range crm.ResourceTypes {
		if err := s.caches[t].Invalidate(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsLegacyForm reports whether form id is a legacy form in the cached form list.
func (s *Set) IsLegacyForm(ctx context.Context, id int64) (bool, error) {
	forms, err := s.Get(ctx, crm.ResourceForms)
	if err != nil {
		return false, err
	}
	for _, f := range forms {
		if f.ID == id {
			return f.Legacy, nil
		}
	}
	return false, nil
}

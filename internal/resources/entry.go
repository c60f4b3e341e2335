package resources

import (
	"context"
	"fmt"
	"time"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
)

// Entry is the persisted resource list of one type.
type Entry struct {
	Resources   []crm.Resource `dynamodbav:"resources"`
	LastQueried time.Time      `dynamodbav:"last_queried"`
	TTL         time.Duration  `dynamodbav:"ttl"`
}

// Stale reports whether the entry must be refreshed before use at now.
func (e Entry) Stale(now time.Time) bool {
	if e.LastQueried.IsZero() {
		return true
	}
	return now.After(e.LastQueried.Add(e.TTL))
}

// EntryStore persists one Entry per resource type.
type EntryStore interface {
	// Load returns (nil, nil) when the type was never queried or was invalidated.
	Load(ctx context.Context, t crm.ResourceType) (*Entry, error)
	Save(ctx context.Context, t crm.ResourceType, e Entry) error
	Delete(ctx context.Context, t crm.ResourceType) error
}

// OptionStore is the key/value store entries are kept in.
type OptionStore interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// OptionEntryStore keeps entries under "resource_<type>" option keys.
type OptionEntryStore struct {
	opts OptionStore
}

// NewOptionEntryStore returns an EntryStore backed by opts.
func NewOptionEntryStore(opts OptionStore) *OptionEntryStore {
	return &OptionEntryStore{opts: opts}
}

func entryKey(t crm.ResourceType) string { return "resource_" + string(t) }

func (s *OptionEntryStore) Load(ctx context.Context, t crm.ResourceType) (*Entry, error) {
	var e Entry
	found, err := s.opts.Get(ctx, entryKey(t), &e)
	if err != nil {
		return nil, fmt.Errorf("load %s entry: %w", t, err)
	}
	if !found {
		return nil, nil
	}
	return &e, nil
}

func (s *OptionEntryStore) Save(ctx context.Context, t crm.ResourceType, e Entry) error {
	if err := s.opts.Put(ctx, entryKey(t), e); err != nil {
		return fmt.Errorf("save %s entry: %w", t, err)
	}
	return nil
}

func (s *OptionEntryStore) Delete(ctx context.Context, t crm.ResourceType) error {
	if err := s.opts.Delete(ctx, entryKey(t)); err != nil {
		return fmt.Errorf("delete %s entry: %w", t, err)
	}
	return nil
}

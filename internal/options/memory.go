package options

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Memory is an in-process option store with the same marshaling as Store. Values
// are kept as attribute values so callers never share memory with the store.
type Memory struct {
	mu     sync.Mutex
	values map[string]types.AttributeValue
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: map[string]types.AttributeValue{}}
}

func (m *Memory) Get(ctx context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	v, ok := m.values[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := attributevalue.Unmarshal(v, out); err != nil {
		return false, fmt.Errorf("unmarshal option %s: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Put(ctx context.Context, key string, value any) error {
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal option %s: %w", key, err)
	}
	m.mu.Lock()
	m.values[key] = av
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored options.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.values)
}

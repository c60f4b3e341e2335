package idempotency

import (
	"context"
	"errors"
	"strconv"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const claimCondition = "attribute_not_exists(claim_key) OR #s = :failed OR (#s = :inprogress AND lease_until < :now)"

// simpleMock is a very small in-memory mock for PutItem/GetItem/UpdateItem used in unit tests.
// It evaluates only the claim condition the Store issues.
type simpleMock struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	getCalls    int
	updateCalls int
}

func newSimpleMock() *simpleMock {
	return &simpleMock{
		table: map[string]map[string]types.AttributeValue{},
	}
}

func strAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func numAttr(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func (m *simpleMock) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	k := strAttr(params.Item, "claim_key")
	if k == "" {
		return nil, errors.New("missing key")
	}
	if params.ConditionExpression != nil {
		if *params.ConditionExpression != claimCondition {
			return nil, errors.New("unsupported condition")
		}
		if existing, ok := m.table[k]; ok {
			vals := params.ExpressionAttributeValues
			status := strAttr(existing, "status")
			failed := status == strAttr(vals, ":failed")
			expired := status == strAttr(vals, ":inprogress") && numAttr(existing, "lease_until") < numAttr(vals, ":now")
			if !failed && !expired {
				// simulate conditional failure
				return nil, &types.ConditionalCheckFailedException{}
			}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *simpleMock) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	k := strAttr(params.Key, "claim_key")
	if k == "" {
		return nil, errors.New("missing key")
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *simpleMock) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	k := strAttr(params.Key, "claim_key")
	if k == "" {
		return nil, errors.New("missing key")
	}
	item, ok := m.table[k]
	if !ok {
		return nil, errors.New("item not found")
	}
	vals := params.ExpressionAttributeValues
	if v, ok := vals[":done"]; ok {
		item["status"] = v
	}
	if v, ok := vals[":failed"]; ok {
		item["status"] = v
	}
	if v, ok := vals[":pid"]; ok {
		item["purchase_id"] = v
	}
	if v, ok := vals[":n"]; ok {
		item["note"] = v
	}
	if v, ok := vals[":ua"]; ok {
		item["updated_at"] = v
	}
	m.table[k] = item
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *simpleMock) DeleteItem(ctx context.Context, params *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	return nil, errors.New("not supported")
}

func (m *simpleMock) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not supported")
}

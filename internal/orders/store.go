package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-crm-ordersync/internal/aws"
)

var (
	// ErrNotFound is returned when the referenced order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrOrderExists is returned by Create when the order was already recorded.
	ErrOrderExists = errors.New("order already exists")
	// ErrStatusMismatch is returned by UpdateStatus when the stored status is not the expected one.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrPurchaseMarked is returned by MarkPurchaseSent when the marker is already set.
	ErrPurchaseMarked = errors.New("purchase marker already set")
)

const queryPageSize = 100

// Store encapsulates operations on the orders table.
type Store struct {
	client      aws.DynamoDBAPI
	tableName   string
	statusIndex string
	nowFunc     func() time.Time
}

// NewStore creates a new orders Store. statusIndex is a GSI keyed on status with
// created_at as sort key.
func NewStore(client aws.DynamoDBAPI, tableName, statusIndex string) *Store {
	return &Store{
		client:      client,
		tableName:   tableName,
		statusIndex: statusIndex,
		nowFunc:     time.Now,
	}
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func isConditionFailed(err error) bool {
	var sc *types.ConditionalCheckFailedException
	return errors.As(err, &sc)
}

// Create records a new order once. A second Create for the same id returns ErrOrderExists.
func (s *Store) Create(ctx context.Context, order Order) error {
	now := s.nowFunc()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrOrderExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches an order by order_id. Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		},
		ConditionExpression: awsString("#s = :expected"),
	}

	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// MarkOptInProcessed sets the opt-in marker so later transitions skip subscription.
func (s *Store) MarkOptInProcessed(ctx context.Context, orderID string) error {
	now := s.nowFunc()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET opt_in_processed = :true, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(order_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (opt-in marker): %w", err)
	}
	return nil
}

// MarkPurchaseSent writes the purchase marker. purchaseID may be empty for orders
// that needed no CRM call. Returns ErrPurchaseMarked if the marker is already set.
func (s *Store) MarkPurchaseSent(ctx context.Context, orderID, purchaseID string) error {
	now := s.nowFunc()
	values := map[string]types.AttributeValue{
		":true":  &types.AttributeValueMemberBOOL{Value: true},
		":false": &types.AttributeValueMemberBOOL{Value: false},
		":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
	}
	expr := "SET purchase_data_sent = :true, updated_at = :ua"
	if purchaseID != "" {
		expr += ", purchase_data_id = :pid"
		values[":pid"] = &types.AttributeValueMemberS{Value: purchaseID}
	}
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          &expr,
		ExpressionAttributeValues: values,
		ConditionExpression:       awsString("attribute_exists(order_id) AND (attribute_not_exists(purchase_data_sent) OR purchase_data_sent = :false)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrPurchaseMarked
		}
		return fmt.Errorf("update item (purchase marker): %w", err)
	}
	return nil
}

// AddNote appends a note to the order.
func (s *Store) AddNote(ctx context.Context, orderID, message string) error {
	now := s.nowFunc()
	note, err := attributevalue.Marshal(Note{Message: message, CreatedAt: now})
	if err != nil {
		return fmt.Errorf("marshal note: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      orderKey(orderID),
		UpdateExpression:         awsString("SET #n = list_append(if_not_exists(#n, :empty), :note), updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#n": "notes"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":note":  &types.AttributeValueMemberL{Value: []types.AttributeValue{note}},
			":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ConditionExpression: awsString("attribute_exists(order_id)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update item (note): %w", err)
	}
	return nil
}

// IncrementPurchaseAttempts increases the failed purchase attempt counter by 1.
func (s *Store) IncrementPurchaseAttempts(ctx context.Context, orderID string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              orderKey(orderID),
		UpdateExpression: awsString("SET purchase_attempts = if_not_exists(purchase_attempts, :zero) + :inc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}
	return nil
}

// ListAwaitingPurchase returns orders in any of statuses whose purchase marker is
// unset, oldest first per status. limit <= 0 means unbounded.
func (s *Store) ListAwaitingPurchase(ctx context.Context, statuses []string, limit int) ([]Order, error) {
	var out []Order
	for _, status := range statuses {
		var startKey map[string]types.AttributeValue
		for {
			res, err := s.client.Query(ctx, &dyn.QueryInput{
				TableName:                &s.tableName,
				IndexName:                &s.statusIndex,
				KeyConditionExpression:   awsString("#s = :status"),
				FilterExpression:         awsString("attribute_not_exists(purchase_data_sent) OR purchase_data_sent = :false"),
				ExpressionAttributeNames: map[string]string{"#s": "status"},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":status": &types.AttributeValueMemberS{Value: status},
					":false":  &types.AttributeValueMemberBOOL{Value: false},
				},
				ExclusiveStartKey: startKey,
				Limit:             awsInt32(queryPageSize),
			})
			if err != nil {
				return nil, fmt.Errorf("query status %s: %w", status, err)
			}
			var page []Order
			if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
				return nil, fmt.Errorf("unmarshal orders: %w", err)
			}
			for _, o := range page {
				out = append(out, o)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
			if len(res.LastEvaluatedKey) == 0 {
				break
			}
			startKey = res.LastEvaluatedKey
		}
	}
	return out, nil
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
func awsInt32(i int32) *int32    { return &i }

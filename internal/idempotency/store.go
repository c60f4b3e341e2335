package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-crm-ordersync/internal/aws"
)

// retention is how long finished claims stay in the table before DynamoDB TTL removes them.
const retention = 90 * 24 * time.Hour

// Store encapsulates purchase claim operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	lease     time.Duration // how long an IN_PROGRESS claim blocks other submitters
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for purchase claims.
// lease: how long a claim is held before another submitter may take it over (e.g., 10*time.Minute)
func NewStore(client aws.DynamoDBAPI, tableName string, lease time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		lease:     lease,
		nowFunc:   time.Now,
	}
}

func claimKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"claim_key": &types.AttributeValueMemberS{Value: key},
	}
}

func isConditionFailed(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

// Claim takes the claim for key with status IN_PROGRESS. It succeeds when no claim
// exists, when the previous attempt FAILED, or when an IN_PROGRESS lease expired.
// Returns (claimed=true, nil) if the caller now owns the claim.
// Returns (claimed=false, nil) if someone else holds it or it is DONE (caller should Get to inspect).
// Returns (claimed=false, err) on other errors.
func (s *Store) Claim(ctx context.Context, key, orderID string) (bool, error) {
	now := s.nowFunc()
	rec := ClaimRecord{
		ClaimKey:   key,
		Status:     StatusInProgress,
		OrderID:    orderID,
		LeaseUntil: now.Add(s.lease).Unix(),
		CreatedAt:  now,
		UpdatedAt:  now,
		ExpiresAt:  now.Add(retention).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	input := &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(claim_key) OR #s = :failed OR (#s = :inprogress AND lease_until < :now)"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":     &types.AttributeValueMemberS{Value: StatusFailed},
			":inprogress": &types.AttributeValueMemberS{Value: StatusInProgress},
			":now":        &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
		},
	}

	_, err = s.client.PutItem(ctx, input)
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}

	return true, nil
}

// Get retrieves a claim by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*ClaimRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            claimKey(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec ClaimRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE and records the CRM purchase id.
func (s *Store) MarkDone(ctx context.Context, key, purchaseID string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              claimKey(key),
		UpdateExpression: awsString("SET #s = :done, purchase_id = :pid, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done": &types.AttributeValueMemberS{Value: StatusDone},
			":pid":  &types.AttributeValueMemberS{Value: purchaseID},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the claim as FAILED so the next attempt may take it, and stores a note.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	now := s.nowFunc()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              claimKey(key),
		UpdateExpression: awsString("SET #s = :failed, note = :n, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

// Helpers
func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }

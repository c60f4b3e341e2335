// Package options is a key/value option store on DynamoDB. Each option is one item
// keyed by option_key with its value marshaled into the "value" attribute.
package options

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-crm-ordersync/internal/aws"
)

// Store reads and writes options in a single table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new options Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

func (s *Store) key(k string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"option_key": &types.AttributeValueMemberS{Value: k},
	}
}

// Get unmarshals the option into out. Returns (false, nil) if the option is unset.
func (s *Store) Get(ctx context.Context, key string, out any) (bool, error) {
	res, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(key),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return false, fmt.Errorf("get option %s: %w", key, err)
	}
	v, ok := res.Item["value"]
	if !ok {
		return false, nil
	}
	if err := attributevalue.Unmarshal(v, out); err != nil {
		return false, fmt.Errorf("unmarshal option %s: %w", key, err)
	}
	return true, nil
}

// Put replaces the option value.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	av, err := attributevalue.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal option %s: %w", key, err)
	}
	item := s.key(key)
	item["value"] = av
	item["updated_at"] = &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339)}

	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put option %s: %w", key, err)
	}
	return nil
}

// Delete removes the option. Deleting an unset option is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.tableName,
		Key:       s.key(key),
	}); err != nil {
		return fmt.Errorf("delete option %s: %w", key, err)
	}
	return nil
}

func awsBool(b bool) *bool { return &b }

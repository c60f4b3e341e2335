package crm

import (
	"context"
	"time"
)

// ResourceType names a list of CRM reference entities.
type ResourceType string

const (
	ResourceForms        ResourceType = "forms"
	ResourceTags         ResourceType = "tags"
	ResourceSequences    ResourceType = "sequences"
	ResourceCustomFields ResourceType = "custom_fields"
)

// ResourceTypes lists every cached resource type.
var ResourceTypes = []ResourceType{ResourceForms, ResourceTags, ResourceSequences, ResourceCustomFields}

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	for _, rt := range ResourceTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// Resource is a CRM-side reference entity: a form, tag, sequence or custom field.
type Resource struct {
	ID     int64        `json:"id" dynamodbav:"id"`
	Name   string       `json:"name" dynamodbav:"name"`
	Type   ResourceType `json:"type" dynamodbav:"type"`
	Legacy bool         `json:"legacy,omitempty" dynamodbav:"legacy,omitempty"`
	Key    string       `json:"key,omitempty" dynamodbav:"key,omitempty"`
}

// Fields maps CRM custom field keys to values.
type Fields map[string]string

// Subscriber is the subset of a CRM subscriber the service reads back.
type Subscriber struct {
	ID        int64  `json:"id"`
	Email     string `json:"email_address"`
	FirstName string `json:"first_name"`
	State     string `json:"state"`
}

// PurchaseProduct is one line of a purchase.
type PurchaseProduct struct {
	PID       string  `json:"pid"`
	LID       string  `json:"lid"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
	UnitPrice float64 `json:"unit_price"`
	Quantity  int     `json:"quantity"`
}

// Purchase is the payload of a create-purchase call.
type Purchase struct {
	TransactionID   string            `json:"transaction_id"`
	EmailAddress    string            `json:"email_address"`
	FirstName       string            `json:"first_name,omitempty"`
	Currency        string            `json:"currency"`
	TransactionTime time.Time         `json:"transaction_time"`
	Subtotal        float64           `json:"subtotal"`
	Tax             float64           `json:"tax"`
	Shipping        float64           `json:"shipping"`
	Discount        float64           `json:"discount"`
	Total           float64           `json:"total"`
	Status          string            `json:"status"`
	Products        []PurchaseProduct `json:"products"`
}

// Gateway is the CRM API contract the sync engine depends on.
type Gateway interface {
	ListResources(ctx context.Context, t ResourceType) ([]Resource, error)
	CreateSubscriber(ctx context.Context, email, firstName, state string, fields Fields) (Subscriber, error)
	AddSubscriberToForm(ctx context.Context, formID, subscriberID int64) error
	AddSubscriberToLegacyForm(ctx context.Context, formID, subscriberID int64) error
	TagSubscribe(ctx context.Context, tagID int64, email, firstName string, fields Fields) error
	SequenceSubscribe(ctx context.Context, sequenceID int64, email, firstName string, fields Fields) error
	CreatePurchase(ctx context.Context, p Purchase) (string, error)
	GetSubscriberIDByEmail(ctx context.Context, email string) (int64, error)
	UpdateSubscriber(ctx context.Context, id int64, firstName, email string, fields Fields) error
}

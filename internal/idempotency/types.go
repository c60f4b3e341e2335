package idempotency

import "time"

// Status values for purchase claims
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// ClaimRecord is the shape persisted in the purchase claims DynamoDB table.
type ClaimRecord struct {
	ClaimKey   string    `dynamodbav:"claim_key"` // PK
	Status     string    `dynamodbav:"status"`
	OrderID    string    `dynamodbav:"order_id,omitempty"`
	PurchaseID string    `dynamodbav:"purchase_id,omitempty"`
	LeaseUntil int64     `dynamodbav:"lease_until"` // epoch seconds; an expired IN_PROGRESS claim may be taken over
	CreatedAt  time.Time `dynamodbav:"created_at"`
	UpdatedAt  time.Time `dynamodbav:"updated_at"`
	ExpiresAt  int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note       string    `dynamodbav:"note,omitempty"`
}

// PurchaseKey is the claim key guarding the purchase submission of an order.
func PurchaseKey(orderID string) string {
	return "purchase:" + orderID
}

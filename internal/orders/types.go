package orders

import (
	"strings"
	"time"
)

// Order statuses as reported by the commerce platform.
const (
	StatusPending    = "pending"
	StatusOnHold     = "on-hold"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusRefunded   = "refunded"
	StatusFailed     = "failed"
)

// lifecycle is the forward progression of a paid order. Cancelled, refunded and
// failed orders are off the path and never "beyond" anything.
var lifecycle = []string{StatusPending, StatusOnHold, StatusProcessing, StatusCompleted}

// StatusesAtOrBeyond returns status and every lifecycle status after it. A status off
// the lifecycle returns just itself.
func StatusesAtOrBeyond(status string) []string {
	for i, s := range lifecycle {
		if s == status {
			out := make([]string, len(lifecycle)-i)
			copy(out, lifecycle[i:])
			return out
		}
	}
	return []string{status}
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusOnHold, StatusProcessing, StatusCompleted, StatusCancelled, StatusRefunded, StatusFailed:
		return true
	}
	return false
}

// Order origins.
const (
	CreatedViaCheckout    = "checkout"
	CreatedViaAdmin       = "admin"
	CreatedViaRenewal     = "subscription_renewal"
	CreatedViaResubscribe = "subscription_resubscribe"
)

// Address is a postal address on the order.
type Address struct {
	Line1    string `dynamodbav:"line1,omitempty" json:"line1,omitempty"`
	Line2    string `dynamodbav:"line2,omitempty" json:"line2,omitempty"`
	City     string `dynamodbav:"city,omitempty" json:"city,omitempty"`
	State    string `dynamodbav:"state,omitempty" json:"state,omitempty"`
	Postcode string `dynamodbav:"postcode,omitempty" json:"postcode,omitempty"`
	Country  string `dynamodbav:"country,omitempty" json:"country,omitempty"`
}

// String joins the non-empty address parts with commas.
func (a Address) String() string {
	parts := make([]string, 0, 6)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.Postcode, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// LineItem is a single product line of an order.
type LineItem struct {
	ItemID    string  `dynamodbav:"item_id" json:"item_id"`
	ProductID string  `dynamodbav:"product_id" json:"product_id"`
	Name      string  `dynamodbav:"name" json:"name"`
	SKU       string  `dynamodbav:"sku,omitempty" json:"sku,omitempty"`
	Quantity  int     `dynamodbav:"quantity" json:"quantity"`
	UnitPrice float64 `dynamodbav:"unit_price" json:"unit_price"`
}

// Note is a human-readable annotation appended to an order.
type Note struct {
	Message   string    `dynamodbav:"message"`
	CreatedAt time.Time `dynamodbav:"created_at"`
}

// Order mirrors the commerce platform's order plus the markers this service owns.
type Order struct {
	OrderID         string     `dynamodbav:"order_id"` // PK
	Status          string     `dynamodbav:"status"`   // GSI status-index
	Email           string     `dynamodbav:"billing_email"`
	FirstName       string     `dynamodbav:"billing_first_name,omitempty"`
	LastName        string     `dynamodbav:"billing_last_name,omitempty"`
	Phone           string     `dynamodbav:"billing_phone,omitempty"`
	BillingAddress  Address    `dynamodbav:"billing_address"`
	ShippingAddress Address    `dynamodbav:"shipping_address"`
	PaymentMethod   string     `dynamodbav:"payment_method,omitempty"`
	CustomerNote    string     `dynamodbav:"customer_note,omitempty"`
	CreatedVia      string     `dynamodbav:"created_via,omitempty"`
	Items           []LineItem `dynamodbav:"items"`
	CouponCodes     []string   `dynamodbav:"coupon_codes,omitempty"`
	Currency        string     `dynamodbav:"currency"`
	Subtotal        float64    `dynamodbav:"subtotal"`
	Tax             float64    `dynamodbav:"tax"`
	Shipping        float64    `dynamodbav:"shipping"`
	Discount        float64    `dynamodbav:"discount"`
	Total           float64    `dynamodbav:"total"`

	// OptIn is the consent captured at checkout; OptInProcessed is set once the
	// subscription path has run so later transitions do not subscribe again.
	OptIn          bool `dynamodbav:"opt_in"`
	OptInProcessed bool `dynamodbav:"opt_in_processed"`

	// Purchase marker. PurchaseDataID is empty for orders synced without a CRM call.
	PurchaseDataSent bool   `dynamodbav:"purchase_data_sent"`
	PurchaseDataID   string `dynamodbav:"purchase_data_id,omitempty"`
	PurchaseAttempts int    `dynamodbav:"purchase_attempts,omitempty"`

	Notes     []Note    `dynamodbav:"notes,omitempty"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	UpdatedAt time.Time `dynamodbav:"updated_at"`
}

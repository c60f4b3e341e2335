package validation

import (
	"math"
	"time"

	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
)

// Item represents a single order line item.
type Item struct {
	ItemID    string  `json:"item_id" validate:"required"`
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	SKU       string  `json:"sku,omitempty"`
	Quantity  int     `json:"quantity" validate:"required,min=1"` // must be >= 1
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`        // price per unit
}

// CreateOrderRequest is the payload for POST /orders: the order snapshot taken at
// checkout plus the opt-in checkbox state.
type CreateOrderRequest struct {
	OrderID         string         `json:"order_id" validate:"required"`
	Status          string         `json:"status" validate:"required,order_status"`
	Email           string         `json:"billing_email" validate:"required,email"`
	FirstName       string         `json:"billing_first_name,omitempty"`
	LastName        string         `json:"billing_last_name,omitempty"`
	Phone           string         `json:"billing_phone,omitempty"`
	BillingAddress  orders.Address `json:"billing_address"`
	ShippingAddress orders.Address `json:"shipping_address"`
	PaymentMethod   string         `json:"payment_method,omitempty"`
	CustomerNote    string         `json:"customer_note,omitempty"`
	CreatedVia      string         `json:"created_via,omitempty"`
	Items           []Item         `json:"items" validate:"dive"`
	CouponCodes     []string       `json:"coupon_codes,omitempty" validate:"dive,required"`
	Currency        string         `json:"currency" validate:"required,len=3"`
	Subtotal        float64        `json:"subtotal" validate:"gte=0"`
	Tax             float64        `json:"tax" validate:"gte=0"`
	Shipping        float64        `json:"shipping" validate:"gte=0"`
	Discount        float64        `json:"discount" validate:"gte=0"`
	Total           float64        `json:"total" validate:"gte=0"`
	OptInChecked    bool           `json:"opt_in_checked"`
	CreatedAt       *time.Time     `json:"created_at,omitempty"` // optional client timestamp
}

// ToOrder converts the request into the stored order snapshot. Markers start unset.
func (r CreateOrderRequest) ToOrder() orders.Order {
	o := orders.Order{
		OrderID:         r.OrderID,
		Status:          r.Status,
		Email:           r.Email,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Phone:           r.Phone,
		BillingAddress:  r.BillingAddress,
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   r.PaymentMethod,
		CustomerNote:    r.CustomerNote,
		CreatedVia:      r.CreatedVia,
		CouponCodes:     r.CouponCodes,
		Currency:        r.Currency,
		Subtotal:        r.Subtotal,
		Tax:             r.Tax,
		Shipping:        r.Shipping,
		Discount:        r.Discount,
		Total:           r.Total,
	}
	if o.CreatedVia == "" {
		o.CreatedVia = orders.CreatedViaCheckout
	}
	for _, it := range r.Items {
		o.Items = append(o.Items, orders.LineItem{
			ItemID:    it.ItemID,
			ProductID: it.ProductID,
			Name:      it.Name,
			SKU:       it.SKU,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	if r.CreatedAt != nil {
		o.CreatedAt = r.CreatedAt.UTC()
	}
	return o
}

// ItemsSubtotal returns the sum of quantity * unit price over the items and whether
// it differs from Subtotal by at least a cent. Snapshots with tax-inclusive prices
// or item-level discounts legitimately differ, so a mismatch is informational.
func (r CreateOrderRequest) ItemsSubtotal() (sum float64, mismatch bool) {
	for _, it := range r.Items {
		sum += float64(it.Quantity) * it.UnitPrice
	}
	return sum, math.Round(sum*100) != math.Round(r.Subtotal*100)
}

// StatusChangeRequest is the payload for POST /orders/:id/status.
type StatusChangeRequest struct {
	OldStatus string `json:"old_status" validate:"required,order_status"`
	NewStatus string `json:"new_status" validate:"required,order_status"`
}

// TargetRequest is the payload for product and coupon subscription overrides. An
// empty target clears the override.
type TargetRequest struct {
	Target string `json:"target" validate:"omitempty,crm_target"`
}

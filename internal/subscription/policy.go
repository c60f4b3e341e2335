package subscription

import (
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
)

// OptInPolicy decides whether an order's customer may be subscribed.
type OptInPolicy interface {
	AllowSubscribe(order *orders.Order) bool
}

// ConsentPolicy honors the opt-in flag captured at checkout.
type ConsentPolicy struct{}

func (ConsentPolicy) AllowSubscribe(order *orders.Order) bool { return order.OptIn }

// RenewalPolicy never subscribes renewal or resubscribe orders and defers to Base
// for everything else.
type RenewalPolicy struct {
	Base OptInPolicy
}

func (p RenewalPolicy) AllowSubscribe(order *orders.Order) bool {
	switch order.CreatedVia {
	case orders.CreatedViaRenewal, orders.CreatedViaResubscribe:
		return false
	}
	base := p.Base
	if base == nil {
		base = ConsentPolicy{}
	}
	return base.AllowSubscribe(order)
}

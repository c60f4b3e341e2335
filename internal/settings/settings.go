// Package settings holds the typed subscription configuration and persists it in the
// option store.
package settings

import (
	"strings"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
)

// NameFormat selects which customer name parts are sent to the CRM.
type NameFormat string

const (
	NameFirst NameFormat = "first"
	NameLast  NameFormat = "last"
	NameBoth  NameFormat = "both"
)

// Format renders the configured name from the billing first and last name.
func (f NameFormat) Format(first, last string) string {
	first, last = strings.TrimSpace(first), strings.TrimSpace(last)
	switch f {
	case NameLast:
		return last
	case NameBoth:
		return strings.TrimSpace(first + " " + last)
	default:
		return first
	}
}

// CustomFields maps order attributes to CRM custom field keys. An empty key leaves
// the attribute unsent.
type CustomFields struct {
	Phone           string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	BillingAddress  string `json:"billing_address,omitempty" dynamodbav:"billing_address,omitempty"`
	ShippingAddress string `json:"shipping_address,omitempty" dynamodbav:"shipping_address,omitempty"`
	PaymentMethod   string `json:"payment_method,omitempty" dynamodbav:"payment_method,omitempty"`
	CustomerNote    string `json:"customer_note,omitempty" dynamodbav:"customer_note,omitempty"`
}

// Values returns the mapped custom field values of o. Fields with no key or no
// value are omitted.
func (c CustomFields) Values(o *orders.Order) crm.Fields {
	out := crm.Fields{}
	set := func(key, value string) {
		if key != "" && value != "" {
			out[key] = value
		}
	}
	set(c.Phone, o.Phone)
	set(c.BillingAddress, o.BillingAddress.String())
	set(c.ShippingAddress, o.ShippingAddress.String())
	set(c.PaymentMethod, o.PaymentMethod)
	set(c.CustomerNote, o.CustomerNote)
	return out
}

// Settings is the subscription configuration of the integration.
type Settings struct {
	Enabled bool `json:"enabled" dynamodbav:"enabled"`

	// Subscription is the global default target, "form:1", "tag:5" or "sequence:9".
	Subscription   string `json:"subscription,omitempty" dynamodbav:"subscription,omitempty" validate:"omitempty,crm_target"`
	SubscribeEvent string `json:"event" dynamodbav:"event" validate:"required,order_status"`

	DisplayOptIn        bool   `json:"display_opt_in" dynamodbav:"display_opt_in"`
	OptInLabel          string `json:"opt_in_label,omitempty" dynamodbav:"opt_in_label,omitempty" validate:"max=255"`
	OptInDefaultChecked bool   `json:"opt_in_default_checked" dynamodbav:"opt_in_default_checked"`

	SendPurchases bool   `json:"send_purchases" dynamodbav:"send_purchases"`
	PurchaseEvent string `json:"send_purchases_event" dynamodbav:"send_purchases_event" validate:"required,order_status"`

	NameFormat      NameFormat   `json:"name_format" dynamodbav:"name_format" validate:"required,oneof=first last both"`
	SubscriberState string       `json:"subscriber_state" dynamodbav:"subscriber_state" validate:"required,oneof=active inactive"`
	CustomFields    CustomFields `json:"custom_fields" dynamodbav:"custom_fields"`
}

// Defaults returns the configuration of a fresh install.
func Defaults() Settings {
	return Settings{
		SubscribeEvent:      orders.StatusPending,
		OptInLabel:          "I want to subscribe to the newsletter",
		OptInDefaultChecked: true,
		PurchaseEvent:       orders.StatusProcessing,
		NameFormat:          NameFirst,
		SubscriberState:     "active",
	}
}

// Target returns the parsed global default target; the zero Target when unset.
func (s Settings) Target() (crm.Target, error) {
	return crm.ParseTarget(s.Subscription)
}

// withDefaults fills required fields an older stored blob may lack.
func (s Settings) withDefaults() Settings {
	d := Defaults()
	if s.SubscribeEvent == "" {
		s.SubscribeEvent = d.SubscribeEvent
	}
	if s.PurchaseEvent == "" {
		s.PurchaseEvent = d.PurchaseEvent
	}
	if s.NameFormat == "" {
		s.NameFormat = d.NameFormat
	}
	if s.SubscriberState == "" {
		s.SubscriberState = d.SubscriberState
	}
	return s
}

package validation

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
)

// New returns a configured validator with the custom tags registered.
//
//	crm_target    "form:1", "tag:5", "sequence:9" (or a bare form id)
//	order_status  a known order status
func New() *validatorv10.Validate {
	v := validatorv10.New()

	_ = v.RegisterValidation("crm_target", validateTarget)
	_ = v.RegisterValidation("order_status", validateOrderStatus)

	return v
}

func validateTarget(fl validatorv10.FieldLevel) bool {
	t, err := crm.ParseTarget(fl.Field().String())
	return err == nil && !t.IsZero()
}

func validateOrderStatus(fl validatorv10.FieldLevel) bool {
	return orders.ValidStatus(fl.Field().String())
}

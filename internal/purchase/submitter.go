// Package purchase submits an order's purchase data to the CRM at most once.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/idempotency"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/settings"
)

var (
	// ErrAlreadySent is returned when the order's purchase marker is already set.
	ErrAlreadySent = errors.New("purchase data already sent")
	// ErrPurchaseInFlight is returned when another submitter holds the order's claim.
	ErrPurchaseInFlight = errors.New("purchase submission already in progress")
)

// OrderMarkers is the part of the order store the submitter writes.
type OrderMarkers interface {
	MarkPurchaseSent(ctx context.Context, orderID, purchaseID string) error
	AddNote(ctx context.Context, orderID, message string) error
	IncrementPurchaseAttempts(ctx context.Context, orderID string) error
}

// Claims guards the CRM call with an atomic per-order claim.
type Claims interface {
	Claim(ctx context.Context, key, orderID string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.ClaimRecord, error)
	MarkDone(ctx context.Context, key, purchaseID string) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Submitter sends purchase data for orders.
type Submitter struct {
	gw      crm.Gateway
	orders  OrderMarkers
	claims  Claims
	logger  *zap.Logger
	nowFunc func() time.Time
}

// NewSubmitter returns a Submitter.
func NewSubmitter(gw crm.Gateway, orderStore OrderMarkers, claims Claims, logger *zap.Logger) *Submitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Submitter{gw: gw, orders: orderStore, claims: claims, logger: logger, nowFunc: time.Now}
}

// Submit sends the purchase data of order and returns the CRM purchase id. The id
// is empty for orders without line items, which are marked sent with no CRM call.
//
// On success order.PurchaseDataSent and order.PurchaseDataID are updated in place.
func (s *Submitter) Submit(ctx context.Context, order *orders.Order, st settings.Settings) (string, error) {
	log := s.logger.With(zap.String("order_id", order.OrderID))
	if order.PurchaseDataSent {
		return "", ErrAlreadySent
	}

	key := idempotency.PurchaseKey(order.OrderID)
	claimed, err := s.claims.Claim(ctx, key, order.OrderID)
	if err != nil {
		return "", fmt.Errorf("claim purchase: %w", err)
	}
	if !claimed {
		return "", s.lostClaim(ctx, order, key)
	}

	if len(order.Items) == 0 {
		if err := s.record(ctx, order, key, ""); err != nil {
			return "", err
		}
		s.note(ctx, order.OrderID, "[CRM] Purchase data not sent: the order has no line items.")
		log.Info("order without line items marked as synced")
		return "", nil
	}

	purchaseID, err := s.gw.CreatePurchase(ctx, s.payload(order, st))
	if err != nil {
		if mErr := s.claims.MarkFailed(ctx, key, err.Error()); mErr != nil {
			log.Error("mark claim failed", zap.Error(mErr))
		}
		if iErr := s.orders.IncrementPurchaseAttempts(ctx, order.OrderID); iErr != nil {
			log.Error("increment purchase attempts", zap.Error(iErr))
		}
		s.note(ctx, order.OrderID, fmt.Sprintf("[CRM] Purchase data failed: %v", err))
		log.Warn("create purchase failed", zap.Error(err))
		return "", fmt.Errorf("create purchase: %w", err)
	}

	if err := s.record(ctx, order, key, purchaseID); err != nil {
		return purchaseID, err
	}
	s.note(ctx, order.OrderID, fmt.Sprintf("[CRM] Purchase data sent (Purchase ID: %s).", purchaseID))
	log.Info("purchase data sent", zap.String("purchase_id", purchaseID))

	s.updateCustomFields(ctx, order, st)
	return purchaseID, nil
}

// lostClaim explains why the claim was not granted. A DONE claim whose order
// marker never got written is repaired here.
func (s *Submitter) lostClaim(ctx context.Context, order *orders.Order, key string) error {
	rec, err := s.claims.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read purchase claim: %w", err)
	}
	if rec == nil || rec.Status != idempotency.StatusDone {
		return ErrPurchaseInFlight
	}
	err = s.orders.MarkPurchaseSent(ctx, order.OrderID, rec.PurchaseID)
	if err != nil && !errors.Is(err, orders.ErrPurchaseMarked) {
		return fmt.Errorf("repair purchase marker: %w", err)
	}
	if err == nil {
		s.logger.Info("purchase marker repaired",
			zap.String("order_id", order.OrderID),
			zap.String("purchase_id", rec.PurchaseID))
	}
	order.PurchaseDataSent = true
	order.PurchaseDataID = rec.PurchaseID
	return ErrAlreadySent
}

// record finishes the claim and writes the order marker. Both are attempted even
// if one fails; a DONE claim alone is enough for a later repair.
func (s *Submitter) record(ctx context.Context, order *orders.Order, key, purchaseID string) error {
	doneErr := s.claims.MarkDone(ctx, key, purchaseID)
	if doneErr != nil {
		doneErr = fmt.Errorf("mark claim done: %w", doneErr)
	}
	markErr := s.orders.MarkPurchaseSent(ctx, order.OrderID, purchaseID)
	if markErr != nil && !errors.Is(markErr, orders.ErrPurchaseMarked) {
		markErr = fmt.Errorf("write purchase marker: %w", markErr)
	} else {
		markErr = nil
	}
	if err := errors.Join(doneErr, markErr); err != nil {
		s.logger.Error("record purchase",
			zap.String("order_id", order.OrderID),
			zap.String("purchase_id", purchaseID),
			zap.Error(err))
		return err
	}
	order.PurchaseDataSent = true
	order.PurchaseDataID = purchaseID
	return nil
}

func (s *Submitter) payload(order *orders.Order, st settings.Settings) crm.Purchase {
	txTime := order.CreatedAt
	if txTime.IsZero() {
		txTime = s.nowFunc()
	}
	p := crm.Purchase{
		TransactionID:   order.OrderID,
		EmailAddress:    order.Email,
		FirstName:       st.NameFormat.Format(order.FirstName, order.LastName),
		Currency:        order.Currency,
		TransactionTime: txTime.UTC(),
		Subtotal:        order.Subtotal,
		Tax:             order.Tax,
		Shipping:        order.Shipping,
		Discount:        order.Discount,
		Total:           order.Total,
		Status:          "paid",
	}
	for _, it := range order.Items {
		p.Products = append(p.Products, crm.PurchaseProduct{
			PID:       it.ProductID,
			LID:       it.ItemID,
			Name:      it.Name,
			SKU:       it.SKU,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return p
}

// updateCustomFields copies mapped order attributes onto the subscriber. Failures
// are annotated only; the purchase already succeeded.
func (s *Submitter) updateCustomFields(ctx context.Context, order *orders.Order, st settings.Settings) {
	fields := st.CustomFields.Values(order)
	if len(fields) == 0 {
		return
	}
	id, err := s.gw.GetSubscriberIDByEmail(ctx, order.Email)
	if err == nil {
		err = s.gw.UpdateSubscriber(ctx, id, st.NameFormat.Format(order.FirstName, order.LastName), order.Email, fields)
	}
	if err != nil {
		s.note(ctx, order.OrderID, fmt.Sprintf("[CRM] Subscriber custom fields not updated: %v", err))
		s.logger.Warn("update subscriber custom fields", zap.String("order_id", order.OrderID), zap.Error(err))
	}
}

func (s *Submitter) note(ctx context.Context, orderID, message string) {
	if err := s.orders.AddNote(ctx, orderID, message); err != nil {
		s.logger.Error("add order note", zap.String("order_id", orderID), zap.Error(err))
	}
}

// Package dispatcher turns order status transitions into subscription and purchase
// submissions.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/purchase"
	"github.com/imrishuroy/go-crm-ordersync/internal/settings"
	"github.com/imrishuroy/go-crm-ordersync/internal/subscription"
)

// OrderRepo is the order storage the dispatcher reads and annotates.
type OrderRepo interface {
	Create(ctx context.Context, order orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	MarkOptInProcessed(ctx context.Context, orderID string) error
	AddNote(ctx context.Context, orderID, message string) error
}

// SettingsLoader returns the current subscription configuration.
type SettingsLoader interface {
	Load(ctx context.Context) (settings.Settings, error)
}

// TargetResolver resolves the subscription targets of an order.
type TargetResolver interface {
	Resolve(ctx context.Context, order *orders.Order, st settings.Settings) ([]crm.Target, error)
}

// PurchaseSubmitter submits purchase data once per order.
type PurchaseSubmitter interface {
	Submit(ctx context.Context, order *orders.Order, st settings.Settings) (string, error)
}

// ShouldSubscribe reports whether the transition old -> new fires the subscription path.
func ShouldSubscribe(order *orders.Order, oldStatus, newStatus string, st settings.Settings, policy subscription.OptInPolicy) bool {
	if !st.Enabled || oldStatus == newStatus || newStatus != st.SubscribeEvent {
		return false
	}
	if order.OptInProcessed {
		return false
	}
	return policy.AllowSubscribe(order)
}

// ShouldSubmitPurchase reports whether the transition old -> new fires the purchase
// path. Opt-in is irrelevant here.
func ShouldSubmitPurchase(oldStatus, newStatus string, st settings.Settings) bool {
	return st.Enabled && st.SendPurchases && oldStatus != newStatus && newStatus == st.PurchaseEvent
}

// Dispatcher evaluates both gates for every status change.
type Dispatcher struct {
	settings  SettingsLoader
	orders    OrderRepo
	resolver  TargetResolver
	submitter PurchaseSubmitter
	gw        crm.Gateway
	policy    subscription.OptInPolicy
	logger    *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithOptInPolicy replaces the default ConsentPolicy.
func WithOptInPolicy(p subscription.OptInPolicy) Option {
	return func(d *Dispatcher) { d.policy = p }
}

// New returns a Dispatcher.
func New(st SettingsLoader, orderRepo OrderRepo, resolver TargetResolver, submitter PurchaseSubmitter, gw crm.Gateway, logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		settings:  st,
		orders:    orderRepo,
		resolver:  resolver,
		submitter: submitter,
		gw:        gw,
		policy:    subscription.ConsentPolicy{},
		logger:    logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// OnOrderCreated stores a new order with its checkout opt-in and evaluates the
// transition into its initial status. Without a displayed checkbox consent is implied.
func (d *Dispatcher) OnOrderCreated(ctx context.Context, order orders.Order, optInChecked bool) error {
	st, err := d.settings.Load(ctx)
	if err != nil {
		return err
	}
	order.OptIn = !st.DisplayOptIn || optInChecked
	order.OptInProcessed = false
	order.PurchaseDataSent = false
	order.PurchaseDataID = ""
	err = d.orders.Create(ctx, order)
	if errors.Is(err, orders.ErrOrderExists) {
		return d.replayCreated(ctx, order.OrderID, order.Status, st)
	}
	if err != nil {
		return err
	}
	return d.HandleTransition(ctx, &order, "", order.Status, st)
}

// replayCreated re-evaluates the initial transition of an order recorded by an
// earlier call whose transition may not have completed. The markers keep the
// replay from subscribing or sending twice. ErrOrderExists is still returned once
// the transition succeeded.
func (d *Dispatcher) replayCreated(ctx context.Context, orderID, initialStatus string, st settings.Settings) error {
	stored, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if stored.Status == initialStatus {
		if err := d.HandleTransition(ctx, stored, "", initialStatus, st); err != nil {
			return err
		}
	}
	return orders.ErrOrderExists
}

// OnOrderStatusChanged loads the order and configuration and evaluates the transition.
func (d *Dispatcher) OnOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error {
	if oldStatus == newStatus {
		return nil
	}
	st, err := d.settings.Load(ctx)
	if err != nil {
		return err
	}
	order, err := d.orders.Get(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	return d.HandleTransition(ctx, order, oldStatus, newStatus, st)
}

// HandleTransition runs both gates independently. CRM failures are annotated on the
// order and logged; only storage and configuration failures are returned.
func (d *Dispatcher) HandleTransition(ctx context.Context, order *orders.Order, oldStatus, newStatus string, st settings.Settings) error {
	log := d.logger.With(
		zap.String("order_id", order.OrderID),
		zap.String("old_status", oldStatus),
		zap.String("new_status", newStatus))

	var errs []error
	if ShouldSubscribe(order, oldStatus, newStatus, st, d.policy) {
		if err := d.subscribe(ctx, order, st, log); err != nil {
			errs = append(errs, fmt.Errorf("subscribe: %w", err))
		}
	}
	if ShouldSubmitPurchase(oldStatus, newStatus, st) {
		id, err := d.submitter.Submit(ctx, order, st)
		switch {
		case err == nil:
			log.Info("purchase submitted", zap.String("purchase_id", id))
		case errors.Is(err, purchase.ErrAlreadySent), errors.Is(err, purchase.ErrPurchaseInFlight):
			log.Debug("purchase skipped", zap.Error(err))
		case crm.IsRemote(err), crm.IsValidation(err):
			log.Warn("purchase rejected by CRM", zap.Error(err))
		default:
			errs = append(errs, fmt.Errorf("submit purchase: %w", err))
		}
	}
	return errors.Join(errs...)
}

// subscribe adds the customer to every resolved target, then sets the opt-in marker.
// Individual target failures are annotated and do not keep the marker unset.
func (d *Dispatcher) subscribe(ctx context.Context, order *orders.Order, st settings.Settings, log *zap.Logger) error {
	targets, err := d.resolver.Resolve(ctx, order, st)
	if err != nil {
		return err
	}

	name := st.NameFormat.Format(order.FirstName, order.LastName)
	fields := st.CustomFields.Values(order)
	var subscriberID int64

	for _, t := range targets {
		var err error
		switch t.Kind {
		case crm.KindForm:
			if subscriberID == 0 {
				var sub crm.Subscriber
				sub, err = d.gw.CreateSubscriber(ctx, order.Email, name, st.SubscriberState, fields)
				subscriberID = sub.ID
			}
			if err == nil && t.Legacy {
				err = d.gw.AddSubscriberToLegacyForm(ctx, t.ID, subscriberID)
			} else if err == nil {
				err = d.gw.AddSubscriberToForm(ctx, t.ID, subscriberID)
			}
		case crm.KindTag:
			err = d.gw.TagSubscribe(ctx, t.ID, order.Email, name, fields)
		case crm.KindSequence:
			err = d.gw.SequenceSubscribe(ctx, t.ID, order.Email, name, fields)
		default:
			err = &crm.ValidationError{Field: "target", Reason: fmt.Sprintf("unknown kind %q", t.Kind)}
		}

		if err != nil {
			log.Warn("subscribe failed", zap.String("target", t.String()), zap.Error(err))
			d.note(ctx, order.OrderID, fmt.Sprintf("[CRM] Subscribing customer to %s failed: %v", t, err))
			continue
		}
		log.Info("customer subscribed", zap.String("target", t.String()))
		d.note(ctx, order.OrderID, fmt.Sprintf("[CRM] Customer subscribed to %s.", t))
	}

	if err := d.orders.MarkOptInProcessed(ctx, order.OrderID); err != nil {
		return fmt.Errorf("set opt-in marker: %w", err)
	}
	order.OptInProcessed = true
	return nil
}

func (d *Dispatcher) note(ctx context.Context, orderID, message string) {
	if err := d.orders.AddNote(ctx, orderID, message); err != nil {
		d.logger.Error("add order note", zap.String("order_id", orderID), zap.Error(err))
	}
}

// Package backfill replays purchase submission for orders that never got their
// purchase data into the CRM.
package backfill

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/aws"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/purchase"
	"github.com/imrishuroy/go-crm-ordersync/internal/settings"
)

// Candidates lists orders without a purchase marker.
type Candidates interface {
	ListAwaitingPurchase(ctx context.Context, statuses []string, limit int) ([]orders.Order, error)
}

// Submitter submits purchase data once per order.
type Submitter interface {
	Submit(ctx context.Context, order *orders.Order, st settings.Settings) (string, error)
}

// SummaryPublisher records the outcome of a run.
type SummaryPublisher interface {
	PublishReconcileSummary(ctx context.Context, trigger string, s aws.ReconcileSummary) error
}

// Result is the outcome for one candidate order.
type Result struct {
	OrderID    string
	PurchaseID string
	// Skipped is set when another submitter already sent or is sending the order.
	Skipped bool
	Err     error
}

// Reconciler runs backfills.
type Reconciler struct {
	candidates Candidates
	submitter  Submitter
	metrics    SummaryPublisher
	trigger    string
	logger     *zap.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithTrigger names what started the run in published metrics ("cli", "api").
func WithTrigger(trigger string) Option {
	return func(r *Reconciler) { r.trigger = trigger }
}

// NewReconciler returns a Reconciler. metrics may be nil.
func NewReconciler(candidates Candidates, submitter Submitter, metrics SummaryPublisher, logger *zap.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reconciler{candidates: candidates, submitter: submitter, metrics: metrics, trigger: "manual", logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Reconcile submits purchase data for up to limit orders (limit <= 0 means all)
// whose status is at or beyond the purchase trigger status and whose marker is
// unset. Orders are processed one at a time; a failing order never stops the run.
// The returned error covers only the candidate query.
func (r *Reconciler) Reconcile(ctx context.Context, st settings.Settings, limit int) ([]Result, error) {
	statuses := orders.StatusesAtOrBeyond(st.PurchaseEvent)
	candidates, err := r.candidates.ListAwaitingPurchase(ctx, statuses, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	r.logger.Info("backfill candidates", zap.Int("count", len(candidates)), zap.Strings("statuses", statuses))

	results := make([]Result, 0, len(candidates))
	for i := range candidates {
		order := &candidates[i]
		res := Result{OrderID: order.OrderID}
		res.PurchaseID, res.Err = r.submitter.Submit(ctx, order, st)
		if errors.Is(res.Err, purchase.ErrAlreadySent) || errors.Is(res.Err, purchase.ErrPurchaseInFlight) {
			res.Skipped = true
		}

		log := r.logger.With(zap.String("order_id", order.OrderID))
		switch {
		case res.Skipped:
			log.Info("backfill skipped", zap.Error(res.Err))
		case res.Err != nil:
			log.Warn("backfill failed", zap.Error(res.Err))
		default:
			log.Info("backfill sent", zap.String("purchase_id", res.PurchaseID))
		}
		results = append(results, res)
	}

	summary := Summarize(results)
	if r.metrics != nil {
		if err := r.metrics.PublishReconcileSummary(ctx, r.trigger, summary); err != nil {
			r.logger.Warn("publish backfill metrics", zap.Error(err))
		}
	}
	r.logger.Info("backfill finished",
		zap.Int("candidates", summary.Candidates),
		zap.Int("sent", summary.Sent),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return results, nil
}

// Summarize counts the results of a run.
func Summarize(results []Result) aws.ReconcileSummary {
	s := aws.ReconcileSummary{Candidates: len(results)}
	for _, r := range results {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Err != nil:
			s.Failed++
		default:
			s.Sent++
		}
	}
	return s
}

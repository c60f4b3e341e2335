// Package app wires the service's components together. Every binary builds one App.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/aws"
	"github.com/imrishuroy/go-crm-ordersync/internal/backfill"
	"github.com/imrishuroy/go-crm-ordersync/internal/catalog"
	"github.com/imrishuroy/go-crm-ordersync/internal/config"
	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/dispatcher"
	"github.com/imrishuroy/go-crm-ordersync/internal/idempotency"
	"github.com/imrishuroy/go-crm-ordersync/internal/options"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/purchase"
	"github.com/imrishuroy/go-crm-ordersync/internal/resources"
	"github.com/imrishuroy/go-crm-ordersync/internal/settings"
	"github.com/imrishuroy/go-crm-ordersync/internal/subscription"
)

// OptionStore is the key/value store behind settings, cached resources and
// catalog overrides.
type OptionStore interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, key string) error
}

// OrderStore is everything the service does with orders.
type OrderStore interface {
	dispatcher.OrderRepo
	purchase.OrderMarkers
	backfill.Candidates
	UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error
}

// EventPublisher hands a status change to the dispatcher, usually through SQS.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, msg aws.StatusChangedMessage) error
}

// Stores groups the persistence the service runs on.
type Stores struct {
	Options OptionStore
	Orders  OrderStore
	Claims  purchase.Claims
}

// DynamoStores returns the DynamoDB backed stores.
func DynamoStores(client aws.DynamoDBAPI, cfg config.Config) Stores {
	return Stores{
		Options: options.NewStore(client, cfg.OptionsTable),
		Orders:  orders.NewStore(client, cfg.OrdersTable, cfg.OrdersStatusIdx),
		Claims:  idempotency.NewStore(client, cfg.ClaimsTable, cfg.ClaimLease),
	}
}

// MemoryStores returns in-process stores.
func MemoryStores(cfg config.Config) Stores {
	return Stores{
		Options: options.NewMemory(),
		Orders:  orders.NewMemory(),
		Claims:  idempotency.NewMemory(cfg.ClaimLease),
	}
}

// App holds the wired components.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Stores Stores
	CRM    crm.Gateway

	Settings   *settings.Store
	Resources  *resources.Set
	Catalog    *catalog.Store
	Resolver   *subscription.Resolver
	Submitter  *purchase.Submitter
	Dispatcher *dispatcher.Dispatcher
	Reconciler *backfill.Reconciler
	Events     EventPublisher
	Metrics    backfill.SummaryPublisher
}

// New builds the App for cfg, connecting to AWS unless cfg.InMemory is set.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	gw, err := crm.NewClient(crm.ClientConfig{
		BaseURL:     cfg.CRMBaseURL,
		AccessToken: cfg.CRMAccessToken,
		Timeout:     cfg.CRMTimeout,
		RatePerSec:  cfg.CRMRatePerSec,
		Burst:       cfg.CRMRateBurst,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("crm client: %w", err)
	}

	if cfg.InMemory {
		logger.Warn("running with in-memory state; nothing is persisted")
		return Build(cfg, logger, gw, MemoryStores(cfg), nil, nil), nil
	}

	clients, err := aws.NewAWSClients(ctx, cfg.AWSMaxAttempts)
	if err != nil {
		return nil, fmt.Errorf("aws clients: %w", err)
	}
	return Build(cfg, logger, gw, DynamoStores(clients.DynamoDB, cfg),
		aws.NewPublisher(clients.SQS, cfg.QueueURL),
		aws.NewMetricsPublisher(clients.CloudWatch, cfg.MetricsNamespace)), nil
}

// Build wires the components on top of the given collaborators. A nil events
// publisher dispatches status changes inline; nil metrics disables them.
func Build(cfg config.Config, logger *zap.Logger, gw crm.Gateway, stores Stores, events EventPublisher, metrics backfill.SummaryPublisher) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Stores: stores, CRM: gw, Metrics: metrics}

	a.Settings = settings.NewStore(stores.Options)
	a.Resources = resources.NewSet(gw, resources.NewOptionEntryStore(stores.Options), cfg.ResourceCacheTTL, logger)
	a.Catalog = catalog.NewStore(stores.Options)
	a.Resolver = subscription.NewResolver(a.Catalog, a.Resources, logger)
	a.Submitter = purchase.NewSubmitter(gw, stores.Orders, stores.Claims, logger)

	var policy subscription.OptInPolicy = subscription.ConsentPolicy{}
	if cfg.SkipRenewalOptIn {
		policy = subscription.RenewalPolicy{Base: policy}
	}
	a.Dispatcher = dispatcher.New(a.Settings, stores.Orders, a.Resolver, a.Submitter, gw, logger,
		dispatcher.WithOptInPolicy(policy))
	a.Reconciler = a.NewReconciler("api")

	if events == nil {
		events = InlineEvents{Dispatcher: a.Dispatcher}
	}
	a.Events = events
	return a
}

// NewReconciler returns a backfill Reconciler reporting metrics under trigger.
func (a *App) NewReconciler(trigger string) *backfill.Reconciler {
	return backfill.NewReconciler(a.Stores.Orders, a.Submitter, a.Metrics, a.Logger, backfill.WithTrigger(trigger))
}

// InlineEvents delivers status changes straight to the dispatcher.
type InlineEvents struct {
	Dispatcher *dispatcher.Dispatcher
}

func (e InlineEvents) PublishStatusChanged(ctx context.Context, msg aws.StatusChangedMessage) error {
	return e.Dispatcher.OnOrderStatusChanged(ctx, msg.OrderID, msg.OldStatus, msg.NewStatus)
}

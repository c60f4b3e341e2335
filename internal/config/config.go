package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the runtime configuration shared by the api, worker and CLI binaries.
type Config struct {
	OptionsTable     string `env:"ORDERSYNC_OPTIONS_TABLE" envDefault:"ordersync-options"`
	OrdersTable      string `env:"ORDERSYNC_ORDERS_TABLE" envDefault:"ordersync-orders"`
	OrdersStatusIdx  string `env:"ORDERSYNC_ORDERS_STATUS_INDEX" envDefault:"status-index"`
	ClaimsTable      string `env:"ORDERSYNC_CLAIMS_TABLE" envDefault:"ordersync-purchase-claims"`
	QueueURL         string `env:"ORDERSYNC_QUEUE_URL"`
	MetricsNamespace string `env:"ORDERSYNC_METRICS_NAMESPACE" envDefault:"OrderSync"`
	AWSMaxAttempts   int    `env:"ORDERSYNC_AWS_MAX_ATTEMPTS" envDefault:"5"`

	CRMBaseURL     string        `env:"ORDERSYNC_CRM_BASE_URL" envDefault:"https://api.kit.com"`
	CRMAccessToken string        `env:"ORDERSYNC_CRM_ACCESS_TOKEN"`
	CRMTimeout     time.Duration `env:"ORDERSYNC_CRM_TIMEOUT" envDefault:"15s"`
	CRMRatePerSec  float64       `env:"ORDERSYNC_CRM_RATE_PER_SEC" envDefault:"2"`
	CRMRateBurst   int           `env:"ORDERSYNC_CRM_RATE_BURST" envDefault:"4"`

	// ResourceCacheTTL defaults to a year: reference data changes rarely and the CRM
	// rate limits list calls.
	ResourceCacheTTL time.Duration `env:"ORDERSYNC_RESOURCE_CACHE_TTL" envDefault:"8760h"`
	ClaimLease       time.Duration `env:"ORDERSYNC_PURCHASE_CLAIM_LEASE" envDefault:"10m"`

	// SkipRenewalOptIn never subscribes customers from subscription renewal or
	// resubscribe orders.
	SkipRenewalOptIn bool `env:"ORDERSYNC_SKIP_RENEWAL_OPT_IN" envDefault:"true"`

	// InMemory keeps all state in process and dispatches status changes inline
	// instead of through SQS. Local development only.
	InMemory bool `env:"ORDERSYNC_IN_MEMORY" envDefault:"false"`

	LogLevel string `env:"ORDERSYNC_LOG_LEVEL" envDefault:"info"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values env parsing cannot.
func (c Config) Validate() error {
	var errs []error
	if c.OptionsTable == "" || c.OrdersTable == "" || c.ClaimsTable == "" {
		errs = append(errs, errors.New("config: table names are required"))
	}
	if c.CRMRatePerSec <= 0 || c.CRMRateBurst <= 0 {
		errs = append(errs, errors.New("config: CRM rate limit must be positive"))
	}
	if c.ResourceCacheTTL <= 0 {
		errs = append(errs, errors.New("config: resource cache TTL must be positive"))
	}
	if !c.InMemory && c.QueueURL == "" {
		errs = append(errs, errors.New("config: queue URL is required"))
	}
	if c.CRMAccessToken == "" {
		errs = append(errs, errors.New("config: CRM access token is required"))
	}
	if c.ClaimLease <= 0 {
		errs = append(errs, errors.New("config: purchase claim lease must be positive"))
	}
	return errors.Join(errs...)
}

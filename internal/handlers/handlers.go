package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/app"
	"github.com/imrishuroy/go-crm-ordersync/internal/backfill"
	"github.com/imrishuroy/go-crm-ordersync/internal/catalog"
	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/dispatcher"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/purchase"
	"github.com/imrishuroy/go-crm-ordersync/internal/resources"
	"github.com/imrishuroy/go-crm-ordersync/internal/settings"
	"github.com/imrishuroy/go-crm-ordersync/internal/validation"
)

// HandlerConfig groups dependencies for the HTTP handlers.
type HandlerConfig struct {
	Orders     app.OrderStore
	Events     app.EventPublisher
	Dispatcher *dispatcher.Dispatcher
	Submitter  *purchase.Submitter
	Reconciler *backfill.Reconciler
	Settings   *settings.Store
	Resources  *resources.Set
	Catalog    *catalog.Store
	Logger     *zap.Logger
}

// ConfigFromApp returns the handler dependencies of a wired App.
func ConfigFromApp(a *app.App) HandlerConfig {
	return HandlerConfig{
		Orders:     a.Stores.Orders,
		Events:     a.Events,
		Dispatcher: a.Dispatcher,
		Submitter:  a.Submitter,
		Reconciler: a.Reconciler,
		Settings:   a.Settings,
		Resources:  a.Resources,
		Catalog:    a.Catalog,
		Logger:     a.Logger,
	}
}

type api struct {
	cfg HandlerConfig
	v   *validatorv10.Validate
	log *zap.Logger
}

// RegisterRoutes registers every API route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &api{cfg: cfg, v: validation.New(), log: cfg.Logger}

	r.POST("/orders", h.createOrder)
	r.POST("/orders/:id/status", h.changeStatus)
	r.POST("/orders/:id/purchase/resync", h.resyncPurchase)
	r.POST("/purchases/reconcile", h.reconcile)

	r.GET("/settings", h.getSettings)
	r.PUT("/settings", h.putSettings)

	r.GET("/resources/:type", h.getResources)
	r.POST("/resources/:type/refresh", h.refreshResources)

	r.PUT("/products/:id/subscription", h.putProductTarget)
	r.PUT("/coupons/:code/subscription", h.putCouponTarget)
}

// writeError maps domain errors onto HTTP responses.
func (h *api) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, orders.ErrOrderExists):
		c.JSON(http.StatusConflict, gin.H{"error": "order_exists"})
	case errors.Is(err, orders.ErrStatusMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "status_mismatch"})
	case errors.Is(err, purchase.ErrAlreadySent):
		c.JSON(http.StatusConflict, gin.H{"error": "already_sent"})
	case errors.Is(err, purchase.ErrPurchaseInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "in_progress"})
	case crm.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "detail": err.Error()})
	case crm.IsRemote(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "crm_error", "detail": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
	}
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/aws"
	"github.com/imrishuroy/go-crm-ordersync/internal/backfill"
	"github.com/imrishuroy/go-crm-ordersync/internal/orders"
	"github.com/imrishuroy/go-crm-ordersync/internal/validation"
)

func (h *api) createOrder(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	if sum, mismatch := req.ItemsSubtotal(); mismatch {
		h.log.Warn("order subtotal differs from line items",
			zap.String("order_id", req.OrderID),
			zap.Float64("subtotal", req.Subtotal),
			zap.Float64("items_sum", sum))
	}

	order := req.ToOrder()
	if err := h.cfg.Dispatcher.OnOrderCreated(ctx, order, req.OptInChecked); err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
	c.JSON(http.StatusCreated, gin.H{"order_id": order.OrderID, "status": order.Status})
}

// changeStatus records a transition reported by the commerce platform and hands it
// to the worker.
func (h *api) changeStatus(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("id")

	var req validation.StatusChangeRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	if req.OldStatus == req.NewStatus {
		c.JSON(http.StatusOK, gin.H{"order_id": orderID, "status": req.NewStatus, "changed": false})
		return
	}

	// A retry after a failed enqueue finds the new status already stored; the event is
	// published again and the dispatcher's markers keep it from acting twice.
	redelivery := false
	if err := h.cfg.Orders.UpdateStatus(ctx, orderID, req.OldStatus, req.NewStatus); err != nil {
		if !errors.Is(err, orders.ErrStatusMismatch) {
			h.writeError(c, err)
			return
		}
		stored, getErr := h.cfg.Orders.Get(ctx, orderID)
		if getErr != nil || stored.Status != req.NewStatus {
			h.writeError(c, err)
			return
		}
		redelivery = true
	}

	correlationID := c.GetHeader("X-Request-Id")
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	msg := aws.StatusChangedMessage{
		OrderID:       orderID,
		OldStatus:     req.OldStatus,
		NewStatus:     req.NewStatus,
		CorrelationID: correlationID,
		OccurredAt:    time.Now().UTC(),
	}
	if err := h.cfg.Events.PublishStatusChanged(ctx, msg); err != nil {
		h.log.Error("enqueue status change",
			zap.String("order_id", orderID),
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed", "detail": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"order_id":       orderID,
		"status":         req.NewStatus,
		"changed":        !redelivery,
		"redelivered":    redelivery,
		"correlation_id": correlationID,
	})
}

// resyncPurchase submits purchase data for one order on demand, regardless of the
// automatic purchase gate.
func (h *api) resyncPurchase(c *gin.Context) {
	ctx := c.Request.Context()
	orderID := c.Param("id")

	st, err := h.cfg.Settings.Load(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	order, err := h.cfg.Orders.Get(ctx, orderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	purchaseID, err := h.cfg.Submitter.Submit(ctx, order, st)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order_id": orderID, "purchase_id": purchaseID})
}

type reconcileResult struct {
	OrderID    string `json:"order_id"`
	PurchaseID string `json:"purchase_id,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Error      string `json:"error,omitempty"`
}

// reconcile backfills purchase data for orders at or beyond the purchase status.
func (h *api) reconcile(c *gin.Context) {
	ctx := c.Request.Context()

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
			return
		}
		limit = n
	}

	st, err := h.cfg.Settings.Load(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	results, err := h.cfg.Reconciler.Reconcile(ctx, st, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]reconcileResult, 0, len(results))
	for _, r := range results {
		rr := reconcileResult{OrderID: r.OrderID, PurchaseID: r.PurchaseID, Skipped: r.Skipped}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		}
		out = append(out, rr)
	}
	s := backfill.Summarize(results)
	c.JSON(http.StatusOK, gin.H{
		"summary": gin.H{
			"candidates": s.Candidates,
			"sent":       s.Sent,
			"skipped":    s.Skipped,
			"failed":     s.Failed,
		},
		"results": out,
	})
}

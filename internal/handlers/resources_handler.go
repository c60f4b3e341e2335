package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/validation"
)

func (h *api) getResources(c *gin.Context) {
	t := crm.ResourceType(c.Param("type"))
	list, err := h.cfg.Resources.Get(c.Request.Context(), t)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": t, "resources": list})
}

func (h *api) refreshResources(c *gin.Context) {
	t := crm.ResourceType(c.Param("type"))
	list, err := h.cfg.Resources.Refresh(c.Request.Context(), t)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"type": t, "resources": list})
}

func (h *api) putProductTarget(c *gin.Context) {
	var req validation.TargetRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	id := c.Param("id")
	if err := h.cfg.Catalog.PutProductTarget(c.Request.Context(), id, req.Target); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product_id": id, "target": req.Target})
}

func (h *api) putCouponTarget(c *gin.Context) {
	var req validation.TargetRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	code := c.Param("code")
	if err := h.cfg.Catalog.PutCouponTarget(c.Request.Context(), code, req.Target); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupon_code": code, "target": req.Target})
}

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-crm-ordersync/internal/crm"
	"github.com/imrishuroy/go-crm-ordersync/internal/validation"
)

func (h *api) getSettings(c *gin.Context) {
	st, err := h.cfg.Settings.Load(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// putSettings saves the configuration. Fields missing from the body keep their
// stored values. Cached resources are dropped and, when the integration is enabled,
// refetched so a bad access token shows up immediately.
func (h *api) putSettings(c *gin.Context) {
	ctx := c.Request.Context()

	st, err := h.cfg.Settings.Load(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := c.ShouldBindJSON(&st); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	if err := h.cfg.Settings.Save(ctx, st); err != nil {
		var ve validatorv10.ValidationErrors
		if errors.As(err, &ve) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": validation.FieldErrors(err)})
			return
		}
		h.writeError(c, err)
		return
	}

	var warnings []string
	if err := h.cfg.Resources.InvalidateAll(ctx); err != nil {
		h.log.Warn("invalidate resource caches", zap.Error(err))
		warnings = append(warnings, "resource cache could not be cleared")
	}
	if st.Enabled {
		if err := h.cfg.Resources.RefreshAll(ctx); err != nil {
			h.log.Warn("refresh resources after settings change", zap.Error(err))
			if crm.IsUnauthorized(err) {
				warnings = append(warnings, "credentials appear invalid")
			} else {
				warnings = append(warnings, "resources could not be refreshed")
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"settings": st, "warnings": warnings})
}

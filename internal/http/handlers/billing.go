package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/sitechat-backend/internal/http/response"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/services"
)

// Stripe payloads are small; anything larger is not an event.
const maxWebhookBytes = 1 << 16

type BillingHandler struct {
	log     *logger.Logger
	billing services.BillingService
}

func NewBillingHandler(log *logger.Logger, billing services.BillingService) *BillingHandler {
	return &BillingHandler{log: log.With("handler", "BillingHandler"), billing: billing}
}

// GET /api/billing/plans
func (h *BillingHandler) Plans(c *gin.Context) {
	response.RespondOK(c, gin.H{"plans": h.billing.Plans()})
}

type checkoutReq struct {
	Plan string `json:"plan"`
}

// POST /api/workspaces/:id/billing/checkout
func (h *BillingHandler) Checkout(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	var req checkoutReq
	if !bindJSON(c, &req) {
		return
	}
	url, err := h.billing.Checkout(dbcOf(c), wsID, req.Plan)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"url": url})
}

// POST /api/workspaces/:id/billing/portal
func (h *BillingHandler) Portal(c *gin.Context) {
	wsID, ok := uuidParam(c, "id", "invalid_workspace_id")
	if !ok {
		return
	}
	url, err := h.billing.Portal(dbcOf(c), wsID)
	if err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"url": url})
}

// POST /api/billing/webhook
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if len(payload) > maxWebhookBytes {
		c.AbortWithStatus(http.StatusRequestEntityTooLarge)
		return
	}
	if err := h.billing.HandleWebhook(dbcOf(c), payload, c.GetHeader("Stripe-Signature")); err != nil {
		response.RespondAPIError(c, h.log, err)
		return
	}
	response.RespondOK(c, gin.H{"received": true})
}

package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"notifyhub/internal/service"
)

// DeliveryHandler exposes the delivery state machine to out-of-process
// workers: fetch due attempts, claim one, report the outcome.
type DeliveryHandler struct {
	delivery *service.DeliveryService
}

func NewDeliveryHandler(delivery *service.DeliveryService) *DeliveryHandler {
	return &DeliveryHandler{delivery: delivery}
}

// Pending handles GET /delivery/pending
func (h *DeliveryHandler) Pending(c *gin.Context) {
	limit, _ := pageParams(c)

	attempts, err := h.delivery.GetPending(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": attempts, "total": len(attempts)})
}

// Claim handles POST /delivery/:id/claim
func (h *DeliveryHandler) Claim(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		WorkerID     string `json:"worker_id" binding:"required"`
		LeaseSeconds int    `json:"lease_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "worker_id required"})
		return
	}

	lease := 2 * time.Minute
	if req.LeaseSeconds > 0 {
		lease = time.Duration(req.LeaseSeconds) * time.Second
	}

	claimed, err := h.delivery.Claim(c.Request.Context(), id, req.WorkerID, lease)
	if err != nil {
		respondError(c, err)
		return
	}
	if !claimed {
		c.JSON(http.StatusConflict, gin.H{"error": "attempt is leased or terminal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "claimed"})
}

// MarkDelivered handles POST /delivery/:id/success. worker_id is optional:
// when present the completion only succeeds while that worker holds the claim.
func (h *DeliveryHandler) MarkDelivered(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		WorkerID          string `json:"worker_id"`
		ExternalMessageID string `json:"external_message_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	a, err := h.delivery.MarkDelivered(c.Request.Context(), id, req.WorkerID, req.ExternalMessageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// MarkFailed handles POST /delivery/:id/failure. worker_id is optional, as in
// MarkDelivered.
func (h *DeliveryHandler) MarkFailed(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		WorkerID     string `json:"worker_id"`
		ErrorMessage string `json:"error_message" binding:"required"`
		StatusCode   *int   `json:"status_code"`
		Retryable    bool   `json:"retryable"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "error_message required"})
		return
	}

	a, err := h.delivery.MarkFailed(c.Request.Context(), id, req.WorkerID, req.ErrorMessage, req.StatusCode, req.Retryable)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

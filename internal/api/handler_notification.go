package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notifyhub/internal/service"
)

type NotificationHandler struct {
	dispatch *service.DispatchService
	delivery *service.DeliveryService
}

func NewNotificationHandler(dispatch *service.DispatchService, delivery *service.DeliveryService) *NotificationHandler {
	return &NotificationHandler{dispatch: dispatch, delivery: delivery}
}

// Send handles POST /notifications
func (h *NotificationHandler) Send(c *gin.Context) {
	var in service.SendInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result, err := h.dispatch.Send(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// List handles GET /users/:user_id/notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	limit, offset := pageParams(c)

	items, total, err := h.dispatch.List(c.Request.Context(), userID,
		queryBool(c, "unread_only"), queryBool(c, "include_deleted"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pagedResponse(items, total, limit, offset))
}

// Get handles GET /notifications/:id
func (h *NotificationHandler) Get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	n, err := h.dispatch.Get(c.Request.Context(), userID, id, queryBool(c, "include_deleted"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// MarkRead handles PUT /notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	n, err := h.dispatch.MarkRead(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// Delete handles DELETE /notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	if err := h.dispatch.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// Attempts handles GET /notifications/:id/attempts
func (h *NotificationHandler) Attempts(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	// Ownership is enforced by the notification read.
	if _, err := h.dispatch.Get(c.Request.Context(), userID, id, true); err != nil {
		respondError(c, err)
		return
	}

	attempts, err := h.delivery.AttemptsForNotification(c.Request.Context(), id, queryBool(c, "include_deleted"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": attempts, "total": len(attempts)})
}

// Stats handles GET /notifications/:id/delivery-stats
func (h *NotificationHandler) Stats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := queryUserID(c)
	if !ok {
		return
	}

	if _, err := h.dispatch.Get(c.Request.Context(), userID, id, true); err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.delivery.StatsForNotification(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"notifyhub/internal/apperr"
)

// respondError maps service-layer errors onto HTTP statuses. Unrecognized
// errors become 500 without leaking internals to the client.
func respondError(c *gin.Context, err error) {
	var (
		validationErr *apperr.ValidationError
		notFoundErr   *apperr.NotFoundError
		forbiddenErr  *apperr.ForbiddenError
		stateErr      *apperr.InvalidStateError
		transitionErr *apperr.InvalidTransitionError
		missingVarErr *apperr.MissingVariableError
		depErr        *apperr.DependencyUnavailableError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Error()})
	case errors.As(err, &missingVarErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": missingVarErr.Error()})
	case errors.As(err, &forbiddenErr):
		c.JSON(http.StatusForbidden, gin.H{"error": forbiddenErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": transitionErr.Error()})
	case errors.As(err, &depErr):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "a backing dependency is unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// pageParams reads limit/offset query parameters with defaults and caps.
func pageParams(c *gin.Context) (limit, offset int) {
	limit = defaultPageLimit
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// pagedResponse is the envelope for list endpoints.
func pagedResponse(items any, total, limit, offset int) gin.H {
	return gin.H{
		"items":  items,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}
}

// pathID parses the :id path segment.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryUserID reads the acting user from the user_id query parameter.
// Authentication happens upstream; this service only needs the identity.
func queryUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("user_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter required"})
		return 0, false
	}
	return id, true
}

func queryBool(c *gin.Context, name string) bool {
	v, _ := strconv.ParseBool(c.Query(name))
	return v
}

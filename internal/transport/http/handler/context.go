package handler

import (
	"github.com/gin-gonic/gin"

	"pdfchat/internal/transport/http/middleware"
)

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(middleware.ContextUserIDKey)
	if !exists {
		return 0, false
	}
	userID, ok := raw.(uint)
	if !ok || userID == 0 {
		return 0, false
	}
	return userID, true
}

func getSessionIDFromContext(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(middleware.ContextSessionIDKey)
	if !exists {
		return 0, false
	}
	sessionID, ok := raw.(uint)
	if !ok || sessionID == 0 {
		return 0, false
	}
	return sessionID, true
}

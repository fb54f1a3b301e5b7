package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/lifecycle"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/response"
)

type SessionHandler struct {
	sessionService *app.SessionService
}

type CreateSessionRequest struct {
	Title    string                 `json:"title" binding:"max=256"`
	Metadata map[string]interface{} `json:"metadata"`
}

func NewSessionHandler(sessionService *app.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Create(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.sessionService.CreateSession(app.CreateSessionInput{
		UserID:   userID,
		Title:    req.Title,
		Metadata: req.Metadata,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrUserNotFound):
			response.Error(c, http.StatusNotFound, response.CodeUserNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		}
		return
	}

	response.OK(c, session)
}

func (h *SessionHandler) List(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var status *model.SessionStatus
	if raw := c.Query("status"); raw != "" {
		parsed, err := model.ParseSessionStatus(raw)
		if err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		status = &parsed
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	sessions, err := h.sessionService.ListSessions(userID, status, limit)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}
	response.OK(c, sessions)
}

func (h *SessionHandler) Get(c *gin.Context) {
	userID, sessionID, ok := h.resolve(c)
	if !ok {
		return
	}

	session, err := h.sessionService.GetSession(sessionID, userID)
	if err != nil {
		h.writeError(c, err, "get session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Archive(c *gin.Context) {
	userID, sessionID, ok := h.resolve(c)
	if !ok {
		return
	}

	session, err := h.sessionService.ArchiveSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.writeError(c, err, "archive session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Reactivate(c *gin.Context) {
	userID, sessionID, ok := h.resolve(c)
	if !ok {
		return
	}

	session, err := h.sessionService.ReactivateSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		h.writeError(c, err, "reactivate session failed")
		return
	}
	response.OK(c, session)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	userID, sessionID, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := h.sessionService.DeleteSession(c.Request.Context(), sessionID, userID); err != nil {
		h.writeError(c, err, "delete session failed")
		return
	}
	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

func (h *SessionHandler) resolve(c *gin.Context) (userID, sessionID uint, ok bool) {
	userID, ok = getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return 0, 0, false
	}

	sessionID64, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || sessionID64 == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session id")
		return 0, 0, false
	}
	return userID, uint(sessionID64), true
}

func (h *SessionHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		response.Error(c, http.StatusConflict, response.CodeInvalidTransition, err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, fallback)
	}
}

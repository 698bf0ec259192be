package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"secmon-service/internal/session"
	"secmon-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SessionHandler handles HTTP requests for session lifecycle operations
type SessionHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

func NewSessionHandler(sessions *session.Manager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers all session routes
func (h *SessionHandler) RegisterRoutes(router chi.Router) {
	router.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Post("/activity", h.UpdateActivity)
		r.Post("/invalidate", h.InvalidateSession)
	})
	router.Post("/users/{userID}/sessions/invalidate", h.InvalidateUserSessions)
}

// CreateSession issues a new session token
// @Summary Create session
// @Description Issue a new session token for a user
// @Tags sessions
// @Accept json
// @Produce json
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /sessions [post]
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		UserID     string `json:"user_id"`
		ShortLived bool   `json:"short_lived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.UserID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("user id is required"), "User ID is required")
		return
	}

	token, err := h.sessions.Create(ctx, req.UserID, session.CreateOptions{
		ShortLived: req.ShortLived,
		IPAddress:  clientIP(r),
		UserAgent:  r.UserAgent(),
	})
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to create session")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(map[string]string{
		"token": token,
	}, "Session created"))
	h.logger.Info("Session created via HTTP",
		util.String("user_id", req.UserID),
		util.Bool("short_lived", req.ShortLived),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CreateSession"),
	)
}

// UpdateActivity refreshes last-activity for a session token
// @Summary Update session activity
// @Description Bump last-activity for an active, unexpired session
// @Tags sessions
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /sessions/activity [post]
func (h *SessionHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Token == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("token is required"), "Token is required")
		return
	}

	if !h.sessions.UpdateActivity(ctx, req.Token) {
		h.respondWithJSON(w, http.StatusNotFound, errorResponse(errors.New("session not active"), "Session not found, expired, or invalidated"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Session activity updated"))
}

// InvalidateSession revokes a single session
// @Summary Invalidate session
// @Description Revoke a session; invalidating an inactive session is a no-op success
// @Tags sessions
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /sessions/invalidate [post]
func (h *SessionHandler) InvalidateSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Token  string `json:"token"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Token == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("token is required"), "Token is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "User logout"
	}

	if !h.sessions.Invalidate(ctx, req.Token, req.Reason) {
		h.respondWithJSON(w, http.StatusNotFound, errorResponse(errors.New("session not found"), "Session not found"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Session invalidated"))
}

// InvalidateUserSessions revokes every session of a user
// @Summary Invalidate all user sessions
// @Description Revoke every active session of a user
// @Tags sessions
// @Accept json
// @Produce json
// @Param userID path string true "User ID"
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /users/{userID}/sessions/invalidate [post]
func (h *SessionHandler) InvalidateUserSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("user id is required"), "User ID is required")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Reason == "" {
		req.Reason = "Bulk revocation"
	}

	count, err := h.sessions.InvalidateAllForUser(ctx, userID, req.Reason)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to invalidate user sessions")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]int{
		"invalidated": count,
	}, "User sessions invalidated"))
	h.logger.Warn("All user sessions invalidated via HTTP",
		util.String("user_id", userID),
		util.Int("count", count),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "InvalidateUserSessions"),
	)
}

// respondWithJSON sends a JSON response
func (h *SessionHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *SessionHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

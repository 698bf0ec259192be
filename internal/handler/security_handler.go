package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"secmon-service/internal/security"
	"secmon-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SecurityHandler handles HTTP requests for security monitoring operations
type SecurityHandler struct {
	monitor *security.SecurityMonitor
	logger  *zap.Logger
}

func NewSecurityHandler(monitor *security.SecurityMonitor, logger *zap.Logger) *SecurityHandler {
	return &SecurityHandler{
		monitor: monitor,
		logger:  logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all security monitoring routes
func (h *SecurityHandler) RegisterRoutes(router chi.Router) {
	router.Route("/security", func(r chi.Router) {
		r.Post("/input", h.CheckInput)
		r.Post("/rate-limit", h.CheckRateLimit)
		r.Post("/login-attempt", h.RecordLoginAttempt)
		r.Post("/file-access", h.RecordFileAccess)
		r.Post("/sensitive-operation", h.LogSensitiveOperation)
	})
}

// CheckInput handles threat scanning of free-form input
// @Summary Scan input for threats
// @Description Scan free-form input for injection and scripting payloads
// @Tags security
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Router /security/input [post]
func (h *SecurityHandler) CheckInput(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Input  string `json:"input"`
		Source string `json:"source"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Source == "" {
		req.Source = "unknown"
	}

	threats := h.monitor.MonitorInput(ctx, req.Input, req.Source)

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"threats":      threats,
		"threat_count": len(threats),
	}, "Input scanned"))
	h.logger.Debug("Input scanned via HTTP",
		util.String("source", req.Source),
		util.Int("threat_count", len(threats)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CheckInput"),
	)
}

// CheckRateLimit counts one request against an identifier's window
// @Summary Check rate limit
// @Description Count one request for the identifier and report whether it is within budget
// @Tags security
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 429 {object} Response
// @Router /security/rate-limit [post]
func (h *SecurityHandler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Identifier == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("identifier is required"), "Identifier is required")
		return
	}

	allowed := h.monitor.CheckRateLimit(ctx, req.Identifier)
	if !allowed {
		h.respondWithJSON(w, http.StatusTooManyRequests, successResponse(map[string]bool{
			"allowed": false,
		}, "Rate limit exceeded"))
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]bool{
		"allowed": true,
	}, "Request within limits"))
}

// RecordLoginAttempt records a login outcome under the lockout policy
// @Summary Record login attempt
// @Description Record a login outcome and report whether it was accepted under the lockout policy
// @Tags security
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /security/login-attempt [post]
func (h *SecurityHandler) RecordLoginAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		Email   string `json:"email"`
		Success bool   `json:"success"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if err := util.ValidateEmail(req.Email); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid email address")
		return
	}

	allowed := h.monitor.MonitorLoginAttempt(ctx, req.Email, req.Success, clientIP(r), r.UserAgent())

	status := http.StatusOK
	message := "Login attempt recorded"
	if !allowed {
		status = http.StatusForbidden
		message = "Login attempt denied"
	}

	h.respondWithJSON(w, status, successResponse(map[string]bool{
		"allowed": allowed,
	}, message))
	h.logger.Debug("Login attempt recorded via HTTP",
		util.Bool("success", req.Success),
		util.Bool("allowed", allowed),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "RecordLoginAttempt"),
	)
}

// RecordFileAccess records the outcome of a file access authorization check
// @Summary Record file access
// @Description Record a file access outcome; denied access is audited
// @Tags security
// @Accept json
// @Produce json
// @Success 202 {object} Response
// @Failure 400 {object} Response
// @Router /security/file-access [post]
func (h *SecurityHandler) RecordFileAccess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID   string `json:"user_id"`
		FilePath string `json:"file_path"`
		Allowed  bool   `json:"allowed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.FilePath == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("file path is required"), "File path is required")
		return
	}

	h.monitor.MonitorFileAccess(ctx, req.UserID, req.FilePath, req.Allowed, clientIP(r))

	h.respondWithJSON(w, http.StatusAccepted, successResponse(nil, "File access recorded"))
}

// LogSensitiveOperation persists a flagged high-impact operation
// @Summary Log sensitive operation
// @Description Persist a flagged high-impact operation for heightened audit visibility
// @Tags security
// @Accept json
// @Produce json
// @Success 201 {object} Response
// @Failure 400 {object} Response
// @Failure 500 {object} Response
// @Router /security/sensitive-operation [post]
func (h *SecurityHandler) LogSensitiveOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req struct {
		UserID           string            `json:"user_id"`
		OperationType    string            `json:"operation_type"`
		Details          map[string]string `json:"details"`
		RequiresApproval bool              `json:"requires_approval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.OperationType == "" {
		h.respondWithError(w, http.StatusBadRequest, errors.New("operation type is required"), "Operation type is required")
		return
	}

	if err := h.monitor.LogSensitiveOperation(ctx, req.UserID, req.OperationType, req.Details, req.RequiresApproval); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, err, "Failed to log sensitive operation")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(nil, "Sensitive operation logged"))
	h.logger.Info("Sensitive operation logged via HTTP",
		util.String("operation_type", req.OperationType),
		util.Bool("requires_approval", req.RequiresApproval),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "LogSensitiveOperation"),
	)
}

// Helper Methods

// respondWithJSON sends a JSON response
func (h *SecurityHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *SecurityHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// clientIP extracts the caller address as seen by the transport. Returns an
// empty string when no valid address is available.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if net.ParseIP(addr) == nil {
		return ""
	}
	return addr
}

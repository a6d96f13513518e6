package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/halcyonhq/halcyon/internal/auth"
	"github.com/halcyonhq/halcyon/internal/model"
	"github.com/halcyonhq/halcyon/internal/service/setup"
	"github.com/halcyonhq/halcyon/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	setupSvc            *setup.Service
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	SetupSvc            *setup.Service
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		setupSvc:            d.SetupSvc,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleFinalize handles POST /finalize: persist a drafted system for the
// authenticated user.
func (h *Handlers) HandleFinalize(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "no claims in context")
		return
	}

	var req model.FinalizeRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, err)
		return
	}

	_, err := h.setupSvc.Finalize(r.Context(), claims.UserID, req.DraftSystem, setup.Params{})
	if err != nil {
		h.writeSetupError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SetupResponse{Success: true})
}

// HandleClaim handles POST /claim: persist a drafted system that was built
// before the user authenticated, at most once per draft id.
func (h *Handlers) HandleClaim(w http.ResponseWriter, r *http.Request) {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "no claims in context")
		return
	}

	var req model.ClaimRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, err)
		return
	}

	if req.DraftID == "" {
		writeError(w, http.StatusBadRequest, "draftId is required")
		return
	}

	_, err := h.setupSvc.Finalize(r.Context(), claims.UserID, req.DraftSystem, setup.Params{
		DraftID:      req.DraftID,
		RequireClaim: true,
	})
	if err != nil {
		h.writeSetupError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.SetupResponse{Success: true})
}

// writeSetupError maps engine errors onto the flat error contract.
func (h *Handlers) writeSetupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, setup.ErrAlreadyClaimed):
		writeError(w, http.StatusBadRequest, "Draft has already been claimed")
	case errors.Is(err, setup.ErrInvalidDraft):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("setup request failed",
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to finalize system")
	}
}

// HandleAuthToken handles POST /auth/token: exchange email + API key for a JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, err)
		return
	}
	if req.Email == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "email and apiKey are required")
		return
	}

	user, err := h.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil || user.APIKeyHash == nil {
		// Burn hash time anyway so response timing does not leak existence.
		auth.DummyVerify()
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, *user.APIKeyHash)
	if err != nil || !valid {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(user)
	if err != nil {
		h.logger.Error("issue token failed", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, model.AuthTokenResponse{Token: token, ExpiresAt: expiresAt})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	pgStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		pgStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, model.HealthResponse{
		Status:   status,
		Version:  h.version,
		Postgres: pgStatus,
		Uptime:   int64(time.Since(h.startedAt).Seconds()),
	})
}

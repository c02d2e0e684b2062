package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"ride-pool/internal/pool-service/domain"
	"ride-pool/internal/pool-service/service"
	"ride-pool/pkg/auth"
	"ride-pool/pkg/logger"
)

type rideRequester interface {
	Execute(ctx context.Context, cmd service.RequestRideCommand) (string, error)
}

type poolAccepter interface {
	Execute(ctx context.Context, cmd service.AcceptPoolCommand) (*domain.RidePool, error)
}

type membershipCanceller interface {
	Execute(ctx context.Context, cmd service.CancelMembershipCommand) (*domain.RidePool, error)
}

type poolCompleter interface {
	Execute(ctx context.Context, cmd service.CompletePoolCommand) (*domain.RidePool, error)
}

type poolReader interface {
	GetPool(ctx context.Context, poolID string) (*domain.RidePool, error)
	ListOpen(ctx context.Context) ([]*domain.RidePool, error)
	GetJob(ctx context.Context, jobID, passengerID string) (*service.JobRecord, error)
	Estimate(distanceKm float64, seats int) (service.FareEstimate, error)
}

// PoolHandler handles the ride pool HTTP API
type PoolHandler struct {
	requestRide      rideRequester
	acceptPool       poolAccepter
	cancelMembership membershipCanceller
	completePool     poolCompleter
	queries          poolReader
	limiter          limiter
	validate         *validator.Validate
	logger           logger.Logger
}

// NewPoolHandler creates a new pool handler
func NewPoolHandler(
	requestRide rideRequester,
	acceptPool poolAccepter,
	cancelMembership membershipCanceller,
	completePool poolCompleter,
	queries poolReader,
	limiter limiter,
	logger logger.Logger,
) *PoolHandler {
	return &PoolHandler{
		requestRide:      requestRide,
		acceptPool:       acceptPool,
		cancelMembership: cancelMembership,
		completePool:     completePool,
		queries:          queries,
		limiter:          limiter,
		validate:         validator.New(),
		logger:           logger,
	}
}

// Register mounts the authenticated API routes on mux.
func (h *PoolHandler) Register(mux *http.ServeMux, jwtManager *auth.JWTManager) {
	protect := func(fn http.HandlerFunc) http.Handler {
		return jwtManager.AuthMiddleware(fn)
	}
	driverOnly := func(fn http.HandlerFunc) http.Handler {
		return jwtManager.AuthMiddleware(requireRole(h.logger, auth.RoleDriver, fn))
	}
	mux.Handle("POST /api/v1/rides/request", jwtManager.AuthMiddleware(rateLimited(h.logger, h.limiter, http.HandlerFunc(h.RequestRide))))
	mux.Handle("GET /api/v1/rides/jobs/{job_id}", protect(h.GetJob))
	mux.Handle("GET /api/v1/rides/open", protect(h.ListOpen))
	mux.Handle("GET /api/v1/rides/pool/{id}", protect(h.GetPool))
	mux.Handle("GET /api/v1/rides/estimate", protect(h.Estimate))
	mux.Handle("PUT /api/v1/rides/pool/{id}/accept", driverOnly(h.AcceptPool))
	mux.Handle("POST /api/v1/rides/pool/{id}/cancel", protect(h.CancelMembership))
	mux.Handle("POST /api/v1/rides/pool/{id}/complete", driverOnly(h.CompletePool))
}

// RideRequest represents the HTTP request for joining a pool
type RideRequest struct {
	PickupLatitude  float64 `json:"pickup_latitude" validate:"latitude"`
	PickupLongitude float64 `json:"pickup_longitude" validate:"longitude"`
	Terminal        string  `json:"terminal" validate:"required,max=16"`
	SeatsNeeded     int     `json:"seats_needed" validate:"min=1"`
	LuggageCount    int     `json:"luggage_count" validate:"min=0"`
	ClientRequestID string  `json:"client_request_id,omitempty" validate:"omitempty,max=64"`
}

// RideRequestResponse is returned once the request is queued
type RideRequestResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// RequestRide handles POST /api/v1/rides/request
func (h *PoolHandler) RequestRide(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	var req RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithFields(logger.LogFields{"error": err.Error()}).Error("parse_request_failed", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.requestRide.Execute(r.Context(), service.RequestRideCommand{
		Passenger:       identity,
		PickupLatitude:  req.PickupLatitude,
		PickupLongitude: req.PickupLongitude,
		Terminal:        req.Terminal,
		SeatsNeeded:     req.SeatsNeeded,
		LuggageCount:    req.LuggageCount,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.fail(w, "request_ride_failed", identity, err)
		return
	}

	writeJSON(w, http.StatusAccepted, RideRequestResponse{
		Success: true,
		Message: "ride request queued for matching",
		JobID:   jobID,
	})
}

// GetJob handles GET /api/v1/rides/jobs/{job_id}
func (h *PoolHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	job, err := h.queries.GetJob(r.Context(), r.PathValue("job_id"), identity.ID)
	if err != nil {
		h.fail(w, "get_job_failed", identity, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// ListOpen handles GET /api/v1/rides/open
func (h *PoolHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	pools, err := h.queries.ListOpen(r.Context())
	if err != nil {
		h.fail(w, "list_open_failed", identity, err)
		return
	}
	out := make([]domain.PoolSnapshot, 0, len(pools))
	for _, p := range pools {
		out = append(out, p.Snapshot())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"pools": out, "count": len(out)})
}

// GetPool handles GET /api/v1/rides/pool/{id}
func (h *PoolHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	pool, err := h.queries.GetPool(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, "get_pool_failed", identity, err)
		return
	}
	writeJSON(w, http.StatusOK, pool.SnapshotFor(identity.ID))
}

type estimateQuery struct {
	Distance float64 `validate:"gte=0"`
	Seats    int     `validate:"min=1,max=8"`
}

// Estimate handles GET /api/v1/rides/estimate?distance=&seats=
func (h *PoolHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}

	q := estimateQuery{Seats: 1}
	var err error
	if raw := r.URL.Query().Get("distance"); raw != "" {
		if q.Distance, err = strconv.ParseFloat(raw, 64); err != nil {
			writeError(w, http.StatusBadRequest, "distance must be a number")
			return
		}
	} else {
		writeError(w, http.StatusBadRequest, "distance is required")
		return
	}
	if raw := r.URL.Query().Get("seats"); raw != "" {
		if q.Seats, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "seats must be an integer")
			return
		}
	}
	if err := h.validate.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	est, err := h.queries.Estimate(q.Distance, q.Seats)
	if err != nil {
		h.fail(w, "estimate_failed", identity, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

// AcceptPool handles PUT /api/v1/rides/pool/{id}/accept
func (h *PoolHandler) AcceptPool(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	pool, err := h.acceptPool.Execute(r.Context(), service.AcceptPoolCommand{
		PoolID: r.PathValue("id"),
		Driver: identity,
	})
	if err != nil {
		h.fail(w, "accept_pool_failed", identity, err)
		return
	}

	h.logger.WithFields(logger.LogFields{
		"pool_id":   pool.ID(),
		"driver_id": identity.ID,
	}).Info("pool_accepted", "Pool accepted by driver")
	writeJSON(w, http.StatusOK, pool.SnapshotFor(identity.ID))
}

// CancelMembership handles POST /api/v1/rides/pool/{id}/cancel
func (h *PoolHandler) CancelMembership(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	pool, err := h.cancelMembership.Execute(r.Context(), service.CancelMembershipCommand{
		PoolID:      r.PathValue("id"),
		PassengerID: identity.ID,
	})
	if err != nil {
		h.fail(w, "cancel_membership_failed", identity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "left the pool",
		"pool":    pool.Snapshot(),
	})
}

// CompletePool handles POST /api/v1/rides/pool/{id}/complete
func (h *PoolHandler) CompletePool(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.identity(w, r)
	if !ok {
		return
	}
	pool, err := h.completePool.Execute(r.Context(), service.CompletePoolCommand{
		PoolID:   r.PathValue("id"),
		DriverID: identity.ID,
	})
	if err != nil {
		h.fail(w, "complete_pool_failed", identity, err)
		return
	}
	writeJSON(w, http.StatusOK, pool.SnapshotFor(identity.ID))
}

// identity normalizes the JWT claims once at the boundary.
func (h *PoolHandler) identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	claims, ok := auth.GetClaims(r.Context())
	if !ok || claims.UserID == "" {
		writeError(w, http.StatusUnauthorized, "missing claims")
		return domain.Identity{}, false
	}
	return domain.Identity{
		ID:    claims.UserID,
		Name:  claims.Name,
		Phone: claims.Phone,
		Role:  string(claims.Role),
	}, true
}

func (h *PoolHandler) fail(w http.ResponseWriter, action string, identity domain.Identity, err error) {
	status := mapErrorToStatusCode(err)
	log := h.logger.WithFields(logger.LogFields{"user_id": identity.ID, "status": status})
	if status >= http.StatusInternalServerError {
		log.Error(action, err)
		writeError(w, status, "internal error")
		return
	}
	log.Warn(action, err.Error())
	writeError(w, status, err.Error())
}

// mapErrorToStatusCode maps domain errors to HTTP status codes
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPoolNotFound), errors.Is(err, service.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotMember), errors.Is(err, domain.ErrNotAssignedDriver):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrLockContention):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error":   http.StatusText(status),
		"message": msg,
	})
}

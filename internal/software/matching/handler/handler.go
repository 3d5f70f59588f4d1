package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"logistics/internal/domain/geo"
	"logistics/internal/domain/order"
	"logistics/internal/general/httpx"
	"logistics/internal/general/logger"
	"logistics/internal/ports"
	"logistics/internal/software/matching/service"

	"github.com/jackc/pgx/v5/pgconn"
)

// a match waits on the user/driver service, so it gets more than the peer timeout
const requestTimeout = 8 * time.Second

// MatchingHTTPHandler adapts HTTP requests to the MatchingService.
type MatchingHTTPHandler struct {
	svc    ports.MatchingService
	logger *logger.Logger
	resp   *httpx.Responder
}

// NewMatchingHTTPHandler wires an HTTP handler around the MatchingService.
func NewMatchingHTTPHandler(svc ports.MatchingService, logger *logger.Logger) *MatchingHTTPHandler {
	return &MatchingHTTPHandler{svc: svc, logger: logger, resp: httpx.NewResponder(logger)}
}

// RegisterRoutes mounts order endpoints on the provided mux.
func (handler *MatchingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", httpx.Health)

	mux.HandleFunc("POST /api/orders", handler.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{order_id}", handler.handleGetOrder)
	mux.HandleFunc("POST /api/orders/{order_id}/match", handler.handleMatchOrder)
	mux.HandleFunc("PATCH /api/orders/{order_id}/status", handler.handleChangeStatus)
	mux.HandleFunc("GET /api/orders/{order_id}/candidates", handler.handleCandidates)
}

// fail maps service errors onto HTTP statuses.
func (handler *MatchingHTTPHandler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		handler.resp.Error(ctx, w, http.StatusNotFound, "order not found", err)
	case errors.Is(err, service.ErrPeerUnavailable):
		w.Header().Set("Retry-After", "5")
		handler.resp.Error(ctx, w, http.StatusServiceUnavailable, "user/driver service unavailable, retry later", err)
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrAlreadyMatchedOther):
		handler.resp.Error(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, service.ErrDriverNotFound),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, order.ErrCustomerRequired),
		errors.Is(err, order.ErrVehicleRequired),
		errors.Is(err, order.ErrDriverRequired),
		errors.Is(err, geo.ErrInvalidLatitude),
		errors.Is(err, geo.ErrInvalidLongitude):
		handler.resp.Error(ctx, w, http.StatusUnprocessableEntity, err.Error(), err)
	case errors.As(err, &pgErr):
		handler.resp.Error(ctx, w, http.StatusInternalServerError, "database error", err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.resp.Error(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	default:
		handler.resp.Error(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

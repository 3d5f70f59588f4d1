package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"logistics/internal/domain/assignment"
	"logistics/internal/domain/driver"
	"logistics/internal/domain/vehicle"
	"logistics/internal/general/httpx"
	"logistics/internal/general/logger"
	"logistics/internal/ports"
	"logistics/internal/software/fleet/service"

	"github.com/jackc/pgx/v5/pgconn"
)

const requestTimeout = 5 * time.Second

// FleetHTTPHandler adapts HTTP requests to the FleetService.
type FleetHTTPHandler struct {
	svc    ports.FleetService
	logger *logger.Logger
	resp   *httpx.Responder
}

// NewFleetHTTPHandler wires an HTTP handler around the FleetService.
func NewFleetHTTPHandler(svc ports.FleetService, logger *logger.Logger) *FleetHTTPHandler {
	return &FleetHTTPHandler{svc: svc, logger: logger, resp: httpx.NewResponder(logger)}
}

// RegisterRoutes mounts fleet endpoints on the provided mux.
func (handler *FleetHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", httpx.Health)

	mux.HandleFunc("POST /api/drivers/{driver_id}/offline", handler.driverAction(handler.svc.SetDriverOffline))
	mux.HandleFunc("POST /api/drivers/{driver_id}/online", handler.driverAction(handler.svc.SetDriverOnline))
	mux.HandleFunc("DELETE /api/drivers/{driver_id}", handler.handleDeleteDriver)

	mux.HandleFunc("POST /api/vehicles/{vehicle_id}/maintenance", handler.vehicleAction(handler.svc.SetVehicleMaintenance))
	mux.HandleFunc("POST /api/vehicles/{vehicle_id}/available", handler.vehicleAction(handler.svc.ReturnVehicleToService))
	mux.HandleFunc("DELETE /api/vehicles/{vehicle_id}", handler.handleDeleteVehicle)

	mux.HandleFunc("POST /api/assignments", handler.handleCreateAssignment)
	mux.HandleFunc("PATCH /api/assignments/{assignment_id}/status", handler.handleUpdateAssignment)
}

type statusAction func(ctx context.Context, id string) (ports.StatusResult, error)

// ----- Handlers: POST /api/drivers/{driver_id}/offline|online -----

func (handler *FleetHTTPHandler) driverAction(action statusAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler.runStatusAction(w, r, r.PathValue("driver_id"), action)
	}
}

// ----- Handlers: POST /api/vehicles/{vehicle_id}/maintenance|available -----

func (handler *FleetHTTPHandler) vehicleAction(action statusAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler.runStatusAction(w, r, r.PathValue("vehicle_id"), action)
	}
}

func (handler *FleetHTTPHandler) runStatusAction(w http.ResponseWriter, r *http.Request, id string, action statusAction) {
	ctx := handler.resp.WithReqID(w, r)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := action(ctx, id)
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}
	handler.resp.JSON(ctx, w, http.StatusOK, res)
}

// ----- Handlers: DELETE /api/drivers/{driver_id}, /api/vehicles/{vehicle_id} -----

func (handler *FleetHTTPHandler) handleDeleteDriver(w http.ResponseWriter, r *http.Request) {
	handler.runDelete(w, r, r.PathValue("driver_id"), handler.svc.DeleteDriver)
}

func (handler *FleetHTTPHandler) handleDeleteVehicle(w http.ResponseWriter, r *http.Request) {
	handler.runDelete(w, r, r.PathValue("vehicle_id"), handler.svc.DeleteVehicle)
}

func (handler *FleetHTTPHandler) runDelete(w http.ResponseWriter, r *http.Request, id string, del func(context.Context, string) error) {
	ctx := handler.resp.WithReqID(w, r)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := del(ctx, id); err != nil {
		handler.fail(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps service errors onto HTTP statuses.
func (handler *FleetHTTPHandler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, ports.ErrNotFound):
		handler.resp.Error(ctx, w, http.StatusNotFound, "not found", err)
	case errors.Is(err, service.ErrActiveAssignment),
		errors.Is(err, service.ErrDriverUnavailable),
		errors.Is(err, service.ErrVehicleUnavailable),
		errors.Is(err, driver.ErrInvalidStatusSwitch),
		errors.Is(err, vehicle.ErrInvalidStatusSwitch),
		errors.Is(err, assignment.ErrAlreadyClosed):
		handler.resp.Error(ctx, w, http.StatusConflict, err.Error(), err)
	case errors.Is(err, assignment.ErrInvalidStatus),
		errors.Is(err, assignment.ErrDriverRequired),
		errors.Is(err, assignment.ErrVehicleRequired):
		handler.resp.Error(ctx, w, http.StatusUnprocessableEntity, err.Error(), err)
	case errors.As(err, &pgErr):
		handler.resp.Error(ctx, w, http.StatusInternalServerError, "database error", err)
	case errors.Is(err, context.DeadlineExceeded):
		handler.resp.Error(ctx, w, http.StatusGatewayTimeout, "request timed out", err)
	default:
		handler.resp.Error(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

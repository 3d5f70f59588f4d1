package handler

import (
	"context"
	"net/http"
	"strings"

	"logistics/internal/ports"
)

type createAssignmentRequest struct {
	DriverID  string `json:"driver_id"`
	VehicleID string `json:"vehicle_id"`
}

type updateAssignmentRequest struct {
	Status string `json:"status"` // COMPLETED | CANCELLED
}

// ----- Handler: POST /api/assignments -----

func (handler *FleetHTTPHandler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := handler.resp.WithReqID(w, r)

	var req createAssignmentRequest
	if !handler.resp.DecodeJSON(ctx, w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := handler.svc.CreateAssignment(ctx, ports.CreateAssignmentInput{
		DriverID:  strings.TrimSpace(req.DriverID),
		VehicleID: strings.TrimSpace(req.VehicleID),
	})
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}
	handler.resp.JSON(ctx, w, http.StatusCreated, res)
}

// ----- Handler: PATCH /api/assignments/{assignment_id}/status -----

func (handler *FleetHTTPHandler) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := handler.resp.WithReqID(w, r)

	var req updateAssignmentRequest
	if !handler.resp.DecodeJSON(ctx, w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := handler.svc.UpdateAssignmentStatus(ctx, r.PathValue("assignment_id"), req.Status)
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}
	handler.resp.JSON(ctx, w, http.StatusOK, res)
}

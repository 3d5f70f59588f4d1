package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"logistics/internal/domain/geo"
	"logistics/internal/ports"
)

// --- Request DTOs (HTTP boundary) ---

type createOrderRequest struct {
	CustomerID string    `json:"customer_id"`
	Pickup     geo.Point `json:"pickup"`
	Dropoff    geo.Point `json:"dropoff"`
}

type matchOrderRequest struct {
	VehicleID string `json:"vehicle_id"`
	DriverID  string `json:"driver_id"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

// ----- Handler: POST /api/orders -----

func (handler *MatchingHTTPHandler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := handler.resp.WithReqID(w, r)

	var req createOrderRequest
	if !handler.resp.DecodeJSON(ctx, w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := handler.svc.CreateOrder(ctx, ports.CreateOrderInput{
		CustomerID: strings.TrimSpace(req.CustomerID),
		Pickup:     req.Pickup,
		Dropoff:    req.Dropoff,
	})
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}
	handler.resp.JSON(ctx, w, http.StatusCreated, res)
}

// ----- Handler: GET /api/orders/{order_id} -----

func (handler *MatchingHTTPHandler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := handler.resp.WithReqID(w, r)
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := handler.svc.GetOrder(ctx, r.PathValue("order_id"))
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}
	handler.resp.JSON(ctx, w, http.StatusOK, res)
}

// ----- Handler: POST /api/orders/{order_id}/match -----

func (handler *MatchingHTTPHandler) handleMatchOrder(w http.ResponseWriter, r *http.Request) {
	ctx := handler.resp.WithReqID(w, r)

	var req matchOrderRequest
	if !handler.resp.DecodeJSON(ctx, w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := handler.svc.MatchOrder(ctx, ports.MatchOrderInput{
		OrderID:   r.PathValue("order_id"),
		VehicleID: req.VehicleID,
		DriverID:  req.DriverID,
	})
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}
	handler.resp.JSON(ctx, w, http.StatusOK, res)
}

// ----- Handler: PATCH /api/orders/{order_id}/status -----

func (handler *MatchingHTTPHandler) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.resp.WithReqID(w, r)

	var req changeStatusRequest
	if !handler.resp.DecodeJSON(ctx, w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := handler.svc.ChangeOrderStatus(ctx, r.PathValue("order_id"), req.Status)
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}
	handler.resp.JSON(ctx, w, http.StatusOK, res)
}

// ----- Handler: GET /api/orders/{order_id}/candidates?radius=<km> -----

func (handler *MatchingHTTPHandler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := handler.resp.WithReqID(w, r)

	var radius float64
	if raw := r.URL.Query().Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			handler.resp.Error(ctx, w, http.StatusBadRequest, "radius must be a positive number", err)
			return
		}
		radius = v
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	drivers, err := handler.svc.Candidates(ctx, r.PathValue("order_id"), radius)
	if err != nil {
		handler.fail(ctx, w, err)
		return
	}

	type resp struct {
		OrderID string `json:"order_id"`
		Count   int    `json:"count"`
		Drivers any    `json:"drivers"`
	}
	handler.resp.JSON(ctx, w, http.StatusOK, resp{OrderID: r.PathValue("order_id"), Count: len(drivers), Drivers: drivers})
}

package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/service"
)

const TenantHeader = "X-Tenant-ID"

type HTTPHandler struct {
	stock   *service.StockService
	summary *service.SummaryService
	log     *zap.Logger
}

type StockHTTPRequest struct {
	ItemCode      string `json:"itemCode"`
	Quantity      int    `json:"quantity"`
	WarehouseCode string `json:"warehouseCode,omitempty"`
	Reference     string `json:"reference,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type OrderReleaseHTTPRequest struct {
	Reference string `json:"reference,omitempty"`
}

type ErrorHTTPResponse struct {
	Error     string `json:"error"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
}

func NewHTTPHandler(stock *service.StockService, summary *service.SummaryService, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{stock: stock, summary: summary, log: log}
}

// Routes mounts the API on a fresh mux. gatherer serves /metrics.
func (h *HTTPHandler) Routes(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("POST /api/v1/stock/reserve", h.Reserve)
	mux.HandleFunc("POST /api/v1/stock/release", h.Release)
	mux.HandleFunc("GET /api/v1/stock/summary", h.Summary)
	mux.HandleFunc("GET /api/v1/orders/{orderID}/reservations", h.OrderReservations)
	mux.HandleFunc("POST /api/v1/orders/{orderID}/release", h.ReleaseOrder)
	return mux
}

func (h *HTTPHandler) Reserve(w http.ResponseWriter, r *http.Request) {
	var req StockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return
	}
	if req.ItemCode == "" {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "itemCode is required"})
		return
	}

	result, err := h.stock.Reserve(r.Context(), domain.ReserveRequest{
		TenantID:      r.Header.Get(TenantHeader),
		ItemCode:      req.ItemCode,
		Quantity:      req.Quantity,
		WarehouseCode: req.WarehouseCode,
		Reference:     req.Reference,
		Notes:         req.Notes,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *HTTPHandler) Release(w http.ResponseWriter, r *http.Request) {
	var req StockHTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
		return
	}
	if req.ItemCode == "" {
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "itemCode is required"})
		return
	}

	result, err := h.stock.Release(r.Context(), domain.ReleaseRequest{
		TenantID:      r.Header.Get(TenantHeader),
		ItemCode:      req.ItemCode,
		Quantity:      req.Quantity,
		WarehouseCode: req.WarehouseCode,
		Reference:     req.Reference,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request) {
	result, err := h.summary.Summary(r.Context(), r.Header.Get(TenantHeader), r.URL.Query().Get("itemCode"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) OrderReservations(w http.ResponseWriter, r *http.Request) {
	result, err := h.summary.OrderReservations(r.Context(), r.Header.Get(TenantHeader), r.PathValue("orderID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) ReleaseOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderReleaseHTTPRequest
	// the body is optional
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: "invalid request body"})
			return
		}
	}

	result, err := h.stock.ReleaseOrder(r.Context(), r.Header.Get(TenantHeader), r.PathValue("orderID"), req.Reference)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var insufficient *domain.InsufficientStockError
	switch {
	case errors.As(err, &insufficient):
		available := insufficient.Available
		writeJSON(w, http.StatusConflict, ErrorHTTPResponse{
			Error:     err.Error(),
			Requested: insufficient.Requested,
			Available: &available,
		})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorHTTPResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrMissingTenant):
		writeJSON(w, http.StatusBadRequest, ErrorHTTPResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, ErrorHTTPResponse{Error: "item is busy, retry later"})
	default:
		h.log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorHTTPResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

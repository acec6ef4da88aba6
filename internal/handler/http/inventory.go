package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/service"
	"github.com/permalink-studio/pos/pkg/httputil"
	"github.com/permalink-studio/pos/pkg/pagination"
)

// InventoryHandler handles HTTP requests for inventory administration.
type InventoryHandler struct {
	service *service.InventoryService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc *service.InventoryService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{service: svc, logger: logger}
}

// Create handles POST /api/v1/inventory
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req service.CreateItemInput
	if !decodeBody(w, r, &req) {
		return
	}

	id := identity(r)
	item, err := h.service.Create(r.Context(), id.TenantID, id.UserID, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, item)
}

// Get handles GET /api/v1/inventory/{id}
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	itemID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	item, err := h.service.Get(r.Context(), identity(r).TenantID, itemID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, item)
}

// List handles GET /api/v1/inventory?kind=&active=
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	p := pagination.FromRequest(r)
	filter := domain.InventoryFilter{Kind: domain.Kind(r.URL.Query().Get("kind"))}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: "active must be true or false"},
			})
			return
		}
		filter.Active = &active
	}

	items, total, err := h.service.List(r.Context(), identity(r).TenantID, filter, p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(items, total, p))
}

// Update handles PATCH /api/v1/inventory/{id}
func (h *InventoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	itemID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req service.UpdateInventoryInput
	if !decodeBody(w, r, &req) {
		return
	}

	item, err := h.service.Update(r.Context(), identity(r).TenantID, itemID.String(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, item)
}

// Adjust handles POST /api/v1/inventory/{id}/adjustments
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	itemID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req service.AdjustInput
	if !decodeBody(w, r, &req) {
		return
	}

	id := identity(r)
	item, err := h.service.Adjust(r.Context(), id.TenantID, id.UserID, itemID.String(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, item)
}

// Movements handles GET /api/v1/inventory/{id}/movements
func (h *InventoryHandler) Movements(w http.ResponseWriter, r *http.Request) {
	itemID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	p := pagination.FromRequest(r)

	movements, total, err := h.service.Movements(r.Context(), identity(r).TenantID, itemID.String(), p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(movements, total, p))
}

// LowStock handles GET /api/v1/inventory/low-stock
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.LowStock(r.Context(), identity(r).TenantID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if items == nil {
		items = []domain.InventoryItem{}
	}
	httputil.WriteData(w, http.StatusOK, items)
}

// VerifyLedger handles GET /api/v1/inventory/{id}/ledger
func (h *InventoryHandler) VerifyLedger(w http.ResponseWriter, r *http.Request) {
	itemID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	report, err := h.service.VerifyLedger(r.Context(), identity(r).TenantID, itemID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, report)
}

package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/service"
	"github.com/permalink-studio/pos/pkg/httputil"
	"github.com/permalink-studio/pos/pkg/pagination"
)

// SaleHandler serves committed sales.
type SaleHandler struct {
	service *service.SaleService
	logger  *slog.Logger
}

// NewSaleHandler creates a sale HTTP handler.
func NewSaleHandler(svc *service.SaleService, logger *slog.Logger) *SaleHandler {
	return &SaleHandler{service: svc, logger: logger}
}

// SendReceiptRequest is the JSON body for POST /sales/{id}/receipt.
type SendReceiptRequest struct {
	Contact ContactFields `json:"contact"`
}

// Get handles GET /api/v1/sales/{id}
func (h *SaleHandler) Get(w http.ResponseWriter, r *http.Request) {
	saleID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	sale, err := h.service.GetSale(r.Context(), identity(r).TenantID, saleID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, sale)
}

// List handles GET /api/v1/sales?client_id=&event_id=&from=&to=
func (h *SaleHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter domain.SaleFilter
	if v := q.Get("client_id"); v != "" {
		filter.ClientID = &v
	}
	if v := q.Get("event_id"); v != "" {
		filter.EventID = &v
	}
	for _, bound := range []struct {
		param string
		dst   **time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(bound.param)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: bound.param + " must be an RFC 3339 timestamp"},
			})
			return
		}
		*bound.dst = &t
	}

	p := pagination.FromRequest(r)
	sales, total, err := h.service.ListSales(r.Context(), identity(r).TenantID, filter, p.Page, p.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(sales, total, p))
}

// SendReceipt handles POST /api/v1/sales/{id}/receipt
func (h *SaleHandler) SendReceipt(w http.ResponseWriter, r *http.Request) {
	saleID, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req SendReceiptRequest
	if !decodeBody(w, r, &req) {
		return
	}

	channel, err := h.service.SendReceipt(r.Context(), identity(r).TenantID, saleID.String(), req.Contact.contact())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"sale_id": saleID.String(), "channel": channel})
}

package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/service"
	"github.com/permalink-studio/pos/pkg/httputil"
)

// CheckoutHandler serves the caller's terminal session.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// SetTipRequest is the JSON body for PUT /checkout/tip.
type SetTipRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"gte=0"`
}

// SetDiscountRequest is the JSON body for PUT /checkout/discount. A null
// discount clears it.
type SetDiscountRequest struct {
	Discount *domain.Discount `json:"discount"`
}

// SetPaymentMethodRequest is the JSON body for PUT /checkout/payment-method.
type SetPaymentMethodRequest struct {
	Method string `json:"method" validate:"required,max=50"`
}

// SetClientRequest is the JSON body for PUT /checkout/client.
type SetClientRequest struct {
	ClientID *string       `json:"client_id" validate:"omitempty,uuid"`
	Contact  ContactFields `json:"contact"`
}

// ContactFields is receipt contact info.
type ContactFields struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"max=30"`
}

func (c ContactFields) contact() domain.Contact {
	return domain.Contact{Name: c.Name, Email: c.Email, Phone: c.Phone}
}

// SetEventRequest is the JSON body for PUT /checkout/event.
type SetEventRequest struct {
	EventID      *string `json:"event_id"`
	QueueEntryID *string `json:"queue_entry_id"`
}

// ResolveRequest is the JSON body for POST /checkout/resolve.
type ResolveRequest struct {
	Overrides []OverrideRequest `json:"overrides" validate:"required,min=1,dive"`
}

// OverrideRequest picks a jump ring for one line, or none when
// InventoryItemID is null.
type OverrideRequest struct {
	CartItemID      string  `json:"cart_item_id" validate:"required"`
	InventoryItemID *string `json:"inventory_item_id" validate:"omitempty,uuid"`
}

// --- Handlers ---

func (h *CheckoutHandler) respond(w http.ResponseWriter, r *http.Request, co *domain.Checkout, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, co)
}

// Get handles GET /api/v1/checkout
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	co, err := h.service.Get(r.Context(), id.TenantID, id.TerminalID)
	h.respond(w, r, co, err)
}

// AddItem handles POST /api/v1/checkout/items
func (h *CheckoutHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItemInput
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	co, err := h.service.AddItem(r.Context(), id.TenantID, id.TerminalID, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, co)
}

// UpdateItem handles PATCH /api/v1/checkout/items/{itemId}
func (h *CheckoutHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateItemInput
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	co, err := h.service.UpdateItem(r.Context(), id.TenantID, id.TerminalID, chi.URLParam(r, "itemId"), req)
	h.respond(w, r, co, err)
}

// RemoveItem handles DELETE /api/v1/checkout/items/{itemId}
func (h *CheckoutHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	co, err := h.service.RemoveItem(r.Context(), id.TenantID, id.TerminalID, chi.URLParam(r, "itemId"))
	h.respond(w, r, co, err)
}

// SetTip handles PUT /api/v1/checkout/tip
func (h *CheckoutHandler) SetTip(w http.ResponseWriter, r *http.Request) {
	var req SetTipRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	co, err := h.service.SetTip(r.Context(), id.TenantID, id.TerminalID, req.Amount)
	h.respond(w, r, co, err)
}

// SetDiscount handles PUT /api/v1/checkout/discount
func (h *CheckoutHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req SetDiscountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	co, err := h.service.SetDiscount(r.Context(), id.TenantID, id.TerminalID, req.Discount)
	h.respond(w, r, co, err)
}

// SetPaymentMethod handles PUT /api/v1/checkout/payment-method
func (h *CheckoutHandler) SetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req SetPaymentMethodRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	co, err := h.service.SetPaymentMethod(r.Context(), id.TenantID, id.TerminalID, req.Method)
	h.respond(w, r, co, err)
}

// SetClient handles PUT /api/v1/checkout/client
func (h *CheckoutHandler) SetClient(w http.ResponseWriter, r *http.Request) {
	var req SetClientRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	co, err := h.service.SetClient(r.Context(), id.TenantID, id.TerminalID, req.ClientID, req.Contact.contact())
	h.respond(w, r, co, err)
}

// SetEvent handles PUT /api/v1/checkout/event
func (h *CheckoutHandler) SetEvent(w http.ResponseWriter, r *http.Request) {
	var req SetEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	id := identity(r)
	co, err := h.service.SetEvent(r.Context(), id.TenantID, id.TerminalID, req.EventID, req.QueueEntryID)
	h.respond(w, r, co, err)
}

// ProceedToTip handles POST /api/v1/checkout/proceed-to-tip
func (h *CheckoutHandler) ProceedToTip(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	co, err := h.service.ProceedToTip(r.Context(), id.TenantID, id.TerminalID)
	h.respond(w, r, co, err)
}

// ProceedToPayment handles POST /api/v1/checkout/proceed-to-payment
func (h *CheckoutHandler) ProceedToPayment(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	co, err := h.service.ProceedToPayment(r.Context(), id.TenantID, id.TerminalID)
	h.respond(w, r, co, err)
}

// Back handles POST /api/v1/checkout/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	co, err := h.service.Back(r.Context(), id.TenantID, id.TerminalID)
	h.respond(w, r, co, err)
}

// Cancel handles POST /api/v1/checkout/cancel
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	co, err := h.service.Cancel(r.Context(), id.TenantID, id.TerminalID)
	h.respond(w, r, co, err)
}

// StartNewSale handles POST /api/v1/checkout/new-sale
func (h *CheckoutHandler) StartNewSale(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	co, err := h.service.StartNewSale(r.Context(), id.TenantID, id.TerminalID)
	h.respond(w, r, co, err)
}

// Complete handles POST /api/v1/checkout/complete
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	result, err := h.service.Complete(r.Context(), id.TenantID, id.TerminalID, id.UserID)
	h.writeCompletion(w, r, result, err)
}

// Resolve handles POST /api/v1/checkout/resolve
func (h *CheckoutHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	overrides := make([]domain.ResolutionOverride, len(req.Overrides))
	for i, o := range req.Overrides {
		overrides[i] = domain.ResolutionOverride{CartItemID: o.CartItemID, InventoryItemID: o.InventoryItemID}
	}

	id := identity(r)
	result, err := h.service.Resolve(r.Context(), id.TenantID, id.TerminalID, id.UserID, overrides)
	h.writeCompletion(w, r, result, err)
}

// writeCompletion maps a completion outcome onto a status code: 201 for a
// committed sale, 200 when resolution is needed and 422 for a failed attempt.
func (h *CheckoutHandler) writeCompletion(w http.ResponseWriter, r *http.Request, result *service.CompletionResult, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	status := http.StatusOK
	switch result.Status {
	case service.StatusCompleted:
		status = http.StatusCreated
	case service.StatusFailed:
		status = http.StatusUnprocessableEntity
	}
	httputil.WriteData(w, status, result)
}

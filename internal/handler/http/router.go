package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/permalink-studio/pos/internal/service"
	"github.com/permalink-studio/pos/pkg/health"
	"github.com/permalink-studio/pos/pkg/httputil"
	"github.com/permalink-studio/pos/pkg/middleware"
	"github.com/permalink-studio/pos/pkg/validator"
)

const maxBodyBytes = 1 << 20

// Services groups what the router serves.
type Services struct {
	Checkout  *service.CheckoutService
	Inventory *service.InventoryService
	Sales     *service.SaleService
}

// NewRouter creates a chi router with all POS routes registered.
func NewRouter(svc Services, healthHandler *health.Handler, corsOrigins []string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("pos"))
	r.Use(middleware.PrometheusMetrics("pos"))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(corsOrigins)))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	checkout := NewCheckoutHandler(svc.Checkout, logger)
	inventory := NewInventoryHandler(svc.Inventory, logger)
	sales := NewSaleHandler(svc.Sales, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireIdentity())

		r.Route("/checkout", func(r chi.Router) {
			r.Get("/", checkout.Get)
			r.Post("/items", checkout.AddItem)
			r.Patch("/items/{itemId}", checkout.UpdateItem)
			r.Delete("/items/{itemId}", checkout.RemoveItem)
			r.Put("/tip", checkout.SetTip)
			r.Put("/discount", checkout.SetDiscount)
			r.Put("/payment-method", checkout.SetPaymentMethod)
			r.Put("/client", checkout.SetClient)
			r.Put("/event", checkout.SetEvent)
			r.Post("/proceed-to-tip", checkout.ProceedToTip)
			r.Post("/proceed-to-payment", checkout.ProceedToPayment)
			r.Post("/back", checkout.Back)
			r.Post("/cancel", checkout.Cancel)
			r.Post("/new-sale", checkout.StartNewSale)
			r.Post("/complete", checkout.Complete)
			r.Post("/resolve", checkout.Resolve)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/", inventory.Create)
			r.Get("/", inventory.List)
			r.Get("/low-stock", inventory.LowStock)
			r.Get("/{id}", inventory.Get)
			r.Patch("/{id}", inventory.Update)
			r.Post("/{id}/adjustments", inventory.Adjust)
			r.Get("/{id}/movements", inventory.Movements)
			r.Get("/{id}/ledger", inventory.VerifyLedger)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Get("/", sales.List)
			r.Get("/{id}", sales.Get)
			r.Post("/{id}/receipt", sales.SendReceipt)
		})
	})

	return r
}

// decodeBody reads a size-limited JSON body into dst and validates it. On
// failure it writes the 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	if err := validator.Validate(dst); err != nil {
		httputil.WriteValidationError(w, err)
		return false
	}
	return true
}

// identity returns the caller set by RequireIdentity.
func identity(r *http.Request) middleware.Identity {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id
}

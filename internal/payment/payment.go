package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// ChargeRequest asks a provider to take payment for a checkout attempt.
// AttemptID is unique per attempt and doubles as the idempotency key.
type ChargeRequest struct {
	TenantID   string
	TerminalID string
	AttemptID  string
	Method     string
	Amount     decimal.Decimal
}

// Charge is an accepted payment. Reference is nil for tenders with no
// processor record, such as cash.
type Charge struct {
	Provider  string
	Reference *string
}

// Provider takes and reverses payments.
type Provider interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
	Void(ctx context.Context, charge *Charge) error
}

// Router selects a provider by payment method.
type Router struct {
	providers map[string]Provider
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{providers: make(map[string]Provider)}
}

// Register routes methods to p.
func (r *Router) Register(p Provider, methods ...string) *Router {
	for _, m := range methods {
		r.providers[strings.ToLower(m)] = p
	}
	return r
}

// For returns the provider for method.
func (r *Router) For(method string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(method))]
	if !ok {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unsupported payment method %q", method))
	}
	return p, nil
}

// Methods lists the registered methods.
func (r *Router) Methods() []string {
	out := make([]string, 0, len(r.providers))
	for m := range r.providers {
		out = append(out, m)
	}
	return out
}

// ManualProvider accepts tenders settled outside the system: cash, Venmo,
// or a standalone card reader. It always succeeds.
type ManualProvider struct{}

// Name implements Provider.
func (ManualProvider) Name() string { return "manual" }

// Charge implements Provider.
func (ManualProvider) Charge(_ context.Context, req ChargeRequest) (*Charge, error) {
	if req.Amount.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}
	return &Charge{Provider: "manual"}, nil
}

// Void implements Provider. Manual tenders are refunded by hand.
func (ManualProvider) Void(context.Context, *Charge) error { return nil }

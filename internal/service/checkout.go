package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/metrics"
	"github.com/permalink-studio/pos/internal/payment"
	"github.com/permalink-studio/pos/internal/repository"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// CompletionStatus is the outcome of a complete-sale attempt.
type CompletionStatus string

// Completion outcomes.
const (
	StatusCompleted       CompletionStatus = "completed"
	StatusNeedsResolution CompletionStatus = "needs_resolution"
	StatusFailed          CompletionStatus = "failed"
)

// WarningSessionNotSaved is added when a sale committed but the terminal's
// session could not be stored.
const WarningSessionNotSaved = "sale recorded but the checkout session was not saved"

// CompletionResult reports a complete-sale attempt. Pipeline failures are
// reported here rather than returned as errors.
type CompletionResult struct {
	Status    CompletionStatus            `json:"status"`
	Message   string                      `json:"message,omitempty"`
	Sale      *domain.Sale                `json:"sale,omitempty"`
	Inventory []domain.InventoryItem      `json:"inventory,omitempty"`
	Warnings  []string                    `json:"warnings,omitempty"`
	Pending   []domain.JumpRingResolution `json:"pending_resolutions,omitempty"`
	Checkout  *domain.Checkout            `json:"checkout"`
}

// SaleCommitter commits a finalized cart and looks up recorded sales.
type SaleCommitter interface {
	Commit(ctx context.Context, req CommitRequest) (*SaleResult, error)
	GetSale(ctx context.Context, tenantID, id string) (*domain.Sale, error)
}

// PaymentRouter picks the provider for a payment method.
type PaymentRouter interface {
	For(method string) (payment.Provider, error)
}

// CheckoutDefaults seeds new sessions.
type CheckoutDefaults struct {
	TaxRate         decimal.Decimal
	PlatformFeeRate decimal.Decimal
}

// CheckoutService drives one checkout session per terminal.
type CheckoutService struct {
	sessions  repository.SessionRepository
	inventory repository.InventoryRepository
	resolver  *JumpRingResolver
	payments  PaymentRouter
	sales     SaleCommitter
	defaults  CheckoutDefaults
	logger    *slog.Logger

	mu    sync.Mutex
	locks map[string]*terminalLock
}

// terminalLock serializes one terminal's requests. refs counts holders and
// waiters so the entry is dropped once nobody uses it.
type terminalLock struct {
	mu   sync.Mutex
	refs int
}

// NewCheckoutService creates a checkout service.
func NewCheckoutService(
	sessions repository.SessionRepository,
	inventory repository.InventoryRepository,
	resolver *JumpRingResolver,
	payments PaymentRouter,
	sales SaleCommitter,
	defaults CheckoutDefaults,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		sessions:  sessions,
		inventory: inventory,
		resolver:  resolver,
		payments:  payments,
		sales:     sales,
		defaults:  defaults,
		logger:    logger,
		locks:     make(map[string]*terminalLock),
	}
}

// AddItemInput describes a new cart line. Hints left blank are taken from
// the linked inventory item.
type AddItemInput struct {
	Name             string           `json:"name"`
	Quantity         int              `json:"quantity" validate:"required,gt=0"`
	UnitPrice        *decimal.Decimal `json:"unit_price" validate:"omitempty,gte=0"`
	Discount         *domain.Discount `json:"discount"`
	InventoryItemID  *string          `json:"inventory_item_id" validate:"omitempty,uuid"`
	ChainInches      *decimal.Decimal `json:"chain_inches" validate:"omitempty,gt=0"`
	ProductTypeID    *string          `json:"product_type_id"`
	RequiredKind     string           `json:"required_kind"`
	JumpRingsPerUnit *int             `json:"jump_rings_per_unit" validate:"omitempty,gte=0"`
	Material         string           `json:"material"`
}

// UpdateItemInput changes a cart line. Nil fields are left alone.
type UpdateItemInput struct {
	Quantity      *int             `json:"quantity" validate:"omitempty,gt=0"`
	Discount      *domain.Discount `json:"discount"`
	ClearDiscount bool             `json:"clear_discount"`
}

// lockTerminal blocks until the terminal is free and returns the unlock func.
func (s *CheckoutService) lockTerminal(tenantID, terminalID string) func() {
	key := tenantID + "/" + terminalID
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &terminalLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *CheckoutService) load(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	co, err := s.sessions.Get(ctx, tenantID, terminalID)
	if err == nil {
		return co, nil
	}
	if errors.Is(err, apperrors.ErrNotFound) {
		return domain.NewCheckout(tenantID, terminalID, s.defaults.TaxRate, s.defaults.PlatformFeeRate), nil
	}
	return nil, fmt.Errorf("load checkout session: %w", err)
}

// mutate loads the session under the terminal lock, applies fn and saves
// the result.
func (s *CheckoutService) mutate(ctx context.Context, tenantID, terminalID string, fn func(co *domain.Checkout) error) (*domain.Checkout, error) {
	if tenantID == "" || terminalID == "" {
		return nil, apperrors.InvalidInput("tenant and terminal are required")
	}
	unlock := s.lockTerminal(tenantID, terminalID)
	defer unlock()

	co, err := s.load(ctx, tenantID, terminalID)
	if err != nil {
		return nil, err
	}
	if err := fn(co); err != nil {
		return nil, err
	}
	if err := s.sessions.Save(ctx, co); err != nil {
		return nil, fmt.Errorf("save checkout session: %w", err)
	}
	return co, nil
}

// editCart runs fn when the cart may change and drops stale resolution state.
func (s *CheckoutService) editCart(ctx context.Context, tenantID, terminalID, action string, fn func(co *domain.Checkout) error) (*domain.Checkout, error) {
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error {
		if err := co.CheckEditable(action); err != nil {
			return err
		}
		if err := fn(co); err != nil {
			return err
		}
		co.CartEdited()
		return nil
	})
}

// Get returns the terminal's session, starting a fresh one if none exists.
func (s *CheckoutService) Get(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	if tenantID == "" || terminalID == "" {
		return nil, apperrors.InvalidInput("tenant and terminal are required")
	}
	return s.load(ctx, tenantID, terminalID)
}

// AddItem appends a line to the cart.
func (s *CheckoutService) AddItem(ctx context.Context, tenantID, terminalID string, input AddItemInput) (*domain.Checkout, error) {
	item := domain.CartItem{
		Name:             strings.TrimSpace(input.Name),
		Quantity:         input.Quantity,
		Discount:         input.Discount,
		InventoryItemID:  input.InventoryItemID,
		ChainInches:      input.ChainInches,
		ProductTypeID:    input.ProductTypeID,
		JumpRingsPerUnit: input.JumpRingsPerUnit,
		Material:         input.Material,
	}
	if input.UnitPrice != nil {
		item.UnitPrice = *input.UnitPrice
	}
	if input.RequiredKind != "" {
		kind, err := domain.ParseRequiredKind(input.RequiredKind)
		if err != nil {
			return nil, err
		}
		item.RequiredKind = kind
	}

	if input.InventoryItemID != nil {
		inv, err := s.inventory.GetByID(ctx, tenantID, *input.InventoryItemID)
		if err != nil {
			return nil, fmt.Errorf("get inventory item: %w", err)
		}
		if !inv.Active {
			return nil, apperrors.InvalidInput(fmt.Sprintf("inventory item %q is inactive", inv.Name))
		}
		if item.Name == "" {
			item.Name = inv.Name
		}
		if input.UnitPrice == nil {
			item.UnitPrice = inv.SellPrice
		}
		if item.RequiredKind == "" {
			item.RequiredKind = domain.RequiredKindFor(inv.Kind)
		}
		if item.Material == "" {
			item.Material = inv.Material
		}
	}

	return s.editCart(ctx, tenantID, terminalID, "add item", func(co *domain.Checkout) error {
		_, err := co.Cart.AddItem(item)
		return err
	})
}

// UpdateItem changes a line's quantity or discount.
func (s *CheckoutService) UpdateItem(ctx context.Context, tenantID, terminalID, itemID string, input UpdateItemInput) (*domain.Checkout, error) {
	return s.editCart(ctx, tenantID, terminalID, "update item", func(co *domain.Checkout) error {
		if input.Quantity != nil {
			if err := co.Cart.UpdateQuantity(itemID, *input.Quantity); err != nil {
				return err
			}
		}
		if input.ClearDiscount {
			return co.Cart.SetLineDiscount(itemID, nil)
		}
		if input.Discount != nil {
			return co.Cart.SetLineDiscount(itemID, input.Discount)
		}
		return nil
	})
}

// RemoveItem deletes a line.
func (s *CheckoutService) RemoveItem(ctx context.Context, tenantID, terminalID, itemID string) (*domain.Checkout, error) {
	return s.editCart(ctx, tenantID, terminalID, "remove item", func(co *domain.Checkout) error {
		return co.Cart.RemoveItem(itemID)
	})
}

// SetTip sets the tip amount.
func (s *CheckoutService) SetTip(ctx context.Context, tenantID, terminalID string, amount decimal.Decimal) (*domain.Checkout, error) {
	return s.editCart(ctx, tenantID, terminalID, "set tip", func(co *domain.Checkout) error {
		return co.Cart.SetTip(amount)
	})
}

// SetDiscount sets or clears the cart-level discount.
func (s *CheckoutService) SetDiscount(ctx context.Context, tenantID, terminalID string, d *domain.Discount) (*domain.Checkout, error) {
	return s.editCart(ctx, tenantID, terminalID, "set discount", func(co *domain.Checkout) error {
		return co.Cart.SetDiscount(d)
	})
}

// SetPaymentMethod selects the tender. The method must have a provider.
func (s *CheckoutService) SetPaymentMethod(ctx context.Context, tenantID, terminalID, method string) (*domain.Checkout, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if _, err := s.payments.For(method); err != nil {
		return nil, err
	}
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error {
		if err := co.CheckEditable("set payment method"); err != nil {
			return err
		}
		co.Cart.SetPaymentMethod(method)
		return nil
	})
}

// SetClient attaches a known client or contact details to the sale.
func (s *CheckoutService) SetClient(ctx context.Context, tenantID, terminalID string, clientID *string, contact domain.Contact) (*domain.Checkout, error) {
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error {
		if err := co.CheckEditable("set client"); err != nil {
			return err
		}
		co.Cart.SetClient(clientID, contact)
		return nil
	})
}

// SetEvent links the session to a pop-up event and optionally the queue
// entry being served.
func (s *CheckoutService) SetEvent(ctx context.Context, tenantID, terminalID string, eventID, queueEntryID *string) (*domain.Checkout, error) {
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error {
		co.EventID = eventID
		co.QueueEntryID = queueEntryID
		return nil
	})
}

// ProceedToTip advances from items.
func (s *CheckoutService) ProceedToTip(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error { return co.ProceedToTip() })
}

// ProceedToPayment advances from tip.
func (s *CheckoutService) ProceedToPayment(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error { return co.ProceedToPayment() })
}

// Back returns to the previous step.
func (s *CheckoutService) Back(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error { return co.Back() })
}

// Cancel discards the cart.
func (s *CheckoutService) Cancel(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	co, err := s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error { return co.Cancel() })
	if err == nil {
		metrics.CheckoutOutcome("cancelled")
	}
	return co, err
}

// StartNewSale returns a finished session to the items step.
func (s *CheckoutService) StartNewSale(ctx context.Context, tenantID, terminalID string) (*domain.Checkout, error) {
	return s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error { return co.StartNewSale() })
}

// Complete runs the sale pipeline: jump-ring resolution, payment, commit.
// Invalid transitions are returned as errors; every other failure is
// reported in the result with the session left at payment.
func (s *CheckoutService) Complete(ctx context.Context, tenantID, terminalID, actorID string) (*CompletionResult, error) {
	var result *CompletionResult
	_, err := s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error {
		var err error
		result, err = s.complete(ctx, co, actorID)
		return err
	})
	return s.settle(ctx, result, err)
}

// settle reports the pipeline outcome. A sale that committed is reported as
// completed even when the session could not be saved afterwards; the stored
// session still carries the attempt id, so a retry finds the sale instead of
// recording it again.
func (s *CheckoutService) settle(ctx context.Context, result *CompletionResult, err error) (*CompletionResult, error) {
	if err != nil {
		if result == nil || result.Status != StatusCompleted {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "sale committed but checkout session not saved",
			slog.String("sale_id", result.Sale.ID),
			slog.String("error", err.Error()),
		)
		result.Warnings = append(result.Warnings, WarningSessionNotSaved)
	}
	metrics.CheckoutOutcome(string(result.Status))
	return result, nil
}

// Resolve records operator overrides for unresolved lines and re-runs the
// pipeline.
func (s *CheckoutService) Resolve(ctx context.Context, tenantID, terminalID, actorID string, overrides []domain.ResolutionOverride) (*CompletionResult, error) {
	if len(overrides) == 0 {
		return nil, apperrors.InvalidInput("at least one override is required")
	}
	filled, err := s.fillOverrides(ctx, tenantID, overrides)
	if err != nil {
		return nil, err
	}

	var result *CompletionResult
	_, err = s.mutate(ctx, tenantID, terminalID, func(co *domain.Checkout) error {
		if co.Step != domain.StepPayment {
			return &domain.TransitionError{From: co.Step, Action: "resolve jump rings"}
		}
		co.AddOverrides(filled)
		var cerr error
		result, cerr = s.complete(ctx, co, actorID)
		return cerr
	})
	return s.settle(ctx, result, err)
}

// fillOverrides checks that chosen items are active jump rings and takes
// cost and material from stock where the operator left them blank.
func (s *CheckoutService) fillOverrides(ctx context.Context, tenantID string, overrides []domain.ResolutionOverride) ([]domain.ResolutionOverride, error) {
	out := make([]domain.ResolutionOverride, len(overrides))
	for i, o := range overrides {
		if o.CartItemID == "" {
			return nil, apperrors.InvalidInput("override cart_item_id is required")
		}
		if o.CostPerUnit.IsNegative() {
			return nil, domain.ErrNegativeAmount
		}
		if o.InventoryItemID != nil {
			inv, err := s.inventory.GetByID(ctx, tenantID, *o.InventoryItemID)
			if err != nil {
				return nil, fmt.Errorf("get override item: %w", err)
			}
			if inv.Kind != domain.KindJumpRing {
				return nil, apperrors.InvalidInput(fmt.Sprintf("%q is not a jump ring", inv.Name))
			}
			if !inv.Active {
				return nil, apperrors.InvalidInput(fmt.Sprintf("inventory item %q is inactive", inv.Name))
			}
			if o.CostPerUnit.IsZero() {
				o.CostPerUnit = inv.CostPerUnit
			}
			if o.Material == "" {
				o.Material = inv.Material
			}
		}
		out[i] = o
	}
	return out, nil
}

func (s *CheckoutService) complete(ctx context.Context, co *domain.Checkout, actorID string) (*CompletionResult, error) {
	if err := co.BeginCompletion(); err != nil {
		return nil, err
	}

	stock, err := s.inventory.ListJumpRings(ctx, co.TenantID)
	if err != nil {
		return s.failed(ctx, co, fmt.Sprintf("load jump-ring stock: %v", err)), nil
	}
	resolved := s.resolver.Resolve(co.Cart.Items, stock)
	resolutions := ApplyOverrides(resolved.Resolutions, co.Overrides)

	if pending := Unresolved(resolutions); len(pending) > 0 {
		co.AwaitResolution(pending, resolved.Warnings)
		s.logger.InfoContext(ctx, "checkout awaiting jump-ring resolution",
			slog.String("terminal_id", co.TerminalID),
			slog.Int("pending", len(pending)),
		)
		return &CompletionResult{
			Status:   StatusNeedsResolution,
			Message:  fmt.Sprintf("%d line(s) need a jump ring", len(pending)),
			Warnings: resolved.Warnings,
			Pending:  pending,
			Checkout: co,
		}, nil
	}

	// The attempt id is stored before any money moves. It is the charge's
	// idempotency key and the sale id.
	if co.StartAttempt(uuid.New().String()) {
		if err := s.sessions.Save(ctx, co); err != nil {
			return nil, fmt.Errorf("save checkout attempt: %w", err)
		}
	} else {
		sale, err := s.sales.GetSale(ctx, co.TenantID, co.AttemptID)
		if err == nil {
			s.logger.WarnContext(ctx, "checkout attempt already recorded",
				slog.String("terminal_id", co.TerminalID),
				slog.String("sale_id", sale.ID),
			)
			return s.succeeded(co, &SaleResult{Sale: sale, Warnings: []string{WarningAlreadyRecorded}}), nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return s.failed(ctx, co, fmt.Sprintf("look up earlier attempt: %v", err)), nil
		}
	}

	method := co.Cart.PaymentMethod
	provider, err := s.payments.For(method)
	if err != nil {
		co.AbandonAttempt()
		return s.failed(ctx, co, err.Error()), nil
	}
	charge, err := provider.Charge(ctx, payment.ChargeRequest{
		TenantID:   co.TenantID,
		TerminalID: co.TerminalID,
		AttemptID:  co.AttemptID,
		Method:     method,
		Amount:     co.Cart.Totals().Total,
	})
	if err != nil {
		co.AbandonAttempt()
		return s.failed(ctx, co, fmt.Sprintf("payment failed: %v", err)), nil
	}

	result, err := s.sales.Commit(ctx, CommitRequest{
		SaleID:           co.AttemptID,
		TenantID:         co.TenantID,
		ActorID:          actorID,
		Cart:             co.Cart.Clone(),
		Resolutions:      resolutions,
		ResolverWarnings: resolved.Warnings,
		PaymentMethod:    method,
		PaymentReference: charge.Reference,
		EventID:          co.EventID,
	})
	if err != nil {
		// A failed commit call may still have landed; keep the attempt so a
		// retry looks for the sale first.
		var saleErr *SaleError
		if !errors.As(err, &saleErr) || saleErr.Step != StepCommit {
			s.voidCharge(ctx, provider, charge)
			co.AbandonAttempt()
		}
		return s.failed(ctx, co, err.Error()), nil
	}
	return s.succeeded(co, result), nil
}

func (s *CheckoutService) succeeded(co *domain.Checkout, result *SaleResult) *CompletionResult {
	co.CompleteSucceeded(result.Sale.ID, result.Warnings)
	return &CompletionResult{
		Status:    StatusCompleted,
		Sale:      result.Sale,
		Inventory: result.Inventory,
		Warnings:  result.Warnings,
		Checkout:  co,
	}
}

func (s *CheckoutService) failed(ctx context.Context, co *domain.Checkout, message string) *CompletionResult {
	co.CompleteFailed(message)
	s.logger.WarnContext(ctx, "checkout failed",
		slog.String("terminal_id", co.TerminalID),
		slog.String("error", message),
	)
	return &CompletionResult{
		Status:   StatusFailed,
		Message:  message,
		Checkout: co,
	}
}

// voidCharge reverses a charge whose sale did not commit.
func (s *CheckoutService) voidCharge(ctx context.Context, provider payment.Provider, charge *payment.Charge) {
	err := provider.Void(ctx, charge)
	metrics.PaymentVoided(err == nil)
	if err != nil {
		ref := ""
		if charge.Reference != nil {
			ref = *charge.Reference
		}
		s.logger.ErrorContext(ctx, "failed to void charge after sale rollback",
			slog.String("provider", provider.Name()),
			slog.String("reference", ref),
			slog.String("error", err.Error()),
		)
	}
}

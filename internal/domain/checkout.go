package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Step is a checkout screen.
type Step string

// Checkout steps.
const (
	StepItems        Step = "items"
	StepTip          Step = "tip"
	StepPayment      Step = "payment"
	StepConfirmation Step = "confirmation"
	StepCancelled    Step = "cancelled"
)

// Checkout is the per-terminal checkout flow. It only tracks state; the
// sale pipeline is run by the caller between BeginCompletion and one of
// CompleteSucceeded, CompleteFailed or AwaitResolution.
type Checkout struct {
	TenantID     string               `json:"tenant_id"`
	TerminalID   string               `json:"terminal_id"`
	Step         Step                 `json:"step"`
	Cart         *Cart                `json:"cart"`
	EventID      *string              `json:"event_id,omitempty"`
	QueueEntryID *string              `json:"queue_entry_id,omitempty"`
	Pending      []JumpRingResolution `json:"pending_resolutions,omitempty"`
	Overrides    []ResolutionOverride `json:"overrides,omitempty"`
	Warnings     []string             `json:"warnings,omitempty"`
	LastError    string               `json:"last_error,omitempty"`
	LastSaleID   string               `json:"last_sale_id,omitempty"`
	AttemptID    string               `json:"attempt_id,omitempty"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// NewCheckout starts a session at the items step.
func NewCheckout(tenantID, terminalID string, taxRate, feeRate decimal.Decimal) *Checkout {
	return &Checkout{
		TenantID:   tenantID,
		TerminalID: terminalID,
		Step:       StepItems,
		Cart:       NewCart(taxRate, feeRate),
		UpdatedAt:  time.Now().UTC(),
	}
}

func (c *Checkout) reject(action, reason string) error {
	return &TransitionError{From: c.Step, Action: action, Reason: reason}
}

func (c *Checkout) touch() {
	c.UpdatedAt = time.Now().UTC()
}

// CanEditCart reports whether cart lines, tip and tender may change. They
// are frozen while an attempt may have charged the customer, since a retry
// reuses the attempt id as the charge's idempotency key.
func (c *Checkout) CanEditCart() bool {
	if c.AttemptID != "" {
		return false
	}
	return c.Step == StepItems || c.Step == StepTip || c.Step == StepPayment
}

// CheckEditable returns a TransitionError when CanEditCart is false.
func (c *Checkout) CheckEditable(action string) error {
	if c.AttemptID != "" {
		return c.reject(action, "an earlier attempt may have been charged; retry the sale")
	}
	if !c.CanEditCart() {
		return c.reject(action, "")
	}
	return nil
}

// CartEdited drops pending resolutions and overrides, which no longer
// match the cart.
func (c *Checkout) CartEdited() {
	c.clearResolution()
	c.touch()
}

func (c *Checkout) clearResolution() {
	c.Pending = nil
	c.Overrides = nil
}

// AddOverrides records operator overrides. Later entries win.
func (c *Checkout) AddOverrides(overrides []ResolutionOverride) {
	c.Overrides = append(c.Overrides, overrides...)
	c.touch()
}

// ProceedToTip moves items to tip once the cart has a line.
func (c *Checkout) ProceedToTip() error {
	if c.Step != StepItems {
		return c.reject("proceed to tip", "")
	}
	if c.Cart.IsEmpty() {
		return c.reject("proceed to tip", "cart is empty")
	}
	c.Step = StepTip
	c.touch()
	return nil
}

// ProceedToPayment moves tip to payment. An unset tip is zero.
func (c *Checkout) ProceedToPayment() error {
	if c.Step != StepTip {
		return c.reject("proceed to payment", "")
	}
	if c.Cart.Tip.IsNegative() {
		c.Cart.Tip = decimal.Zero
	}
	c.Step = StepPayment
	c.touch()
	return nil
}

// Back returns to the previous editing step.
func (c *Checkout) Back() error {
	switch c.Step {
	case StepTip:
		c.Step = StepItems
	case StepPayment:
		if c.AttemptID != "" {
			return c.reject("go back", "an earlier attempt may have been charged; retry the sale")
		}
		c.Step = StepTip
		c.clearResolution()
	default:
		return c.reject("go back", "")
	}
	c.touch()
	return nil
}

// BeginCompletion checks that the sale pipeline may run.
func (c *Checkout) BeginCompletion() error {
	if c.Step != StepPayment {
		return c.reject("complete sale", "")
	}
	if c.Cart.PaymentMethod == "" {
		return c.reject("complete sale", "payment method not selected")
	}
	if c.Cart.IsEmpty() {
		return c.reject("complete sale", "cart is empty")
	}
	c.LastError = ""
	return nil
}

// StartAttempt assigns the id the next charge and sale are recorded under
// and reports true. It reports false and keeps the existing id when an
// earlier attempt may already have been recorded.
func (c *Checkout) StartAttempt(id string) bool {
	if c.AttemptID != "" {
		return false
	}
	c.AttemptID = id
	c.touch()
	return true
}

// AbandonAttempt forgets an attempt known to have left no sale behind.
func (c *Checkout) AbandonAttempt() {
	c.AttemptID = ""
	c.touch()
}

// AwaitResolution parks the session at payment until the operator resolves
// the given lines.
func (c *Checkout) AwaitResolution(pending []JumpRingResolution, warnings []string) {
	c.Pending = pending
	c.Warnings = warnings
	c.touch()
}

// NeedsResolution reports whether overrides are outstanding.
func (c *Checkout) NeedsResolution() bool {
	return len(c.Pending) > 0
}

// CompleteSucceeded records the sale and resets the cart.
func (c *Checkout) CompleteSucceeded(saleID string, warnings []string) {
	c.Step = StepConfirmation
	c.LastSaleID = saleID
	c.AttemptID = ""
	c.LastError = ""
	c.Warnings = warnings
	c.clearResolution()
	c.Cart.Reset()
	c.touch()
}

// CompleteFailed stays at payment and keeps the cart so the operator can
// retry. The attempt id is kept; see AbandonAttempt.
func (c *Checkout) CompleteFailed(message string) {
	c.Step = StepPayment
	c.LastError = message
	c.touch()
}

// Cancel discards the cart. Only allowed before payment.
func (c *Checkout) Cancel() error {
	if c.Step != StepItems && c.Step != StepTip {
		return c.reject("cancel", "")
	}
	c.Step = StepCancelled
	c.Cart.Reset()
	c.AttemptID = ""
	c.clearResolution()
	c.Warnings = nil
	c.LastError = ""
	c.touch()
	return nil
}

// StartNewSale returns to items from confirmation or cancelled, clearing
// the linked queue entry and any leftover state. The event link is kept
// since a pop-up event spans many sales.
func (c *Checkout) StartNewSale() error {
	if c.Step != StepConfirmation && c.Step != StepCancelled {
		return c.reject("start new sale", "")
	}
	c.Step = StepItems
	c.Cart.Reset()
	c.QueueEntryID = nil
	c.AttemptID = ""
	c.clearResolution()
	c.Warnings = nil
	c.LastError = ""
	c.touch()
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/payment"
	"github.com/permalink-studio/pos/internal/repository/memory"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

const terminal = "register-1"

// ============================================================================
// Mock payment provider
// ============================================================================

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "terminal" }

func (m *mockProvider) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	args := m.Called(ctx, req)
	if c, ok := args.Get(0).(*payment.Charge); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) Void(ctx context.Context, charge *payment.Charge) error {
	return m.Called(ctx, charge).Error(0)
}

type checkoutFixture struct {
	*fixture
	sessions *memory.SessionStore
	card     *mockProvider
	svc      *CheckoutService
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	f := newFixture(t, true)
	card := &mockProvider{}
	router := payment.NewRouter().
		Register(payment.ManualProvider{}, domain.PaymentCash, domain.PaymentVenmo, domain.PaymentExternal).
		Register(card, domain.PaymentCard)
	sessions := memory.NewSessionStore()
	svc := NewCheckoutService(sessions, f.store.Inventory(), f.resolver, router, f.sales,
		CheckoutDefaults{TaxRate: d("0.08"), PlatformFeeRate: d("0.03")}, newTestLogger())
	return &checkoutFixture{fixture: f, sessions: sessions, card: card, svc: svc}
}

// toPayment adds lines and walks the session to the payment step with method set.
func (f *checkoutFixture) toPayment(t *testing.T, method string, lines ...AddItemInput) *domain.Checkout {
	t.Helper()
	ctx := context.Background()
	for _, l := range lines {
		_, err := f.svc.AddItem(ctx, tenant, terminal, l)
		require.NoError(t, err)
	}
	_, err := f.svc.ProceedToTip(ctx, tenant, terminal)
	require.NoError(t, err)
	_, err = f.svc.ProceedToPayment(ctx, tenant, terminal)
	require.NoError(t, err)
	co, err := f.svc.SetPaymentMethod(ctx, tenant, terminal, method)
	require.NoError(t, err)
	return co
}

func TestCheckout_CompletesSale(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	chain := f.seed(t, "Silver cable chain", domain.KindChain, "silver", "100", "0.50")
	rings := f.seed(t, "Silver jump ring", domain.KindJumpRing, "silver", "10", "0.10")

	co, err := f.svc.AddItem(ctx, tenant, terminal, AddItemInput{
		Quantity:        1,
		UnitPrice:       ptr(d("60")),
		InventoryItemID: &chain.ID,
		ChainInches:     ptr(d("7")),
	})
	require.NoError(t, err)
	require.Len(t, co.Cart.Items, 1)
	line := co.Cart.Items[0]
	assert.Equal(t, "Silver cable chain", line.Name)
	assert.Equal(t, domain.RequiredChain, line.RequiredKind)
	assert.Equal(t, "silver", line.Material)

	_, err = f.svc.ProceedToTip(ctx, tenant, terminal)
	require.NoError(t, err)
	_, err = f.svc.SetTip(ctx, tenant, terminal, d("5"))
	require.NoError(t, err)
	_, err = f.svc.ProceedToPayment(ctx, tenant, terminal)
	require.NoError(t, err)
	_, err = f.svc.SetPaymentMethod(ctx, tenant, terminal, "Cash")
	require.NoError(t, err)

	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status, result.Message)
	assert.True(t, d("5").Equal(result.Sale.Tip))
	assert.Equal(t, domain.PaymentCash, result.Sale.PaymentMethod)
	assert.Equal(t, domain.StepConfirmation, result.Checkout.Step)
	assert.True(t, result.Checkout.Cart.IsEmpty())
	assert.Equal(t, result.Sale.ID, result.Checkout.LastSaleID)

	assert.True(t, d("93").Equal(f.quantity(t, chain.ID)))
	assert.True(t, d("9").Equal(f.quantity(t, rings.ID)))

	co, err = f.svc.StartNewSale(ctx, tenant, terminal)
	require.NoError(t, err)
	assert.Equal(t, domain.StepItems, co.Step)
}

func TestCheckout_NeedsResolutionThenNoRing(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	rings := f.seed(t, "Silver jump ring", domain.KindJumpRing, "silver", "10", "0.10")

	f.toPayment(t, domain.PaymentCash, AddItemInput{
		Name: "Heart charm", Quantity: 1, UnitPrice: ptr(d("20")), RequiredKind: "charm", Material: "rose gold",
	})

	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusNeedsResolution, result.Status)
	require.Len(t, result.Pending, 1)
	assert.Equal(t, domain.StepPayment, result.Checkout.Step)
	assert.True(t, result.Checkout.NeedsResolution())
	sales, _, _ := f.store.Counts()
	assert.Zero(t, sales)

	result, err = f.svc.Resolve(ctx, tenant, terminal, "staff-1", []domain.ResolutionOverride{
		{CartItemID: result.Pending[0].CartItemID},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status, result.Message)
	assert.Equal(t, 0, result.Sale.Items[0].JumpRingsUsed)
	assert.True(t, d("10").Equal(f.quantity(t, rings.ID)))
}

func TestCheckout_ResolveWithSubstituteRing(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	gold := f.seed(t, "Gold jump ring", domain.KindJumpRing, "gold", "10", "0.45")

	f.toPayment(t, domain.PaymentCash, AddItemInput{
		Name: "Star charm", Quantity: 2, UnitPrice: ptr(d("18")), RequiredKind: "charm", Material: "rose gold",
	})
	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusNeedsResolution, result.Status)

	result, err = f.svc.Resolve(ctx, tenant, terminal, "staff-1", []domain.ResolutionOverride{
		{CartItemID: result.Pending[0].CartItemID, InventoryItemID: &gold.ID},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status, result.Message)

	item := result.Sale.Items[0]
	assert.Equal(t, gold.ID, *item.JumpRingInventoryItemID)
	assert.Equal(t, 2, item.JumpRingsUsed)
	assert.True(t, d("0.9").Equal(item.JumpRingCost))
	assert.True(t, d("8").Equal(f.quantity(t, gold.ID)))
}

func TestCheckout_ResolveValidation(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	chain := f.seed(t, "Silver chain", domain.KindChain, "silver", "10", "0.50")

	_, err := f.svc.Resolve(ctx, tenant, terminal, "staff-1", nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Resolve(ctx, tenant, terminal, "staff-1", []domain.ResolutionOverride{
		{CartItemID: "line-1", InventoryItemID: &chain.ID},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.Resolve(ctx, tenant, terminal, "staff-1", []domain.ResolutionOverride{{CartItemID: "line-1"}})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCheckout_PaymentDeclinedKeepsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.card.On("Charge", mock.Anything, mock.Anything).Return(nil, apperrors.PaymentFailed("card declined"))

	f.toPayment(t, domain.PaymentCard, AddItemInput{Name: "Ring", Quantity: 1, UnitPrice: ptr(d("40"))})

	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Message, "card declined")
	assert.Equal(t, domain.StepPayment, result.Checkout.Step)
	assert.Len(t, result.Checkout.Cart.Items, 1)
	assert.Equal(t, result.Message, result.Checkout.LastError)

	sales, _, _ := f.store.Counts()
	assert.Zero(t, sales)
	f.card.AssertNotCalled(t, "Void", mock.Anything, mock.Anything)
}

func TestCheckout_CommitFailureVoidsCharge(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	charge := &payment.Charge{Provider: "terminal", Reference: ptr("ch_123")}
	f.card.On("Charge", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		return req.Amount.Equal(d("44.5")) && req.AttemptID != ""
	})).Return(charge, nil).Once()
	f.card.On("Void", mock.Anything, charge).Return(nil).Once()

	f.toPayment(t, domain.PaymentCard, AddItemInput{Name: "Ring", Quantity: 1, UnitPrice: ptr(d("40"))})
	f.store.FailOn("Sales.Create", errors.New("connection reset"))

	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Message, "create_sale")
	assert.Equal(t, domain.StepPayment, result.Checkout.Step)
	f.card.AssertExpectations(t)

	f.store.FailOn("Sales.Create", nil)
	f.card.On("Charge", mock.Anything, mock.Anything).Return(charge, nil).Once()
	result, err = f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "ch_123", *result.Sale.PaymentReference)
}

func TestCheckout_CartFrozenWhileAttemptOutstanding(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	charge := &payment.Charge{Provider: "terminal", Reference: ptr("ch_77")}

	var attempts []string
	f.card.On("Charge", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		return req.Amount.Equal(d("44.5"))
	})).Run(func(args mock.Arguments) {
		attempts = append(attempts, args.Get(1).(payment.ChargeRequest).AttemptID)
	}).Return(charge, nil).Twice()

	f.toPayment(t, domain.PaymentCard, AddItemInput{Name: "Ring", Quantity: 1, UnitPrice: ptr(d("40"))})
	f.store.FailOn("Commit", errors.New("connection lost during commit"))

	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, result.Status)
	assert.Contains(t, result.Message, string(StepCommit))
	assert.NotEmpty(t, result.Checkout.AttemptID)

	_, err = f.svc.AddItem(ctx, tenant, terminal, AddItemInput{Name: "Heart charm", Quantity: 1, UnitPrice: ptr(d("25"))})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.SetTip(ctx, tenant, terminal, d("10"))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.SetPaymentMethod(ctx, tenant, terminal, domain.PaymentCash)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = f.svc.Back(ctx, tenant, terminal)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	co, err := f.svc.Get(ctx, tenant, terminal)
	require.NoError(t, err)
	assert.Len(t, co.Cart.Items, 1)

	f.store.FailOn("Commit", nil)
	result, err = f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status, result.Message)
	assert.True(t, d("44.5").Equal(result.Sale.Total))
	require.Len(t, attempts, 2)
	assert.Equal(t, attempts[0], attempts[1])
	assert.Equal(t, attempts[0], result.Sale.ID)

	f.card.AssertExpectations(t)
	f.card.AssertNotCalled(t, "Void", mock.Anything, mock.Anything)
	sales, _, _ := f.store.Counts()
	assert.Equal(t, 1, sales)
}

// recordingCommitter keeps the last commit request.
type recordingCommitter struct {
	*SaleService
	last CommitRequest
}

func (r *recordingCommitter) Commit(ctx context.Context, req CommitRequest) (*SaleResult, error) {
	r.last = req
	return r.SaleService.Commit(ctx, req)
}

func TestCheckout_CommitsCartSnapshot(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	committer := &recordingCommitter{SaleService: f.sales}
	svc := NewCheckoutService(f.sessions, f.store.Inventory(), f.resolver, f.svc.payments, committer, f.svc.defaults, newTestLogger())

	f.toPayment(t, domain.PaymentCash, AddItemInput{Name: "Ring", Quantity: 2, UnitPrice: ptr(d("40"))})

	result, err := svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status, result.Message)
	assert.True(t, result.Checkout.Cart.IsEmpty())

	require.NotNil(t, committer.last.Cart)
	require.Len(t, committer.last.Cart.Items, 1)
	assert.Equal(t, 2, committer.last.Cart.Items[0].Quantity)
	assert.Equal(t, domain.PaymentCash, committer.last.Cart.PaymentMethod)
}

func TestCheckout_EditingClearsPendingResolution(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	f.toPayment(t, domain.PaymentCash, AddItemInput{
		Name: "Charm", Quantity: 1, UnitPrice: ptr(d("20")), RequiredKind: "charm", Material: "rose gold",
	})
	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusNeedsResolution, result.Status)

	co, err := f.svc.AddItem(ctx, tenant, terminal, AddItemInput{Name: "Gift box", Quantity: 1, UnitPrice: ptr(d("5"))})
	require.NoError(t, err)
	assert.False(t, co.NeedsResolution())
	assert.Empty(t, co.Overrides)
}

func TestCheckout_InvalidTransitions(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.svc.ProceedToTip(ctx, tenant, terminal)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = f.svc.SetPaymentMethod(ctx, tenant, terminal, "bitcoin")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.AddItem(ctx, tenant, terminal, AddItemInput{Name: "", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = f.svc.AddItem(ctx, tenant, terminal, AddItemInput{Name: "x", Quantity: 1, InventoryItemID: ptr("missing")})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.svc.Get(ctx, "", terminal)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCheckout_CancelDiscardsCart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, tenant, terminal, AddItemInput{Name: "Ring", Quantity: 1, UnitPrice: ptr(d("40"))})
	require.NoError(t, err)

	co, err := f.svc.Cancel(ctx, tenant, terminal)
	require.NoError(t, err)
	assert.Equal(t, domain.StepCancelled, co.Step)
	assert.True(t, co.Cart.IsEmpty())

	_, err = f.svc.AddItem(ctx, tenant, terminal, AddItemInput{Name: "Ring", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	co, err = f.svc.StartNewSale(ctx, tenant, terminal)
	require.NoError(t, err)
	assert.Equal(t, domain.StepItems, co.Step)

	sales, _, movements := f.store.Counts()
	assert.Zero(t, sales)
	assert.Zero(t, movements)
}

func TestCheckout_SessionSurvivesRestart(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddItem(ctx, tenant, terminal, AddItemInput{Name: "Ring", Quantity: 2, UnitPrice: ptr(d("40"))})
	require.NoError(t, err)
	_, err = f.svc.SetEvent(ctx, tenant, terminal, ptr("event-1"), ptr("queue-7"))
	require.NoError(t, err)

	restarted := NewCheckoutService(f.sessions, f.store.Inventory(), f.resolver, payment.NewRouter(), f.sales,
		CheckoutDefaults{}, newTestLogger())
	co, err := restarted.Get(ctx, tenant, terminal)
	require.NoError(t, err)
	require.Len(t, co.Cart.Items, 1)
	assert.Equal(t, 2, co.Cart.Items[0].Quantity)
	assert.True(t, d("0.08").Equal(co.Cart.TaxRate))
	assert.Equal(t, "queue-7", *co.QueueEntryID)

	other, err := restarted.Get(ctx, tenant, "register-2")
	require.NoError(t, err)
	assert.True(t, other.Cart.IsEmpty())
}

func TestCheckout_EventLinkSpansSales(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetEvent(ctx, tenant, terminal, ptr("market-2026"), ptr("queue-3"))
	require.NoError(t, err)
	f.toPayment(t, domain.PaymentVenmo, AddItemInput{Name: "Anklet", Quantity: 1, UnitPrice: ptr(d("55"))})

	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, "market-2026", *result.Sale.EventID)

	co, err := f.svc.StartNewSale(ctx, tenant, terminal)
	require.NoError(t, err)
	assert.Nil(t, co.QueueEntryID)
	require.NotNil(t, co.EventID)
	assert.Equal(t, "market-2026", *co.EventID)
}

// ============================================================================
// Session store failures
// ============================================================================

// flakySessions fails the failAt-th Save counted from construction.
type flakySessions struct {
	*memory.SessionStore
	mu     sync.Mutex
	saves  int
	failAt int
}

func (s *flakySessions) Save(ctx context.Context, co *domain.Checkout) error {
	s.mu.Lock()
	s.saves++
	fail := s.saves == s.failAt
	s.mu.Unlock()
	if fail {
		return errors.New("redis down")
	}
	return s.SessionStore.Save(ctx, co)
}

// overSessions returns a driver sharing f's store and router but persisting
// through sessions.
func (f *checkoutFixture) overSessions(sessions *flakySessions) *CheckoutService {
	return NewCheckoutService(sessions, f.store.Inventory(), f.resolver, f.svc.payments, f.sales, f.svc.defaults, newTestLogger())
}

func TestCheckout_SessionSaveFailureAfterCommitDoesNotSellTwice(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	chain := f.seed(t, "Silver cable chain", domain.KindChain, "silver", "100", "0.50")
	rings := f.seed(t, "Silver jump ring", domain.KindJumpRing, "silver", "10", "0.10")

	var attemptID string
	f.card.On("Charge", mock.Anything, mock.MatchedBy(func(req payment.ChargeRequest) bool {
		attemptID = req.AttemptID
		return req.AttemptID != ""
	})).Return(&payment.Charge{Provider: "terminal", Reference: ptr("ch_1")}, nil).Once()

	f.toPayment(t, domain.PaymentCard, AddItemInput{Quantity: 1, UnitPrice: ptr(d("60")), InventoryItemID: &chain.ID, ChainInches: ptr(d("7"))})

	// Save 1 records the attempt, save 2 is the post-commit session.
	sessions := &flakySessions{SessionStore: f.sessions, failAt: 2}
	svc := f.overSessions(sessions)

	result, err := svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, result.Status, result.Message)
	assert.Contains(t, result.Warnings, WarningSessionNotSaved)
	assert.Equal(t, attemptID, result.Sale.ID)

	stored, err := f.sessions.Get(ctx, tenant, terminal)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, stored.Step)
	assert.Equal(t, result.Sale.ID, stored.AttemptID)

	retry, err := svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, retry.Status, retry.Message)
	assert.Equal(t, result.Sale.ID, retry.Sale.ID)
	assert.Contains(t, retry.Warnings, WarningAlreadyRecorded)
	assert.Equal(t, domain.StepConfirmation, retry.Checkout.Step)

	sales, _, _ := f.store.Counts()
	assert.Equal(t, 1, sales)
	assert.True(t, d("93").Equal(f.quantity(t, chain.ID)))
	assert.True(t, d("9").Equal(f.quantity(t, rings.ID)))
	f.card.AssertExpectations(t)
}

func TestCheckout_AttemptNotSavedChargesNothing(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	f.toPayment(t, domain.PaymentCard, AddItemInput{Name: "Ring", Quantity: 1, UnitPrice: ptr(d("40"))})

	svc := f.overSessions(&flakySessions{SessionStore: f.sessions, failAt: 1})
	_, err := svc.Complete(ctx, tenant, terminal, "staff-1")
	require.Error(t, err)
	f.card.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
	sales, _, _ := f.store.Counts()
	assert.Zero(t, sales)

	f.card.On("Charge", mock.Anything, mock.Anything).Return(&payment.Charge{Provider: "terminal", Reference: ptr("ch_2")}, nil).Once()
	result, err := svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.NotContains(t, result.Warnings, WarningAlreadyRecorded)
	sales, _, _ = f.store.Counts()
	assert.Equal(t, 1, sales)
}

func TestCheckout_ResolveRejectsInactiveRing(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()
	gold := f.seed(t, "Gold jump ring", domain.KindJumpRing, "gold", "5", "0.45")
	_, err := f.inventory.Update(ctx, tenant, gold.ID, UpdateInventoryInput{Active: ptr(false)})
	require.NoError(t, err)

	f.toPayment(t, domain.PaymentCash, AddItemInput{
		Name: "Star charm", Quantity: 1, UnitPrice: ptr(d("18")), RequiredKind: "charm", Material: "rose gold",
	})
	result, err := f.svc.Complete(ctx, tenant, terminal, "staff-1")
	require.NoError(t, err)
	require.Equal(t, StatusNeedsResolution, result.Status)

	_, err = f.svc.Resolve(ctx, tenant, terminal, "staff-1", []domain.ResolutionOverride{
		{CartItemID: result.Pending[0].CartItemID, InventoryItemID: &gold.ID},
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.True(t, d("5").Equal(f.quantity(t, gold.ID)))
	sales, _, _ := f.store.Counts()
	assert.Zero(t, sales)
}

func TestCheckout_TerminalLocksAreReleased(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			term := fmt.Sprintf("register-%d", i%4)
			_, err := f.svc.AddItem(ctx, tenant, term, AddItemInput{Name: "Ring", Quantity: 1, UnitPrice: ptr(d("40"))})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	co, err := f.svc.Get(ctx, tenant, "register-1")
	require.NoError(t, err)
	assert.Len(t, co.Cart.Items, 5)

	f.svc.mu.Lock()
	defer f.svc.mu.Unlock()
	assert.Empty(t, f.svc.locks)
}

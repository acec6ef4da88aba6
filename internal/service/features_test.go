package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/payment"
	"github.com/permalink-studio/pos/internal/repository/memory"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

type checkoutWorld struct {
	store     *memory.Store
	inventory *InventoryService
	sales     *SaleService
	checkout  *CheckoutService
	resolver  *JumpRingResolver
	items     map[string]*domain.InventoryItem
	result    *CompletionResult
}

func (w *checkoutWorld) reset() {
	w.store = memory.New()
	w.items = make(map[string]*domain.InventoryItem)
	w.result = nil
	w.wire(true)
}

// wire rebuilds the services over the current store.
func (w *checkoutWorld) wire(allowOversell bool) {
	events := newMockEvents()
	w.resolver = NewJumpRingResolver(TieBreakLowestCost)
	w.inventory = NewInventoryService(w.store, events, newTestLogger())
	w.sales = NewSaleService(w.store, events, nil, allowOversell, newTestLogger())
	router := payment.NewRouter().Register(payment.ManualProvider{},
		domain.PaymentCash, domain.PaymentCard, domain.PaymentVenmo, domain.PaymentExternal)
	w.checkout = NewCheckoutService(memory.NewSessionStore(), w.store.Inventory(), w.resolver, router, w.sales,
		CheckoutDefaults{TaxRate: d("0.08"), PlatformFeeRate: d("0.03")}, newTestLogger())
}

func (w *checkoutWorld) theOversellPolicyIs(policy string) error {
	w.wire(policy == "allow")
	return nil
}

func (w *checkoutWorld) theInventory(table *godog.Table) error {
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		qty, err := decimal.NewFromString(row.Cells[3].Value)
		if err != nil {
			return err
		}
		cost, err := decimal.NewFromString(row.Cells[4].Value)
		if err != nil {
			return err
		}
		item, err := w.inventory.Create(context.Background(), tenant, "owner", CreateItemInput{
			Name:        row.Cells[0].Value,
			Kind:        domain.Kind(row.Cells[1].Value),
			Material:    row.Cells[2].Value,
			Quantity:    qty,
			CostPerUnit: cost,
			SellPrice:   decimal.Zero,
		})
		if err != nil {
			return err
		}
		w.items[item.Name] = item
	}
	return nil
}

func (w *checkoutWorld) item(name string) (*domain.InventoryItem, error) {
	item, ok := w.items[name]
	if !ok {
		return nil, fmt.Errorf("no inventory item named %q", name)
	}
	return item, nil
}

// ringUp adds line and walks the session to payment with method chosen.
func (w *checkoutWorld) ringUp(line AddItemInput, method string) error {
	ctx := context.Background()
	if _, err := w.checkout.AddItem(ctx, tenant, terminal, line); err != nil {
		return err
	}
	if _, err := w.checkout.ProceedToTip(ctx, tenant, terminal); err != nil {
		return err
	}
	if _, err := w.checkout.ProceedToPayment(ctx, tenant, terminal); err != nil {
		return err
	}
	_, err := w.checkout.SetPaymentMethod(ctx, tenant, terminal, method)
	return err
}

func (w *checkoutWorld) aChainBraceletIsRungUp(inches, chain, method string) error {
	item, err := w.item(chain)
	if err != nil {
		return err
	}
	length, err := decimal.NewFromString(inches)
	if err != nil {
		return err
	}
	return w.ringUp(AddItemInput{
		Quantity:        1,
		UnitPrice:       ptr(d("60")),
		InventoryItemID: &item.ID,
		ChainInches:     &length,
	}, method)
}

func (w *checkoutWorld) aCharmIsRungUp(name, material, method string) error {
	return w.ringUp(AddItemInput{
		Name:         name,
		Quantity:     1,
		UnitPrice:    ptr(d("20")),
		RequiredKind: string(domain.RequiredCharm),
		Material:     material,
	}, method)
}

func (w *checkoutWorld) theSaleIsCompleted() error {
	result, err := w.checkout.Complete(context.Background(), tenant, terminal, "staff-1")
	if err != nil {
		return err
	}
	w.result = result
	return nil
}

func (w *checkoutWorld) theCashierChoosesNoJumpRing() error {
	if w.result == nil {
		return errors.New("no completion attempt yet")
	}
	overrides := make([]domain.ResolutionOverride, 0, len(w.result.Pending))
	for _, p := range w.result.Pending {
		overrides = append(overrides, domain.ResolutionOverride{CartItemID: p.CartItemID})
	}
	result, err := w.checkout.Resolve(context.Background(), tenant, terminal, "staff-1", overrides)
	if err != nil {
		return err
	}
	w.result = result
	return nil
}

func (w *checkoutWorld) theCheckoutReports(status string) error {
	if w.result == nil {
		return errors.New("no completion attempt yet")
	}
	if string(w.result.Status) != status {
		return fmt.Errorf("expected status %s, got %s (%s)", status, w.result.Status, w.result.Message)
	}
	return nil
}

func (w *checkoutWorld) resolutionsArePending(n int) error {
	if got := len(w.result.Pending); got != n {
		return fmt.Errorf("expected %d pending resolutions, got %d", n, got)
	}
	return nil
}

func (w *checkoutWorld) salesAreRecorded(n int) error {
	sales, _, _ := w.store.Counts()
	if sales != n {
		return fmt.Errorf("expected %d sales, got %d", n, sales)
	}
	return nil
}

func (w *checkoutWorld) theSaleRecords(rings int, chainCost string) error {
	if w.result == nil || w.result.Sale == nil {
		return errors.New("no sale was committed")
	}
	if len(w.result.Sale.Items) != 1 {
		return fmt.Errorf("expected 1 sale item, got %d", len(w.result.Sale.Items))
	}
	item := w.result.Sale.Items[0]
	if item.JumpRingsUsed != rings {
		return fmt.Errorf("expected %d jump rings used, got %d", rings, item.JumpRingsUsed)
	}
	if want := d(chainCost); !item.ChainMaterialCost.Equal(want) {
		return fmt.Errorf("expected chain material cost %s, got %s", want, item.ChainMaterialCost)
	}
	return nil
}

func (w *checkoutWorld) hasOnHand(name, qty string) error {
	item, err := w.item(name)
	if err != nil {
		return err
	}
	current, err := w.store.Inventory().GetByID(context.Background(), tenant, item.ID)
	if err != nil {
		return err
	}
	if want := d(qty); !current.Quantity.Equal(want) {
		return fmt.Errorf("expected %s on hand for %s, got %s", want, name, current.Quantity)
	}
	return nil
}

func (w *checkoutWorld) theLedgerBalances(name string) error {
	item, err := w.item(name)
	if err != nil {
		return err
	}
	report, err := w.inventory.VerifyLedger(context.Background(), tenant, item.ID)
	if err != nil {
		return err
	}
	if !report.Balanced {
		return fmt.Errorf("ledger for %s: on hand %s, movements %s", name, report.OnHand, report.MovementSum)
	}
	return nil
}

func (w *checkoutWorld) registersSellConcurrently(registers, qty int, material string) error {
	ctx := context.Background()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for i := 0; i < registers; i++ {
		cart := newCart()
		if _, err := cart.AddItem(charmLine(qty, material)); err != nil {
			return err
		}
		wg.Add(1)
		go func(cart *domain.Cart, actor string) {
			defer wg.Done()
			stock, err := w.store.Inventory().ListJumpRings(ctx, tenant)
			if err == nil {
				out := w.resolver.Resolve(cart.Items, stock)
				_, err = w.sales.Commit(ctx, CommitRequest{
					TenantID:         tenant,
					ActorID:          actor,
					Cart:             cart,
					Resolutions:      out.Resolutions,
					ResolverWarnings: out.Warnings,
					PaymentMethod:    domain.PaymentCash,
				})
			}
			mu.Lock()
			defer mu.Unlock()
			errs = append(errs, err)
		}(cart, "register-"+strconv.Itoa(i+1))
	}
	wg.Wait()

	// Refused sales are expected under the block policy; anything else is not.
	for _, err := range errs {
		if err != nil && !errors.Is(err, apperrors.ErrInsufficientStock) {
			return err
		}
	}
	return nil
}

func InitializeCheckoutScenario(ctx *godog.ScenarioContext) {
	w := &checkoutWorld{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		w.reset()
		return ctx, nil
	})

	ctx.Step(`^the oversell policy is "(allow|block)"$`, w.theOversellPolicyIs)
	ctx.Step(`^the inventory:$`, w.theInventory)
	ctx.Step(`^a (\d+(?:\.\d+)?) inch "([^"]*)" bracelet is rung up for "([^"]*)"$`, w.aChainBraceletIsRungUp)
	ctx.Step(`^a "([^"]*)" in "([^"]*)" is rung up for "([^"]*)"$`, w.aCharmIsRungUp)
	ctx.Step(`^the sale is completed$`, w.theSaleIsCompleted)
	ctx.Step(`^the cashier chooses no jump ring$`, w.theCashierChoosesNoJumpRing)
	ctx.Step(`^the checkout reports "([^"]*)"$`, w.theCheckoutReports)
	ctx.Step(`^(\d+) jump ring resolutions? (?:is|are) pending$`, w.resolutionsArePending)
	ctx.Step(`^(\d+) sales? (?:is|are) recorded$`, w.salesAreRecorded)
	ctx.Step(`^the sale records (\d+) jump rings? and a chain material cost of "([^"]*)"$`, w.theSaleRecords)
	ctx.Step(`^"([^"]*)" has (-?\d+(?:\.\d+)?) on hand$`, w.hasOnHand)
	ctx.Step(`^the ledger for "([^"]*)" balances$`, w.theLedgerBalances)
	ctx.Step(`^(\d+) registers each sell (\d+) "([^"]*)" charms at the same time$`, w.registersSellConcurrently)
}

func TestCheckoutFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeCheckoutScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/checkout.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/metrics"
	"github.com/permalink-studio/pos/internal/repository"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// EventPublisher publishes committed changes. Failures are logged by the
// caller and never undo a commit.
type EventPublisher interface {
	PublishSaleCompleted(ctx context.Context, sale *domain.Sale, contact domain.Contact) error
	PublishInventoryUpdated(ctx context.Context, item *domain.InventoryItem, delta decimal.Decimal, reason string, referenceID *string) error
	PublishInventoryLowStock(ctx context.Context, item *domain.InventoryItem) error
}

// ReceiptDeliverer sends a sale's receipt and reports the channel used.
type ReceiptDeliverer interface {
	Deliver(ctx context.Context, sale *domain.Sale, contact domain.Contact) (string, error)
}

// SaleStep names a stage of the commit.
type SaleStep string

// Commit stages.
const (
	StepBegin           SaleStep = "begin"
	StepResolveClient   SaleStep = "resolve_client"
	StepCreateSale      SaleStep = "create_sale"
	StepLockInventory   SaleStep = "lock_inventory"
	StepCreateSaleItems SaleStep = "create_sale_items"
	StepDeductInventory SaleStep = "deduct_inventory"
	StepCommit          SaleStep = "commit"
)

// SaleError reports the stage a commit failed at. The transaction has been
// rolled back; nothing from the attempt is stored.
type SaleError struct {
	Step SaleStep
	Err  error
}

func (e *SaleError) Error() string {
	return fmt.Sprintf("sale failed at %s: %v", e.Step, e.Err)
}

// Unwrap exposes ErrSaleFailed and the cause.
func (e *SaleError) Unwrap() []error {
	return []error{apperrors.ErrSaleFailed, e.Err}
}

// CommitRequest is a finalized cart ready to become a sale. SaleID is
// optional; a request whose SaleID is already stored is not recorded again.
type CommitRequest struct {
	SaleID           string
	TenantID         string
	ActorID          string
	Cart             *domain.Cart
	Resolutions      []domain.JumpRingResolution
	ResolverWarnings []string
	PaymentMethod    string
	PaymentReference *string
	EventID          *string
}

// WarningAlreadyRecorded marks a result for a sale stored by an earlier
// attempt.
const WarningAlreadyRecorded = "sale was already recorded by an earlier attempt"

// SaleResult is a committed sale, the post-commit state of every inventory
// item it touched, and advisory warnings.
type SaleResult struct {
	Sale      *domain.Sale           `json:"sale"`
	Inventory []domain.InventoryItem `json:"inventory"`
	Warnings  []string               `json:"warnings"`
}

// SaleService commits sales and serves sale history.
type SaleService struct {
	store         repository.Store
	events        EventPublisher
	receipts      ReceiptDeliverer
	allowOversell bool
	logger        *slog.Logger
}

// NewSaleService creates a sale service. allowOversell lets a sale drive
// stock below zero, reporting it as a warning.
func NewSaleService(store repository.Store, events EventPublisher, receipts ReceiptDeliverer, allowOversell bool, logger *slog.Logger) *SaleService {
	return &SaleService{
		store:         store,
		events:        events,
		receipts:      receipts,
		allowOversell: allowOversell,
		logger:        logger,
	}
}

// touched tracks one inventory item across the commit, with the net delta
// per movement reason in the order reasons first appeared.
type touched struct {
	item    *domain.InventoryItem
	reasons []string
	deltas  map[string]decimal.Decimal
}

func (t *touched) add(reason string, delta decimal.Decimal) {
	if _, ok := t.deltas[reason]; !ok {
		t.reasons = append(t.reasons, reason)
	}
	t.deltas[reason] = t.deltas[reason].Add(delta)
}

// Commit persists the sale, its items, the movements and the stock
// decrements in one transaction.
func (s *SaleService) Commit(ctx context.Context, req CommitRequest) (*SaleResult, error) {
	if err := validateCommit(req); err != nil {
		return nil, err
	}

	saleID := req.SaleID
	if saleID == "" {
		saleID = uuid.New().String()
	} else {
		existing, err := s.store.Sales().GetByID(ctx, req.TenantID, saleID)
		if err == nil {
			s.logger.WarnContext(ctx, "sale already recorded", slog.String("sale_id", saleID))
			return &SaleResult{
				Sale:      existing,
				Inventory: []domain.InventoryItem{},
				Warnings:  []string{WarningAlreadyRecorded},
			}, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, s.fail(ctx, StepBegin, fmt.Errorf("look up sale: %w", err))
		}
	}

	totals := req.Cart.Totals()
	now := time.Now().UTC()
	sale := &domain.Sale{
		ID:               saleID,
		TenantID:         req.TenantID,
		EventID:          req.EventID,
		Subtotal:         totals.Subtotal,
		DiscountTotal:    totals.Discount,
		Tax:              totals.Tax,
		Tip:              totals.Tip,
		PlatformFee:      totals.PlatformFee,
		Total:            totals.Total,
		TaxRate:          req.Cart.TaxRate,
		PlatformFeeRate:  req.Cart.PlatformFeeRate,
		PaymentMethod:    strings.ToLower(strings.TrimSpace(req.PaymentMethod)),
		PaymentReference: req.PaymentReference,
		ActorID:          req.ActorID,
		CreatedAt:        now,
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, s.fail(ctx, StepBegin, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	clientID, err := s.resolveClient(ctx, tx, req, now)
	if err != nil {
		return nil, s.fail(ctx, StepResolveClient, err)
	}
	sale.ClientID = clientID

	if err := tx.Sales().Create(ctx, sale); err != nil {
		return nil, s.fail(ctx, StepCreateSale, err)
	}

	locked, err := tx.Inventory().LockForUpdate(ctx, req.TenantID, referencedItems(req))
	if err != nil {
		return nil, s.fail(ctx, StepLockInventory, err)
	}

	byLine := make(map[string]domain.JumpRingResolution, len(req.Resolutions))
	for _, r := range req.Resolutions {
		byLine[r.CartItemID] = r
	}

	for _, line := range req.Cart.Items {
		item, err := buildSaleItem(sale.ID, line, byLine[line.ID], locked)
		if err != nil {
			return nil, s.fail(ctx, StepLockInventory, err)
		}
		if err := tx.Sales().CreateItem(ctx, item); err != nil {
			return nil, s.fail(ctx, StepCreateSaleItems, err)
		}
		sale.Items = append(sale.Items, *item)
	}

	changes := make(map[string]*touched)
	var order []string
	deduct := func(itemID string, qty decimal.Decimal, reason string) error {
		inv := locked[itemID]
		newQty, err := tx.Inventory().ApplyDelta(ctx, req.TenantID, itemID, qty.Neg(), s.allowOversell)
		if err != nil {
			if errors.Is(err, apperrors.ErrInsufficientStock) {
				return apperrors.InsufficientStock(inv.Name)
			}
			return err
		}
		ref := sale.ID
		if err := tx.Inventory().InsertMovement(ctx, &domain.InventoryMovement{
			ID:              uuid.New().String(),
			TenantID:        req.TenantID,
			InventoryItemID: itemID,
			Delta:           qty.Neg(),
			Reason:          reason,
			ReferenceID:     &ref,
			ActorID:         req.ActorID,
			CreatedAt:       now,
		}); err != nil {
			return err
		}

		t, ok := changes[itemID]
		if !ok {
			t = &touched{item: inv, deltas: make(map[string]decimal.Decimal)}
			changes[itemID] = t
			order = append(order, itemID)
		}
		t.item.Quantity = newQty
		t.add(reason, qty.Neg())
		return nil
	}

	for _, line := range req.Cart.Items {
		if line.InventoryItemID == nil {
			continue
		}
		if err := deduct(*line.InventoryItemID, line.DeductionQuantity(), domain.MovementSale); err != nil {
			return nil, s.fail(ctx, StepDeductInventory, err)
		}
	}

	var unresolved []domain.JumpRingResolution
	for _, r := range req.Resolutions {
		if !r.Resolved && r.JumpRingsNeeded > 0 {
			unresolved = append(unresolved, r)
			continue
		}
		if !r.Consumes() {
			continue
		}
		if err := deduct(*r.InventoryItemID, decimal.NewFromInt(int64(r.JumpRingsNeeded)), domain.MovementJumpRing); err != nil {
			return nil, s.fail(ctx, StepDeductInventory, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.fail(ctx, StepCommit, err)
	}

	result := &SaleResult{
		Sale:      sale,
		Inventory: make([]domain.InventoryItem, 0, len(order)),
		Warnings:  append([]string{}, req.ResolverWarnings...),
	}
	oversold := 0
	for _, id := range order {
		item := *changes[id].item
		result.Inventory = append(result.Inventory, item)
		if item.Quantity.IsNegative() {
			oversold++
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s is oversold: %s %s on hand", item.Name, item.Quantity.String(), item.Unit))
		}
	}
	for _, r := range unresolved {
		result.Warnings = append(result.Warnings, fmt.Sprintf("no jump ring deducted for %s (%d needed)", materialLabel(r.Material), r.JumpRingsNeeded))
	}

	metrics.SaleCompleted(sale.PaymentMethod)
	if oversold > 0 {
		metrics.Oversold(oversold)
	}

	s.logger.InfoContext(ctx, "sale committed",
		slog.String("sale_id", sale.ID),
		slog.String("total", sale.Total.StringFixed(2)),
		slog.Int("items", len(sale.Items)),
		slog.Int("inventory_touched", len(order)),
	)

	s.publishCommitted(ctx, sale, req.Cart.Contact, changes, order)
	return result, nil
}

func validateCommit(req CommitRequest) error {
	if req.TenantID == "" {
		return apperrors.InvalidInput("tenant is required")
	}
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return apperrors.InvalidInput("payment method is required")
	}
	if req.Cart == nil || req.Cart.IsEmpty() {
		return apperrors.InvalidInput("cart is empty")
	}
	for i := range req.Cart.Items {
		if err := req.Cart.Items[i].Validate(); err != nil {
			return apperrors.InvalidInput(err.Error())
		}
	}
	return nil
}

func (s *SaleService) fail(ctx context.Context, step SaleStep, err error) error {
	metrics.SaleFailed(string(step))
	s.logger.WarnContext(ctx, "sale rolled back",
		slog.String("step", string(step)),
		slog.String("error", err.Error()),
	)
	return &SaleError{Step: step, Err: err}
}

// resolveClient returns the explicit client, else finds one by email then
// normalized phone, else creates one. No contact means no client.
func (s *SaleService) resolveClient(ctx context.Context, tx repository.Tx, req CommitRequest, now time.Time) (*string, error) {
	cart := req.Cart
	if cart.ClientID != nil && *cart.ClientID != "" {
		c, err := tx.Clients().GetByID(ctx, req.TenantID, *cart.ClientID)
		if err != nil {
			return nil, fmt.Errorf("get client: %w", err)
		}
		return &c.ID, nil
	}

	contact := cart.Contact
	if contact.IsEmpty() {
		return nil, nil
	}

	email := domain.NormalizeEmail(contact.Email)
	phone := domain.NormalizePhone(contact.Phone)

	if email != "" {
		c, err := tx.Clients().FindByEmail(ctx, req.TenantID, email)
		if err == nil {
			return &c.ID, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("find client by email: %w", err)
		}
	}
	if phone != "" {
		c, err := tx.Clients().FindByPhone(ctx, req.TenantID, phone)
		if err == nil {
			return &c.ID, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("find client by phone: %w", err)
		}
	}

	client := &domain.Client{
		ID:        uuid.New().String(),
		TenantID:  req.TenantID,
		Name:      strings.TrimSpace(contact.Name),
		CreatedAt: now,
	}
	if email != "" {
		client.Email = &email
	}
	if phone != "" {
		client.Phone = &phone
	}
	if err := tx.Clients().Create(ctx, client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &client.ID, nil
}

// referencedItems lists every inventory id the sale may touch, sorted so
// concurrent commits lock rows in the same order.
func referencedItems(req CommitRequest) []string {
	seen := make(map[string]struct{})
	for _, line := range req.Cart.Items {
		if line.InventoryItemID != nil {
			seen[*line.InventoryItemID] = struct{}{}
		}
	}
	for _, r := range req.Resolutions {
		if r.Consumes() {
			seen[*r.InventoryItemID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func buildSaleItem(saleID string, line domain.CartItem, res domain.JumpRingResolution, locked map[string]*domain.InventoryItem) (*domain.SaleItem, error) {
	item := &domain.SaleItem{
		ID:                uuid.New().String(),
		SaleID:            saleID,
		CartItemID:        line.ID,
		InventoryItemID:   line.InventoryItemID,
		Name:              line.Name,
		Quantity:          line.Quantity,
		UnitPrice:         line.UnitPrice,
		DiscountValue:     decimal.Zero,
		LineTotal:         line.LineTotal(),
		ChainInches:       line.ChainInches,
		ChainMaterialCost: decimal.Zero,
		JumpRingCost:      decimal.Zero,
		Material:          line.Material,
	}
	if line.Discount != nil {
		t := string(line.Discount.Type)
		item.DiscountType = &t
		item.DiscountValue = line.Discount.Value
	}

	if line.InventoryItemID != nil {
		inv, ok := locked[*line.InventoryItemID]
		if !ok {
			return nil, apperrors.NotFound("inventory item", *line.InventoryItemID)
		}
		if line.RequiredKind == domain.RequiredChain && line.ChainInches != nil {
			item.ChainMaterialCost = domain.Round2(line.DeductionQuantity().Mul(inv.CostPerUnit))
		}
	}

	if res.CartItemID == line.ID && res.Resolved {
		if res.Consumes() {
			if _, ok := locked[*res.InventoryItemID]; !ok {
				return nil, apperrors.NotFound("inventory item", *res.InventoryItemID)
			}
			item.JumpRingInventoryItemID = res.InventoryItemID
			item.JumpRingsUsed = res.JumpRingsNeeded
		}
		item.JumpRingCost = domain.Round2(res.Cost())
	}
	return item, nil
}

func materialLabel(material string) string {
	if strings.TrimSpace(material) == "" {
		return "item with no material"
	}
	return material
}

func (s *SaleService) publishCommitted(ctx context.Context, sale *domain.Sale, contact domain.Contact, changes map[string]*touched, order []string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishSaleCompleted(ctx, sale, contact); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish sale.completed event",
			slog.String("sale_id", sale.ID),
			slog.String("error", err.Error()),
		)
	}

	ref := sale.ID
	for _, id := range order {
		t := changes[id]
		for _, reason := range t.reasons {
			if err := s.events.PublishInventoryUpdated(ctx, t.item, t.deltas[reason], reason, &ref); err != nil {
				s.logger.ErrorContext(ctx, "failed to publish inventory.updated event",
					slog.String("item_id", id),
					slog.String("reason", reason),
					slog.String("error", err.Error()),
				)
			}
		}
		if t.item.IsLowStock() {
			if err := s.events.PublishInventoryLowStock(ctx, t.item); err != nil {
				s.logger.ErrorContext(ctx, "failed to publish inventory.low_stock event",
					slog.String("item_id", id),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// GetSale returns a sale with its items.
func (s *SaleService) GetSale(ctx context.Context, tenantID, id string) (*domain.Sale, error) {
	sale, err := s.store.Sales().GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, fmt.Errorf("get sale: %w", err)
	}
	return sale, nil
}

// ListSales returns a page of sale headers.
func (s *SaleService) ListSales(ctx context.Context, tenantID string, filter domain.SaleFilter, page, perPage int) ([]domain.Sale, int, error) {
	sales, total, err := s.store.Sales().List(ctx, tenantID, filter, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list sales: %w", err)
	}
	return sales, total, nil
}

// SendReceipt delivers a sale's receipt and stamps the sale. It never runs
// inside the commit.
func (s *SaleService) SendReceipt(ctx context.Context, tenantID, saleID string, contact domain.Contact) (string, error) {
	if s.receipts == nil {
		return "", apperrors.InvalidInput("receipts are not configured")
	}
	sale, err := s.GetSale(ctx, tenantID, saleID)
	if err != nil {
		return "", err
	}

	channel, err := s.receipts.Deliver(ctx, sale, contact)
	if err != nil {
		return channel, err
	}

	if err := s.store.Sales().MarkReceiptSent(ctx, tenantID, saleID, time.Now().UTC()); err != nil {
		s.logger.ErrorContext(ctx, "failed to stamp receipt_sent_at",
			slog.String("sale_id", saleID),
			slog.String("error", err.Error()),
		)
	}
	return channel, nil
}

package domain

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RequiredKind is the inventory kind a cart line consumes, fixed when the
// line is added. It decides whether the line needs jump rings.
type RequiredKind string

// Required kinds.
const (
	RequiredNone      RequiredKind = "none"
	RequiredChain     RequiredKind = "chain"
	RequiredCharm     RequiredKind = "charm"
	RequiredConnector RequiredKind = "connector"
	RequiredOther     RequiredKind = "other"
)

// ParseRequiredKind parses s. An empty string is RequiredNone.
func ParseRequiredKind(s string) (RequiredKind, error) {
	switch k := RequiredKind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return RequiredNone, nil
	case RequiredNone, RequiredChain, RequiredCharm, RequiredConnector, RequiredOther:
		return k, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidKind, s)
}

// RequiredKindFor maps a stocked kind onto the hint carried by a cart line.
// Selling a jump ring on its own consumes no further rings.
func RequiredKindFor(k Kind) RequiredKind {
	switch k {
	case KindChain:
		return RequiredChain
	case KindCharm:
		return RequiredCharm
	case KindConnector:
		return RequiredConnector
	case KindOther:
		return RequiredOther
	}
	return RequiredNone
}

// DiscountType is percent or fixed.
type DiscountType string

// Discount types.
const (
	DiscountPercent DiscountType = "percent"
	DiscountFixed   DiscountType = "fixed"
)

// Discount is a percent or fixed reduction on a line or on the cart.
type Discount struct {
	Type  DiscountType    `json:"type"`
	Value decimal.Decimal `json:"value"`
}

// Validate checks type and bounds.
func (d *Discount) Validate() error {
	if d == nil {
		return nil
	}
	if d.Value.IsNegative() {
		return ErrNegativeAmount
	}
	switch d.Type {
	case DiscountPercent:
		if d.Value.GreaterThan(hundred) {
			return fmt.Errorf("%w: percent discount above 100", ErrInvalidDiscount)
		}
	case DiscountFixed:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidDiscount, d.Type)
	}
	return nil
}

// AmountOn returns the unrounded reduction on base, never more than base.
func (d *Discount) AmountOn(base decimal.Decimal) decimal.Decimal {
	if d == nil || !base.IsPositive() {
		return decimal.Zero
	}
	var amt decimal.Decimal
	if d.Type == DiscountPercent {
		amt = base.Mul(d.Value).Div(hundred)
	} else {
		amt = d.Value
	}
	return decimal.Min(amt, base)
}

// CartItem is one prospective sale line. Each add is its own line.
type CartItem struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Quantity         int              `json:"quantity"`
	UnitPrice        decimal.Decimal  `json:"unit_price"`
	Discount         *Discount        `json:"discount,omitempty"`
	InventoryItemID  *string          `json:"inventory_item_id,omitempty"`
	ChainInches      *decimal.Decimal `json:"chain_inches,omitempty"`
	ProductTypeID    *string          `json:"product_type_id,omitempty"`
	RequiredKind     RequiredKind     `json:"required_kind"`
	JumpRingsPerUnit *int             `json:"jump_rings_per_unit,omitempty"`
	Material         string           `json:"material"`
}

// Validate checks a line before it enters the cart.
func (c *CartItem) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrItemNameRequired
	}
	if c.Quantity < 1 {
		return ErrInvalidQuantity
	}
	if c.UnitPrice.IsNegative() {
		return ErrNegativeAmount
	}
	if err := c.Discount.Validate(); err != nil {
		return err
	}
	if c.ChainInches != nil && !c.ChainInches.IsPositive() {
		return ErrInvalidChain
	}
	if c.JumpRingsPerUnit != nil && *c.JumpRingsPerUnit < 0 {
		return fmt.Errorf("%w: jump rings per unit", ErrNegativeAmount)
	}
	if _, err := ParseRequiredKind(string(c.RequiredKind)); err != nil {
		return err
	}
	return nil
}

// LineTotal is unit price times quantity less the line discount, floored at
// zero and rounded to cents.
func (c *CartItem) LineTotal() decimal.Decimal {
	gross := c.UnitPrice.Mul(decimal.NewFromInt(int64(c.Quantity)))
	return Round2(decimal.Max(decimal.Zero, gross.Sub(c.Discount.AmountOn(gross))))
}

// DeductionQuantity is how much of the linked inventory item the line
// consumes: inches times quantity for measured chain, else the quantity.
func (c *CartItem) DeductionQuantity() decimal.Decimal {
	qty := decimal.NewFromInt(int64(c.Quantity))
	if c.RequiredKind == RequiredChain && c.ChainInches != nil {
		return c.ChainInches.Mul(qty)
	}
	return qty
}

// Contact is receipt contact info captured at checkout.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// IsEmpty reports whether there is nothing to find or create a client by.
func (c Contact) IsEmpty() bool {
	return strings.TrimSpace(c.Email) == "" && NormalizePhone(c.Phone) == ""
}

// Totals are the derived money amounts of a cart.
type Totals struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	Tax         decimal.Decimal `json:"tax"`
	Tip         decimal.Decimal `json:"tip"`
	PlatformFee decimal.Decimal `json:"platform_fee"`
	Total       decimal.Decimal `json:"total"`
}

// Cart is the single cart owned by a checkout session. It does no I/O.
type Cart struct {
	Items           []CartItem      `json:"items"`
	TaxRate         decimal.Decimal `json:"tax_rate"`
	PlatformFeeRate decimal.Decimal `json:"platform_fee_rate"`
	Tip             decimal.Decimal `json:"tip"`
	Discount        *Discount       `json:"discount,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	ClientID        *string         `json:"client_id,omitempty"`
	Contact         Contact         `json:"contact"`
}

// NewCart creates an empty cart with the business's rates.
func NewCart(taxRate, platformFeeRate decimal.Decimal) *Cart {
	return &Cart{
		Items:           []CartItem{},
		TaxRate:         taxRate,
		PlatformFeeRate: platformFeeRate,
	}
}

// AddItem validates item, assigns an ID when missing and appends it.
func (c *Cart) AddItem(item CartItem) (CartItem, error) {
	if item.RequiredKind == "" {
		item.RequiredKind = RequiredNone
	}
	if err := item.Validate(); err != nil {
		return CartItem{}, err
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	c.Items = append(c.Items, item)
	return item, nil
}

func (c *Cart) find(id string) (int, error) {
	for i := range c.Items {
		if c.Items[i].ID == id {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w %s", ErrCartItemNotFound, id)
}

// UpdateQuantity sets a line's quantity.
func (c *Cart) UpdateQuantity(id string, qty int) error {
	if qty < 1 {
		return ErrInvalidQuantity
	}
	i, err := c.find(id)
	if err != nil {
		return err
	}
	c.Items[i].Quantity = qty
	return nil
}

// SetLineDiscount sets or clears (nil) a line's discount.
func (c *Cart) SetLineDiscount(id string, d *Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	i, err := c.find(id)
	if err != nil {
		return err
	}
	c.Items[i].Discount = d
	return nil
}

// RemoveItem deletes a line.
func (c *Cart) RemoveItem(id string) error {
	i, err := c.find(id)
	if err != nil {
		return err
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return nil
}

// SetTaxRate sets the tax rate as a fraction.
func (c *Cart) SetTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return ErrNegativeAmount
	}
	c.TaxRate = rate
	return nil
}

// SetPlatformFeeRate sets the platform fee rate as a fraction.
func (c *Cart) SetPlatformFeeRate(rate decimal.Decimal) error {
	if rate.IsNegative() {
		return ErrNegativeAmount
	}
	c.PlatformFeeRate = rate
	return nil
}

// SetTip sets the tip amount.
func (c *Cart) SetTip(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	c.Tip = amount
	return nil
}

// SetDiscount sets or clears (nil) the cart-level discount.
func (c *Cart) SetDiscount(d *Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	c.Discount = d
	return nil
}

// SetPaymentMethod records the tender type.
func (c *Cart) SetPaymentMethod(method string) {
	c.PaymentMethod = strings.TrimSpace(method)
}

// SetClient attaches a known client and/or receipt contact.
func (c *Cart) SetClient(clientID *string, contact Contact) {
	c.ClientID = clientID
	c.Contact = contact
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Totals derives the money amounts. Calling it twice on an unchanged cart
// returns identical values.
func (c *Cart) Totals() Totals {
	subtotal := decimal.Zero
	for i := range c.Items {
		subtotal = subtotal.Add(c.Items[i].LineTotal())
	}
	discount := Round2(c.Discount.AmountOn(subtotal))
	tax := Round2(subtotal.Mul(c.TaxRate))
	tip := Round2(c.Tip)
	fee := Round2(subtotal.Sub(discount).Add(tax).Add(tip).Mul(c.PlatformFeeRate))

	return Totals{
		Subtotal:    subtotal,
		Discount:    discount,
		Tax:         tax,
		Tip:         tip,
		PlatformFee: fee,
		Total:       subtotal.Sub(discount).Add(tax).Add(tip).Add(fee),
	}
}

// Reset clears lines, tip, discount, payment method and client. Rates are
// business settings and survive.
func (c *Cart) Reset() {
	c.Items = []CartItem{}
	c.Tip = decimal.Zero
	c.Discount = nil
	c.PaymentMethod = ""
	c.ClientID = nil
	c.Contact = Contact{}
}

func (it CartItem) clone() CartItem {
	if it.Discount != nil {
		d := *it.Discount
		it.Discount = &d
	}
	it.InventoryItemID = clonePtr(it.InventoryItemID)
	it.ChainInches = clonePtr(it.ChainInches)
	it.ProductTypeID = clonePtr(it.ProductTypeID)
	it.JumpRingsPerUnit = clonePtr(it.JumpRingsPerUnit)
	return it
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	out := *c
	out.Items = make([]CartItem, len(c.Items))
	for i, it := range c.Items {
		out.Items[i] = it.clone()
	}
	if c.Discount != nil {
		d := *c.Discount
		out.Discount = &d
	}
	out.ClientID = clonePtr(c.ClientID)
	return &out
}

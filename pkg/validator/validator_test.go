package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineRequest struct {
	Name      string           `json:"name" validate:"required"`
	Quantity  int              `json:"quantity" validate:"gte=1"`
	UnitPrice decimal.Decimal  `json:"unit_price" validate:"gte=0"`
	Inches    *decimal.Decimal `json:"chain_inches" validate:"omitempty,gt=0"`
	Method    string           `json:"payment_method" validate:"omitempty,oneof=cash card venmo"`
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestValidate_Valid(t *testing.T) {
	req := lineRequest{
		Name:      "Figaro bracelet",
		Quantity:  1,
		UnitPrice: decimal.RequireFromString("65.00"),
		Inches:    decPtr("6.5"),
	}
	assert.NoError(t, Validate(req))
}

func TestValidate_DecimalRules(t *testing.T) {
	req := lineRequest{
		Name:      "Anklet",
		Quantity:  1,
		UnitPrice: decimal.RequireFromString("-1"),
		Inches:    decPtr("0"),
	}
	err := Validate(req)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be greater than or equal to 0", fields["unit_price"])
	assert.Equal(t, "must be greater than 0", fields["chain_inches"])
}

func TestValidate_NilOptionalDecimal(t *testing.T) {
	req := lineRequest{Name: "Cable chain", Quantity: 1, UnitPrice: decimal.NewFromInt(40)}
	assert.NoError(t, Validate(req))
}

func TestValidate_UsesJSONNames(t *testing.T) {
	err := Validate(lineRequest{Quantity: 0, Method: "bitcoin"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "must be greater than or equal to 1", fields["quantity"])
	assert.Equal(t, "must be one of: cash card venmo", fields["payment_method"])
	assert.Contains(t, err.Error(), "field 'name' is required")
}

func TestDecodeAndValidate(t *testing.T) {
	body := `{"name":"Cable chain","quantity":2,"unit_price":"40.00"}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var req lineRequest
	require.NoError(t, DecodeAndValidate(r, &req))
	assert.True(t, req.UnitPrice.Equal(decimal.NewFromInt(40)))
	assert.Nil(t, req.Inches)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	err := DecodeAndValidate(r, &req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

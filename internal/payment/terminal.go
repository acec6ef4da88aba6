package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/permalink-studio/pos/pkg/httpclient"
)

// TerminalConfig addresses a card-present terminal gateway.
type TerminalConfig struct {
	BaseURL string
	APIKey  string
}

// TerminalProvider charges cards through a remote terminal gateway. Calls
// go through a circuit breaker so a dead gateway fails fast at the counter.
type TerminalProvider struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewTerminalProvider creates a terminal provider over client.
func NewTerminalProvider(cfg TerminalConfig, client *httpclient.CircuitBreakerClient, logger *slog.Logger) *TerminalProvider {
	return &TerminalProvider{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		logger:  logger,
	}
}

type chargeBody struct {
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	TerminalID string `json:"terminal_id"`
	Reference  string `json:"reference"`
}

type chargeResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Name implements Provider.
func (p *TerminalProvider) Name() string { return "terminal" }

// Charge implements Provider. A decline is returned as a PaymentFailed error.
func (p *TerminalProvider) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	body, err := json.Marshal(chargeBody{
		Amount:     req.Amount.StringFixed(2),
		Currency:   "usd",
		TerminalID: req.TerminalID,
		Reference:  req.AttemptID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge: %w", err)
	}

	resp, err := p.client.Post(ctx, p.baseURL+"/v1/charges", "application/json", bytes.NewReader(body), p.headers(req.AttemptID))
	if err != nil {
		return nil, fmt.Errorf("terminal charge: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, httpclient.ParseResponseError(resp, "payment terminal")
	}
	defer func() { _ = resp.Body.Close() }()

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode charge response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("terminal charge: response without id")
	}

	p.logger.InfoContext(ctx, "terminal charge approved",
		slog.String("charge_id", out.ID),
		slog.String("attempt_id", req.AttemptID),
		slog.String("amount", req.Amount.StringFixed(2)),
	)
	return &Charge{Provider: p.Name(), Reference: &out.ID}, nil
}

// Void implements Provider.
func (p *TerminalProvider) Void(ctx context.Context, charge *Charge) error {
	if charge == nil || charge.Reference == nil {
		return nil
	}
	ref := *charge.Reference

	resp, err := p.client.Post(ctx, p.baseURL+"/v1/charges/"+url.PathEscape(ref)+"/void", "application/json", http.NoBody, p.headers("void-"+ref))
	if err != nil {
		return fmt.Errorf("terminal void %s: %w", ref, err)
	}
	if resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, "payment terminal")
	}
	_ = resp.Body.Close()

	p.logger.InfoContext(ctx, "terminal charge voided", slog.String("charge_id", ref))
	return nil
}

func (p *TerminalProvider) headers(idempotencyKey string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.apiKey)
	h.Set(httpclient.IdempotencyKeyHeader, idempotencyKey)
	return h
}

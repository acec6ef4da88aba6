package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/permalink-studio/pos/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testSale() *domain.Sale {
	d := decimal.RequireFromString
	return &domain.Sale{
		ID:            "5f0c2e7a-1111-2222-3333-444455556666",
		PaymentMethod: "card",
		Subtotal:      d("55"),
		DiscountTotal: decimal.Zero,
		Tax:           d("4.54"),
		Tip:           d("10"),
		PlatformFee:   decimal.Zero,
		Total:         d("69.54"),
		CreatedAt:     time.Date(2026, 5, 9, 14, 30, 0, 0, time.UTC),
		Items: []domain.SaleItem{
			{Name: "Sterling <Figaro> bracelet", Quantity: 1, LineTotal: d("55")},
		},
	}
}

type recordingSender struct {
	channel string
	sent    []Message
	err     error
}

func (s *recordingSender) Channel() string { return s.channel }

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.sent = append(s.sent, msg)
	return s.err
}

func TestRender(t *testing.T) {
	msg, err := Render("Link & Co", testSale())

	require.NoError(t, err)
	assert.Equal(t, "Your receipt from Link & Co", msg.Subject)
	assert.Contains(t, msg.Text, "Receipt 5F0C2E7A")
	assert.Contains(t, msg.Text, "Total        $69.54")
	assert.Contains(t, msg.Text, "Tip          $10.00")
	assert.NotContains(t, msg.Text, "Discount")
	assert.Contains(t, msg.HTML, "Sterling &lt;Figaro&gt; bracelet")
}

func TestDispatcher_ChoosesChannel(t *testing.T) {
	email := &recordingSender{channel: ChannelEmail}
	sms := &recordingSender{channel: ChannelSMS}
	d := NewDispatcher("Link & Co", email, sms, newTestLogger())

	channel, err := d.Deliver(context.Background(), testSale(), domain.Contact{Email: "a@example.com", Phone: "5035550142"})
	require.NoError(t, err)
	assert.Equal(t, ChannelEmail, channel)

	channel, err = d.Deliver(context.Background(), testSale(), domain.Contact{Phone: "(503) 555-0142"})
	require.NoError(t, err)
	assert.Equal(t, ChannelSMS, channel)

	_, err = d.Deliver(context.Background(), testSale(), domain.Contact{Name: "Walk-in"})
	assert.ErrorIs(t, err, ErrNoContact)

	assert.Len(t, email.sent, 1)
	assert.Len(t, sms.sent, 1)
}

func TestDispatcher_SendFailure(t *testing.T) {
	email := &recordingSender{channel: ChannelEmail, err: errors.New("quota")}
	d := NewDispatcher("Link & Co", email, nil, newTestLogger())

	_, err := d.Deliver(context.Background(), testSale(), domain.Contact{Email: "a@example.com"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestSendGridSender(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer SG.test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s, err := NewSendGridSender(SendGridConfig{
		APIKey: "SG.test", FromEmail: "receipts@example.com", FromName: "Link & Co", BaseURL: srv.URL + "/v3/mail/send",
	}, newTestLogger())
	require.NoError(t, err)

	msg, err := Render("Link & Co", testSale())
	require.NoError(t, err)
	msg.To = domain.Contact{Name: "Dana", Email: "dana@example.com"}

	require.NoError(t, s.Send(context.Background(), msg))
	assert.Equal(t, "Your receipt from Link & Co", payload["subject"])
}

func TestSendGridSender_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad key"}]}`))
	}))
	defer srv.Close()

	s, err := NewSendGridSender(SendGridConfig{APIKey: "SG.bad", FromEmail: "r@example.com", BaseURL: srv.URL}, newTestLogger())
	require.NoError(t, err)

	err = s.Send(context.Background(), Message{To: domain.Contact{Email: "x@example.com"}})
	assert.Error(t, err)
}

func TestNewSendGridSender_RequiresKey(t *testing.T) {
	_, err := NewSendGridSender(SendGridConfig{FromEmail: "r@example.com"}, newTestLogger())
	assert.Error(t, err)
}

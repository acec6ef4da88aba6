package receipt

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"log/slog"
	"strings"
	"text/template"

	"github.com/permalink-studio/pos/internal/domain"
	"github.com/permalink-studio/pos/internal/metrics"
	apperrors "github.com/permalink-studio/pos/pkg/errors"
)

// ErrNoContact is returned when a sale has nowhere to send a receipt.
var ErrNoContact = fmt.Errorf("%w: no receipt contact", apperrors.ErrInvalidInput)

// Channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Message is a rendered receipt addressed to one contact.
type Message struct {
	To      domain.Contact
	Subject string
	Text    string
	HTML    string
}

// Sender delivers receipts over one channel.
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// Dispatcher picks a channel from the contact and sends the rendered
// receipt. Email wins when both email and phone are present.
type Dispatcher struct {
	business string
	email    Sender
	sms      Sender
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. Either sender may be nil.
func NewDispatcher(business string, email, sms Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{business: business, email: email, sms: sms, logger: logger}
}

// Deliver sends sale's receipt to contact and returns the channel used.
func (d *Dispatcher) Deliver(ctx context.Context, sale *domain.Sale, contact domain.Contact) (string, error) {
	var sender Sender
	switch {
	case contact.Email != "" && d.email != nil:
		sender = d.email
	case domain.NormalizePhone(contact.Phone) != "" && d.sms != nil:
		sender = d.sms
	default:
		return "", ErrNoContact
	}

	msg, err := Render(d.business, sale)
	if err != nil {
		return "", err
	}
	msg.To = contact

	if err := sender.Send(ctx, msg); err != nil {
		metrics.ReceiptSent(sender.Channel(), false)
		return sender.Channel(), fmt.Errorf("send %s receipt for sale %s: %w", sender.Channel(), sale.ID, err)
	}
	metrics.ReceiptSent(sender.Channel(), true)

	d.logger.InfoContext(ctx, "receipt sent",
		slog.String("sale_id", sale.ID),
		slog.String("channel", sender.Channel()),
	)
	return sender.Channel(), nil
}

const textReceipt = `{{.Business}}
Receipt {{.ShortID}}  {{.Date}}

{{range .Sale.Items}}{{.Quantity}} x {{.Name}}  {{money .LineTotal}}
{{end}}
Subtotal     {{money .Sale.Subtotal}}
{{if .Sale.DiscountTotal.IsPositive}}Discount    -{{money .Sale.DiscountTotal}}
{{end}}Tax          {{money .Sale.Tax}}
{{if .Sale.Tip.IsPositive}}Tip          {{money .Sale.Tip}}
{{end}}{{if .Sale.PlatformFee.IsPositive}}Service fee  {{money .Sale.PlatformFee}}
{{end}}Total        {{money .Sale.Total}}
Paid by {{.Sale.PaymentMethod}}

Thank you!
`

const htmlReceipt = `<h2>{{.Business}}</h2>
<p>Receipt {{.ShortID}} &middot; {{.Date}}</p>
<table>
{{range .Sale.Items}}<tr><td>{{.Quantity}} &times; {{.Name}}</td><td align="right">{{money .LineTotal}}</td></tr>
{{end}}<tr><td>Subtotal</td><td align="right">{{money .Sale.Subtotal}}</td></tr>
{{if .Sale.DiscountTotal.IsPositive}}<tr><td>Discount</td><td align="right">-{{money .Sale.DiscountTotal}}</td></tr>
{{end}}<tr><td>Tax</td><td align="right">{{money .Sale.Tax}}</td></tr>
{{if .Sale.Tip.IsPositive}}<tr><td>Tip</td><td align="right">{{money .Sale.Tip}}</td></tr>
{{end}}{{if .Sale.PlatformFee.IsPositive}}<tr><td>Service fee</td><td align="right">{{money .Sale.PlatformFee}}</td></tr>
{{end}}<tr><th>Total</th><th align="right">{{money .Sale.Total}}</th></tr>
</table>
<p>Paid by {{.Sale.PaymentMethod}}. Thank you!</p>
`

type view struct {
	Business string
	ShortID  string
	Date     string
	Sale     *domain.Sale
}

type decimalString interface{ StringFixed(int32) string }

func money(v decimalString) string {
	return "$" + v.StringFixed(2)
}

var (
	textTmpl = template.Must(template.New("text").Funcs(template.FuncMap{"money": money}).Parse(textReceipt))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Funcs(htmltemplate.FuncMap{"money": money}).Parse(htmlReceipt))
)

// Render builds the subject and bodies for sale.
func Render(business string, sale *domain.Sale) (Message, error) {
	v := view{
		Business: business,
		ShortID:  strings.ToUpper(shortID(sale.ID)),
		Date:     sale.CreatedAt.Format("Jan 2, 2006 3:04 PM"),
		Sale:     sale,
	}

	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, v); err != nil {
		return Message{}, fmt.Errorf("render text receipt: %w", err)
	}
	if err := htmlTmpl.Execute(&html, v); err != nil {
		return Message{}, fmt.Errorf("render html receipt: %w", err)
	}

	return Message{
		Subject: fmt.Sprintf("Your receipt from %s", business),
		Text:    text.String(),
		HTML:    html.String(),
	}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// LogSender writes receipts to the log instead of delivering them. It
// stands in for SMS, which is delivered outside this service, and for
// email in development.
type LogSender struct {
	channel string
	logger  *slog.Logger
}

// NewLogSender creates a log sender for channel.
func NewLogSender(channel string, logger *slog.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

// Channel implements Sender.
func (s *LogSender) Channel() string { return s.channel }

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "receipt",
		slog.String("channel", s.channel),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Text)),
	)
	return nil
}

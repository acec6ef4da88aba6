package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	salesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_sales_completed_total",
			Help: "Sales committed, by payment method",
		},
		[]string{"payment_method"},
	)

	saleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_sale_failures_total",
			Help: "Sale commits rolled back, by failing step",
		},
		[]string{"step"},
	)

	checkoutOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_checkout_outcomes_total",
			Help: "Complete-sale attempts, by outcome",
		},
		[]string{"status"},
	)

	oversoldItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pos_oversold_items_total",
			Help: "Inventory items left below zero by a committed sale",
		},
	)

	paymentVoids = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_payment_voids_total",
			Help: "Charges voided after a failed commit, by result",
		},
		[]string{"result"},
	)

	receiptsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pos_receipts_total",
			Help: "Receipt deliveries, by channel and result",
		},
		[]string{"channel", "result"},
	)
)

// SaleCompleted counts a committed sale.
func SaleCompleted(paymentMethod string) {
	salesCompleted.WithLabelValues(paymentMethod).Inc()
}

// SaleFailed counts a rolled-back commit.
func SaleFailed(step string) {
	saleFailures.WithLabelValues(step).Inc()
}

// CheckoutOutcome counts a complete-sale attempt.
func CheckoutOutcome(status string) {
	checkoutOutcomes.WithLabelValues(status).Inc()
}

// Oversold counts items a sale drove negative.
func Oversold(n int) {
	oversoldItems.Add(float64(n))
}

// PaymentVoided counts a compensating void.
func PaymentVoided(ok bool) {
	paymentVoids.WithLabelValues(result(ok)).Inc()
}

// ReceiptSent counts a receipt delivery.
func ReceiptSent(channel string, ok bool) {
	receiptsSent.WithLabelValues(channel, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

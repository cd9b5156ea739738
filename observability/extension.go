// Package observability provides a metrics extension for Giftcard that
// records lifecycle event counts via an injected MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/plugin"
	"github.com/xraph/giftcard/transaction"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin            = (*MetricsExtension)(nil)
	_ plugin.OnInit            = (*MetricsExtension)(nil)
	_ plugin.OnCardCreated     = (*MetricsExtension)(nil)
	_ plugin.OnCardActivated   = (*MetricsExtension)(nil)
	_ plugin.OnCardRedeemed    = (*MetricsExtension)(nil)
	_ plugin.OnCardAdjusted    = (*MetricsExtension)(nil)
	_ plugin.OnCardCanceled    = (*MetricsExtension)(nil)
	_ plugin.OnCardReactivated = (*MetricsExtension)(nil)
	_ plugin.OnCardExpired     = (*MetricsExtension)(nil)
	_ plugin.OnWriteConflict   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Giftcard plugin to automatically track card metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Card lifecycle metrics
	CardCreated     Counter
	CardActivated   Counter
	CardCanceled    Counter
	CardReactivated Counter
	CardExpired     Counter

	// Redemption metrics
	CardRedeemed     Counter
	CardDrained      Counter
	RedemptionAmount Histogram

	// Adjustment metrics
	CardAdjusted    Counter
	AdjustmentDelta Histogram

	// Concurrency metrics
	WriteConflicts Counter

	// Error metrics
	StoreErrors  Counter
	PluginErrors Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Card lifecycle metrics
		CardCreated:     factory.Counter("giftcard.card.created"),
		CardActivated:   factory.Counter("giftcard.card.activated"),
		CardCanceled:    factory.Counter("giftcard.card.canceled"),
		CardReactivated: factory.Counter("giftcard.card.reactivated"),
		CardExpired:     factory.Counter("giftcard.card.expired"),

		// Redemption metrics
		CardRedeemed:     factory.Counter("giftcard.card.redeemed"),
		CardDrained:      factory.Counter("giftcard.card.drained"),
		RedemptionAmount: factory.Histogram("giftcard.redemption.amount_cents"),

		// Adjustment metrics
		CardAdjusted:    factory.Counter("giftcard.card.adjusted"),
		AdjustmentDelta: factory.Histogram("giftcard.adjustment.delta_cents"),

		// Concurrency metrics
		WriteConflicts: factory.Counter("giftcard.write.conflicts"),

		// Error metrics
		StoreErrors:  factory.Counter("giftcard.store.errors"),
		PluginErrors: factory.Counter("giftcard.plugin.errors"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Card lifecycle hooks
// ──────────────────────────────────────────────────

// OnCardCreated implements plugin.OnCardCreated.
func (m *MetricsExtension) OnCardCreated(_ context.Context, _ interface{}) error {
	m.CardCreated.Inc()
	return nil
}

// OnCardActivated implements plugin.OnCardActivated.
func (m *MetricsExtension) OnCardActivated(_ context.Context, _ interface{}) error {
	m.CardActivated.Inc()
	return nil
}

// OnCardRedeemed implements plugin.OnCardRedeemed.
func (m *MetricsExtension) OnCardRedeemed(_ context.Context, c, entry interface{}) error {
	m.CardRedeemed.Inc()

	if t, ok := entry.(*transaction.Transaction); ok {
		// Redemption entries carry a negated amount.
		m.RedemptionAmount.Observe(float64(t.Amount.Abs().Amount))
	}
	if cc, ok := c.(*card.Card); ok && cc.State == card.StateRedeemed {
		m.CardDrained.Inc()
	}
	return nil
}

// OnCardAdjusted implements plugin.OnCardAdjusted.
func (m *MetricsExtension) OnCardAdjusted(_ context.Context, _, entry interface{}) error {
	m.CardAdjusted.Inc()

	if t, ok := entry.(*transaction.Transaction); ok {
		m.AdjustmentDelta.Observe(float64(t.Amount.Amount))
	}
	return nil
}

// OnCardCanceled implements plugin.OnCardCanceled.
func (m *MetricsExtension) OnCardCanceled(_ context.Context, _ interface{}, _ string) error {
	m.CardCanceled.Inc()
	return nil
}

// OnCardReactivated implements plugin.OnCardReactivated.
func (m *MetricsExtension) OnCardReactivated(_ context.Context, _ interface{}) error {
	m.CardReactivated.Inc()
	return nil
}

// OnCardExpired implements plugin.OnCardExpired.
func (m *MetricsExtension) OnCardExpired(_ context.Context, _ interface{}) error {
	m.CardExpired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Concurrency hooks
// ──────────────────────────────────────────────────

// OnWriteConflict implements plugin.OnWriteConflict.
func (m *MetricsExtension) OnWriteConflict(_ context.Context, _, _ string) error {
	m.WriteConflicts.Inc()
	return nil
}

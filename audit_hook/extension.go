// Package audithook bridges Giftcard lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/plugin"
	"github.com/xraph/giftcard/transaction"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin            = (*Extension)(nil)
	_ plugin.OnCardCreated     = (*Extension)(nil)
	_ plugin.OnCardActivated   = (*Extension)(nil)
	_ plugin.OnCardRedeemed    = (*Extension)(nil)
	_ plugin.OnCardAdjusted    = (*Extension)(nil)
	_ plugin.OnCardCanceled    = (*Extension)(nil)
	_ plugin.OnCardReactivated = (*Extension)(nil)
	_ plugin.OnCardExpired     = (*Extension)(nil)
	_ plugin.OnWriteConflict   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// This matches chronicle.Emitter but is defined locally so that the
// audit_hook package does not import Chronicle directly — callers inject
// the concrete *chronicle.Chronicle at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
// It mirrors chronicle/audit.Event but avoids a module dependency.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Giftcard lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Card lifecycle hooks
// ──────────────────────────────────────────────────

// OnCardCreated implements plugin.OnCardCreated.
func (e *Extension) OnCardCreated(ctx context.Context, c interface{}) error {
	cardID, appID := cardIdentity(c)
	return e.record(ctx, ActionCardCreated, SeverityInfo, OutcomeSuccess,
		ResourceCard, cardID, CategoryStoredValue, nil,
		"event", "card_created",
		"app_id", appID,
	)
}

// OnCardActivated implements plugin.OnCardActivated.
func (e *Extension) OnCardActivated(ctx context.Context, c interface{}) error {
	cardID, appID := cardIdentity(c)
	return e.record(ctx, ActionCardActivated, SeverityInfo, OutcomeSuccess,
		ResourceCard, cardID, CategoryStoredValue, nil,
		"event", "card_activated",
		"app_id", appID,
	)
}

// OnCardRedeemed implements plugin.OnCardRedeemed.
func (e *Extension) OnCardRedeemed(ctx context.Context, c, entry interface{}) error {
	cardID, appID := cardIdentity(c)
	kvPairs := []any{
		"event", "card_redeemed",
		"app_id", appID,
	}
	if t, ok := entry.(*transaction.Transaction); ok {
		kvPairs = append(kvPairs,
			"amount_cents", t.Amount.Amount,
			"currency", t.Amount.Currency,
			"order_id", t.OrderID,
		)
	}
	return e.record(ctx, ActionCardRedeemed, SeverityInfo, OutcomeSuccess,
		ResourceCard, cardID, CategoryStoredValue, nil, kvPairs...)
}

// OnCardAdjusted implements plugin.OnCardAdjusted.
func (e *Extension) OnCardAdjusted(ctx context.Context, c, entry interface{}) error {
	cardID, appID := cardIdentity(c)
	kvPairs := []any{
		"event", "card_adjusted",
		"app_id", appID,
	}
	if t, ok := entry.(*transaction.Transaction); ok {
		kvPairs = append(kvPairs,
			"delta_cents", t.Amount.Amount,
			"currency", t.Amount.Currency,
		)
	}
	return e.record(ctx, ActionCardAdjusted, SeverityWarning, OutcomeSuccess,
		ResourceCard, cardID, CategoryStoredValue, nil, kvPairs...)
}

// OnCardCanceled implements plugin.OnCardCanceled.
func (e *Extension) OnCardCanceled(ctx context.Context, c interface{}, reason string) error {
	cardID, appID := cardIdentity(c)
	return e.record(ctx, ActionCardCanceled, SeverityWarning, OutcomeSuccess,
		ResourceCard, cardID, CategoryStoredValue, nil,
		"event", "card_canceled",
		"app_id", appID,
		"cancel_reason", reason,
	)
}

// OnCardReactivated implements plugin.OnCardReactivated.
func (e *Extension) OnCardReactivated(ctx context.Context, c interface{}) error {
	cardID, appID := cardIdentity(c)
	return e.record(ctx, ActionCardReactivated, SeverityInfo, OutcomeSuccess,
		ResourceCard, cardID, CategoryStoredValue, nil,
		"event", "card_reactivated",
		"app_id", appID,
	)
}

// OnCardExpired implements plugin.OnCardExpired.
func (e *Extension) OnCardExpired(ctx context.Context, c interface{}) error {
	cardID, appID := cardIdentity(c)
	return e.record(ctx, ActionCardExpired, SeverityInfo, OutcomeSuccess,
		ResourceCard, cardID, CategoryStoredValue, nil,
		"event", "card_expired",
		"app_id", appID,
	)
}

// ──────────────────────────────────────────────────
// Concurrency hooks
// ──────────────────────────────────────────────────

// OnWriteConflict implements plugin.OnWriteConflict.
func (e *Extension) OnWriteConflict(ctx context.Context, cardID, operation string) error {
	return e.record(ctx, ActionWriteConflict, SeverityWarning, OutcomeFailure,
		ResourceCard, cardID, CategoryConcurrency, nil,
		"event", "write_conflict",
		"operation", operation,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// cardIdentity extracts the card's ID and app scope from a hook payload.
func cardIdentity(v interface{}) (cardID, appID string) {
	if c, ok := v.(*card.Card); ok {
		return c.ID.String(), c.AppID
	}
	return "", ""
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

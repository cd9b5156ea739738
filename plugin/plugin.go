// Package plugin provides an extensible plugin system for Giftcard.
// Plugins can hook into various lifecycle events to extend functionality.
package plugin

import "context"

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Card lifecycle hooks
//
// Hook payloads are passed as interface{} to keep this package free of
// domain imports; concrete types are *card.Card and
// *transaction.Transaction.
// ──────────────────────────────────────────────────

// OnCardCreated is called when a new card is issued.
type OnCardCreated interface {
	Plugin
	OnCardCreated(ctx context.Context, c interface{}) error
}

// OnCardActivated is called when a card becomes redeemable.
type OnCardActivated interface {
	Plugin
	OnCardActivated(ctx context.Context, c interface{}) error
}

// OnCardRedeemed is called after a redemption commits. The entry is the
// ledger transaction the redemption produced.
type OnCardRedeemed interface {
	Plugin
	OnCardRedeemed(ctx context.Context, c interface{}, entry interface{}) error
}

// OnCardAdjusted is called after a balance adjustment commits.
type OnCardAdjusted interface {
	Plugin
	OnCardAdjusted(ctx context.Context, c interface{}, entry interface{}) error
}

// OnCardCanceled is called when a card is voided.
type OnCardCanceled interface {
	Plugin
	OnCardCanceled(ctx context.Context, c interface{}, reason string) error
}

// OnCardReactivated is called when a canceled card is reinstated.
type OnCardReactivated interface {
	Plugin
	OnCardReactivated(ctx context.Context, c interface{}) error
}

// OnCardExpired is called when the expiry sweeper materializes the
// expired state for a card.
type OnCardExpired interface {
	Plugin
	OnCardExpired(ctx context.Context, c interface{}) error
}

// ──────────────────────────────────────────────────
// Concurrency hooks
// ──────────────────────────────────────────────────

// OnWriteConflict is called when a mutating operation loses an optimistic
// concurrency race. The operation is the engine method name.
type OnWriteConflict interface {
	Plugin
	OnWriteConflict(ctx context.Context, cardID string, operation string) error
}

// ──────────────────────────────────────────────────
// Code generation
// ──────────────────────────────────────────────────

// CodeGenerator replaces the built-in random card code generator.
// Uniqueness is still enforced by the store; generators that collide are
// retried like the default one.
type CodeGenerator interface {
	Plugin
	GenerateCode(ctx context.Context) (string, error)
}

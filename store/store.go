package store

import (
	"context"
	"time"

	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/transaction"
)

// Store is the unified storage interface for all Giftcard entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Card methods
	//
	// CreateCard persists a new card, rejecting duplicate codes with
	// ErrCodeExists. GetCard and GetCardByCode return a private copy of
	// the card carrying the persisted Version; mutate it through the
	// card's methods and hand it back to SaveCard.
	CreateCard(ctx context.Context, c *card.Card) error
	GetCard(ctx context.Context, cardID id.CardID) (*card.Card, error)
	GetCardByCode(ctx context.Context, code string) (*card.Card, error)

	// SaveCard persists the card row and its Pending ledger entries in
	// one atomic unit, guarded by the Version the card was loaded with.
	// When another commit won the race it returns
	// ErrConcurrentModification and applies nothing. On success it bumps
	// Version and clears Pending on the in-memory card.
	SaveCard(ctx context.Context, c *card.Card) error

	// ReserveUniqueCode generates a card code that is not yet taken,
	// retrying against the uniqueness constraint a bounded number of
	// times before returning ErrCodeGeneration.
	ReserveUniqueCode(ctx context.Context) (string, error)

	ListCards(ctx context.Context, appID string, opts card.ListOpts) ([]*card.Card, error)

	// ListExpiredCards returns cards whose expiry has passed as of asOf
	// but whose state has not yet been materialized to expired.
	ListExpiredCards(ctx context.Context, asOf time.Time, limit int) ([]*card.Card, error)

	// Transaction methods
	ListTransactions(ctx context.Context, cardID id.CardID, opts transaction.ListOpts) ([]*transaction.Transaction, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

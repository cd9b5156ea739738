// Package giftcard provides a stored-value card engine for Go applications.
//
// Giftcard is designed as a library, not a service. Import it directly into
// your Go application. It provides:
//
//   - A strict card lifecycle (inactive, active, redeemed, expired, canceled)
//     with no raw state setters
//   - An append-only transaction ledger per card, reconstructing the balance
//     from the creation amount plus signed entry amounts
//   - Optimistic concurrency on every mutating write: racing commits lose
//     with a conflict error instead of silently clobbering each other
//   - Unique, human-readable card codes with store-enforced uniqueness
//   - A background sweeper that materializes expiry
//   - Pluggable storage (memory, Postgres, SQLite, MongoDB)
//
// # Quick Start
//
// Create an engine with your preferred store:
//
//	import (
//	    "github.com/xraph/giftcard"
//	    "github.com/xraph/giftcard/store/postgres"
//	)
//
//	// Initialize store from an existing grove database handle
//	store := postgres.New(db)
//
//	// Create engine
//	gc := giftcard.New(store)
//
//	// Start (runs migrations and the expiry sweeper)
//	if err := gc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer gc.Stop()
//
// # Core Concepts
//
// Cards are issued inactive with a fixed value:
//
//	c := &card.Card{
//	    InitialAmount: giftcard.USD(5000), // $50.00
//	    AppID:         "acme",
//	}
//	err := gc.CreateCard(ctx, c) // assigns ID and a unique code
//
// Activation makes a card redeemable; redemptions deduct from the balance
// and append ledger entries:
//
//	c, err = gc.ActivateCard(ctx, c.ID)
//	c, err = gc.RedeemCard(ctx, c.ID, giftcard.USD(1200), "order_91", "")
//
// A redemption that drains the balance to zero moves the card to redeemed.
// The full history is always available, newest first:
//
//	entries, err := gc.ListTransactions(ctx, c.ID, transaction.ListOpts{})
//
// # Concurrency
//
// Every card row carries a version counter. SaveCard applies the balance
// write and the staged ledger entries in one atomic unit, guarded by the
// version read at load time. When two mutations race, exactly one commits;
// the other receives ErrConcurrentModification and may reload and retry.
// The engine itself never retries.
//
// All monetary calculations use integer arithmetic to avoid floating-point
// precision issues. The Money type represents amounts in the smallest
// currency unit (cents for USD, pence for GBP, etc).
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	card_01h2xcejqtf2nbrexx3vqjhp41  // Card ID
//	txn_01h455vb4pex5vsknk084sn02q   // Transaction ID
//
// TypeIDs are K-sortable, making them ideal for database indexes and
// providing natural time-ordering of entities.
package giftcard

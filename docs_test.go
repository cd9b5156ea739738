package giftcard_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/store/memory"
	"github.com/xraph/giftcard/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// Initialize Giftcard
		g := giftcard.New(store,
			giftcard.WithLogger(slog.Default()),
			giftcard.WithExpirySweep(time.Minute, 100),
		)

		// Start the engine
		ctx := context.Background()
		if err := g.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer g.Stop()

		// Issue a card
		c := &card.Card{
			InitialAmount: types.USD(5000), // $50.00
			AppID:         "app_456",
			IssuerID:      "merchant_1",
		}
		if err := g.CreateCard(ctx, c); err != nil {
			t.Fatal(err)
		}

		// Activate it so it can be redeemed
		c, err := g.ActivateCard(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}

		// Redeem part of the balance at checkout
		c, err = g.RedeemCard(ctx, c.ID, types.USD(1250), "order_789", "")
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Remaining balance: %s\n", c.Balance.String())

		// Inspect the ledger
		ledger, err := g.CardLedger(ctx, c.ID)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("Total redeemed: %s\n", ledger.TotalRedeemed().String())
	})

	// Test Money type examples
	t.Run("MoneyExamples", func(t *testing.T) {
		// Constructors
		_ = types.USD(4900)   // $49.00
		_ = types.EUR(9900)   // €99.00
		_ = types.Zero("usd") // $0.00

		// Arithmetic
		m1 := types.USD(100)
		m2 := types.USD(200)
		_ = m1.Add(m2)      // $3.00
		_ = m2.Subtract(m1) // $1.00
		_ = m1.Negate()     // -$1.00

		// Comparison
		if m1.LessThan(m2) {
			// m1 is less than m2
		}

		// Formatting
		_ = m1.String()      // "$1.00"
		_ = m1.FormatMajor() // "1.00"
	})
}

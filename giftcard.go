package giftcard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/plugin"
	"github.com/xraph/giftcard/store"
	"github.com/xraph/giftcard/transaction"
	"github.com/xraph/giftcard/types"
)

// Giftcard is the main stored-value card engine.
type Giftcard struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger

	// Background workers
	stopChan chan struct{}
	wg       sync.WaitGroup

	// Configuration
	sweepInterval  time.Duration
	sweepBatchSize int
}

// New creates a new Giftcard engine instance.
func New(s store.Store, opts ...Option) *Giftcard {
	g := &Giftcard{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		stopChan:       make(chan struct{}),
		sweepInterval:  time.Minute,
		sweepBatchSize: 100,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Option configures a Giftcard instance.
type Option func(*Giftcard)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Giftcard) {
		g.logger = logger
		g.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(g *Giftcard) {
		_ = g.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithExpirySweep configures the expiry sweeper. A non-positive interval
// disables the sweeper; expiry is still enforced at redemption time.
func WithExpirySweep(interval time.Duration, batchSize int) Option {
	return func(g *Giftcard) {
		g.sweepInterval = interval
		g.sweepBatchSize = batchSize
	}
}

// Start begins background workers.
func (g *Giftcard) Start(ctx context.Context) error {
	// Migrate database
	if err := g.store.Migrate(ctx); err != nil {
		return err
	}

	// Initialize plugins
	g.plugins.EmitInit(ctx, g)

	// Start expiry sweeper
	if g.sweepInterval > 0 {
		g.wg.Add(1)
		go g.expirySweepWorker(ctx)
	}

	g.logger.Info("giftcard engine started",
		"sweep_interval", g.sweepInterval,
		"sweep_batch_size", g.sweepBatchSize,
	)

	return nil
}

// Stop shuts down the engine.
func (g *Giftcard) Stop() error {
	close(g.stopChan)
	g.wg.Wait()

	ctx := context.Background()
	g.plugins.EmitShutdown(ctx)

	return g.store.Close()
}

// ──────────────────────────────────────────────────
// Card Issuance
// ──────────────────────────────────────────────────

// CreateCard issues a new card in the inactive state. The card's ID,
// timestamps, balance, and code (when none is given) are assigned here;
// the caller provides the value, scope, and optional expiry.
func (g *Giftcard) CreateCard(ctx context.Context, c *card.Card) error {
	if c.InitialAmount.Currency == "" {
		return ValidationError{Field: "initial_amount", Message: "currency is required"}
	}
	if !c.InitialAmount.IsPositive() {
		return ErrInvalidAmount
	}
	if c.AppID == "" {
		return ValidationError{Field: "app_id", Message: "app id is required"}
	}

	if c.ID == (id.CardID{}) {
		c.ID = id.NewCardID()
	}
	c.Entity = types.NewEntity()
	c.State = card.StateInactive
	c.Balance = c.InitialAmount
	c.Version = 0
	c.Pending = nil

	if c.Code == "" {
		code, err := g.reserveCode(ctx)
		if err != nil {
			return err
		}
		c.Code = code
	}

	if err := g.store.CreateCard(ctx, c); err != nil {
		return err
	}

	g.plugins.EmitCardCreated(ctx, c)
	return nil
}

// reserveCode obtains an unused card code, preferring a registered
// CodeGenerator plugin over the store's built-in generator.
func (g *Giftcard) reserveCode(ctx context.Context) (string, error) {
	gen := g.plugins.GetCodeGenerator()
	if gen == nil {
		return g.store.ReserveUniqueCode(ctx)
	}

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := gen.GenerateCode(ctx)
		if err != nil {
			return "", err
		}

		_, err = g.store.GetCardByCode(ctx, code)
		if IsNotFound(err) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}

	return "", ErrCodeGeneration
}

// ──────────────────────────────────────────────────
// Card Lifecycle
// ──────────────────────────────────────────────────

// ActivateCard makes an inactive card redeemable.
func (g *Giftcard) ActivateCard(ctx context.Context, cardID id.CardID) (*card.Card, error) {
	c, err := g.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if err := c.Activate(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := g.save(ctx, c, "ActivateCard"); err != nil {
		return nil, err
	}

	g.plugins.EmitCardActivated(ctx, c)
	return c, nil
}

// RedeemCard deducts amount from the card's balance and appends a
// redemption entry to its ledger. Draining the balance to zero moves the
// card to redeemed. A losing race returns ErrConcurrentModification
// without applying anything; the engine never retries.
func (g *Giftcard) RedeemCard(ctx context.Context, cardID id.CardID, amount types.Money, orderID, notes string) (*card.Card, error) {
	c, err := g.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if err := c.Redeem(amount, orderID, notes, time.Now().UTC()); err != nil {
		return nil, err
	}

	entry := c.Pending[len(c.Pending)-1]
	if err := g.save(ctx, c, "RedeemCard"); err != nil {
		return nil, err
	}

	g.plugins.EmitCardRedeemed(ctx, c, entry)
	return c, nil
}

// AdjustBalance re-baselines the card's face value and balance to
// newAmount and records the signed delta in the ledger.
func (g *Giftcard) AdjustBalance(ctx context.Context, cardID id.CardID, newAmount types.Money, reason string) (*card.Card, error) {
	c, err := g.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if err := c.Adjust(newAmount, reason, time.Now().UTC()); err != nil {
		return nil, err
	}

	entry := c.Pending[len(c.Pending)-1]
	if err := g.save(ctx, c, "AdjustBalance"); err != nil {
		return nil, err
	}

	g.plugins.EmitCardAdjusted(ctx, c, entry)
	return c, nil
}

// CancelCard voids the card, appending the reason to its notes.
func (g *Giftcard) CancelCard(ctx context.Context, cardID id.CardID, reason string) (*card.Card, error) {
	c, err := g.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if err := c.Cancel(reason, time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := g.save(ctx, c, "CancelCard"); err != nil {
		return nil, err
	}

	g.plugins.EmitCardCanceled(ctx, c, reason)
	return c, nil
}

// ReactivateCard returns a canceled card to active with its remaining
// balance.
func (g *Giftcard) ReactivateCard(ctx context.Context, cardID id.CardID) (*card.Card, error) {
	c, err := g.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	if err := c.Reactivate(time.Now().UTC()); err != nil {
		return nil, err
	}
	if err := g.save(ctx, c, "ReactivateCard"); err != nil {
		return nil, err
	}

	g.plugins.EmitCardReactivated(ctx, c)
	return c, nil
}

// save commits a mutated card, surfacing write conflicts to plugins.
func (g *Giftcard) save(ctx context.Context, c *card.Card, operation string) error {
	err := g.store.SaveCard(ctx, c)
	if errors.Is(err, ErrConcurrentModification) {
		g.plugins.EmitWriteConflict(ctx, c.ID.String(), operation)
	}
	return err
}

// ──────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────

// GetCard retrieves a card by ID.
func (g *Giftcard) GetCard(ctx context.Context, cardID id.CardID) (*card.Card, error) {
	return g.store.GetCard(ctx, cardID)
}

// GetCardByCode retrieves a card by its unique code.
func (g *Giftcard) GetCardByCode(ctx context.Context, code string) (*card.Card, error) {
	return g.store.GetCardByCode(ctx, code)
}

// ListCards lists cards in an app scope.
func (g *Giftcard) ListCards(ctx context.Context, appID string, opts card.ListOpts) ([]*card.Card, error) {
	return g.store.ListCards(ctx, appID, opts)
}

// ListTransactions lists a card's ledger entries, most recent first.
func (g *Giftcard) ListTransactions(ctx context.Context, cardID id.CardID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	if _, err := g.store.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	return g.store.ListTransactions(ctx, cardID, opts)
}

// CardLedger loads a card's full ledger as a read-side aggregate.
func (g *Giftcard) CardLedger(ctx context.Context, cardID id.CardID) (*transaction.Ledger, error) {
	if _, err := g.store.GetCard(ctx, cardID); err != nil {
		return nil, err
	}

	entries, err := g.store.ListTransactions(ctx, cardID, transaction.ListOpts{})
	if err != nil {
		return nil, err
	}

	return transaction.NewLedger(entries), nil
}

// UsagePercentage reports how much of a card's value has been consumed.
func (g *Giftcard) UsagePercentage(ctx context.Context, cardID id.CardID) (float64, error) {
	c, err := g.store.GetCard(ctx, cardID)
	if err != nil {
		return 0, err
	}

	return transaction.UsagePercentage(c.InitialAmount, c.Balance), nil
}

// ──────────────────────────────────────────────────
// Expiry Sweeper
// ──────────────────────────────────────────────────

// expirySweepWorker periodically materializes the expired state for cards
// whose expiry has passed. Expiry is enforced at redemption time
// regardless; the sweeper only keeps the stored state in line with the
// clock.
func (g *Giftcard) expirySweepWorker(ctx context.Context) {
	defer g.wg.Done()

	ticker := time.NewTicker(g.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case <-ticker.C:
			g.sweepExpired(ctx)
		}
	}
}

func (g *Giftcard) sweepExpired(ctx context.Context) {
	now := time.Now().UTC()

	cards, err := g.store.ListExpiredCards(ctx, now, g.sweepBatchSize)
	if err != nil {
		g.logger.Error("expiry sweep failed to list due cards", "error", err)
		return
	}

	for _, c := range cards {
		if !c.RefreshExpiry(now) {
			continue
		}

		if err := g.store.SaveCard(ctx, c); err != nil {
			// A concurrent mutation already observed the expiry via
			// the authoritative time check; skip this card.
			if errors.Is(err, ErrConcurrentModification) {
				g.logger.Debug("expiry sweep lost race", "card_id", c.ID)
				continue
			}
			g.logger.Error("expiry sweep failed to save card",
				"card_id", c.ID,
				"error", err,
			)
			continue
		}

		g.plugins.EmitCardExpired(ctx, c)
	}

	if len(cards) > 0 {
		g.logger.Debug("expiry sweep completed", "candidates", len(cards))
	}
}

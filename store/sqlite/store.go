// Package sqlite provides a SQLite-backed Store implementation using
// Grove ORM. Suited to embedded and single-node deployments; the version
// guard carries the same semantics as the PostgreSQL backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	giftcardstore "github.com/xraph/giftcard/store"
	"github.com/xraph/giftcard/transaction"
)

// compile-time interface check
var _ giftcardstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("giftcard/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("giftcard/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Card Store ====================

func (s *Store) CreateCard(ctx context.Context, c *card.Card) error {
	m := toCardModel(c)
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return giftcard.ErrCodeExists
		}
		return err
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, cardID id.CardID) (*card.Card, error) {
	m := new(cardModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", cardID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, giftcard.ErrCardNotFound
		}
		return nil, err
	}
	return fromCardModel(m)
}

func (s *Store) GetCardByCode(ctx context.Context, code string) (*card.Card, error) {
	m := new(cardModel)
	err := s.sdb.NewSelect(m).
		Where("code = ?", code).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, giftcard.ErrCardNotFound
		}
		return nil, err
	}
	return fromCardModel(m)
}

// SaveCard commits a mutated card behind a version guard, then appends the
// pending ledger entries. Once the guarded update wins the version bump,
// no racing commit for the same loaded version can match, so the entry
// inserts cannot conflict with another writer.
func (s *Store) SaveCard(ctx context.Context, c *card.Card) error {
	m := toCardModel(c)

	res, err := s.sdb.NewUpdate((*cardModel)(nil)).
		Set("initial_amount_cents = ?", m.InitialAmountCents).
		Set("initial_amount_currency = ?", m.InitialAmountCurrency).
		Set("balance_cents = ?", m.BalanceCents).
		Set("balance_currency = ?", m.BalanceCurrency).
		Set("state = ?", m.State).
		Set("expires_at = ?", m.ExpiresAt).
		Set("activated_at = ?", m.ActivatedAt).
		Set("redeemed_at = ?", m.RedeemedAt).
		Set("canceled_at = ?", m.CanceledAt).
		Set("notes = ?", m.Notes).
		Set("assigned_user_id = ?", m.AssignedUserID).
		Set("version = version + 1").
		Set("updated_at = ?", m.UpdatedAt).
		Where("id = ?", m.ID).
		Where("version = ?", m.Version).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return s.saveMissReason(ctx, c.ID)
	}

	for _, entry := range c.Pending {
		em := toTransactionModel(entry)
		if _, err := s.sdb.NewInsert(em).Exec(ctx); err != nil {
			return err
		}
	}

	c.Version++
	c.Pending = nil
	return nil
}

// saveMissReason distinguishes a missing card from a lost version race
// after a guarded update matched no rows.
func (s *Store) saveMissReason(ctx context.Context, cardID id.CardID) error {
	m := new(cardModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", cardID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return giftcard.ErrCardNotFound
		}
		return err
	}
	return giftcard.ErrConcurrentModification
}

func (s *Store) ReserveUniqueCode(ctx context.Context) (string, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := card.GenerateCode()
		if err != nil {
			return "", err
		}

		m := new(cardModel)
		err = s.sdb.NewSelect(m).
			Where("code = ?", code).
			Scan(ctx)
		if isNoRows(err) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", giftcard.ErrCodeGeneration
}

func (s *Store) ListCards(ctx context.Context, appID string, opts card.ListOpts) ([]*card.Card, error) {
	var models []cardModel
	q := s.sdb.NewSelect(&models).Where("app_id = ?", appID)

	if opts.State != "" {
		q = q.Where("state = ?", string(opts.State))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	// TypeIDs are K-sortable, so ID order is creation order.
	q = q.OrderExpr("id ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*card.Card, len(models))
	for i := range models {
		c, err := fromCardModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) ListExpiredCards(ctx context.Context, asOf time.Time, limit int) ([]*card.Card, error) {
	var models []cardModel
	q := s.sdb.NewSelect(&models).
		Where("state IN (?, ?)", string(card.StateInactive), string(card.StateActive)).
		Where("expires_at IS NOT NULL AND expires_at < ?", asOf).
		OrderExpr("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*card.Card, len(models))
	for i := range models {
		c, err := fromCardModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

// ==================== Transaction Store ====================

func (s *Store) ListTransactions(ctx context.Context, cardID id.CardID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	var models []transactionModel
	q := s.sdb.NewSelect(&models).Where("card_id = ?", cardID.String())

	if opts.Kind != "" {
		q = q.Where("kind = ?", string(opts.Kind))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*transaction.Transaction, len(models))
	for i := range models {
		e, err := fromTransactionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Helpers ====================

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isUniqueViolation matches the SQLite constraint error text. The modernc
// driver surfaces these as plain errors rather than a typed code.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed")
}

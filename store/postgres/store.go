// Package postgres provides a PostgreSQL-backed Store implementation
// using Grove ORM. Balance writes and ledger appends commit in a single
// statement so a lost version race never leaves partial state behind.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	giftcardstore "github.com/xraph/giftcard/store"
	"github.com/xraph/giftcard/transaction"
)

// compile-time interface check
var _ giftcardstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("giftcard/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("giftcard/postgres: migration failed: %w", err)
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
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return giftcard.ErrCodeExists
		}
		return err
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, cardID id.CardID) (*card.Card, error) {
	m := new(cardModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", cardID.String()).
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
	err := s.pg.NewSelect(m).
		Where("code = $1", code).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, giftcard.ErrCardNotFound
		}
		return nil, err
	}
	return fromCardModel(m)
}

// SaveCard commits a mutated card and its pending ledger entries in one
// statement. The update is guarded on the loaded version; when another
// writer got there first the guard matches zero rows, the entry insert
// sees an empty CTE, and nothing is applied.
func (s *Store) SaveCard(ctx context.Context, c *card.Card) error {
	m := toCardModel(c)

	args := []interface{}{
		m.ID, m.Version,
		m.InitialAmountCents, m.InitialAmountCurrency,
		m.BalanceCents, m.BalanceCurrency,
		m.State, m.ExpiresAt, m.ActivatedAt, m.RedeemedAt, m.CanceledAt,
		m.Notes, m.AssignedUserID, m.UpdatedAt,
	}

	var sb strings.Builder
	sb.WriteString(`
WITH updated AS (
    UPDATE giftcard_cards SET
        initial_amount_cents = $3, initial_amount_currency = $4,
        balance_cents = $5, balance_currency = $6,
        state = $7, expires_at = $8, activated_at = $9,
        redeemed_at = $10, canceled_at = $11,
        notes = $12, assigned_user_id = $13,
        version = version + 1, updated_at = $14
    WHERE id = $1 AND version = $2
    RETURNING id
)`)

	if len(c.Pending) > 0 {
		sb.WriteString(`, appended AS (
    INSERT INTO giftcard_transactions
        (id, card_id, kind, amount_cents, amount_currency, order_id, notes, created_at)
    SELECT v.* FROM (VALUES `)
		argIdx := len(args)
		for i, entry := range c.Pending {
			if i > 0 {
				sb.WriteString(", ")
			}
			// The first row carries the casts; later rows inherit them.
			if i == 0 {
				sb.WriteString(fmt.Sprintf("($%d::text, $%d::text, $%d::text, $%d::bigint, $%d::text, $%d::text, $%d::text, $%d::timestamptz)",
					argIdx+1, argIdx+2, argIdx+3, argIdx+4, argIdx+5, argIdx+6, argIdx+7, argIdx+8))
			} else {
				sb.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
					argIdx+1, argIdx+2, argIdx+3, argIdx+4, argIdx+5, argIdx+6, argIdx+7, argIdx+8))
			}
			argIdx += 8
			args = append(args,
				entry.ID.String(), entry.CardID.String(), string(entry.Kind),
				entry.Amount.Amount, entry.Amount.Currency,
				entry.OrderID, entry.Notes, entry.CreatedAt,
			)
		}
		sb.WriteString(`) AS v(id, card_id, kind, amount_cents, amount_currency, order_id, notes, created_at)
    WHERE EXISTS (SELECT 1 FROM updated)
    RETURNING id
)`)
	}

	sb.WriteString(`
SELECT count(*) FROM updated`)

	var updated int
	if err := s.pg.NewRaw(sb.String(), args...).Scan(ctx, &updated); err != nil {
		return err
	}
	if updated == 0 {
		return s.saveMissReason(ctx, c.ID)
	}

	c.Version++
	c.Pending = nil
	return nil
}

// saveMissReason distinguishes a missing card from a lost version race
// after a guarded update matched no rows.
func (s *Store) saveMissReason(ctx context.Context, cardID id.CardID) error {
	var exists bool
	err := s.pg.NewRaw(`SELECT EXISTS (SELECT 1 FROM giftcard_cards WHERE id = $1)`, cardID.String()).
		Scan(ctx, &exists)
	if err != nil {
		return err
	}
	if !exists {
		return giftcard.ErrCardNotFound
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

		var taken bool
		err = s.pg.NewRaw(`SELECT EXISTS (SELECT 1 FROM giftcard_cards WHERE code = $1)`, code).
			Scan(ctx, &taken)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", giftcard.ErrCodeGeneration
}

func (s *Store) ListCards(ctx context.Context, appID string, opts card.ListOpts) ([]*card.Card, error) {
	var models []cardModel
	q := s.pg.NewSelect(&models).Where("app_id = $1", appID)

	argIdx := 1
	if opts.State != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("state = $%d", argIdx), string(opts.State))
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
	q := s.pg.NewSelect(&models).
		Where("state IN ($1, $2)", string(card.StateInactive), string(card.StateActive)).
		Where("expires_at IS NOT NULL AND expires_at < $3", asOf).
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
	q := s.pg.NewSelect(&models).Where("card_id = $1", cardID.String())

	argIdx := 1
	if opts.Kind != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("kind = $%d", argIdx), string(opts.Kind))
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

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

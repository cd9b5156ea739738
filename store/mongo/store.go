// Package mongo provides a MongoDB-backed Store implementation using
// Grove ORM. Each card is a single document with its ledger entries
// embedded, so the version guard and the entry append are one atomic
// document update.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	giftcardstore "github.com/xraph/giftcard/store"
	"github.com/xraph/giftcard/transaction"
)

// Collection name constants.
const (
	colCards = "giftcard_cards"
)

// compile-time interface check
var _ giftcardstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the card collection.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("giftcard/mongo: migrate %s indexes: %w", col, err)
		}
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
	_, err := s.mdb.NewInsert(m).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return giftcard.ErrCodeExists
		}
		return fmt.Errorf("giftcard/mongo: create card: %w", err)
	}
	return nil
}

func (s *Store) GetCard(ctx context.Context, cardID id.CardID) (*card.Card, error) {
	var m cardModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": cardID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, giftcard.ErrCardNotFound
		}
		return nil, fmt.Errorf("giftcard/mongo: get card: %w", err)
	}
	return fromCardModel(&m)
}

func (s *Store) GetCardByCode(ctx context.Context, code string) (*card.Card, error) {
	var m cardModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"code": code}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, giftcard.ErrCardNotFound
		}
		return nil, fmt.Errorf("giftcard/mongo: get card by code: %w", err)
	}
	return fromCardModel(&m)
}

// SaveCard commits a mutated card and its pending ledger entries as one
// document update, filtered on the loaded version. A racing commit makes
// the filter match nothing and the update applies nothing.
func (s *Store) SaveCard(ctx context.Context, c *card.Card) error {
	m := toCardModel(c)

	update := bson.M{
		"$set": bson.M{
			"initial_amount_cents":    m.InitialAmountCents,
			"initial_amount_currency": m.InitialAmountCurrency,
			"balance_cents":           m.BalanceCents,
			"balance_currency":        m.BalanceCurrency,
			"state":                   m.State,
			"expires_at":              m.ExpiresAt,
			"activated_at":            m.ActivatedAt,
			"redeemed_at":             m.RedeemedAt,
			"canceled_at":             m.CanceledAt,
			"notes":                   m.Notes,
			"assigned_user_id":        m.AssignedUserID,
			"updated_at":              m.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}

	if len(c.Pending) > 0 {
		entries := make([]transactionModel, len(c.Pending))
		for i, entry := range c.Pending {
			entries[i] = toTransactionModel(entry)
		}
		update["$push"] = bson.M{"transactions": bson.M{"$each": entries}}
	}

	res, err := s.mdb.NewUpdate((*cardModel)(nil)).
		Filter(bson.M{"_id": m.ID, "version": c.Version}).
		SetUpdate(update).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("giftcard/mongo: save card: %w", err)
	}
	if res.MatchedCount() == 0 {
		return s.saveMissReason(ctx, c.ID)
	}

	c.Version++
	c.Pending = nil
	return nil
}

// saveMissReason distinguishes a missing card from a lost version race
// after a guarded update matched no documents.
func (s *Store) saveMissReason(ctx context.Context, cardID id.CardID) error {
	var m cardModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": cardID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return giftcard.ErrCardNotFound
		}
		return fmt.Errorf("giftcard/mongo: save card: %w", err)
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

		var m cardModel
		err = s.mdb.NewFind(&m).
			Filter(bson.M{"code": code}).
			Scan(ctx)
		if isNoDocuments(err) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("giftcard/mongo: reserve code: %w", err)
		}
	}
	return "", giftcard.ErrCodeGeneration
}

func (s *Store) ListCards(ctx context.Context, appID string, opts card.ListOpts) ([]*card.Card, error) {
	var models []cardModel

	filter := bson.M{"app_id": appID}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	// TypeIDs are K-sortable, so ID order is creation order.
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "_id", Value: 1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("giftcard/mongo: list cards: %w", err)
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

	// A $lt date comparison never matches documents whose expires_at is
	// absent or null.
	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"state":      bson.M{"$in": []string{string(card.StateInactive), string(card.StateActive)}},
			"expires_at": bson.M{"$lt": asOf},
		}).
		Sort(bson.D{{Key: "expires_at", Value: 1}})

	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("giftcard/mongo: list expired cards: %w", err)
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
	var m cardModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": cardID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, giftcard.ErrCardNotFound
		}
		return nil, fmt.Errorf("giftcard/mongo: list transactions: %w", err)
	}

	// Stored oldest first; returned newest first.
	result := make([]*transaction.Transaction, 0, len(m.Transactions))
	for i := len(m.Transactions) - 1; i >= 0; i-- {
		em := &m.Transactions[i]
		if opts.Kind != "" && em.Kind != string(opts.Kind) {
			continue
		}
		e, err := fromTransactionModel(cardID, em)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}

	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for the card collection.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCards: {
			{
				Keys:    bson.D{{Key: "code", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "app_id", Value: 1}, {Key: "state", Value: 1}}},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
	}
}

// Package memory provides an in-memory Store implementation. It is the
// reference backend for tests and single-process use; all semantics the
// database backends provide (code uniqueness, optimistic versioning,
// atomic ledger appends) are enforced here under one mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/transaction"
)

type Store struct {
	mu sync.RWMutex

	// Card storage, keyed by card ID
	cards map[string]*card.Card

	// Code uniqueness index, code -> card ID
	codes map[string]string

	// Ledger entries per card, oldest first
	transactions map[string][]*transaction.Transaction
}

func New() *Store {
	return &Store{
		cards:        make(map[string]*card.Card),
		codes:        make(map[string]string),
		transactions: make(map[string][]*transaction.Transaction),
	}
}

// Card Store implementation

func (s *Store) CreateCard(_ context.Context, c *card.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cards[c.ID.String()]; exists {
		return giftcard.ErrAlreadyExists
	}
	if _, taken := s.codes[c.Code]; taken {
		return giftcard.ErrCodeExists
	}

	s.cards[c.ID.String()] = cloneCard(c)
	s.codes[c.Code] = c.ID.String()
	return nil
}

func (s *Store) GetCard(_ context.Context, cardID id.CardID) (*card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, ok := s.cards[cardID.String()]; ok {
		return cloneCard(c), nil
	}
	return nil, giftcard.ErrCardNotFound
}

func (s *Store) GetCardByCode(_ context.Context, code string) (*card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cardID, ok := s.codes[code]; ok {
		if c, ok := s.cards[cardID]; ok {
			return cloneCard(c), nil
		}
	}
	return nil, giftcard.ErrCardNotFound
}

func (s *Store) SaveCard(_ context.Context, c *card.Card) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.cards[c.ID.String()]
	if !ok {
		return giftcard.ErrCardNotFound
	}
	if stored.Version != c.Version {
		return giftcard.ErrConcurrentModification
	}

	// Balance write and ledger append commit together under the lock.
	for _, entry := range c.Pending {
		e := *entry
		s.transactions[c.ID.String()] = append(s.transactions[c.ID.String()], &e)
	}

	saved := cloneCard(c)
	saved.Version = c.Version + 1
	s.cards[c.ID.String()] = saved

	c.Version = saved.Version
	c.Pending = nil
	return nil
}

func (s *Store) ReserveUniqueCode(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := card.GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.codes[code]; !taken {
			return code, nil
		}
	}
	return "", giftcard.ErrCodeGeneration
}

func (s *Store) ListCards(_ context.Context, appID string, opts card.ListOpts) ([]*card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*card.Card, 0)
	for _, c := range s.cards {
		if c.AppID == appID {
			if opts.State == "" || c.State == opts.State {
				result = append(result, cloneCard(c))
			}
		}
	}

	// TypeIDs are K-sortable, so ID order is creation order.
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	// Apply limit/offset
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

func (s *Store) ListExpiredCards(_ context.Context, asOf time.Time, limit int) ([]*card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*card.Card, 0)
	for _, c := range s.cards {
		if c.State != card.StateInactive && c.State != card.StateActive {
			continue
		}
		if c.ExpiresAt == nil || !asOf.After(*c.ExpiresAt) {
			continue
		}
		result = append(result, cloneCard(c))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Transaction Store implementation

func (s *Store) ListTransactions(_ context.Context, cardID id.CardID, opts transaction.ListOpts) ([]*transaction.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.transactions[cardID.String()]
	result := make([]*transaction.Transaction, 0, len(entries))

	// Stored oldest first; returned newest first.
	for i := len(entries) - 1; i >= 0; i-- {
		e := *entries[i]
		if opts.Kind != "" && e.Kind != opts.Kind {
			continue
		}
		result = append(result, &e)
	}

	// Apply limit/offset
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

// Store management

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// cloneCard returns a private copy so callers never share pointers with
// the stored card. Pending is never persisted as-is.
func cloneCard(c *card.Card) *card.Card {
	out := *c
	out.ExpiresAt = cloneTime(c.ExpiresAt)
	out.ActivatedAt = cloneTime(c.ActivatedAt)
	out.RedeemedAt = cloneTime(c.RedeemedAt)
	out.CanceledAt = cloneTime(c.CanceledAt)
	out.Pending = nil
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

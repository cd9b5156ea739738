package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/store"
	"github.com/xraph/giftcard/transaction"
	"github.com/xraph/giftcard/types"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

func newCard(code string) *card.Card {
	return &card.Card{
		Entity:        types.NewEntity(),
		ID:            id.NewCardID(),
		Code:          code,
		InitialAmount: types.USD(5000),
		Balance:       types.USD(5000),
		State:         card.StateInactive,
		AppID:         "app_test",
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	c := newCard("AAAA-BBBB-CCCC-DDDD")
	if err := s.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	got, err := s.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if got.Code != c.Code || !got.Balance.Equal(c.Balance) {
		t.Errorf("loaded card mismatch: %+v", got)
	}
	if got == c {
		t.Error("GetCard returned the stored pointer, want a copy")
	}

	byCode, err := s.GetCardByCode(ctx, c.Code)
	if err != nil {
		t.Fatalf("GetCardByCode: %v", err)
	}
	if byCode.ID != c.ID {
		t.Errorf("GetCardByCode: got %v, want %v", byCode.ID, c.ID)
	}
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.GetCard(ctx, id.NewCardID()); !errors.Is(err, giftcard.ErrCardNotFound) {
		t.Errorf("GetCard: got %v, want ErrCardNotFound", err)
	}
	if _, err := s.GetCardByCode(ctx, "NOPE"); !errors.Is(err, giftcard.ErrCardNotFound) {
		t.Errorf("GetCardByCode: got %v, want ErrCardNotFound", err)
	}
}

func TestDuplicateCodeRejected(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.CreateCard(ctx, newCard("SAME-CODE-1111-2222")); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	err := s.CreateCard(ctx, newCard("SAME-CODE-1111-2222"))
	if !errors.Is(err, giftcard.ErrCodeExists) {
		t.Errorf("duplicate code: got %v, want ErrCodeExists", err)
	}
}

func TestSaveCardDrainsPendingAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	c := newCard("DRAIN-TEST-0000-0001")
	if err := s.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	loaded, err := s.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if err := loaded.Activate(now); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if err := loaded.Redeem(types.USD(1200), "order_1", "", now.Add(time.Second)); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	if err := s.SaveCard(ctx, loaded); err != nil {
		t.Fatalf("SaveCard: %v", err)
	}
	if len(loaded.Pending) != 0 {
		t.Errorf("Pending not cleared after save: %d entries", len(loaded.Pending))
	}
	if loaded.Version != 1 {
		t.Errorf("version: got %d, want 1", loaded.Version)
	}

	entries, err := s.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries: got %d, want 1", len(entries))
	}
	if entries[0].Kind != transaction.KindRedemption || !entries[0].Amount.Equal(types.USD(-1200)) {
		t.Errorf("persisted entry mismatch: %+v", entries[0])
	}

	reloaded, err := s.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if !reloaded.Balance.Equal(types.USD(3800)) {
		t.Errorf("balance: got %v, want %v", reloaded.Balance, types.USD(3800))
	}
}

func TestSaveCardVersionConflict(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	c := newCard("RACE-TEST-0000-0001")
	c.State = card.StateActive
	if err := s.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	first, err := s.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	second, err := s.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}

	if err := first.Redeem(types.USD(5000), "order_a", "", now); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if err := second.Redeem(types.USD(5000), "order_b", "", now); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	if err := s.SaveCard(ctx, first); err != nil {
		t.Fatalf("first SaveCard: %v", err)
	}
	if err := s.SaveCard(ctx, second); !errors.Is(err, giftcard.ErrConcurrentModification) {
		t.Fatalf("second SaveCard: got %v, want ErrConcurrentModification", err)
	}

	// The losing commit applied nothing.
	entries, err := s.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries after lost race: got %d, want 1", len(entries))
	}

	reloaded, err := s.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if !reloaded.Balance.IsZero() {
		t.Errorf("balance: got %v, want zero", reloaded.Balance)
	}
	if reloaded.State != card.StateRedeemed {
		t.Errorf("state: got %q, want %q", reloaded.State, card.StateRedeemed)
	}
}

func TestReserveUniqueCode(t *testing.T) {
	ctx := context.Background()
	s := New()

	code, err := s.ReserveUniqueCode(ctx)
	if err != nil {
		t.Fatalf("ReserveUniqueCode: %v", err)
	}
	if code == "" {
		t.Fatal("got empty code")
	}

	c := newCard(code)
	if err := s.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard with reserved code: %v", err)
	}
}

func TestListCards(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, code := range []string{"LIST-0001", "LIST-0002", "LIST-0003"} {
		c := newCard(code)
		if i == 2 {
			c.State = card.StateActive
		}
		if err := s.CreateCard(ctx, c); err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
	}
	other := newCard("OTHER-APP-0001")
	other.AppID = "app_other"
	if err := s.CreateCard(ctx, other); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	all, err := s.ListCards(ctx, "app_test", card.ListOpts{})
	if err != nil {
		t.Fatalf("ListCards: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("all cards: got %d, want 3", len(all))
	}

	active, err := s.ListCards(ctx, "app_test", card.ListOpts{State: card.StateActive})
	if err != nil {
		t.Fatalf("ListCards: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active cards: got %d, want 1", len(active))
	}

	limited, err := s.ListCards(ctx, "app_test", card.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListCards: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited cards: got %d, want 2", len(limited))
	}
}

func TestListExpiredCards(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	due := newCard("EXP-0001")
	due.State = card.StateActive
	due.ExpiresAt = &past

	notDue := newCard("EXP-0002")
	notDue.State = card.StateActive
	notDue.ExpiresAt = &future

	canceled := newCard("EXP-0003")
	canceled.State = card.StateCanceled
	canceled.ExpiresAt = &past

	for _, c := range []*card.Card{due, notDue, canceled} {
		if err := s.CreateCard(ctx, c); err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
	}

	got, err := s.ListExpiredCards(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListExpiredCards: %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Errorf("expired cards: got %d, want exactly the due card", len(got))
	}
}

func TestListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	c := newCard("TXN-ORDER-0001")
	c.State = card.StateActive
	if err := s.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	loaded, err := s.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if err := loaded.Redeem(types.USD(100), "o1", "", now); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if err := loaded.Redeem(types.USD(200), "o2", "", now.Add(time.Second)); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if err := s.SaveCard(ctx, loaded); err != nil {
		t.Fatalf("SaveCard: %v", err)
	}

	entries, err := s.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	if entries[0].OrderID != "o2" || entries[1].OrderID != "o1" {
		t.Errorf("entries not newest-first: %q then %q", entries[0].OrderID, entries[1].OrderID)
	}

	// Re-fetch returns the same finite history.
	again, err := s.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(again) != 2 {
		t.Errorf("re-fetch entries: got %d, want 2", len(again))
	}
}

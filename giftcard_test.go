package giftcard_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/store/memory"
	"github.com/xraph/giftcard/transaction"
	"github.com/xraph/giftcard/types"
)

func newEngine(t *testing.T, opts ...giftcard.Option) *giftcard.Giftcard {
	t.Helper()
	// Disable the sweeper unless a test opts in.
	base := []giftcard.Option{giftcard.WithExpirySweep(0, 0)}
	return giftcard.New(memory.New(), append(base, opts...)...)
}

func issueCard(t *testing.T, g *giftcard.Giftcard, amount types.Money) *card.Card {
	t.Helper()
	c := &card.Card{
		InitialAmount: amount,
		AppID:         "app_test",
		IssuerID:      "merchant_1",
	}
	if err := g.CreateCard(context.Background(), c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	return c
}

func TestCreateCard(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	t.Run("assigns identity and code", func(t *testing.T) {
		c := issueCard(t, g, types.USD(5000))

		if c.ID.IsNil() {
			t.Error("card ID not assigned")
		}
		if c.Code == "" {
			t.Error("card code not assigned")
		}
		if c.State != card.StateInactive {
			t.Errorf("state: got %q, want %q", c.State, card.StateInactive)
		}
		if !c.Balance.Equal(c.InitialAmount) {
			t.Errorf("balance: got %v, want %v", c.Balance, c.InitialAmount)
		}
		if c.Version != 0 {
			t.Errorf("version: got %d, want 0", c.Version)
		}
	})

	t.Run("keeps caller-provided code", func(t *testing.T) {
		c := &card.Card{
			InitialAmount: types.USD(1000),
			AppID:         "app_test",
			Code:          "GIFT-2024-HOLIDAY-01",
		}
		if err := g.CreateCard(ctx, c); err != nil {
			t.Fatalf("CreateCard: %v", err)
		}
		if c.Code != "GIFT-2024-HOLIDAY-01" {
			t.Errorf("code: got %q", c.Code)
		}
	})

	t.Run("rejects duplicate code", func(t *testing.T) {
		c := &card.Card{
			InitialAmount: types.USD(1000),
			AppID:         "app_test",
			Code:          "GIFT-2024-HOLIDAY-01",
		}
		if err := g.CreateCard(ctx, c); !errors.Is(err, giftcard.ErrCodeExists) {
			t.Errorf("duplicate code: got %v, want ErrCodeExists", err)
		}
	})

	validations := []struct {
		name string
		card *card.Card
	}{
		{"missing currency", &card.Card{InitialAmount: types.Money{Amount: 100}, AppID: "app_test"}},
		{"missing app id", &card.Card{InitialAmount: types.USD(100)}},
	}
	for _, tt := range validations {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CreateCard(ctx, tt.card)
			var verr giftcard.ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}

	amounts := []struct {
		name   string
		amount types.Money
	}{
		{"zero value", types.USD(0)},
		{"negative value", types.USD(-100)},
	}
	for _, tt := range amounts {
		t.Run(tt.name, func(t *testing.T) {
			err := g.CreateCard(ctx, &card.Card{InitialAmount: tt.amount, AppID: "app_test"})
			if !errors.Is(err, giftcard.ErrInvalidAmount) {
				t.Errorf("got %v, want ErrInvalidAmount", err)
			}
		})
	}
}

func TestCardLifecycle(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(5000))

	c, err := g.ActivateCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("ActivateCard: %v", err)
	}
	if c.State != card.StateActive {
		t.Fatalf("state: got %q, want %q", c.State, card.StateActive)
	}
	if c.ActivatedAt == nil {
		t.Error("ActivatedAt not set")
	}
	if c.Version != 1 {
		t.Errorf("version after activate: got %d, want 1", c.Version)
	}

	// Activation emits no ledger entry.
	entries, err := g.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries after activate: got %d, want 0", len(entries))
	}

	c, err = g.RedeemCard(ctx, c.ID, types.USD(1200), "order_1", "coffee beans")
	if err != nil {
		t.Fatalf("RedeemCard: %v", err)
	}
	if !c.Balance.Equal(types.USD(3800)) {
		t.Errorf("balance: got %v, want %v", c.Balance, types.USD(3800))
	}

	c, err = g.RedeemCard(ctx, c.ID, types.USD(3800), "order_2", "")
	if err != nil {
		t.Fatalf("RedeemCard drain: %v", err)
	}
	if c.State != card.StateRedeemed {
		t.Errorf("state after drain: got %q, want %q", c.State, card.StateRedeemed)
	}
	if c.RedeemedAt == nil {
		t.Error("RedeemedAt not set after drain")
	}

	entries, err = g.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries: got %d, want 2", len(entries))
	}
	// Newest first, amounts negated.
	if !entries[0].Amount.Equal(types.USD(-3800)) || !entries[1].Amount.Equal(types.USD(-1200)) {
		t.Errorf("entry amounts: got %v then %v", entries[0].Amount, entries[1].Amount)
	}
}

func TestRedeemRejections(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(1000))

	// Inactive card cannot be redeemed.
	if _, err := g.RedeemCard(ctx, c.ID, types.USD(100), "o1", ""); !errors.Is(err, giftcard.ErrInvalidStateTransition) {
		t.Errorf("inactive redeem: got %v, want ErrInvalidStateTransition", err)
	}

	if _, err := g.ActivateCard(ctx, c.ID); err != nil {
		t.Fatalf("ActivateCard: %v", err)
	}

	tests := []struct {
		name    string
		amount  types.Money
		wantErr error
	}{
		{"zero amount", types.USD(0), giftcard.ErrInvalidAmount},
		{"negative amount", types.USD(-50), giftcard.ErrInvalidAmount},
		{"exceeds balance", types.USD(1001), giftcard.ErrInvalidAmount},
		{"currency mismatch", types.EUR(100), giftcard.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.RedeemCard(ctx, c.ID, tt.amount, "o1", ""); !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Nothing was applied by the rejected attempts.
	got, err := g.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if !got.Balance.Equal(types.USD(1000)) {
		t.Errorf("balance after rejections: got %v, want %v", got.Balance, types.USD(1000))
	}
}

func TestAdjustBalance(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(5000))

	c, err := g.AdjustBalance(ctx, c.ID, types.USD(7500), "goodwill credit")
	if err != nil {
		t.Fatalf("AdjustBalance: %v", err)
	}
	if !c.Balance.Equal(types.USD(7500)) || !c.InitialAmount.Equal(types.USD(7500)) {
		t.Errorf("re-baseline: balance %v, initial %v", c.Balance, c.InitialAmount)
	}

	entries, err := g.ListTransactions(ctx, c.ID, transaction.ListOpts{Kind: transaction.KindAdjustment})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("adjustment entries: got %d, want 1", len(entries))
	}
	if !entries[0].Amount.Equal(types.USD(2500)) {
		t.Errorf("adjustment delta: got %v, want %v", entries[0].Amount, types.USD(2500))
	}
	if entries[0].Notes != "goodwill credit" {
		t.Errorf("adjustment notes: got %q", entries[0].Notes)
	}
}

func TestCancelAndReactivate(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(3000))
	if _, err := g.ActivateCard(ctx, c.ID); err != nil {
		t.Fatalf("ActivateCard: %v", err)
	}
	if _, err := g.RedeemCard(ctx, c.ID, types.USD(1000), "o1", ""); err != nil {
		t.Fatalf("RedeemCard: %v", err)
	}

	c, err := g.CancelCard(ctx, c.ID, "fraud suspected")
	if err != nil {
		t.Fatalf("CancelCard: %v", err)
	}
	if c.State != card.StateCanceled {
		t.Errorf("state: got %q, want %q", c.State, card.StateCanceled)
	}
	if c.CanceledAt == nil {
		t.Error("CanceledAt not set")
	}

	// Canceled cards cannot be redeemed.
	if _, err := g.RedeemCard(ctx, c.ID, types.USD(100), "o2", ""); !errors.Is(err, giftcard.ErrInvalidStateTransition) {
		t.Errorf("canceled redeem: got %v, want ErrInvalidStateTransition", err)
	}

	c, err = g.ReactivateCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("ReactivateCard: %v", err)
	}
	if c.State != card.StateActive {
		t.Errorf("state after reactivate: got %q, want %q", c.State, card.StateActive)
	}
	// Remaining balance survives the round trip.
	if !c.Balance.Equal(types.USD(2000)) {
		t.Errorf("balance after reactivate: got %v, want %v", c.Balance, types.USD(2000))
	}
}

func TestBalanceReconstruction(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(5000))
	if _, err := g.ActivateCard(ctx, c.ID); err != nil {
		t.Fatalf("ActivateCard: %v", err)
	}
	if _, err := g.RedeemCard(ctx, c.ID, types.USD(1200), "o1", ""); err != nil {
		t.Fatalf("RedeemCard: %v", err)
	}
	if _, err := g.AdjustBalance(ctx, c.ID, types.USD(6000), "promo top-up"); err != nil {
		t.Fatalf("AdjustBalance: %v", err)
	}
	c, err := g.RedeemCard(ctx, c.ID, types.USD(6000), "o2", "")
	if err != nil {
		t.Fatalf("RedeemCard: %v", err)
	}

	ledger, err := g.CardLedger(ctx, c.ID)
	if err != nil {
		t.Fatalf("CardLedger: %v", err)
	}

	// Original value plus the signed sum of all entries equals the balance.
	reconstructed := types.USD(5000).Add(ledger.NetChange())
	if !reconstructed.Equal(c.Balance) {
		t.Errorf("reconstructed balance: got %v, want %v", reconstructed, c.Balance)
	}
	if c.State != card.StateRedeemed {
		t.Errorf("final state: got %q, want %q", c.State, card.StateRedeemed)
	}
	if got := ledger.TotalRedeemed(); !got.Equal(types.USD(7200)) {
		t.Errorf("total redeemed: got %v, want %v", got, types.USD(7200))
	}
}

func TestUsagePercentage(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(5000))
	if _, err := g.ActivateCard(ctx, c.ID); err != nil {
		t.Fatalf("ActivateCard: %v", err)
	}
	if _, err := g.RedeemCard(ctx, c.ID, types.USD(1250), "o1", ""); err != nil {
		t.Fatalf("RedeemCard: %v", err)
	}

	pct, err := g.UsagePercentage(ctx, c.ID)
	if err != nil {
		t.Fatalf("UsagePercentage: %v", err)
	}
	if pct != 25 {
		t.Errorf("usage: got %v, want 25", pct)
	}
}

func TestGetCardByCode(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(1000))

	got, err := g.GetCardByCode(ctx, c.Code)
	if err != nil {
		t.Fatalf("GetCardByCode: %v", err)
	}
	if got.ID != c.ID {
		t.Errorf("got card %v, want %v", got.ID, c.ID)
	}

	if _, err := g.GetCardByCode(ctx, "NO-SUCH-CODE"); !giftcard.IsNotFound(err) {
		t.Errorf("missing code: got %v, want not found", err)
	}
}

func TestConcurrentFullRedemption(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	c := issueCard(t, g, types.USD(5000))
	if _, err := g.ActivateCard(ctx, c.ID); err != nil {
		t.Fatalf("ActivateCard: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = g.RedeemCard(ctx, c.ID, types.USD(5000), fmt.Sprintf("order_%d", i), "")
		}(i)
	}
	wg.Wait()

	var successes int
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		// The loser either lost the version race or observed the winner's
		// committed state before mutating.
		if !errors.Is(err, giftcard.ErrConcurrentModification) &&
			!errors.Is(err, giftcard.ErrInvalidAmount) &&
			!errors.Is(err, giftcard.ErrInvalidStateTransition) {
			t.Errorf("unexpected loser error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("successes: got %d, want exactly 1", successes)
	}

	got, err := g.GetCard(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCard: %v", err)
	}
	if !got.Balance.IsZero() {
		t.Errorf("balance: got %v, want zero", got.Balance)
	}
	if got.State != card.StateRedeemed {
		t.Errorf("state: got %q, want %q", got.State, card.StateRedeemed)
	}

	entries, err := g.ListTransactions(ctx, c.ID, transaction.ListOpts{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries: got %d, want 1", len(entries))
	}
}

// recordingPlugin captures lifecycle events for assertions.
type recordingPlugin struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPlugin) Name() string { return "recording" }

func (p *recordingPlugin) add(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPlugin) seen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

func (p *recordingPlugin) OnCardCreated(_ context.Context, _ interface{}) error {
	p.add("created")
	return nil
}

func (p *recordingPlugin) OnCardActivated(_ context.Context, _ interface{}) error {
	p.add("activated")
	return nil
}

func (p *recordingPlugin) OnCardRedeemed(_ context.Context, _, _ interface{}) error {
	p.add("redeemed")
	return nil
}

func (p *recordingPlugin) OnCardCanceled(_ context.Context, _ interface{}, _ string) error {
	p.add("canceled")
	return nil
}

func (p *recordingPlugin) OnCardExpired(_ context.Context, _ interface{}) error {
	p.add("expired")
	return nil
}

func TestPluginEvents(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPlugin{}
	g := newEngine(t, giftcard.WithPlugin(rec))

	c := issueCard(t, g, types.USD(1000))
	if _, err := g.ActivateCard(ctx, c.ID); err != nil {
		t.Fatalf("ActivateCard: %v", err)
	}
	if _, err := g.RedeemCard(ctx, c.ID, types.USD(500), "o1", ""); err != nil {
		t.Fatalf("RedeemCard: %v", err)
	}
	if _, err := g.CancelCard(ctx, c.ID, "test"); err != nil {
		t.Fatalf("CancelCard: %v", err)
	}

	want := []string{"created", "activated", "redeemed", "canceled"}
	got := rec.seen()
	if len(got) != len(want) {
		t.Fatalf("events: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events: got %v, want %v", got, want)
		}
	}
}

// staticCodes is a CodeGenerator plugin returning canned codes.
type staticCodes struct {
	mu    sync.Mutex
	codes []string
}

func (p *staticCodes) Name() string { return "static-codes" }

func (p *staticCodes) GenerateCode(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.codes) == 0 {
		return "", errors.New("static-codes: exhausted")
	}
	code := p.codes[0]
	p.codes = p.codes[1:]
	return code, nil
}

func TestCodeGeneratorPlugin(t *testing.T) {
	ctx := context.Background()
	gen := &staticCodes{codes: []string{"TAKEN-0000", "TAKEN-0000", "FRESH-0001"}}
	g := newEngine(t, giftcard.WithPlugin(gen))

	taken := &card.Card{InitialAmount: types.USD(100), AppID: "app_test", Code: "TAKEN-0000"}
	if err := g.CreateCard(ctx, taken); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	// The generator's colliding codes are skipped until a fresh one comes up.
	c := &card.Card{InitialAmount: types.USD(100), AppID: "app_test"}
	if err := g.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}
	if c.Code != "FRESH-0001" {
		t.Errorf("code: got %q, want FRESH-0001", c.Code)
	}
}

func TestExpirySweep(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPlugin{}
	g := giftcard.New(memory.New(),
		giftcard.WithPlugin(rec),
		giftcard.WithExpirySweep(10*time.Millisecond, 10),
	)

	past := time.Now().UTC().Add(-time.Hour)
	c := &card.Card{
		InitialAmount: types.USD(1000),
		AppID:         "app_test",
		ExpiresAt:     &past,
	}
	if err := g.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	if err := g.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer g.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := g.GetCard(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetCard: %v", err)
		}
		if got.State == card.StateExpired {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("card not expired by sweeper, state %q", got.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, event := range rec.seen() {
		if event == "expired" {
			return
		}
	}
	t.Error("OnCardExpired not emitted")
}

func TestExpiredCardRejectsOperations(t *testing.T) {
	ctx := context.Background()
	g := newEngine(t)

	// The card's stored state is still inactive, but the time check is
	// authoritative once the expiry has passed.
	past := time.Now().UTC().Add(-time.Minute)
	c := &card.Card{
		InitialAmount: types.USD(1000),
		AppID:         "app_test",
		ExpiresAt:     &past,
	}
	if err := g.CreateCard(ctx, c); err != nil {
		t.Fatalf("CreateCard: %v", err)
	}

	if _, err := g.ActivateCard(ctx, c.ID); !errors.Is(err, giftcard.ErrCardExpired) {
		t.Errorf("expired activate: got %v, want ErrCardExpired", err)
	}
	if _, err := g.RedeemCard(ctx, c.ID, types.USD(100), "o1", ""); !errors.Is(err, giftcard.ErrCardExpired) &&
		!errors.Is(err, giftcard.ErrInvalidStateTransition) {
		t.Errorf("expired redeem: got %v, want expiry rejection", err)
	}
}

package transaction

import (
	"testing"
	"time"

	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/types"
)

func entry(kind Kind, amount types.Money, at time.Time) *Transaction {
	return &Transaction{
		ID:        id.NewTransactionID(),
		CardID:    id.NewCardID(),
		Kind:      kind,
		Amount:    amount,
		CreatedAt: at,
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	base := time.Now().UTC()
	oldest := entry(KindAdjustment, types.USD(5000), base)
	middle := entry(KindRedemption, types.USD(-1200), base.Add(time.Second))
	newest := entry(KindRedemption, types.USD(-800), base.Add(2*time.Second))

	// Construct out of order; NewLedger sorts by CreatedAt.
	l := NewLedger([]*Transaction{middle, newest, oldest})

	history := l.History()
	if len(history) != 3 {
		t.Fatalf("history length: got %d, want 3", len(history))
	}
	if history[0] != newest || history[1] != middle || history[2] != oldest {
		t.Errorf("history not newest-first: %v, %v, %v",
			history[0].CreatedAt, history[1].CreatedAt, history[2].CreatedAt)
	}
}

func TestHistoryIsACopy(t *testing.T) {
	base := time.Now().UTC()
	l := NewLedger([]*Transaction{entry(KindRedemption, types.USD(-100), base)})

	history := l.History()
	history[0] = nil

	if got := l.History(); got[0] == nil {
		t.Error("mutating the returned history mutated the ledger")
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	base := time.Now().UTC()
	l := NewLedger(nil)
	l.Append(entry(KindRedemption, types.USD(-100), base))
	l.Append(entry(KindRedemption, types.USD(-200), base.Add(time.Second)))

	history := l.History()
	if !history[0].Amount.Equal(types.USD(-200)) {
		t.Errorf("newest entry: got %v, want %v", history[0].Amount, types.USD(-200))
	}
	if l.Len() != 2 {
		t.Errorf("len: got %d, want 2", l.Len())
	}
}

func TestTotalRedeemed(t *testing.T) {
	base := time.Now().UTC()

	tests := []struct {
		name    string
		entries []*Transaction
		want    types.Money
	}{
		{"empty", nil, types.Money{}},
		{"no redemptions", []*Transaction{
			entry(KindAdjustment, types.USD(1000), base),
			entry(KindCancellation, types.USD(0), base.Add(time.Second)),
		}, types.Money{}},
		{"single redemption", []*Transaction{
			entry(KindRedemption, types.USD(-1200), base),
		}, types.USD(1200)},
		{"mixed kinds", []*Transaction{
			entry(KindRedemption, types.USD(-1200), base),
			entry(KindAdjustment, types.USD(500), base.Add(time.Second)),
			entry(KindRedemption, types.USD(-800), base.Add(2*time.Second)),
		}, types.USD(2000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewLedger(tt.entries).TotalRedeemed()
			if !got.Equal(tt.want) {
				t.Errorf("TotalRedeemed: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNetChange(t *testing.T) {
	base := time.Now().UTC()
	l := NewLedger([]*Transaction{
		entry(KindRedemption, types.USD(-1200), base),
		entry(KindAdjustment, types.USD(1500), base.Add(time.Second)),
		entry(KindRedemption, types.USD(-300), base.Add(2*time.Second)),
	})

	if got := l.NetChange(); !got.Equal(types.USD(0)) {
		t.Errorf("NetChange: got %v, want %v", got, types.USD(0))
	}
}

func TestUsagePercentage(t *testing.T) {
	tests := []struct {
		name    string
		initial types.Money
		current types.Money
		want    float64
	}{
		{"untouched", types.USD(5000), types.USD(5000), 0},
		{"half used", types.USD(5000), types.USD(2500), 50},
		{"fully used", types.USD(5000), types.USD(0), 100},
		{"quarter used", types.USD(10000), types.USD(7500), 25},
		{"zero initial", types.USD(0), types.USD(0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UsagePercentage(tt.initial, tt.current); got != tt.want {
				t.Errorf("UsagePercentage: got %v, want %v", got, tt.want)
			}
		})
	}
}

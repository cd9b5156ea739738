package transaction

import (
	"sort"

	"github.com/xraph/giftcard/types"
)

// Ledger is a read-side aggregate over one card's transaction entries.
// Entries are held oldest-first internally; History returns them
// most-recent-first, which is the order callers display them in.
type Ledger struct {
	entries []*Transaction
}

// NewLedger builds a Ledger from a card's entries in any order.
func NewLedger(entries []*Transaction) *Ledger {
	sorted := make([]*Transaction, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	return &Ledger{entries: sorted}
}

// Append adds an entry to the ledger. Entries must arrive in
// non-decreasing CreatedAt order; Append is the only mutation.
func (l *Ledger) Append(t *Transaction) {
	l.entries = append(l.entries, t)
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// History returns a copy of the entries, most recent first.
func (l *Ledger) History() []*Transaction {
	out := make([]*Transaction, len(l.entries))
	for i, t := range l.entries {
		out[len(l.entries)-1-i] = t
	}

	return out
}

// TotalRedeemed returns the sum of redemption magnitudes (a non-negative
// value). Returns a zero Money when no redemption has occurred.
func (l *Ledger) TotalRedeemed() types.Money {
	var total types.Money
	for _, t := range l.entries {
		if t.Kind != KindRedemption {
			continue
		}
		if total.Currency == "" {
			total = types.Zero(t.Amount.Currency)
		}
		total = total.Add(t.Amount.Abs())
	}

	return total
}

// NetChange returns the sum of all signed entry amounts.
// A card's balance is its creation amount plus NetChange.
func (l *Ledger) NetChange() types.Money {
	var net types.Money
	for _, t := range l.entries {
		if net.Currency == "" {
			net = types.Zero(t.Amount.Currency)
		}
		net = net.Add(t.Amount)
	}

	return net
}

// UsagePercentage reports how much of the initial value has been consumed,
// as a percentage in [0, 100]. A card issued with zero value reports 0.
func UsagePercentage(initial, current types.Money) float64 {
	if initial.Amount == 0 {
		return 0
	}

	used := initial.Amount - current.Amount
	pct := float64(used) / float64(initial.Amount) * 100
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}

	return pct
}

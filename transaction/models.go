package transaction

import (
	"time"

	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/types"
)

// Kind classifies a ledger entry by the card operation that produced it.
type Kind string

const (
	KindActivation   Kind = "activation"
	KindRedemption   Kind = "redemption"
	KindAdjustment   Kind = "adjustment"
	KindCancellation Kind = "cancellation"
)

// Transaction is a single immutable entry in a card's ledger.
// Amount is signed: redemptions carry negative amounts, upward adjustments
// positive ones. Activation and cancellation entries carry zero.
type Transaction struct {
	ID        id.TransactionID `json:"id"`
	CardID    id.CardID        `json:"card_id"`
	Kind      Kind             `json:"kind"`
	Amount    types.Money      `json:"amount"`
	OrderID   string           `json:"order_id,omitempty"`
	Notes     string           `json:"notes,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// IsRedemption reports whether this entry was produced by a redemption.
func (t *Transaction) IsRedemption() bool {
	return t.Kind == KindRedemption
}

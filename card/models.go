package card

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/transaction"
	"github.com/xraph/giftcard/types"
)

// Domain errors returned by card state transitions.
var (
	ErrInvalidAmount          = errors.New("giftcard: invalid amount")
	ErrInvalidStateTransition = errors.New("giftcard: invalid state transition")
	ErrExpired                = errors.New("giftcard: card expired")
)

// State is the lifecycle state of a card.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
	StateRedeemed State = "redeemed"
	StateExpired  State = "expired"
	StateCanceled State = "canceled"
)

// Card is a stored-value instrument. It carries a fixed issue value, a
// declining balance, and an append-only ledger of every balance change.
//
// All transitions go through the methods below; there are no raw setters.
// Each mutating method stages the ledger entries it produced in Pending,
// which the store drains atomically with the balance write on save.
type Card struct {
	types.Entity
	ID             id.CardID   `json:"id"`
	Code           string      `json:"code"`
	InitialAmount  types.Money `json:"initial_amount"`
	Balance        types.Money `json:"balance"`
	State          State       `json:"state"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	ActivatedAt    *time.Time  `json:"activated_at,omitempty"`
	RedeemedAt     *time.Time  `json:"redeemed_at,omitempty"`
	CanceledAt     *time.Time  `json:"canceled_at,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	AppID          string      `json:"app_id"`
	IssuerID       string      `json:"issuer_id,omitempty"`
	AssignedUserID string      `json:"assigned_user_id,omitempty"`

	// Version is the optimistic-lock counter checked by Store.SaveCard.
	Version int64 `json:"version"`

	// Pending holds ledger entries produced since the card was loaded.
	// Drained by the store on save; never persisted as-is.
	Pending []*transaction.Transaction `json:"-"`
}

// IsExpiredAt reports whether the card's expiry has passed at the given
// instant. The wall clock is authoritative: this is true even when State
// has not yet been materialized to expired.
func (c *Card) IsExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Activate transitions an inactive card to active. Emits no ledger entry;
// the card's value was established at creation.
func (c *Card) Activate(now time.Time) error {
	if c.IsExpiredAt(now) {
		return fmt.Errorf("%w: cannot activate past expiry", ErrExpired)
	}
	if c.State != StateInactive {
		return fmt.Errorf("%w: cannot activate card in state %q", ErrInvalidStateTransition, c.State)
	}

	c.State = StateActive
	at := now
	c.ActivatedAt = &at
	c.Touch()

	return nil
}

// Redeem deducts amount from the balance and stages a redemption entry
// with the signed (negative) amount. A redemption that drains the balance
// to zero moves the card to redeemed.
func (c *Card) Redeem(amount types.Money, orderID, notes string, now time.Time) error {
	if c.IsExpiredAt(now) {
		return fmt.Errorf("%w: cannot redeem past expiry", ErrExpired)
	}
	if c.State != StateActive {
		return fmt.Errorf("%w: cannot redeem card in state %q", ErrInvalidStateTransition, c.State)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: redemption amount must be positive, got %s", ErrInvalidAmount, amount)
	}
	if !amount.SameCurrency(c.Balance) {
		return fmt.Errorf("%w: currency %q does not match card currency %q",
			ErrInvalidAmount, amount.Currency, c.Balance.Currency)
	}
	if amount.GreaterThan(c.Balance) {
		return fmt.Errorf("%w: redemption %s exceeds balance %s", ErrInvalidAmount, amount, c.Balance)
	}

	c.Balance = c.Balance.Subtract(amount)
	if c.Balance.IsZero() {
		c.State = StateRedeemed
		at := now
		c.RedeemedAt = &at
	}
	c.Touch()

	c.stage(transaction.KindRedemption, amount.Negate(), orderID, notes, now)

	return nil
}

// Adjust re-baselines the card to a new face value: both InitialAmount and
// Balance become newAmount. Stages an adjustment entry carrying the signed
// delta against the previous balance, which may be zero.
func (c *Card) Adjust(newAmount types.Money, reason string, now time.Time) error {
	if c.State != StateInactive && c.State != StateActive {
		return fmt.Errorf("%w: cannot adjust card in state %q", ErrInvalidStateTransition, c.State)
	}
	if newAmount.IsNegative() {
		return fmt.Errorf("%w: adjusted amount must not be negative, got %s", ErrInvalidAmount, newAmount)
	}
	if !newAmount.SameCurrency(c.Balance) {
		return fmt.Errorf("%w: currency %q does not match card currency %q",
			ErrInvalidAmount, newAmount.Currency, c.Balance.Currency)
	}

	delta := newAmount.Subtract(c.Balance)
	c.InitialAmount = newAmount
	c.Balance = newAmount
	c.Touch()

	c.stage(transaction.KindAdjustment, delta, "", reason, now)

	return nil
}

// Cancel voids the card. Redeemed and already-canceled cards cannot be
// canceled. The reason is appended to Notes and a zero-amount cancellation
// entry is staged.
func (c *Card) Cancel(reason string, now time.Time) error {
	if c.State == StateRedeemed || c.State == StateCanceled {
		return fmt.Errorf("%w: cannot cancel card in state %q", ErrInvalidStateTransition, c.State)
	}

	c.State = StateCanceled
	at := now
	c.CanceledAt = &at
	if reason != "" {
		if c.Notes != "" {
			c.Notes += "\n"
		}
		c.Notes += reason
	}
	c.Touch()

	c.stage(transaction.KindCancellation, types.Zero(c.Balance.Currency), "", reason, now)

	return nil
}

// Reactivate returns a canceled card to active with its remaining balance.
// Stages a zero-amount activation entry marking the reinstatement.
func (c *Card) Reactivate(now time.Time) error {
	if c.State != StateCanceled {
		return fmt.Errorf("%w: cannot reactivate card in state %q", ErrInvalidStateTransition, c.State)
	}
	if c.IsExpiredAt(now) {
		return fmt.Errorf("%w: cannot reactivate past expiry", ErrExpired)
	}

	c.State = StateActive
	c.Touch()

	c.stage(transaction.KindActivation, types.Zero(c.Balance.Currency), "", "", now)

	return nil
}

// RefreshExpiry materializes the expired state when the card's expiry has
// passed. Returns true when the state changed. Redeemed and canceled cards
// keep their terminal state. Emits no ledger entry.
func (c *Card) RefreshExpiry(now time.Time) bool {
	if c.State != StateInactive && c.State != StateActive {
		return false
	}
	if !c.IsExpiredAt(now) {
		return false
	}

	c.State = StateExpired
	c.Touch()

	return true
}

func (c *Card) stage(kind transaction.Kind, amount types.Money, orderID, notes string, now time.Time) {
	c.Pending = append(c.Pending, &transaction.Transaction{
		ID:        id.NewTransactionID(),
		CardID:    c.ID,
		Kind:      kind,
		Amount:    amount,
		OrderID:   orderID,
		Notes:     notes,
		CreatedAt: now,
	})
}

// codeAlphabet excludes ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateCode produces a random card code in the form
// "XXXX-XXXX-XXXX-XXXX". Uniqueness is enforced by the store, not here.
func GenerateCode() (string, error) {
	const groups, groupLen = 4, 4

	buf := make([]byte, groups*groupLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("giftcard: generate code: %w", err)
	}

	var b strings.Builder
	for i, r := range buf {
		if i > 0 && i%groupLen == 0 {
			b.WriteByte('-')
		}
		b.WriteByte(codeAlphabet[int(r)%len(codeAlphabet)])
	}

	return b.String(), nil
}

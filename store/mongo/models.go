package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/transaction"
	"github.com/xraph/giftcard/types"
)

// ==================== Card models ====================

// cardModel is the card document. Ledger entries are embedded so a
// balance write and its entries commit in a single document update.
type cardModel struct {
	grove.BaseModel `grove:"table:giftcard_cards"`

	ID                    string             `grove:"id,pk"                   bson:"_id"`
	Code                  string             `grove:"code"                    bson:"code"`
	InitialAmountCents    int64              `grove:"initial_amount_cents"    bson:"initial_amount_cents"`
	InitialAmountCurrency string             `grove:"initial_amount_currency" bson:"initial_amount_currency"`
	BalanceCents          int64              `grove:"balance_cents"           bson:"balance_cents"`
	BalanceCurrency       string             `grove:"balance_currency"        bson:"balance_currency"`
	State                 string             `grove:"state"                   bson:"state"`
	ExpiresAt             *time.Time         `grove:"expires_at"              bson:"expires_at,omitempty"`
	ActivatedAt           *time.Time         `grove:"activated_at"            bson:"activated_at,omitempty"`
	RedeemedAt            *time.Time         `grove:"redeemed_at"             bson:"redeemed_at,omitempty"`
	CanceledAt            *time.Time         `grove:"canceled_at"             bson:"canceled_at,omitempty"`
	Notes                 string             `grove:"notes"                   bson:"notes"`
	AppID                 string             `grove:"app_id"                  bson:"app_id"`
	IssuerID              string             `grove:"issuer_id"               bson:"issuer_id"`
	AssignedUserID        string             `grove:"assigned_user_id"        bson:"assigned_user_id"`
	Version               int64              `grove:"version"                 bson:"version"`
	Transactions          []transactionModel `grove:"transactions"            bson:"transactions"`
	CreatedAt             time.Time          `grove:"created_at"              bson:"created_at"`
	UpdatedAt             time.Time          `grove:"updated_at"              bson:"updated_at"`
}

type transactionModel struct {
	ID             string    `bson:"id"`
	Kind           string    `bson:"kind"`
	AmountCents    int64     `bson:"amount_cents"`
	AmountCurrency string    `bson:"amount_currency"`
	OrderID        string    `bson:"order_id"`
	Notes          string    `bson:"notes"`
	CreatedAt      time.Time `bson:"created_at"`
}

func toCardModel(c *card.Card) *cardModel {
	return &cardModel{
		ID:                    c.ID.String(),
		Code:                  c.Code,
		InitialAmountCents:    c.InitialAmount.Amount,
		InitialAmountCurrency: c.InitialAmount.Currency,
		BalanceCents:          c.Balance.Amount,
		BalanceCurrency:       c.Balance.Currency,
		State:                 string(c.State),
		ExpiresAt:             c.ExpiresAt,
		ActivatedAt:           c.ActivatedAt,
		RedeemedAt:            c.RedeemedAt,
		CanceledAt:            c.CanceledAt,
		Notes:                 c.Notes,
		AppID:                 c.AppID,
		IssuerID:              c.IssuerID,
		AssignedUserID:        c.AssignedUserID,
		Version:               c.Version,
		Transactions:          []transactionModel{},
		CreatedAt:             c.CreatedAt,
		UpdatedAt:             c.UpdatedAt,
	}
}

func fromCardModel(m *cardModel) (*card.Card, error) {
	cardID, err := id.ParseCardID(m.ID)
	if err != nil {
		return nil, err
	}

	return &card.Card{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             cardID,
		Code:           m.Code,
		InitialAmount:  types.Money{Amount: m.InitialAmountCents, Currency: m.InitialAmountCurrency},
		Balance:        types.Money{Amount: m.BalanceCents, Currency: m.BalanceCurrency},
		State:          card.State(m.State),
		ExpiresAt:      m.ExpiresAt,
		ActivatedAt:    m.ActivatedAt,
		RedeemedAt:     m.RedeemedAt,
		CanceledAt:     m.CanceledAt,
		Notes:          m.Notes,
		AppID:          m.AppID,
		IssuerID:       m.IssuerID,
		AssignedUserID: m.AssignedUserID,
		Version:        m.Version,
	}, nil
}

func toTransactionModel(e *transaction.Transaction) transactionModel {
	return transactionModel{
		ID:             e.ID.String(),
		Kind:           string(e.Kind),
		AmountCents:    e.Amount.Amount,
		AmountCurrency: e.Amount.Currency,
		OrderID:        e.OrderID,
		Notes:          e.Notes,
		CreatedAt:      e.CreatedAt,
	}
}

func fromTransactionModel(cardID id.CardID, m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &transaction.Transaction{
		ID:        txnID,
		CardID:    cardID,
		Kind:      transaction.Kind(m.Kind),
		Amount:    types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		OrderID:   m.OrderID,
		Notes:     m.Notes,
		CreatedAt: m.CreatedAt,
	}, nil
}

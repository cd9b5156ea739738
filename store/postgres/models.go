package postgres

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/giftcard/card"
	"github.com/xraph/giftcard/id"
	"github.com/xraph/giftcard/transaction"
	"github.com/xraph/giftcard/types"
)

// ==================== Card models ====================

type cardModel struct {
	grove.BaseModel `grove:"table:giftcard_cards"`

	ID                    string     `grove:"id,pk"`
	Code                  string     `grove:"code"`
	InitialAmountCents    int64      `grove:"initial_amount_cents"`
	InitialAmountCurrency string     `grove:"initial_amount_currency"`
	BalanceCents          int64      `grove:"balance_cents"`
	BalanceCurrency       string     `grove:"balance_currency"`
	State                 string     `grove:"state"`
	ExpiresAt             *time.Time `grove:"expires_at"`
	ActivatedAt           *time.Time `grove:"activated_at"`
	RedeemedAt            *time.Time `grove:"redeemed_at"`
	CanceledAt            *time.Time `grove:"canceled_at"`
	Notes                 string     `grove:"notes"`
	AppID                 string     `grove:"app_id"`
	IssuerID              string     `grove:"issuer_id"`
	AssignedUserID        string     `grove:"assigned_user_id"`
	Version               int64      `grove:"version"`
	CreatedAt             time.Time  `grove:"created_at"`
	UpdatedAt             time.Time  `grove:"updated_at"`
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

// ==================== Transaction models ====================

type transactionModel struct {
	grove.BaseModel `grove:"table:giftcard_transactions"`

	ID             string    `grove:"id,pk"`
	CardID         string    `grove:"card_id"`
	Kind           string    `grove:"kind"`
	AmountCents    int64     `grove:"amount_cents"`
	AmountCurrency string    `grove:"amount_currency"`
	OrderID        string    `grove:"order_id"`
	Notes          string    `grove:"notes"`
	CreatedAt      time.Time `grove:"created_at"`
}

func fromTransactionModel(m *transactionModel) (*transaction.Transaction, error) {
	txnID, err := id.ParseTransactionID(m.ID)
	if err != nil {
		return nil, err
	}
	cardID, err := id.ParseCardID(m.CardID)
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

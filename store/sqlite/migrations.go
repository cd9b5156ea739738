package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the Giftcard store (SQLite).
var Migrations = migrate.NewGroup("giftcard")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_giftcard_cards",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS giftcard_cards (
    id                      TEXT PRIMARY KEY,
    code                    TEXT NOT NULL,
    initial_amount_cents    INTEGER NOT NULL DEFAULT 0,
    initial_amount_currency TEXT NOT NULL DEFAULT '',
    balance_cents           INTEGER NOT NULL DEFAULT 0,
    balance_currency        TEXT NOT NULL DEFAULT '',
    state                   TEXT NOT NULL DEFAULT 'inactive',
    expires_at              TEXT,
    activated_at            TEXT,
    redeemed_at             TEXT,
    canceled_at             TEXT,
    notes                   TEXT NOT NULL DEFAULT '',
    app_id                  TEXT NOT NULL DEFAULT '',
    issuer_id               TEXT NOT NULL DEFAULT '',
    assigned_user_id        TEXT NOT NULL DEFAULT '',
    version                 INTEGER NOT NULL DEFAULT 0,
    created_at              TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at              TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_giftcard_cards_code ON giftcard_cards (code);
CREATE INDEX IF NOT EXISTS idx_giftcard_cards_app ON giftcard_cards (app_id, state);
CREATE INDEX IF NOT EXISTS idx_giftcard_cards_expiry ON giftcard_cards (state, expires_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS giftcard_cards`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_giftcard_transactions",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS giftcard_transactions (
    id              TEXT PRIMARY KEY,
    card_id         TEXT NOT NULL,
    kind            TEXT NOT NULL,
    amount_cents    INTEGER NOT NULL DEFAULT 0,
    amount_currency TEXT NOT NULL DEFAULT '',
    order_id        TEXT NOT NULL DEFAULT '',
    notes           TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_giftcard_transactions_card ON giftcard_transactions (card_id, created_at);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS giftcard_transactions`)
				return err
			},
		},
	)
}

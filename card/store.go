package card

import (
	"context"
	"time"

	"github.com/xraph/giftcard/id"
)

type Store interface {
	Create(ctx context.Context, c *Card) error
	Get(ctx context.Context, cardID id.CardID) (*Card, error)
	GetByCode(ctx context.Context, code string) (*Card, error)
	Save(ctx context.Context, c *Card) error
	List(ctx context.Context, appID string, opts ListOpts) ([]*Card, error)
	ListExpired(ctx context.Context, asOf time.Time, limit int) ([]*Card, error)
}

type ListOpts struct {
	State  State // filter to one state; empty = all
	Limit  int
	Offset int
}

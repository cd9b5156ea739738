package transaction

import (
	"context"

	"github.com/xraph/giftcard/id"
)

type Store interface {
	List(ctx context.Context, cardID id.CardID, opts ListOpts) ([]*Transaction, error)
}

type ListOpts struct {
	Kind   Kind // filter to one kind; empty = all
	Limit  int
	Offset int
}

package giftcard

import "github.com/xraph/giftcard/id"

// ID is the primary identifier type for all Giftcard entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/plugin"
	"github.com/xraph/giftcard/store"
)

// Option configures the Giftcard Forge extension.
type Option func(*Extension)

// WithStore sets the store for the giftcard engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the grove database to back the store. The extension
// auto-constructs the matching store backend (postgres/sqlite/mongo)
// based on the grove driver type. Takes precedence over WithStore.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithGiftcardOption passes a giftcard.Option through to the underlying engine.
func WithGiftcardOption(opt giftcard.Option) Option {
	return func(e *Extension) {
		e.giftcardOpts = append(e.giftcardOpts, opt)
	}
}

// WithPlugin registers a giftcard plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.giftcardOpts = append(e.giftcardOpts, giftcard.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration and auto-start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithExpirySweepInterval sets how frequently the expiry sweeper runs.
func WithExpirySweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ExpirySweepInterval = d }
}

// WithExpirySweepBatch sets the maximum number of cards expired per sweep.
func WithExpirySweepBatch(n int) Option {
	return func(e *Extension) { e.config.ExpirySweepBatch = n }
}

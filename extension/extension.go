// Package extension provides the Forge extension adapter for Giftcard.
//
// It implements the forge.Extension interface to integrate Giftcard
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.giftcard" or
// "giftcard" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/vessel"

	"github.com/xraph/giftcard"
	"github.com/xraph/giftcard/store"
	"github.com/xraph/giftcard/store/memory"
	mongostore "github.com/xraph/giftcard/store/mongo"
	"github.com/xraph/giftcard/store/postgres"
	"github.com/xraph/giftcard/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "giftcard"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Stored-value gift card ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Giftcard as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config       Config
	engine       *giftcard.Giftcard
	store        store.Store
	groveDB      *grove.DB
	giftcardOpts []giftcard.Option
}

// New creates a new Giftcard Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Giftcard instance.
// This is nil until Register is called.
func (e *Extension) Engine() *giftcard.Giftcard { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the giftcard engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// A grove database takes precedence over an explicit store; fall back
	// to the memory store when neither was provided.
	if e.groveDB != nil {
		s, err := storeForGroveDB(e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}
	if e.store == nil {
		e.store = memory.New()
	}

	opts := e.buildGiftcardOpts()

	eng := giftcard.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*giftcard.Giftcard, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("giftcard: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil && !e.config.DisableMigrate {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("giftcard: store not initialized")
	}
	return e.store.Ping(ctx)
}

// storeForGroveDB constructs the store backend matching the grove driver.
func storeForGroveDB(db *grove.DB) (store.Store, error) {
	if pg := pgdriver.Unwrap(db); pg != nil {
		return postgres.New(db), nil
	}
	if sdb := sqlitedriver.Unwrap(db); sdb != nil {
		return sqlite.New(db), nil
	}
	if mdb := mongodriver.Unwrap(db); mdb != nil {
		return mongostore.New(db), nil
	}
	return nil, errors.New("giftcard: unsupported grove driver")
}

// buildGiftcardOpts constructs giftcard.Option values from the resolved config.
func (e *Extension) buildGiftcardOpts() []giftcard.Option {
	opts := make([]giftcard.Option, 0, len(e.giftcardOpts)+1)

	opts = append(opts, giftcard.WithExpirySweep(e.config.ExpirySweepInterval, e.config.ExpirySweepBatch))

	// Append any pass-through giftcard options.
	opts = append(opts, e.giftcardOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("giftcard: configuration is required but not found in config files; " +
				"ensure 'extensions.giftcard' or 'giftcard' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("giftcard: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("expiry_sweep_interval", e.config.ExpirySweepInterval),
		forge.F("expiry_sweep_batch", e.config.ExpirySweepBatch),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.giftcard" first (namespaced pattern).
	if cm.IsSet("extensions.giftcard") {
		if err := cm.Bind("extensions.giftcard", &cfg); err == nil {
			e.Logger().Debug("giftcard: loaded config from file",
				forge.F("key", "extensions.giftcard"),
			)
			return cfg, true
		}
		e.Logger().Warn("giftcard: failed to bind extensions.giftcard config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "giftcard" key.
	if cm.IsSet("giftcard") {
		if err := cm.Bind("giftcard", &cfg); err == nil {
			e.Logger().Debug("giftcard: loaded config from file",
				forge.F("key", "giftcard"),
			)
			return cfg, true
		}
		e.Logger().Warn("giftcard: failed to bind giftcard config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ExpirySweepInterval == 0 {
		cfg.ExpirySweepInterval = defaults.ExpirySweepInterval
	}
	if cfg.ExpirySweepBatch == 0 {
		cfg.ExpirySweepBatch = defaults.ExpirySweepBatch
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.ExpirySweepInterval == 0 && programmaticConfig.ExpirySweepInterval != 0 {
		yamlConfig.ExpirySweepInterval = programmaticConfig.ExpirySweepInterval
	}
	if yamlConfig.ExpirySweepBatch == 0 && programmaticConfig.ExpirySweepBatch != 0 {
		yamlConfig.ExpirySweepBatch = programmaticConfig.ExpirySweepBatch
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}

package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit            []OnInit
	onShutdown        []OnShutdown
	onCardCreated     []OnCardCreated
	onCardActivated   []OnCardActivated
	onCardRedeemed    []OnCardRedeemed
	onCardAdjusted    []OnCardAdjusted
	onCardCanceled    []OnCardCanceled
	onCardReactivated []OnCardReactivated
	onCardExpired     []OnCardExpired
	onWriteConflict   []OnWriteConflict
	codeGenerators    []CodeGenerator
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCardCreated); ok {
		r.onCardCreated = append(r.onCardCreated, v)
	}
	if v, ok := p.(OnCardActivated); ok {
		r.onCardActivated = append(r.onCardActivated, v)
	}
	if v, ok := p.(OnCardRedeemed); ok {
		r.onCardRedeemed = append(r.onCardRedeemed, v)
	}
	if v, ok := p.(OnCardAdjusted); ok {
		r.onCardAdjusted = append(r.onCardAdjusted, v)
	}
	if v, ok := p.(OnCardCanceled); ok {
		r.onCardCanceled = append(r.onCardCanceled, v)
	}
	if v, ok := p.(OnCardReactivated); ok {
		r.onCardReactivated = append(r.onCardReactivated, v)
	}
	if v, ok := p.(OnCardExpired); ok {
		r.onCardExpired = append(r.onCardExpired, v)
	}
	if v, ok := p.(OnWriteConflict); ok {
		r.onWriteConflict = append(r.onWriteConflict, v)
	}
	if v, ok := p.(CodeGenerator); ok {
		r.codeGenerators = append(r.codeGenerators, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	// Check each interface
	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	// List all interfaces to check
	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCardCreated)(nil)).Elem(), "OnCardCreated")
	checkInterface(reflect.TypeOf((*OnCardActivated)(nil)).Elem(), "OnCardActivated")
	checkInterface(reflect.TypeOf((*OnCardRedeemed)(nil)).Elem(), "OnCardRedeemed")
	checkInterface(reflect.TypeOf((*OnCardAdjusted)(nil)).Elem(), "OnCardAdjusted")
	checkInterface(reflect.TypeOf((*OnCardCanceled)(nil)).Elem(), "OnCardCanceled")
	checkInterface(reflect.TypeOf((*OnCardReactivated)(nil)).Elem(), "OnCardReactivated")
	checkInterface(reflect.TypeOf((*OnCardExpired)(nil)).Elem(), "OnCardExpired")
	checkInterface(reflect.TypeOf((*OnWriteConflict)(nil)).Elem(), "OnWriteConflict")
	checkInterface(reflect.TypeOf((*CodeGenerator)(nil)).Elem(), "CodeGenerator")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardCreated emits a card created event.
func (r *Registry) EmitCardCreated(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCardCreated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardCreated(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCardCreated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardActivated emits a card activated event.
func (r *Registry) EmitCardActivated(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCardActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardActivated(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCardActivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardRedeemed emits a card redeemed event with the ledger entry the
// redemption produced.
func (r *Registry) EmitCardRedeemed(ctx context.Context, c interface{}, entry interface{}) {
	r.mu.RLock()
	plugins := r.onCardRedeemed
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardRedeemed(ctx, c, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCardRedeemed failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardAdjusted emits a balance adjusted event.
func (r *Registry) EmitCardAdjusted(ctx context.Context, c interface{}, entry interface{}) {
	r.mu.RLock()
	plugins := r.onCardAdjusted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardAdjusted(ctx, c, entry)
		}); err != nil {
			r.logger.Warn("plugin OnCardAdjusted failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardCanceled emits a card canceled event.
func (r *Registry) EmitCardCanceled(ctx context.Context, c interface{}, reason string) {
	r.mu.RLock()
	plugins := r.onCardCanceled
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardCanceled(ctx, c, reason)
		}); err != nil {
			r.logger.Warn("plugin OnCardCanceled failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardReactivated emits a card reactivated event.
func (r *Registry) EmitCardReactivated(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCardReactivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardReactivated(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCardReactivated failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitCardExpired emits a card expired event.
func (r *Registry) EmitCardExpired(ctx context.Context, c interface{}) {
	r.mu.RLock()
	plugins := r.onCardExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnCardExpired(ctx, c)
		}); err != nil {
			r.logger.Warn("plugin OnCardExpired failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitWriteConflict emits an optimistic concurrency conflict event.
func (r *Registry) EmitWriteConflict(ctx context.Context, cardID string, operation string) {
	r.mu.RLock()
	plugins := r.onWriteConflict
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnWriteConflict(ctx, cardID, operation)
		}); err != nil {
			r.logger.Warn("plugin OnWriteConflict failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// GetCodeGenerator returns the first registered code generator, or nil.
func (r *Registry) GetCodeGenerator() CodeGenerator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.codeGenerators) == 0 {
		return nil
	}
	return r.codeGenerators[0]
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the card pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

package handler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yakimka/feed-watchdog/errors"
)

// Factory builds a ready-to-call handler. It receives the instance name,
// the static kwargs from the instance config, and the validated
// per-invocation options with schema defaults applied.
type Factory func(instance string, kwargs, options map[string]any) (any, error)

// Registration holds the factory and metadata for one handler
// implementation
type Registration struct {
	Kind        Kind
	Name        string
	Description string
	Schema      Schema
	Factory     Factory
}

// entry is one resolvable handler: a registration bound to an instance
// name and its static kwargs. A registration without instance config
// produces a single entry under its own name with empty kwargs.
type entry struct {
	registration Registration
	instance     string
	kwargs       map[string]any
}

// Registry resolves handlers by (kind, name). It is built explicitly at
// startup: each handler package exposes a Register function that the
// caller invokes with whatever dependencies its handlers need.
type Registry struct {
	config InstanceConfig

	mu      sync.RWMutex
	entries map[Kind]map[string]entry
}

// NewRegistry creates a registry. The instance config may be nil, in
// which case every registration yields exactly one entry under its
// registered name.
func NewRegistry(config InstanceConfig) *Registry {
	return &Registry{
		config:  config,
		entries: make(map[Kind]map[string]entry),
	}
}

// Register adds a handler implementation. If the instance config has
// entries for this (kind, name), one registry entry is created per
// configured instance, each bound to its own kwargs; several Telegram
// bots with different tokens share one implementation this way.
func (r *Registry) Register(registration Registration) error {
	if registration.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "handler name validation")
	}
	if registration.Factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "factory validation")
	}
	if registration.Kind == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "handler kind validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	byName := r.entries[registration.Kind]
	if byName == nil {
		byName = make(map[string]entry)
		r.entries[registration.Kind] = byName
	}

	add := func(instance string, kwargs map[string]any) error {
		if _, exists := byName[instance]; exists {
			msg := fmt.Errorf("handler %q/%q is already registered", registration.Kind, instance)
			return errors.WrapInvalid(msg, "Registry", "Register", "duplicate handler check")
		}
		byName[instance] = entry{registration: registration, instance: instance, kwargs: kwargs}
		return nil
	}

	instances := r.config.instancesFor(registration.Kind, registration.Name)
	if len(instances) == 0 {
		return add(registration.Name, nil)
	}
	for instance, spec := range instances {
		if err := add(instance, spec.Kwargs); err != nil {
			return err
		}
	}
	return nil
}

// Get resolves a handler by kind and name, validates options against the
// handler's schema, and calls the factory. An unknown name is
// ErrHandlerNotFound: a misconfigured stream must fail loudly, not no-op.
func (r *Registry) Get(kind Kind, name string, options map[string]any) (any, error) {
	r.mu.RLock()
	e, exists := r.entries[kind][name]
	r.mu.RUnlock()

	if !exists {
		msg := fmt.Errorf("%w: %s/%s", errors.ErrHandlerNotFound, kind, name)
		return nil, errors.WrapInvalid(msg, "Registry", "Get", "handler lookup")
	}

	effective, validationErrs := e.registration.Schema.ValidateAndApply(options)
	if len(validationErrs) > 0 {
		msg := fmt.Errorf("%w for %s/%s: %s", errors.ErrInvalidOptions, kind, name, joinValidationErrors(validationErrs))
		return nil, errors.WrapInvalid(msg, "Registry", "Get", "options validation")
	}

	h, err := e.registration.Factory(e.instance, e.kwargs, effective)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Get", "factory execution")
	}
	return h, nil
}

// GetFetcher resolves a fetcher handler
func (r *Registry) GetFetcher(name string, options map[string]any) (Fetcher, error) {
	h, err := r.Get(KindFetcher, name, options)
	if err != nil {
		return nil, err
	}
	fetcher, ok := h.(Fetcher)
	if !ok {
		return nil, wrongKind(KindFetcher, name)
	}
	return fetcher, nil
}

// GetParser resolves a parser handler
func (r *Registry) GetParser(name string, options map[string]any) (Parser, error) {
	h, err := r.Get(KindParser, name, options)
	if err != nil {
		return nil, err
	}
	parser, ok := h.(Parser)
	if !ok {
		return nil, wrongKind(KindParser, name)
	}
	return parser, nil
}

// GetModifier resolves a modifier handler
func (r *Registry) GetModifier(name string, options map[string]any) (Modifier, error) {
	h, err := r.Get(KindModifier, name, options)
	if err != nil {
		return nil, err
	}
	modifier, ok := h.(Modifier)
	if !ok {
		return nil, wrongKind(KindModifier, name)
	}
	return modifier, nil
}

// GetReceiver resolves a receiver handler
func (r *Registry) GetReceiver(name string, options map[string]any) (Receiver, error) {
	h, err := r.Get(KindReceiver, name, options)
	if err != nil {
		return nil, err
	}
	receiver, ok := h.(Receiver)
	if !ok {
		return nil, wrongKind(KindReceiver, name)
	}
	return receiver, nil
}

// Names lists the resolvable handler names of a kind, sorted
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries[kind]))
	for name := range r.entries[kind] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaFor returns the options schema of a registered handler
func (r *Registry) SchemaFor(kind Kind, name string) (Schema, error) {
	r.mu.RLock()
	e, exists := r.entries[kind][name]
	r.mu.RUnlock()

	if !exists {
		msg := fmt.Errorf("%w: %s/%s", errors.ErrHandlerNotFound, kind, name)
		return Schema{}, errors.WrapInvalid(msg, "Registry", "SchemaFor", "handler lookup")
	}
	return e.registration.Schema, nil
}

func wrongKind(kind Kind, name string) error {
	msg := fmt.Errorf("handler %s/%s does not implement the %s contract", kind, name, kind)
	return errors.WrapInvalid(msg, "Registry", "Get", "handler contract check")
}

func joinValidationErrors(errs []ValidationError) string {
	out := ""
	for i, e := range errs {
		if i > 0 {
			out += "; "
		}
		out += e.Message
	}
	return out
}

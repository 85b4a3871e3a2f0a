package ioc

import (
	"sync"

	"go.uber.org/dig"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Builder collects registrations for a Container, or for a Scope when it is
// handed to a configuration callback.
//
//	b := ioc.NewBuilder()
//	b.Register(NewRepository)
//	b.Register(func(repo *Repository, logger *zap.Logger) *Service { ... })
//	container, err := b.Build()
type Builder struct {
	registrations []*registration
	err           error
	built         bool
	logger        *zap.Logger
}

func NewBuilder() *Builder {
	return &Builder{}
}

// WithLogger sets the logger used by the built container and its scopes.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// Register adds a dig style constructor, func(deps...) T or
// func(deps...) (T, error). Registering several constructors for the same T is
// allowed: single resolution picks the last one, ResolveAll returns them all.
func (b *Builder) Register(constructor any) *Builder {
	reg, err := newRegistration(constructor)
	if err != nil {
		b.err = multierr.Append(b.err, err)
		return b
	}
	b.registrations = append(b.registrations, reg)
	return b
}

// RegisterInstance registers an already built value under its dynamic type.
func (b *Builder) RegisterInstance(value any) *Builder {
	ctor, err := instanceConstructor(value)
	if err != nil {
		b.err = multierr.Append(b.err, err)
		return b
	}
	return b.Register(ctor)
}

// Err returns every registration error collected so far.
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) Build() (*Container, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	if b.err != nil {
		return nil, b.err
	}
	b.built = true

	logger := b.logger
	if logger == nil {
		logger = zap.L()
	}

	c := &Container{}
	c.lifetime = newLifetime(RootTag, dig.New(), nil, &sync.Mutex{}, logger)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.provide(b.registrations); err != nil {
		return nil, err
	}
	logger.Debug("container built", zap.Int("registrations", len(b.registrations)))
	return c, nil
}

package autodi

import (
	"context"
	"reflect"

	"github.com/techquest-tech/gin-resolver/pkg/core"
	"github.com/techquest-tech/gin-resolver/pkg/ioc"
	"github.com/techquest-tech/gin-resolver/pkg/mvc"
	"go.uber.org/zap"
)

// ScopedResolver is what Current looks for. *Resolver implements it, and so
// does any type embedding *Resolver.
type ScopedResolver interface {
	mvc.DependencyResolver
	ApplicationContainer() *ioc.Container
	RequestLifetimeScope(ctx context.Context) (*ioc.Scope, error)
}

// Resolver answers mvc.DependencyResolver calls from the lifetime scope of the
// current request.
type Resolver struct {
	container           *ioc.Container
	provider            LifetimeScopeProvider
	configurationAction func(*ioc.Builder)
	logResolutions      bool
	logger              *zap.Logger
}

var _ ScopedResolver = (*Resolver)(nil)

type options struct {
	provider            LifetimeScopeProvider
	configurationAction func(*ioc.Builder)
	logger              *zap.Logger
	providerSet         bool
	actionSet           bool
}

type Option func(*options)

func WithLifetimeScopeProvider(lifetimeScopeProvider LifetimeScopeProvider) Option {
	return func(o *options) {
		o.provider = lifetimeScopeProvider
		o.providerSet = true
	}
}

// WithConfiguration registers extra services into every request scope, using
// the default request lifetime scope provider.
func WithConfiguration(configurationAction func(*ioc.Builder)) Option {
	return func(o *options) {
		o.configurationAction = configurationAction
		o.actionSet = true
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New picks one scoping strategy: the default request provider, a custom
// provider, or a configuration action on the default provider. Setting both
// a provider and an action fails with ErrConflictingScope.
func New(container *ioc.Container, opts ...Option) (*Resolver, error) {
	if container == nil {
		return nil, argumentNil("container")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.providerSet && o.provider == nil {
		return nil, argumentNil("lifetimeScopeProvider")
	}
	if o.actionSet && o.configurationAction == nil {
		return nil, argumentNil("configurationAction")
	}
	if o.providerSet && o.actionSet {
		return nil, ErrConflictingScope
	}
	return newResolver(container, o.provider, o.configurationAction, o.logger)
}

// NewResolver uses a RequestLifetimeScopeProvider, so GetService and
// GetServices fail with ErrNoUnitOfWork when ctx does not come from
// mvc.Begin or the gin middleware.
func NewResolver(container *ioc.Container) (*Resolver, error) {
	if container == nil {
		return nil, argumentNil("container")
	}
	return newResolver(container, nil, nil, nil)
}

func NewResolverWithConfiguration(container *ioc.Container, configurationAction func(*ioc.Builder)) (*Resolver, error) {
	if container == nil {
		return nil, argumentNil("container")
	}
	if configurationAction == nil {
		return nil, argumentNil("configurationAction")
	}
	return newResolver(container, nil, configurationAction, nil)
}

func NewResolverWithProvider(container *ioc.Container, lifetimeScopeProvider LifetimeScopeProvider) (*Resolver, error) {
	if container == nil {
		return nil, argumentNil("container")
	}
	if lifetimeScopeProvider == nil {
		return nil, argumentNil("lifetimeScopeProvider")
	}
	return newResolver(container, lifetimeScopeProvider, nil, nil)
}

func NewResolverWithProviderAndConfiguration(container *ioc.Container, lifetimeScopeProvider LifetimeScopeProvider, configurationAction func(*ioc.Builder)) (*Resolver, error) {
	if container == nil {
		return nil, argumentNil("container")
	}
	if lifetimeScopeProvider == nil {
		return nil, argumentNil("lifetimeScopeProvider")
	}
	if configurationAction == nil {
		return nil, argumentNil("configurationAction")
	}
	return newResolver(container, lifetimeScopeProvider, configurationAction, nil)
}

func newResolver(container *ioc.Container, provider LifetimeScopeProvider, configurationAction func(*ioc.Builder), logger *zap.Logger) (*Resolver, error) {
	if logger == nil {
		logger = zap.L()
	}
	if provider == nil {
		p, err := NewRequestLifetimeScopeProvider(container, WithProviderLogger(logger))
		if err != nil {
			return nil, err
		}
		provider = p
	}
	return &Resolver{
		container:           container,
		provider:            provider,
		configurationAction: configurationAction,
		logResolutions:      core.LoadResolverSettings().LogResolutions,
		logger:              logger,
	}, nil
}

// Current returns the process wide resolver if it is a ScopedResolver, looking
// through decorators that expose Unwrap() mvc.DependencyResolver. Otherwise nil.
func Current() ScopedResolver {
	r := mvc.Current()
	for r != nil {
		if scoped, ok := r.(ScopedResolver); ok {
			return scoped
		}
		wrapper, ok := r.(interface{ Unwrap() mvc.DependencyResolver })
		if !ok {
			return nil
		}
		r = wrapper.Unwrap()
	}
	return nil
}

func (r *Resolver) ApplicationContainer() *ioc.Container {
	return r.container
}

func (r *Resolver) LifetimeScopeProvider() LifetimeScopeProvider {
	return r.provider
}

// RequestLifetimeScope is created on first use within the unit of work of ctx.
func (r *Resolver) RequestLifetimeScope(ctx context.Context) (*ioc.Scope, error) {
	return r.provider.GetLifetimeScope(ctx, r.configurationAction)
}

// GetService returns nil, nil when serviceType is not registered. An error
// means the request scope could not be obtained (ErrNoUnitOfWork with the
// default provider) or a constructor failed.
func (r *Resolver) GetService(ctx context.Context, serviceType reflect.Type) (any, error) {
	if serviceType == nil {
		return nil, argumentNil("serviceType")
	}
	scope, err := r.RequestLifetimeScope(ctx)
	if err != nil {
		return nil, err
	}
	service, found, err := scope.TryResolve(serviceType)
	if r.logResolutions {
		r.logger.Debug("resolve service", zap.Stringer("type", serviceType), zap.String("scope", scope.Tag()), zap.Bool("found", found), zap.Error(err))
	}
	return service, err
}

// GetServices returns an empty, non-nil slice when serviceType is not registered.
func (r *Resolver) GetServices(ctx context.Context, serviceType reflect.Type) ([]any, error) {
	if serviceType == nil {
		return nil, argumentNil("serviceType")
	}
	scope, err := r.RequestLifetimeScope(ctx)
	if err != nil {
		return nil, err
	}
	services, err := scope.ResolveAll(serviceType)
	if r.logResolutions {
		r.logger.Debug("resolve services", zap.Stringer("type", serviceType), zap.String("scope", scope.Tag()), zap.Int("count", len(services)), zap.Error(err))
	}
	return services, err
}

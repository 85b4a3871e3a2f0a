package autodi

import (
	"context"
	"fmt"
	"sync"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/techquest-tech/gin-resolver/pkg/core"
	"github.com/techquest-tech/gin-resolver/pkg/ioc"
	"github.com/techquest-tech/gin-resolver/pkg/mvc"
	"go.uber.org/zap"
)

// LifetimeScopeProvider hands out the scope of the current unit of work.
type LifetimeScopeProvider interface {
	ApplicationContainer() *ioc.Container
	// GetLifetimeScope returns the scope for ctx, creating it on first use.
	// configurationAction may be nil and only applies when the scope is created.
	GetLifetimeScope(ctx context.Context, configurationAction func(*ioc.Builder)) (*ioc.Scope, error)
	EndLifetimeScope(ctx context.Context) error
}

// RequestLifetimeScopeProvider keeps one scope per mvc.UnitOfWork. The scope
// is closed when the unit of work ends.
type RequestLifetimeScopeProvider struct {
	container *ioc.Container
	tag       string
	bus       EventBus.Bus
	logger    *zap.Logger
}

type requestScope struct {
	scope *ioc.Scope
	once  sync.Once
	err   error
}

var _ LifetimeScopeProvider = (*RequestLifetimeScopeProvider)(nil)

type ProviderOption func(*RequestLifetimeScopeProvider)

// WithScopeTag overrides resolver.scopeTag from config.
func WithScopeTag(tag string) ProviderOption {
	return func(p *RequestLifetimeScopeProvider) {
		p.tag = tag
	}
}

func WithEventBus(bus EventBus.Bus) ProviderOption {
	return func(p *RequestLifetimeScopeProvider) {
		p.bus = bus
	}
}

func WithProviderLogger(logger *zap.Logger) ProviderOption {
	return func(p *RequestLifetimeScopeProvider) {
		p.logger = logger
	}
}

func NewRequestLifetimeScopeProvider(container *ioc.Container, opts ...ProviderOption) (*RequestLifetimeScopeProvider, error) {
	if container == nil {
		return nil, argumentNil("container")
	}
	p := &RequestLifetimeScopeProvider{
		container: container,
		tag:       core.LoadResolverSettings().ScopeTag,
		bus:       core.Bus,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *RequestLifetimeScopeProvider) ApplicationContainer() *ioc.Container {
	return p.container
}

func (p *RequestLifetimeScopeProvider) GetLifetimeScope(ctx context.Context, configurationAction func(*ioc.Builder)) (*ioc.Scope, error) {
	uow := mvc.FromContext(ctx)
	if uow == nil {
		return nil, ErrNoUnitOfWork
	}

	var created *requestScope
	item, err := uow.Load(p, func() (any, error) {
		tag := fmt.Sprintf("%s-%s", p.tag, uuid.NewString())
		scope, err := p.container.BeginScope(tag, configurationAction)
		if err != nil {
			return nil, err
		}
		created = &requestScope{scope: scope}
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	if created != nil {
		uow.OnEnd(func() error {
			return p.end(uow, created)
		})
		p.logger.Debug("request scope created.", zap.String("unitOfWork", uow.ID), zap.String("scope", created.scope.Tag()))
		p.publish(core.EventScopeBegin, core.ScopeEvent{UnitOfWork: uow.ID, Scope: created.scope.Tag()})
	}
	return item.(*requestScope).scope, nil
}

// EndLifetimeScope closes the scope of ctx ahead of the unit of work ending.
// It is a no-op when no scope was created.
func (p *RequestLifetimeScopeProvider) EndLifetimeScope(ctx context.Context) error {
	uow := mvc.FromContext(ctx)
	if uow == nil {
		return nil
	}
	item, ok := uow.Delete(p)
	if !ok {
		return nil
	}
	return p.end(uow, item.(*requestScope))
}

func (p *RequestLifetimeScopeProvider) end(uow *mvc.UnitOfWork, rs *requestScope) error {
	rs.once.Do(func() {
		rs.err = rs.scope.Close()
		if rs.err != nil {
			p.logger.Error("close request scope failed.", zap.String("scope", rs.scope.Tag()), zap.Error(rs.err))
		}
		p.publish(core.EventScopeEnd, core.ScopeEvent{UnitOfWork: uow.ID, Scope: rs.scope.Tag(), Err: rs.err})
	})
	return rs.err
}

func (p *RequestLifetimeScopeProvider) publish(topic string, event core.ScopeEvent) {
	if p.bus != nil {
		p.bus.Publish(topic, event)
	}
}

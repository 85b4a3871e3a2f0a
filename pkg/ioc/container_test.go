package ioc_test

import (
	"errors"
	"reflect"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techquest-tech/gin-resolver/pkg/ioc"
)

type Greeter struct {
	Name string
}

type Welcome struct {
	Greeter *Greeter
}

type Messenger interface {
	Message() string
}

type english struct{}

func (english) Message() string { return "hello" }

type french struct{}

func (french) Message() string { return "bonjour" }

type closer struct {
	name   string
	closed *[]string
}

func (c *closer) Close() error {
	*c.closed = append(*c.closed, c.name)
	return nil
}

var (
	greeterType   = reflect.TypeFor[*Greeter]()
	messengerType = reflect.TypeFor[Messenger]()
)

func TestEmptyContainer(t *testing.T) {
	container, err := ioc.NewBuilder().Build()
	require.NoError(t, err)

	service, err := container.Resolve(greeterType)
	assert.NoError(t, err)
	assert.Nil(t, service)

	services, err := container.ResolveAll(greeterType)
	assert.NoError(t, err)
	assert.NotNil(t, services)
	assert.Len(t, services, 0)
}

func TestResolveRegistered(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func() *Greeter { return &Greeter{Name: "gin"} })
	container, err := b.Build()
	require.NoError(t, err)

	service, err := container.Resolve(greeterType)
	require.NoError(t, err)
	assert.Equal(t, "gin", service.(*Greeter).Name)

	again, err := container.Resolve(greeterType)
	require.NoError(t, err)
	assert.Same(t, service, again, "container registrations are singletons")

	services, err := container.ResolveAll(greeterType)
	require.NoError(t, err)
	assert.Len(t, services, 1)
}

func TestRegistrationOrder(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func() Messenger { return english{} })
	b.Register(func() Messenger { return french{} })
	container, err := b.Build()
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		all, err := ioc.ResolveAll[Messenger](container)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "hello", all[0].Message())
		assert.Equal(t, "bonjour", all[1].Message())
	}

	last, found, err := ioc.Resolve[Messenger](container)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "bonjour", last.Message())
}

func TestConstructorInjection(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func(g *Greeter) *Welcome { return &Welcome{Greeter: g} })
	b.RegisterInstance(&Greeter{Name: "dig"})
	container, err := b.Build()
	require.NoError(t, err)

	welcome, found, err := ioc.Resolve[*Welcome](container)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "dig", welcome.Greeter.Name)

	err = container.Invoke(func(w *Welcome, g *Greeter) {
		assert.Same(t, g, w.Greeter)
	})
	assert.NoError(t, err)
}

func TestConstructorError(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func() (*Greeter, error) { return nil, errors.New("boom") })
	container, err := b.Build()
	require.NoError(t, err)

	_, err = container.Resolve(greeterType)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestInvalidRegistrations(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register("not a function")
	b.Register(func() {})
	b.Register(func() error { return nil })
	b.RegisterInstance(nil)

	_, err := b.Build()
	require.Error(t, err)
	assert.ErrorIs(t, err, ioc.ErrInvalidConstructor)
}

func TestBuildOnce(t *testing.T) {
	b := ioc.NewBuilder()
	_, err := b.Build()
	require.NoError(t, err)

	_, err = b.Build()
	assert.ErrorIs(t, err, ioc.ErrAlreadyBuilt)
}

func TestScopeRegistrations(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func() Messenger { return english{} })
	b.Register(func() *Greeter { return &Greeter{Name: "root"} })
	container, err := b.Build()
	require.NoError(t, err)

	scope, err := container.BeginScope("request", func(sb *ioc.Builder) {
		sb.Register(func() Messenger { return french{} })
		sb.Register(func(g *Greeter) *Welcome { return &Welcome{Greeter: g} })
	})
	require.NoError(t, err)
	assert.Equal(t, "request", scope.Tag())

	m, _, err := ioc.Resolve[Messenger](scope)
	require.NoError(t, err)
	assert.Equal(t, "bonjour", m.Message(), "scope registration wins")

	all, err := ioc.ResolveAll[Messenger](scope)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	welcome, found, err := ioc.Resolve[*Welcome](scope)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "root", welcome.Greeter.Name)

	// the container never sees scope registrations
	_, found, err = ioc.Resolve[*Welcome](container)
	require.NoError(t, err)
	assert.False(t, found)
	m, _, err = ioc.Resolve[Messenger](container)
	require.NoError(t, err)
	assert.Equal(t, "hello", m.Message())
}

func TestScopeInstances(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func() *Greeter { return &Greeter{Name: "shared"} })
	container, err := b.Build()
	require.NoError(t, err)

	configure := func(sb *ioc.Builder) {
		sb.Register(func(g *Greeter) *Welcome { return &Welcome{Greeter: g} })
	}
	s1, err := container.BeginScope("one", configure)
	require.NoError(t, err)
	s2, err := container.BeginScope("two", configure)
	require.NoError(t, err)

	w1, _, err := ioc.Resolve[*Welcome](s1)
	require.NoError(t, err)
	w1again, _, err := ioc.Resolve[*Welcome](s1)
	require.NoError(t, err)
	w2, _, err := ioc.Resolve[*Welcome](s2)
	require.NoError(t, err)

	assert.Same(t, w1, w1again)
	assert.NotSame(t, w1, w2)
	assert.Same(t, w1.Greeter, w2.Greeter)
}

func TestNestedScope(t *testing.T) {
	container, err := ioc.NewBuilder().Build()
	require.NoError(t, err)

	outer, err := container.BeginScope("outer", func(sb *ioc.Builder) {
		sb.RegisterInstance(&Greeter{Name: "outer"})
	})
	require.NoError(t, err)
	inner, err := outer.BeginScope("inner", nil)
	require.NoError(t, err)

	g, found, err := ioc.Resolve[*Greeter](inner)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "outer", g.Name)
}

func TestScopeConfigurationError(t *testing.T) {
	container, err := ioc.NewBuilder().Build()
	require.NoError(t, err)

	_, err = container.BeginScope("bad", func(sb *ioc.Builder) {
		sb.Register(42)
	})
	assert.ErrorIs(t, err, ioc.ErrInvalidConstructor)
}

func TestCloseScope(t *testing.T) {
	closed := []string{}
	b := ioc.NewBuilder()
	b.Register(func() *closer { return &closer{name: "root", closed: &closed} })
	container, err := b.Build()
	require.NoError(t, err)

	scope, err := container.BeginScope("request", func(sb *ioc.Builder) {
		sb.Register(func(c *closer) Messenger { return english{} })
		sb.Register(func() *Greeter { return &Greeter{} })
		sb.Register(func() reqCloser { return reqCloser{&closer{name: "first", closed: &closed}} })
		sb.Register(func() reqCloser { return reqCloser{&closer{name: "second", closed: &closed}} })
	})
	require.NoError(t, err)

	_, err = scope.ResolveAll(reflect.TypeFor[reqCloser]())
	require.NoError(t, err)
	_, err = scope.Resolve(messengerType)
	require.NoError(t, err)

	require.NoError(t, scope.Close())
	assert.ElementsMatch(t, []string{"first", "second"}, closed)

	_, err = scope.Resolve(messengerType)
	assert.ErrorIs(t, err, ioc.ErrDisposed)
	assert.NoError(t, scope.Close(), "closing twice is a no-op")

	require.NoError(t, container.Close())
	require.Len(t, closed, 3)
	assert.Equal(t, "root", closed[2])
}

type reqCloser struct {
	*closer
}

type payload struct {
	data []byte
}

func TestClosedScopesAreReleased(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func() *Greeter { return &Greeter{Name: "root"} })
	container, err := b.Build()
	require.NoError(t, err)

	const scopes = 200
	var released atomic.Int32
	useScope := func() {
		scope, err := container.BeginScope("request", func(sb *ioc.Builder) {
			sb.Register(func(g *Greeter) *payload {
				p := &payload{data: make([]byte, 64<<10)}
				runtime.SetFinalizer(p, func(*payload) { released.Add(1) })
				return p
			})
		})
		require.NoError(t, err)
		p, found, err := ioc.Resolve[*payload](scope)
		require.NoError(t, err)
		require.True(t, found)
		require.Len(t, p.data, 64<<10)
		require.NoError(t, scope.Close())
	}
	for i := 0; i < scopes; i++ {
		useScope()
	}

	assert.Eventually(t, func() bool {
		runtime.GC()
		return released.Load() == scopes
	}, 5*time.Second, 10*time.Millisecond)

	g, found, err := ioc.Resolve[*Greeter](container)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "root", g.Name)
}

func TestScopeOfClosedParent(t *testing.T) {
	container, err := ioc.NewBuilder().Build()
	require.NoError(t, err)
	outer, err := container.BeginScope("outer", func(sb *ioc.Builder) {
		sb.RegisterInstance(&Greeter{Name: "outer"})
	})
	require.NoError(t, err)
	inner, err := outer.BeginScope("inner", nil)
	require.NoError(t, err)

	require.NoError(t, outer.Close())

	_, err = inner.Resolve(greeterType)
	assert.ErrorIs(t, err, ioc.ErrDisposed)
	assert.ErrorIs(t, inner.Invoke(func() {}), ioc.ErrDisposed)
	_, err = inner.BeginScope("again", nil)
	assert.ErrorIs(t, err, ioc.ErrDisposed)

	// the root is unaffected
	_, err = container.BeginScope("other", nil)
	assert.NoError(t, err)
}

func TestNestedScopeInjection(t *testing.T) {
	b := ioc.NewBuilder()
	b.Register(func() Messenger { return english{} })
	container, err := b.Build()
	require.NoError(t, err)

	outer, err := container.BeginScope("outer", func(sb *ioc.Builder) {
		sb.Register(func() *Greeter { return &Greeter{Name: "outer"} })
	})
	require.NoError(t, err)
	inner, err := outer.BeginScope("inner", func(sb *ioc.Builder) {
		sb.Register(func() Messenger { return french{} })
		sb.Register(func(g *Greeter, m Messenger) *Welcome {
			return &Welcome{Greeter: &Greeter{Name: g.Name + " " + m.Message()}}
		})
	})
	require.NoError(t, err)

	w, found, err := ioc.Resolve[*Welcome](inner)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "outer bonjour", w.Greeter.Name)

	g1, _, err := ioc.Resolve[*Greeter](outer)
	require.NoError(t, err)
	g2, _, err := ioc.Resolve[*Greeter](inner)
	require.NoError(t, err)
	assert.Same(t, g1, g2)

	var got Messenger
	require.NoError(t, inner.Invoke(func(m Messenger) { got = m }))
	assert.Equal(t, "bonjour", got.Message())
	require.NoError(t, outer.Invoke(func(m Messenger) { got = m }))
	assert.Equal(t, "hello", got.Message())
}

type notMessenger struct{}

func TestResolveAllTypeMismatch(t *testing.T) {
	container, err := ioc.NewBuilder().Build()
	require.NoError(t, err)

	_, err = ioc.ResolveAll[Messenger](mismatched{container})
	assert.ErrorContains(t, err, "is not")
}

// mismatched hands back a value of the wrong type from ResolveAll.
type mismatched struct {
	*ioc.Container
}

func (mismatched) ResolveAll(reflect.Type) ([]any, error) {
	return []any{notMessenger{}}, nil
}

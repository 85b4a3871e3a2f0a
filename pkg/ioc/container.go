package ioc

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/dig"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const RootTag = "root"

var (
	ErrInvalidConstructor = errors.New("invalid constructor")
	ErrAlreadyBuilt       = errors.New("builder has already been built")
	ErrDisposed           = errors.New("lifetime scope has been disposed")
)

// LifetimeScope is implemented by both *Container and *Scope.
type LifetimeScope interface {
	Tag() string
	Resolve(serviceType reflect.Type) (any, error)
	TryResolve(serviceType reflect.Type) (any, bool, error)
	ResolveAll(serviceType reflect.Type) ([]any, error)
	Invoke(function any) error
	BeginScope(tag string, configure func(*Builder)) (*Scope, error)
	Close() error
}

// lifetime owns one dig container. Children reach their parent through
// forwarding providers, the parent holds no reference to them.
type lifetime struct {
	tag    string
	node   *dig.Container
	parent *lifetime
	// mu is shared by the whole tree, dig does no locking of its own.
	mu *sync.Mutex

	// types with a plain provider in node, forwarded ones excluded.
	types     map[reflect.Type]struct{}
	instances []reflect.Value
	closed    bool
	logger    *zap.Logger
}

// Container is the application level lifetime scope.
type Container struct {
	lifetime
}

// Scope is a nested lifetime, typically one per request.
type Scope struct {
	lifetime
}

var (
	_ LifetimeScope = (*Container)(nil)
	_ LifetimeScope = (*Scope)(nil)
)

func newLifetime(tag string, n *dig.Container, parent *lifetime, mu *sync.Mutex, logger *zap.Logger) lifetime {
	return lifetime{
		tag:    tag,
		node:   n,
		parent: parent,
		mu:     mu,
		types:  make(map[reflect.Type]struct{}),
		logger: logger,
	}
}

func (l *lifetime) Tag() string {
	return l.tag
}

func (l *lifetime) String() string {
	if l.parent == nil {
		return l.tag
	}
	return l.parent.String() + "/" + l.tag
}

func (l *lifetime) provide(regs []*registration) error {
	for _, reg := range regs {
		err := l.node.Provide(reg.provider(l), dig.Group(groupName(reg.serviceType)))
		if err != nil {
			return fmt.Errorf("register %v in %s failed: %w", reg.serviceType, l, err)
		}
		if _, ok := l.types[reg.serviceType]; ok {
			continue
		}
		err = l.node.Provide(serviceProvider(reg.serviceType))
		if err != nil {
			return fmt.Errorf("register %v in %s failed: %w", reg.serviceType, l, err)
		}
		l.types[reg.serviceType] = struct{}{}
	}
	return nil
}

// forward makes every type served by an ancestor injectable here, unless
// this lifetime registers the type itself.
func (l *lifetime) forward() error {
	seen := make(map[reflect.Type]struct{})
	for cur := l.parent; cur != nil; cur = cur.parent {
		for t := range cur.types {
			if _, ok := l.types[t]; ok {
				continue
			}
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			if err := l.node.Provide(forwardProvider(l.parent, t)); err != nil {
				return fmt.Errorf("forward %v to %s failed: %w", t, l, err)
			}
		}
	}
	return nil
}

func (l *lifetime) disposed() bool {
	for cur := l; cur != nil; cur = cur.parent {
		if cur.closed {
			return true
		}
	}
	return false
}

// track runs with mu held, constructors are only called from inside Invoke.
func (l *lifetime) track(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if _, ok := v.Interface().(io.Closer); ok {
		l.instances = append(l.instances, v)
	}
}

func (l *lifetime) entries(serviceType reflect.Type) ([]entry, error) {
	if serviceType == nil {
		return nil, fmt.Errorf("service type is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lockedEntries(serviceType)
}

// lockedEntries collects the entries of this lifetime and its ancestors in
// registration order. mu must be held.
func (l *lifetime) lockedEntries(serviceType reflect.Type) ([]entry, error) {
	var all []entry
	for cur := l; cur != nil; cur = cur.parent {
		own, err := cur.ownEntries(serviceType)
		if err != nil {
			return nil, err
		}
		all = append(all, own...)
	}
	return sortEntries(all), nil
}

func (l *lifetime) ownEntries(serviceType reflect.Type) ([]entry, error) {
	if l.closed {
		return nil, ErrDisposed
	}
	var result []entry
	param := groupParamType(groupName(serviceType))
	fnType := reflect.FuncOf([]reflect.Type{param}, nil, false)
	fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		result = args[0].FieldByName("Entries").Interface().([]entry)
		return nil
	})
	if err := l.node.Invoke(fn.Interface()); err != nil {
		return nil, fmt.Errorf("resolve %v from %s failed: %w", serviceType, l, err)
	}
	return result, nil
}

// sortEntries puts entries back in registration order, dig does not keep it.
func sortEntries(entries []entry) []entry {
	sorted := append([]entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].seq < sorted[j].seq
	})
	return sorted
}

// TryResolve returns the most recently registered service for serviceType.
// found is false when nothing is registered.
func (l *lifetime) TryResolve(serviceType reflect.Type) (service any, found bool, err error) {
	entries, err := l.entries(serviceType)
	if err != nil || len(entries) == 0 {
		return nil, false, err
	}
	return entries[len(entries)-1].value.Interface(), true, nil
}

// Resolve returns nil, nil for unregistered types.
func (l *lifetime) Resolve(serviceType reflect.Type) (any, error) {
	service, _, err := l.TryResolve(serviceType)
	return service, err
}

// ResolveAll never returns a nil slice without an error.
func (l *lifetime) ResolveAll(serviceType reflect.Type) ([]any, error) {
	entries, err := l.entries(serviceType)
	if err != nil {
		return nil, err
	}
	return lo.Map(entries, func(e entry, _ int) any {
		return e.value.Interface()
	}), nil
}

// Invoke calls function with its parameters injected, the same way dig does.
func (l *lifetime) Invoke(function any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed() {
		return ErrDisposed
	}
	return l.node.Invoke(function)
}

// BeginScope creates a child lifetime. configure may be nil; registrations
// it makes are only visible to the new scope and its children.
func (l *lifetime) BeginScope(tag string, configure func(*Builder)) (*Scope, error) {
	var regs []*registration
	if configure != nil {
		b := NewBuilder()
		configure(b)
		if err := b.Err(); err != nil {
			return nil, fmt.Errorf("configure scope %s failed: %w", tag, err)
		}
		regs = b.registrations
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.disposed() {
		return nil, ErrDisposed
	}

	scope := &Scope{lifetime: newLifetime(tag, dig.New(), l, l.mu, l.logger)}
	if err := scope.provide(regs); err != nil {
		return nil, err
	}
	if err := scope.forward(); err != nil {
		return nil, err
	}
	l.logger.Debug("lifetime scope started", zap.Stringer("scope", &scope.lifetime), zap.Int("registrations", len(regs)))
	return scope, nil
}

// Close closes every io.Closer this lifetime created, newest first, and
// drops everything it cached. Parents are left alone; children of a closed
// lifetime report ErrDisposed.
func (l *lifetime) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	instances := lo.Reverse(l.instances)
	l.instances = nil
	l.node = nil
	l.types = nil
	l.mu.Unlock()

	var err error
	for _, v := range instances {
		err = multierr.Append(err, v.Interface().(io.Closer).Close())
	}
	l.logger.Debug("lifetime scope closed", zap.Stringer("scope", l), zap.Int("closed", len(instances)), zap.Error(err))
	return err
}

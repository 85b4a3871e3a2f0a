package mvc

import (
	"context"
	"reflect"
	"sync"
)

// DependencyResolver is the extension point handlers use to obtain services.
// GetService returns nil for unregistered types, GetServices an empty slice.
type DependencyResolver interface {
	GetService(ctx context.Context, serviceType reflect.Type) (any, error)
	GetServices(ctx context.Context, serviceType reflect.Type) ([]any, error)
}

type emptyResolver struct{}

func (emptyResolver) GetService(context.Context, reflect.Type) (any, error) {
	return nil, nil
}

func (emptyResolver) GetServices(context.Context, reflect.Type) ([]any, error) {
	return []any{}, nil
}

// EmptyResolver is what Current returns until SetResolver is called.
var EmptyResolver DependencyResolver = emptyResolver{}

var (
	currentMu sync.RWMutex
	current   = EmptyResolver
)

// SetResolver makes r the process wide resolver. Passing nil restores EmptyResolver.
func SetResolver(r DependencyResolver) {
	if r == nil {
		r = EmptyResolver
	}
	currentMu.Lock()
	defer currentMu.Unlock()
	current = r
}

func ResetResolver() {
	SetResolver(nil)
}

// Current never returns nil.
func Current() DependencyResolver {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

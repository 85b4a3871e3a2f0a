package ioc

import (
	"fmt"
	"reflect"
)

// Resolve is the typed form of LifetimeScope.TryResolve.
func Resolve[T any](scope LifetimeScope) (T, bool, error) {
	var zero T
	service, found, err := scope.TryResolve(reflect.TypeFor[T]())
	if err != nil || !found || service == nil {
		return zero, found, err
	}
	typed, ok := service.(T)
	if !ok {
		return zero, found, fmt.Errorf("resolved %T is not %v", service, reflect.TypeFor[T]())
	}
	return typed, true, nil
}

func ResolveAll[T any](scope LifetimeScope) ([]T, error) {
	services, err := scope.ResolveAll(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	result := make([]T, 0, len(services))
	for _, item := range services {
		typed, ok := item.(T)
		if !ok && item != nil {
			return nil, fmt.Errorf("resolved %T is not %v", item, reflect.TypeFor[T]())
		}
		result = append(result, typed)
	}
	return result, nil
}

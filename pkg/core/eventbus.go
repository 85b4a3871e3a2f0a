package core

import (
	"github.com/asaskevich/EventBus"
)

var Bus = EventBus.New()

const (
	EventScopeBegin = "event.scope.begin" // args: ScopeEvent
	EventScopeEnd   = "event.scope.end"   // args: ScopeEvent
	EventStopping   = "event.gin.stopping"
)

// ScopeEvent is published on EventScopeBegin and EventScopeEnd.
type ScopeEvent struct {
	UnitOfWork string
	Scope      string
	Err        error
}

type ScopeListener func(ScopeEvent)

func OnScopeBegin(fn ScopeListener) error {
	return Bus.Subscribe(EventScopeBegin, fn)
}

func OnScopeEnd(fn ScopeListener) error {
	return Bus.Subscribe(EventScopeEnd, fn)
}

func OnServiceStopping(fn func()) error {
	return Bus.SubscribeOnce(EventStopping, fn)
}

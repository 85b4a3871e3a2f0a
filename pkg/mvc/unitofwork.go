package mvc

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrUnitOfWorkEnded = errors.New("unit of work has ended")

type unitOfWorkKey struct{}

// UnitOfWork holds the per request state, normally one per HTTP request.
type UnitOfWork struct {
	ID string

	mu    sync.Mutex
	items map[any]any
	onEnd []func() error
	ended bool
}

// Begin attaches a new unit of work to ctx.
func Begin(ctx context.Context) (context.Context, *UnitOfWork) {
	uow := &UnitOfWork{
		ID:    uuid.NewString(),
		items: make(map[any]any),
	}
	return context.WithValue(ctx, unitOfWorkKey{}, uow), uow
}

// FromContext returns nil if ctx carries no unit of work.
func FromContext(ctx context.Context) *UnitOfWork {
	if ctx == nil {
		return nil
	}
	uow, _ := ctx.Value(unitOfWorkKey{}).(*UnitOfWork)
	return uow
}

// Load returns the item stored under key, calling create the first time.
// create runs with the unit of work locked and must not call back into it.
func (u *UnitOfWork) Load(key any, create func() (any, error)) (any, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.ended {
		return nil, ErrUnitOfWorkEnded
	}
	if item, ok := u.items[key]; ok {
		return item, nil
	}
	item, err := create()
	if err != nil {
		return nil, err
	}
	u.items[key] = item
	return item, nil
}

// Delete removes the item and returns it, if any.
func (u *UnitOfWork) Delete(key any) (any, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	item, ok := u.items[key]
	delete(u.items, key)
	return item, ok
}

// OnEnd registers fn to run when the unit of work ends. Hooks run newest
// first; on an ended unit of work fn runs straight away.
func (u *UnitOfWork) OnEnd(fn func() error) {
	u.mu.Lock()
	if !u.ended {
		u.onEnd = append(u.onEnd, fn)
		u.mu.Unlock()
		return
	}
	u.mu.Unlock()
	if err := fn(); err != nil {
		zap.L().Warn("end hook failed.", zap.String("id", u.ID), zap.Error(err))
	}
}

func (u *UnitOfWork) End() error {
	u.mu.Lock()
	if u.ended {
		u.mu.Unlock()
		return nil
	}
	u.ended = true
	hooks := lo.Reverse(u.onEnd)
	u.onEnd = nil
	u.items = nil
	u.mu.Unlock()

	var err error
	for _, fn := range hooks {
		err = multierr.Append(err, fn())
	}
	return err
}

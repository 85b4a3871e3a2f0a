package ioc

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/dig"
)

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	entryType = reflect.TypeOf(entry{})
	inType    = reflect.TypeOf(dig.In{})
)

// sequence orders registrations across every container and scope in the process.
var sequence atomic.Uint64

// entry is what actually travels through dig value groups. The service type
// itself is only provided plainly for constructor injection.
type entry struct {
	seq   uint64
	value reflect.Value
}

type registration struct {
	seq         uint64
	ctor        reflect.Value
	serviceType reflect.Type
	withError   bool
}

func newRegistration(constructor any) (*registration, error) {
	if constructor == nil {
		return nil, fmt.Errorf("%w: constructor is nil", ErrInvalidConstructor)
	}
	ctor := reflect.ValueOf(constructor)
	ct := ctor.Type()
	if ct.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: expected a function, got %v", ErrInvalidConstructor, ct)
	}
	if ctor.IsNil() {
		return nil, fmt.Errorf("%w: constructor is a nil %v", ErrInvalidConstructor, ct)
	}

	switch {
	case ct.NumOut() == 1 && ct.Out(0) != errorType:
	case ct.NumOut() == 2 && ct.Out(0) != errorType && ct.Out(1) == errorType:
	default:
		return nil, fmt.Errorf("%w: %v must return T or (T, error)", ErrInvalidConstructor, ct)
	}
	if dig.IsOut(ct.Out(0)) {
		return nil, fmt.Errorf("%w: %v returns a dig.Out struct", ErrInvalidConstructor, ct)
	}

	return &registration{
		seq:         sequence.Add(1),
		ctor:        ctor,
		serviceType: ct.Out(0),
		withError:   ct.NumOut() == 2,
	}, nil
}

func instanceConstructor(value any) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("%w: instance is nil", ErrInvalidConstructor)
	}
	v := reflect.ValueOf(value)
	fnType := reflect.FuncOf(nil, []reflect.Type{v.Type()}, false)
	return reflect.MakeFunc(fnType, func([]reflect.Value) []reflect.Value {
		return []reflect.Value{v}
	}).Interface(), nil
}

// provider wraps the constructor so its result lands in the service group as an
// entry. Instances are tracked by owner, which is the lifetime the
// registration was provided to.
func (r *registration) provider(owner *lifetime) any {
	ct := r.ctor.Type()
	in := make([]reflect.Type, ct.NumIn())
	for i := range in {
		in[i] = ct.In(i)
	}
	out := []reflect.Type{entryType}
	if r.withError {
		out = append(out, errorType)
	}

	fnType := reflect.FuncOf(in, out, ct.IsVariadic())
	fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		var results []reflect.Value
		if ct.IsVariadic() {
			results = r.ctor.CallSlice(args)
		} else {
			results = r.ctor.Call(args)
		}

		if r.withError && !results[1].IsNil() {
			return []reflect.Value{reflect.Zero(entryType), results[1]}
		}

		owner.track(results[0])
		ret := []reflect.Value{reflect.ValueOf(entry{seq: r.seq, value: results[0]})}
		if r.withError {
			ret = append(ret, reflect.Zero(errorType))
		}
		return ret
	})
	return fn.Interface()
}

var (
	groupIDs   sync.Map // reflect.Type -> string
	groupSeq   atomic.Uint64
	groupParam sync.Map // string -> reflect.Type
)

// groupName maps a service type onto a dig group name. Type strings can carry
// commas, which dig would read as group options, so a counter is used instead.
func groupName(t reflect.Type) string {
	if name, ok := groupIDs.Load(t); ok {
		return name.(string)
	}
	name, _ := groupIDs.LoadOrStore(t, "ioc.services."+strconv.FormatUint(groupSeq.Add(1), 10))
	return name.(string)
}

// groupParamType builds struct{ dig.In; Entries []entry `group:"..."` } for a group.
func groupParamType(group string) reflect.Type {
	if t, ok := groupParam.Load(group); ok {
		return t.(reflect.Type)
	}
	t := reflect.StructOf([]reflect.StructField{
		{Name: "In", Type: inType, Anonymous: true},
		{Name: "Entries", Type: reflect.SliceOf(entryType), Tag: reflect.StructTag(`group:"` + group + `"`)},
	})
	actual, _ := groupParam.LoadOrStore(group, t)
	return actual.(reflect.Type)
}

// serviceProvider exposes the newest entry of the group as a plain T, so that
// other constructors can depend on T directly.
func serviceProvider(serviceType reflect.Type) any {
	param := groupParamType(groupName(serviceType))
	fnType := reflect.FuncOf([]reflect.Type{param}, []reflect.Type{serviceType}, false)
	return reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		entries := sortEntries(args[0].FieldByName("Entries").Interface().([]entry))
		if len(entries) == 0 {
			return []reflect.Value{reflect.Zero(serviceType)}
		}
		return []reflect.Value{entries[len(entries)-1].value}
	}).Interface()
}

// forwardProvider resolves serviceType from parent on behalf of a child
// lifetime. It only runs inside the child's Invoke, so mu is already held.
func forwardProvider(parent *lifetime, serviceType reflect.Type) any {
	fnType := reflect.FuncOf(nil, []reflect.Type{serviceType, errorType}, false)
	return reflect.MakeFunc(fnType, func([]reflect.Value) []reflect.Value {
		entries, err := parent.lockedEntries(serviceType)
		if err != nil {
			return []reflect.Value{reflect.Zero(serviceType), reflect.ValueOf(&err).Elem()}
		}
		if len(entries) == 0 {
			return []reflect.Value{reflect.Zero(serviceType), reflect.Zero(errorType)}
		}
		return []reflect.Value{entries[len(entries)-1].value, reflect.Zero(errorType)}
	}).Interface()
}

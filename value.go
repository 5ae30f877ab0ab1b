package taskengine

import "reflect"

// Value is the dynamic value container a Task's result Handle yields
// (spec.md §3 "Dynamic value"): an erased container that can hold any
// copyable payload, queried by expected runtime type. A void-returning
// callable fulfils the slot with an empty Value.
//
// The original C++ implementation erases the payload behind std::any and
// recovers it with a runtime any_cast. Go's reflect.TypeOf gives the same
// "queried by expected runtime type" behavior; As is a generic accessor
// so callers don't need an unsafe cast at the call site (design notes §9,
// "tagged sum over the small set of return shapes actually used").
type Value struct {
	payload any
	typ     reflect.Type
	empty   bool
}

// EmptyValue is the Value fulfilling a void-returning task.
func EmptyValue() Value {
	return Value{empty: true}
}

// NewValue wraps payload in a Value, recording its runtime type.
func NewValue(payload any) Value {
	if payload == nil {
		return Value{empty: true}
	}
	return Value{payload: payload, typ: reflect.TypeOf(payload)}
}

// IsEmpty reports whether the Value holds no payload.
func (v Value) IsEmpty() bool { return v.empty }

// Type returns the runtime type of the held payload, or nil if empty.
func (v Value) Type() reflect.Type { return v.typ }

// Raw returns the payload as an untyped any, for callers that already
// know what to do with it without a checked cast.
func (v Value) Raw() any { return v.payload }

// As attempts to recover the Value's payload as T. The second result is
// false if the Value is empty or holds a different concrete type.
func As[T any](v Value) (T, bool) {
	var zero T
	if v.empty {
		return zero, false
	}
	t, ok := v.payload.(T)
	return t, ok
}

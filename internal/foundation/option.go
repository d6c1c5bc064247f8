// Package foundation holds small generic primitives shared across the
// module: Option for values that may be absent, and string normalizers in
// the normalization subpackage.
package foundation

import "fmt"

// Option is a value that may be absent. It replaces nullable pointers for
// fields like exit codes and predictions where zero is a valid value.
type Option[T any] struct {
	value   T
	present bool
}

// Some wraps a present value.
func Some[T any](value T) Option[T] {
	return Option[T]{value: value, present: true}
}

// None is the absent value.
func None[T any]() Option[T] {
	return Option[T]{}
}

// IsSome reports whether a value is present.
func (o Option[T]) IsSome() bool { return o.present }

// IsNone reports whether the option is empty.
func (o Option[T]) IsNone() bool { return !o.present }

// Unwrap returns the value, panicking on None. Callers must have checked
// presence first.
func (o Option[T]) Unwrap() T {
	if !o.present {
		panic("called Unwrap on None option")
	}
	return o.value
}

// UnwrapOr returns the value, or fallback when absent.
func (o Option[T]) UnwrapOr(fallback T) T {
	if o.present {
		return o.value
	}
	return fallback
}

// Match calls onSome with the value when present, onNone otherwise.
func (o Option[T]) Match(onSome func(T), onNone func()) {
	if o.present {
		onSome(o.value)
	} else {
		onNone()
	}
}

// ToPointer returns a pointer to the value, or nil when absent. Used at
// JSON boundaries where optional fields marshal as null.
func (o Option[T]) ToPointer() *T {
	if o.present {
		return &o.value
	}
	return nil
}

// FromPointer lifts a possibly-nil pointer into an option.
func FromPointer[T any](ptr *T) Option[T] {
	if ptr != nil {
		return Some(*ptr)
	}
	return None[T]()
}

func (o Option[T]) String() string {
	if o.present {
		return fmt.Sprintf("Some(%v)", o.value)
	}
	return "None"
}

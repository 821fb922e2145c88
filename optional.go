package unipkg

// Optional is a value that may not apply to a package. Absence is a normal
// outcome of a lookup, not an error.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns an applicable Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an Optional that does not apply.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

func (o Optional[T]) Get() (T, bool)   { return o.value, o.ok }
func (o Optional[T]) Applicable() bool { return o.ok }

// Or returns the value, or def when it does not apply.
func (o Optional[T]) Or(def T) T {
	if o.ok {
		return o.value
	}
	return def
}

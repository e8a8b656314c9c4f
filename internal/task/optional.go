package task

// Optional marks whether a field takes part in a partial update.
//
// The zero value is "not set": the field is left unchanged. Some sets a value;
// Null clears a nullable field.
type Optional[T any] struct {
	Value T
	Set   bool
	Null  bool
}

// Some returns an Optional carrying v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Set: true}
}

// Null returns an Optional that clears the field.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true, Null: true}
}

// Get returns the value and true when a non-null value is set.
func (o Optional[T]) Get() (T, bool) {
	if !o.Set || o.Null {
		var zero T
		return zero, false
	}
	return o.Value, true
}

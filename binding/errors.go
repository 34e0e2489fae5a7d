package binding

import "errors"

// ErrReadOnly is returned when writing through an accessor without a setter.
var ErrReadOnly = errors.New("accessor is read-only")

// ErrNoInverse is returned when a converted binding has to write back but its
// converter cannot be inverted.
var ErrNoInverse = errors.New("converter has no inverse")

package quantum

import "errors"

var (
	// ErrInvalidAction is returned for action indices outside [0, C(L,2)) and for
	// qubit pairs that are out of range or repeat a qubit.
	ErrInvalidAction = errors.New("invalid action")

	// ErrUnsupportedConfiguration is returned when a qubit count, observation
	// encoding or policy has no implementation.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")

	// ErrInvalidState is returned for state vectors of the wrong length or zero norm.
	ErrInvalidState = errors.New("invalid state")
)

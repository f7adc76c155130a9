package indicator

import "errors"

var (
	// ErrUnknownKind is returned for an indicator kind with no registered factory.
	ErrUnknownKind = errors.New("unknown indicator kind")

	// ErrInvalidConfig is returned for malformed indicator configuration.
	ErrInvalidConfig = errors.New("invalid indicator config")
)

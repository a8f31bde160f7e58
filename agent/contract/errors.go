package contract

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrCapabilityExecution = errors.New("capability execution failed")
	ErrStatePersistence    = errors.New("state persistence failed")
	ErrComposerUnavailable = errors.New("composer unavailable")
	ErrExternalService     = errors.New("external service failed")
	ErrNoBusiness          = errors.New("no business selected")
)

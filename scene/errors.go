package scene

import "errors"

// Actor lifecycle and dispatch errors.
var (
	ErrNotRunning  = errors.New("scene actor is not running")
	ErrMailboxFull = errors.New("scene mailbox is full")
	ErrNotHandled  = errors.New("request not handled by scene module")
	ErrInitFailed  = errors.New("scene init failed")
)

// Reconciliation configuration errors.
var (
	ErrNoDynamicSupervisor = errors.New("dynamic scene reference but no dynamic supervisor is available")
	ErrNotStartable        = errors.New("dynamic reference module cannot start scenes")
)

package contract

import "errors"

var (
	// ErrUninitialized is returned when an entry point other than "new" runs
	// before the state root exists.
	ErrUninitialized = errors.New("contract is not initialized")

	// ErrAlreadyInitialized is returned by a second call to "new".
	ErrAlreadyInitialized = errors.New("contract is already initialized")

	// ErrUnexpectedValueAttached is returned when a deposit is attached to
	// a method that is not payable.
	ErrUnexpectedValueAttached = errors.New("method doesn't accept deposit")

	// ErrTransferFailed wraps a host failure while executing an outbound
	// transfer.
	ErrTransferFailed = errors.New("transfer failed")

	ErrMethodNotFound   = errors.New("method not found")
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrProhibitedInView is returned when a change method is invoked as a
	// view, or a view reports a state change.
	ErrProhibitedInView = errors.New("prohibited in view")
)

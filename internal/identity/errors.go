package identity

import "errors"

var (
	// ErrNilArgument signals a required argument was nil. Caller bug.
	ErrNilArgument = errors.New("identity: nil argument")

	// ErrDuplicateUser signals another user already holds the normalized
	// username, whether detected by pre-check or by the unique index.
	ErrDuplicateUser = errors.New("identity: duplicate username")

	// ErrDuplicateRole signals another role already holds the normalized name.
	ErrDuplicateRole = errors.New("identity: duplicate role name")

	// ErrRoleNotFound signals an attempt to grant membership of a role that
	// has no document.
	ErrRoleNotFound = errors.New("identity: role does not exist")

	// ErrStoreDisposed is returned by every operation after Dispose.
	ErrStoreDisposed = errors.New("identity: store has been disposed")

	// ErrMultipleMatches signals more than one document matched a key that is
	// supposed to be unique. Indicates the uniqueness invariant was violated
	// upstream.
	ErrMultipleMatches = errors.New("identity: multiple documents match unique key")
)

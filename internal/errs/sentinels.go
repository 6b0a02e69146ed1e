// Package errs contains sentinel errors used across layers for stable error mapping.
//
// Domain sentinels carry the user-visible message as their text, so the HTTP
// layer can render err.Error() directly.
package errs

import "errors"

// Storage-level sentinels returned by repositories.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication (bad credentials or session).
	ErrUnauthorized = errors.New("Invalid username or password")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("Too many failed attempts, try again later")
)

// Account errors.
var (
	ErrMissingCredentials = errors.New("Username and password are required")
	ErrUsernameTaken      = errors.New("Username is already taken")
)

// Poll command taxonomy.
var (
	ErrStoreUnavailable    = errors.New("Server is not configured for database access.")
	ErrMissingPollID       = errors.New("Missing poll id")
	ErrMissingTitle        = errors.New("Title is required")
	ErrInsufficientOptions = errors.New("Please provide at least two options")
	ErrMissingOption       = errors.New("No option selected")
	ErrUnauthenticated     = errors.New("You must be logged in to create a poll")
	ErrNotAuthorized       = errors.New("Not authorized")
	ErrPollNotFound        = errors.New("Poll not found")
	ErrPollNotVotable      = errors.New("This poll is not available for voting")
	ErrPollExpired         = errors.New("This poll has expired")
	ErrInvalidOption       = errors.New("Invalid option selected")
	ErrIdentityRequired    = errors.New("Cannot vote without being logged in or providing a fingerprint.")
	ErrAlreadyVoted        = errors.New("You have already voted on this poll")
	ErrUnexpected          = errors.New("Unexpected error")
)

// StoreError passes a store failure through to the caller. Msg is the raw
// store message when one was available, else a generic fallback.
type StoreError struct {
	Msg string
	Err error
}

func (e *StoreError) Error() string { return e.Msg }

func (e *StoreError) Unwrap() error { return e.Err }

// Store wraps err as a *StoreError. The message of err is used verbatim unless
// it is empty, in which case fallback is used.
func Store(err error, fallback string) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	return &StoreError{Msg: msg, Err: err}
}

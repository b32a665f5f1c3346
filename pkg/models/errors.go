package models

import "errors"

// Error taxonomy shared across packages. Handlers map these onto HTTP
// status codes; async job paths log them and surface failure through
// message status instead of propagating to an unattended caller.
var (
	// ErrNotAuthenticated: no verified user identity on the request.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFoundOrForbidden: the resource is missing or not owned by the
	// caller. Deliberately conflated so existence never leaks.
	ErrNotFoundOrForbidden = errors.New("not found")
	// ErrGenerationInProgress: a generation job already holds this
	// thread's claim; retry after it finishes.
	ErrGenerationInProgress = errors.New("generation already in progress")
	// ErrAlreadyResolved: the approval left pending earlier; the first
	// decision stands.
	ErrAlreadyResolved = errors.New("approval already resolved")
	// ErrValidationFailed: malformed tool arguments or empty user text.
	ErrValidationFailed = errors.New("validation failed")
	// ErrUpstreamFailure: a model/transcription call failed or timed out.
	ErrUpstreamFailure = errors.New("upstream failure")
)

package weeverytrip

import "errors"

var (
	// ErrSessionInvalid is returned when recovery is attempted on a session that has
	// already been torn down.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrLoopDetected covers both a 401 from the refresh endpoint itself and a
	// logical request that exhausted its retry depth.
	ErrLoopDetected   = errors.New("authentication loop detected")
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRefreshRejected is returned when the backend answered the refresh call with
	// a non-2xx status or an unusable body.
	ErrRefreshRejected  = errors.New("refresh rejected")
	ErrRefreshTransport = errors.New("refresh transport failure")
	ErrTokenPersist     = errors.New("token persistence failed")
	// ErrBodyNotReplayable is returned when a request must be resent but its body
	// cannot be recreated. The session stays valid.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
	// ErrAnonymousRequest is returned for a 401 on a request marked with
	// [WithoutAuth]. The answer belongs to the caller; the session is untouched.
	ErrAnonymousRequest = errors.New("anonymous request not retried")
	// ErrSessionLock is returned when the cross-process session lock could not be
	// taken. Nothing is resent and the session stays valid.
	ErrSessionLock      = errors.New("session lock unavailable")
	ErrEngineNotReady   = errors.New("engine not ready")
	ErrInvalidAttempt   = errors.New("recovery attempt has no request")
	ErrInvalidTokenPair = errors.New("invalid token pair")
	ErrInvalidConfig    = errors.New("invalid config")
)

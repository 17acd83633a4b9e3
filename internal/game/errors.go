// internal/game/errors.go
//
// Error values returned by the round engine.
//   - Sentinels for Dispatch/Run outcomes (errors.Is friendly).
//   - ProviderError: a failed riddle, hint or answer-check call, surfaced in
//     GameState.Err rather than returned.

package game

import "errors"

var (
	// ErrInvalidTransition is returned by Dispatch when the current stage does
	// not accept the intent. The state is left untouched.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrStopped is returned by Dispatch once the engine loop has exited.
	ErrStopped = errors.New("engine stopped")

	// ErrAlreadyRunning is returned by a second concurrent call to Run.
	ErrAlreadyRunning = errors.New("engine already running")
)

// Collaborator operations reported in ProviderError.Op.
const (
	OpFetchRiddle = "fetch_riddle"
	OpFetchHint   = "fetch_hint"
	OpCheckAnswer = "check_answer"
)

// ProviderError records a failed collaborator call. It is surfaced through
// GameState rather than returned to the caller that triggered the call.
type ProviderError struct {
	Op      string `json:"op"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func newProviderError(op string, err error) *ProviderError {
	return &ProviderError{Op: op, Message: err.Error(), Err: err}
}

func (e *ProviderError) Error() string { return e.Op + ": " + e.Message }

func (e *ProviderError) Unwrap() error { return e.Err }

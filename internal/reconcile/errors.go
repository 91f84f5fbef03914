package reconcile

import "github.com/rotisserie/eris"

// Every validation failure is fatal and raised before any reconciler runs, so
// a run either returns a complete result or nothing. The sentinels below let
// callers branch on the failure class with errors.Is.
var (
	// ErrConfig marks an invalid engine or option configuration.
	ErrConfig = eris.New("invalid configuration")
	// ErrMissingInput marks a required input that was not provided.
	ErrMissingInput = eris.New("missing required input")
	// ErrLevelDomain marks a confidence level outside [0, 100).
	ErrLevelDomain = eris.New("confidence level out of range")
	// ErrSchema marks malformed frame contents.
	ErrSchema = eris.New("invalid frame schema")
	// ErrAlignment marks series sets or shapes that do not line up.
	ErrAlignment = eris.New("misaligned inputs")
	// ErrMissingInterval marks a model without the interval columns the
	// normality strategy reverse-engineers sigma from.
	ErrMissingInterval = eris.New("missing prediction interval columns")
)

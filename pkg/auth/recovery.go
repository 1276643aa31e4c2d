package auth

import "time"

// RecoveryAction tells the UI layer how to react to a failed attempt.
type RecoveryAction string

const (
	// RecoveryRetry leaves the user free to retry manually.
	RecoveryRetry RecoveryAction = "retry"
	// RecoveryWait disables retry until Delay has passed.
	RecoveryWait RecoveryAction = "wait"
	// RecoveryAutoRestart starts a new authorization attempt after Delay.
	RecoveryAutoRestart RecoveryAction = "auto_restart"
	// RecoveryRestart offers an explicit "restart authentication" action.
	RecoveryRestart RecoveryAction = "restart"
)

// Default recovery delays.
const (
	DefaultRateLimitWait    = 5 * time.Minute
	DefaultCodeExpiredDelay = 2 * time.Second
	DefaultRestartDelay     = 3 * time.Second
)

// Recovery is the user-visible policy for an error.
type Recovery struct {
	Action       RecoveryAction `json:"action"`
	Delay        time.Duration  `json:"delay"`
	RetryAllowed bool           `json:"retry_allowed"`
	Message      string         `json:"message"`
}

// RecoveryFor maps err to its recovery policy.
func RecoveryFor(err error) Recovery {
	if err == nil {
		return Recovery{}
	}
	e := asFlowError(err, CodeUnexpectedResponse, "unexpected error")

	switch e.Code {
	case CodeRateLimited:
		wait := e.RetryAfter
		if wait <= 0 {
			wait = DefaultRateLimitWait
		}
		return Recovery{
			Action:  RecoveryWait,
			Delay:   wait,
			Message: "The sign-in provider is busy. Please try again in a few minutes.",
		}
	case CodeCodeExpired:
		return Recovery{
			Action:  RecoveryAutoRestart,
			Delay:   DefaultCodeExpiredDelay,
			Message: "Your sign-in link expired. Starting over.",
		}
	case CodeIdentityLost:
		return Recovery{
			Action:       RecoveryRestart,
			Delay:        DefaultRestartDelay,
			RetryAllowed: true,
			Message:      "We lost track of your sign-in. Please sign in again.",
		}
	default:
		msg := e.Message
		if msg == "" {
			msg = "Something went wrong. Please try again."
		}
		return Recovery{Action: RecoveryRetry, RetryAllowed: true, Message: msg}
	}
}

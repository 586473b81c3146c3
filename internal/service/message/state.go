package message

import (
	"time"

	"github.com/campushub/messaging/internal/model"
)

// Transition is the computed next state of a message after a dispatch
// attempt. It is applied to storage in a single compare-and-swap update.
type Transition struct {
	Status     model.MessageStatus
	RetryCount int
}

// NextState computes the state a message moves to after a dispatch attempt.
// It is a pure function: persistence and transport concerns live elsewhere.
//
// Success moves the message to SENT with the retry count untouched.
// Failure increments the retry count; once it exceeds maxRetries the
// message becomes FAILED (terminal), otherwise it returns to PENDING so a
// later cron pass retries it.
//
// ErrAlreadySent is returned for terminal-success states, ErrRetriesExhausted
// for a FAILED message whose budget is spent.
func NextState(status model.MessageStatus, retryCount, maxRetries int, succeeded bool) (Transition, error) {
	switch status {
	case model.StatusSent, model.StatusDelivered, model.StatusRead:
		return Transition{}, ErrAlreadySent
	case model.StatusFailed:
		if retryCount > maxRetries {
			return Transition{}, ErrRetriesExhausted
		}
	case model.StatusPending, model.StatusScheduled:
	default:
		return Transition{}, ErrInvalidTransition
	}

	if succeeded {
		return Transition{Status: model.StatusSent, RetryCount: retryCount}, nil
	}

	retryCount++
	if retryCount > maxRetries {
		return Transition{Status: model.StatusFailed, RetryCount: retryCount}, nil
	}

	return Transition{Status: model.StatusPending, RetryCount: retryCount}, nil
}

// markTransitions enumerates the admin-triggered transitions: a message can
// be marked DELIVERED only from SENT and READ only from DELIVERED.
var markTransitions = map[model.MessageStatus]model.MessageStatus{
	model.StatusDelivered: model.StatusSent,
	model.StatusRead:      model.StatusDelivered,
}

// backoff returns the delay before a message that has failed retryCount
// times becomes due again: base * 2^(retryCount-1), capped.
func backoff(base, max time.Duration, retryCount int) time.Duration {
	if retryCount < 1 {
		return 0
	}

	delay := base << uint(retryCount-1)
	if delay > max || delay <= 0 {
		delay = max
	}

	return delay
}

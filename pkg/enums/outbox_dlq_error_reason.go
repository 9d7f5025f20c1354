package enums

import "fmt"

// OutboxDLQErrorReason records why the relay stopped retrying an event.
type OutboxDLQErrorReason string

// max_attempts means transient failures used up the attempt budget;
// non_retryable means the row can never publish as stored.
const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable:
		return true
	}
	return false
}

// ParseOutboxDLQErrorReason converts operator input into a reason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	reason := OutboxDLQErrorReason(value)
	if !reason.IsValid() {
		return "", fmt.Errorf("invalid dlq reason %q", value)
	}
	return reason, nil
}

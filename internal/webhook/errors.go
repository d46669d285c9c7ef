package webhook

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrQueueSaturated is returned by Enqueue when the queue is at capacity.
var ErrQueueSaturated = errors.New("webhook queue saturated")

// ValidationError rejects a delivery. Status is the HTTP status the rejection maps to.
type ValidationError struct {
	Status int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid webhook (%d): %s", e.Status, e.Reason)
}

func invalid(status int, reason string) *ValidationError {
	return &ValidationError{Status: status, Reason: reason}
}

// StatusOf maps a processing result to the HTTP status that describes it.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Status
	}
	if errors.Is(err, ErrQueueSaturated) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

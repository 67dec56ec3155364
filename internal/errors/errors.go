// Package errors defines the error taxonomy shared by the agent and the collector.
package errors

import (
	"errors"
	"fmt"
)

var (
	// Delivery errors
	ErrTransientDelivery = errors.New("transient delivery failure")
	ErrFatalAuth         = errors.New("collector rejected agent credentials")
	ErrSnapshotRejected  = errors.New("collector rejected snapshot")

	// Configuration errors
	ErrConfigFetch          = errors.New("configuration fetch failed")
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// Agent errors
	ErrTokenMissing = errors.New("agent token is missing")

	// Collector errors
	ErrAgentNotFound      = errors.New("agent not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// StatusError is returned when the collector answers with an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("collector returned status %d", e.Code)
	}
	return fmt.Sprintf("collector returned status %d: %s", e.Code, e.Body)
}

package polestar

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInitialized is returned by Refresh before Init succeeded.
	ErrNotInitialized = errors.New("polestar: client not initialized")

	// ErrUnauthorized is returned when the vehicle cloud rejects the credentials or token.
	ErrUnauthorized = errors.New("polestar: unauthorized")

	// ErrVehicleNotFound is returned when a VIN is not registered to the account.
	ErrVehicleNotFound = errors.New("polestar: vehicle not found on account")
)

// GraphQLError carries the messages of a GraphQL "errors" array.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("polestar: %s failed: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// StatusError is returned for unexpected HTTP status codes.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("polestar: %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

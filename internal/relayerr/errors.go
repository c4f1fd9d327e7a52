// Package relayerr defines the error kinds shared across the relay
// so the HTTP layer can map them to status codes with errors.As
// instead of string matching.
package relayerr

import "fmt"

// ConfigError aggregates every configuration validation failure
// found during a single load, so an operator sees the whole list
// instead of fixing one field at a time.
type ConfigError struct {
	Errors []string
}

func (e *ConfigError) Error() string {
	if len(e.Errors) == 1 {
		return "config error: " + e.Errors[0]
	}
	msg := fmt.Sprintf("config error: %d problems found:", len(e.Errors))
	for _, s := range e.Errors {
		msg += "\n  - " + s
	}
	return msg
}

// Add appends a problem and returns the receiver for chaining.
func (e *ConfigError) Add(format string, args ...any) *ConfigError {
	e.Errors = append(e.Errors, fmt.Sprintf(format, args...))
	return e
}

// OK reports whether no problems were recorded.
func (e *ConfigError) OK() bool {
	return e == nil || len(e.Errors) == 0
}

// ValidationError is a malformed request body or query parameter.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// NotFoundError names the missing entity (e.g. a chat_bot_id on send).
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unauthorized names an API key that doesn't resolve to a backend.
// auth.Service.Authenticate reports that case as a false result and
// does not return this value.
var Unauthorized = fmt.Errorf("unauthorized")

// UpstreamTransient wraps a webhook-delivery failure that should be
// retried with backoff (429/5xx/transport error). Never surfaced to
// API callers — it only drives the dispatcher's reschedule path.
type UpstreamTransient struct {
	Reason string
}

func (e *UpstreamTransient) Error() string { return e.Reason }

// UpstreamPermanent wraps a webhook-delivery failure that will not
// succeed on retry (a non-429 4xx, or an unresolvable secret).
type UpstreamPermanent struct {
	Reason string
}

func (e *UpstreamPermanent) Error() string { return e.Reason }

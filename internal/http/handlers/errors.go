// Package handlers defines HTTP-layer error codes used by the status and
// trigger endpoints.
//
// Codes are lowercase snake_case and complement the HTTP status so clients
// can branch on them without parsing messages.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "cycle_in_flight",
//	  "message": "a cycle is already running"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeInternal         = "internal_error"

	// Domain-specific:
	ErrCodeCycleInFlight = "cycle_in_flight"
	ErrCodeShuttingDown  = "shutting_down"
	ErrCodeListFailed    = "list_failed"
)

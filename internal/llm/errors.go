package llm

import "fmt"

// APIError is returned when the token or completion endpoint cannot be reached
// or answers with a non-success status. StatusCode is 0 when no response was received.
type APIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s request failed with status %d: %v", e.Op, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Parse steps of a completion response.
const (
	StepResponse = "response"
	StepContent  = "content"
)

// ParseError is returned when the completion response, or the JSON document
// embedded in its message content, cannot be parsed.
type ParseError struct {
	Step string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Step, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

package tools

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Status tags a Result.
type Status string

// Statuses.
const (
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
	StatusPathNeeded Status = "path_needed"
)

// Result is what a tool reports back to the model. It serializes to a flat
// JSON object: the status, the message and suggestions when present, and the
// payload fields.
type Result struct {
	Status      Status
	Message     string
	Suggestions []string
	Payload     map[string]any

	// Display is shown to the operator and never sent to the model.
	Display string
	// Err is the underlying fault of an error result.
	Err error
}

// Success returns a success result with the given payload.
func Success(payload map[string]any) Result {
	return Result{Status: StatusSuccess, Payload: payload}
}

// Failure returns an error result describing err.
func Failure(err error) Result {
	return Result{Status: StatusError, Message: err.Error(), Err: err}
}

// Failuref returns an error result with a formatted message.
func Failuref(format string, a ...any) Result {
	return Failure(fmt.Errorf(format, a...))
}

// PathNeeded asks the operator for an exact path.
func PathNeeded(message string, suggestions []string) Result {
	return Result{Status: StatusPathNeeded, Message: message, Suggestions: suggestions, Display: message}
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// MarshalJSON implements json.Marshaler.
func (r Result) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Payload)+3)
	maps.Copy(out, r.Payload)
	out["status"] = r.Status
	if r.Message != "" {
		out["message"] = r.Message
	}
	if len(r.Suggestions) > 0 {
		out["suggestions"] = r.Suggestions
	}
	return json.Marshal(out)
}

// String returns the JSON form sent back as the tool turn content.
func (r Result) String() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"status":"error","message":%q}`, err.Error())
	}
	return string(b)
}

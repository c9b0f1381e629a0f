// Package events defines event types and publisher interfaces for invocation events.
package events

// InvocationEvent is emitted after every provider invocation, successful or not.
type InvocationEvent struct {
	ID         string `json:"id"`
	Service    string `json:"service"`
	Method     string `json:"method"`
	Endpoint   string `json:"endpoint"`
	Command    string `json:"command,omitempty"`
	Result     string `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	Ok         bool   `json:"ok"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}

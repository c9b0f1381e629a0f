package db

import "time"

// Invocation represents a row in the invocations table.
type Invocation struct {
	ID         string    `json:"id"`
	Service    string    `json:"service"`
	Method     string    `json:"method"`
	Endpoint   string    `json:"endpoint"`
	Command    string    `json:"command"`
	Result     string    `json:"result"`
	Error      *string   `json:"error,omitempty"`
	Ok         bool      `json:"ok"`
	DurationMs int64     `json:"duration_ms"`
	Created    time.Time `json:"created"`
}

// ListInvocationsParams filters ListInvocations. Zero values mean no filter.
type ListInvocationsParams struct {
	Service string
	Method  string
	Limit   int
}

package session

import "errors"

var (
	// ErrNotConnected is returned when a command is issued before a successful Connect.
	ErrNotConnected = errors.New("session: not connected")
	// ErrSessionClosed is returned when a session is used after Logout.
	ErrSessionClosed = errors.New("session: closed")
	// ErrPeerClosed is returned when the provider closes the connection before replying.
	ErrPeerClosed = errors.New("session: connection closed by provider")
)

package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectGateway      = "invoker.gateway.v1"
	SubjectInvokedEvent = "invoker.invoked"
)

// BuildInvokedSubject builds a granular invocation event subject. Dots inside
// the service name would split NATS tokens, so they become underscores.
func BuildInvokedSubject(service, method string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectInvokedEvent, subjectToken(service), subjectToken(method))
}

func subjectToken(s string) string {
	s = strings.ReplaceAll(s, ".", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "*", "_")
	return strings.ReplaceAll(s, ">", "_")
}

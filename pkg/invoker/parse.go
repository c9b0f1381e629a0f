package invoker

import "strings"

// elapsedMarker precedes the timing footer the provider appends to every reply.
const elapsedMarker = "elapsed"

// ParseResponse extracts the result from a raw provider reply: the first
// non-blank line, cut at the timing footer and trimmed.
func ParseResponse(raw string) (string, error) {
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		result, _, _ := strings.Cut(line, elapsedMarker)
		return strings.TrimSpace(result), nil
	}
	return "", ErrEmptyResponse
}

// Package semver parses service references and matches provider versions
// against SemVer ranges.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// ParsedServiceRef holds the parsed components of a service reference string.
type ParsedServiceRef struct {
	// Service interface name (e.g., "com.test.dubbotest.HelloService")
	Service string
	// Version range if specified (e.g., "^1.2.0", "1", ""); empty string means any version
	Range string
	// Raw input string
	Raw string
}

var (
	serviceNameRegex  = regexp.MustCompile(`^[A-Za-z_$][\w$]*(\.[A-Za-z_$][\w$]*)*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseServiceRef parses a service reference string.
//
// Supported formats:
//   - com.test.HelloService           (any version)
//   - com.test.HelloService@1         (major only)
//   - com.test.HelloService@1.2.3     (exact version)
//   - com.test.HelloService@^1.2.0    (caret range)
//   - com.test.HelloService@>=1.0.0   (comparison range)
func ParseServiceRef(input string) (*ParsedServiceRef, error) {
	raw := strings.TrimSpace(input)

	service, rangeStr, hasRange := strings.Cut(raw, "@")
	if !ValidateServiceName(service) {
		return nil, fmt.Errorf("%s - invalid service name: %q", logPrefix, raw)
	}
	if hasRange && strings.TrimSpace(rangeStr) == "" {
		return nil, fmt.Errorf("%s - empty version range: %q", logPrefix, raw)
	}

	return &ParsedServiceRef{
		Service: service,
		Range:   strings.TrimSpace(rangeStr),
		Raw:     raw,
	}, nil
}

// String renders the reference back to service[@range].
func (p *ParsedServiceRef) String() string {
	if p.Range == "" {
		return p.Service
	}
	return p.Service + "@" + p.Range
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ValidateServiceName validates a dotted Java-style interface name.
func ValidateServiceName(name string) bool {
	return serviceNameRegex.MatchString(name)
}

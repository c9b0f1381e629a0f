package registry

import (
	"fmt"
	"log/slog"

	"github.com/morezero/provider-invoker/pkg/semver"
)

const selectorLogPrefix = "registry:selector"

// Selector picks one raw provider entry out of the registered ones.
type Selector interface {
	Select(service string, providers []string) (string, bool)
}

// FirstProvider always picks the first registered entry.
type FirstProvider struct{}

// Select returns providers[0].
func (FirstProvider) Select(_ string, providers []string) (string, bool) {
	if len(providers) == 0 {
		return "", false
	}
	return providers[0], true
}

// VersionSelector picks the first provider whose "version" parameter
// satisfies a SemVer range.
type VersionSelector struct {
	scheme     string
	constraint *semver.Constraint
}

// NewVersionSelector compiles rangeStr for providers registered under scheme.
func NewVersionSelector(scheme, rangeStr string) (*VersionSelector, error) {
	c, err := semver.NewConstraint(rangeStr)
	if err != nil {
		return nil, err
	}
	if scheme == "" {
		scheme = defaultScheme
	}
	return &VersionSelector{scheme: scheme, constraint: c}, nil
}

// Select returns the first entry with a matching version.
func (s *VersionSelector) Select(service string, providers []string) (string, bool) {
	for _, entry := range providers {
		p, err := DecodeProvider(entry, s.scheme)
		if err != nil {
			slog.Debug(fmt.Sprintf("%s - skipping undecodable provider of %s: %v", selectorLogPrefix, service, err))
			continue
		}
		if s.constraint.Check(p.Version()) {
			return entry, true
		}
	}
	slog.Info(fmt.Sprintf("%s - no provider of %s matches version %s", selectorLogPrefix, service, s.constraint))
	return "", false
}

package registry

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ProviderURL is a decoded provider registration entry such as
// dubbo://10.0.0.5:20880/com.test.HelloService?version=1.0.0&methods=say
type ProviderURL struct {
	Raw       string
	Decoded   string
	Scheme    string
	Host      string
	Port      int
	Interface string
	Params    url.Values
}

// Version returns the provider's "version" parameter, if any.
func (p *ProviderURL) Version() string {
	return p.Params.Get("version")
}

// Endpoint returns the provider's address.
func (p *ProviderURL) Endpoint() Endpoint {
	return Endpoint{Host: p.Host, Port: p.Port}
}

// endpointPattern builds the anchored `scheme://ipv4:port` matcher.
func endpointPattern(scheme string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(scheme) + `://([0-9]+\.[0-9]+\.[0-9]+\.[0-9]+):([0-9]+)`)
}

// decodeEntry percent-decodes a provider child node name.
func decodeEntry(entry string) (string, error) {
	decoded, err := url.PathUnescape(entry)
	if err != nil {
		return "", fmt.Errorf("decode provider entry: %w", err)
	}
	return decoded, nil
}

// matchEndpoint extracts host and port from a decoded entry.
func matchEndpoint(pattern *regexp.Regexp, decoded string) (Endpoint, error) {
	m := pattern.FindStringSubmatch(decoded)
	if m == nil {
		return Endpoint{}, fmt.Errorf("provider entry %q does not match %s", decoded, pattern.String())
	}
	if net.ParseIP(m[1]) == nil {
		return Endpoint{}, fmt.Errorf("provider entry %q has invalid ip %s", decoded, m[1])
	}
	port, err := strconv.Atoi(m[2])
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("provider entry %q has invalid port %s", decoded, m[2])
	}
	return Endpoint{Host: m[1], Port: port}, nil
}

// ParseEndpoint decodes a raw provider entry and extracts its endpoint.
func ParseEndpoint(entry, scheme string) (Endpoint, error) {
	decoded, err := decodeEntry(entry)
	if err != nil {
		return Endpoint{}, err
	}
	return matchEndpoint(endpointPattern(scheme), decoded)
}

// DecodeProvider decodes a raw provider entry into its URL parts.
func DecodeProvider(entry, scheme string) (*ProviderURL, error) {
	decoded, err := decodeEntry(entry)
	if err != nil {
		return nil, err
	}
	ep, err := matchEndpoint(endpointPattern(scheme), decoded)
	if err != nil {
		return nil, err
	}

	p := &ProviderURL{
		Raw:     entry,
		Decoded: decoded,
		Scheme:  strings.ToLower(scheme),
		Host:    ep.Host,
		Port:    ep.Port,
		Params:  url.Values{},
	}
	if u, err := url.Parse(decoded); err == nil {
		p.Interface = strings.TrimPrefix(u.Path, "/")
		p.Params = u.Query()
	}
	return p, nil
}

package session

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	defaultDialTimeout  = 5 * time.Second
	defaultPollInterval = time.Second
	defaultRetries      = 3
	defaultEagerWindow  = 50 * time.Millisecond
	defaultEncodingName = "gbk"
)

// Dialer opens the TCP connection to a provider. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Option configures a Session.
type Option func(*Session)

// WithDialTimeout bounds the connect attempt. Zero disables the bound.
func WithDialTimeout(d time.Duration) Option {
	return func(s *Session) { s.dialTimeout = d }
}

// WithPollInterval sets the wait between read attempts when no reply is available yet.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.pollInterval = d
		}
	}
}

// WithRetries sets how many extra read attempts follow an empty first read.
func WithRetries(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.retries = n
		}
	}
}

// WithEagerWindow sets how long a single read waits before the reply counts as
// "nothing available right now".
func WithEagerWindow(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.eagerWindow = d
		}
	}
}

// WithEncoding sets the text encoding used on the wire. Nil keeps the default (GBK).
func WithEncoding(enc encoding.Encoding) Option {
	return func(s *Session) {
		if enc != nil {
			s.enc = enc
		}
	}
}

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(s *Session) {
		if d != nil {
			s.dialer = d
		}
	}
}

// LookupEncoding maps a charset name (gbk, gb18030, utf-8, ...) to an encoding.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, defaultEncodingName) {
		return simplifiedchinese.GBK, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%s - unsupported encoding %q: %w", logPrefix, name, err)
	}
	return enc, nil
}

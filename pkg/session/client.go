package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
)

const (
	logPrefix      = "session:client"
	logoutCommand  = "exit\n"
	readBufferSize = 4096
)

// Session owns one telnet connection to a provider. It is not safe for
// concurrent use and must not be reused after Logout.
type Session struct {
	dialer       Dialer
	dialTimeout  time.Duration
	pollInterval time.Duration
	retries      int
	eagerWindow  time.Duration
	enc          encoding.Encoding
	sleep        func(time.Duration)
	now          func() time.Time

	conn   net.Conn
	addr   string
	closed bool
	err    error
}

// New creates a disconnected Session.
func New(opts ...Option) *Session {
	s := &Session{
		dialer:       &net.Dialer{},
		dialTimeout:  defaultDialTimeout,
		pollInterval: defaultPollInterval,
		retries:      defaultRetries,
		eagerWindow:  defaultEagerWindow,
		enc:          simplifiedchinese.GBK,
		sleep:        time.Sleep,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials host:port. A failure is logged and reported through the
// return value and Err; it never panics or aborts the caller.
func (s *Session) Connect(ctx context.Context, host string, port int) bool {
	if s.closed {
		s.err = ErrSessionClosed
		return false
	}
	if s.conn != nil {
		return true
	}

	s.addr = net.JoinHostPort(host, strconv.Itoa(port))
	slog.Info(fmt.Sprintf("%s - Connecting to provider at %s", logPrefix, s.addr))

	dialCtx := ctx
	if s.dialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, s.dialTimeout)
		defer cancel()
	}

	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.addr)
	if err != nil {
		s.err = fmt.Errorf("%s - failed to connect to %s: %w", logPrefix, s.addr, err)
		slog.Warn(s.err.Error())
		return false
	}

	s.conn = conn
	s.err = nil
	return true
}

// Connected reports whether the session holds a live connection.
func (s *Session) Connected() bool {
	return s.conn != nil && !s.closed
}

// Err returns the reason of the last failed Connect.
func (s *Session) Err() error {
	return s.err
}

// Addr returns the provider address of the last Connect.
func (s *Session) Addr() string {
	return s.addr
}

// SendCommand writes one command line and returns whatever reply arrived
// within the polling bound. An empty string with a nil error means the
// provider stayed silent for every attempt.
func (s *Session) SendCommand(command string) (string, error) {
	if s.closed {
		return "", ErrSessionClosed
	}
	if s.conn == nil {
		return "", ErrNotConnected
	}

	payload, err := s.enc.NewEncoder().Bytes([]byte(command + "\n"))
	if err != nil {
		return "", fmt.Errorf("%s - failed to encode command: %w", logPrefix, err)
	}
	if _, err := s.conn.Write(payload); err != nil {
		return "", fmt.Errorf("%s - failed to write command to %s: %w", logPrefix, s.addr, err)
	}

	raw, err := s.drain()
	if err != nil {
		return "", err
	}

	text, err := s.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("%s - failed to decode reply: %w", logPrefix, err)
	}
	return string(text), nil
}

// drain performs one eager read and, while nothing has arrived, up to
// s.retries further reads separated by s.pollInterval. The whole drain never
// reads past retries*pollInterval + eagerWindow, even from a trickling peer.
func (s *Session) drain() ([]byte, error) {
	deadline := s.now().Add(time.Duration(s.retries)*s.pollInterval + s.eagerWindow)
	data, err := s.readEager(deadline)
	for attempt := 0; len(data) == 0 && err == nil && attempt < s.retries; attempt++ {
		slog.Debug(fmt.Sprintf("%s - No reply from %s yet, retry %d/%d", logPrefix, s.addr, attempt+1, s.retries))
		s.sleep(s.pollInterval)
		data, err = s.readEager(deadline)
	}
	return data, err
}

// readEager reads everything that is available without waiting longer than
// the eager window for each chunk, and stops at deadline.
func (s *Session) readEager(deadline time.Time) ([]byte, error) {
	var out []byte
	buf := make([]byte, readBufferSize)
	for {
		now := s.now()
		if len(out) > 0 && !now.Before(deadline) {
			slog.Debug(fmt.Sprintf("%s - Reply from %s still streaming at drain deadline", logPrefix, s.addr))
			return out, nil
		}
		readBy := now.Add(s.eagerWindow)
		if len(out) > 0 && deadline.Before(readBy) {
			readBy = deadline
		}
		if err := s.conn.SetReadDeadline(readBy); err != nil {
			return out, fmt.Errorf("%s - failed to set read deadline: %w", logPrefix, err)
		}
		n, err := s.conn.Read(buf)
		out = append(out, buf[:n]...)
		switch {
		case err == nil:
			continue
		case isTimeout(err):
			return out, nil
		case errors.Is(err, io.EOF):
			if len(out) == 0 {
				return nil, ErrPeerClosed
			}
			return out, nil
		default:
			return out, fmt.Errorf("%s - failed to read reply from %s: %w", logPrefix, s.addr, err)
		}
	}
}

// Logout sends the exit command without waiting for a reply and closes the
// connection. It never fails; problems are only logged.
func (s *Session) Logout() {
	if s.closed {
		return
	}
	s.closed = true
	if s.conn == nil {
		return
	}

	if _, err := s.conn.Write([]byte(logoutCommand)); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to send exit to %s: %v", logPrefix, s.addr, err))
	}
	if err := s.conn.Close(); err != nil {
		slog.Debug(fmt.Sprintf("%s - close %s: %v", logPrefix, s.addr, err))
	}
	slog.Info(fmt.Sprintf("%s - Logged out from %s", logPrefix, s.addr))
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Package session implements the provider's line-oriented telnet command
// protocol: connect, send one command line, drain the reply, log out.
//
// The protocol carries no framing, length prefix or correlation id. A reply is
// taken to be complete once no more bytes are immediately available, and a
// missing reply is waited for by polling a bounded number of times at a fixed
// interval. A provider slower than Retries*PollInterval yields a truncated or
// empty reply; callers must treat an empty result as a failure.
package session

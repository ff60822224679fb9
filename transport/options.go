package transport

import "net"

// Option configures a *net.TCPConn before it is wrapped into a Conn,
// following the functional-options style the corpus uses for constructors
// that take an open-ended set of knobs.
type Option func(*net.TCPConn) error

// WithNoDelay disables Nagle's algorithm, trading a little bandwidth for
// lower per-write latency — the usual choice for an RPC connection that
// writes small, latency-sensitive frames.
func WithNoDelay() Option {
	return func(conn *net.TCPConn) error {
		return conn.SetNoDelay(true)
	}
}

// WithSendBuffer sets the socket's send buffer size via setsockopt, for
// platforms where net.TCPConn doesn't expose a direct setter.
func WithSendBuffer(bytes int) Option {
	return func(conn *net.TCPConn) error {
		return setSendBuffer(conn, bytes)
	}
}

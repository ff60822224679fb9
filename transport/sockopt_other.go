//go:build !unix

package transport

import "net"

// setSendBuffer falls back to the portable (and less precise) stdlib
// setter outside unix, since golang.org/x/sys/unix's setsockopt wrapper
// isn't available there.
func setSendBuffer(conn *net.TCPConn, bytes int) error {
	return conn.SetWriteBuffer(bytes)
}

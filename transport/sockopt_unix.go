//go:build unix

package transport

import (
	"net"

	"golang.org/x/sys/unix"
)

// setSendBuffer reaches past net.TCPConn's SetWriteBuffer (which silently
// clamps to the OS default on some platforms) straight to setsockopt, the
// way rclone and aistore tune socket buffers for high-throughput transfers.
func setSendBuffer(conn *net.TCPConn, bytes int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, bytes)
	}); err != nil {
		return err
	}
	return sockErr
}

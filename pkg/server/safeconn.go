package server

import (
	"io"
	"net"
	"sync"
	"time"
)

// SafeConn wraps a connection with automatic write synchronization, so reply
// writes from a connection handler and fan-out writes from other handlers or
// the reaper never interleave mid-line. Each write carries its own deadline:
// a slow or unresponsive peer fails its own send instead of stalling
// everyone else's.
type SafeConn struct {
	conn         net.Conn
	writeTimeout time.Duration

	mu sync.Mutex
}

// NewSafeConn wraps conn. A writeTimeout of zero disables write deadlines.
func NewSafeConn(conn net.Conn, writeTimeout time.Duration) *SafeConn {
	return &SafeConn{
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// WriteLine writes line followed by a newline as a single synchronized write.
func (c *SafeConn) WriteLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}

	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// Close closes the underlying connection. Safe to call more than once.
func (c *SafeConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the peer address for logging.
func (c *SafeConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

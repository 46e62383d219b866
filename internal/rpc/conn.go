package rpc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
)

// frameConn wraps a net.Conn with the wire framing: one UTF-8 JSON object
// per line, terminated by CRLF. Reads and writes are each serialized by
// their own lock so the two directions can run concurrently (§4.1/§5:
// "reads and writes on a single socket are each serialized by a lock; two
// directions run concurrently").
type frameConn struct {
	conn net.Conn
	r    *bufio.Reader

	readMu  sync.Mutex
	writeMu sync.Mutex
}

func newFrameConn(c net.Conn) *frameConn {
	return &frameConn{conn: c, r: bufio.NewReaderSize(c, 64*1024)}
}

// writeJSON marshals v and writes it followed by CRLF. A message exactly at
// MaxMessageSize (including the CRLF) is accepted; one byte more is
// rejected before it ever reaches the wire.
func (f *frameConn) writeJSON(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	if len(body)+2 > MaxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds MaxMessageSize", len(body)+2)
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if _, err := f.conn.Write(body); err != nil {
		return err
	}
	_, err = f.conn.Write([]byte("\r\n"))
	return err
}

// readJSON reads one CRLF-delimited line and unmarshals it into v. Oversized
// lines cause the connection to be torn down by the caller.
func (f *frameConn) readJSON(v any) error {
	f.readMu.Lock()
	defer f.readMu.Unlock()

	line, err := f.r.ReadBytes('\n')
	if err != nil {
		return err
	}
	if len(line) > MaxMessageSize {
		return fmt.Errorf("message of %d bytes exceeds MaxMessageSize", len(line))
	}
	// Trim the CRLF (or bare LF, tolerated on read).
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return json.Unmarshal(line, v)
}

func (f *frameConn) Close() error {
	return f.conn.Close()
}

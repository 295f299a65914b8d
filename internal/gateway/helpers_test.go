package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/hl7gate/internal/protocol/mllp"
)

const wantAckCTRL123 = "\x0bMSH|^~\\&|||||||ACK||P|2.2\rMSA|AA|CTRL123\r\x1c\r"

func sampleMessage(controlID string) []byte {
	return []byte("MSH|^~\\&|A|B|C|D|E|F|G|" + controlID + "|P|2.3\rPID|1||12345")
}

func expectedAck(controlID string) string {
	return "\x0bMSH|^~\\&|||||||ACK||P|2.2\rMSA|AA|" + controlID + "\r\x1c\r"
}

// recordingUploader is the upload collaborator double.
type recordingUploader struct {
	mu       sync.Mutex
	keys     []string
	payloads map[string][]byte
	err      error
	delay    time.Duration
}

func newRecordingUploader() *recordingUploader {
	return &recordingUploader{payloads: make(map[string][]byte)}
}

func (u *recordingUploader) Upload(ctx context.Context, key string, payload []byte) error {
	if u.delay > 0 {
		time.Sleep(u.delay)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	if _, dup := u.payloads[key]; dup {
		return fmt.Errorf("duplicate key %s", key)
	}
	u.keys = append(u.keys, key)
	u.payloads[key] = append([]byte(nil), payload...)
	return nil
}

func (u *recordingUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.keys)
}

func (u *recordingUploader) payloadSet() map[string]int {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make(map[string]int, len(u.payloads))
	for _, p := range u.payloads {
		out[string(p)]++
	}
	return out
}

// fakeConn serves a fixed input and records what the worker writes.
type fakeConn struct {
	in       *bytes.Reader
	writeErr error

	mu     sync.Mutex
	out    bytes.Buffer
	writes int
	closes int
}

func newFakeConn(input []byte) *fakeConn {
	return &fakeConn{in: bytes.NewReader(input)}
}

func framed(payload []byte) *fakeConn {
	return newFakeConn(mllp.Encode(payload))
}

func (c *fakeConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	closed := c.closes > 0
	c.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	return c.in.Read(p)
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	return c.out.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closes > 1 {
		return net.ErrClosed
	}
	return nil
}

func (c *fakeConn) written() (string, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.String(), c.writes, c.closes
}

func (c *fakeConn) LocalAddr() net.Addr  { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1080} }
func (c *fakeConn) RemoteAddr() net.Addr { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000} }

func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

var _ net.Conn = (*fakeConn)(nil)

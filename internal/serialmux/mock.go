package serialmux

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for dev mode and tests. Reads
// come from a pipe fed by a replay goroutine; writes are captured.
type MockSerialPort struct {
	io.Reader

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool
	closeFn func()
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, errors.New("serial port closed")
	}
	return m.written.Write(p)
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.closeFn != nil {
		m.closeFn()
	}
	return nil
}

// Written returns everything written to the mock port so far.
func (m *MockSerialPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written.Bytes()...)
}

// NewMockSerialMux creates a SerialMux backed by a mock port that
// replays the given byte sequence at the given interval, looping
// forever. Useful for running the daemon without a dongle attached.
func NewMockSerialMux(replay []byte, interval time.Duration, frameLen int) (*SerialMux[*MockSerialPort], *MockSerialPort) {
	r, w := io.Pipe()
	port := &MockSerialPort{
		Reader:  r,
		closeFn: func() { w.Close() },
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := w.Write(replay); err != nil {
				return
			}
		}
	}()

	return NewSerialMux(port, frameLen), port
}

// TestableSerialPort implements SerialPorter with scripted reads for
// unit tests. Read blocks until data is queued or the port is closed.
type TestableSerialPort struct {
	mu       sync.Mutex
	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	closed   bool

	// ReadError is returned by the next Read call if set.
	ReadError error
	// WriteError is returned by the next Write call if set.
	WriteError error

	readCond *sync.Cond
}

func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	for !t.closed && t.readBuf.Len() == 0 {
		t.readCond.Wait()
	}
	if t.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return t.readBuf.Read(p)
}

func (t *TestableSerialPort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.WriteError != nil {
		err := t.WriteError
		t.WriteError = nil
		return 0, err
	}
	if t.closed {
		return 0, errors.New("serial port closed")
	}
	return t.writeBuf.Write(p)
}

func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.readCond.Broadcast()
	return nil
}

// FeedRead queues bytes for subsequent Read calls and wakes blocked
// readers.
func (t *TestableSerialPort) FeedRead(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readBuf.Write(data)
	t.readCond.Broadcast()
}

// Written returns all bytes written to the port.
func (t *TestableSerialPort) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.writeBuf.Bytes()...)
}

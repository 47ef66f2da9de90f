// Package serialmux provides an abstraction over the dongle serial port
// with the ability for multiple clients to subscribe to classified
// readings from the port and send commands to a single device.
package serialmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

var ErrWriteFailed = fmt.Errorf("serialmux: failed to write to serial port")

// SerialMux is a generic serial port multiplexer that splits the dongle
// byte stream into readings and fans them out to subscribers.
type SerialMux[T SerialPorter] struct {
	port         T
	frameLen     int
	subscribers  map[string]chan Reading
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// Mux defines the interface the driver consumes, independent of the
// concrete port type.
type Mux interface {
	// Subscribe creates a new channel for receiving readings from the
	// serial port. The returned ID identifies the channel when
	// unsubscribing.
	Subscribe() (string, chan Reading)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port,
	// appending CRLF if missing.
	SendCommand(string) error
	// Monitor reads the serial port until the context is done, sending
	// classified readings to subscribers.
	Monitor(context.Context) error
	// Close closes all subscriber channels and the serial port.
	Close() error
}

// NewSerialMux creates a SerialMux over an open port. frameLen is the
// exact on-wire length of one data frame, end marker included.
func NewSerialMux[T SerialPorter](port T, frameLen int) *SerialMux[T] {
	return &SerialMux[T]{
		port:        port,
		frameLen:    frameLen,
		subscribers: make(map[string]chan Reading),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value).
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan Reading) {
	id := randomID()
	ch := make(chan Reading, 8)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// SendCommand sends a command to the serial port. Dongle commands are
// CRLF-terminated text such as "BP+AG".
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !strings.HasSuffix(command, "\r\n") {
		command += "\r\n"
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads the serial port, splits the stream into data frames and
// print messages, and delivers them to subscribers. Slow subscribers
// with a full channel miss readings rather than blocking the port.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, 4096), 64*1024)
	scan.Split(newStreamSplitter())

	readingChan := make(chan Reading)
	scanErrChan := make(chan error, 1)

	// Read the port on a separate goroutine so the blocking Scan cannot
	// interfere with context cancellation in the outer loop.
	go func() {
		defer close(readingChan)
		for scan.Scan() {
			r := classify(scan.Bytes(), s.frameLen)
			select {
			case readingChan <- r:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case r, ok := <-readingChan:
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- r:
				default:
					// skip subscribers with a full channel so as not to
					// stall the port reader
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

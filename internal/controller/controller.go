// Package controller implements the device driver for the handheld
// controllers behind a single dongle. It decodes the data stream into
// per-hand state buffers, tracks connection liveness, runs the
// orientation filters and exposes the dongle command channel.
package controller

import (
	"context"
	"log"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tg0-data/etee-link/internal/ahrs"
	"github.com/tg0-data/etee-link/internal/packet"
	"github.com/tg0-data/etee-link/internal/schema"
	"github.com/tg0-data/etee-link/internal/serialmux"
)

// Hand selects one of the two controllers paired to the dongle.
type Hand int

const (
	Left Hand = iota
	Right
)

func (h Hand) String() string {
	if h == Right {
		return "right"
	}
	return "left"
}

// LossWindow is how long a hand may go silent before it is considered
// lost and its buffer cleared.
const LossWindow = 100 * time.Millisecond

// handField is the widget that routes a frame to a hand buffer.
const handField = "hand"

// Controller drives both paired controllers through the dongle mux.
type Controller struct {
	Events Events

	mux serialmux.Mux
	dec *packet.Decoder

	mu         sync.Mutex
	frames     [2]packet.Frame
	lastSeen   [2]time.Time
	frameCount [2]uint64
	junkCount  uint64

	filters     [2]*ahrs.Filter
	gyroOffsets [2]r3.Vec
	magOffsets  [2]r3.Vec
	absoluteIMU bool

	// command/response plumbing
	cmdMu  sync.Mutex
	respMu sync.Mutex
	resp   chan string
}

// New creates a driver over an open mux, decoding frames with the
// given schema.
func New(mux serialmux.Mux, s *schema.PacketSchema) *Controller {
	return &Controller{
		mux:     mux,
		dec:     packet.NewDecoder(s),
		filters: [2]*ahrs.Filter{ahrs.NewFilter(), ahrs.NewFilter()},
	}
}

// SetAbsoluteIMU switches between absolute orientation (accelerometer,
// gyroscope and magnetometer) and the default relative orientation
// (accelerometer and gyroscope only).
func (c *Controller) SetAbsoluteIMU(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.absoluteIMU = on
}

// Run consumes readings from the mux until the context is done. Call
// StartData after Run is going to begin the stream.
func (c *Controller) Run(ctx context.Context) error {
	id, ch := c.mux.Subscribe()
	defer c.mux.Unsubscribe(id)

	ticker := time.NewTicker(LossWindow / 4)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case now := <-ticker.C:
			c.checkLoss(now)

		case r, ok := <-ch:
			if !ok {
				c.Events.DongleDisconnected.emit()
				return nil
			}
			switch r.Kind {
			case serialmux.ReadingData:
				c.handleFrame(r.Frame, time.Now())
			case serialmux.ReadingPrint:
				c.handlePrint(r.Text)
			case serialmux.ReadingJunk:
				c.mu.Lock()
				c.junkCount++
				c.mu.Unlock()
			}
		}
	}
}

func (c *Controller) handleFrame(raw []byte, now time.Time) {
	frame, err := c.dec.Decode(raw)
	if err != nil {
		log.Printf("⚠️ dropping frame: %v", err)
		return
	}

	h := Left
	if frame[handField].Bool() {
		h = Right
	}

	c.mu.Lock()
	c.frames[h] = frame
	c.lastSeen[h] = now
	c.frameCount[h]++
	c.updateOrientation(h, frame, now)
	c.mu.Unlock()

	if h == Left {
		c.Events.LeftHandReceived.emit()
	} else {
		c.Events.RightHandReceived.emit()
	}
	c.Events.HandReceived.emit()
}

// updateOrientation feeds one frame's IMU sample into the hand's
// filter. Caller holds c.mu.
func (c *Controller) updateOrientation(h Hand, frame packet.Frame, now time.Time) {
	accel := ahrs.ScaleAccel(
		frame["accel_x"].Int(), frame["accel_y"].Int(), frame["accel_z"].Int())
	gyro := ahrs.ScaleGyro(
		frame["gyro_x"].Int(), frame["gyro_y"].Int(), frame["gyro_z"].Int(),
		c.gyroOffsets[h])

	if c.absoluteIMU {
		mag := ahrs.ScaleMag(
			frame["mag_x"].Int(), frame["mag_y"].Int(), frame["mag_z"].Int(),
			c.magOffsets[h])
		c.filters[h].Update(gyro, accel, mag, now)
		return
	}
	c.filters[h].UpdateIMU(gyro, accel, now)
}

func (c *Controller) checkLoss(now time.Time) {
	c.mu.Lock()
	leftLost := c.frames[Left] != nil && now.Sub(c.lastSeen[Left]) > LossWindow
	rightLost := c.frames[Right] != nil && now.Sub(c.lastSeen[Right]) > LossWindow
	if leftLost {
		c.frames[Left] = nil
	}
	if rightLost {
		c.frames[Right] = nil
	}
	c.mu.Unlock()

	if leftLost {
		c.Events.LeftHandLost.emit()
	}
	if rightLost {
		c.Events.RightHandLost.emit()
	}
	if leftLost && rightLost {
		c.Events.DataLost.emit()
	}
}

// handlePrint routes a dongle print message: first to any pending
// command collector, then to the link-event matcher.
func (c *Controller) handlePrint(text string) {
	c.respMu.Lock()
	if c.resp != nil {
		select {
		case c.resp <- text:
		default:
		}
	}
	c.respMu.Unlock()

	switch text {
	case "R connection complete\r\n":
		c.Events.RightConnected.emit()
	case "L connection complete\r\n":
		c.Events.LeftConnected.emit()
	case "R disconnected\r\n":
		c.clearHand(Right)
		c.Events.RightDisconnected.emit()
	case "L disconnected\r\n":
		c.clearHand(Left)
		c.Events.LeftDisconnected.emit()
	}
}

func (c *Controller) clearHand(h Hand) {
	c.mu.Lock()
	c.frames[h] = nil
	c.mu.Unlock()
}

// Frame returns the hand's latest decoded frame, or nil if the hand is
// not currently sending data. The returned frame is never mutated.
func (c *Controller) Frame(h Hand) packet.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[h]
}

// Get looks up one widget value from the hand's buffer. ok is false
// when the hand is lost or the widget does not exist.
func (c *Controller) Get(h Hand, name string) (packet.Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frames[h] == nil {
		return packet.Value{}, false
	}
	v, ok := c.frames[h][name]
	return v, ok
}

// Connected reports whether the hand has sent data within the loss
// window.
func (c *Controller) Connected(h Hand) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[h] != nil
}

// FrameCount returns how many frames the hand has delivered since the
// driver started.
func (c *Controller) FrameCount(h Hand) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frameCount[h]
}

// JunkCount returns how many unparseable stream tokens were skipped.
func (c *Controller) JunkCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.junkCount
}

// Quaternion returns the hand's current orientation estimate.
func (c *Controller) Quaternion(h Hand) ahrs.Quaternion {
	return c.filters[h].Quaternion()
}

// Euler returns the hand's orientation as roll, pitch, yaw in radians.
func (c *Controller) Euler(h Hand) (roll, pitch, yaw float64) {
	return c.filters[h].Euler()
}

// GyroOffset returns the hand's current gyroscope calibration vector.
func (c *Controller) GyroOffset(h Hand) r3.Vec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gyroOffsets[h]
}

// MagOffset returns the hand's current magnetometer calibration vector.
func (c *Controller) MagOffset(h Hand) r3.Vec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.magOffsets[h]
}

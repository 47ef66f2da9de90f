package controller

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Dongle command set. Commands are CRLF-terminated text; the mux adds
// the terminator.
const (
	cmdStartData = "BP+AG"
	cmdStopData  = "BP+AS"

	cmdGyroOffsetLeft  = "BL+gf"
	cmdGyroOffsetRight = "BR+gf"
	cmdMagOffsetLeft   = "BL+mf"
	cmdMagOffsetRight  = "BR+mf"

	cmdDongleVersion      = "AT+AB"
	cmdControllerVersions = "BP+AB"

	responseStart = "OK"
	responseEnd   = "END"

	// DefaultCommandTimeout bounds how long Command waits for the
	// dongle's full response.
	DefaultCommandTimeout = 5 * time.Second
)

// StartData asks the controllers to begin streaming data frames.
func (c *Controller) StartData() error {
	return c.mux.SendCommand(cmdStartData)
}

// StopData asks the controllers to stop the data stream.
func (c *Controller) StopData() error {
	return c.mux.SendCommand(cmdStopData)
}

// Command sends a command and collects the response lines printed
// between the OK and END markers. If keys are given, collection also
// stops once every key has appeared. Run must be active for responses
// to arrive.
func (c *Controller) Command(ctx context.Context, cmd string, keys ...string) (string, error) {
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	ch := make(chan string, 32)
	c.respMu.Lock()
	c.resp = ch
	c.respMu.Unlock()
	defer func() {
		c.respMu.Lock()
		c.resp = nil
		c.respMu.Unlock()
	}()

	if err := c.mux.SendCommand(cmd); err != nil {
		return "", err
	}

	var b strings.Builder
	started := false
	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return b.String(), fmt.Errorf("controller: command %q: %w", cmd, ctx.Err())

		case line := <-ch:
			if started {
				b.WriteString(line)
			} else if strings.Contains(line, responseStart) {
				started = true
			}
			if strings.Contains(line, responseEnd+"\r\n") {
				return b.String(), nil
			}
			for _, k := range keys {
				if strings.Contains(line, k) {
					seen[k] = true
				}
			}
			if len(keys) > 0 && len(seen) == len(keys) {
				return b.String(), nil
			}
		}
	}
}

// parseOffsets extracts a calibration vector from a response of the
// form "... X:<f> Y:<f> Z:<f>\r\n".
func parseOffsets(response string) (r3.Vec, error) {
	field := func(key, stop string) (float64, error) {
		_, rest, ok := strings.Cut(response, key)
		if !ok {
			return 0, fmt.Errorf("controller: offset response missing %q", key)
		}
		val, _, _ := strings.Cut(rest, stop)
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, fmt.Errorf("controller: bad %q offset: %w", key, err)
		}
		return f, nil
	}

	x, err := field("X:", " ")
	if err != nil {
		return r3.Vec{}, err
	}
	y, err := field("Y:", " ")
	if err != nil {
		return r3.Vec{}, err
	}
	z, err := field("Z:", "\r\n")
	if err != nil {
		return r3.Vec{}, err
	}
	return r3.Vec{X: x, Y: y, Z: z}, nil
}

// UpdateGyroOffset reads the hand's stored gyroscope calibration from
// the device and applies it to the orientation filter.
func (c *Controller) UpdateGyroOffset(ctx context.Context, h Hand) error {
	cmd := cmdGyroOffsetLeft
	if h == Right {
		cmd = cmdGyroOffsetRight
	}
	response, err := c.Command(ctx, cmd)
	if err != nil {
		return err
	}
	v, err := parseOffsets(response)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.gyroOffsets[h] = v
	c.mu.Unlock()
	return nil
}

// UpdateMagOffset reads the hand's stored magnetometer calibration
// from the device and applies it to the orientation filter.
func (c *Controller) UpdateMagOffset(ctx context.Context, h Hand) error {
	cmd := cmdMagOffsetLeft
	if h == Right {
		cmd = cmdMagOffsetRight
	}
	response, err := c.Command(ctx, cmd)
	if err != nil {
		return err
	}
	v, err := parseOffsets(response)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.magOffsets[h] = v
	c.mu.Unlock()
	return nil
}

// UpdateIMUOffsets refreshes gyroscope and magnetometer calibration
// for both hands.
func (c *Controller) UpdateIMUOffsets(ctx context.Context) error {
	for _, h := range []Hand{Left, Right} {
		if err := c.UpdateGyroOffset(ctx, h); err != nil {
			return err
		}
		if err := c.UpdateMagOffset(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// DongleVersion queries the dongle's firmware version.
func (c *Controller) DongleVersion(ctx context.Context) (string, error) {
	response, err := c.Command(ctx, cmdDongleVersion)
	if err != nil {
		return "", err
	}
	_, rest, ok := strings.Cut(response, "NRF")
	if !ok {
		return "", fmt.Errorf("controller: no version in dongle response %q", response)
	}
	version, _, _ := strings.Cut(rest, "\r\n")
	return version, nil
}

// ControllerVersions queries both controllers' firmware versions. A
// hand that is not connected reports an empty string.
func (c *Controller) ControllerVersions(ctx context.Context) (left, right string, err error) {
	const (
		keyRight = "R:AB=etee"
		keyLeft  = "L:AB=etee"
	)
	response, err := c.Command(ctx, cmdControllerVersions, keyRight, keyLeft)
	if err != nil {
		return "", "", err
	}

	extract := func(key string) string {
		_, rest, ok := strings.Cut(response, key)
		if !ok {
			return ""
		}
		line, _, _ := strings.Cut(rest, "\r\n")
		_, version, ok := strings.Cut(line, "-")
		if !ok {
			return ""
		}
		return version
	}
	return extract(keyLeft), extract(keyRight), nil
}

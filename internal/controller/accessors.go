package controller

// Typed convenience accessors over the hand buffers. Each returns the
// widget's value plus ok=false when the hand is lost, matching Get. The
// generic Get covers the full widget set; these cover the values
// applications reach for constantly.

// Finger names one of the five finger sensor channels.
type Finger string

const (
	Thumb  Finger = "thumb"
	Index  Finger = "index"
	Middle Finger = "middle"
	Ring   Finger = "ring"
	Pinky  Finger = "pinky"
)

func (c *Controller) uintWidget(h Hand, name string) (int, bool) {
	v, ok := c.Get(h, name)
	if !ok {
		return 0, false
	}
	return int(v.Uint()), true
}

func (c *Controller) boolWidget(h Hand, name string) (bool, bool) {
	v, ok := c.Get(h, name)
	if !ok {
		return false, false
	}
	return v.Bool(), true
}

// FingerPull returns the finger's pull pressure (0..126).
func (c *Controller) FingerPull(h Hand, f Finger) (int, bool) {
	return c.uintWidget(h, string(f)+"_pull")
}

// FingerForce returns the finger's force pressure (0..126).
func (c *Controller) FingerForce(h Hand, f Finger) (int, bool) {
	return c.uintWidget(h, string(f)+"_force")
}

// FingerTouched reports whether the finger sensor is touched.
func (c *Controller) FingerTouched(h Hand, f Finger) (bool, bool) {
	return c.boolWidget(h, string(f)+"_touched")
}

// FingerClicked reports whether the finger sensor is clicked.
func (c *Controller) FingerClicked(h Hand, f Finger) (bool, bool) {
	return c.boolWidget(h, string(f)+"_clicked")
}

// Trackpad returns the trackpad position (x, y each 0..255).
func (c *Controller) Trackpad(h Hand) (x, y int, ok bool) {
	x, ok = c.uintWidget(h, "trackpad_x")
	if !ok {
		return 0, 0, false
	}
	y, ok = c.uintWidget(h, "trackpad_y")
	return x, y, ok
}

// TrackpadTouched reports whether the trackpad is touched.
func (c *Controller) TrackpadTouched(h Hand) (bool, bool) {
	return c.boolWidget(h, "trackpad_touched")
}

// Slider returns the slider position (0..126).
func (c *Controller) Slider(h Hand) (int, bool) {
	return c.uintWidget(h, "slider_value")
}

// GripPull returns the grip gesture pressure (0..126).
func (c *Controller) GripPull(h Hand) (int, bool) {
	return c.uintWidget(h, "grip_pull")
}

// BatteryLevel returns the battery charge percentage.
func (c *Controller) BatteryLevel(h Hand) (int, bool) {
	return c.uintWidget(h, "battery_level")
}

// BatteryCharging reports whether the controller is charging.
func (c *Controller) BatteryCharging(h Hand) (bool, bool) {
	return c.boolWidget(h, "battery_charging")
}

// SystemButton reports whether the system button is pressed.
func (c *Controller) SystemButton(h Hand) (bool, bool) {
	return c.boolWidget(h, "system_button")
}

// IMU returns the hand's raw 16-bit IMU registers in sensor order:
// accelerometer, gyroscope, magnetometer, each x/y/z.
func (c *Controller) IMU(h Hand) (accel, gyro, mag [3]int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	frame := c.frames[h]
	if frame == nil {
		return accel, gyro, mag, false
	}
	for i, axis := range [3]string{"x", "y", "z"} {
		accel[i] = frame["accel_"+axis].Int()
		gyro[i] = frame["gyro_"+axis].Int()
		mag[i] = frame["mag_"+axis].Int()
	}
	return accel, gyro, mag, true
}

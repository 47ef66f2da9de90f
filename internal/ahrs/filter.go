package ahrs

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// IMU scale factors for the controller's 16-bit sensor registers.
// Accelerometer full scale is ±4 g, gyroscope ±2000 deg/s converted to
// rad/s, and the magnetometer axes carry per-axis gains.
const (
	AccelSensitivity = 4.0 / 32768.0
	GyroSensitivity  = (2000.0 / 32768.0) * (math.Pi / 180.0)

	DefaultBeta         = 0.0315
	DefaultSamplePeriod = 1.0 / 97.0

	// periodWindow is the number of recent samples used to estimate the
	// actual update rate.
	periodWindow = 100
)

var magSensitivity = r3.Vec{X: 0.38, Y: 0.38, Z: 0.61}

// ScaleAccel converts raw accelerometer register values to g.
func ScaleAccel(x, y, z int64) r3.Vec {
	return r3.Scale(AccelSensitivity, r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)})
}

// ScaleGyro converts raw gyroscope register values to rad/s, after
// subtracting the per-device offset obtained from the dongle.
func ScaleGyro(x, y, z int64, offset r3.Vec) r3.Vec {
	v := r3.Sub(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}, offset)
	return r3.Scale(GyroSensitivity, v)
}

// ScaleMag converts raw magnetometer register values to microtesla,
// after subtracting the per-device hard-iron offset.
func ScaleMag(x, y, z int64, offset r3.Vec) r3.Vec {
	v := r3.Sub(r3.Vec{X: float64(x), Y: float64(y), Z: float64(z)}, offset)
	return r3.Vec{X: v.X * magSensitivity.X, Y: v.Y * magSensitivity.Y, Z: v.Z * magSensitivity.Z}
}

// Filter is a Madgwick gradient-descent orientation filter. It is safe
// for concurrent use; each controller hand owns one instance.
type Filter struct {
	mu   sync.Mutex
	beta float64
	q    Quaternion

	// sample-rate estimation
	period    float64
	lastStamp time.Time
	stamps    []time.Time
}

// NewFilter creates a filter at the identity orientation with the
// stock gain.
func NewFilter() *Filter {
	return &Filter{
		beta:   DefaultBeta,
		q:      Identity(),
		period: DefaultSamplePeriod,
	}
}

// Quaternion returns the current orientation estimate.
func (f *Filter) Quaternion() Quaternion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q
}

// Euler returns the current orientation as roll, pitch, yaw in radians.
func (f *Filter) Euler() (roll, pitch, yaw float64) {
	return f.Quaternion().Euler()
}

// Reset returns the filter to the identity orientation and the default
// sample period.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.q = Identity()
	f.period = DefaultSamplePeriod
	f.lastStamp = time.Time{}
	f.stamps = f.stamps[:0]
}

// samplePeriod returns the period to integrate over for a sample taken
// at now, updating the rolling rate estimate. Frames do not arrive at
// an exact rate, so the period is averaged over a window of recent
// samples once enough have been seen.
func (f *Filter) samplePeriod(now time.Time) float64 {
	defer func() {
		f.lastStamp = now
		f.stamps = append(f.stamps, now)
		if len(f.stamps) > periodWindow {
			f.stamps = f.stamps[1:]
		}
	}()

	if f.lastStamp.IsZero() {
		return f.period
	}
	if len(f.stamps) >= 2 {
		span := f.stamps[len(f.stamps)-1].Sub(f.stamps[0]).Seconds()
		if avg := span / float64(len(f.stamps)-1); avg > 0 {
			f.period = avg
		}
	}
	dt := now.Sub(f.lastStamp).Seconds()
	if dt <= 0 || dt > 10*f.period {
		return f.period
	}
	return dt
}

// UpdateIMU advances the filter with a gyroscope and accelerometer
// sample taken at now. Gyro is in rad/s, accel in any consistent unit
// (only its direction matters).
func (f *Filter) UpdateIMU(gyro, accel r3.Vec, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dt := f.samplePeriod(now)
	q0, q1, q2, q3 := f.q.W, f.q.X, f.q.Y, f.q.Z

	// Rate of change of quaternion from gyroscope.
	qDot0 := 0.5 * (-q1*gyro.X - q2*gyro.Y - q3*gyro.Z)
	qDot1 := 0.5 * (q0*gyro.X + q2*gyro.Z - q3*gyro.Y)
	qDot2 := 0.5 * (q0*gyro.Y - q1*gyro.Z + q3*gyro.X)
	qDot3 := 0.5 * (q0*gyro.Z + q1*gyro.Y - q2*gyro.X)

	if n := r3.Norm(accel); n > 0 {
		ax, ay, az := accel.X/n, accel.Y/n, accel.Z/n

		// Gradient descent corrective step.
		f0 := 2*(q1*q3-q0*q2) - ax
		f1 := 2*(q0*q1+q2*q3) - ay
		f2 := 2*(0.5-q1*q1-q2*q2) - az

		s0 := -2*q2*f0 + 2*q1*f1
		s1 := 2*q3*f0 + 2*q0*f1 - 4*q1*f2
		s2 := -2*q0*f0 + 2*q3*f1 - 4*q2*f2
		s3 := 2*q1*f0 + 2*q2*f1

		if sn := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3); sn > 0 {
			qDot0 -= f.beta * s0 / sn
			qDot1 -= f.beta * s1 / sn
			qDot2 -= f.beta * s2 / sn
			qDot3 -= f.beta * s3 / sn
		}
	}

	f.q = Quaternion{
		W: q0 + qDot0*dt,
		X: q1 + qDot1*dt,
		Y: q2 + qDot2*dt,
		Z: q3 + qDot3*dt,
	}.Normalized()
}

// Update advances the filter with a full MARG sample taken at now. A
// zero magnetometer reading falls back to the IMU-only update.
func (f *Filter) Update(gyro, accel, mag r3.Vec, now time.Time) {
	if r3.Norm(mag) == 0 {
		f.UpdateIMU(gyro, accel, now)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dt := f.samplePeriod(now)
	q0, q1, q2, q3 := f.q.W, f.q.X, f.q.Y, f.q.Z

	qDot0 := 0.5 * (-q1*gyro.X - q2*gyro.Y - q3*gyro.Z)
	qDot1 := 0.5 * (q0*gyro.X + q2*gyro.Z - q3*gyro.Y)
	qDot2 := 0.5 * (q0*gyro.Y - q1*gyro.Z + q3*gyro.X)
	qDot3 := 0.5 * (q0*gyro.Z + q1*gyro.Y - q2*gyro.X)

	if an := r3.Norm(accel); an > 0 {
		ax, ay, az := accel.X/an, accel.Y/an, accel.Z/an
		mn := r3.Norm(mag)
		mx, my, mz := mag.X/mn, mag.Y/mn, mag.Z/mn

		// Reference direction of the Earth's magnetic field.
		twoq0mx := 2 * q0 * mx
		twoq0my := 2 * q0 * my
		twoq0mz := 2 * q0 * mz
		twoq1mx := 2 * q1 * mx

		hx := mx*q0*q0 - twoq0my*q3 + twoq0mz*q2 + mx*q1*q1 +
			2*q1*my*q2 + 2*q1*mz*q3 - mx*q2*q2 - mx*q3*q3
		hy := twoq0mx*q3 + my*q0*q0 - twoq0mz*q1 + twoq1mx*q2 -
			my*q1*q1 + my*q2*q2 + 2*q2*mz*q3 - my*q3*q3
		twobx := math.Sqrt(hx*hx + hy*hy)
		twobz := -twoq0mx*q2 + twoq0my*q1 + mz*q0*q0 + twoq1mx*q3 -
			mz*q1*q1 + 2*q2*my*q3 - mz*q2*q2 + mz*q3*q3

		// Gradient descent corrective step.
		f0 := 2*(q1*q3-q0*q2) - ax
		f1 := 2*(q0*q1+q2*q3) - ay
		f2 := 2*(0.5-q1*q1-q2*q2) - az
		f3 := twobx*(0.5-q2*q2-q3*q3) + twobz*(q1*q3-q0*q2) - mx
		f4 := twobx*(q1*q2-q0*q3) + twobz*(q0*q1+q2*q3) - my
		f5 := twobx*(q0*q2+q1*q3) + twobz*(0.5-q1*q1-q2*q2) - mz

		s0 := -2*q2*f0 + 2*q1*f1 - twobz*q2*f3 +
			(-twobx*q3+twobz*q1)*f4 + twobx*q2*f5
		s1 := 2*q3*f0 + 2*q0*f1 - 4*q1*f2 + twobz*q3*f3 +
			(twobx*q2+twobz*q0)*f4 + (twobx*q3-2*twobz*q1)*f5
		s2 := -2*q0*f0 + 2*q3*f1 - 4*q2*f2 +
			(-2*twobx*q2-twobz*q0)*f3 + (twobx*q1+twobz*q3)*f4 +
			(twobx*q0-2*twobz*q2)*f5
		s3 := 2*q1*f0 + 2*q2*f1 + (-2*twobx*q3+twobz*q1)*f3 +
			(-twobx*q0+twobz*q2)*f4 + twobx*q1*f5

		if sn := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3); sn > 0 {
			qDot0 -= f.beta * s0 / sn
			qDot1 -= f.beta * s1 / sn
			qDot2 -= f.beta * s2 / sn
			qDot3 -= f.beta * s3 / sn
		}
	}

	f.q = Quaternion{
		W: q0 + qDot0*dt,
		X: q1 + qDot1*dt,
		Y: q2 + qDot2*dt,
		Z: q3 + qDot3*dt,
	}.Normalized()
}

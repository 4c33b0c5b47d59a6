// Package host abstracts the audio host that exposes virtual devices and
// drives their pull callbacks. The daemon talks to the host only through
// the Host interface; the Pipe backend delivers paced PCM into named
// pipes, and Mock is the test double.
package host

import "context"

// SampleRate is the fixed rate of every virtual device, in Hz.
const SampleRate = 48000

// DeviceDesc describes a virtual input device to the host.
type DeviceDesc struct {
	Name       string
	SampleRate int
	Channels   int
}

// PullFunc fills dst with the next len(dst) frames of a device's audio.
// It completes synchronously, never blocks indefinitely, and must not
// retain dst past the call.
type PullFunc func(dst []int16)

// Handle identifies a registered device for Unregister.
type Handle interface {
	Name() string
}

// Host publishes virtual devices.
//
// Register returns only after the device is fully wired to its pull
// callback, so the host can never observe a half-initialized device.
// Unregister returns only after the host will issue no further pulls for
// the device.
type Host interface {
	Register(ctx context.Context, desc DeviceDesc, pull PullFunc) (Handle, error)
	Unregister(ctx context.Context, h Handle) error
}

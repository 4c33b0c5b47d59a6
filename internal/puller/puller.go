// Package puller converts buffered capture frames into the fixed-size
// int16 blocks the audio host requests, one puller per virtual device.
package puller

import (
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/duomic/duomic-go/internal/shm"
)

const (
	// TargetLatency is the frame distance behind the write cursor a puller
	// establishes on its first pull and returns to after an overrun.
	TargetLatency = 1024

	// OverrunMargin is how close to a full ring the backlog may grow
	// before the cursor snaps forward. Tuned empirically, together with
	// TargetLatency, in the original driver.
	OverrunMargin = 512
)

// Source is the segment view a Puller reads from. *shm.Reader satisfies it.
type Source interface {
	Active() bool
	ChannelCount() uint32
	Samples() []float32
	WritePos() uint32
}

// Puller extracts one channel from the shared segment.
//
// readPos is frame-granular, advances monotonically mod 2^32 and is
// touched only by Pull. The host must not invoke Pull for the same device
// from two goroutines at once; concurrent pulls across different pullers
// are fine.
type Puller struct {
	src     Source
	channel uint32
	name    string
	readPos uint32

	target uint32
	margin uint32

	frames    atomic.Uint64
	underruns atomic.Uint64
	overruns  atomic.Uint64

	warn *rate.Limiter
}

// Option tunes a Puller at construction time.
type Option func(*Puller)

// WithTargetLatency overrides the steady-state latency in frames.
func WithTargetLatency(frames uint32) Option {
	return func(p *Puller) { p.target = frames }
}

// WithOverrunMargin overrides the backlog safety margin in frames.
func WithOverrunMargin(frames uint32) Option {
	return func(p *Puller) { p.margin = frames }
}

// New creates a puller for one channel of src. name is used for logging
// only.
func New(src Source, channel int, name string, opts ...Option) *Puller {
	p := &Puller{
		src:     src,
		channel: uint32(channel),
		name:    name,
		target:  TargetLatency,
		margin:  OverrunMargin,
		warn:    rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Channel returns the capture channel this puller reads.
func (p *Puller) Channel() int { return int(p.channel) }

// ReadPos returns the current read cursor. 0 means not yet seeded.
func (p *Puller) ReadPos() uint32 { return p.readPos }

// Counters returns the delivery counters. Safe to call while pulls run.
func (p *Puller) Counters() (frames, underruns, overruns uint64) {
	return p.frames.Load(), p.underruns.Load(), p.overruns.Load()
}

// Pull fills dst with one int16 sample per requested frame. Audio-path
// failures never surface as errors; the block degrades to silence and the
// cursor is left where it was.
func (p *Puller) Pull(dst []int16) {
	n := uint32(len(dst))
	if n == 0 {
		return
	}
	if !p.src.Active() {
		silence(dst)
		return
	}
	samples := p.src.Samples()
	if samples == nil {
		silence(dst)
		return
	}
	channels := p.src.ChannelCount()
	if p.channel >= channels {
		silence(dst)
		return
	}

	writePos := p.src.WritePos()

	// First real pull: start TargetLatency behind the producer instead of
	// at frame 0, which would mean draining the whole backlog.
	if p.readPos == 0 && writePos > p.target {
		p.readPos = writePos - p.target
	}

	// Unsigned wraparound arithmetic; correct unless the producer drifts
	// past ~2^31 frames ahead, which would be a producer fault.
	available := writePos - p.readPos

	if available > shm.RingBufferFrames-p.margin {
		// Fallen far enough behind that unread frames are about to be
		// overwritten. Sacrifice the stale backlog rather than read
		// corrupted frames.
		p.overruns.Add(1)
		if p.warn.Allow() {
			slog.Warn("puller: overrun, resetting latency",
				"device", p.name, "backlog", available)
		}
		p.readPos = writePos - p.target
		available = p.target
	}

	if writePos <= p.readPos || available < n {
		p.underruns.Add(1)
		if p.warn.Allow() {
			slog.Debug("puller: underrun",
				"device", p.name, "available", available, "requested", n)
		}
		silence(dst)
		return
	}

	toRead := min(n, writePos-p.readPos)
	for i := uint32(0); i < toRead; i++ {
		frame := (p.readPos + i) % shm.RingBufferFrames
		dst[i] = convert(samples[frame*channels+p.channel])
	}
	// Only reachable if the producer raced available above; the remainder
	// stays silent.
	for i := toRead; i < n; i++ {
		dst[i] = 0
	}

	p.readPos += toRead
	p.frames.Add(uint64(toRead))
}

// convert clamps s to [-1.0, 1.0] and scales to int16. Clamping first
// keeps the clipping symmetric: +1.0 and above map to 32767, -1.0 and
// below to -32768.
func convert(s float32) int16 {
	if s >= 1.0 {
		return 32767
	}
	if s <= -1.0 {
		return -32768
	}
	return int16(s * 32767.0)
}

func silence(dst []int16) {
	for i := range dst {
		dst[i] = 0
	}
}

package puller

import (
	"testing"

	"github.com/duomic/duomic-go/internal/shm"
)

// fakeSource is an in-memory Source with a directly controllable header.
type fakeSource struct {
	active   bool
	channels uint32
	writePos uint32
	samples  []float32
}

func (f *fakeSource) Active() bool         { return f.active }
func (f *fakeSource) ChannelCount() uint32 { return f.channels }
func (f *fakeSource) WritePos() uint32     { return f.writePos }
func (f *fakeSource) Samples() []float32   { return f.samples }

// newFakeSource builds an active source where channel c of frame i holds
// ramp(i, c), so tests can verify exactly which frames a pull read.
func newFakeSource(channels, writePos uint32) *fakeSource {
	f := &fakeSource{
		active:   true,
		channels: channels,
		writePos: writePos,
		samples:  make([]float32, shm.RingBufferFrames*channels),
	}
	for frame := uint32(0); frame < shm.RingBufferFrames; frame++ {
		for c := uint32(0); c < channels; c++ {
			f.samples[frame*channels+c] = ramp(frame, c)
		}
	}
	return f
}

func ramp(frame, channel uint32) float32 {
	// Small distinct values, exact in float32 and in the int16 conversion.
	return float32(int32(frame%100)-50+int32(channel)) / 1000.0
}

func allZero(block []int16) bool {
	for _, s := range block {
		if s != 0 {
			return false
		}
	}
	return true
}

func TestPullInactiveProducer(t *testing.T) {
	src := newFakeSource(2, 5000)
	src.active = false
	p := New(src, 0, "test")

	block := make([]int16, 256)
	block[0] = 1234 // must be overwritten with silence
	p.Pull(block)

	if !allZero(block) {
		t.Error("pull from inactive producer did not return silence")
	}
	if p.ReadPos() != 0 {
		t.Errorf("cursor advanced to %d on inactive producer", p.ReadPos())
	}
}

func TestPullChannelOutOfRange(t *testing.T) {
	src := newFakeSource(2, 5000)
	p := New(src, 3, "test")

	block := make([]int16, 256)
	p.Pull(block)

	if !allZero(block) {
		t.Error("out-of-range channel did not return silence")
	}
	if p.ReadPos() != 0 {
		t.Errorf("cursor advanced to %d on out-of-range channel", p.ReadPos())
	}
}

func TestPullNilSamples(t *testing.T) {
	src := &fakeSource{active: true, channels: 2, writePos: 5000}
	p := New(src, 0, "test")

	block := make([]int16, 64)
	p.Pull(block)
	if !allZero(block) || p.ReadPos() != 0 {
		t.Error("nil sample area must yield silence without advancing")
	}
}

// First pull seeds the cursor TargetLatency behind the producer and reads
// from there: config studioMic:3, 4 channels, writePos 2000, 256 frames.
func TestFirstPullSeedsLatency(t *testing.T) {
	src := newFakeSource(4, 2000)
	p := New(src, 3, "studioMic")

	block := make([]int16, 256)
	p.Pull(block)

	if got := p.ReadPos(); got != 1232 {
		t.Fatalf("readPos = %d, want 2000-1024+256 = 1232", got)
	}
	// Frames [976..1232) from channel 3.
	for i, s := range block {
		want := convert(ramp(uint32(976+i)%shm.RingBufferFrames, 3))
		if s != want {
			t.Fatalf("block[%d] = %d, want %d", i, s, want)
		}
	}
}

func TestPullUnderrunLeavesCursor(t *testing.T) {
	src := newFakeSource(2, 2000)
	p := New(src, 0, "test")

	// Seed: readPos = 976, 1024 available.
	block := make([]int16, 256)
	p.Pull(block)
	if p.ReadPos() != 1232 {
		t.Fatalf("seed pull readPos = %d, want 1232", p.ReadPos())
	}

	// 768 frames left; ask for more than that.
	big := make([]int16, 1024)
	big[7] = 77
	p.Pull(big)
	if !allZero(big) {
		t.Error("underrun block not silent")
	}
	if p.ReadPos() != 1232 {
		t.Errorf("underrun advanced cursor to %d", p.ReadPos())
	}

	// No new data at all: writePos == readPos after draining.
	drain := make([]int16, 768)
	p.Pull(drain)
	if p.ReadPos() != 2000 {
		t.Fatalf("drain readPos = %d, want 2000", p.ReadPos())
	}
	again := make([]int16, 64)
	p.Pull(again)
	if !allZero(again) || p.ReadPos() != 2000 {
		t.Error("pull with writePos == readPos must be a silent no-op")
	}
}

func TestPullOverrunResetsLatency(t *testing.T) {
	src := newFakeSource(1, 2000)
	p := New(src, 0, "test")

	block := make([]int16, 128)
	p.Pull(block) // readPos = 976+128 = 1104

	// Producer runs far ahead: backlog exceeds RingBufferFrames-OverrunMargin.
	src.writePos = 1104 + shm.RingBufferFrames - OverrunMargin + 1

	p.Pull(block)
	want := src.writePos - TargetLatency + 128
	if got := p.ReadPos(); got != want {
		t.Errorf("readPos after overrun = %d, want %d", got, want)
	}
	_, _, overruns := p.Counters()
	if overruns != 1 {
		t.Errorf("overruns = %d, want 1", overruns)
	}
}

func TestPullBeforeProducerReachesLatency(t *testing.T) {
	// writePos below TargetLatency: cursor stays unseeded at 0 and the
	// request (larger than available) underruns.
	src := newFakeSource(1, 100)
	p := New(src, 0, "test")

	block := make([]int16, 256)
	p.Pull(block)
	if !allZero(block) || p.ReadPos() != 0 {
		t.Error("pull before latency threshold must stay silent and unseeded")
	}

	// A small request is served from frame 0.
	small := make([]int16, 64)
	p.Pull(small)
	if p.ReadPos() != 64 {
		t.Errorf("readPos = %d, want 64", p.ReadPos())
	}
	if small[0] != convert(ramp(0, 0)) {
		t.Errorf("small[0] = %d, want frame 0", small[0])
	}
}

func TestConvertClampedRounding(t *testing.T) {
	cases := []struct {
		in   float32
		want int16
	}{
		{0.0, 0},
		{1.0, 32767},
		{2.5, 32767},
		{-1.0, -32768},
		{-3.0, -32768},
		{0.5, 16383},
		{-0.5, -16383},
	}
	for _, tc := range cases {
		if got := convert(tc.in); got != tc.want {
			t.Errorf("convert(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}

	// Monotonic over a sweep.
	prev := convert(-1.5)
	for s := float32(-1.4); s <= 1.5; s += 0.1 {
		cur := convert(s)
		if cur < prev {
			t.Fatalf("convert not monotonic at %v: %d < %d", s, cur, prev)
		}
		prev = cur
	}
}

func TestCountersAccumulate(t *testing.T) {
	src := newFakeSource(2, 2000)
	p := New(src, 1, "test")

	block := make([]int16, 256)
	p.Pull(block)
	p.Pull(make([]int16, 4096)) // underrun

	frames, underruns, _ := p.Counters()
	if frames != 256 {
		t.Errorf("frames = %d, want 256", frames)
	}
	if underruns != 1 {
		t.Errorf("underruns = %d, want 1", underruns)
	}
}

func TestTuningOptions(t *testing.T) {
	src := newFakeSource(1, 2000)
	p := New(src, 0, "test", WithTargetLatency(100), WithOverrunMargin(64))

	block := make([]int16, 50)
	p.Pull(block)
	if got := p.ReadPos(); got != 1950 {
		t.Errorf("readPos = %d, want 2000-100+50 = 1950", got)
	}
}

// Package shm implements the shared-memory audio segment protocol between
// the capture producer and the duomic daemon.
//
// Segment layout (native endian):
//
//	bytes 0..3    writePos      monotonically increasing frame count
//	bytes 4..7    channelCount  interleaved channels per frame
//	bytes 8..11   sampleRate    Hz
//	bytes 12..15  active        1 while the producer is live
//	bytes 16..    interleaved float32 samples, RingBufferFrames frames
//
// writePos wraps at 2^32, not at the ring size; modulo arithmetic applies
// only when indexing the sample area. The producer publishes writePos with
// release ordering after the sample writes it covers, and readers pair
// that with an acquire load, so a reader that observes a given writePos is
// guaranteed to see every frame below it.
package shm

const (
	// DefaultPath is the segment location used by the capture producer.
	DefaultPath = "/tmp/duomic_audio"

	// RingBufferFrames is the ring capacity in frames.
	RingBufferFrames = 8192

	// HeaderSize is the byte offset of the sample area.
	HeaderSize = 16
)

// Header word indices (uint32 offsets into the segment).
const (
	hdrWritePos = iota
	hdrChannelCount
	hdrSampleRate
	hdrActive
)

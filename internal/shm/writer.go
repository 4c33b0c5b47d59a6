package shm

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Writer is the producer side of the segment. The daemon itself never
// writes to the segment; Writer exists for tooling and for the test suites
// that stand in for the external capture process.
type Writer struct {
	path     string
	mem      []byte
	fd       int
	channels uint32
}

// NewWriter creates (or reuses) the segment at path and marks it active.
// The segment is sized for RingBufferFrames frames of the given channel
// count.
func NewWriter(path string, channels, sampleRate uint32) (*Writer, error) {
	if path == "" {
		path = DefaultPath
	}
	if channels == 0 {
		return nil, fmt.Errorf("shm: channel count must be positive")
	}
	size := HeaderSize + RingBufferFrames*int(channels)*4

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_CLOEXEC, 0o666)
	if err != nil {
		return nil, fmt.Errorf("shm: open %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: truncate %s: %w", path, err)
	}
	mem, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	w := &Writer{path: path, mem: mem, fd: fd, channels: channels}
	w.storeWord(hdrChannelCount, channels)
	w.storeWord(hdrSampleRate, sampleRate)
	w.storeWord(hdrActive, 1)
	return w, nil
}

// WritePos returns the current write cursor.
func (w *Writer) WritePos() uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&w.mem[0])))
}

// WriteFrames appends interleaved frames to the ring and publishes the new
// write cursor with release ordering. len(samples) must be a multiple of
// the channel count; a short tail is dropped.
func (w *Writer) WriteFrames(samples []float32) {
	frames := uint32(len(samples)) / w.channels
	if frames == 0 {
		return
	}
	ring := w.samples()
	pos := w.WritePos()
	for f := uint32(0); f < frames; f++ {
		slot := (pos % RingBufferFrames) * w.channels
		copy(ring[slot:slot+w.channels], samples[f*w.channels:(f+1)*w.channels])
		pos++ // monotonic, wraps at 2^32 not at the ring size
	}
	// The store is the release publish the reader's acquire load pairs with.
	w.storeWord(hdrWritePos, pos)
}

// SetActive flips the producer-live flag.
func (w *Writer) SetActive(active bool) {
	var v uint32
	if active {
		v = 1
	}
	w.storeWord(hdrActive, v)
}

// Remove unlinks the segment file.
func (w *Writer) Remove() error {
	return os.Remove(w.path)
}

// Close marks the segment inactive and unmaps it. Idempotent.
func (w *Writer) Close() {
	if w.mem != nil {
		w.SetActive(false)
		unix.Munmap(w.mem)
		w.mem = nil
	}
	if w.fd >= 0 {
		unix.Close(w.fd)
		w.fd = -1
	}
}

func (w *Writer) samples() []float32 {
	n := (len(w.mem) - HeaderSize) / 4
	return unsafe.Slice((*float32)(unsafe.Pointer(&w.mem[HeaderSize])), n)
}

func (w *Writer) storeWord(i int, v uint32) {
	atomic.StoreUint32((*uint32)(unsafe.Pointer(&w.mem[i*4])), v)
}

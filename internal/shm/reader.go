package shm

import (
	"log/slog"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Reader maps the capture segment read-only. The zero state is
// disconnected; every accessor degrades to a safe default until Connect
// succeeds. A Reader never writes to the segment.
//
// Connect and Close are wired at the composition root before pulls begin;
// the remaining accessors are read-only and safe for concurrent use across
// pullers.
type Reader struct {
	path string
	mem  []byte
	fd   int
}

// NewReader returns a disconnected reader for the segment at path.
// An empty path selects DefaultPath.
func NewReader(path string) *Reader {
	if path == "" {
		path = DefaultPath
	}
	return &Reader{path: path, fd: -1}
}

// Connect opens and maps the segment. A missing, undersized, or unmappable
// segment leaves the reader disconnected without an error; Connect never
// retries on its own. Calling Connect on a connected reader is a no-op.
func (r *Reader) Connect() {
	if r.mem != nil {
		return
	}
	fd, err := unix.Open(r.path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		slog.Debug("shm: segment not available", "path", r.path, "err", err)
		return
	}
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil || st.Size < HeaderSize {
		unix.Close(fd)
		slog.Debug("shm: segment too small", "path", r.path)
		return
	}
	mem, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		slog.Warn("shm: mmap failed", "path", r.path, "err", err)
		return
	}
	r.fd = fd
	r.mem = mem
	slog.Info("shm: segment mapped", "path", r.path, "bytes", len(mem))
}

// Connected reports whether the segment is currently mapped.
func (r *Reader) Connected() bool { return r.mem != nil }

// Path returns the segment path this reader was created with.
func (r *Reader) Path() string { return r.path }

// Active reports whether the producer has marked the segment live.
// False when disconnected.
func (r *Reader) Active() bool {
	if r.mem == nil {
		return false
	}
	return r.headerWord(hdrActive) == 1
}

// ChannelCount returns the producer's interleaved channel count, or 2 when
// disconnected.
func (r *Reader) ChannelCount() uint32 {
	if r.mem == nil {
		return 2
	}
	return r.headerWord(hdrChannelCount)
}

// SampleRate returns the producer's sample rate in Hz, or 0 when
// disconnected.
func (r *Reader) SampleRate() uint32 {
	if r.mem == nil {
		return 0
	}
	return r.headerWord(hdrSampleRate)
}

// WritePos returns the producer's write cursor. The load is
// acquire-ordered and pairs with the producer's release publish, so sample
// reads below the returned position observe fully written frames.
func (r *Reader) WritePos() uint32 {
	if r.mem == nil {
		return 0
	}
	return r.headerWord(hdrWritePos)
}

// Samples returns the interleaved float32 sample area, or nil when
// disconnected.
func (r *Reader) Samples() []float32 {
	if r.mem == nil {
		return nil
	}
	n := (len(r.mem) - HeaderSize) / 4
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.mem[HeaderSize])), n)
}

// Close unmaps and closes the segment. Safe to call repeatedly or on a
// reader that never connected.
func (r *Reader) Close() {
	if r.mem != nil {
		if err := unix.Munmap(r.mem); err != nil {
			slog.Warn("shm: munmap failed", "path", r.path, "err", err)
		}
		r.mem = nil
	}
	if r.fd >= 0 {
		unix.Close(r.fd)
		r.fd = -1
	}
}

// headerWord does an atomic load of the i-th header field. The producer
// mutates writePos and active while we read, so plain loads are out.
func (r *Reader) headerWord(i int) uint32 {
	return atomic.LoadUint32((*uint32)(unsafe.Pointer(&r.mem[i*4])))
}

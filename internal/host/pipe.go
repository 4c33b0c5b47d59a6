package host

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultBlockFrames is how many frames the pipe host pulls per cycle.
const DefaultBlockFrames = 512

// Pipe exposes each device as a named pipe carrying little-endian 16-bit
// mono PCM, paced at the device sample rate. Pointing a PulseAudio or
// PipeWire pipe-source at the FIFO turns it into a system input device.
//
// A pipe with no reader attached drops blocks instead of stalling the
// pacer, so a device keeps consuming its channel cursor whether or not
// anything listens.
type Pipe struct {
	dir   string
	block int

	mu   sync.Mutex
	devs map[string]*pipeDevice
}

type pipeDevice struct {
	name   string
	path   string
	cancel context.CancelFunc
	done   chan struct{}
}

func (d *pipeDevice) Name() string { return d.name }

// NewPipe creates a pipe host placing FIFOs under dir.
func NewPipe(dir string) (*Pipe, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pipe host: create %s: %w", dir, err)
	}
	return &Pipe{dir: dir, block: DefaultBlockFrames, devs: make(map[string]*pipeDevice)}, nil
}

func (p *Pipe) Register(_ context.Context, desc DeviceDesc, pull PullFunc) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.devs[desc.Name]; ok {
		return nil, fmt.Errorf("pipe host: device %q already registered", desc.Name)
	}

	path := filepath.Join(p.dir, desc.Name+".pcm")
	if err := unix.Mkfifo(path, 0o666); err != nil && err != unix.EEXIST {
		return nil, fmt.Errorf("pipe host: mkfifo %s: %w", path, err)
	}

	rate := desc.SampleRate
	if rate <= 0 {
		rate = SampleRate
	}

	runCtx, cancel := context.WithCancel(context.Background())
	dev := &pipeDevice{
		name:   desc.Name,
		path:   path,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.devs[desc.Name] = dev

	go p.run(runCtx, dev, pull, rate)
	slog.Info("pipe host: device published", "name", desc.Name, "fifo", path)
	return dev, nil
}

func (p *Pipe) Unregister(_ context.Context, h Handle) error {
	p.mu.Lock()
	dev, ok := p.devs[h.Name()]
	if ok {
		delete(p.devs, h.Name())
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("pipe host: device %q not registered", h.Name())
	}

	dev.cancel()
	<-dev.done
	if err := os.Remove(dev.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("pipe host: could not remove fifo", "path", dev.path, "err", err)
	}
	slog.Info("pipe host: device retracted", "name", dev.name)
	return nil
}

// Close retracts all devices. Called during daemon shutdown.
func (p *Pipe) Close() {
	p.mu.Lock()
	devs := make([]*pipeDevice, 0, len(p.devs))
	for _, d := range p.devs {
		devs = append(devs, d)
	}
	p.devs = make(map[string]*pipeDevice)
	p.mu.Unlock()

	for _, dev := range devs {
		dev.cancel()
		<-dev.done
		if err := os.Remove(dev.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("pipe host: could not remove fifo", "path", dev.path, "err", err)
		}
	}
}

// run is the pacer: every block period it pulls one block and writes it to
// the FIFO. No further pulls are issued once the context is cancelled.
func (p *Pipe) run(ctx context.Context, dev *pipeDevice, pull PullFunc, rate int) {
	defer close(dev.done)

	period := time.Duration(p.block) * time.Second / time.Duration(rate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	block := make([]int16, p.block)
	wire := make([]byte, 2*p.block)
	fd := -1
	defer func() {
		if fd >= 0 {
			unix.Close(fd)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pull(block)

		if fd < 0 {
			// O_NONBLOCK so an unattached FIFO fails with ENXIO instead
			// of blocking the pacer until a reader shows up.
			f, err := unix.Open(dev.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
			if err != nil {
				continue
			}
			fd = f
		}

		for i, s := range block {
			binary.LittleEndian.PutUint16(wire[2*i:], uint16(s))
		}
		if _, err := unix.Write(fd, wire); err != nil {
			if err == unix.EPIPE {
				unix.Close(fd)
				fd = -1
			}
			// EAGAIN: reader is slow, drop the block.
		}
	}
}

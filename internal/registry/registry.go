// Package registry owns the set of active virtual devices — the single
// source of truth for which endpoints exist — and the binding between each
// device and its puller.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/duomic/duomic-go/internal/events"
	"github.com/duomic/duomic-go/internal/host"
	"github.com/duomic/duomic-go/internal/models"
	"github.com/duomic/duomic-go/internal/puller"
)

// Segment is the registry's view of the shared capture segment.
// *shm.Reader satisfies it.
type Segment interface {
	puller.Source
	Connected() bool
	SampleRate() uint32
}

type entry struct {
	device models.Device
	puller *puller.Puller
	handle host.Handle
}

// Registry is the mutually-exclusive collection of named devices.
//
// The lock guards the collection only; it is never held across a pull, so
// control-plane mutations cannot stall audio delivery. Each entry's puller
// state is detached from the lock once the entry exists.
type Registry struct {
	mu      sync.Mutex
	host    host.Host
	seg     Segment
	bus     *events.Bus
	entries []*entry // insertion order
}

// New creates an empty registry publishing devices through h and reading
// audio from seg. bus may be nil when no event consumers exist.
func New(h host.Host, seg Segment, bus *events.Bus) *Registry {
	return &Registry{host: h, seg: seg, bus: bus}
}

// Add creates a device for one capture channel and publishes it to the
// host. The host-side object is fully wired to its puller before it
// becomes visible. Either fully succeeds or leaves the registry unchanged.
func (r *Registry) Add(ctx context.Context, name string, channel int) error {
	if name == "" {
		return models.ErrInvalidName
	}
	if channel < 0 || channel >= models.MaxChannels {
		return models.ErrInvalidChannel
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.find(name) != nil {
		return models.ErrDuplicateName
	}

	p := puller.New(r.seg, channel, name)
	desc := host.DeviceDesc{Name: name, SampleRate: host.SampleRate, Channels: 1}
	h, err := r.host.Register(ctx, desc, p.Pull)
	if err != nil {
		return fmt.Errorf("registry: host register %q: %w", name, err)
	}

	r.entries = append(r.entries, &entry{
		device: models.Device{Name: name, Channel: channel},
		puller: p,
		handle: h,
	})
	slog.Info("registry: device added", "name", name, "channel", channel)
	r.publishLocked()
	return nil
}

// Remove unregisters a device from the host and erases it. The host
// guarantees no further pulls for the device once Unregister returns.
func (r *Registry) Remove(ctx context.Context, name string) error {
	if name == "" {
		return models.ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.device.Name != name {
			continue
		}
		if err := r.host.Unregister(ctx, e.handle); err != nil {
			return fmt.Errorf("registry: host unregister %q: %w", name, err)
		}
		r.entries = append(r.entries[:i], r.entries[i+1:]...)
		slog.Info("registry: device removed", "name", name)
		r.publishLocked()
		return nil
	}
	return models.ErrNotFound
}

// Devices returns the devices in insertion order. Pure read.
func (r *Registry) Devices() []models.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	devices := make([]models.Device, len(r.entries))
	for i, e := range r.entries {
		devices[i] = e.device
	}
	return devices
}

// Statuses returns the devices with their delivery counters, in insertion
// order.
func (r *Registry) Statuses() []models.DeviceStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make([]models.DeviceStatus, len(r.entries))
	for i, e := range r.entries {
		frames, underruns, overruns := e.puller.Counters()
		statuses[i] = models.DeviceStatus{
			Device: e.device,
			Stats: models.DeviceStats{
				Frames:    frames,
				Underruns: underruns,
				Overruns:  overruns,
			},
		}
	}
	return statuses
}

// Segment returns the current segment state for status reporting.
func (r *Registry) Segment() models.SegmentStatus {
	return models.SegmentStatus{
		Connected:    r.seg.Connected(),
		Active:       r.seg.Active(),
		ChannelCount: r.seg.ChannelCount(),
		SampleRate:   r.seg.SampleRate(),
		WritePos:     r.seg.WritePos(),
	}
}

// Sync reconciles the registry with a desired device set: devices not in
// desired are removed, missing ones are added, and a device whose channel
// changed is re-created. Individual failures are logged, not fatal.
func (r *Registry) Sync(ctx context.Context, desired []models.Device) {
	current := r.Devices()

	want := make(map[string]int, len(desired))
	for _, d := range desired {
		want[d.Name] = d.Channel
	}

	for _, d := range current {
		ch, keep := want[d.Name]
		if keep && ch == d.Channel {
			continue
		}
		if err := r.Remove(ctx, d.Name); err != nil {
			slog.Warn("registry: sync remove failed", "name", d.Name, "err", err)
		}
	}

	have := make(map[string]int, len(current))
	for _, d := range r.Devices() {
		have[d.Name] = d.Channel
	}
	for _, d := range desired {
		if _, ok := have[d.Name]; ok {
			continue
		}
		if err := r.Add(ctx, d.Name, d.Channel); err != nil {
			slog.Warn("registry: sync add failed", "name", d.Name, "channel", d.Channel, "err", err)
		}
	}
}

// find returns the entry with the given name, or nil. Caller holds the lock.
func (r *Registry) find(name string) *entry {
	for _, e := range r.entries {
		if e.device.Name == name {
			return e
		}
	}
	return nil
}

// publishLocked pushes the current device list to the bus. Caller holds
// the lock; the bus itself never blocks.
func (r *Registry) publishLocked() {
	if r.bus == nil {
		return
	}
	devices := make([]models.Device, len(r.entries))
	for i, e := range r.entries {
		devices[i] = e.device
	}
	r.bus.Publish(devices)
}

// Package models defines the data structures shared across the duomic daemon.
package models

// MaxChannels is the highest capture channel count the daemon supports.
// Channel indices are validated against this at device creation time.
const MaxChannels = 8

// Device is a virtual microphone endpoint backed by one channel of the
// shared capture segment. Names are unique; channels may be shared.
type Device struct {
	Name    string `json:"name"`
	Channel int    `json:"channel"`
}

// DeviceStats holds delivery counters for one device's puller.
type DeviceStats struct {
	Frames    uint64 `json:"frames"`
	Underruns uint64 `json:"underruns"`
	Overruns  uint64 `json:"overruns"`
}

// DeviceStatus is a device together with its runtime delivery state.
type DeviceStatus struct {
	Device
	Stats DeviceStats `json:"stats"`
}

// SegmentStatus describes the shared capture segment as last observed.
type SegmentStatus struct {
	Connected    bool   `json:"connected"`
	Active       bool   `json:"active"`
	ChannelCount uint32 `json:"channel_count"`
	SampleRate   uint32 `json:"sample_rate"`
	WritePos     uint32 `json:"write_pos"`
}

// Status is the full daemon status reported by the HTTP API and duomicctl.
type Status struct {
	Version string         `json:"version"`
	UptimeS int64          `json:"uptime_s"`
	Segment SegmentStatus  `json:"segment"`
	Devices []DeviceStatus `json:"devices"`
}

// Package config reads the duomic device configuration file: one
// "name:channel" pair per line, '#'-prefixed comments, blank lines
// ignored.
package config

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/duomic/duomic-go/internal/models"
)

// DefaultPath is where the capture producer and operator tooling expect
// the device config.
const DefaultPath = "/tmp/duomic_config"

// DefaultDevices is the built-in device set used when no usable config
// exists: the left and right channel of a stereo capture.
func DefaultDevices() []models.Device {
	return []models.Device{
		{Name: "duomic L", Channel: 0},
		{Name: "duomic R", Channel: 1},
	}
}

// Load reads the config at path. An absent, unreadable, or empty file
// yields DefaultDevices; malformed lines and out-of-range channels are
// skipped with a warning. Load never fails.
func Load(path string) []models.Device {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config: unreadable, using defaults", "path", path, "err", err)
		}
		return DefaultDevices()
	}
	defer f.Close()

	var devices []models.Device
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, chanStr, found := strings.Cut(line, ":")
		if !found {
			slog.Warn("config: skipping malformed line", "path", path, "line", line)
			continue
		}
		channel, err := strconv.Atoi(strings.TrimSpace(chanStr))
		if err != nil || channel < 0 || channel >= models.MaxChannels {
			slog.Warn("config: skipping line with bad channel", "path", path, "line", line)
			continue
		}
		devices = append(devices, models.Device{Name: name, Channel: channel})
	}
	if err := scanner.Err(); err != nil {
		slog.Warn("config: read error, using defaults", "path", path, "err", err)
		return DefaultDevices()
	}

	if len(devices) == 0 {
		return DefaultDevices()
	}
	return devices
}

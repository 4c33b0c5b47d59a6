package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/duomic/duomic-go/internal/api"
	"github.com/duomic/duomic-go/internal/events"
	"github.com/duomic/duomic-go/internal/host"
	"github.com/duomic/duomic-go/internal/models"
	"github.com/duomic/duomic-go/internal/registry"
	"github.com/duomic/duomic-go/internal/shm"
)

// newTestServer spins up the router over a registry with mock
// dependencies.
func newTestServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	bus := events.NewBus()
	reg := registry.New(host.NewMock(), shm.NewReader(filepath.Join(t.TempDir(), "seg")), bus)
	srv := httptest.NewServer(api.NewRouter(reg, bus, "test"))
	t.Cleanup(srv.Close)
	return srv, reg
}

func getJSON(t *testing.T, srv *httptest.Server, path string, v interface{}) {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestGetDevices(t *testing.T) {
	srv, reg := newTestServer(t)
	_ = reg.Add(context.Background(), "duomic L", 0)
	_ = reg.Add(context.Background(), "duomic R", 1)

	var devices []models.Device
	getJSON(t, srv, "/api/devices", &devices)
	if len(devices) != 2 || devices[0].Name != "duomic L" || devices[1].Channel != 1 {
		t.Errorf("devices = %v", devices)
	}
}

func TestGetStatus(t *testing.T) {
	srv, reg := newTestServer(t)
	_ = reg.Add(context.Background(), "mic", 2)

	var status models.Status
	getJSON(t, srv, "/api/status", &status)

	if status.Version != "test" {
		t.Errorf("version = %q", status.Version)
	}
	if status.Segment.Connected || status.Segment.Active {
		t.Error("disconnected segment reported live")
	}
	if len(status.Devices) != 1 || status.Devices[0].Channel != 2 {
		t.Errorf("status devices = %v", status.Devices)
	}
}

func TestSSEDeliversSnapshots(t *testing.T) {
	srv, reg := newTestServer(t)
	_ = reg.Add(context.Background(), "first", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/subscribe", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() []models.Device {
		t.Helper()
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var devices []models.Device
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &devices); err != nil {
				t.Fatalf("bad SSE payload: %v", err)
			}
			return devices
		}
		t.Fatal("SSE stream ended early")
		return nil
	}

	if got := readEvent(); len(got) != 1 || got[0].Name != "first" {
		t.Fatalf("initial snapshot = %v", got)
	}

	_ = reg.Add(context.Background(), "second", 1)
	if got := readEvent(); len(got) != 2 {
		t.Fatalf("snapshot after add = %v", got)
	}
}

package control

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/duomic/duomic-go/internal/models"
)

const clientTimeout = 5 * time.Second

// Client speaks the control protocol. The server closes the connection
// after every command, so each call dials fresh.
type Client struct {
	path string
}

// NewClient creates a client for the socket at path. An empty path selects
// DefaultSocketPath.
func NewClient(path string) *Client {
	if path == "" {
		path = DefaultSocketPath
	}
	return &Client{path: path}
}

// Available reports whether the control socket exists. It says nothing
// about whether the daemon behind it responds; use Ping for that.
func (c *Client) Available() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// Ping checks that the daemon responds.
func (c *Client) Ping() error {
	resp, err := c.do("PING")
	if err != nil {
		return err
	}
	if strings.TrimSpace(resp) != "PONG" {
		return fmt.Errorf("control: unexpected ping response %q", resp)
	}
	return nil
}

// Add creates a virtual device.
func (c *Client) Add(name string, channel int) error {
	resp, err := c.do(fmt.Sprintf("ADD %s:%d", name, channel))
	if err != nil {
		return err
	}
	_, err = parseResponse(resp)
	return err
}

// Remove destroys a virtual device.
func (c *Client) Remove(name string) error {
	resp, err := c.do("REMOVE " + name)
	if err != nil {
		return err
	}
	_, err = parseResponse(resp)
	return err
}

// List returns the daemon's active devices.
func (c *Client) List() ([]models.Device, error) {
	resp, err := c.do("LIST")
	if err != nil {
		return nil, err
	}
	payload, err := parseResponse(resp)
	if err != nil {
		return nil, err
	}

	var devices []models.Device
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, chanStr, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		channel, err := strconv.Atoi(strings.TrimSpace(chanStr))
		if err != nil {
			continue
		}
		devices = append(devices, models.Device{Name: name, Channel: channel})
	}
	return devices, nil
}

// do sends one command over a fresh connection and reads the full
// response.
func (c *Client) do(cmd string) (string, error) {
	conn, err := net.DialTimeout("unix", c.path, clientTimeout)
	if err != nil {
		return "", fmt.Errorf("control: connect %s: %w", c.path, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(clientTimeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("control: send %q: %w", cmd, err)
	}

	// The server writes the whole response and closes; read to EOF or
	// buffer capacity, whichever first.
	buf := make([]byte, 4096)
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			break
		}
	}
	if total == 0 {
		return "", fmt.Errorf("control: empty response to %q", cmd)
	}
	return string(buf[:total]), nil
}

// parseResponse splits a wire response into its payload. "OK" and
// "OK:msg" succeed (payload is anything after the first line), "PONG"
// succeeds, "ERROR:reason" becomes an error.
func parseResponse(resp string) (string, error) {
	head, payload, _ := strings.Cut(resp, "\n")
	head = strings.TrimSpace(head)
	switch {
	case head == "PONG":
		return "", nil
	case strings.HasPrefix(head, "OK"):
		return payload, nil
	case strings.HasPrefix(head, "ERROR:"):
		return "", fmt.Errorf("control: %s", strings.TrimPrefix(head, "ERROR:"))
	default:
		return "", fmt.Errorf("control: unexpected response %q", head)
	}
}

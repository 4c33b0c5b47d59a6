// Package control implements the line-oriented Unix-socket protocol used
// to manage virtual devices at runtime, plus the client side spoken by
// duomicctl.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/duomic/duomic-go/internal/models"
)

// Registry is the device collection the control plane mutates.
type Registry interface {
	Add(ctx context.Context, name string, channel int) error
	Remove(ctx context.Context, name string) error
	Devices() []models.Device
}

// Dispatch parses one command and applies it to reg, returning the exact
// wire response including the trailing newline.
//
// Grammar (case-sensitive keyword, single command per connection):
//
//	ADD <name>:<channel>
//	REMOVE <name>
//	LIST
//	PING
func Dispatch(ctx context.Context, reg Registry, cmd string) string {
	keyword, rest, _ := strings.Cut(strings.TrimSpace(cmd), " ")
	rest = strings.TrimSpace(rest)

	switch keyword {
	case "ADD":
		return handleAdd(ctx, reg, rest)
	case "REMOVE":
		return handleRemove(ctx, reg, rest)
	case "LIST":
		var sb strings.Builder
		sb.WriteString("OK\n")
		for _, d := range reg.Devices() {
			fmt.Fprintf(&sb, "%s:%d\n", d.Name, d.Channel)
		}
		return sb.String()
	case "PING":
		return "PONG\n"
	default:
		return "ERROR:Unknown command\n"
	}
}

// handleAdd parses "<name>:<channel>". The name runs up to the first colon
// and may contain spaces.
func handleAdd(ctx context.Context, reg Registry, arg string) string {
	name, chanStr, found := strings.Cut(arg, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return "ERROR:Invalid name\n"
	}
	if !found {
		return "ERROR:Invalid channel\n"
	}
	channel, err := strconv.Atoi(strings.TrimSpace(chanStr))
	if err != nil || channel < 0 || channel >= models.MaxChannels {
		return "ERROR:Invalid channel\n"
	}

	switch err := reg.Add(ctx, name, channel); {
	case err == nil:
		return "OK:Device added\n"
	case errors.Is(err, models.ErrDuplicateName):
		return "ERROR:Device already exists\n"
	case errors.Is(err, models.ErrInvalidName):
		return "ERROR:Invalid name\n"
	case errors.Is(err, models.ErrInvalidChannel):
		return "ERROR:Invalid channel\n"
	default:
		slog.Error("control: add failed", "name", name, "channel", channel, "err", err)
		return "ERROR:Internal error\n"
	}
}

func handleRemove(ctx context.Context, reg Registry, name string) string {
	if name == "" {
		return "ERROR:Invalid name\n"
	}

	switch err := reg.Remove(ctx, name); {
	case err == nil:
		return "OK:Device removed\n"
	case errors.Is(err, models.ErrNotFound):
		return "ERROR:Device not found\n"
	case errors.Is(err, models.ErrInvalidName):
		return "ERROR:Invalid name\n"
	default:
		slog.Error("control: remove failed", "name", name, "err", err)
		return "ERROR:Internal error\n"
	}
}

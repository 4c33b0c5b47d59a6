// Command duomicctl manages a running duomicd over its control socket.
//
// Usage:
//
//	duomicctl [-socket path] status
//	duomicctl [-socket path] ping
//	duomicctl [-socket path] list
//	duomicctl [-socket path] add <name>:<channel>
//	duomicctl [-socket path] remove <name>
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/duomic/duomic-go/internal/config"
	"github.com/duomic/duomic-go/internal/control"
)

func main() {
	socketPath := flag.String("socket", control.DefaultSocketPath, "control socket path")
	cfgPath := flag.String("config", config.DefaultPath, "device config file")
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	client := control.NewClient(*socketPath)
	var err error

	switch cmd := flag.Arg(0); cmd {
	case "status":
		err = statusCmd(client, *socketPath, *cfgPath)
	case "ping":
		if err = client.Ping(); err == nil {
			fmt.Println("PONG")
		}
	case "list":
		err = listCmd(client)
	case "add":
		err = addCmd(client, flag.Arg(1))
	case "remove":
		if flag.Arg(1) == "" {
			err = fmt.Errorf("remove needs a device name")
		} else if err = client.Remove(flag.Arg(1)); err == nil {
			fmt.Printf("removed %s\n", flag.Arg(1))
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: duomicctl [-socket path] status|ping|list|add <name>:<channel>|remove <name>")
}

func addCmd(client *control.Client, arg string) error {
	name, chanStr, found := strings.Cut(arg, ":")
	if !found || name == "" {
		return fmt.Errorf("add needs <name>:<channel>")
	}
	channel, err := strconv.Atoi(chanStr)
	if err != nil {
		return fmt.Errorf("bad channel %q", chanStr)
	}
	if err := client.Add(name, channel); err != nil {
		return err
	}
	fmt.Printf("added %s (channel %d)\n", name, channel)
	return nil
}

func listCmd(client *control.Client) error {
	devices, err := client.List()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no active devices")
		return nil
	}
	for _, d := range devices {
		fmt.Printf("%s:%d\n", d.Name, d.Channel)
	}
	return nil
}

// statusCmd reports daemon reachability, then the live device list if the
// daemon answers, or the configured devices if it does not.
func statusCmd(client *control.Client, socketPath, cfgPath string) error {
	fmt.Println("duomic status")
	fmt.Println()

	reachable := false
	if !client.Available() {
		fmt.Printf("daemon:  not running (no socket at %s)\n", socketPath)
	} else if err := client.Ping(); err != nil {
		fmt.Printf("daemon:  socket exists but not responding (%v)\n", err)
	} else {
		fmt.Println("daemon:  connected")
		reachable = true
	}

	fmt.Printf("config:  %s\n", cfgPath)
	fmt.Println()

	if reachable {
		fmt.Println("virtual microphones:")
		devices, err := client.List()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("  (none active)")
		}
		for _, d := range devices {
			fmt.Printf("  %s (channel %d)\n", d.Name, d.Channel)
		}
		return nil
	}

	fmt.Println("virtual microphones (from config, daemon not running):")
	for _, d := range config.Load(cfgPath) {
		fmt.Printf("  %s (channel %d)\n", d.Name, d.Channel)
	}
	return nil
}

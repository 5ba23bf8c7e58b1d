// flashctl sends control actions to a running flashguard daemon.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/flashguard/backend/platform/internal/messaging"
)

const usage = `usage: flashctl [flags] <command> [args]

commands:
  stats                    show counters
  detectors                list attached detectors
  enable | disable         switch monitoring on or off
  reset                    clear the session and zero the counters
  continue <handle>        dismiss a warning and resume the video
  update <stat> [delta]    add delta (default 1) to a counter
  send <action> [k=v ...]  send a raw action
`

type sender interface {
	Send(ctx context.Context, action string, fields map[string]any) (messaging.Ack, error)
}

func main() {
	addr := flag.String("addr", envOr("CONTROL_ADDR", "localhost:50061"), "daemon control address")
	timeout := flag.Duration("timeout", 5*time.Second, "request timeout")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage, "\nflags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logLevel := slog.LevelWarn
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := messaging.Dial(*addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, client, flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run executes one command and prints the response body as JSON.
func run(ctx context.Context, c sender, args []string, out io.Writer) error {
	action, fields, err := parseCommand(args)
	if err != nil {
		return err
	}
	ack, err := c.Send(ctx, action, fields)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(ack.Body)
}

func parseCommand(args []string) (string, map[string]any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "stats":
		return messaging.ActionGetStats, nil, nil
	case "detectors":
		return messaging.ActionListDetectors, nil, nil
	case "enable":
		return messaging.ActionEnable, nil, nil
	case "disable":
		return messaging.ActionDisable, nil, nil
	case "reset":
		return messaging.ActionResetStats, nil, nil
	case "continue":
		if len(rest) != 1 {
			return "", nil, fmt.Errorf("continue needs exactly one handle")
		}
		return messaging.ActionContinue, map[string]any{"handle": rest[0]}, nil
	case "update":
		if len(rest) < 1 || len(rest) > 2 {
			return "", nil, fmt.Errorf("update needs a stat name and an optional delta")
		}
		delta := int64(1)
		if len(rest) == 2 {
			d, err := strconv.ParseInt(rest[1], 10, 64)
			if err != nil {
				return "", nil, fmt.Errorf("invalid delta %q", rest[1])
			}
			delta = d
		}
		return messaging.ActionUpdateStats, map[string]any{"stat": rest[0], "delta": delta}, nil
	case "send":
		if len(rest) == 0 {
			return "", nil, fmt.Errorf("send needs an action")
		}
		fields := make(map[string]any, len(rest)-1)
		for _, kv := range rest[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return "", nil, fmt.Errorf("field %q is not key=value", kv)
			}
			fields[k] = parseValue(v)
		}
		return rest[0], fields, nil
	default:
		return "", nil, fmt.Errorf("unknown command %q", cmd)
	}
}

// parseValue keeps numbers and booleans typed.
func parseValue(v string) any {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

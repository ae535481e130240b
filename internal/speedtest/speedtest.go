package speedtest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/thekhoo/speedsnake/internal/records"
)

// ErrMeasurement wraps any failure of the external measurement: non-zero
// exit, no output, or output that does not parse as JSON.
var ErrMeasurement = errors.New("speed measurement failed")

var defaultFlags = []string{"--secure", "--json", "--bytes"}

type runner func(ctx context.Context, bin string, args ...string) ([]byte, error)

// Client invokes the external speedtest executable and turns its JSON
// response into a flat record. It performs no retries; the caller decides
// what to do with a failed run.
type Client struct {
	bin   string
	flags []string
	run   runner
	log   *slog.Logger
}

func New(bin string) *Client {
	return &Client{
		bin:   bin,
		flags: defaultFlags,
		run:   execute,
		log: slog.Default().With(
			slog.String("component", "speedtest"),
		),
	}
}

// Run spawns one measurement process and returns the flattened result.
func (c *Client) Run(ctx context.Context) (*records.Record, error) {
	c.log.Info("running speedtest", slog.String("flags", strings.Join(c.flags, " ")))
	out, err := c.run(ctx, c.bin, c.flags...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeasurement, err)
	}
	if len(bytes.TrimSpace(out)) == 0 {
		return nil, fmt.Errorf("%w: process produced no output", ErrMeasurement)
	}
	rec, err := Flatten(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMeasurement, err)
	}
	return rec, nil
}

func execute(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w", msg, err)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

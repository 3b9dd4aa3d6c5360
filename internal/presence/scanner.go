package presence

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// defaultScanTimeout bounds a single external scan invocation.
const defaultScanTimeout = 10 * time.Second

// Scanner produces beacon sightings. Implementations must be bounded:
// Scan returns when the underlying sweep completes or ctx is done.
type Scanner interface {
	Scan(ctx context.Context) ([]Sighting, error)
}

// CommandScanner runs an external scan utility and parses its output.
//
// The utility is expected to print one beacon address per line on stdout.
// Blank lines and lines starting with '#' are skipped. Every returned
// sighting is stamped with the current tick.
type CommandScanner struct {
	name    string
	args    []string
	timeout time.Duration
	ticks   TickSource
}

// NewCommandScanner builds a scanner from a command line string, e.g.
// "hcitool lescan --duplicates". The command is split on whitespace;
// arguments with embedded spaces are not supported.
func NewCommandScanner(command string, timeout time.Duration, ticks TickSource) (*CommandScanner, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty scan command", ErrScanUnavailable)
	}
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	if ticks == nil {
		ticks = SystemTicks
	}
	return &CommandScanner{
		name:    fields[0],
		args:    fields[1:],
		timeout: timeout,
		ticks:   ticks,
	}, nil
}

// Scan invokes the scan utility once and returns the sightings it
// reported. Failure to run the utility yields ErrScanUnavailable; the
// caller must not interpret that as an empty scan.
func (s *CommandScanner) Scan(ctx context.Context) ([]Sighting, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, s.name, s.args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: running %s: %w", ErrScanUnavailable, s.name, err)
	}

	return s.parse(out), nil
}

// parse extracts one sighting per non-empty, non-comment output line.
// Lines may carry trailing fields after the address (signal strength,
// names); only the first field is used.
func (s *CommandScanner) parse(out []byte) []Sighting {
	tick := s.ticks()

	var sightings []Sighting
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		sightings = append(sightings, Sighting{
			Address: fields[0],
			Tick:    tick,
		})
	}
	return sightings
}

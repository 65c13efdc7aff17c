// Package progress implements the read-only observer that follows a run
// from the outside by tailing the shared run log. It has no effect on the
// batch fetcher; everything here is best-effort.
package progress

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/sbomtools/sbom-collector/internal/runlog"
)

// State is one observation of the run log
type State struct {
	Current  int    // highest marker seen
	Total    int    // from the discovery line, or configured
	LastRepo string // repository named by the highest marker
	Finished bool   // final summary marker seen
}

// Percent returns the coarse completion percentage, or -1 when the total
// is unknown
func (s State) Percent() float64 {
	if s.Total <= 0 {
		return -1
	}
	return float64(s.Current) / float64(s.Total) * 100
}

// Observer polls a run log and prints progress updates until the run
// finishes or the watched process exits
type Observer struct {
	// LogPath is the run log to follow
	LogPath string

	// Total overrides the repository total; zero means read it from the log
	Total int

	// Interval is the polling period
	Interval time.Duration

	// PID, when nonzero, names the fetch process to watch for exit
	PID int

	// Out receives the progress lines
	Out io.Writer
}

// Scan reads the log once and reports the current state
func (o *Observer) Scan() (State, error) {
	state := State{Total: o.Total}

	f, err := os.Open(o.LogPath)
	if err != nil {
		return state, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if n, repo, ok := runlog.ParseMarker(line); ok && n > state.Current {
			state.Current = n
			state.LastRepo = repo
			continue
		}
		if state.Total == 0 {
			if total, ok := runlog.ParseTotal(line); ok {
				state.Total = total
				continue
			}
		}
		if strings.Contains(line, runlog.FinishedMarker) {
			state.Finished = true
		}
	}
	return state, scanner.Err()
}

// Watch polls until the run finishes, the watched process exits, or the
// context is cancelled
func (o *Observer) Watch(ctx context.Context) error {
	if o.Interval <= 0 {
		o.Interval = 30 * time.Second
	}
	out := o.Out
	if out == nil {
		out = os.Stdout
	}

	ticker := time.NewTicker(o.Interval)
	defer ticker.Stop()

	for {
		state, err := o.Scan()
		if err != nil {
			fmt.Fprintf(out, "waiting for run log %s\n", o.LogPath)
		} else {
			o.report(out, state)
			if state.Finished {
				return nil
			}
		}

		if o.PID > 0 && !processAlive(o.PID) {
			fmt.Fprintf(out, "fetch process %d has exited\n", o.PID)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (o *Observer) report(out io.Writer, state State) {
	if pct := state.Percent(); pct >= 0 {
		fmt.Fprintf(out, "Progress: %d/%d (%.0f%%) - %s\n", state.Current, state.Total, pct, state.LastRepo)
		return
	}
	fmt.Fprintf(out, "Progress: %d repositories - %s\n", state.Current, state.LastRepo)
}

// processAlive checks liveness with a null signal
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

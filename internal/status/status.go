// Package status renders the human-readable snapshot document spec.md
// §4.6 dumps on every status-socket connection: one YAML document listing
// every program with its state and whichever of pid/scheduled_at/exit_code
// apply.
package status

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/F1rst-Unicorn/cinit/internal/program"
	"github.com/F1rst-Unicorn/cinit/internal/scheduler"
)

const timeLayout = "2006-01-02T15:04:05"

type programEntry struct {
	Name        string `yaml:"name"`
	State       string `yaml:"state"`
	PID         int    `yaml:"pid,omitempty"`
	ScheduledAt string `yaml:"scheduled_at,omitempty"`
	ExitCode    *int   `yaml:"exit_code,omitempty"`
	Status      string `yaml:"status,omitempty"`
}

type document struct {
	Programs []programEntry `yaml:"programs"`
}

// Render builds the YAML-shaped snapshot document for one connection.
// notifyStatus supplies the optional free-text Notify STATUS= line per
// program name (see SPEC_FULL.md §5.2); programs with no entry simply omit
// the field. snapshot should be taken once, synchronously, on the event
// loop's own goroutine, so that a state change mid-write never appears
// (spec.md §4.6: "the pre-write snapshot is what goes out").
func Render(snapshot []scheduler.Status, notifyStatus map[string]string) ([]byte, error) {
	doc := document{Programs: make([]programEntry, 0, len(snapshot))}
	for _, s := range snapshot {
		e := programEntry{Name: s.Name, State: s.State.String()}

		if s.PID != 0 && (s.State == program.StateRunning || s.State == program.StateStarting || s.State == program.StateStopping) {
			e.PID = s.PID
		}
		if s.HasSchedule {
			e.ScheduledAt = s.ScheduledAt.Format(timeLayout)
		}
		if s.State == program.StateDone || s.State == program.StateCrashed {
			ec := s.ExitCode
			e.ExitCode = &ec
		}
		if txt, ok := notifyStatus[s.Name]; ok && txt != "" {
			e.Status = txt
		}

		doc.Programs = append(doc.Programs, e)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("render status snapshot: %w", err)
	}
	return out, nil
}

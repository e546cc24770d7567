// Package metrics exposes per-program state gauges through
// prometheus/client_golang, mirroring the teacher's internal/metrics use
// of GaugeVecs for per-process numbers. Per spec.md's non-goal on
// network-facing RPC, no HTTP exporter is ever started here: the
// registry is updated on every status-socket connection, and its values
// are not written into the status document.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/F1rst-Unicorn/cinit/internal/program"
	"github.com/F1rst-Unicorn/cinit/internal/scheduler"
)

var allStates = []program.State{
	program.StateBlocked,
	program.StateSleeping,
	program.StateStarting,
	program.StateRunning,
	program.StateStopping,
	program.StateDone,
	program.StateCrashed,
}

// ProgramState is 1 for the (name, state) pair a program currently
// occupies and 0 for every other state of that program, the same
// one-hot-per-label-set shape the teacher's processCPUPercent/
// processMemoryMB GaugeVecs use for per-process labels.
var ProgramState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "cinit",
	Name:      "program_state",
	Help:      "1 if the named program currently occupies the given state, 0 otherwise.",
}, []string{"name", "state"})

// Registry is a dedicated registry rather than prometheus's global
// DefaultRegisterer, so tests and multiple Observe callers never collide
// on double-registration.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(ProgramState)
}

// Observe updates every program's state gauges from a fresh snapshot. It's
// called once per status-socket connection, right after the snapshot used
// to render the YAML document is taken, so both views are consistent.
func Observe(snapshot []scheduler.Status) {
	for _, s := range snapshot {
		for _, st := range allStates {
			v := 0.0
			if st == s.State {
				v = 1
			}
			ProgramState.WithLabelValues(s.Name, st.String()).Set(v)
		}
	}
}

// Counts returns how many programs currently occupy each state, for a
// quick metrics summary line in logs or tests.
func Counts(snapshot []scheduler.Status) map[string]int {
	out := make(map[string]int, len(allStates))
	for _, s := range snapshot {
		out[s.State.String()]++
	}
	return out
}

// Package scheduler drives each program through the state machine in
// spec.md §4.3: Blocked/Sleeping/Starting/Running/Stopping/Done/Crashed,
// built on top of internal/graph's dependency-ready queue and
// internal/program's cron expressions.
package scheduler

import (
	"sort"
	"time"

	"github.com/F1rst-Unicorn/cinit/internal/graph"
	"github.com/F1rst-Unicorn/cinit/internal/program"
)

// entry is the scheduler's per-program side table; program.Record stays
// immutable after validation, so all mutable runtime state lives here
// instead, mirroring process.rs's ProcessState living next to (not inside)
// the immutable ProcessConfig.
type entry struct {
	record      *program.Record
	state       program.State
	pid         int
	exitCode    int
	scheduledAt time.Time
}

// Scheduler owns the dependency graph and the runtime state of every
// program built from it.
type Scheduler struct {
	graph   *graph.Manager
	entries map[graph.ID]*entry
	order   []graph.ID // construction order, for deterministic status output
}

// New builds a Scheduler from a fully merged and validated set of program
// records. Record order determines graph.ID assignment and therefore the
// order programs appear in status snapshots.
func New(records []*program.Record) (*Scheduler, error) {
	gPrograms := make([]graph.Program, len(records))
	entries := make(map[graph.ID]*entry, len(records))
	order := make([]graph.ID, len(records))

	for i, r := range records {
		id := graph.ID(i)
		gPrograms[i] = graph.Program{
			ID:        id,
			Name:      r.Name,
			Before:    r.Before,
			After:     r.After,
			IsCronjob: r.Kind == program.KindCronjob,
		}
		entries[id] = &entry{record: r, state: program.StateBlocked}
		order[i] = id
	}

	g, err := graph.Build(gPrograms)
	if err != nil {
		return nil, err
	}

	return &Scheduler{graph: g, entries: entries, order: order}, nil
}

// ReadyToLaunch drains the dependency graph's runnable queue and the
// cron-fire set, returning the ids the caller should fork now. Cronjobs
// reaching here for the first time are seeded straight into Sleeping (per
// spec.md §4.3's "cronjobs go directly to Sleeping rather than Running")
// and only come back out through the cron branch below, once scheduledAt
// is due.
func (s *Scheduler) ReadyToLaunch(now time.Time) []graph.ID {
	var ready []graph.ID

	for {
		id, ok := s.graph.PopRunnable()
		if !ok {
			break
		}
		e := s.entries[id]
		if e.record.Kind == program.KindCronjob {
			e.state = program.StateSleeping
			e.scheduledAt = e.record.Cron.NextFire(now)
			continue
		}
		ready = append(ready, id)
	}

	for _, id := range s.order {
		e := s.entries[id]
		if e.record.Kind != program.KindCronjob || e.state != program.StateSleeping {
			continue
		}
		if e.scheduledAt.After(now) {
			continue
		}
		// Only Sleeping cronjobs reach this branch; one already Running
		// from a prior fire stays Running and is skipped above, so a
		// fire that lands while it is still executing is dropped rather
		// than queued twice (re-entrancy prohibited).
		ready = append(ready, id)
	}

	return ready
}

// MarkLaunched records that id has been successfully forked with the given
// pid, transitioning it to Running.
func (s *Scheduler) MarkLaunched(id graph.ID, pid int) {
	e := s.entries[id]
	e.state = program.StateRunning
	e.pid = pid
}

// MarkNotifyStarting records a Notify-kind program's fork, before it has
// signalled READY=1.
func (s *Scheduler) MarkNotifyStarting(id graph.ID, pid int) {
	e := s.entries[id]
	e.state = program.StateStarting
	e.pid = pid
}

// MarkNotifyReady transitions a Notify-kind program from Starting to
// Running once it signals READY=1 over the notification socket.
func (s *Scheduler) MarkNotifyReady(id graph.ID) {
	e := s.entries[id]
	if e.state == program.StateStarting {
		e.state = program.StateRunning
	}
}

// MarkNotifyStopping transitions a Notify-kind program to Stopping once it
// signals STOPPING=1, ahead of its actual exit.
func (s *Scheduler) MarkNotifyStopping(id graph.ID) {
	e := s.entries[id]
	if e.state == program.StateRunning {
		e.state = program.StateStopping
	}
}

// HandleExit advances id's state on process exit, per spec.md §4.3: a
// zero exit code on a cronjob loops back to Sleeping with a freshly
// computed scheduledAt; a zero exit code elsewhere is terminal (Done); any
// nonzero code is Crashed, also terminal. Non-cronjob completions notify
// the dependency graph so blocked successors can become runnable.
func (s *Scheduler) HandleExit(id graph.ID, exitCode int, now time.Time) {
	e := s.entries[id]
	e.pid = 0
	e.exitCode = exitCode

	if exitCode != 0 {
		e.state = program.StateCrashed
	} else if e.record.Kind == program.KindCronjob {
		e.state = program.StateSleeping
		e.scheduledAt = e.record.Cron.NextFire(now)
	} else {
		e.state = program.StateDone
	}

	if e.record.Kind != program.KindCronjob {
		s.graph.NotifyFinished(id)
	}
}

// HasWork reports whether the driver should keep running: any program
// still Blocked, Sleeping, Starting, Running, or Stopping means there is
// more to do, per spec.md §4.3's termination rule.
//
// Once the engine has begun draining (a crash or a termination signal),
// a program stuck in Blocked can never become runnable again — nothing
// still executing can finish and unblock it, since draining stops new
// launches — so draining callers should pass true to stop waiting on it,
// mirroring process_manager.rs's initiate_shutdown unconditionally
// clearing keep_running instead of waiting out a dependency that will
// never resolve.
func (s *Scheduler) HasWork(draining bool) bool {
	for _, e := range s.entries {
		switch e.state {
		case program.StateBlocked, program.StateSleeping:
			if !draining {
				return true
			}
		case program.StateStarting, program.StateRunning, program.StateStopping:
			return true
		}
	}
	return false
}

// RunningPIDs returns the pid of every program currently Running or
// Stopping, for signal delivery on shutdown.
func (s *Scheduler) RunningPIDs() []int {
	var pids []int
	for _, id := range s.order {
		e := s.entries[id]
		if (e.state == program.StateRunning || e.state == program.StateStopping) && e.pid != 0 {
			pids = append(pids, e.pid)
		}
	}
	sort.Ints(pids)
	return pids
}

// IDForPID returns the graph id currently associated with pid, if any.
func (s *Scheduler) IDForPID(pid int) (graph.ID, bool) {
	for _, id := range s.order {
		if s.entries[id].pid == pid {
			return id, true
		}
	}
	return 0, false
}

// Status is a read-only view of one program's runtime state, for the
// status reporter.
type Status struct {
	Name        string
	State       program.State
	PID         int
	ExitCode    int
	IsCronjob   bool
	ScheduledAt time.Time
	HasSchedule bool
}

// Snapshot returns every program's current status in construction order.
func (s *Scheduler) Snapshot() []Status {
	out := make([]Status, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		st := Status{
			Name:      e.record.Name,
			State:     e.state,
			PID:       e.pid,
			ExitCode:  e.exitCode,
			IsCronjob: e.record.Kind == program.KindCronjob,
		}
		if st.IsCronjob && e.state == program.StateSleeping {
			st.ScheduledAt = e.scheduledAt
			st.HasSchedule = true
		}
		out = append(out, st)
	}
	return out
}

// Record returns the program.Record behind id, for the launcher.
func (s *Scheduler) Record(id graph.ID) *program.Record {
	return s.entries[id].record
}

// UpdatePID rebinds id's tracked pid without touching its state, used when
// a Notify program hands control off to a grandchild via MAINPID=<pid>
// (see SPEC_FULL.md §5.1).
func (s *Scheduler) UpdatePID(id graph.ID, pid int) {
	s.entries[id].pid = pid
}

// NextWake returns the earliest scheduledAt across every Sleeping
// cronjob, for the event loop to rearm its timer against (spec.md §4.5
// step 8). ok is false when no cronjob is currently Sleeping, meaning the
// timer should stay disarmed.
func (s *Scheduler) NextWake() (t time.Time, ok bool) {
	for _, id := range s.order {
		e := s.entries[id]
		if e.record.Kind != program.KindCronjob || e.state != program.StateSleeping {
			continue
		}
		if !ok || e.scheduledAt.Before(t) {
			t = e.scheduledAt
			ok = true
		}
	}
	return t, ok
}

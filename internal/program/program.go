// Package program models a single configured program: its raw (partial,
// merge-eligible) configuration and the resolved ProgramRecord the
// scheduler and launcher operate on.
package program

import (
	"fmt"
	"sort"

	"github.com/F1rst-Unicorn/cinit/internal/cronexpr"
)

// Kind is the runtime type of a program, mirroring the teacher's
// process.ProcessType/kind tagging: branch on the tag at the few points it
// matters instead of introducing polymorphism.
type Kind int

const (
	KindOneshot Kind = iota
	KindCronjob
	KindNotify
)

func (k Kind) String() string {
	switch k {
	case KindOneshot:
		return "oneshot"
	case KindCronjob:
		return "cronjob"
	case KindNotify:
		return "notify"
	default:
		return "unknown"
	}
}

// State is one of the states in spec.md §4.3's state machine.
type State int

const (
	StateBlocked State = iota
	StateSleeping
	StateStarting // Notify only: forked but has not signalled READY=1 yet.
	StateRunning
	StateStopping // Notify only: signalled STOPPING=1.
	StateDone
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateBlocked:
		return "blocked"
	case StateSleeping:
		return "sleeping"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDone:
		return "done"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// EnvEntry is one (key, optional value) pair from a program's env list. A
// nil Value means "inherit from the supervisor environment if present, else
// drop", per spec.md §4.4 step 1.
type EnvEntry struct {
	Key   string
	Value *string
}

// Raw is one configuration source for a program name, exactly as read off
// disk before merging. Several Raws may share a Name; Merge folds
// them into one Record per spec.md §4.2.
type Raw struct {
	Name                 string
	Path                 *string
	Args                 []string
	WorkDir              *string
	UID                  *uint32
	GID                  *uint32
	User                 *string
	Group                *string
	Kind                 Kind
	CronSchedule         string // only meaningful when Kind == KindCronjob
	Before               []string
	After                []string
	PTY                  bool
	Capabilities         []string
	Env                  []EnvEntry
	hasKind              bool // true if this raw explicitly carries a non-oneshot kind
}

// WithKind marks this raw as explicitly carrying kind k (as opposed to the
// default Oneshot assumed for drop-ins that don't mention a type at all).
func (r *Raw) WithKind(k Kind) {
	r.Kind = k
	r.hasKind = true
}

// Record is the resolved, immutable-after-validation program description
// the rest of the engine works with. It corresponds to spec.md §3's
// ProgramRecord, minus the runtime fields (state, pid, exit code,
// scheduled_at) which live in scheduler.Scheduler's side tables instead of
// here.
type Record struct {
	Name                string
	Path                string
	Args                []string
	WorkDir             string
	UID                 uint32
	GID                 uint32
	UserName            string // set if "user" was given instead of a numeric uid; resolved later
	GroupName           string // set if "group" was given instead of a numeric gid; resolved later
	SupplementaryGroups []uint32
	Capabilities        []string
	Env                 []EnvEntry
	Kind                Kind
	Cron                *cronexpr.Expression
	CronSchedule        string
	PTY                 bool
	Before              []string
	After               []string
}

// DuplicateFieldError is raised when a field allowed at most once across a
// merged-from set is specified more than once, per spec.md §4.2's table.
type DuplicateFieldError struct {
	Program string
	Field   string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("program %q: field %q specified more than once across drop-ins", e.Program, e.Field)
}

// KindPlacementError is raised when invariant 5 is violated: a non-Oneshot
// "type" was declared on a merged-from source that doesn't also carry
// "path" — spec.md §3 invariant 5 requires the two live in the same source.
type KindPlacementError struct {
	Program string
}

func (e *KindPlacementError) Error() string {
	return fmt.Sprintf("program %q: \"type\" must be declared in the same configuration source as \"path\"", e.Program)
}

// Merge folds a list of Raws sharing the same Name into one Record.
// Field-by-field rules follow spec.md §4.2's table exactly.
func Merge(name string, raws []*Raw) (*Record, error) {
	if len(raws) == 0 {
		return nil, fmt.Errorf("program %q: no configuration sources", name)
	}

	rec := &Record{Name: name}

	var pathSet, workdirSet, uidSet, gidSet, userSet, groupSet, kindSet bool
	var cronSource string
	var pathArgs, otherArgs []string

	for _, r := range raws {
		if r.Path != nil {
			if pathSet {
				return nil, &DuplicateFieldError{Program: name, Field: "path"}
			}
			pathSet = true
			rec.Path = *r.Path
		}
		if r.WorkDir != nil {
			if workdirSet {
				return nil, &DuplicateFieldError{Program: name, Field: "workdir"}
			}
			workdirSet = true
			rec.WorkDir = *r.WorkDir
		}
		if r.UID != nil {
			if uidSet {
				return nil, &DuplicateFieldError{Program: name, Field: "uid"}
			}
			uidSet = true
			rec.UID = *r.UID
		}
		if r.GID != nil {
			if gidSet {
				return nil, &DuplicateFieldError{Program: name, Field: "gid"}
			}
			gidSet = true
			rec.GID = *r.GID
		}
		if r.User != nil {
			if userSet {
				return nil, &DuplicateFieldError{Program: name, Field: "user"}
			}
			userSet = true
			rec.UserName = *r.User
		}
		if r.Group != nil {
			if groupSet {
				return nil, &DuplicateFieldError{Program: name, Field: "group"}
			}
			groupSet = true
			rec.GroupName = *r.Group
		}
		if r.hasKind {
			if kindSet {
				return nil, &DuplicateFieldError{Program: name, Field: "type"}
			}
			if r.Path == nil {
				return nil, &KindPlacementError{Program: name}
			}
			kindSet = true
			rec.Kind = r.Kind
			cronSource = r.CronSchedule
		}

		if r.Path != nil {
			pathArgs = append(pathArgs, r.Args...)
		} else {
			otherArgs = append(otherArgs, r.Args...)
		}
		rec.Before = append(rec.Before, r.Before...)
		rec.After = append(rec.After, r.After...)
		rec.Capabilities = append(rec.Capabilities, r.Capabilities...)
		rec.Env = append(rec.Env, r.Env...)
		rec.PTY = rec.PTY || r.PTY
	}

	rec.Args = append(rec.Args, pathArgs...)
	rec.Args = append(rec.Args, otherArgs...)

	rec.Before = dedupStrings(rec.Before)
	rec.After = dedupStrings(rec.After)
	rec.Capabilities = dedupStrings(rec.Capabilities)
	rec.CronSchedule = cronSource

	if rec.Kind == KindCronjob {
		expr, err := cronexpr.Parse(rec.CronSchedule)
		if err != nil {
			return nil, fmt.Errorf("program %q: %w", name, err)
		}
		rec.Cron = expr
	}

	return rec, nil
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Package graph tracks the "before"/"after" dependency relations between
// programs and hands out ready-to-run program ids as their predecessors
// finish, mirroring the runtime dependency manager cinit uses to decide
// what to launch next.
package graph

import "fmt"

// ID addresses a program by its stable position in the arena the graph was
// built from, not by name — name lookups only happen once, at construction.
type ID int

type node struct {
	afterSelf        []ID
	predecessorCount int
	finished         bool
}

// Manager is a build-once, run-many dependency graph. Construction
// validates before/after references and rejects cycles; afterward
// PopRunnable/NotifyFinished drive programs through it as they complete.
type Manager struct {
	nodes           map[ID]*node
	runnable        []ID
	runnableArchive map[ID]bool
}

// Program is the minimal view over a program.Record the graph needs; kept
// as a plain struct so this package doesn't import internal/program and
// create a dependency cycle with packages that need both.
type Program struct {
	ID        ID
	Name      string
	Before    []string
	After     []string
	IsCronjob bool
}

// CycleError reports that the given program id participates in a
// dependency cycle.
type CycleError struct {
	ID ID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected involving program id %d", e.ID)
}

// UnknownReferenceError reports a before/after entry naming a program that
// doesn't exist among the ones being built.
type UnknownReferenceError struct {
	Program   string
	Reference string
	Field     string // "before" or "after"
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("program %q: unknown program %q referenced in %s", e.Program, e.Reference, e.Field)
}

// CronjobDependencyError reports an edge that makes Program depend on the
// cronjob Reference, written either as Program's "after" entry naming the
// cronjob or as the cronjob's own "before" entry naming Program. spec.md
// forbids it: cronjobs may depend on other programs (Cronjob→Other),
// but nothing may block on a cronjob finishing (Other→Cronjob is illegal),
// since a cronjob by design never reaches a terminal "done" a dependent
// could wait on.
type CronjobDependencyError struct {
	Program   string
	Reference string
}

func (e *CronjobDependencyError) Error() string {
	return fmt.Sprintf("program %q: cannot depend on cronjob %q", e.Program, e.Reference)
}

// Build constructs a Manager from the given programs. Programs must carry
// distinct names; before/after may reference any other program in the set.
func Build(programs []Program) (*Manager, error) {
	nameToID := make(map[string]ID, len(programs))
	for _, p := range programs {
		nameToID[p.Name] = p.ID
	}

	nodes := make(map[ID]*node, len(programs))
	for _, p := range programs {
		nodes[p.ID] = &node{}
	}

	for _, p := range programs {
		for _, afterName := range p.After {
			afterID, ok := nameToID[afterName]
			if !ok {
				return nil, &UnknownReferenceError{Program: p.Name, Reference: afterName, Field: "after"}
			}
			if isCronjob(programs, afterID) {
				return nil, &CronjobDependencyError{Program: p.Name, Reference: afterName}
			}
			nodes[afterID].afterSelf = append(nodes[afterID].afterSelf, p.ID)
			nodes[p.ID].predecessorCount++
		}
		for _, beforeName := range p.Before {
			beforeID, ok := nameToID[beforeName]
			if !ok {
				return nil, &UnknownReferenceError{Program: p.Name, Reference: beforeName, Field: "before"}
			}
			// p.Before=[beforeName] is the same edge as beforeName.After=[p],
			// per spec.md §3's "before: [v] on u and after: [u] on v are
			// equivalent forms" — so this is illegal exactly when the After
			// loop above would reject it: when p itself is the cronjob.
			if p.IsCronjob {
				return nil, &CronjobDependencyError{Program: beforeName, Reference: p.Name}
			}
			nodes[p.ID].afterSelf = append(nodes[p.ID].afterSelf, beforeID)
			nodes[beforeID].predecessorCount++
		}
	}

	m := &Manager{
		nodes:           nodes,
		runnableArchive: make(map[ID]bool, len(programs)),
	}
	for id, n := range nodes {
		if n.predecessorCount == 0 {
			m.runnable = append(m.runnable, id)
			m.runnableArchive[id] = true
		}
	}

	if err := m.checkForCycles(); err != nil {
		return nil, err
	}

	return m, nil
}

func isCronjob(programs []Program, id ID) bool {
	for _, p := range programs {
		if p.ID == id {
			return p.IsCronjob
		}
	}
	return false
}

// HasRunnables reports whether any program is currently ready to launch.
func (m *Manager) HasRunnables() bool {
	return len(m.runnable) > 0
}

// PopRunnable removes and returns one ready-to-run program id, or false if
// none are ready.
func (m *Manager) PopRunnable() (ID, bool) {
	if len(m.runnable) == 0 {
		return 0, false
	}
	id := m.runnable[len(m.runnable)-1]
	m.runnable = m.runnable[:len(m.runnable)-1]
	return id, true
}

// IsRunnable reports whether id has ever become runnable, i.e. its
// predecessors have all completed at some point.
func (m *Manager) IsRunnable(id ID) bool {
	return m.runnableArchive[id]
}

// NotifyFinished marks id as finished and pushes any successor whose last
// outstanding predecessor was id onto the runnable queue.
func (m *Manager) NotifyFinished(id ID) {
	n, ok := m.nodes[id]
	if !ok || n.finished {
		return
	}
	n.finished = true
	for _, successorID := range n.afterSelf {
		successor := m.nodes[successorID]
		successor.predecessorCount--
		if successor.predecessorCount == 0 {
			m.runnable = append(m.runnable, successorID)
			m.runnableArchive[successorID] = true
		}
	}
}

// checkForCycles runs Kahn's algorithm over a scratch copy of the
// predecessor counts; any node left with a nonzero count once the queue
// drains participates in a cycle.
func (m *Manager) checkForCycles() error {
	remaining := make(map[ID]int, len(m.nodes))
	for id, n := range m.nodes {
		remaining[id] = n.predecessorCount
	}

	queue := make([]ID, 0, len(m.runnable))
	queue = append(queue, m.runnable...)
	visited := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, successorID := range m.nodes[id].afterSelf {
			remaining[successorID]--
			if remaining[successorID] == 0 {
				queue = append(queue, successorID)
			}
		}
	}

	if visited != len(m.nodes) {
		for id, count := range remaining {
			if count > 0 {
				return &CycleError{ID: id}
			}
		}
	}
	return nil
}

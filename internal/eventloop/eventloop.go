// Package eventloop implements spec.md §4.5: the single cooperative loop
// that fans in SIGCHLD/SIGTERM/SIGINT/SIGQUIT/SIGHUP, child stdout/stderr,
// the status socket, and the cron timer, and drives internal/scheduler and
// internal/launcher from what it sees.
//
// The design note in spec.md §9 calls for "a file-descriptor primitive
// (signalfd/kqueue/self-pipe), not async unix signal handlers, so that
// signals serialize with every other event source through the same
// readiness mechanism." Go's own os/signal package already implements
// exactly that contract — signal.Notify delivers through a channel backed
// by the runtime's internal self-pipe, not a handler running on a signal
// stack — so the idiomatic Go reading of that note is a single `select`
// over channels rather than a hand-rolled epoll/signalfd pair: `select` is
// the one readiness mechanism every source (signals, child output, socket
// accepts, the cron timer) funnels through here.
package eventloop

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/F1rst-Unicorn/cinit/internal/graph"
	"github.com/F1rst-Unicorn/cinit/internal/launcher"
	"github.com/F1rst-Unicorn/cinit/internal/metrics"
	"github.com/F1rst-Unicorn/cinit/internal/program"
	"github.com/F1rst-Unicorn/cinit/internal/scheduler"
	"github.com/F1rst-Unicorn/cinit/internal/status"
)

// SetupError wraps the infrastructure failures spec.md §4.8 step 3 maps to
// exit code 3: opening the status socket, or (on the supplemented
// subreaper feature) the PR_SET_CHILD_SUBREAPER call.
type SetupError struct {
	What string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("setup failed: %s: %v", e.What, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

type lineEvent struct {
	name string
	line string
}

type closedEvent struct {
	id     graph.ID
	stderr bool
}

// childState is the event loop's side table for one forked program,
// tracking the two independent completion signals spec.md §5 requires
// cinit to tolerate in either order: SIGCHLD reaping and stdout/stderr
// EOF.
type childState struct {
	handle     *launcher.Handle
	stdoutDone bool
	stderrDone bool
	reaped     bool
	exitCode   int
}

func (c *childState) finished() bool {
	return c.reaped && c.stdoutDone && c.stderrDone
}

// Loop owns every runtime resource the event loop multiplexes: the
// scheduler, the status socket listener, and the per-child bookkeeping
// that ties pids and fds back to graph.ID.
type Loop struct {
	sched      *scheduler.Scheduler
	log        *slog.Logger
	socketPath string

	listener *net.UnixListener
	acceptCh chan net.Conn
	lineCh   chan lineEvent
	closedCh chan closedEvent

	notify *notifyHub

	children map[graph.ID]*childState
	pidToID  map[int]graph.ID

	draining     bool
	launchFailed bool
}

// New constructs a Loop around an already-built Scheduler. Call Setup
// before Run.
func New(sched *scheduler.Scheduler, socketPath string, log *slog.Logger) *Loop {
	if log == nil {
		log = slog.Default()
	}
	return &Loop{
		sched:      sched,
		log:        log,
		socketPath: socketPath,
		acceptCh:   make(chan net.Conn),
		lineCh:     make(chan lineEvent, 64),
		closedCh:   make(chan closedEvent, 16),
		children:   make(map[graph.ID]*childState),
		pidToID:    make(map[int]graph.ID),
	}
}

// Setup performs the one-time infrastructure spec.md §4.8 step 3 names:
// marking cinit a child subreaper (supplemented feature, see DESIGN.md) so
// inherited orphans reparent here instead of PID 1, and opening the status
// socket listener. Returns *SetupError on any failure, mapped by the
// lifecycle driver to exit code 3.
func (l *Loop) Setup() error {
	if err := unix.Prctl(unix.PR_SET_CHILD_SUBREAPER, 1, 0, 0, 0); err != nil {
		return &SetupError{What: "set child subreaper", Err: err}
	}

	_ = os.Remove(l.socketPath)
	addr, err := net.ResolveUnixAddr("unix", l.socketPath)
	if err != nil {
		return &SetupError{What: "resolve status socket path", Err: err}
	}
	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return &SetupError{What: "listen on status socket", Err: err}
	}
	l.listener = listener

	l.notify = newNotifyHub(l.log)

	go l.acceptLoop()
	return nil
}

func (l *Loop) acceptLoop() {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			return
		}
		l.acceptCh <- conn
	}
}

// Close releases the status socket. Safe to call once, after Run returns.
func (l *Loop) Close() {
	if l.listener != nil {
		l.listener.Close()
	}
	_ = os.Remove(l.socketPath)
	if l.notify != nil {
		l.notify.closeAll()
	}
}

// Run drives the event loop until the scheduler reports no more work (see
// scheduler.HasWork), then returns the exit code spec.md §4.8 step 6
// describes.
func (l *Loop) Run() int {
	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, syscall.SIGCHLD, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	l.launchReady()
	l.rearmTimer(timer)

	for l.sched.HasWork(l.draining) {
		select {
		case sig := <-sigCh:
			l.handleSignal(sig)
		case ev := <-l.lineCh:
			l.log.Info(ev.line, "name", ev.name)
		case ev := <-l.closedCh:
			l.handleClosed(ev)
		case conn := <-l.acceptCh:
			l.serveStatus(conn)
		case readyID := <-l.notify.readyCh:
			l.sched.MarkNotifyReady(readyID)
		case stoppingID := <-l.notify.stoppingCh:
			l.sched.MarkNotifyStopping(stoppingID)
		case mp := <-l.notify.mainPIDCh:
			l.handleMainPID(mp)
		case <-timer.C:
			// Wakeup only; ReadyToLaunch below re-evaluates due cronjobs
			// against the current time.
		}

		if !l.draining {
			l.launchReady()
		}
		l.rearmTimer(timer)
	}

	return l.exitCode()
}

func (l *Loop) handleSignal(sig os.Signal) {
	switch sig {
	case syscall.SIGCHLD:
		l.reapAll()
	case syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT:
		l.beginDraining()
	case syscall.SIGHUP:
		l.log.Warn("SIGHUP received; configuration reload is not supported")
	}
}

func (l *Loop) beginDraining() {
	if l.draining {
		return
	}
	l.draining = true
	l.log.Info("shutting down: forwarding SIGTERM to running children")
	for _, pid := range l.sched.RunningPIDs() {
		_ = syscall.Kill(pid, syscall.SIGTERM)
	}
}

// reapAll drains every terminated descendant with a non-blocking waitpid
// loop, including inherited orphans this process never launched (spec.md
// §4.5 step 3); those are silently discarded since there's no
// childState to attribute them to.
func (l *Loop) reapAll() {
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}

		id, ok := l.pidToID[pid]
		if !ok {
			continue
		}
		cs := l.children[id]
		cs.reaped = true
		cs.exitCode = exitCodeFromWaitStatus(ws)
		l.maybeFinalize(id, cs)
	}
}

func exitCodeFromWaitStatus(ws syscall.WaitStatus) int {
	if ws.Exited() {
		return ws.ExitStatus()
	}
	if ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return 1
}

func (l *Loop) handleClosed(ev closedEvent) {
	cs, ok := l.children[ev.id]
	if !ok {
		return
	}
	if ev.stderr {
		cs.stderrDone = true
	} else {
		cs.stdoutDone = true
	}
	l.maybeFinalize(ev.id, cs)
}

// handleMainPID rebinds a Notify program's tracked pid when its child
// hands off to a grandchild via MAINPID=<pid> (SPEC_FULL.md §5.1).
// Reaping and I/O-close bookkeeping for the now-orphaned original pid
// still completes normally; it just no longer has a childState to
// finalize against, so its exit is absorbed by reapAll's "unknown pid"
// branch like any other inherited orphan.
func (l *Loop) handleMainPID(ev mainPIDEvent) {
	cs, ok := l.children[ev.id]
	if !ok {
		return
	}
	delete(l.pidToID, cs.handle.PID)
	cs.handle.PID = ev.pid
	l.pidToID[ev.pid] = ev.id
	l.sched.UpdatePID(ev.id, ev.pid)
}

func (l *Loop) maybeFinalize(id graph.ID, cs *childState) {
	if !cs.finished() {
		return
	}
	delete(l.pidToID, cs.handle.PID)
	delete(l.children, id)
	crashed := cs.exitCode != 0
	l.sched.HandleExit(id, cs.exitCode, time.Now())

	// process_manager.rs's handle_finished_child calls initiate_shutdown as
	// soon as any child_crashed, regardless of whether dependents can still
	// run; mirrored here so a permanently-Blocked dependent (spec.md §8
	// scenario 2) doesn't leave HasWork true forever.
	if crashed {
		l.beginDraining()
	}
}

func (l *Loop) launchReady() {
	now := time.Now()
	for _, id := range l.sched.ReadyToLaunch(now) {
		l.launchOne(id)
	}
}

func (l *Loop) launchOne(id graph.ID) {
	rec := l.sched.Record(id)
	env, args := launcher.Prepare(rec, os.Environ(), l.log)

	launchRec := *rec
	launchRec.Args = args

	if rec.Kind == program.KindNotify {
		socketPath, err := l.notify.listen(id, rec.Name)
		if err != nil {
			l.log.Error(fmt.Sprintf("notify socket setup failed: %v", err), "name", rec.Name)
			l.sched.HandleExit(id, 127, time.Now())
			l.launchFailed = true
			l.beginDraining()
			return
		}
		env = append(env, "NOTIFY_SOCKET="+socketPath)
	}

	h, err := launcher.Launch(&launchRec, env)
	if err != nil {
		l.log.Error(fmt.Sprintf("launch failed: %v", err), "name", rec.Name)
		l.sched.HandleExit(id, 127, time.Now())
		l.launchFailed = true
		l.beginDraining()
		return
	}

	cs := &childState{handle: h}
	if h.Stderr == nil {
		// pty mode: stdin/stdout/stderr share one slave, so there is only
		// one stream to drain and no separate stderr EOF will ever arrive.
		cs.stderrDone = true
	}
	l.children[id] = cs
	l.pidToID[h.PID] = id

	if rec.Kind == program.KindNotify {
		l.sched.MarkNotifyStarting(id, h.PID)
	} else {
		l.sched.MarkLaunched(id, h.PID)
	}

	l.pumpReader(id, rec.Name, h.Stdout, false)
	if h.Stderr != nil {
		l.pumpReader(id, rec.Name, h.Stderr, true)
	}
}

// pumpReader reads r line by line and forwards each complete line to
// l.lineCh, preserving a trailing partial line across reads the way
// bufio.Scanner already does internally. On EOF it reports closedEvent so
// the event-loop goroutine (not this one) performs the finalize check,
// keeping all childState mutation on a single goroutine.
func (l *Loop) pumpReader(id graph.ID, name string, r *os.File, stderr bool) {
	go func() {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), 1<<20)
		for scanner.Scan() {
			l.lineCh <- lineEvent{name: name, line: scanner.Text()}
		}
		r.Close()
		l.closedCh <- closedEvent{id: id, stderr: stderr}
	}()
}

func (l *Loop) serveStatus(conn net.Conn) {
	defer conn.Close()

	snapshot := l.sched.Snapshot()
	metrics.Observe(snapshot)

	doc, err := status.Render(snapshot, l.notify.statusTextSnapshot())
	if err != nil {
		l.log.Error(fmt.Sprintf("render status snapshot: %v", err))
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write(doc); err != nil {
		l.log.Warn(fmt.Sprintf("status socket write failed: %v", err))
	}
}

func (l *Loop) rearmTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	if l.draining {
		return
	}
	when, ok := l.sched.NextWake()
	if !ok {
		return
	}
	d := time.Until(when)
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

// exitCode implements spec.md §4.8 step 6.
func (l *Loop) exitCode() int {
	if l.launchFailed {
		return 4
	}
	for _, s := range l.sched.Snapshot() {
		if s.State == program.StateCrashed {
			return 6
		}
	}
	return 0
}

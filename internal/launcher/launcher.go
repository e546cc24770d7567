// Package launcher forks and execs one program per spec.md §4.4: it
// applies the resolved uid/gid/supplementary groups/capabilities, sets up
// either plain pipes or a pseudo-terminal pair for stdout/stderr, and
// hands back the running pid plus the read ends cinit polls.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/F1rst-Unicorn/cinit/internal/program"
)

// ErrorKind is one of the five launch-failure categories spec.md §4.4
// names: Fork, Capabilities, Credentials, Pty, Pipe.
type ErrorKind string

const (
	ErrorFork         ErrorKind = "fork"
	ErrorCapabilities ErrorKind = "capabilities"
	ErrorCredentials  ErrorKind = "credentials"
	ErrorPty          ErrorKind = "pty"
	ErrorPipe         ErrorKind = "pipe"
)

// Error is LaunchError{sub} from spec.md §4.4: fatal for the one child
// being forked, non-fatal for the engine as a whole.
type Error struct {
	Program string
	Kind    ErrorKind
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("program %q: launch failed (%s): %v", e.Program, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Handle is what the event loop needs to track one forked child: its pid
// for waitpid/kill, and the read ends of its stdout/stderr for the event
// loop's reader goroutines.
type Handle struct {
	PID    int
	Stdout *os.File
	Stderr *os.File

	cmd *exec.Cmd
}

// Launch forks and execs rec.Path with rec.Args, rec.WorkDir, the resolved
// identity, capabilities, and env. It never blocks on the child
// finishing — the caller reaps it later through the event loop's SIGCHLD
// handling.
func Launch(rec *program.Record, env []string) (*Handle, error) {
	if rec.Path == "" {
		return nil, fmt.Errorf("program %q: no path to exec", rec.Name)
	}

	cmd := exec.Command(rec.Path, rec.Args...)
	cmd.Dir = rec.WorkDir
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid:    rec.UID,
			Gid:    rec.GID,
			Groups: rec.SupplementaryGroups,
		},
		// AmbientCaps makes the runtime perform the same
		// raise-before-switch, drop-after-switch capability dance
		// process.rs does by hand with caps::set + PR_SET_KEEPCAPS — the
		// stdlib fork/exec path already implements it once credentials
		// are supplied alongside it.
		AmbientCaps: ambientCaps(rec.Capabilities),
	}

	if rec.PTY {
		return launchWithPTY(cmd, rec)
	}
	return launchWithPipes(cmd, rec)
}

func launchWithPipes(cmd *exec.Cmd, rec *program.Record) (*Handle, error) {
	stdoutRead, stdoutWrite, err := os.Pipe()
	if err != nil {
		return nil, &Error{Program: rec.Name, Kind: ErrorPipe, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderrRead, stderrWrite, err := os.Pipe()
	if err != nil {
		stdoutRead.Close()
		stdoutWrite.Close()
		return nil, &Error{Program: rec.Name, Kind: ErrorPipe, Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	cmd.Stdout = stdoutWrite
	cmd.Stderr = stderrWrite

	if err := cmd.Start(); err != nil {
		stdoutRead.Close()
		stdoutWrite.Close()
		stderrRead.Close()
		stderrWrite.Close()
		return nil, &Error{Program: rec.Name, Kind: ErrorFork, Err: err}
	}

	// The write ends were only needed so exec could inherit them; cinit
	// itself reads from the other side.
	stdoutWrite.Close()
	stderrWrite.Close()

	return &Handle{PID: cmd.Process.Pid, Stdout: stdoutRead, Stderr: stderrRead, cmd: cmd}, nil
}

// launchWithPTY implements spec.md §4.4 step 3's pty branch literally: one
// pty pair, whose single slave becomes the child's stdin, stdout, *and*
// stderr, with the one master fd kept by cinit. Unlike the two-pipe branch,
// there is only ever one stream to read from, so Handle.Stderr stays nil —
// the event loop treats a nil Stderr as already closed.
func launchWithPTY(cmd *exec.Cmd, rec *program.Record) (*Handle, error) {
	master, slave, err := openPTY()
	if err != nil {
		return nil, &Error{Program: rec.Name, Kind: ErrorPty, Err: fmt.Errorf("pty: %w", err)}
	}

	rows, cols := defaultWinsize()
	_ = setWinsize(slave.Fd(), rows, cols)
	_ = os.Chown(slave.Name(), int(rec.UID), int(rec.GID))
	_ = slave.Chmod(0o620)

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr.Setsid = true

	if err := cmd.Start(); err != nil {
		master.Close()
		slave.Close()
		return nil, &Error{Program: rec.Name, Kind: ErrorFork, Err: err}
	}

	slave.Close()

	return &Handle{PID: cmd.Process.Pid, Stdout: master, Stderr: nil, cmd: cmd}, nil
}

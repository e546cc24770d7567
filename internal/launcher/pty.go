package launcher

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// openPTY opens a fresh pseudo-terminal pair, returning the master (kept
// open by cinit for reading/polling) and slave (handed to the child as
// stdin, stdout and stderr) ends. There is no pty library anywhere in the
// retrieval pack, so this talks to /dev/ptmx directly through
// golang.org/x/sys/unix the way the teacher's other raw-syscall code
// (process table signalling, socket options) reaches for that module
// rather than hand-writing the syscalls themselves.
func openPTY() (master, slave *os.File, err error) {
	masterFD, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}
	master = os.NewFile(uintptr(masterFD), "ptmx")

	if err := unlockPT(masterFD); err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("unlockpt: %w", err)
	}

	slaveName, err := ptsName(masterFD)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("ptsname: %w", err)
	}

	slaveFD, err := unix.Open(slaveName, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("open %s: %w", slaveName, err)
	}
	slave = os.NewFile(uintptr(slaveFD), slaveName)

	return master, slave, nil
}

func unlockPT(fd int) error {
	var unlock int32
	return unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, int(unlock))
}

func ptsName(fd int) (string, error) {
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("/dev/pts/%d", n), nil
}

// setWinsize applies a terminal window size to fd, mirroring
// create_ptys's fallback-to-sane-defaults behavior when cinit itself
// isn't attached to a controlling terminal.
func setWinsize(fd uintptr, rows, cols uint16) error {
	ws := &unix.Winsize{Row: rows, Col: cols}
	return unix.IoctlSetWinsize(int(fd), unix.TIOCSWINSZ, ws)
}

func defaultWinsize() (rows, cols uint16) {
	ws, err := unix.IoctlGetWinsize(int(os.Stdin.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Row == 0 || ws.Col == 0 {
		return 24, 80
	}
	return ws.Row, ws.Col
}

package eventloop

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/F1rst-Unicorn/cinit/internal/graph"
)

// notifyHub implements the supplemented Notify readiness protocol
// (SPEC_FULL.md §5.1): one AF_UNIX SOCK_DGRAM socket per Notify program,
// its path exported to the child as NOTIFY_SOCKET, speaking the same
// READY=1/STOPPING=1/STATUS=<str>/MAINPID=<pid> line protocol as systemd's
// sd_notify.
type notifyHub struct {
	log *slog.Logger
	dir string

	readyCh    chan graph.ID
	stoppingCh chan graph.ID
	mainPIDCh  chan mainPIDEvent

	mu         sync.Mutex
	conns      map[graph.ID]*net.UnixConn
	statusText map[string]string // by program name
}

type mainPIDEvent struct {
	id  graph.ID
	pid int
}

func newNotifyHub(log *slog.Logger) *notifyHub {
	dir, err := os.MkdirTemp("", "cinit-notify-")
	if err != nil {
		dir = os.TempDir()
	}
	return &notifyHub{
		log:        log,
		dir:        dir,
		readyCh:    make(chan graph.ID, 16),
		stoppingCh: make(chan graph.ID, 16),
		mainPIDCh:  make(chan mainPIDEvent, 16),
		conns:      make(map[graph.ID]*net.UnixConn),
		statusText: make(map[string]string),
	}
}

// listen opens a fresh notification socket for id and returns its path,
// to be exported to the child as NOTIFY_SOCKET.
func (h *notifyHub) listen(id graph.ID, name string) (string, error) {
	path := filepath.Join(h.dir, fmt.Sprintf("%d.sock", id))
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		return "", err
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	h.conns[id] = conn
	h.mu.Unlock()

	go h.pump(id, name, conn)
	return path, nil
}

func (h *notifyHub) pump(id graph.ID, name string, conn *net.UnixConn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			h.handleLine(id, name, line)
		}
	}
}

func (h *notifyHub) handleLine(id graph.ID, name, line string) {
	switch {
	case line == "READY=1":
		h.readyCh <- id
	case line == "STOPPING=1":
		h.stoppingCh <- id
	case strings.HasPrefix(line, "STATUS="):
		h.mu.Lock()
		h.statusText[name] = strings.TrimPrefix(line, "STATUS=")
		h.mu.Unlock()
	case strings.HasPrefix(line, "MAINPID="):
		pid, err := strconv.Atoi(strings.TrimPrefix(line, "MAINPID="))
		if err != nil {
			h.log.Warn(fmt.Sprintf("malformed MAINPID notification: %q", line), "name", name)
			return
		}
		h.mainPIDCh <- mainPIDEvent{id: id, pid: pid}
	default:
		h.log.Warn(fmt.Sprintf("unrecognised notify message: %q", line), "name", name)
	}
}

// statusTextSnapshot returns a point-in-time copy of every program's
// latest STATUS= text, for internal/status.Render.
func (h *notifyHub) statusTextSnapshot() map[string]string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]string, len(h.statusText))
	for k, v := range h.statusText {
		out[k] = v
	}
	return out
}

func (h *notifyHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.Close()
	}
	_ = os.RemoveAll(h.dir)
}

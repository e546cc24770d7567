package program

import (
	"fmt"
	"os/user"
	"strconv"
)

// knownCapabilities lists the Linux capability names accepted per
// capabilities(7). Kept as a plain set rather than imported from a library:
// no capability-name library appears anywhere in the retrieval pack, and
// the actual capability *syscalls* are handled separately in
// internal/launcher via golang.org/x/sys/unix.
var knownCapabilities = map[string]bool{
	"CAP_CHOWN": true, "CAP_DAC_OVERRIDE": true, "CAP_DAC_READ_SEARCH": true,
	"CAP_FOWNER": true, "CAP_FSETID": true, "CAP_KILL": true, "CAP_SETGID": true,
	"CAP_SETUID": true, "CAP_SETPCAP": true, "CAP_LINUX_IMMUTABLE": true,
	"CAP_NET_BIND_SERVICE": true, "CAP_NET_BROADCAST": true, "CAP_NET_ADMIN": true,
	"CAP_NET_RAW": true, "CAP_IPC_LOCK": true, "CAP_IPC_OWNER": true,
	"CAP_SYS_MODULE": true, "CAP_SYS_RAWIO": true, "CAP_SYS_CHROOT": true,
	"CAP_SYS_PTRACE": true, "CAP_SYS_PACCT": true, "CAP_SYS_ADMIN": true,
	"CAP_SYS_BOOT": true, "CAP_SYS_NICE": true, "CAP_SYS_RESOURCE": true,
	"CAP_SYS_TIME": true, "CAP_SYS_TTY_CONFIG": true, "CAP_MKNOD": true,
	"CAP_LEASE": true, "CAP_AUDIT_WRITE": true, "CAP_AUDIT_CONTROL": true,
	"CAP_SETFCAP": true, "CAP_MAC_OVERRIDE": true, "CAP_MAC_ADMIN": true,
	"CAP_SYSLOG": true, "CAP_WAKE_ALARM": true, "CAP_BLOCK_SUSPEND": true,
	"CAP_AUDIT_READ": true, "CAP_PERFMON": true, "CAP_BPF": true,
	"CAP_CHECKPOINT_RESTORE": true,
}

// ValidationError wraps any of invariant 1-6 in spec.md §3.
type ValidationError struct {
	Program string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Program == "" {
		return e.Reason
	}
	return fmt.Sprintf("program %q: %s", e.Program, e.Reason)
}

// GroupLookup resolves supplementary groups for a uid; abstracted so tests
// don't need real host identities. The production implementation
// (DefaultGroupLookup) reads the host's user and group databases via
// os/user.
type GroupLookup interface {
	LookupUser(name string) (uid, gid uint32, err error)
	LookupGroup(name string) (gid uint32, err error)
	SupplementaryGroups(uid uint32) ([]uint32, error)
}

// osGroupLookup is the real, host-backed GroupLookup.
type osGroupLookup struct{}

func (osGroupLookup) LookupUser(name string) (uint32, uint32, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return 0, 0, err
	}
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(uid), uint32(gid), nil
}

func (osGroupLookup) LookupGroup(name string) (uint32, error) {
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	gid, err := strconv.ParseUint(g.Gid, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(gid), nil
}

func (osGroupLookup) SupplementaryGroups(uid uint32) ([]uint32, error) {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, err
	}
	gids, err := u.GroupIds()
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 0, len(gids))
	for _, g := range gids {
		v, err := strconv.ParseUint(g, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

// DefaultGroupLookup is the host-backed GroupLookup used outside of tests.
var DefaultGroupLookup GroupLookup = osGroupLookup{}

// ResolveHostIdentities implements invariant 6 (uid/gid/capability/user/group
// existence) and fills in SupplementaryGroups, per spec.md §4.4 step 4a.
// Unresolved UserName/GroupName are turned into numeric UID/GID. The final
// UID, explicit or not, must be known to lookup (its supplementary groups
// are read through it); an explicit numeric GID is used as given, without
// a host lookup.
func (r *Record) ResolveHostIdentities(lookup GroupLookup) error {
	if r.UserName != "" {
		uid, gid, err := lookup.LookupUser(r.UserName)
		if err != nil {
			return &ValidationError{Program: r.Name, Reason: fmt.Sprintf("unknown user %q: %v", r.UserName, err)}
		}
		r.UID = uid
		if r.GroupName == "" {
			r.GID = gid
		}
	}
	if r.GroupName != "" {
		gid, err := lookup.LookupGroup(r.GroupName)
		if err != nil {
			return &ValidationError{Program: r.Name, Reason: fmt.Sprintf("unknown group %q: %v", r.GroupName, err)}
		}
		r.GID = gid
	}

	groups, err := lookup.SupplementaryGroups(r.UID)
	if err != nil {
		return &ValidationError{Program: r.Name, Reason: fmt.Sprintf("unknown uid %d: %v", r.UID, err)}
	}
	r.SupplementaryGroups = groups

	for _, c := range r.Capabilities {
		if !knownCapabilities[c] {
			return &ValidationError{Program: r.Name, Reason: fmt.Sprintf("unknown capability %q", c)}
		}
	}

	if r.Path == "" {
		return &ValidationError{Program: r.Name, Reason: "no path given (no record carried a path)"}
	}

	return nil
}

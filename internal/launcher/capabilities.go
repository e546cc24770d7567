package launcher

// capabilityNumbers maps the capability names accepted by
// internal/program's validation to their kernel ABI numbers from
// linux/capability.h, for use as syscall.SysProcAttr.AmbientCaps. Kept as
// a plain table: these are fixed kernel constants, not something any
// library in the retrieval pack — or the wider ecosystem — meaningfully
// wraps beyond a name-to-number lookup.
var capabilityNumbers = map[string]uintptr{
	"CAP_CHOWN":              0,
	"CAP_DAC_OVERRIDE":       1,
	"CAP_DAC_READ_SEARCH":    2,
	"CAP_FOWNER":             3,
	"CAP_FSETID":             4,
	"CAP_KILL":               5,
	"CAP_SETGID":             6,
	"CAP_SETUID":             7,
	"CAP_SETPCAP":            8,
	"CAP_LINUX_IMMUTABLE":    9,
	"CAP_NET_BIND_SERVICE":   10,
	"CAP_NET_BROADCAST":      11,
	"CAP_NET_ADMIN":          12,
	"CAP_NET_RAW":            13,
	"CAP_IPC_LOCK":           14,
	"CAP_IPC_OWNER":          15,
	"CAP_SYS_MODULE":         16,
	"CAP_SYS_RAWIO":          17,
	"CAP_SYS_CHROOT":         18,
	"CAP_SYS_PTRACE":         19,
	"CAP_SYS_PACCT":          20,
	"CAP_SYS_ADMIN":          21,
	"CAP_SYS_BOOT":           22,
	"CAP_SYS_NICE":           23,
	"CAP_SYS_RESOURCE":       24,
	"CAP_SYS_TIME":           25,
	"CAP_SYS_TTY_CONFIG":     26,
	"CAP_MKNOD":              27,
	"CAP_LEASE":              28,
	"CAP_AUDIT_WRITE":        29,
	"CAP_AUDIT_CONTROL":      30,
	"CAP_SETFCAP":            31,
	"CAP_MAC_OVERRIDE":       32,
	"CAP_MAC_ADMIN":          33,
	"CAP_SYSLOG":             34,
	"CAP_WAKE_ALARM":         35,
	"CAP_BLOCK_SUSPEND":      36,
	"CAP_AUDIT_READ":         37,
	"CAP_PERFMON":            38,
	"CAP_BPF":                39,
	"CAP_CHECKPOINT_RESTORE": 40,
}

// ambientCaps converts capability names (already validated against
// program.knownCapabilities during config load) into the numeric form
// syscall.SysProcAttr.AmbientCaps expects. Unknown names are skipped
// rather than erroring, since validation has already run by the time a
// program reaches the launcher.
func ambientCaps(names []string) []uintptr {
	if len(names) == 0 {
		return nil
	}
	out := make([]uintptr, 0, len(names))
	for _, n := range names {
		if num, ok := capabilityNumbers[n]; ok {
			out = append(out, num)
		}
	}
	return out
}

// Package driver implements spec.md §4.8: the top-level lifecycle that
// ties precondition checks, configuration loading, scheduler construction,
// and the event loop together into the single exit code cinit reports.
package driver

import (
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sys/unix"

	"github.com/F1rst-Unicorn/cinit/internal/config"
	"github.com/F1rst-Unicorn/cinit/internal/eventloop"
	"github.com/F1rst-Unicorn/cinit/internal/program"
	"github.com/F1rst-Unicorn/cinit/internal/scheduler"
)

// Exit codes per spec.md §4.8 step 6 / §6's "Exit codes" table.
const (
	ExitSuccess           = 0
	ExitConfigIO          = 1
	ExitConfigSemantics   = 2
	ExitRuntimeSetup      = 3
	ExitLaunchFailure     = 4
	ExitPrecondition      = 5
	ExitChildCrashed      = 6
)

// Options are the resolved command-line inputs the driver needs, built by
// cmd/cinit from cobra flags.
type Options struct {
	ConfigPath string
	SocketPath string
	Geteuid    func() int
	Uname      func() (release string, err error)
}

// Run executes the three-phase lifecycle main.rs's run() describes
// (config collection, analysis, runtime) and returns the process exit
// code. It never calls os.Exit itself so it stays testable.
func Run(opts Options, log *slog.Logger) int {
	if log == nil {
		log = slog.Default()
	}

	if code := checkPreconditions(opts, log); code != ExitSuccess {
		return code
	}

	records, code := loadAndMerge(opts.ConfigPath, log)
	if code != ExitSuccess {
		return code
	}

	sched, err := scheduler.New(records)
	if err != nil {
		log.Error(fmt.Sprintf("building scheduler: %v", err))
		return exitForValidationError(err)
	}

	loop := eventloop.New(sched, opts.SocketPath, log)
	if err := loop.Setup(); err != nil {
		log.Error(fmt.Sprintf("setup failed: %v", err))
		return ExitRuntimeSetup
	}
	defer loop.Close()

	log.Info("spawning processes")
	return loop.Run()
}

// checkPreconditions implements spec.md §4.8 step 1 / the supplemented
// startup_checks.rs behavior: EUID must be 0, and the kernel must be new
// enough to support ambient capabilities (4.3+). An unreadable kernel
// version is logged and tolerated rather than treated as a failure, just
// as startup_checks.rs does when uname() itself fails or the release
// string can't be parsed.
func checkPreconditions(opts Options, log *slog.Logger) int {
	geteuid := opts.Geteuid
	if geteuid == nil {
		geteuid = func() int { return unix.Geteuid() }
	}
	if geteuid() != 0 {
		log.Error("cinit is not running as root; this is needed to switch users and capabilities")
		return ExitPrecondition
	}

	unameFn := opts.Uname
	if unameFn == nil {
		unameFn = defaultUname
	}
	release, err := unameFn()
	if err != nil {
		log.Warn(fmt.Sprintf("could not read kernel version: %v", err))
		return ExitSuccess
	}
	major, minor, ok := parseKernelRelease(release)
	if !ok {
		log.Warn(fmt.Sprintf("could not determine kernel version from %q", release))
		return ExitSuccess
	}
	if major < 4 || (major == 4 && minor < 3) {
		log.Error("kernel is older than 4.3; ambient capabilities are not supported but are needed for cinit to work properly")
		return ExitPrecondition
	}
	return ExitSuccess
}

func defaultUname() (string, error) {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "", err
	}
	n := 0
	for n < len(uts.Release) && uts.Release[n] != 0 {
		n++
	}
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte(uts.Release[i])
	}
	return string(b), nil
}

func parseKernelRelease(release string) (major, minor int, ok bool) {
	var dot int
	for dot = 0; dot < len(release); dot++ {
		if release[dot] == '.' {
			break
		}
	}
	if dot == 0 || dot >= len(release)-1 {
		return 0, 0, false
	}
	majorStr := release[:dot]
	rest := release[dot+1:]
	var dot2 int
	for dot2 = 0; dot2 < len(rest); dot2++ {
		if rest[dot2] < '0' || rest[dot2] > '9' {
			break
		}
	}
	if dot2 == 0 {
		return 0, 0, false
	}
	minorStr := rest[:dot2]

	major, err := atoiStrict(majorStr)
	if err != nil {
		return 0, 0, false
	}
	minor, err = atoiStrict(minorStr)
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func atoiStrict(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a digit: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// loadAndMerge implements spec.md §4.8 step 2: load raw config, group by
// name, merge each group into a Record, resolve host identities, and hand
// the fully validated set to the caller. File/syntax failures map to exit
// code 1; everything past that (duplicate fields, cycles, unknown
// references, unknown uid/gid/capabilities) maps to exit code 2.
func loadAndMerge(path string, log *slog.Logger) ([]*program.Record, int) {
	raws, err := config.Load(path)
	if err != nil {
		log.Error(fmt.Sprintf("loading configuration: %v", err))
		return nil, ExitConfigIO
	}

	grouped := make(map[string][]*program.Raw)
	var order []string
	for _, r := range raws {
		if _, ok := grouped[r.Name]; !ok {
			order = append(order, r.Name)
		}
		grouped[r.Name] = append(grouped[r.Name], r)
	}
	sort.Strings(order)

	records := make([]*program.Record, 0, len(order))
	for _, name := range order {
		rec, err := program.Merge(name, grouped[name])
		if err != nil {
			log.Error(fmt.Sprintf("merging %q: %v", name, err))
			return nil, ExitConfigSemantics
		}
		if err := rec.ResolveHostIdentities(program.DefaultGroupLookup); err != nil {
			log.Error(fmt.Sprintf("validating %q: %v", name, err))
			return nil, ExitConfigSemantics
		}
		records = append(records, rec)
	}

	return records, ExitSuccess
}

// exitForValidationError maps scheduler.New's construction-time errors
// (all ultimately *graph.CycleError, *graph.UnknownReferenceError, or
// *graph.CronjobDependencyError) to exit code 2; they are always semantic
// (cycles, unknown references, illegal cronjob dependency direction),
// never I/O.
func exitForValidationError(_ error) int {
	return ExitConfigSemantics
}

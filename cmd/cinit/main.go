// Command cinit is a PID-1-capable process supervisor for containers: it
// launches a declaratively configured set of programs in dependency order,
// re-runs cronjobs on a timer, reaps terminated descendants including
// inherited orphans, and forwards their output into one structured log
// stream.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/F1rst-Unicorn/cinit/internal/driver"
	"github.com/F1rst-Unicorn/cinit/internal/supervisorlog"
)

// version is overwritten at build time via -ldflags, following the
// teacher's cmd/provisr convention of a package-level var rather than
// baking a version into source.
var version = "dev"

const statusSocketPath = "/run/cinit.socket"

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var verbosity int

	root := &cobra.Command{
		Use:           "cinit",
		Short:         "container init system",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "/etc/cinit.yml", "The config file or directory to run with")
	root.Flags().CountVarP(&verbosity, "verbose", "v", "Output information while running (repeat for trace level)")

	// cobra's built-in --version flag has no short form and would collide
	// with -v/--verbose if enabled here, so -V/--version (spec.md §6) is
	// wired by hand instead of through cmd.Version.
	var showVersion bool
	root.Flags().BoolVarP(&showVersion, "version", "V", false, "Print version information")

	exitCode := driver.ExitSuccess
	root.RunE = func(_ *cobra.Command, _ []string) error {
		if showVersion {
			fmt.Println("cinit " + version)
			return nil
		}

		log := slog.New(supervisorlog.New(os.Stderr, levelFor(verbosity)))
		log.Info("starting up")
		log.Info(fmt.Sprintf("config is at %s", configPath))

		exitCode = driver.Run(driver.Options{
			ConfigPath: configPath,
			SocketPath: statusSocketPath,
		}, log)
		return nil
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

// levelFor maps -v's repeat count to slog levels: unset is Info, one is
// Debug, two or more is the supplemented supervisorlog.LevelTrace, mirroring
// logging.rs's initialise(occurrences_of(FLAG_VERBOSE)).
func levelFor(count int) slog.Level {
	switch {
	case count <= 0:
		return slog.LevelInfo
	case count == 1:
		return slog.LevelDebug
	default:
		return supervisorlog.LevelTrace
	}
}

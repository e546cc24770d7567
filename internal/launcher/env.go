package launcher

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/F1rst-Unicorn/cinit/internal/envtemplate"
	"github.com/F1rst-Unicorn/cinit/internal/program"
)

// inheritedKeys is the fixed set of supervisor environment variables
// copied into every child's environment before its own env list is
// applied, per spec.md §4.4 step 1.
var inheritedKeys = []string{"HOME", "LANG", "LANGUAGE", "LOGNAME", "PATH", "PWD", "SHELL", "TERM", "USER"}

func splitEnv(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			m[kv[:i]] = kv[i+1:]
		}
	}
	return m
}

// Prepare builds the environment and argument list for one child per
// spec.md §4.4 steps 1-2: the inherited set (minus root-only values for a
// non-root uid), then rec.Env left to right with template expansion
// against the bindings assembled so far, followed by the same expansion
// applied to rec.Args. log receives a WARN record for every
// TemplateError and for every value that still looks unresolved after
// expansion (spec.md §4.7's "warn on first such occurrence but do not
// fail"); log may be nil, in which case warnings are dropped.
func Prepare(rec *program.Record, supervisorEnv []string, log *slog.Logger) (env []string, args []string) {
	supervisor := splitEnv(supervisorEnv)
	bindings := envtemplate.NewBindings()

	for _, key := range inheritedKeys {
		v, ok := supervisor[key]
		if !ok {
			continue
		}
		if rec.UID != 0 && strings.Contains(v, "/root") {
			continue
		}
		bindings.Bind(key, v)
	}

	for _, entry := range rec.Env {
		if entry.Value != nil {
			expanded, err := envtemplate.Expand(*entry.Value, bindings)
			if err != nil {
				warn(log, rec.Name, err.Error())
				expanded = *entry.Value
			} else if envtemplate.LooksUnresolved(expanded) {
				warn(log, rec.Name, fmt.Sprintf("env %s still looks like an unresolved template: %q", entry.Key, expanded))
			}
			bindings.Bind(entry.Key, expanded)
		} else if v, ok := supervisor[entry.Key]; ok {
			bindings.Bind(entry.Key, v)
		}
	}

	args = make([]string, len(rec.Args))
	for i, a := range rec.Args {
		expanded, err := envtemplate.Expand(a, bindings)
		if err != nil {
			warn(log, rec.Name, err.Error())
			expanded = a
		} else if envtemplate.LooksUnresolved(expanded) {
			warn(log, rec.Name, fmt.Sprintf("argument %d still looks like an unresolved template: %q", i, expanded))
		}
		args[i] = expanded
	}

	return bindings.Env(), args
}

func warn(log *slog.Logger, name, msg string) {
	if log == nil {
		return
	}
	log.Warn(msg, "name", name)
}

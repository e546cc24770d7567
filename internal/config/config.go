// Package config loads the program configuration cinit runs: a single
// YAML file, or a directory walked recursively for YAML fragments, each
// parsed with viper and folded into program.Raw entries that
// internal/program.Merge then resolves into Records.
package config

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/F1rst-Unicorn/cinit/internal/program"
)

// LoadError wraps the file-I/O and YAML-syntax failures spec.md §7 groups
// under ConfigError; the lifecycle driver maps it to exit code 1.
type LoadError struct {
	Path   string
	Reason string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("config %q: %s", e.Path, e.Reason)
}

type document struct {
	Programs []rawEntry `mapstructure:"programs"`
}

type rawEntry struct {
	Name         string        `mapstructure:"name"`
	Path         string        `mapstructure:"path"`
	Args         []string      `mapstructure:"args"`
	WorkDir      string        `mapstructure:"workdir"`
	UID          *uint32       `mapstructure:"uid"`
	GID          *uint32       `mapstructure:"gid"`
	User         string        `mapstructure:"user"`
	Group        string        `mapstructure:"group"`
	Type         interface{}   `mapstructure:"type"`
	Before       []string      `mapstructure:"before"`
	After        []string      `mapstructure:"after"`
	PTY          bool          `mapstructure:"pty"`
	Capabilities []string      `mapstructure:"capabilities"`
	Env          []interface{} `mapstructure:"env"`
}

// Load reads path (a single file or a directory walked recursively for
// regular files, per spec.md §6) and returns one program.Raw per "programs"
// entry found, in the order encountered. Merging by name happens
// separately in internal/program.Merge so callers can report merge errors
// with the right exit code (2, not 1).
func Load(path string) ([]*program.Raw, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.Type().IsRegular() {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Path: path, Reason: err.Error()}
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	var raws []*program.Raw
	for _, f := range files {
		fileRaws, err := loadFile(f)
		if err != nil {
			return nil, err
		}
		raws = append(raws, fileRaws...)
	}
	return raws, nil
}

func loadFile(path string) ([]*program.Raw, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	var doc document
	if err := v.Unmarshal(&doc); err != nil {
		return nil, &LoadError{Path: path, Reason: err.Error()}
	}

	// viper lower-cases every map key it reads, including the variable
	// names used as keys of "env" entries; take the env lists straight from
	// the file instead so variable names keep their case.
	var envDoc struct {
		Programs []struct{ Env []interface{} } `yaml:"programs"`
	}
	data, err := os.ReadFile(path)
	if err == nil {
		err = yaml.Unmarshal(data, &envDoc)
	}
	if err != nil || len(envDoc.Programs) != len(doc.Programs) {
		return nil, &LoadError{Path: path, Reason: fmt.Sprintf("reading env lists: %v", err)}
	}
	for i := range doc.Programs {
		doc.Programs[i].Env = envDoc.Programs[i].Env
	}

	raws := make([]*program.Raw, 0, len(doc.Programs))
	for _, e := range doc.Programs {
		raw, err := toRaw(e)
		if err != nil {
			return nil, &LoadError{Path: path, Reason: err.Error()}
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

func toRaw(e rawEntry) (*program.Raw, error) {
	if e.Name == "" {
		return nil, fmt.Errorf("program entry missing required field \"name\"")
	}

	raw := &program.Raw{
		Name:         e.Name,
		Args:         e.Args,
		Before:       e.Before,
		After:        e.After,
		PTY:          e.PTY,
		Capabilities: e.Capabilities,
	}
	if e.Path != "" {
		raw.Path = &e.Path
	}
	if e.WorkDir != "" {
		raw.WorkDir = &e.WorkDir
	}
	raw.UID = e.UID
	raw.GID = e.GID
	if e.User != "" {
		raw.User = &e.User
	}
	if e.Group != "" {
		raw.Group = &e.Group
	}

	kind, schedule, err := parseType(e.Type)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", e.Name, err)
	}
	if kind != nil {
		raw.WithKind(*kind)
		raw.CronSchedule = schedule
	}

	env, err := parseEnv(e.Env)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", e.Name, err)
	}
	raw.Env = env

	return raw, nil
}

// parseType decodes the YAML "type" field, which is either a bare string
// ("oneshot", "notify") or, for a cronjob, a single-key map
// {cronjob: {timer: "<cron spec>"}} mirroring the original implementation's
// serde_yaml::with::singleton_map encoding of its ProcessType enum.
func parseType(raw interface{}) (*program.Kind, string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, "", nil
	case string:
		switch v {
		case "oneshot":
			k := program.KindOneshot
			return &k, "", nil
		case "notify":
			k := program.KindNotify
			return &k, "", nil
		default:
			return nil, "", fmt.Errorf("unknown type %q", v)
		}
	case map[string]interface{}:
		body, ok := v["cronjob"]
		if !ok {
			return nil, "", fmt.Errorf("unknown type %v", v)
		}
		bodyMap, ok := body.(map[string]interface{})
		if !ok {
			return nil, "", fmt.Errorf("cronjob type requires a \"timer\" field")
		}
		timer, ok := bodyMap["timer"].(string)
		if !ok || timer == "" {
			return nil, "", fmt.Errorf("cronjob type requires a \"timer\" field")
		}
		k := program.KindCronjob
		return &k, timer, nil
	default:
		return nil, "", fmt.Errorf("unsupported \"type\" value %v", v)
	}
}

// parseEnv decodes the YAML "env" list, where each entry is a single-key
// map of NAME to either a string value or null (meaning "inherit from the
// supervisor if present, else drop"), per spec.md §3.
func parseEnv(raw []interface{}) ([]program.EnvEntry, error) {
	out := make([]program.EnvEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok || len(m) != 1 {
			return nil, fmt.Errorf("env entry must be a single-key mapping of NAME to a value or null")
		}
		for k, v := range m {
			if v == nil {
				out = append(out, program.EnvEntry{Key: k})
				continue
			}
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("env entry %q: value must be a string or null", k)
			}
			out = append(out, program.EnvEntry{Key: k, Value: &s})
		}
	}
	return out, nil
}

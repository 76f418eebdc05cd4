// Package config loads schedbox's configuration file.
//
// All settings are optional. Variant tables are merged with the built-in variant of the same name, so a
// configuration only has to name what it changes:
//
//	bins: 200
//	variants:
//	  - name: cobalt
//	    switch_color: "#0000ff"
//	    dense_bin: 0
//	  - name: preemptirq
//	    switch: {system: custom, event: ctx_switch, next_pid: next, prev_pid: prev}
//	    wakeup: {system: custom, event: wake, pid: pid}
//	    switch_color: "#00ffff"
//	    wakeup_color: "#ff00ff"
package config

import (
	stdcolor "image/color"
	"os"

	"honnef.co/go/schedbox/color"
	"honnef.co/go/schedbox/histo"
	"honnef.co/go/schedbox/sched"
	"honnef.co/go/schedbox/trace/store"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

type Configuration struct {
	// Number of bins the visible range is divided into.
	Bins int `yaml:"bins"`
	// Directory laid out like /sys/kernel/tracing/events. The embedded formats are used if empty.
	EventsDir string          `yaml:"events_dir"`
	Variants  []VariantConfig `yaml:"variants"`
	Store     store.Config    `yaml:"store"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`

	ConfigPath string `yaml:"-"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Verbosity    int  `yaml:"verbosity"`
	AlsoToStderr bool `yaml:"also_to_stderr"`
}

type SwitchConfig struct {
	System  string `yaml:"system"`
	Event   string `yaml:"event"`
	NextPID string `yaml:"next_pid"`
	PrevPID string `yaml:"prev_pid"`
}

type WakeupConfig struct {
	System  string `yaml:"system"`
	Event   string `yaml:"event"`
	PID     string `yaml:"pid"`
	Success string `yaml:"success"`
}

type VariantConfig struct {
	Name        string       `yaml:"name"`
	Disabled    bool         `yaml:"disabled"`
	Switch      SwitchConfig `yaml:"switch"`
	Wakeup      WakeupConfig `yaml:"wakeup"`
	SwitchColor string       `yaml:"switch_color"`
	WakeupColor string       `yaml:"wakeup_color"`
	DenseBin    *int         `yaml:"dense_bin"`
}

func Default() Configuration {
	return Configuration{
		Bins:   500,
		Store:  store.DefaultConfig(),
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads the configuration at path over the defaults. An empty path returns the defaults.
func Load(path string) (Configuration, error) {
	cfg := Default()
	cfg.ConfigPath = path
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "couldn't read configuration")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "couldn't parse %s", path)
	}
	if cfg.Bins <= 0 || cfg.Bins > histo.MaxBins {
		return cfg, errors.Errorf("%s: bins must be between 1 and %d, got %d", path, histo.MaxBins, cfg.Bins)
	}
	if _, err := cfg.SchedVariants(); err != nil {
		return cfg, errors.Wrap(err, path)
	}
	return cfg, nil
}

func or(s, def string) string {
	if s != "" {
		return s
	}
	return def
}

// SchedVariants returns the built-in variants, changed and extended by the configured ones.
func (cfg *Configuration) SchedVariants() ([]sched.Variant, error) {
	out := sched.Builtin()
	index := map[string]int{}
	for i, v := range out {
		index[v.Name] = i
	}

	var disabled []string
	for _, vc := range cfg.Variants {
		if vc.Name == "" {
			return nil, errors.New("variant without a name")
		}
		var v sched.Variant
		i, builtin := index[vc.Name]
		if builtin {
			v = out[i]
		}
		if vc.Disabled {
			disabled = append(disabled, vc.Name)
			continue
		}

		v.Name = vc.Name
		v.Switch.System = or(vc.Switch.System, v.Switch.System)
		v.Switch.Name = or(vc.Switch.Event, v.Switch.Name)
		v.SwitchNextPID = or(vc.Switch.NextPID, v.SwitchNextPID)
		v.SwitchPrevPID = or(vc.Switch.PrevPID, v.SwitchPrevPID)
		v.Wakeup.System = or(vc.Wakeup.System, v.Wakeup.System)
		v.Wakeup.Name = or(vc.Wakeup.Event, v.Wakeup.Name)
		v.WakeupPID = or(vc.Wakeup.PID, v.WakeupPID)
		v.WakeupSuccess = or(vc.Wakeup.Success, v.WakeupSuccess)
		if vc.DenseBin != nil {
			v.DenseBin = *vc.DenseBin
		}
		if err := parseColor(vc.SwitchColor, &v.SwitchColor); err != nil {
			return nil, errors.Wrapf(err, "variant %s", vc.Name)
		}
		if err := parseColor(vc.WakeupColor, &v.WakeupColor); err != nil {
			return nil, errors.Wrapf(err, "variant %s", vc.Name)
		}

		switch {
		case v.Switch.System == "" || v.Switch.Name == "":
			return nil, errors.Errorf("variant %s: no switch event", v.Name)
		case v.Wakeup.System == "" || v.Wakeup.Name == "":
			return nil, errors.Errorf("variant %s: no wakeup event", v.Name)
		case v.SwitchNextPID == "" || v.SwitchPrevPID == "" || v.WakeupPID == "":
			return nil, errors.Errorf("variant %s: missing pid fields", v.Name)
		}

		if builtin {
			out[i] = v
		} else {
			index[v.Name] = len(out)
			out = append(out, v)
		}
	}

	if len(disabled) > 0 {
		filtered := out[:0]
		for _, v := range out {
			if !slices.Contains(disabled, v.Name) {
				filtered = append(filtered, v)
			}
		}
		out = filtered
	}
	return out, nil
}

func parseColor(s string, dst *stdcolor.NRGBA) error {
	if s == "" {
		return nil
	}
	c, err := color.Parse(s)
	if err != nil {
		return err
	}
	*dst = c
	return nil
}

//
// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//
// Package config gathers the settings of a conversion from command-line
// flags, SCHEDWAVE_* environment variables and an optional YAML file, in
// decreasing order of precedence.
package config

import (
	"strings"
	"time"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/google/schedwave/convert"
	"github.com/google/schedwave/symbols"
)

// EnvPrefix prefixes the environment variables read.
const EnvPrefix = "SCHEDWAVE"

// Trace formats.
const (
	FormatFtrace  = "ftrace"
	FormatSchedBT = "schedbt"
)

// Options holds the settings of a conversion.
type Options struct {
	Verbose        bool          `mapstructure:"verbose"`
	Diag           bool          `mapstructure:"diag"`
	ExtendedStates bool          `mapstructure:"extended-states"`
	HideCPUSwitch  bool          `mapstructure:"hide-cpu-switch"`
	AbsoluteClock  bool          `mapstructure:"absolute-clock"`
	Stats          int           `mapstructure:"stats"`
	StatsFormat    string        `mapstructure:"stats-format"`
	Exe            string        `mapstructure:"exe"`
	Resolver       string        `mapstructure:"resolver"`
	CacheSize      int           `mapstructure:"cache-size"`
	MaxCPU         int           `mapstructure:"max-cpu"`
	LoadPeriod     time.Duration `mapstructure:"load-period"`
	MetricsFile    string        `mapstructure:"metrics-file"`
	Profile        string        `mapstructure:"profile"`
	Format         string        `mapstructure:"format"`
}

// RegisterFlags defines the flags of every option on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.BoolP("verbose", "v", false, "log progress")
	fs.BoolP("diag", "d", false, "log every event")
	fs.BoolP("extended-states", "c", true, "use the viewer's extended states for task channels")
	fs.BoolP("hide-cpu-switch", "s", false, "do not show context switches on the CPU channels")
	fs.BoolP("absolute-clock", "a", false, "keep trace timestamps instead of starting at 0")
	fs.IntP("stats", "S", 0, "statistics to report: 1 for IRQs, 2 for softirqs")
	fs.String("stats-format", "table", "statistics format: table or yaml")
	fs.StringP("exe", "e", "", "kernel image used to label addresses")
	fs.String("resolver", "addr2line", "address resolver: addr2line or elf")
	fs.Int("cache-size", symbols.DefaultCacheSize, "number of address labels kept")
	fs.Int("max-cpu", convert.DefaultMaxCPU, "number of CPUs supported")
	fs.Duration("load-period", 0, "sample CPU load with this period, 0 to disable")
	fs.String("metrics-file", "", "write conversion counters to this file")
	fs.String("profile", "", "profile the conversion: cpu or mem")
	fs.String("format", FormatFtrace, "trace format: ftrace or schedbt")
}

// Load reads the options from the flags of fs, the environment and, if
// path is not empty, the YAML file at path.
func Load(fs *pflag.FlagSet, path string) (*Options, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "failed to bind flags")
	}
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", path)
		}
		log.V(1).Infof("read config %s", path)
	}
	o := &Options{}
	if err := v.Unmarshal(o); err != nil {
		return nil, errors.Wrap(err, "failed to decode options")
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// Validate checks the option values.
func (o *Options) Validate() error {
	switch {
	case o.MaxCPU <= 0:
		return errors.Errorf("invalid CPU count %d", o.MaxCPU)
	case o.Stats < 0 || convert.StatsMask(o.Stats)&^(convert.StatIRQ|convert.StatSoftirq) != 0:
		return errors.Errorf("invalid statistics mask %d", o.Stats)
	case o.StatsFormat != "table" && o.StatsFormat != "yaml":
		return errors.Errorf("unknown statistics format %q", o.StatsFormat)
	case o.Resolver != "addr2line" && o.Resolver != "elf":
		return errors.Errorf("unknown resolver %q", o.Resolver)
	case o.Profile != "" && o.Profile != "cpu" && o.Profile != "mem":
		return errors.Errorf("unknown profile %q", o.Profile)
	case o.Format != FormatFtrace && o.Format != FormatSchedBT:
		return errors.Errorf("unknown trace format %q", o.Format)
	case o.LoadPeriod < 0:
		return errors.Errorf("negative load period %s", o.LoadPeriod)
	}
	return nil
}

// NewResolver returns the address resolver selected, or nil if no
// executable was given.
func (o *Options) NewResolver() (symbols.Resolver, error) {
	if o.Exe == "" {
		return nil, nil
	}
	if o.Resolver == "elf" {
		e, err := symbols.OpenELF(o.Exe)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
	return &symbols.Addr2Line{Exe: o.Exe}, nil
}

// Convert returns the converter options selected.
func (o *Options) Convert() (convert.Options, error) {
	co := convert.DefaultOptions()
	co.MaxCPU = o.MaxCPU
	co.ExtendedStates = o.ExtendedStates
	co.ShowCPUSwitch = !o.HideCPUSwitch
	co.RebaseClock = !o.AbsoluteClock
	co.Stats = convert.StatsMask(o.Stats)
	co.LoadPeriod = o.LoadPeriod
	co.CacheSize = o.CacheSize
	r, err := o.NewResolver()
	if err != nil {
		return co, err
	}
	co.Resolver = r
	return co, nil
}

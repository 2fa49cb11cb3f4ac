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
// Binary schedwave converts a kernel trace into a VCD waveform and a
// GTKWave save file laying out its channels.
//
//	schedwave [flags] <trace_dir> [<output> <savefile>]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/google/schedwave/config"
	"github.com/google/schedwave/convert"
	schedbt "github.com/google/schedwave/ebpf"
	"github.com/google/schedwave/savefile"
	"github.com/google/schedwave/tracedata/trace"
	"github.com/google/schedwave/traceparser"
	"github.com/google/schedwave/wave"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	// exitUsage is EX_USAGE.
	exitUsage = 64
)

// usageError marks errors caused by the command line.
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func usagef(format string, args ...interface{}) error {
	return usageError{errors.Errorf(format, args...)}
}

// paths holds the files a conversion reads and writes.
type paths struct {
	trace    string
	output   string
	savefile string
	// alias is the hard link to savefile the viewer opens by default.
	alias string
}

func outputPaths(args []string) (paths, error) {
	var p paths
	switch len(args) {
	case 1, 3:
		p.trace = strings.TrimSuffix(args[0], "/")
	default:
		return p, usagef("expected <trace_dir> [<output> <savefile>], got %d arguments", len(args))
	}
	if p.trace == "" {
		return p, usagef("empty trace path")
	}
	if len(args) == 3 {
		p.output, p.savefile = args[1], args[2]
	} else {
		p.output, p.savefile = p.trace+".vcd", p.trace+".sav"
	}
	p.alias = p.trace + ".gtkw"
	return p, nil
}

func loadTrace(ctx context.Context, format, path string) (*trace.Collection, error) {
	if format != config.FormatSchedBT {
		return traceparser.Load(ctx, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open sched.bt output")
	}
	defer f.Close()
	return schedbt.Load(f)
}

// setVerbosity raises glog's verbosity to match the verbose and diag
// options.
func setVerbosity(o *config.Options) error {
	level := 0
	switch {
	case o.Diag:
		level = 2
	case o.Verbose:
		level = 1
	}
	if cur, err := strconv.Atoi(flag.Lookup("v").Value.String()); err == nil && cur >= level {
		return nil
	}
	return flag.Set("v", strconv.Itoa(level))
}

// addLogFlags exposes glog's flags, long form only: -v is --verbose.
func addLogFlags(fs *pflag.FlagSet) {
	flag.CommandLine.VisitAll(func(f *flag.Flag) {
		if strings.HasPrefix(f.Name, "test.") {
			return
		}
		pf := pflag.PFlagFromGoFlag(f)
		pf.Shorthand = ""
		fs.AddFlag(pf)
	})
}

func startProfile(kind string) interface{ Stop() } {
	mode := profile.CPUProfile
	if kind == "mem" {
		mode = profile.MemProfile
	}
	return profile.Start(mode, profile.ProfilePath("."), profile.NoShutdownHook)
}

func writeStats(w io.Writer, format string, s *convert.Stats) error {
	if format == "yaml" {
		return s.WriteYAML(w)
	}
	return s.WriteTable(w)
}

func convertTrace(ctx context.Context, cmd *cobra.Command, o *config.Options, args []string) error {
	p, err := outputPaths(args)
	if err != nil {
		return err
	}
	co, err := o.Convert()
	if err != nil {
		return err
	}
	co.Metrics = convert.NewMetrics()
	conv, err := convert.New(co)
	if err != nil {
		return err
	}
	log.V(1).Infof("handled events: %s", strings.Join(conv.Modules(), " "))

	coll, err := loadTrace(ctx, o.Format, p.trace)
	if err != nil {
		return errors.Wrapf(err, "cannot load trace %s", p.trace)
	}
	sink, err := wave.CreateVCD(p.output)
	if err != nil {
		return err
	}
	if err := conv.Run(ctx, coll, sink); err != nil {
		if cerr := sink.Close(); cerr != nil {
			log.Errorf("closing %s: %s", p.output, cerr)
		}
		return err
	}
	if err := sink.Close(); err != nil {
		return err
	}
	if err := savefile.WriteFile(p.savefile, conv.Channels(), savefile.Options{DumpFile: p.output}); err != nil {
		return err
	}
	if err := savefile.Link(p.savefile, p.alias); err != nil {
		log.Errorf("%s", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Generated '%s'\n", p.output)

	if o.Stats != 0 {
		if err := writeStats(cmd.OutOrStdout(), o.StatsFormat, conv.Stats()); err != nil {
			return err
		}
	}
	if o.MetricsFile != "" {
		if err := co.Metrics.WriteFile(o.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "schedwave [flags] <trace_dir> [<output> <savefile>]",
		Short: "Convert a kernel trace into a waveform",
		Args: func(cmd *cobra.Command, args []string) error {
			_, err := outputPaths(args)
			return err
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := config.Load(cmd.Flags(), cfgFile)
			if err != nil {
				return usageError{err}
			}
			if err := setVerbosity(o); err != nil {
				return err
			}
			if o.Profile != "" {
				defer startProfile(o.Profile).Stop()
			}
			return convertTrace(cmd.Context(), cmd, o, args)
		},
	}
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().StringVar(&cfgFile, "config", "", "YAML file holding default flag values")
	addLogFlags(cmd.PersistentFlags())
	cmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})
	return cmd
}

// execute runs the command line args and returns the exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	log.Flush()
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, new(usageError)):
		fmt.Fprintf(stderr, "schedwave: %s\n", err)
		fmt.Fprint(stderr, cmd.UsageString())
		return exitUsage
	default:
		fmt.Fprintf(stderr, "schedwave: %s\n", err)
		return exitError
	}
}

func main() {
	// Logs go to stderr unless asked otherwise.
	flag.Set("logtostderr", "true")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

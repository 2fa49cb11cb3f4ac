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
// Package convert turns a trace into waveform channels.  A Converter
// reads its event source twice: the first pass discovers every task,
// interrupt and marker and names their channels, the second emits their
// value changes in time order.
package convert

import (
	"context"
	"fmt"
	"io"
	"time"

	log "github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/google/schedwave/symbols"
	"github.com/google/schedwave/tracedata/schedevent"
	"github.com/google/schedwave/tracedata/trace"
	"github.com/google/schedwave/wave"
)

// DefaultMaxCPU is the default number of CPUs supported.
const DefaultMaxCPU = 4

// Options configures a Converter.
type Options struct {
	// MaxCPU is the number of CPUs supported; events of other CPUs are
	// dropped.
	MaxCPU int
	// ExtendedStates selects the viewer's extended bit states.
	ExtendedStates bool
	// ShowCPUSwitch shows context switches on the CPU channels.
	ShowCPUSwitch bool
	// RebaseClock starts the waveform at the first event.
	RebaseClock bool
	// Stats selects the interrupt statistics to gather.
	Stats StatsMask
	// LoadPeriod, if positive, enables CPU load channels sampled with this
	// period.
	LoadPeriod time.Duration
	// Resolver, if set, labels the addresses of address channels.
	Resolver symbols.Resolver
	// CacheSize is the initial capacity of the address label cache.
	CacheSize int
	// OnAnomaly receives the anomalies met; LogAnomaly if nil.
	OnAnomaly AnomalyFunc
	// Metrics, if set, counts the work done.
	Metrics *Metrics
}

// DefaultOptions returns the default conversion options.
func DefaultOptions() Options {
	return Options{
		MaxCPU:         DefaultMaxCPU,
		ExtendedStates: true,
		ShowCPUSwitch:  true,
		RebaseClock:    true,
		CacheSize:      symbols.DefaultCacheSize,
	}
}

// clock turns event timestamps into waveform times.
type clock struct {
	rebase  bool
	origin  int64
	set     bool
	last    int64
	started bool
}

// rebased returns ts relative to the first timestamp seen, if rebasing.
func (k *clock) rebased(ts trace.Timestamp) int64 {
	if !k.set {
		k.set = true
		if k.rebase {
			k.origin = int64(ts)
		}
	}
	return int64(ts) - k.origin
}

// advance moves the clock to t.  It returns the time to use, whether it
// differs from the previous one, and whether t had to be clamped.
func (k *clock) advance(t int64) (now int64, changed, clamped bool) {
	if !k.started {
		k.started = true
		k.last = t
		return t, true, false
	}
	switch {
	case t == k.last:
		return t, false, false
	case t < k.last:
		k.last++
		return k.last, true, true
	}
	k.last = t
	return t, true, false
}

// Converter converts one trace.  It must not be reused.
type Converter struct {
	o        Options
	reg      *wave.Registry
	table    *Table
	tasks    *Tasks
	cpus     []*CPU
	irqNames map[int64]string
	forks    []wave.Channel
	mm       []mmChannels

	userMarkers      *markers
	kernelMarkers    *markers
	userspaceMarkers *markers

	symbols *symbols.Cache
	stats   stats
	metrics *Metrics
	clock   clock
	ran     bool
}

// New returns a Converter with every module registered.
func New(o Options) (*Converter, error) {
	if o.MaxCPU <= 0 {
		return nil, errors.Errorf("invalid CPU count %d", o.MaxCPU)
	}
	if o.OnAnomaly == nil {
		o.OnAnomaly = LogAnomaly
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
	c := &Converter{
		o:                o,
		table:            NewTable(),
		irqNames:         map[int64]string{},
		forks:            make([]wave.Channel, o.MaxCPU),
		mm:               make([]mmChannels, o.MaxCPU),
		userMarkers:      newUserMarkers(),
		kernelMarkers:    newKernelMarkers(),
		userspaceMarkers: newUserspaceMarkers(),
		stats:            stats{irq: statTable{}, softirq: statTable{}},
		metrics:          o.Metrics,
		clock:            clock{rebase: o.RebaseClock},
	}
	cache, err := symbols.NewCache(o.Resolver, o.CacheSize, func(addrs []uint64, err error) {
		c.report(Anomaly{Kind: Resolver, Msg: fmt.Sprintf("%d addresses left unresolved: %s", len(addrs), err)})
	})
	if err != nil {
		return nil, err
	}
	c.symbols = cache
	c.reg = wave.NewRegistry(wave.ExtendedStates(o.ExtendedStates), wave.WithLabeler(cache))
	c.tasks = NewTasks(c.reg)
	for i := 0; i < o.MaxCPU; i++ {
		c.cpus = append(c.cpus, newCPU(i))
	}
	if err := c.registerModules(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Converter) registerModules() error {
	modules := []struct {
		name    string
		handler Handler
	}{
		{"irq_handler_entry", c.irqHandlerEntry},
		{"irq_handler_exit", c.irqHandlerExit},
		{"softirq_entry", c.softirqEntry},
		{"softirq_exit", c.softirqExit},
		{"softirq_raise", c.softirqRaise},
		{"sched_switch", c.schedSwitch},
		{"sched_wakeup", c.schedWakeup},
		{"sched_wakeup_new", c.schedWakeup},
		{"sched_process_wait", c.schedProcessWait},
		{"sched_process_free", c.schedProcessFree},
		{"sched_process_fork", c.schedProcessFork},
		{"sched_process_exec", c.schedProcessExec},
		{"sched_migrate_task", c.schedMigrateTask},
		{"sched_stat_runtime", c.schedStatRuntime},
		{"lttng_statedump_process_state", c.statedumpProcessState},
		{"signal_generate", c.signalGenerate},
		{"signal_deliver", c.signalDeliver},
		{"sys_*", c.syscallEntry(len("sys_"))},
		{"syscall_entry_*", c.syscallEntry(len("syscall_entry_"))},
		{"compat_syscall_entry_*", c.syscallEntry(len("compat_syscall_entry_"))},
		{"sys_enter_*", c.syscallEntry(len("sys_enter_"))},
		{"exit_syscall", c.syscallExit},
		{"syscall_exit_*", c.syscallExit},
		{"compat_syscall_exit_*", c.syscallExit},
		{"sys_exit_*", c.syscallExit},
		{"user:event_start", c.markerStart(c.userMarkers)},
		{"user:event_stop", c.markerStop(c.userMarkers)},
		{"user:message", c.markerMessage(c.userMarkers)},
		{"user_kevent_start", c.markerStart(c.kernelMarkers)},
		{"user_kevent_stop", c.markerStop(c.kernelMarkers)},
		{"user_kmessage", c.markerMessage(c.kernelMarkers)},
		{"userspace:event_start", c.markerStart(c.userspaceMarkers)},
		{"userspace:event_stop", c.markerStop(c.userspaceMarkers)},
		{"userspace:message", c.markerMessage(c.userspaceMarkers)},
		{"kmalloc", c.kmalloc},
		{"kmem_kmalloc", c.kmalloc},
		{"kfree", c.kfree},
		{"kmem_kfree", c.kfree},
	}
	for _, m := range modules {
		if err := c.table.Register(m.name, m.handler); err != nil {
			return err
		}
	}
	return nil
}

// Modules returns the names and patterns of the handled events.
func (c *Converter) Modules() []string {
	return c.table.Names()
}

// Channels returns every channel created, in discovery order.
func (c *Converter) Channels() []*wave.Channel {
	return c.reg.Channels()
}

// Tasks returns the tasks seen.
func (c *Converter) Tasks() *Tasks {
	return c.tasks
}

// CPU returns the state of CPU i.
func (c *Converter) CPU(i int) *CPU {
	return c.cpus[i]
}

// Metrics returns the counters of the conversion.
func (c *Converter) Metrics() *Metrics {
	return c.metrics
}

// Stats returns the interrupt statistics gathered.
func (c *Converter) Stats() *Stats {
	return &Stats{
		IRQ:     c.stats.irq.list(),
		Softirq: c.stats.softirq.list(),
	}
}

func (c *Converter) report(a Anomaly) {
	c.metrics.anomaly(a.Kind)
	c.o.OnAnomaly(a)
}

func (c *Converter) anomaly(ev *Event, kind AnomalyKind, format string, args ...interface{}) {
	c.report(Anomaly{Kind: kind, Time: ev.Time, CPU: int64(ev.CPU), Msg: fmt.Sprintf(format, args...)})
}

// Run converts the events of src into value changes of sink.  It does not
// close sink.
func (c *Converter) Run(ctx context.Context, src trace.Source, sink wave.Sink) error {
	if c.ran {
		return errors.New("converter already ran")
	}
	c.ran = true
	log.V(1).Infof("pass 1: discovering channels")
	if err := c.pass(ctx, src, sink, 1); err != nil {
		return err
	}
	log.V(1).Infof("resolving %d addresses", c.symbols.Pending())
	if err := c.symbols.Flush(ctx); err != nil {
		return fatal("resolving addresses", err)
	}
	if err := c.reg.FlushSymbols(sink); err != nil {
		return fatal("declaring channels", err)
	}
	c.metrics.channels.Set(float64(len(c.reg.Channels())))
	c.metrics.tasks.Set(float64(c.tasks.Len()))
	if err := src.Rewind(); err != nil {
		return fatal("rewinding trace", err)
	}
	log.V(1).Infof("pass 2: emitting %d channels", len(c.reg.Channels()))
	return c.pass(ctx, src, sink, 2)
}

func (c *Converter) pass(ctx context.Context, src trace.Source, sink wave.Sink, pass int) error {
	period := c.o.LoadPeriod.Nanoseconds()
	for {
		if err := ctx.Err(); err != nil {
			return fatal("converting", err)
		}
		tev, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fatal("reading trace", err)
		}
		now := c.clock.rebased(tev.Timestamp)
		h, ok := c.table.Find(tev.Name)
		if !ok {
			c.metrics.skip("unhandled")
			continue
		}
		if tev.CPU < 0 || tev.CPU >= int64(c.o.MaxCPU) {
			if pass == 1 {
				c.report(Anomaly{Kind: CPURange, Time: now, CPU: tev.CPU,
					Msg: fmt.Sprintf("%s: CPU %d out of range [0, %d)", tev.Name, tev.CPU, c.o.MaxCPU)})
			}
			c.metrics.skip("cpu_range")
			continue
		}
		ev := &Event{Name: tev.Name, Pass: pass, Time: now, CPU: int(tev.CPU), ev: tev}
		if pass == 2 {
			last := c.clock.last
			t, changed, clamped := c.clock.advance(now)
			if clamped {
				c.anomaly(ev, Clock, "negative time offset @%d: %d", last, now-last)
			}
			ev.Time = t
			if changed {
				if err := sink.SetTime(t); err != nil {
					return fatal("writing waveform", err)
				}
			}
		}
		if log.V(2) {
			log.Infof("pass %d @%.9f s: %s", pass, ev.Clock(), schedevent.String(tev))
		}
		if err := h(ev); err != nil {
			return fatal(fmt.Sprintf("event %d (%s)", tev.Index, tev.Name), err)
		}
		if err := ev.Err(); err != nil {
			return fatal(fmt.Sprintf("event %d (%s)", tev.Index, tev.Name), err)
		}
		if pass == 1 && c.symbols.Pending() >= symbols.BatchSize {
			if err := c.symbols.Flush(ctx); err != nil {
				return fatal("resolving addresses", err)
			}
		}
		if pass == 2 && period > 0 {
			for _, cpu := range c.cpus {
				if cpu.load.Named() {
					cpu.sampleLoad(c.reg, ev.Time, period)
				}
			}
		}
		if err := c.reg.Err(); err != nil {
			return fatal(fmt.Sprintf("event %d (%s)", tev.Index, tev.Name), err)
		}
		c.metrics.dispatched(pass)
	}
}

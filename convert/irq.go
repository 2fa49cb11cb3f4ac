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
package convert

import (
	"fmt"
	"strings"

	log "github.com/golang/glog"

	"github.com/google/schedwave/wave"
)

// MaxIRQs bounds interrupt vectors and the interrupt nesting depth.
const MaxIRQs = 1024

// Interrupt and softirq channel states.
const (
	irqIdle      = wave.Idle
	irqRunning   = wave.S0
	irqPreempted = wave.S2

	softirqIdle    = wave.Idle
	softirqRunning = wave.S0
	softirqRaised  = wave.S2
)

var softirqNames = []string{
	"HI_SOFTIRQ",
	"TIMER_SOFTIRQ",
	"NET_TX_SOFTIRQ",
	"NET_RX_SOFTIRQ",
	"BLOCK_SOFTIRQ",
	"TASKLET_SOFTIRQ",
	"SCHED_SOFTIRQ",
	"HRTIMER_SOFTIRQ",
	"RCU_SOFTIRQ",
}

// SoftirqName returns the display name of a softirq vector.
func SoftirqName(vec int64) string {
	if vec >= 0 && vec < int64(len(softirqNames)) {
		return softirqNames[vec]
	}
	return fmt.Sprintf("softirq %d", vec)
}

type irqFrame struct {
	vec   int
	start int64
}

// irqStack is the stack of the interrupts a CPU is servicing, with the
// channel of each vector seen on the CPU.
type irqStack struct {
	frames []irqFrame
	chans  map[int]*wave.Channel
}

func (s *irqStack) channel(vec int) *wave.Channel {
	if s.chans == nil {
		s.chans = map[int]*wave.Channel{}
	}
	ch, ok := s.chans[vec]
	if !ok {
		ch = &wave.Channel{}
		s.chans[vec] = ch
	}
	return ch
}

func (s *irqStack) top() (irqFrame, bool) {
	if len(s.frames) == 0 {
		return irqFrame{}, false
	}
	return s.frames[len(s.frames)-1], true
}

// Depth returns the interrupt nesting depth.
func (s *irqStack) Depth() int {
	return len(s.frames)
}

type softirqPhase int

const (
	softirqPhaseIdle softirqPhase = iota
	softirqPhaseRaised
	softirqPhaseRunning
)

type softirqState struct {
	phase softirqPhase
	vec   int64
	start int64
	ch    wave.Channel
	info  wave.Channel
}

// irqName returns the label of an interrupt vector.
func irqName(name string, vec int64) string {
	return strings.ReplaceAll(fmt.Sprintf("%s (%d)", name, vec), ".", "_")
}

func (c *Converter) irqHandlerEntry(ev *Event) error {
	vec := ev.Int("irq")
	name := ev.Str("name")
	if err := ev.Err(); err != nil {
		return err
	}
	if vec < 0 || vec >= MaxIRQs {
		if ev.Pass == 1 {
			c.anomaly(ev, IRQVector, "invalid IRQ vector %d", vec)
		}
		return nil
	}
	cpu := c.cpus[ev.CPU]
	if ev.Pass == 1 {
		label := irqName(name, vec)
		if old, ok := c.irqNames[vec]; !ok || old != label {
			log.V(1).Infof("IRQ %d: %q -> %q", vec, old, label)
			c.irqNames[vec] = label
		}
		cpu.initChannels(c.reg, c.o.LoadPeriod > 0)
		c.reg.Init(cpu.irqs.channel(int(vec)), wave.GroupIRQ, 1.0+float64(vec), wave.Bits,
			"%s/%d", c.irqNames[vec], ev.CPU)
		return nil
	}
	s := &cpu.irqs
	if len(s.frames) >= MaxIRQs {
		c.anomaly(ev, IRQOverflow, "IRQ nesting level is too high (%d)", len(s.frames))
		return nil
	}
	top, nested := s.top()
	if nested && top.vec == int(vec) {
		c.anomaly(ev, IRQReentry, "IRQ %d reentering at level %d", vec, len(s.frames))
		return nil
	}
	if nested {
		if log.V(2) {
			log.Infof("irq_handler @%d ns: nesting irq %s -> %s", ev.Time, c.irqNames[int64(top.vec)], c.irqNames[vec])
		}
		c.reg.Emit(s.channel(top.vec), irqPreempted)
	}
	c.reg.Emit(s.channel(int(vec)), irqRunning)
	s.frames = append(s.frames, irqFrame{vec: int(vec), start: ev.Time})
	cpu.Preempt(c.reg, ev.Time)
	return nil
}

func (c *Converter) irqHandlerExit(ev *Event) error {
	if ev.Pass == 1 {
		return nil
	}
	cpu := c.cpus[ev.CPU]
	s := &cpu.irqs
	f, ok := s.top()
	if !ok {
		return nil
	}
	s.frames = s.frames[:len(s.frames)-1]
	c.reg.Emit(s.channel(f.vec), irqIdle)
	if top, ok := s.top(); ok {
		c.reg.Emit(s.channel(top.vec), irqRunning)
	}
	cpu.Unpreempt(c.reg, ev.Time)
	if c.o.Stats&StatIRQ != 0 {
		c.stats.irq.add(ev.CPU, f.vec, c.irqNames[int64(f.vec)], ev.Time-f.start, ev.Time)
	}
	return nil
}

func (c *Converter) initSoftirq(cpu *CPU) {
	cpu.initChannels(c.reg, c.o.LoadPeriod > 0)
	c.reg.Init(&cpu.softirq.ch, wave.GroupIRQ, 100.0+0.02*float64(cpu.ID), wave.Bits, "softirq/%d", cpu.ID)
	c.reg.Init(&cpu.softirq.info, wave.GroupIRQ, 100.01+0.02*float64(cpu.ID), wave.String, "softirq/%d (info)", cpu.ID)
}

func (c *Converter) softirqEntry(ev *Event) error {
	vec := ev.Int("vec")
	if err := ev.Err(); err != nil {
		return err
	}
	cpu := c.cpus[ev.CPU]
	if ev.Pass == 1 {
		c.initSoftirq(cpu)
		return nil
	}
	s := &cpu.softirq
	c.reg.Emit(&s.ch, softirqRunning)
	cpu.Preempt(c.reg, ev.Time)
	c.reg.Emit(&s.info, wave.Text(SoftirqName(vec)))
	s.phase = softirqPhaseRunning
	s.vec = vec
	s.start = ev.Time
	return nil
}

func (c *Converter) softirqExit(ev *Event) error {
	cpu := c.cpus[ev.CPU]
	if ev.Pass == 1 {
		c.initSoftirq(cpu)
		return nil
	}
	s := &cpu.softirq
	running := s.phase == softirqPhaseRunning
	// An exit without a matching entry leaves a raise visible.
	if s.phase == softirqPhaseRaised {
		c.reg.Emit(&s.ch, softirqRaised)
	} else {
		c.reg.Emit(&s.ch, softirqIdle)
	}
	s.phase = softirqPhaseIdle
	cpu.Unpreempt(c.reg, ev.Time)
	if running && c.o.Stats&StatSoftirq != 0 {
		c.stats.softirq.add(ev.CPU, int(s.vec), SoftirqName(s.vec), ev.Time-s.start, ev.Time)
	}
	return nil
}

func (c *Converter) softirqRaise(ev *Event) error {
	cpu := c.cpus[ev.CPU]
	if ev.Pass == 1 {
		c.initSoftirq(cpu)
		return nil
	}
	s := &cpu.softirq
	// Raises are only shown between two softirqs.
	if s.phase == softirqPhaseIdle {
		c.reg.Emit(&s.ch, softirqRaised)
		s.phase = softirqPhaseRaised
	}
	return nil
}

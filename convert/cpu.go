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
	"github.com/google/schedwave/wave"
)

// CPU channel states.
const (
	cpuIdle      = wave.Idle
	cpuRunning   = wave.S0
	cpuPreempted = wave.S2
)

// CPU tracks whether a processor runs a task, is idle, or services
// interrupts, and accounts the time it is idle.
type CPU struct {
	ID      int
	running bool
	preempt int
	// idleSince is the start of the current idle period, or -1.
	idleSince int64
	idle      int64
	current   *Task

	ch   wave.Channel
	load wave.Channel
	// lastSample is the time of the last load sample, or -1.
	lastSample int64

	irqs    irqStack
	softirq softirqState
}

func newCPU(id int) *CPU {
	return &CPU{ID: id, idleSince: -1, lastSample: -1}
}

// Running returns true if a task other than the idle thread runs.
func (c *CPU) Running() bool {
	return c.running
}

// Preempted returns the preemption nesting depth.
func (c *CPU) Preempted() int {
	return c.preempt
}

// Current returns the task last switched in, or nil.
func (c *CPU) Current() *Task {
	return c.current
}

// initChannels names the channels of the CPU.
func (c *CPU) initChannels(reg *wave.Registry, loadSampling bool) {
	reg.Init(&c.ch, wave.GroupProcess, 0.001*float64(c.ID), wave.Bits, "cpu/%d", c.ID)
	if loadSampling {
		reg.Init(&c.load, wave.GroupGlobal, 2+0.1*float64(c.ID), wave.Analog, "cpu load/%d", c.ID)
	}
}

// show emits s on the CPU channel at now and accounts idle time.
func (c *CPU) show(reg *wave.Registry, now int64, s wave.State) {
	if s != cpuIdle {
		if c.idleSince >= 0 {
			c.idle += now - c.idleSince
			c.idleSince = -1
		}
	} else if c.idleSince < 0 {
		c.idleSince = now
	}
	reg.Emit(&c.ch, s)
}

// SetIdle records that the idle thread was switched in.
func (c *CPU) SetIdle(reg *wave.Registry, now int64) {
	c.running = false
	if c.preempt == 0 {
		c.show(reg, now, cpuIdle)
	}
}

// SetRunning records that a task was switched in.
func (c *CPU) SetRunning(reg *wave.Registry, now int64) {
	c.running = true
	if c.preempt == 0 {
		c.show(reg, now, cpuRunning)
	}
}

// Preempt records the entry of an interrupt or softirq.  Only the
// outermost one changes the CPU channel.
func (c *CPU) Preempt(reg *wave.Registry, now int64) {
	c.preempt++
	if c.preempt == 1 {
		c.show(reg, now, cpuPreempted)
	}
}

// Unpreempt records the exit of an interrupt or softirq.  Leaving the
// outermost one restores the running or idle state.
func (c *CPU) Unpreempt(reg *wave.Registry, now int64) {
	if c.preempt <= 0 {
		return
	}
	c.preempt--
	if c.preempt == 0 {
		if c.running {
			c.show(reg, now, cpuRunning)
		} else {
			c.show(reg, now, cpuIdle)
		}
	}
}

// ResetAndReport returns the time, in ns, the CPU was idle since the last
// report, and restarts the accounting at now.
func (c *CPU) ResetAndReport(now int64) int64 {
	if c.idleSince >= 0 {
		c.idle += now - c.idleSince
		c.idleSince = now
	}
	idle := c.idle
	c.idle = 0
	return idle
}

// sampleLoad emits the non-idle ratio of the CPU once period has elapsed since
// the previous sample.
func (c *CPU) sampleLoad(reg *wave.Registry, now, period int64) {
	if c.lastSample < 0 {
		c.lastSample = now
		c.ResetAndReport(now)
		return
	}
	elapsed := now - c.lastSample
	if elapsed < period {
		return
	}
	idle := c.ResetAndReport(now)
	c.lastSample = now
	reg.Emit(&c.load, wave.Float(1-float64(idle)/float64(elapsed)))
}

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

// prev_state bits of a task that exited.
const taskDeadMask = 0x70

// Process status values of lttng_statedump_process_state.
const (
	statedumpWaitFork = 1
	statedumpWaitCPU  = 2
	statedumpWait     = 5
	statedumpRun      = 6

	statedumpUserMode = 0
)

func (c *Converter) schedSwitch(ev *Event) error {
	prevTid := ev.Int("prev_tid", "prev_pid")
	nextTid := ev.Int("next_tid", "next_pid")
	if ev.Pass == 1 {
		prevComm := ev.Str("prev_comm")
		nextComm := ev.Str("next_comm")
		if err := ev.Err(); err != nil {
			return err
		}
		c.tasks.FindOrAdd(prevComm, prevTid)
		c.tasks.FindOrAdd(nextComm, nextTid)
		if c.o.ShowCPUSwitch {
			c.cpus[ev.CPU].initChannels(c.reg, c.o.LoadPeriod > 0)
		}
		return nil
	}
	prevState := ev.Int("prev_state")
	if err := ev.Err(); err != nil {
		return err
	}
	prev := c.tasks.Find(prevTid)
	if prevState&taskDeadMask == 0 {
		c.reg.Emit(&prev.State, StateIdle)
	} else {
		c.reg.Emit(&prev.State, StateDead)
	}
	next := c.tasks.Find(nextTid)
	c.reg.Emit(&next.State, next.Mode)
	cpu := c.cpus[ev.CPU]
	cpu.current = next
	if c.o.ShowCPUSwitch {
		if nextTid == 0 {
			cpu.SetIdle(c.reg, ev.Time)
		} else {
			cpu.SetRunning(c.reg, ev.Time)
		}
	}
	return nil
}

// taskEvent handles the events naming a task by comm and tid, shown in
// state s in pass 2.
func (c *Converter) taskEvent(ev *Event, s wave.State) error {
	tid := ev.Int("tid", "pid")
	if err := ev.Err(); err != nil {
		return err
	}
	if ev.Pass == 1 {
		comm := ev.Str("comm")
		if err := ev.Err(); err != nil {
			return err
		}
		c.tasks.FindOrAdd(comm, tid)
		return nil
	}
	t := c.tasks.Find(tid)
	c.reg.Emit(&t.State, s)
	return nil
}

func (c *Converter) schedWakeup(ev *Event) error {
	return c.taskEvent(ev, StateWakeup)
}

func (c *Converter) schedProcessWait(ev *Event) error {
	// Some kernels log waits with tid 0.
	if ev.Int("tid", "pid") == 0 {
		return ev.Err()
	}
	return c.taskEvent(ev, StateIdle)
}

// schedProcessFree marks the end of a task.  sched_process_exit is logged
// well before a task is gone.
func (c *Converter) schedProcessFree(ev *Event) error {
	return c.taskEvent(ev, StateDead)
}

func (c *Converter) schedProcessFork(ev *Event) error {
	ch := &c.forks[ev.CPU]
	if ev.Pass == 1 {
		c.reg.Init(ch, wave.GroupGlobal, 1.0+0.1*float64(ev.CPU), wave.String, "fork/%d", ev.CPU)
		return nil
	}
	parentComm := ev.Str("parent_comm")
	parent := ev.Int("parent_tid", "parent_pid")
	child := ev.Int("child_tid", "child_pid")
	if err := ev.Err(); err != nil {
		return err
	}
	c.reg.Emit(ch, wave.Textf("[%d] %s -> [%d]", parent, parentComm, child))
	return nil
}

// schedProcessExec learns the thread group of a task: after exec its pid
// is its tgid.
func (c *Converter) schedProcessExec(ev *Event) error {
	if ev.Pass != 1 {
		return nil
	}
	pid := ev.Int("pid")
	if err := ev.Err(); err != nil {
		return err
	}
	c.tasks.SetGroup(c.tasks.Find(pid), pid)
	return nil
}

func (c *Converter) schedMigrateTask(ev *Event) error {
	tid := ev.Int("tid", "pid")
	if ev.Pass == 1 {
		comm := ev.Str("comm")
		if err := ev.Err(); err != nil {
			return err
		}
		c.tasks.FindOrAdd(comm, tid)
		return nil
	}
	orig := ev.Int("orig_cpu")
	dest := ev.Int("dest_cpu")
	if err := ev.Err(); err != nil {
		return err
	}
	t := c.tasks.Find(tid)
	c.reg.Emit(&t.Info, wave.Textf("cpu%d->cpu%d", orig, dest))
	return nil
}

func (c *Converter) schedStatRuntime(ev *Event) error {
	if ev.Pass != 1 {
		return nil
	}
	comm := ev.Str("comm")
	tid := ev.Int("tid", "pid")
	if err := ev.Err(); err != nil {
		return err
	}
	c.tasks.FindOrAdd(comm, tid)
	return nil
}

func (c *Converter) statedumpProcessState(ev *Event) error {
	tid := ev.Int("tid")
	if ev.Pass == 1 {
		name := ev.Str("name")
		pid := ev.Int("pid")
		if err := ev.Err(); err != nil {
			return err
		}
		c.tasks.SetGroup(c.tasks.FindOrAdd(name, tid), pid)
		return nil
	}
	mode := ev.Int("mode")
	status := ev.Int("status")
	if err := ev.Err(); err != nil {
		return err
	}
	t := c.tasks.Find(tid)
	var s wave.State
	switch status {
	case statedumpWaitFork, statedumpWaitCPU, statedumpWait:
		// Tasks that never ran yet are left alone.
		if !t.State.Emitted() {
			return nil
		}
		s = StateIdle
	case statedumpRun:
		t.Mode = ModeKernel
		if mode == statedumpUserMode {
			t.Mode = ModeUser
		}
		s = t.Mode
	default:
		if !t.State.Emitted() {
			return nil
		}
		s = StateDead
	}
	c.reg.Emit(&t.State, s)
	return nil
}

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

	"github.com/google/schedwave/wave"
)

// Task states, as shown on task state channels.
const (
	ModeUser    = wave.One
	ModeKernel  = wave.S1
	StateIdle   = wave.Idle
	StateWakeup = wave.S2
	StateDead   = wave.Zero
)

const (
	taskStateName = "proc.state.[%d-%d] %s"
	taskInfoName  = "proc.info.[%d-%d] %s (info)"
	unknownTask   = "????"
)

// Names that never replace a known task name.
var skipRename = map[string]bool{
	unknownTask: true,
	"<...>":     true,
}

// Task is a thread and its two channels.
type Task struct {
	ID    int64
	Group int64
	Name  string
	// Mode is the state the task is shown in while running: ModeUser or
	// ModeKernel.
	Mode  wave.State
	State wave.Channel
	Info  wave.Channel
}

// Tasks indexes tasks by id.  Lookups never fail: unknown ids get a
// placeholder task, named later.
type Tasks struct {
	reg  *wave.Registry
	byID map[int64]*Task
}

// NewTasks returns an empty Tasks creating its channels in reg.
func NewTasks(reg *wave.Registry) *Tasks {
	return &Tasks{reg: reg, byID: map[int64]*Task{}}
}

// Len returns the number of known tasks.
func (ts *Tasks) Len() int {
	return len(ts.byID)
}

// DisplayName returns the name a task called name is shown as.
func DisplayName(name string) string {
	if name == "swapper" {
		return "idle thread"
	}
	var cpu int
	if n, err := fmt.Sscanf(name, "swapper/%d", &cpu); n == 1 && err == nil {
		return fmt.Sprintf("idle/%d thread", cpu)
	}
	return strings.ReplaceAll(name, ".", "_")
}

// FindOrAdd returns the task with the given id, creating it if needed.  A
// non-empty name names a new task, or renames a known one unless it is a
// placeholder.
func (ts *Tasks) FindOrAdd(name string, id int64) *Task {
	placeholder := skipRename[name]
	if name != "" {
		name = DisplayName(name)
	}
	t, ok := ts.byID[id]
	if !ok {
		if name == "" {
			name = unknownTask
		}
		t = &Task{ID: id, Name: name, Mode: ModeKernel}
		ts.reg.Init(&t.State, wave.GroupProcess, 1.0+float64(t.Group<<16)+float64(id), wave.Bits,
			taskStateName, t.Group, t.ID, t.Name)
		ts.reg.Init(&t.Info, wave.GroupNone, 1.1+float64(t.Group<<16)+float64(id), wave.String,
			taskInfoName, t.Group, t.ID, t.Name)
		ts.byID[id] = t
		return t
	}
	if name != "" && !placeholder && name != t.Name {
		t.Name = name
		ts.refresh(t)
	}
	return t
}

// Find returns the task with the given id, creating a placeholder if needed.
func (ts *Tasks) Find(id int64) *Task {
	return ts.FindOrAdd("", id)
}

// SetGroup records the thread group of t.
func (ts *Tasks) SetGroup(t *Task, tgid int64) {
	if tgid == 0 || tgid == t.Group {
		return
	}
	t.Group = tgid
	ts.refresh(t)
}

func (ts *Tasks) refresh(t *Task) {
	ts.reg.Refresh(&t.State, taskStateName, t.Group, t.ID, t.Name)
	ts.reg.Refresh(&t.Info, taskInfoName, t.Group, t.ID, t.Name)
}

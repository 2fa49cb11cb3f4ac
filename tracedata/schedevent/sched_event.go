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
// Package schedevent provides utilities for working with scheduling
// trace.Events.
package schedevent

import (
	"fmt"
	"strconv"

	"github.com/google/schedwave/tracedata/trace"
)

// number returns the first present numeric field among names, or -1.
func number(ev *trace.Event, names ...string) int64 {
	for _, name := range names {
		if f, err := ev.Field(name); err == nil {
			if v, err := f.Int64(); err == nil {
				return v
			}
		}
	}
	return -1
}

func text(ev *trace.Event, name string) string {
	if f, err := ev.Field(name); err == nil {
		if v, err := f.Str(); err == nil {
			return v
		}
	}
	return "<unknown>"
}

// String returns a human-readable formatted sched event if the provided
// trace.Event is a supported scheduling event, and the raw printed event
// otherwise.  Both ftrace (pid) and LTTng (tid) field names are understood.
func String(ev *trace.Event) string {
	prefix := fmt.Sprintf("[%3d] %-22s %-10s ", ev.CPU, strconv.Itoa(int(ev.Timestamp)), ev.Name)
	switch ev.Name {
	case "sched_switch":
		return fmt.Sprintf("%s PID %d ('%s', task state %d) to PID %d ('%s') on CPU %3d",
			prefix,
			number(ev, "prev_tid", "prev_pid"), text(ev, "prev_comm"), number(ev, "prev_state"),
			number(ev, "next_tid", "next_pid"), text(ev, "next_comm"),
			ev.CPU)
	case "sched_wakeup", "sched_wakeup_new":
		return fmt.Sprintf("%s PID %d ('%s') on CPU %3d",
			prefix,
			number(ev, "tid", "pid"), text(ev, "comm"),
			number(ev, "target_cpu"))
	case "sched_migrate_task":
		return fmt.Sprintf("%s PID %d ('%s') from CPU %3d to CPU %3d",
			prefix,
			number(ev, "tid", "pid"), text(ev, "comm"),
			number(ev, "orig_cpu"), number(ev, "dest_cpu"))
	case "sched_process_wait", "sched_process_free":
		return fmt.Sprintf("%s PID %d ('%s') on CPU %3d",
			prefix,
			number(ev, "tid", "pid"), text(ev, "comm"),
			ev.CPU)
	default:
		return fmt.Sprintf("NON-SCHED %s", ev.String())
	}
}

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

// MaxUserEvents is the number of marker slots of each marker family.
const MaxUserEvents = 32

// markers is a family of numbered start/stop markers plus a message
// channel.
type markers struct {
	group    wave.Group
	slotName string
	// Slot n sits at slotBase + 0.1*n.
	slotBase float64
	msgName  string
	msgPos   float64
	slots    [MaxUserEvents]wave.Channel
	msg      wave.Channel
}

func newUserMarkers() *markers {
	return &markers{
		group:    wave.GroupUser,
		slotName: "user event %d",
		slotBase: 1,
		msgName:  "user event",
		msgPos:   1,
	}
}

func newKernelMarkers() *markers {
	return &markers{
		group:    wave.GroupUser,
		slotName: "kernel event %d",
		slotBase: 0,
		msgName:  "kernel event",
		msgPos:   0,
	}
}

func newUserspaceMarkers() *markers {
	return &markers{
		group:    wave.GroupProcess,
		slotName: "userspace event %d",
		slotBase: 0.1,
		msgName:  "userspace event",
		msgPos:   0.1,
	}
}

// slot returns the marker event's slot number.  Numbers outside the slot
// table are ignored.
func (m *markers) slot(ev *Event, field string) (int, bool) {
	n := ev.Int(field)
	if ev.Err() != nil || n < 0 || n >= MaxUserEvents {
		return 0, false
	}
	return int(n), true
}

func (c *Converter) markerEdge(m *markers, field string, s wave.State) Handler {
	return func(ev *Event) error {
		n, ok := m.slot(ev, field)
		if !ok {
			return ev.Err()
		}
		ch := &m.slots[n]
		if ev.Pass == 1 {
			c.reg.Init(ch, m.group, m.slotBase+0.1*float64(n), wave.Bits, m.slotName, n)
			return nil
		}
		c.reg.Emit(ch, s)
		return nil
	}
}

func (c *Converter) markerStart(m *markers) Handler {
	return c.markerEdge(m, "event_start", wave.S0)
}

func (c *Converter) markerStop(m *markers) Handler {
	return c.markerEdge(m, "event_stop", wave.Idle)
}

func (c *Converter) markerMessage(m *markers) Handler {
	return func(ev *Event) error {
		msg := ev.Str("message")
		if err := ev.Err(); err != nil {
			return err
		}
		if ev.Pass == 1 {
			c.reg.Init(&m.msg, m.group, m.msgPos, wave.String, m.msgName)
			return nil
		}
		c.reg.Emit(&m.msg, wave.Text(msg))
		return nil
	}
}

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

	"github.com/google/schedwave/wave"
)

var signalNames = map[int64]string{
	1:  "HUP",
	2:  "INT",
	3:  "QUIT",
	4:  "ILL",
	5:  "TRAP",
	6:  "ABRT",
	7:  "BUS",
	8:  "FPE",
	9:  "KILL",
	10: "USR1",
	11: "SEGV",
	12: "USR2",
	13: "PIPE",
	14: "ALRM",
	15: "TERM",
	17: "CHLD",
	18: "CONT",
	19: "STOP",
	20: "TSTP",
}

// SignalLabel returns the label of signal sig, e.g. "SIGKILL(9)".
func SignalLabel(sig int64) string {
	name, ok := signalNames[sig]
	if !ok {
		name = "NAL"
	}
	return fmt.Sprintf("SIG%s(%d)", name, sig)
}

func (c *Converter) signalGenerate(ev *Event) error {
	pid := ev.Int("pid")
	if ev.Pass == 1 {
		comm := ev.Str("comm")
		if err := ev.Err(); err != nil {
			return err
		}
		c.tasks.FindOrAdd(comm, pid)
		return nil
	}
	sig := ev.Int("sig")
	if err := ev.Err(); err != nil {
		return err
	}
	t := c.tasks.Find(pid)
	c.reg.Emit(&t.Info, wave.Text(SignalLabel(sig)))
	return nil
}

func (c *Converter) signalDeliver(ev *Event) error {
	if ev.Pass != 2 {
		return nil
	}
	sig := ev.Int("sig")
	if err := ev.Err(); err != nil {
		return err
	}
	if t := c.cpus[ev.CPU].current; t != nil {
		c.reg.Emit(&t.Info, wave.Text(SignalLabel(sig)))
	}
	return nil
}

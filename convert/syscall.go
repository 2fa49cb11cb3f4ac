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

	"github.com/pkg/errors"

	"github.com/google/schedwave/tracedata/trace"
	"github.com/google/schedwave/wave"
)

const (
	// maxArgsLen bounds the rendering of syscall arguments.
	maxArgsLen = 80
	// maxInfoLen bounds the syscall labels of task info channels.
	maxInfoLen = 79
	// Numbers at least this large are shown in hex.
	hexThreshold = 1000000
)

// formatArg renders a syscall argument.
func formatArg(f trace.Field) (string, error) {
	switch f.Type {
	case trace.Signed:
		if f.Int >= hexThreshold || f.Int <= -hexThreshold {
			return fmt.Sprintf("%s=0x%08x", f.Name, uint64(f.Int)), nil
		}
		return fmt.Sprintf("%s=%d", f.Name, f.Int), nil
	case trace.Unsigned:
		if f.Uint >= hexThreshold {
			return fmt.Sprintf("%s=0x%08x", f.Name, f.Uint), nil
		}
		return fmt.Sprintf("%s=%d", f.Name, f.Uint), nil
	case trace.String, trace.CharArray:
		return fmt.Sprintf(`%s="%s"`, f.Name, f.Text), nil
	default:
		return "", errors.Wrapf(trace.ErrUnsupportedField, "field %q", f.Name)
	}
}

// formatArgs renders syscall arguments, dropping what does not fit in
// maxArgsLen.
func formatArgs(fields []trace.Field) (string, error) {
	var buf strings.Builder
	for _, f := range fields {
		arg, err := formatArg(f)
		if err != nil {
			return "", err
		}
		room := maxArgsLen - buf.Len()
		if room <= 3 {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteString(", ")
			room -= 2
		}
		if len(arg) > room-1 {
			arg = arg[:room-1]
		}
		buf.WriteString(arg)
	}
	return buf.String(), nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// syscallEntry returns the handler of the syscall entry events whose names
// are the syscall name behind a prefix of the given length.
func (c *Converter) syscallEntry(prefixLen int) Handler {
	return func(ev *Event) error {
		if ev.Pass != 2 {
			return nil
		}
		var fields []trace.Field
		for _, f := range ev.Args() {
			if f.Name != "__syscall_nr" {
				fields = append(fields, f)
			}
		}
		args, err := formatArgs(fields)
		if err != nil {
			ev.fail(err)
			return ev.Err()
		}
		t := c.cpus[ev.CPU].current
		if t == nil {
			return nil
		}
		name := ""
		if prefixLen < len(ev.Name) {
			name = ev.Name[prefixLen:]
		}
		c.reg.Emit(&t.Info, wave.Text(truncate(fmt.Sprintf("%d: %s(%s)", ev.CPU, name, args), maxInfoLen)))
		t.Mode = ModeKernel
		c.reg.Emit(&t.State, t.Mode)
		return nil
	}
}

// syscallExit handles the syscall exit events.  Their ret field holds the
// return value, or the syscall id on unpatched LTTng kernels.
func (c *Converter) syscallExit(ev *Event) error {
	if ev.Pass != 2 {
		return nil
	}
	t := c.cpus[ev.CPU].current
	if t == nil {
		return nil
	}
	ret := ev.Int("ret")
	if err := ev.Err(); err != nil {
		return err
	}
	c.reg.Emit(&t.Info, wave.Text(truncate(fmt.Sprintf("%d: ret=%d", ev.CPU, int32(ret)), maxInfoLen)))
	t.Mode = ModeUser
	c.reg.Emit(&t.State, t.Mode)
	return nil
}

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
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedwave/tracedata/trace"
)

// Event is the view of a trace event handed to the handlers.  Field
// accessors record the first error, reported by Err, and return zero
// values afterwards.
type Event struct {
	// Name is the name of the source event.
	Name string
	// Pass is 1 while channels are discovered, 2 while values are emitted.
	Pass int
	// Time is the event time in ns, rebased and clamped to be
	// non-decreasing in pass 2.
	Time int64
	CPU  int
	ev   *trace.Event
	err  error
}

// Clock returns the event time in seconds.
func (e *Event) Clock() float64 {
	return float64(e.Time) / 1e9
}

// Err returns the first field access error.
func (e *Event) Err() error {
	return e.err
}

func (e *Event) field(names []string) *trace.Field {
	if e.err != nil {
		return nil
	}
	for _, name := range names {
		if f, err := e.ev.Field(name); err == nil {
			return f
		}
	}
	e.err = status.Errorf(codes.NotFound, "event %s has none of the fields %s", e.ev.Name, strings.Join(names, ", "))
	return nil
}

// Int returns the first present field among names as a signed integer.
// The names are alternative spellings of the same field.
func (e *Event) Int(names ...string) int64 {
	f := e.field(names)
	if f == nil {
		return 0
	}
	v, err := f.Int64()
	if err != nil {
		e.err = err
	}
	return v
}

// Uint returns the first present field among names as an unsigned integer.
func (e *Event) Uint(names ...string) uint64 {
	f := e.field(names)
	if f == nil {
		return 0
	}
	v, err := f.Uint64()
	if err != nil {
		e.err = err
	}
	return v
}

// Str returns the first present field among names as a string.
func (e *Event) Str(names ...string) string {
	f := e.field(names)
	if f == nil {
		return ""
	}
	v, err := f.Str()
	if err != nil {
		e.err = err
	}
	return v
}

// Args returns the event's own fields, leaving out the common_* fields every
// event carries.
func (e *Event) Args() []trace.Field {
	var args []trace.Field
	for _, f := range e.ev.Fields {
		if !strings.HasPrefix(f.Name, "common_") {
			args = append(args, f)
		}
	}
	return args
}

// fail records err as the event's error unless one is already recorded.
func (e *Event) fail(err error) {
	if e.err == nil {
		e.err = errors.WithStack(err)
	}
}

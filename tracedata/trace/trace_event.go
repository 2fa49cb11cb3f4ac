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
// Package trace provides types for conveniently accessing tracepoint
// collections and their events.  trace.Collection holds a time-ordered
// set of events and can be iterated repeatedly as a trace.Source.
package trace

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Timestamp describes a trace event timestamp, in ns.
type Timestamp int64

// UnknownTimestamp represents an unspecified event timestamp.
const UnknownTimestamp Timestamp = -1

// ErrUnsupportedField is the cause of every error returned when a field whose
// type cannot be represented is accessed.
var ErrUnsupportedField = errors.New("unsupported field type")

// FieldType describes how the value of a Field is stored.
type FieldType int

// The supported field types.  Unsupported fields are kept so that they can
// be reported when a handler asks for them.
const (
	Unsupported FieldType = iota
	Signed
	Unsigned
	String
	CharArray
)

func (ft FieldType) String() string {
	switch ft {
	case Signed:
		return "signed"
	case Unsigned:
		return "unsigned"
	case String:
		return "string"
	case CharArray:
		return "char[]"
	default:
		return "unsupported"
	}
}

// Field is a single named, typed property of an Event.
type Field struct {
	Name string
	Type FieldType
	// Int holds the value of Signed fields.
	Int int64
	// Uint holds the value of Unsigned fields.
	Uint uint64
	// Text holds the value of String and CharArray fields.
	Text string
}

// Int64 returns the field as a signed integer.
func (f *Field) Int64() (int64, error) {
	switch f.Type {
	case Signed:
		return f.Int, nil
	case Unsigned:
		return int64(f.Uint), nil
	case String, CharArray:
		return 0, status.Errorf(codes.InvalidArgument, "field %q is a %s, not a number", f.Name, f.Type)
	default:
		return 0, errors.Wrapf(ErrUnsupportedField, "field %q", f.Name)
	}
}

// Uint64 returns the field as an unsigned integer.
func (f *Field) Uint64() (uint64, error) {
	switch f.Type {
	case Signed:
		return uint64(f.Int), nil
	case Unsigned:
		return f.Uint, nil
	case String, CharArray:
		return 0, status.Errorf(codes.InvalidArgument, "field %q is a %s, not a number", f.Name, f.Type)
	default:
		return 0, errors.Wrapf(ErrUnsupportedField, "field %q", f.Name)
	}
}

// Str returns the field as a string.
func (f *Field) Str() (string, error) {
	switch f.Type {
	case String, CharArray:
		return f.Text, nil
	case Signed, Unsigned:
		return "", status.Errorf(codes.InvalidArgument, "field %q is %s, not a string", f.Name, f.Type)
	default:
		return "", errors.Wrapf(ErrUnsupportedField, "field %q", f.Name)
	}
}

func (f Field) String() string {
	switch f.Type {
	case Signed:
		return fmt.Sprintf("%s: %d", f.Name, f.Int)
	case Unsigned:
		return fmt.Sprintf("%s: %d", f.Name, f.Uint)
	case String, CharArray:
		v := f.Text
		if !isPrintable(v) {
			v = "<binary>"
		}
		return fmt.Sprintf("%s: %s", f.Name, v)
	default:
		return fmt.Sprintf("%s: <unsupported>", f.Name)
	}
}

// Event describes a single trace event.
type Event struct {
	// An index uniquely identifying this Event within its Collection.
	Index int
	// The name of the event's type.
	Name string
	// The CPU that logged the event.  Note that the CPU that logs an event may be
	// otherwise unrelated to the event.
	CPU int64
	// The event timestamp.
	Timestamp Timestamp
	// The event's own fields, in format order.
	Fields []Field
}

// Seconds returns the event timestamp as a number of seconds.
func (ev *Event) Seconds() float64 {
	return float64(ev.Timestamp) / 1e9
}

// Field returns the named field.  A missing field yields a NotFound status.
func (ev *Event) Field(name string) (*Field, error) {
	for i := range ev.Fields {
		if ev.Fields[i].Name == name {
			return &ev.Fields[i], nil
		}
	}
	return nil, status.Errorf(codes.NotFound, "event %s has no field %q", ev.Name, name)
}

// HasField returns true if the event carries the named field.
func (ev *Event) HasField(name string) bool {
	_, err := ev.Field(name)
	return err == nil
}

func isPrintable(data string) bool {
	for _, r := range data {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

// String returns the supplied event formatted in a string.
func (ev Event) String() string {
	var out = []string{}
	out = append(out, fmt.Sprintf("%-18d (CPU %d) %s", ev.Timestamp, ev.CPU, ev.Name))
	for _, f := range ev.Fields {
		out = append(out, f.String())
	}
	return strings.Join(out, " ")
}

// Source yields a chronologically ordered sequence of events, and can be
// rewound to its start.
type Source interface {
	// Next returns the next event, or io.EOF once the sequence is exhausted.
	Next() (*Event, error)
	// Rewind restarts the sequence from its first event.
	Rewind() error
}

type options struct {
	normalizationOffset Timestamp
}

// NormalizationOffset specifies the timestamp offset to which all event
// timestamps should be normalized.
func NormalizationOffset(normalizationOffset Timestamp) func(o *options) {
	return func(o *options) {
		o.normalizationOffset = normalizationOffset
	}
}

// NewCollection builds and returns a new trace.Collection holding the
// provided events, or nil and an error if one could not be created.  Events
// are stably sorted by timestamp, so that events logged at the same time
// keep the order they were provided in.
func NewCollection(events []*Event, opts ...func(o *options)) (*Collection, error) {
	o := &options{
		normalizationOffset: 0,
	}
	for _, opt := range opts {
		opt(o)
	}
	sort.SliceStable(events, func(a, b int) bool {
		return events[a].Timestamp < events[b].Timestamp
	})
	c := &Collection{
		events: events,
		o:      o,
	}
	if err := c.init(); err != nil {
		return nil, err
	}
	return c, nil
}

// Collection provides convenience accessors for a time-ordered set of
// events.  It implements Source.
type Collection struct {
	o              *options
	events         []*Event
	next           int
	startTimestamp Timestamp
	endTimestamp   Timestamp
}

func (tc *Collection) init() error {
	if !tc.Valid() {
		return errors.New("invalid collection (are there any events?)")
	}
	for i, ev := range tc.events {
		if ev == nil {
			return status.Errorf(codes.InvalidArgument, "event %d is nil", i)
		}
		ev.Index = i
		ev.Timestamp -= tc.o.normalizationOffset
	}
	tc.startTimestamp = tc.events[0].Timestamp
	tc.endTimestamp = tc.events[len(tc.events)-1].Timestamp
	return nil
}

// EventCount returns the number of events in the collection.
func (tc *Collection) EventCount() int {
	return len(tc.events)
}

// Valid returns whether tc is a valid initialized Collection.
func (tc *Collection) Valid() bool {
	return tc != nil && len(tc.events) > 0
}

// Interval returns the first and last timestamps of the events present in
// this Collection.  Only valid if tc.Valid() is true.
func (tc *Collection) Interval() (startTimestamp Timestamp, endTimestamp Timestamp) {
	return tc.startTimestamp, tc.endTimestamp
}

// EventByIndex returns the event with the provided index in the collection.
func (tc *Collection) EventByIndex(id int) (*Event, error) {
	if !tc.Valid() {
		return nil, errors.New("invalid collection")
	}
	if id < 0 || id >= tc.EventCount() {
		return nil, status.Errorf(codes.NotFound, "event %d not found", id)
	}
	return tc.events[id], nil
}

// EventNames returns the sorted, distinct names of the events present in
// this Collection.
func (tc *Collection) EventNames() sort.StringSlice {
	if !tc.Valid() {
		return nil
	}
	seen := map[string]bool{}
	var ens sort.StringSlice
	for _, ev := range tc.events {
		if !seen[ev.Name] {
			seen[ev.Name] = true
			ens = append(ens, ev.Name)
		}
	}
	sort.Sort(ens)
	return ens
}

// Next returns the next event of the collection, or io.EOF.
func (tc *Collection) Next() (*Event, error) {
	if tc.next >= len(tc.events) {
		return nil, io.EOF
	}
	ev := tc.events[tc.next]
	tc.next++
	return ev, nil
}

// Rewind restarts iteration at the first event.
func (tc *Collection) Rewind() error {
	tc.next = 0
	return nil
}

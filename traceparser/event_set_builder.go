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
package traceparser

// event_set_builder turns TraceEvents into trace.Events

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/google/schedwave/tracedata/trace"
)

// EventSetBuilder accumulates TraceEvents, as they are decoded, into
// trace.Events named after their format.
// To start constructing a new event set, call NewEventSetBuilder(). If more
// formats need to be added, AddFormat() can be used.
// Use AddTraceEvent() to add events as they come in, then Finalize() to get
// the events in timestamp order. Once this is done, the EventSetBuilder
// should no longer be used.
type EventSetBuilder struct {
	formats map[uint16]*EventFormat
	events  []*trace.Event
}

// NewEventSetBuilder constructs a new builder for making event sets.
// Optionally, a TraceParser can be provided. If one is provided, its formats
// are known to the builder. If it is not provided (i.e. nil is passed), then
// formats must be added with AddFormat.
func NewEventSetBuilder(tp *TraceParser) *EventSetBuilder {
	esb := &EventSetBuilder{
		formats: make(map[uint16]*EventFormat),
	}
	if tp != nil {
		for _, f := range tp.Formats {
			esb.AddFormat(f)
		}
	}
	return esb
}

// AddFormat makes events of the provided format acceptable to AddTraceEvent.
func (esb *EventSetBuilder) AddFormat(eFormat *EventFormat) {
	esb.formats[eFormat.ID] = eFormat
}

// AddTraceEvent adds a new trace event to the set being built.  The event's
// fields must match its format's fields in number, name and type.
func (esb *EventSetBuilder) AddTraceEvent(traceEvent *TraceEvent) error {
	eFormat, ok := esb.formats[traceEvent.FormatID]
	if !ok {
		return errors.Errorf("missing format definition for format %d", traceEvent.FormatID)
	}
	if len(traceEvent.Fields) != len(eFormat.Format.Fields) {
		return errors.Errorf("event %s: expected %d fields, but got %d", eFormat.Name, len(eFormat.Format.Fields), len(traceEvent.Fields))
	}
	for i, field := range eFormat.Format.Fields {
		got := traceEvent.Fields[i]
		if got.Name != field.Name || got.Type != field.Type {
			return errors.Errorf("event %s: field %d is %s %q, want %s %q", eFormat.Name, i, got.Type, got.Name, field.Type, field.Name)
		}
	}
	esb.events = append(esb.events, &trace.Event{
		Name:      eFormat.Name,
		CPU:       traceEvent.CPU,
		Timestamp: trace.Timestamp(traceEvent.Timestamp),
		Fields:    traceEvent.Fields,
	})
	return nil
}

// Clone makes a copy of the EventSetBuilder
func (esb *EventSetBuilder) Clone() *EventSetBuilder {
	newEsb := &EventSetBuilder{
		formats: make(map[uint16]*EventFormat, len(esb.formats)),
		events:  make([]*trace.Event, 0, len(esb.events)),
	}
	for k, v := range esb.formats {
		format := *v
		newEsb.formats[k] = &format
	}
	for _, ev := range esb.events {
		nev := *ev
		nev.Fields = append([]trace.Field(nil), ev.Fields...)
		newEsb.events = append(newEsb.events, &nev)
	}
	return newEsb
}

// Finalize returns the accumulated events, stably sorted by timestamp so
// that simultaneous events keep the order they were added in.
func (esb *EventSetBuilder) Finalize() []*trace.Event {
	sort.SliceStable(esb.events, func(i, j int) bool {
		return esb.events[i].Timestamp < esb.events[j].Timestamp
	})
	return esb.events
}

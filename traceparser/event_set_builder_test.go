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

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/schedwave/tracedata/trace"
)

func testEventSetBuilder(t *testing.T) *EventSetBuilder {
	t.Helper()
	return NewEventSetBuilder(testParser(t))
}

func irqEvent(ts uint64, cpu int64, irq int64) *TraceEvent {
	return &TraceEvent{
		Timestamp: ts,
		CPU:       cpu,
		FormatID:  10,
		Fields: []trace.Field{
			{Name: "irq", Type: trace.Signed, Int: irq},
			{Name: "name", Type: trace.String, Text: "eth0"},
		},
	}
}

func TestEventSetBuilderOrdering(t *testing.T) {
	esb := testEventSetBuilder(t)
	for _, ev := range []*TraceEvent{irqEvent(30, 0, 1), irqEvent(10, 1, 2), irqEvent(30, 1, 3), irqEvent(20, 0, 4)} {
		if err := esb.AddTraceEvent(ev); err != nil {
			t.Fatalf("AddTraceEvent() yielded unexpected error %v", err)
		}
	}
	var got []int64
	for _, ev := range esb.Finalize() {
		if ev.Name != "irq_handler_entry" {
			t.Errorf("event name = %s, want irq_handler_entry", ev.Name)
		}
		got = append(got, ev.Fields[0].Int)
	}
	if diff := cmp.Diff([]int64{2, 4, 1, 3}, got); diff != "" {
		t.Errorf("Finalize() order Diff -want +got:\n%s", diff)
	}
}

func TestEventSetBuilderRejectsMismatches(t *testing.T) {
	tests := []struct {
		description string
		ev          *TraceEvent
	}{{
		"unknown format",
		&TraceEvent{FormatID: 99},
	}, {
		"missing field",
		&TraceEvent{FormatID: 10, Fields: []trace.Field{{Name: "irq", Type: trace.Signed}}},
	}, {
		"wrong field type",
		&TraceEvent{FormatID: 10, Fields: []trace.Field{
			{Name: "irq", Type: trace.String},
			{Name: "name", Type: trace.String},
		}},
	}}
	for _, test := range tests {
		if err := testEventSetBuilder(t).AddTraceEvent(test.ev); err == nil {
			t.Errorf("test %s: AddTraceEvent() returned no error", test.description)
		}
	}
}

func TestEventSetBuilderClone(t *testing.T) {
	esb := testEventSetBuilder(t)
	if err := esb.AddTraceEvent(irqEvent(10, 0, 1)); err != nil {
		t.Fatal(err)
	}
	clone := esb.Clone()
	if err := clone.AddTraceEvent(irqEvent(20, 0, 2)); err != nil {
		t.Fatal(err)
	}
	clone.events[0].Fields[0].Int = 100
	if got := len(esb.Finalize()); got != 1 {
		t.Errorf("original builder has %d events after cloning, want 1", got)
	}
	if got := esb.events[0].Fields[0].Int; got != 1 {
		t.Errorf("original event field = %d after modifying clone, want 1", got)
	}
}

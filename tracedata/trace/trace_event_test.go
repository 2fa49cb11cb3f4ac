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
package trace_test

import (
	"io"
	"reflect"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	builder "github.com/google/schedwave/tracedata/eventsetbuilder"
	"github.com/google/schedwave/tracedata/trace"
)

var b = builder.NewBuilder().
	WithEventDescriptor("event1",
		builder.Number("numprop1"),
		builder.Number("numprop2")).
	WithEventDescriptor("event2",
		builder.Text("txtprop1"),
		builder.CharArray("txtprop2")).
	WithEventDescriptor("event3",
		builder.Number("numprop1"),
		builder.Text("txtprop1"),
		builder.Unsigned("numprop2"),
		builder.Opaque("blob"))

func populatedBuilder() *builder.Builder {
	return b.Clone().
		WithEvent("event1", 0, 2000, 100, 400).
		WithEvent("event1", 0, 1000, 100, 200).
		WithEvent("event2", 1, 3000, "thing1", "thing2").
		WithEvent("event3", 0, 4000, 50, "thing1", 150, nil)
}

// TestInit tests Collection initialization, and whole-collection
// statistics.
func TestInit(t *testing.T) {
	c := populatedBuilder().TestCollection(t)
	if !c.Valid() {
		t.Fatalf("populated collection is not valid")
	}
	if got, want := c.EventCount(), 4; got != want {
		t.Errorf("c.EventCount() returned %d, want %d", got, want)
	}
	start, end := c.Interval()
	if start != 1000 || end != 4000 {
		t.Errorf("c.Interval() returned (%d, %d), want (1000, 4000)", start, end)
	}
	wantNames := sort.StringSlice{"event1", "event2", "event3"}
	if !reflect.DeepEqual(wantNames, c.EventNames()) {
		t.Errorf("c.EventNames() returned %v, want %v", c.EventNames(), wantNames)
	}

	if _, err := builder.NewBuilder().Collection(); err == nil {
		t.Errorf("an empty collection was built without error")
	}
	if _, err := populatedBuilder().WithEvent("event4", 0, 0).Collection(); err == nil {
		t.Errorf("a collection with an undescribed event was built without error")
	}
}

func TestNormalization(t *testing.T) {
	events := []*trace.Event{
		{Name: "b", Timestamp: 1500},
		{Name: "a", Timestamp: 1200},
	}
	c, err := trace.NewCollection(events, trace.NormalizationOffset(1000))
	if err != nil {
		t.Fatalf("NewCollection() yielded unexpected error %v", err)
	}
	start, end := c.Interval()
	if start != 200 || end != 500 {
		t.Errorf("c.Interval() returned (%d, %d), want (200, 500)", start, end)
	}
	ev, err := c.EventByIndex(0)
	if err != nil {
		t.Fatal(err)
	}
	if ev.Name != "a" || ev.Index != 0 {
		t.Errorf("first event is %s (index %d), want a (index 0)", ev.Name, ev.Index)
	}
	if _, err := c.EventByIndex(2); status.Code(err) != codes.NotFound {
		t.Errorf("EventByIndex(2) returned %v, want NotFound", err)
	}
}

// TestEvent tests that trace.Events are properly formed and returned.
func TestEvent(t *testing.T) {
	c := populatedBuilder().TestCollection(t)
	event, err := c.EventByIndex(3)
	if err != nil {
		t.Fatalf("Unexpected error on EventByIndex: %s", err)
	}
	es := event.String()
	wantEs := "4000               (CPU 0) event3 " +
		"numprop1: 50 " +
		"txtprop1: thing1 " +
		"numprop2: 150 " +
		"blob: <unsupported>"
	if es != wantEs {
		t.Errorf("event.String() returned %s, want %s", es, wantEs)
	}
	if got := event.Seconds(); got != 4e-6 {
		t.Errorf("event.Seconds() returned %g, want 4e-6", got)
	}
}

func TestFieldAccess(t *testing.T) {
	c := populatedBuilder().TestCollection(t)
	event, err := c.EventByIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	f, err := event.Field("numprop2")
	if err != nil {
		t.Fatal(err)
	}
	if v, err := f.Int64(); err != nil || v != 150 {
		t.Errorf("numprop2.Int64() = %d, %v, want 150, nil", v, err)
	}
	if _, err := f.Str(); status.Code(err) != codes.InvalidArgument {
		t.Errorf("numprop2.Str() returned %v, want InvalidArgument", err)
	}
	if _, err := event.Field("missing"); status.Code(err) != codes.NotFound {
		t.Errorf("Field(missing) returned %v, want NotFound", err)
	}
	blob, err := event.Field("blob")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := blob.Uint64(); errors.Cause(err) != trace.ErrUnsupportedField {
		t.Errorf("blob.Uint64() returned %v, want ErrUnsupportedField", err)
	}
	if !event.HasField("txtprop1") || event.HasField("txtprop2") {
		t.Errorf("HasField() does not reflect event3's fields")
	}
}

func TestSourceIteration(t *testing.T) {
	c := populatedBuilder().TestCollection(t)
	var src trace.Source = c
	for pass := 0; pass < 2; pass++ {
		var got []trace.Timestamp
		for {
			ev, err := src.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatal(err)
			}
			got = append(got, ev.Timestamp)
		}
		want := []trace.Timestamp{1000, 2000, 3000, 4000}
		if !reflect.DeepEqual(want, got) {
			t.Errorf("pass %d: timestamps %v, want %v", pass, got, want)
		}
		if err := src.Rewind(); err != nil {
			t.Fatal(err)
		}
	}
}

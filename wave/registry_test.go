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
package wave_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/google/schedwave/testhelpers"
	"github.com/google/schedwave/wave"
)

func TestInitIsIdempotent(t *testing.T) {
	r := wave.NewRegistry()
	var ch wave.Channel
	r.Init(&ch, wave.GroupIRQ, 2, wave.Bits, "irq/%d", 0)
	r.Init(&ch, wave.GroupMM, 3, wave.String, "other/%d", 1)
	if got, want := ch.Name(), "irq/0"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if ch.Kind() != wave.Bits || ch.Group() != wave.GroupIRQ || ch.Pos() != 2 {
		t.Errorf("second Init changed channel to %s/%d/%g", ch.Kind(), ch.Group(), ch.Pos())
	}
	if got := len(r.Channels()); got != 1 {
		t.Errorf("len(Channels()) = %d, want 1", got)
	}
	if err := r.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestFlushBindsByGroup(t *testing.T) {
	r := wave.NewRegistry()
	var global, proc, none, irq wave.Channel
	r.Init(&global, wave.GroupGlobal, 1, wave.String, "fork/0")
	r.Init(&proc, wave.GroupProcess, 1, wave.Bits, "proc.state.[1-1] init")
	r.Init(&none, wave.GroupNone, 1, wave.String, "proc.info.[1-1] init (info)")
	r.Init(&irq, wave.GroupIRQ, 1, wave.Bits, "timer (0)/0")
	sink := testhelpers.NewRecordingSink()
	if err := r.FlushSymbols(sink); err != nil {
		t.Fatalf("FlushSymbols() yielded unexpected error %v", err)
	}
	want := []string{"proc.info.[1-1] init (info)", "timer (0)/0", "proc.state.[1-1] init", "fork/0"}
	if diff := cmp.Diff(want, sink.Declared()); diff != "" {
		t.Errorf("Declared() Diff -want +got:\n%s", diff)
	}
	if err := r.FlushSymbols(sink); err == nil {
		t.Errorf("second FlushSymbols() yielded no error")
	}
}

func TestEmit(t *testing.T) {
	r := wave.NewRegistry(wave.ExtendedStates(false))
	var bits, num, text, analog, addr wave.Channel
	r.Init(&bits, wave.GroupIRQ, 0, wave.Bits, "bits")
	r.Init(&num, wave.GroupMM, 0, wave.Integer, "num")
	r.Init(&text, wave.GroupGlobal, 0, wave.String, "text")
	r.Init(&analog, wave.GroupGlobal, 1, wave.Analog, "analog")
	r.Init(&addr, wave.GroupMM, 1, wave.Addr, "addr")
	sink := testhelpers.NewRecordingSink()
	if err := r.FlushSymbols(sink); err != nil {
		t.Fatal(err)
	}
	if bits.Emitted() {
		t.Errorf("Emitted() = true before any emit")
	}
	r.Emit(&bits, wave.S0)
	r.Emit(&bits, wave.S2)
	r.Emit(&num, wave.Int(-3))
	r.Emit(&text, wave.Textf("%d: %s", 7, "read"))
	r.Emit(&text, wave.Int(12))
	r.Emit(&analog, wave.Float(0.25))
	r.Emit(&addr, wave.Address(0xc0ffee))
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
	want := []string{
		"bits=x",
		"bits=0",
		"num=-3",
		"text=7: read",
		"text=12",
		"analog=0.25",
		"addr=0x00c0ffee",
	}
	if diff := cmp.Diff(want, sink.Log); diff != "" {
		t.Errorf("Emit() Diff -want +got:\n%s", diff)
	}
	if !bits.Emitted() || bits.Last() != wave.Zero {
		t.Errorf("bits: Emitted() = %t, Last() = %v; want true, 0", bits.Emitted(), bits.Last())
	}
}

type fakeLabeler map[uint64]string

func (f fakeLabeler) Get(addr uint64) string {
	if l, ok := f[addr]; ok {
		return l
	}
	return wave.HexAddress(addr)
}

func TestEmitAddressLabel(t *testing.T) {
	r := wave.NewRegistry(wave.WithLabeler(fakeLabeler{0x10: "kmalloc() [slab.c]"}))
	var addr wave.Channel
	r.Init(&addr, wave.GroupMM, 0, wave.Addr, "kmalloc/0")
	sink := testhelpers.NewRecordingSink()
	if err := r.FlushSymbols(sink); err != nil {
		t.Fatal(err)
	}
	r.Emit(&addr, wave.Address(0x10))
	r.Emit(&addr, wave.Address(0x20))
	want := []string{"kmalloc/0=kmalloc() [slab.c]", "kmalloc/0=0x00000020"}
	if diff := cmp.Diff(want, sink.Log); diff != "" {
		t.Errorf("Emit() Diff -want +got:\n%s", diff)
	}
}

func TestEmitErrorsAreSticky(t *testing.T) {
	r := wave.NewRegistry()
	var early, text wave.Channel
	r.Init(&early, wave.GroupGlobal, 0, wave.Bits, "early")
	r.Emit(&early, wave.One)
	if err := r.Err(); errors.Cause(err) != wave.ErrUnbound {
		t.Fatalf("Err() = %v, want cause %v", err, wave.ErrUnbound)
	}
	sink := testhelpers.NewRecordingSink()
	r.FlushSymbols(sink)
	r.Init(&text, wave.GroupGlobal, 1, wave.String, "text")
	r.Emit(&text, wave.One)
	if err := r.Err(); errors.Cause(err) != wave.ErrUnbound {
		t.Errorf("Err() = %v, want the first error", err)
	}
}

func TestEmitKindMismatch(t *testing.T) {
	r := wave.NewRegistry()
	var bits wave.Channel
	r.Init(&bits, wave.GroupGlobal, 0, wave.Bits, "bits")
	if err := r.FlushSymbols(testhelpers.NewRecordingSink()); err != nil {
		t.Fatal(err)
	}
	r.Emit(&bits, wave.Text("1"))
	if r.Err() == nil {
		t.Errorf("Emit(Text) on a bits channel yielded no error")
	}
}

func TestLateRegistrationAndRename(t *testing.T) {
	r := wave.NewRegistry()
	var early, late wave.Channel
	r.Init(&early, wave.GroupProcess, 1, wave.Bits, "proc.state.[0-5] ????")
	sink := testhelpers.NewRecordingSink()
	if err := r.FlushSymbols(sink); err != nil {
		t.Fatal(err)
	}
	r.Init(&late, wave.GroupProcess, 2, wave.Bits, "proc.state.[0-6] late")
	if !late.Bound() {
		t.Fatalf("channel initialized after the flush is not bound")
	}
	r.Refresh(&early, "proc.state.[%d-%d] %s", 0, 5, "????")
	r.Refresh(&early, "proc.state.[%d-%d] %s", 5, 5, "worker")
	r.Emit(&early, wave.S0)
	r.Emit(&late, wave.Idle)
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}
	want := []string{
		"proc.state.[0-5] ???? -> proc.state.[5-5] worker",
		"proc.state.[5-5] worker=x",
		"proc.state.[0-6] late=z",
	}
	if diff := cmp.Diff(want, sink.Log); diff != "" {
		t.Errorf("log Diff -want +got:\n%s", diff)
	}
	if got, want := early.Name(), "proc.state.[5-5] worker"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
}

func TestRefreshUnnamed(t *testing.T) {
	r := wave.NewRegistry()
	var ch wave.Channel
	r.Refresh(&ch, "x")
	if r.Err() == nil {
		t.Errorf("Refresh() of an unnamed channel yielded no error")
	}
}

func TestViewerName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"softirq/0 (info)", "softirq/0_(info)"},
		{"proc.state.[1-2] idle/0 thread", "proc.state.[1-2]_idle/0_thread"},
		{"fork/1", "fork/1"},
	}
	for _, test := range tests {
		if got := wave.ViewerName(test.name); got != test.want {
			t.Errorf("ViewerName(%q) = %q, want %q", test.name, got, test.want)
		}
	}
}

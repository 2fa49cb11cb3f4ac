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
package symbols

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
)

type fakeResolver struct {
	locs    map[uint64]Location
	fail    map[uint64]bool
	batches [][]uint64
}

func (f *fakeResolver) Resolve(ctx context.Context, addrs []uint64) ([]Location, error) {
	f.batches = append(f.batches, append([]uint64(nil), addrs...))
	var ret []Location
	for _, addr := range addrs {
		if f.fail[addr] {
			return nil, errors.New("resolver crashed")
		}
		ret = append(ret, f.locs[addr])
	}
	return ret, nil
}

func TestCache(t *testing.T) {
	r := &fakeResolver{
		locs: map[uint64]Location{
			0x1000: {"do_fork", "fork.c:10"},
			0x2000: {"??", "??:0"},
		},
	}
	c, err := NewCache(r, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Store(0x1000)
	c.Store(0x2000)
	c.Store(0x1000)
	if got := c.Pending(); got != 2 {
		t.Errorf("Pending() = %d, want 2", got)
	}
	if got, want := c.Get(0x1000), "0x00001000"; got != want {
		t.Errorf("Get() before Flush() = %q, want %q", got, want)
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() yielded unexpected error %v", err)
	}
	tests := []struct {
		addr uint64
		want string
	}{
		{0x1000, "do_fork() [fork.c:10]"},
		{0x2000, "0x00002000"},
		{0x3000, "0x00003000"},
	}
	for _, test := range tests {
		if got := c.Get(test.addr); got != test.want {
			t.Errorf("Get(%#x) = %q, want %q", test.addr, got, test.want)
		}
	}
	c.Store(0x1000)
	if got := c.Pending(); got != 0 {
		t.Errorf("Pending() after storing a known address = %d, want 0", got)
	}
}

func TestCacheBatches(t *testing.T) {
	r := &fakeResolver{locs: map[uint64]Location{}}
	c, err := NewCache(r, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < BatchSize+3; i++ {
		c.Store(uint64(i + 1))
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	var sizes []int
	for _, b := range r.batches {
		sizes = append(sizes, len(b))
	}
	if diff := cmp.Diff([]int{BatchSize, 3}, sizes); diff != "" {
		t.Errorf("batch sizes Diff -want +got:\n%s", diff)
	}
}

func TestCacheResolverFailure(t *testing.T) {
	r := &fakeResolver{
		locs: map[uint64]Location{0x10: {"f", "f.c:1"}},
		fail: map[uint64]bool{0x20: true},
	}
	var failed []uint64
	c, err := NewCache(r, 0, func(addrs []uint64, err error) {
		failed = append(failed, addrs...)
	})
	if err != nil {
		t.Fatal(err)
	}
	c.Store(0x10)
	c.Store(0x20)
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() yielded unexpected error %v", err)
	}
	if diff := cmp.Diff([]uint64{0x10, 0x20}, failed); diff != "" {
		t.Errorf("failed addresses Diff -want +got:\n%s", diff)
	}
	if got, want := c.Get(0x10), "0x00000010"; got != want {
		t.Errorf("Get() = %q, want %q", got, want)
	}
}

func TestCacheKeepsEveryLabel(t *testing.T) {
	r := &fakeResolver{
		locs: map[uint64]Location{
			0xc0001000: {"a", "a.c:1"},
			0xc0002000: {"b", "b.c:2"},
		},
	}
	c, err := NewCache(r, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Store(0xc0001000)
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() yielded unexpected error %v", err)
	}
	c.Store(0xc0002000)
	c.Store(0xc0003000)
	if err := c.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() yielded unexpected error %v", err)
	}
	var got []string
	for _, addr := range []uint64{0xc0001000, 0xc0002000, 0xc0003000} {
		got = append(got, c.Get(addr))
	}
	want := []string{"a() [a.c:1]", "b() [b.c:2]", "0xc0003000"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("labels Diff -want +got:\n%s", diff)
	}
	if len(r.batches) != 2 {
		t.Errorf("resolved %d batches, want 2", len(r.batches))
	}
}

func TestCacheCancelled(t *testing.T) {
	c, err := NewCache(&fakeResolver{}, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Store(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Flush(ctx); err != context.Canceled {
		t.Errorf("Flush() = %v, want %v", err, context.Canceled)
	}
}

func TestDisabledCache(t *testing.T) {
	c, err := NewCache(nil, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.Store(0xdead)
	if c.Enabled() || c.Pending() != 0 {
		t.Errorf("disabled cache queued addresses")
	}
	if err := c.Flush(context.Background()); err != nil {
		t.Errorf("Flush() = %v, want nil", err)
	}
	if got, want := c.Get(0xdead), "0x0000dead"; got != want {
		t.Errorf("Get() = %q, want %q", got, want)
	}
}

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
// Package symbols maps code addresses to "function() [file]" labels, in
// batches, through an external or in-process resolver.
package symbols

import (
	"context"
	"fmt"

	log "github.com/golang/glog"
	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/pkg/errors"
)

const (
	// BatchSize is the largest number of addresses resolved at once.
	BatchSize = 128
	// DefaultCacheSize is the initial capacity of the label cache.
	DefaultCacheSize = 100000
)

// Location is the source location of an address.  An empty Function, or
// one starting with '?', means the address could not be resolved.
type Location struct {
	Function string
	File     string
}

// Resolved returns true if the location names a function.
func (l Location) Resolved() bool {
	return l.Function != "" && l.Function[0] != '?'
}

// Resolver resolves a batch of addresses.  The returned locations match
// addrs positionally.
type Resolver interface {
	Resolve(ctx context.Context, addrs []uint64) ([]Location, error)
}

// FailureFunc is told about batches that could not be resolved.
type FailureFunc func(addrs []uint64, err error)

// Cache holds the labels of the addresses stored so far.  Addresses are
// queued by Store and resolved by Flush; Get never blocks.
type Cache struct {
	resolver  Resolver
	labels    *simplelru.LRU
	size      int
	pending   []uint64
	queued    map[uint64]bool
	onFailure FailureFunc
}

// NewCache returns a Cache resolving addresses with r.  A nil r disables
// symbolication: Store does nothing and Get returns hex labels.
func NewCache(r Resolver, size int, onFailure FailureFunc) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	labels, err := simplelru.NewLRU(size, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create symbol cache")
	}
	if onFailure == nil {
		onFailure = func(addrs []uint64, err error) {
			log.Warningf("failed to resolve %d addresses: %s", len(addrs), err)
		}
	}
	return &Cache{
		resolver:  r,
		labels:    labels,
		size:      size,
		queued:    map[uint64]bool{},
		onFailure: onFailure,
	}, nil
}

// Enabled returns true if the cache has a resolver.
func (c *Cache) Enabled() bool {
	return c != nil && c.resolver != nil
}

// Store queues addr for resolution unless it is already known.
func (c *Cache) Store(addr uint64) {
	if !c.Enabled() || c.queued[addr] || c.labels.Contains(addr) {
		return
	}
	c.queued[addr] = true
	c.pending = append(c.pending, addr)
}

// Pending returns the number of queued addresses.
func (c *Cache) Pending() int {
	return len(c.pending)
}

// Get returns the label of addr, or its hex rendition if it is unknown.
func (c *Cache) Get(addr uint64) string {
	if c.Enabled() {
		if l, ok := c.labels.Get(addr); ok {
			return l.(string)
		}
	}
	return hex(addr)
}

func hex(addr uint64) string {
	return fmt.Sprintf("0x%08x", addr)
}

// Label returns the display label of a location resolved for addr.
func Label(addr uint64, loc Location) string {
	if !loc.Resolved() {
		return hex(addr)
	}
	return fmt.Sprintf("%s() [%s]", loc.Function, loc.File)
}

// Flush resolves every queued address, BatchSize at a time.  A batch the
// resolver fails on is labelled in hex and reported to the failure
// function; only a cancelled context stops the flush.  The cache grows to
// hold every label resolved so far, so none is evicted.
func (c *Cache) Flush(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if need := c.labels.Len() + len(c.pending); need > c.size {
		log.V(1).Infof("growing symbol cache from %d to %d labels", c.size, need)
		c.labels.Resize(need)
		c.size = need
	}
	for len(c.pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := len(c.pending)
		if n > BatchSize {
			n = BatchSize
		}
		batch := c.pending[:n]
		locs, err := c.resolver.Resolve(ctx, batch)
		if err == nil && len(locs) != len(batch) {
			err = errors.Errorf("resolver returned %d locations for %d addresses", len(locs), len(batch))
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.onFailure(batch, err)
			locs = make([]Location, len(batch))
		}
		for i, addr := range batch {
			c.labels.Add(addr, Label(addr, locs[i]))
			delete(c.queued, addr)
		}
		c.pending = c.pending[n:]
	}
	c.pending = nil
	return nil
}

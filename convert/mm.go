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
	"github.com/google/schedwave/wave"
)

// mmChannels are the memory allocation channels of a CPU.
type mmChannels struct {
	alloc wave.Channel
	bytes wave.Channel
	free  wave.Channel
}

// kmalloc shows the call site of each allocation and its size.
func (c *Converter) kmalloc(ev *Event) error {
	site := ev.Uint("call_site")
	size := ev.Int("bytes_alloc")
	if err := ev.Err(); err != nil {
		return err
	}
	mm := &c.mm[ev.CPU]
	if ev.Pass == 1 {
		c.reg.Init(&mm.alloc, wave.GroupMM, 1.0+0.1*float64(ev.CPU), wave.Addr, "kmalloc/%d", ev.CPU)
		c.reg.Init(&mm.bytes, wave.GroupMM, 1.05+0.1*float64(ev.CPU), wave.Integer, "kmalloc bytes/%d", ev.CPU)
		c.symbols.Store(site)
		return nil
	}
	c.reg.Emit(&mm.alloc, wave.Address(site))
	c.reg.Emit(&mm.bytes, wave.Int(size))
	return nil
}

// kfree shows the call site of each release.
func (c *Converter) kfree(ev *Event) error {
	site := ev.Uint("call_site")
	if err := ev.Err(); err != nil {
		return err
	}
	mm := &c.mm[ev.CPU]
	if ev.Pass == 1 {
		c.reg.Init(&mm.free, wave.GroupMM, 2.0+0.1*float64(ev.CPU), wave.Addr, "kfree/%d", ev.CPU)
		c.symbols.Store(site)
		return nil
	}
	c.reg.Emit(&mm.free, wave.Address(site))
	return nil
}

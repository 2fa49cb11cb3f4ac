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
package wave

// Channel is a named, typed signal.  The zero Channel is unnamed; it is
// named, and its kind fixed, by the first Registry.Init call.
type Channel struct {
	name    string
	kind    Kind
	group   Group
	pos     float64
	emitted bool
	last    Value
	sym     Symbol
	bound   bool
}

// Name returns the display name of the channel, or "" if it is unnamed.
func (c *Channel) Name() string { return c.name }

// Named returns true once the channel has been initialized.
func (c *Channel) Named() bool { return c.name != "" }

// Kind returns the encoding of the channel.
func (c *Channel) Kind() Kind { return c.kind }

// Group returns the display group of the channel.
func (c *Channel) Group() Group { return c.group }

// Pos returns the sort position of the channel within its group.
func (c *Channel) Pos() float64 { return c.pos }

// Emitted returns true if a value was ever written to the channel.
func (c *Channel) Emitted() bool { return c.emitted }

// Last returns the last value written to the channel, or nil.
func (c *Channel) Last() Value { return c.last }

// Bound returns true once the channel has a sink symbol.
func (c *Channel) Bound() bool { return c.bound }

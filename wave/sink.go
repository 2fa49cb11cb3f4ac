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

// Symbol identifies a variable declared in a Sink.
type Symbol int

// Sink receives variable declarations and time-ordered value changes.
// Calls to SetTime never decrease.
type Sink interface {
	// Declare returns the symbol of the named variable, declaring it if
	// needed.  Declaring an existing name with another kind is an error.
	Declare(name string, kind Kind) (Symbol, error)
	// Rename changes the display name of a declared symbol.
	Rename(sym Symbol, name string) error
	// SetTime sets the time, in ns, of the following value changes.
	SetTime(ns int64) error
	EmitState(sym Symbol, s State) error
	EmitInt(sym Symbol, v int64) error
	EmitString(sym Symbol, s string) error
	EmitFloat(sym Symbol, f float64) error
	// Close completes the dump.
	Close() error
}

// Labeler maps addresses to display labels.
type Labeler interface {
	Get(addr uint64) string
}

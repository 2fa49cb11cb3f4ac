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
// Package wave holds the named, typed signal channels of a waveform and
// writes their value changes to a Sink.
package wave

import (
	"fmt"
	"strings"
)

// Kind is the encoding of a channel.  It is fixed when the channel is
// first named.
type Kind int

// Channel kinds.
const (
	// Bits channels carry a single State.
	Bits Kind = iota
	// Integer channels carry an Int.
	Integer
	// String channels carry a Text.
	String
	// Analog channels carry a Float, displayed as an interpolated curve.
	Analog
	// Addr channels carry an Addr, displayed as its symbolic label.
	Addr
)

func (k Kind) String() string {
	switch k {
	case Bits:
		return "bits"
	case Integer:
		return "integer"
	case String:
		return "string"
	case Analog:
		return "analog"
	case Addr:
		return "address"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Group is the display group a channel is listed under in the save file.
type Group int

// Display groups, in save file order.  GroupNone channels are only
// present in the waveform.
const (
	GroupNone Group = iota
	GroupIRQ
	GroupMM
	GroupProcess
	GroupUser
	GroupGlobal
)

// Groups lists every group in display order.
var Groups = []Group{GroupNone, GroupIRQ, GroupMM, GroupProcess, GroupUser, GroupGlobal}

// Title returns the heading of the group in the save file.
func (g Group) Title() string {
	switch g {
	case GroupIRQ:
		return "Interrupts"
	case GroupMM:
		return "Memory Management"
	case GroupProcess:
		return "Processes"
	case GroupUser:
		return "User Events"
	case GroupGlobal:
		return "Global"
	default:
		return ""
	}
}

// Value is a value written to a channel: one of State, Int, Text, Float
// or Addr.
type Value interface {
	isValue()
}

// State is the value of a Bits channel.
type State string

// Bit states understood by the viewer.
const (
	S0   State = "x"
	S1   State = "u"
	S2   State = "w"
	Idle State = "z"
	One  State = "1"
	Zero State = "0"
)

// Int is the value of an Integer channel.
type Int int64

// Text is the value of a String channel.
type Text string

// Textf formats a Text value.
func Textf(format string, args ...interface{}) Text {
	return Text(fmt.Sprintf(format, args...))
}

// Float is the value of an Analog channel.
type Float float64

// Address is the value of an Addr channel.
type Address uint64

func (State) isValue()   {}
func (Int) isValue()     {}
func (Text) isValue()    {}
func (Float) isValue()   {}
func (Address) isValue() {}

// HexAddress is the label of an address without a symbol.
func HexAddress(addr uint64) string {
	return fmt.Sprintf("0x%08x", addr)
}

// ViewerName returns the name under which the viewer lists a channel:
// whitespace cannot appear in waveform identifiers.
func ViewerName(name string) string {
	return strings.Join(strings.Fields(name), "_")
}

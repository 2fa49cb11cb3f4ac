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
// Package testhelpers contains helpers for tests
package testhelpers

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/google/schedwave/wave"
)

// WriteFile writes content to path, creating its parent directories.
func WriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
}

// RecordingSink is a wave.Sink keeping a readable log of what it receives.
// Time changes are logged as "#<ns>", value changes as "<name>=<value>" and
// renames as "<old> -> <new>".
type RecordingSink struct {
	// Fail, if set, is returned by every call.
	Fail   error
	Log    []string
	Closed bool
	names  []string
	kinds  []wave.Kind
	now    int64
}

// NewRecordingSink returns an empty RecordingSink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{now: -1}
}

// Declared returns the names of the declared symbols in declaration order.
func (s *RecordingSink) Declared() []string {
	return append([]string(nil), s.names...)
}

// Declare implements wave.Sink.
func (s *RecordingSink) Declare(name string, kind wave.Kind) (wave.Symbol, error) {
	if s.Fail != nil {
		return 0, s.Fail
	}
	for i, n := range s.names {
		if n == name {
			if s.kinds[i] != kind {
				return 0, errors.Errorf("%q redeclared as %s", name, kind)
			}
			return wave.Symbol(i), nil
		}
	}
	s.names = append(s.names, name)
	s.kinds = append(s.kinds, kind)
	return wave.Symbol(len(s.names) - 1), nil
}

// Rename implements wave.Sink.
func (s *RecordingSink) Rename(sym wave.Symbol, name string) error {
	if s.Fail != nil {
		return s.Fail
	}
	s.Log = append(s.Log, fmt.Sprintf("%s -> %s", s.names[sym], name))
	s.names[sym] = name
	return nil
}

// SetTime implements wave.Sink.
func (s *RecordingSink) SetTime(ns int64) error {
	if s.Fail != nil {
		return s.Fail
	}
	if ns < s.now {
		return errors.Errorf("time goes backwards: %d < %d", ns, s.now)
	}
	if ns != s.now {
		s.Log = append(s.Log, fmt.Sprintf("#%d", ns))
	}
	s.now = ns
	return nil
}

func (s *RecordingSink) change(sym wave.Symbol, v interface{}) error {
	if s.Fail != nil {
		return s.Fail
	}
	if s.Closed {
		return errors.New("sink closed")
	}
	s.Log = append(s.Log, fmt.Sprintf("%s=%v", s.names[sym], v))
	return nil
}

// EmitState implements wave.Sink.
func (s *RecordingSink) EmitState(sym wave.Symbol, st wave.State) error {
	return s.change(sym, st)
}

// EmitInt implements wave.Sink.
func (s *RecordingSink) EmitInt(sym wave.Symbol, v int64) error {
	return s.change(sym, v)
}

// EmitString implements wave.Sink.
func (s *RecordingSink) EmitString(sym wave.Symbol, str string) error {
	return s.change(sym, str)
}

// EmitFloat implements wave.Sink.
func (s *RecordingSink) EmitFloat(sym wave.Symbol, f float64) error {
	return s.change(sym, f)
}

// Close implements wave.Sink.
func (s *RecordingSink) Close() error {
	if s.Fail != nil {
		return s.Fail
	}
	s.Closed = true
	return nil
}

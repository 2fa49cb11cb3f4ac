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
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Handler processes an event.  In pass 1 it may only create and name
// channels; in pass 2 it may only emit values.
type Handler func(ev *Event) error

type patternHandler struct {
	pattern string
	handler Handler
}

// Table maps event names to their Handler.  Exact names take priority over
// glob patterns; among matching patterns the longest one wins, then the
// first registered.
type Table struct {
	exact    map[string]Handler
	patterns []patternHandler
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{exact: map[string]Handler{}}
}

// isPattern returns true if name holds glob metacharacters.
func isPattern(name string) bool {
	return strings.ContainsAny(name, "*?[")
}

// Register associates an event name, or a glob pattern as understood by
// path.Match, with h.
func (t *Table) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return errors.New("empty module registration")
	}
	if !isPattern(name) {
		if _, ok := t.exact[name]; ok {
			return errors.Errorf("module %s registered twice", name)
		}
		t.exact[name] = h
		return nil
	}
	if _, err := path.Match(name, ""); err != nil {
		return errors.Wrapf(err, "bad module pattern %q", name)
	}
	for _, p := range t.patterns {
		if p.pattern == name {
			return errors.Errorf("module pattern %s registered twice", name)
		}
	}
	t.patterns = append(t.patterns, patternHandler{name, h})
	sort.SliceStable(t.patterns, func(i, j int) bool {
		return len(t.patterns[i].pattern) > len(t.patterns[j].pattern)
	})
	return nil
}

// Find returns the Handler of the named event.
func (t *Table) Find(name string) (Handler, bool) {
	if h, ok := t.exact[name]; ok {
		return h, true
	}
	for _, p := range t.patterns {
		if ok, _ := path.Match(p.pattern, name); ok {
			return p.handler, true
		}
	}
	return nil, false
}

// Names returns the registered names, exact ones sorted first, then the
// patterns in match order.
func (t *Table) Names() []string {
	var names []string
	for name := range t.exact {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, p := range t.patterns {
		names = append(names, p.pattern)
	}
	return names
}

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
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// StatsMask selects the statistics gathered during pass 2.
type StatsMask int

// Statistics selectors.
const (
	StatIRQ StatsMask = 1 << iota
	StatSoftirq
)

// Stat accumulates the service times of one vector on one CPU.
type Stat struct {
	CPU    int    `yaml:"cpu"`
	Vector int    `yaml:"vector"`
	Name   string `yaml:"name"`
	Count  int64  `yaml:"count"`
	// Total, Max and MaxAt are in ns.
	Total int64 `yaml:"total_ns"`
	Max   int64 `yaml:"max_ns"`
	MaxAt int64 `yaml:"max_at_ns"`
}

// Mean returns the mean service time in ns.
func (s Stat) Mean() int64 {
	if s.Count == 0 {
		return 0
	}
	return s.Total / s.Count
}

type statKey struct {
	cpu, vec int
}

type statTable map[statKey]*Stat

func (t statTable) add(cpu, vec int, name string, delta, at int64) {
	k := statKey{cpu, vec}
	s, ok := t[k]
	if !ok {
		s = &Stat{CPU: cpu, Vector: vec}
		t[k] = s
	}
	s.Name = name
	s.Count++
	s.Total += delta
	if s.Count == 1 || delta > s.Max {
		s.Max = delta
		s.MaxAt = at
	}
}

func (t statTable) list() []Stat {
	var ret []Stat
	for _, s := range t {
		ret = append(ret, *s)
	}
	sort.Slice(ret, func(i, j int) bool {
		if ret[i].CPU != ret[j].CPU {
			return ret[i].CPU < ret[j].CPU
		}
		return ret[i].Vector < ret[j].Vector
	})
	return ret
}

type stats struct {
	irq     statTable
	softirq statTable
}

// Stats holds the interrupt statistics of a conversion.
type Stats struct {
	IRQ     []Stat `yaml:"irq,omitempty"`
	Softirq []Stat `yaml:"softirq,omitempty"`
}

// Empty returns true if no statistics were gathered.
func (s *Stats) Empty() bool {
	return len(s.IRQ) == 0 && len(s.Softirq) == 0
}

func duration(ns int64) string {
	return time.Duration(ns).String()
}

// WriteTable renders the statistics as a text table.
func (s *Stats) WriteTable(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetBorder(false)
	table.SetColumnSeparator(" ")
	table.SetCenterSeparator(" ")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"type", "cpu", "vector", "name", "count", "total", "mean", "max", "max at"})
	for _, part := range []struct {
		kind  string
		stats []Stat
	}{{"irq", s.IRQ}, {"softirq", s.Softirq}} {
		for _, st := range part.stats {
			table.Append([]string{
				part.kind,
				strconv.Itoa(st.CPU),
				strconv.Itoa(st.Vector),
				st.Name,
				strconv.FormatInt(st.Count, 10),
				duration(st.Total),
				duration(st.Mean()),
				duration(st.Max),
				duration(st.MaxAt),
			})
		}
	}
	table.Render()
	return nil
}

// WriteYAML renders the statistics as YAML.
func (s *Stats) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return errors.Wrap(err, "failed to encode statistics")
	}
	return errors.Wrap(enc.Close(), "failed to encode statistics")
}

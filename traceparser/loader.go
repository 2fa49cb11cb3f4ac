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
package traceparser

import (
	"bufio"
	"context"
	"os"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/google/schedwave/tracedata/trace"
)

// Load reads a whole TraceFS trace directory into a trace.Collection.
// Per-CPU dumps are decoded concurrently; the resulting events are merged
// into a single time-ordered sequence.
func Load(ctx context.Context, traceDir string) (*trace.Collection, error) {
	files, err := FindTraceFiles(traceDir)
	if err != nil {
		return nil, err
	}
	header, err := os.ReadFile(files.HeaderPage)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read header page")
	}
	var formats []string
	for _, f := range files.Formats {
		content, err := os.ReadFile(f)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read format %s", f)
		}
		formats = append(formats, string(content))
	}
	tp, err := New(string(header), formats)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse formats of %s", traceDir)
	}
	log.V(1).Infof("%s: %d event formats, %d CPUs", traceDir, len(tp.Formats), len(files.PerCPU))

	cpus := files.CPUs()
	perCPU := make([][]*TraceEvent, len(cpus))
	g, gctx := errgroup.WithContext(ctx)
	for i, cpu := range cpus {
		i, cpu := i, cpu
		g.Go(func() error {
			f, err := os.Open(files.PerCPU[cpu])
			if err != nil {
				return errors.Wrapf(err, "error opening %s for reading", files.PerCPU[cpu])
			}
			defer f.Close()
			return tp.ParseTrace(bufio.NewReader(f), cpu, func(ev *TraceEvent) (bool, error) {
				if err := gctx.Err(); err != nil {
					return false, err
				}
				perCPU[i] = append(perCPU[i], ev)
				return true, nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	esb := NewEventSetBuilder(tp)
	for i, events := range perCPU {
		log.V(1).Infof("cpu%d: %d events", cpus[i], len(events))
		for _, ev := range events {
			if err := esb.AddTraceEvent(ev); err != nil {
				return nil, err
			}
		}
	}
	return trace.NewCollection(esb.Finalize())
}

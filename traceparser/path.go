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
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

var (
	cpuRe = regexp.MustCompile(`^cpu(\d+)$`)
)

// TraceFiles lists the files making up a raw TraceFS trace directory.
type TraceFiles struct {
	// HeaderPage is the path of the header_page format file.
	HeaderPage string
	// Formats are the paths of every event format file.
	Formats []string
	// PerCPU maps a CPU number to the path of its raw ring buffer dump.
	PerCPU map[int64]string
}

// CPUs returns the CPU numbers with a raw dump, in ascending order.
func (tf *TraceFiles) CPUs() []int64 {
	var cpus []int64
	for cpu := range tf.PerCPU {
		cpus = append(cpus, cpu)
	}
	sort.Slice(cpus, func(i, j int) bool { return cpus[i] < cpus[j] })
	return cpus
}

// FindTraceFiles walks traceDir looking for a header_page file, files named
// format, and raw per-CPU dumps.  A per-CPU dump is either a file named
// cpu\d+ or a trace_pipe_raw file inside a cpu\d+ directory, so that both
// the collection script layout (formats/, traces/cpuN) and a copy of
// TraceFS' per_cpu/ tree are accepted.
func FindTraceFiles(traceDir string) (*TraceFiles, error) {
	tf := &TraceFiles{PerCPU: map[int64]string{}}
	err := filepath.Walk(traceDir, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		name := info.Name()
		switch {
		case name == "header_page":
			tf.HeaderPage = filePath
		case name == "format":
			tf.Formats = append(tf.Formats, filePath)
		case name == "trace_pipe_raw":
			return tf.addCPU(filepath.Base(filepath.Dir(filePath)), filePath)
		case cpuRe.MatchString(name):
			return tf.addCPU(name, filePath)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot traverse trace directory %s", traceDir)
	}
	if tf.HeaderPage == "" {
		return nil, errors.Errorf("no header_page found in %s", traceDir)
	}
	if len(tf.Formats) == 0 {
		return nil, errors.Errorf("no event format found in %s", traceDir)
	}
	if len(tf.PerCPU) == 0 {
		return nil, errors.Errorf("no per-CPU trace found in %s", traceDir)
	}
	sort.Strings(tf.Formats)
	return tf, nil
}

func (tf *TraceFiles) addCPU(name, filePath string) error {
	matches := cpuRe.FindStringSubmatch(name)
	if matches == nil {
		return nil
	}
	cpu, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return errors.Wrapf(err, "error extracting CPU number from filename (filePath: %s)", filePath)
	}
	if prev, ok := tf.PerCPU[cpu]; ok {
		return errors.Errorf("two traces for cpu%d: %s and %s", cpu, prev, filePath)
	}
	tf.PerCPU[cpu] = filePath
	return nil
}

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
package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/schedwave/testhelpers"
)

const schedBTTrace = `Attaching 5 probes...
ST:0:beef
P:a:64:70:Thread 1
P:a:c8:70:Thread 2
S:a:0:64:0:c8
M:14:0:0:1:64
W:1e:0:1:64
S:28:1:0:0:64
`

func writeTrace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trace.txt")
	testhelpers.WriteFile(t, path, []byte(schedBTTrace))
	return path
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestOutputPaths(t *testing.T) {
	p, err := outputPaths([]string{"/tmp/trace/"})
	require.NoError(t, err)
	assert.Equal(t, paths{
		trace:    "/tmp/trace",
		output:   "/tmp/trace.vcd",
		savefile: "/tmp/trace.sav",
		alias:    "/tmp/trace.gtkw",
	}, p)

	p, err = outputPaths([]string{"t", "out.vcd", "out.sav"})
	require.NoError(t, err)
	assert.Equal(t, paths{trace: "t", output: "out.vcd", savefile: "out.sav", alias: "t.gtkw"}, p)

	for _, args := range [][]string{nil, {"a", "b"}, {"a", "b", "c", "d"}, {"/"}} {
		_, err := outputPaths(args)
		assert.Error(t, err, "outputPaths(%q)", args)
	}
}

func TestConvertSchedBT(t *testing.T) {
	tr := writeTrace(t)
	code, stdout, stderr := run(t, "--format", "schedbt", tr)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "Generated '"+tr+".vcd'\n", stdout)

	vcd, err := os.ReadFile(tr + ".vcd")
	require.NoError(t, err)
	assert.Contains(t, string(vcd), "$timescale 1 ns $end")
	assert.Contains(t, string(vcd), "Thread_1")
	assert.Contains(t, string(vcd), "#20")

	sav, err := os.ReadFile(tr + ".sav")
	require.NoError(t, err)
	assert.Contains(t, string(sav), `[dumpfile] "`+tr+`.vcd"`)
	assert.Contains(t, string(sav), "-Processes")
	assert.Contains(t, string(sav), "proc.state.[0-100]_Thread_1")

	savInfo, err := os.Stat(tr + ".sav")
	require.NoError(t, err)
	aliasInfo, err := os.Stat(tr + ".gtkw")
	require.NoError(t, err)
	assert.True(t, os.SameFile(savInfo, aliasInfo), "the .gtkw file is not linked to the save file")
}

func TestExplicitOutputs(t *testing.T) {
	tr := writeTrace(t)
	dir := t.TempDir()
	out, sav := filepath.Join(dir, "w.vcd"), filepath.Join(dir, "w.sav")
	metrics := filepath.Join(dir, "metrics.prom")
	code, stdout, stderr := run(t, "--format=schedbt", "-S", "3", "--stats-format", "yaml",
		"--metrics-file", metrics, tr, out, sav)
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "Generated '"+out+"'\n{}\n", stdout)
	assert.FileExists(t, out)
	assert.FileExists(t, sav)
	assert.FileExists(t, tr+".gtkw")

	m, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(m), `schedwave_events_dispatched_total{pass="2"} 4`)
}

func TestConfigFile(t *testing.T) {
	tr := writeTrace(t)
	cfg := filepath.Join(t.TempDir(), "schedwave.yaml")
	testhelpers.WriteFile(t, cfg, []byte("format: schedbt\nabsolute-clock: true\n"))
	code, _, stderr := run(t, "--config", cfg, tr)
	require.Equal(t, exitOK, code, stderr)
	vcd, err := os.ReadFile(tr + ".vcd")
	require.NoError(t, err)
	assert.Contains(t, string(vcd), "#48889")
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		description string
		args        []string
		want        int
	}{
		{"no arguments", nil, exitUsage},
		{"two arguments", []string{"a", "b"}, exitUsage},
		{"unknown flag", []string{"--frobnicate", "a"}, exitUsage},
		{"bad option", []string{"--stats-format", "xml", "a"}, exitUsage},
		{"missing trace", []string{filepath.Join(t.TempDir(), "none")}, exitError},
		{"missing sched.bt trace", []string{"--format", "schedbt", filepath.Join(t.TempDir(), "none")}, exitError},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			code, _, stderr := run(t, test.args...)
			assert.Equal(t, test.want, code, stderr)
			assert.Contains(t, stderr, "schedwave: ")
		})
	}
}

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
// Package schedbt converts a sched trace gathered by the sched.bt bpftrace
// script into a trace.Collection the converter can read.
package schedbt

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	log "github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedwave/tracedata/eventsetbuilder"
	"github.com/google/schedwave/tracedata/trace"
)

// unknownComm names pids no P row described.
const unknownComm = "<unknown>"

// Parser assembles sched.bt output rows into a trace.Collection.
// All hex numbers lack leading 0x.
// ST:0:<0x start timestamp>
//    Start marker.  Trace timestamps are offset from this timestamp.
// P:<0x timestamp>:<0x pid>:<0x prio>:<command name>
//    Command for pid.  Timestamp offset from start timestamp.
// S:<0x timestamp>:<0x cpu>:<0x prev pid>:<0x prev state>:<0x next pid>
//    Switch.  Timestamp offset from start timestamp.
// M:<0x timestamp>:<0x cpu>:<0x orig cpu>:<0x dest cpu>:<0x pid>
//    Migrate.  cpu is the reporting CPU.
// W:<0x timestamp>:<0x cpu>:<0x target cpu>:<0x pid>
//    Wakeup.  cpu is the reporting CPU.
// Rows of other types are skipped.
type Parser struct {
	startTimestamp    int64
	hasStartTimestamp bool
	esb               *eventsetbuilder.Builder
	commByPid         map[int64]string
	events            int
}

const (
	swakeup  = "sched_wakeup"
	sswitch  = "sched_switch"
	smigrate = "sched_migrate_task"
)

func emptyBuilder() *eventsetbuilder.Builder {
	return eventsetbuilder.NewBuilder().
		WithEventDescriptor(
			swakeup,
			eventsetbuilder.Number("pid"),
			eventsetbuilder.Text("comm"),
			eventsetbuilder.Number("target_cpu")).
		WithEventDescriptor(
			sswitch,
			eventsetbuilder.Number("prev_pid"),
			eventsetbuilder.Text("prev_comm"),
			eventsetbuilder.Number("prev_state"),
			eventsetbuilder.Number("next_pid"),
			eventsetbuilder.Text("next_comm")).
		WithEventDescriptor(
			smigrate,
			eventsetbuilder.Number("pid"),
			eventsetbuilder.Text("comm"),
			eventsetbuilder.Number("orig_cpu"),
			eventsetbuilder.Number("dest_cpu"))
}

// NewParser returns a new schedbt.Parser ready to parse trace rows.
func NewParser() *Parser {
	return &Parser{
		esb:       emptyBuilder(),
		commByPid: map[int64]string{},
	}
}

// Collection returns the events of the parsed trace rows.
func (p *Parser) Collection() (*trace.Collection, error) {
	if p.events == 0 {
		return nil, status.Errorf(codes.InvalidArgument, "no sched.bt events found")
	}
	coll, err := p.esb.Collection()
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to build the collection: %s", err)
	}
	log.V(1).Infof("parsed %d sched.bt events", p.events)
	return coll, nil
}

func (p *Parser) comm(pid int64) string {
	if comm, ok := p.commByPid[pid]; ok {
		return comm
	}
	return unknownComm
}

// recombineParts rejoins the trailing parts of a row whose last field may
// itself hold colons.
func recombineParts(parts []string, fields int) ([]string, bool) {
	if len(parts) < fields {
		return nil, false
	}
	if len(parts) > fields {
		last := strings.Join(parts[fields-1:], ":")
		parts = append(parts[:fields-1:fields-1], last)
	}
	return parts, true
}

func badRow(row string) error {
	return status.Errorf(codes.InvalidArgument, "failed to parse row `%s`", row)
}

func noStartTS() error {
	return status.Errorf(codes.InvalidArgument, "missing start timestamp")
}

// parseHex parses the leading parts of a row as hex numbers into dst.
func parseHex(row string, parts []string, dst ...*int64) error {
	if len(parts) < len(dst) {
		return badRow(row)
	}
	for idx, v := range dst {
		var err error
		if *v, err = strconv.ParseInt(parts[idx], 16, 64); err != nil {
			return badRow(row)
		}
	}
	return nil
}

func (p *Parser) parseStartTimestamp(row string, parts []string) error {
	if len(parts) != 2 {
		return badRow(row)
	}
	var zero int64
	if err := parseHex(row, parts, &zero, &p.startTimestamp); err != nil {
		return err
	}
	p.hasStartTimestamp = true
	return nil
}

func (p *Parser) parseSwitch(row string, parts []string) error {
	var ts, cpu, prevPID, prevState, nextPID int64
	if !p.hasStartTimestamp {
		return noStartTS()
	}
	if err := parseHex(row, parts, &ts, &cpu, &prevPID, &prevState, &nextPID); err != nil {
		return err
	}
	p.esb.WithEvent(sswitch, cpu, ts+p.startTimestamp,
		prevPID, p.comm(prevPID), prevState,
		nextPID, p.comm(nextPID))
	p.events++
	return nil
}

func (p *Parser) parsePIDInfo(row string, parts []string) error {
	var ts, pid, prio int64
	parts, ok := recombineParts(parts, 4)
	if !ok {
		return badRow(row)
	}
	if err := parseHex(row, parts, &ts, &pid, &prio); err != nil {
		return err
	}
	p.commByPid[pid] = parts[3]
	return nil
}

func (p *Parser) parseMigrate(row string, parts []string) error {
	var ts, cpu, origCPU, destCPU, pid int64
	if !p.hasStartTimestamp {
		return noStartTS()
	}
	if len(parts) != 5 {
		return badRow(row)
	}
	if err := parseHex(row, parts, &ts, &cpu, &origCPU, &destCPU, &pid); err != nil {
		return err
	}
	p.esb.WithEvent(smigrate, cpu, ts+p.startTimestamp,
		pid, p.comm(pid), origCPU, destCPU)
	p.events++
	return nil
}

func (p *Parser) parseWakeup(row string, parts []string) error {
	var ts, cpu, targetCPU, pid int64
	if !p.hasStartTimestamp {
		return noStartTS()
	}
	if len(parts) != 4 {
		return badRow(row)
	}
	if err := parseHex(row, parts, &ts, &cpu, &targetCPU, &pid); err != nil {
		return err
	}
	p.esb.WithEvent(swakeup, cpu, ts+p.startTimestamp,
		pid, p.comm(pid), targetCPU)
	p.events++
	return nil
}

func (p *Parser) parseRow(row string) error {
	if len(row) == 0 {
		return badRow(row)
	}
	parts := strings.Split(row, ":")
	rowType, parts := parts[0], parts[1:]
	switch rowType {
	case "ST":
		return p.parseStartTimestamp(row, parts)
	case "S":
		return p.parseSwitch(row, parts)
	case "P":
		return p.parsePIDInfo(row, parts)
	case "M":
		return p.parseMigrate(row, parts)
	case "W":
		return p.parseWakeup(row, parts)
	default:
		// Skip unparsable rows, such as bpftrace's banner.
		return nil
	}
}

// Parse parses a sched trace gathered with sched.bt.
func (p *Parser) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if err := p.parseRow(scanner.Text()); err != nil {
			return status.Errorf(status.Code(err), "at line %d, %s", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return status.Errorf(codes.Internal, "failed to read sched.bt output: %s", err)
	}
	return nil
}

// Load parses the sched.bt output read from r.
func Load(r io.Reader) (*trace.Collection, error) {
	p := NewParser()
	if err := p.Parse(r); err != nil {
		return nil, err
	}
	return p.Collection()
}

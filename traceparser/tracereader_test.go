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
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/schedwave/tracedata/trace"
)

const testIRQFormat = `
name: irq_handler_entry
ID: 10
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
	field:unsigned char common_flags;	offset:2;	size:1;	signed:0;
	field:unsigned char common_preempt_count;	offset:3;	size:1;	signed:0;
	field:int common_pid;	offset:4;	size:4;	signed:1;

	field:int irq;	offset:8;	size:4;	signed:1;
	field:__data_loc char[] name;	offset:12;	size:4;	signed:1;

print fmt: "irq=%d name=%s", REC->irq, __get_str(name)
`

const testSwitchFormat = `
name: sched_switch
ID: 11
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
	field:unsigned char common_flags;	offset:2;	size:1;	signed:0;
	field:unsigned char common_preempt_count;	offset:3;	size:1;	signed:0;
	field:int common_pid;	offset:4;	size:4;	signed:1;

	field:char prev_comm[16];	offset:8;	size:16;	signed:1;
	field:pid_t prev_pid;	offset:24;	size:4;	signed:1;
	field:long prev_state;	offset:32;	size:8;	signed:1;
	field:char next_comm[16];	offset:40;	size:16;	signed:1;
	field:pid_t next_pid;	offset:56;	size:4;	signed:1;

print fmt: "prev_comm=%s ==> next_comm=%s", REC->prev_comm, REC->next_comm
`

func testParser(t *testing.T) *TraceParser {
	t.Helper()
	tp, err := New(testHeaderFormat, []string{testIRQFormat, testSwitchFormat})
	if err != nil {
		t.Fatalf("New() yielded unexpected error %v", err)
	}
	tp.SetLittleEndian()
	return tp
}

// rbEvent encodes a ring buffer data event with the provided payload.
func rbEvent(delta uint32, payload []byte) []byte {
	for len(payload)%4 != 0 {
		payload = append(payload, 0)
	}
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, delta<<typeLenSize|uint32(len(payload)/4))
	buf.Write(payload)
	return buf.Bytes()
}

// rbTimeExtend encodes a ring buffer time extend event.
func rbTimeExtend(delta uint64) []byte {
	var buf bytes.Buffer
	low := uint32(delta & (1<<timeDeltaSize - 1))
	binary.Write(&buf, binary.LittleEndian, low<<typeLenSize|uint32(ringbufTypeTimeExtend))
	binary.Write(&buf, binary.LittleEndian, uint32(delta>>timeDeltaSize))
	return buf.Bytes()
}

// page assembles a full 4096 byte ring buffer page.
func page(timestamp uint64, events ...[]byte) []byte {
	data := bytes.Join(events, nil)
	p := make([]byte, 4096)
	binary.LittleEndian.PutUint64(p[0:], timestamp)
	binary.LittleEndian.PutUint64(p[8:], uint64(len(data)))
	copy(p[16:], data)
	return p
}

func irqPayload(irq int32, name string) []byte {
	p := make([]byte, 16)
	binary.LittleEndian.PutUint16(p[0:], 10)
	binary.LittleEndian.PutUint32(p[4:], 1234)
	binary.LittleEndian.PutUint32(p[8:], uint32(irq))
	binary.LittleEndian.PutUint16(p[12:], 16)
	binary.LittleEndian.PutUint16(p[14:], uint16(len(name)+1))
	return append(append(p, name...), 0)
}

func switchPayload(prevComm string, prevPid int32, prevState int64, nextComm string, nextPid int32) []byte {
	p := make([]byte, 60)
	binary.LittleEndian.PutUint16(p[0:], 11)
	copy(p[8:24], prevComm)
	binary.LittleEndian.PutUint32(p[24:], uint32(prevPid))
	binary.LittleEndian.PutUint64(p[32:], uint64(prevState))
	copy(p[40:56], nextComm)
	binary.LittleEndian.PutUint32(p[56:], uint32(nextPid))
	return p
}

func TestParseTrace(t *testing.T) {
	tp := testParser(t)
	raw := append(
		page(1000,
			rbEvent(10, irqPayload(17, "eth0")),
			rbTimeExtend(1<<30),
			rbEvent(5, switchPayload("swapper/0", 0, 0, "worker", 42))),
		page(1<<31,
			rbEvent(0, irqPayload(-1, "")))...)

	var got []*TraceEvent
	err := tp.ParseTrace(bytes.NewReader(raw), 3, func(ev *TraceEvent) (bool, error) {
		got = append(got, ev)
		return true, nil
	})
	if err != nil {
		t.Fatalf("ParseTrace() yielded unexpected error %v", err)
	}
	want := []*TraceEvent{{
		Timestamp: 1010,
		CPU:       3,
		FormatID:  10,
		Fields: []trace.Field{
			{Name: "irq", Type: trace.Signed, Int: 17},
			{Name: "name", Type: trace.String, Text: "eth0"},
		},
	}, {
		Timestamp: 1010 + 1<<30 + 5,
		CPU:       3,
		FormatID:  11,
		Fields: []trace.Field{
			{Name: "prev_comm", Type: trace.CharArray, Text: "swapper/0"},
			{Name: "prev_pid", Type: trace.Signed},
			{Name: "prev_state", Type: trace.Signed},
			{Name: "next_comm", Type: trace.CharArray, Text: "worker"},
			{Name: "next_pid", Type: trace.Signed, Int: 42},
		},
	}, {
		Timestamp: 1 << 31,
		CPU:       3,
		FormatID:  10,
		Fields: []trace.Field{
			{Name: "irq", Type: trace.Signed, Int: -1},
			{Name: "name", Type: trace.String},
		},
	}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseTrace() Diff -want +got:\n%s", diff)
	}
}

func TestParseTraceStopsOnCallback(t *testing.T) {
	tp := testParser(t)
	raw := page(0,
		rbEvent(1, irqPayload(1, "a")),
		rbEvent(1, irqPayload(2, "b")))
	count := 0
	err := tp.ParseTrace(bytes.NewReader(raw), 0, func(ev *TraceEvent) (bool, error) {
		count++
		return false, nil
	})
	if err != nil {
		t.Fatalf("ParseTrace() yielded unexpected error %v", err)
	}
	if count != 1 {
		t.Errorf("callback was called %d times, want 1", count)
	}
}

func TestParseTraceUnknownFormat(t *testing.T) {
	tp := testParser(t)
	payload := irqPayload(1, "a")
	binary.LittleEndian.PutUint16(payload, 99)
	raw := page(0, rbEvent(1, payload))
	err := tp.ParseTrace(bytes.NewReader(raw), 0, func(ev *TraceEvent) (bool, error) {
		return true, nil
	})
	if err == nil {
		t.Errorf("ParseTrace() of an event with an unknown format returned no error")
	}
}

func TestSignExtension(t *testing.T) {
	tests := []struct {
		size uint64
		data []byte
		want int64
	}{
		{1, []byte{0xff}, -1},
		{2, []byte{0xfe, 0xff}, -2},
		{4, []byte{0x00, 0x00, 0x00, 0x80}, -2147483648},
		{8, []byte{1, 0, 0, 0, 0, 0, 0, 0}, 1},
	}
	for _, test := range tests {
		ev := NewTraceEvent(0)
		field := &FormatField{Name: "v", Type: trace.Signed, Size: test.size}
		if err := ev.SaveFieldValue(field, test.data, binary.LittleEndian); err != nil {
			t.Fatalf("SaveFieldValue() yielded unexpected error %v", err)
		}
		if got := ev.Fields[0].Int; got != test.want {
			t.Errorf("SaveFieldValue(% x) = %d, want %d", test.data, got, test.want)
		}
	}
}

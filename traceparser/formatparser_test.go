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
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/google/schedwave/tracedata/trace"
)

const testHeaderFormat = `
Header:
	field: u64 timestamp;	offset:0;	size:8;	signed:0;
	field: local_t commit;	offset:8;	size:8;	signed:1;
	field: int overwrite;	offset:8;	size:1;	signed:1;
	field: char data;	offset:16;	size:4080;	signed:1;
`

func TestParseFormat(t *testing.T) {
	formats := []string{`
name: sched_switch
ID: 314
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
	field:unsigned char common_flags;	offset:2;	size:1;	signed:0;

	field:char prev_comm[16];	offset:8;	size:16;	signed:1;
	field:pid_t prev_pid;	offset:24;	size:4;	signed:1;

print fmt: "prev_comm=%s prev_pid=%d", REC->prev_comm, REC->prev_pid
`,
		`
name: irq_handler_entry
ID: 1942
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;
	field:unsigned char common_flags;	offset:2;	size:1;	signed:0;
	field:unsigned char common_preempt_count;	offset:3;	size:1;	signed:0;
	field:int common_pid;	offset:4;	size:4;	signed:1;

	field:int irq;	offset:8;	size:4;	signed:1;
	field:__data_loc char[] name;	offset:12;	size:4;	signed:1;

print fmt: "irq=%d name=%s", REC->irq, __get_str(name)
`}

	want := &TraceParser{
		HeaderFormat: Format{
			Fields: []*FormatField{
				{FieldType: "u64 timestamp", Name: "timestamp", Type: trace.Unsigned, Offset: 0, Size: 8, NumElements: 1, ElementSize: 8},
				{FieldType: "local_t commit", Name: "commit", Type: trace.Signed, Offset: 8, Size: 8, NumElements: 1, ElementSize: 8, Signed: true},
				{FieldType: "int overwrite", Name: "overwrite", Type: trace.Signed, Offset: 8, Size: 1, NumElements: 1, ElementSize: 1, Signed: true},
				{FieldType: "char data", Name: "data", Type: trace.Unsupported, Offset: 16, Size: 4080, NumElements: 1, ElementSize: 4080, Signed: true},
			},
		},
		Formats: map[uint16]*EventFormat{
			314: {
				Name: "sched_switch",
				ID:   314,
				Format: Format{
					CommonFields: []*FormatField{
						{FieldType: "unsigned short common_type", Name: "common_type", Type: trace.Unsigned, Offset: 0, Size: 2, NumElements: 1, ElementSize: 2},
						{FieldType: "unsigned char common_flags", Name: "common_flags", Type: trace.Unsigned, Offset: 2, Size: 1, NumElements: 1, ElementSize: 1},
					},
					Fields: []*FormatField{
						{FieldType: "char prev_comm[16]", Name: "prev_comm", Type: trace.CharArray, Offset: 8, Size: 16, NumElements: 16, ElementSize: 1, Signed: true},
						{FieldType: "pid_t prev_pid", Name: "prev_pid", Type: trace.Signed, Offset: 24, Size: 4, NumElements: 1, ElementSize: 4, Signed: true},
					},
				},
			},
			1942: {
				Name: "irq_handler_entry",
				ID:   1942,
				Format: Format{
					CommonFields: []*FormatField{
						{FieldType: "unsigned short common_type", Name: "common_type", Type: trace.Unsigned, Offset: 0, Size: 2, NumElements: 1, ElementSize: 2},
						{FieldType: "unsigned char common_flags", Name: "common_flags", Type: trace.Unsigned, Offset: 2, Size: 1, NumElements: 1, ElementSize: 1},
						{FieldType: "unsigned char common_preempt_count", Name: "common_preempt_count", Type: trace.Unsigned, Offset: 3, Size: 1, NumElements: 1, ElementSize: 1},
						{FieldType: "int common_pid", Name: "common_pid", Type: trace.Signed, Offset: 4, Size: 4, NumElements: 1, ElementSize: 4, Signed: true},
					},
					Fields: []*FormatField{
						{FieldType: "int irq", Name: "irq", Type: trace.Signed, Offset: 8, Size: 4, NumElements: 1, ElementSize: 4, Signed: true},
						{FieldType: "__data_loc char[] name", Name: "name", Type: trace.String, Offset: 12, Size: 4, NumElements: 1, ElementSize: 4, Signed: true, IsDynamicArray: true},
					},
				},
			},
		},
	}

	got, err := New(testHeaderFormat, formats)
	if err != nil {
		t.Fatalf("Error in traceparser.New(): %s", err)
	}
	got.Endianness = nil

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("TestParseFormat: Diff -want +got:\n%s", diff)
	}
}

func TestParseFormatDuplicateID(t *testing.T) {
	format := `
name: %s
ID: 7
format:
	field:unsigned short common_type;	offset:0;	size:2;	signed:0;

	field:int vec;	offset:8;	size:4;	signed:1;

print fmt: "vec=%%d", REC->vec
`
	if _, err := New(testHeaderFormat, []string{fmt.Sprintf(format, "softirq_entry"), fmt.Sprintf(format, "softirq_exit")}); err == nil {
		t.Errorf("New() with two formats sharing an ID returned no error")
	}
}

func TestParseHeaderMissingField(t *testing.T) {
	header := `
	field: u64 timestamp;	offset:0;	size:8;	signed:0;
`
	if _, err := parseHeaderFormat(header); err == nil {
		t.Errorf("parseHeaderFormat() without commit and data fields returned no error")
	}
}

func TestFieldParsing(t *testing.T) {
	tests := []struct {
		in      string
		out     FormatField
		wantErr string
	}{
		{
			in:  "	field: void * alarm;	offset:0;	size:8;	signed:0;",
			out: FormatField{FieldType: "void * alarm", Name: "alarm", Type: trace.Unsigned, Offset: 0, Size: 8, NumElements: 1, ElementSize: 8},
		},
		{
			in:  "	field: const void * ptr;	offset:16;	size:8;	signed:0;",
			out: FormatField{FieldType: "const void * ptr", Name: "ptr", Type: trace.Unsigned, Offset: 16, Size: 8, NumElements: 1, ElementSize: 8},
		},
		{
			in:  "	field: char comm[16];	offset:0;	size:16;	signed:0;",
			out: FormatField{FieldType: "char comm[16]", Name: "comm", Type: trace.CharArray, Offset: 0, Size: 16, NumElements: 16, ElementSize: 1},
		},
		{
			in:  "	field: __data_loc char[] dev;	offset:0;	size:4;	signed:0;",
			out: FormatField{FieldType: "__data_loc char[] dev", Name: "dev", Type: trace.String, Offset: 0, Size: 4, NumElements: 1, ElementSize: 4, IsDynamicArray: true},
		},
		{
			in:  "	field: __data_loc u32[] cpus;	offset:0;	size:4;	signed:0;",
			out: FormatField{FieldType: "__data_loc u32[] cpus", Name: "cpus", Type: trace.Unsupported, Offset: 0, Size: 4, NumElements: 1, ElementSize: 4, IsDynamicArray: true},
		},
		{
			in:  "	field: s64 now;	offset:0;	size:8;	signed:1;",
			out: FormatField{FieldType: "s64 now", Name: "now", Type: trace.Signed, Offset: 0, Size: 8, NumElements: 1, ElementSize: 8, Signed: true},
		},
		{
			// No signed attribute on old kernels.
			in:  "	field: unsigned long call_site;	offset:8;	size:8;",
			out: FormatField{FieldType: "unsigned long call_site", Name: "call_site", Type: trace.Unsigned, Offset: 8, Size: 8, NumElements: 1, ElementSize: 8},
		},
		{
			in:  "	field: int ret;	offset:8;	size:4;",
			out: FormatField{FieldType: "int ret", Name: "ret", Type: trace.Signed, Offset: 8, Size: 4, NumElements: 1, ElementSize: 4, Signed: true},
		},
		{
			in:  "	field: __u8 saddr_v6[16];	offset:0;	size:16;	signed:0;",
			out: FormatField{FieldType: "__u8 saddr_v6[16]", Name: "saddr_v6", Type: trace.Unsupported, Offset: 0, Size: 16, NumElements: 16, ElementSize: 1},
		},
		{
			in:  "	field: struct dbc_request * req;	offset:0;	size:16;	signed:0;",
			out: FormatField{FieldType: "struct dbc_request * req", Name: "req", Type: trace.Unsupported, Offset: 0, Size: 16, NumElements: 1, ElementSize: 16},
		},
		{
			in:      "	field: abc def hgijk lmnop;	offset:0;	size:128;	signed:0;",
			wantErr: "\"abc def hgijk lmnop\" does not appear to be a C declaration expression",
		},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("TestFieldParsing Case: %d", i), func(t *testing.T) {
			field, err := parseField(test.in)
			if err != nil {
				if test.wantErr != "" {
					if diff := cmp.Diff(test.wantErr, err.Error()); diff != "" {
						t.Fatalf("Input: %s\nDiff -want +got:\n%s", test.in, diff)
					}
					return
				}
				t.Fatal(err)
			}
			if test.wantErr != "" {
				t.Fatalf("Input: %s\nparseField() = %v, want error %q", test.in, field, test.wantErr)
			}

			if diff := cmp.Diff(test.out, *field); diff != "" {
				t.Fatalf("Input: %s\nDiff -want +got:\n%s", test.in, diff)
			}
		})
	}
}

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

	"github.com/pkg/errors"

	"github.com/google/schedwave/tracedata/trace"
)

// TraceEvent holds a single trace event as unmarshalled from the raw binary trace output
type TraceEvent struct {
	// The timestamp in the trace of this event.
	Timestamp uint64
	// The CPU that this event was recorded on
	CPU int64
	// The Format ID of this event. Should be an event ID defined in a loaded format file.
	FormatID uint16
	// The event specific fields, in format order.
	Fields []trace.Field
}

// NewTraceEvent creates a new TraceEvent
func NewTraceEvent(cpu int64) *TraceEvent {
	return &TraceEvent{
		CPU: cpu,
	}
}

// SaveFieldValue decodes the bytes of field out of eventData and appends
// the result to the TraceEvent's fields.  Fields that cannot be represented
// are appended as trace.Unsupported so that the failure surfaces when, and
// only if, a handler reads them.
func (t *TraceEvent) SaveFieldValue(field *FormatField, eventData []byte, endianness binary.ByteOrder) error {
	end := field.Offset + field.Size
	if end > uint64(len(eventData)) {
		return errors.Errorf("field %s (offset %d, size %d) overflows a %d byte event", field.Name, field.Offset, field.Size, len(eventData))
	}
	buf := eventData[field.Offset:end]
	f := trace.Field{Name: field.Name, Type: field.Type}

	switch field.Type {
	case trace.Signed, trace.Unsigned:
		u, err := readUint(buf, endianness)
		if err != nil {
			return errors.Wrapf(err, "field %s", field.Name)
		}
		if field.Type == trace.Signed {
			// Sign extend from the field width.
			shift := 64 - 8*uint(len(buf))
			f.Int = int64(u<<shift) >> shift
		} else {
			f.Uint = u
		}
	case trace.CharArray:
		f.Text = cString(buf)
	case trace.String:
		offset := uint64(endianness.Uint16(buf[:2]))
		length := uint64(endianness.Uint16(buf[2:4]))
		if offset+length > uint64(len(eventData)) {
			return errors.Errorf("dynamic array %s (offset %d, length %d) overflows a %d byte event", field.Name, offset, length, len(eventData))
		}
		f.Text = cString(eventData[offset : offset+length])
	}
	t.Fields = append(t.Fields, f)
	return nil
}

func readUint(buf []byte, endianness binary.ByteOrder) (uint64, error) {
	switch len(buf) {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(endianness.Uint16(buf)), nil
	case 4:
		return uint64(endianness.Uint32(buf)), nil
	case 8:
		return endianness.Uint64(buf), nil
	default:
		return 0, errors.Errorf("unsupported integer size %d", len(buf))
	}
}

// cString returns buf up to its first NUL byte.
func cString(buf []byte) string {
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf)
}

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

// tracereader contains methods for reading binary trace data

import (
	"encoding/binary"
	"io"
	"unsafe"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
)

// TraceParser decodes raw per-CPU ring buffer dumps using the header page
// and event formats exported by TraceFS.
type TraceParser struct {
	HeaderFormat Format
	Formats      map[uint16]*EventFormat
	Endianness   binary.ByteOrder
}

// New builds a TraceParser from the contents of the header_page file and of
// every events/<system>/<event>/format file.
func New(headerFormat string, formats []string) (*TraceParser, error) {
	header, err := parseHeaderFormat(headerFormat)
	if err != nil {
		return nil, errors.Wrap(err, "header_page")
	}
	evtFormats, err := parseRegularFormats(formats)
	if err != nil {
		return nil, err
	}
	tp := &TraceParser{
		HeaderFormat: *header,
		Formats:      evtFormats,
	}
	if err := tp.SetNativeEndian(); err != nil {
		return nil, err
	}
	return tp, nil
}

// SetNativeEndian makes the TraceParser parse binary data in the native endian byte order
// of this machine. Currently only little endian is supported.
func (tp *TraceParser) SetNativeEndian() error {
	buf := [2]byte{}
	*(*uint16)(unsafe.Pointer(&buf[0])) = uint16(0xABCD)

	switch buf {
	case [2]byte{0xCD, 0xAB}:
		tp.Endianness = binary.LittleEndian
	case [2]byte{0xAB, 0xCD}:
		tp.Endianness = binary.BigEndian
	default:
		return errors.New("could not determine native endianness")
	}
	return nil
}

// SetLittleEndian makes the TraceParser parse binary data in the little endian byte order
func (tp *TraceParser) SetLittleEndian() {
	tp.Endianness = binary.LittleEndian
}

// ParseTrace reads raw ring buffer pages for the provided CPU out of reader,
// and calls callback with each decoded data event.  If the callback returns
// false or a non-nil error, ParseTrace returns.  If an error is returned by
// ParseTrace, the raw trace should be considered to be corrupted.
func (tp *TraceParser) ParseTrace(reader io.Reader, cpu int64, callback func(*TraceEvent) (bool, error)) error {
	if tp.Endianness == nil {
		if err := tp.SetNativeEndian(); err != nil {
			return err
		}
	}
	if tp.Endianness != binary.LittleEndian {
		return errors.New("big endian traces are not supported")
	}
	layout, err := newPageLayout(&tp.HeaderFormat)
	if err != nil {
		return err
	}

	page := make([]byte, layout.pageSize())
	for pageNum := 0; ; pageNum++ {
		if _, err := io.ReadFull(reader, page); err != nil {
			if err == io.EOF {
				return nil
			}
			if err == io.ErrUnexpectedEOF {
				log.Warningf("cpu%d: ignoring truncated page %d", cpu, pageNum)
				return nil
			}
			return errors.Wrapf(err, "cpu%d: failed to read page %d", cpu, pageNum)
		}
		pageHeader, err := layout.header(page, tp.Endianness)
		if err != nil {
			return errors.Wrapf(err, "cpu%d: page %d", cpu, pageNum)
		}
		data := page[layout.data.Offset : layout.data.Offset+pageHeader.Size()]
		cont, err := tp.parsePage(data, pageHeader.Timestamp, cpu, callback)
		if err != nil {
			return errors.Wrapf(err, "cpu%d: page %d", cpu, pageNum)
		}
		if !cont {
			return nil
		}
	}
}

func (tp *TraceParser) parsePage(page []byte, timeStamp uint64, cpu int64, callback func(*TraceEvent) (bool, error)) (bool, error) {
	// readEvent() advances the page start pointer, so stop when there can't be anything
	// contained in what's left
	for len(page) >= ringBufferEventHeaderSize {
		rbEvent, ok, err := tp.readEvent(&page)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}

		switch typeLen := rbEvent.TypeLen(); {
		case typeLen == ringbufTypeTimeExtend:
			delta, err := rbEvent.ExtendedTime()
			if err != nil {
				return false, err
			}
			timeStamp += delta
			continue
		case typeLen == ringbufTypeTimeStamp:
			// Sync time stamp with external clock.
			if timeStamp, err = rbEvent.ExtendedTime(); err != nil {
				return false, err
			}
			continue
		case typeLen >= ringbufTypePadding:
			continue
		}

		timeStamp += uint64(rbEvent.TimeDelta())
		eventData := rbEvent.Data()
		if len(eventData) < 2 {
			return false, errors.New("event too short to hold its format ID")
		}

		// The format ID is the first two bytes in eventData
		id := tp.Endianness.Uint16(eventData)
		evtFmt := tp.Formats[id]
		if evtFmt == nil {
			return false, errors.Errorf("no format found with id: %d", id)
		}

		traceEvent := NewTraceEvent(cpu)
		traceEvent.FormatID = id
		traceEvent.Timestamp = timeStamp
		for _, field := range evtFmt.Format.Fields {
			if err := traceEvent.SaveFieldValue(field, eventData, tp.Endianness); err != nil {
				return false, errors.Wrapf(err, "event %s", evtFmt.Name)
			}
		}

		if cont, err := callback(traceEvent); !cont || err != nil {
			return false, err
		}
	}
	return true, nil
}

// readEvent slices the next ring buffer event off the front of buf.  ok is
// false once only padding is left.
func (tp *TraceParser) readEvent(buf *[]byte) (rbEvent ringBufferEvent, ok bool, err error) {
	if len(*buf) < ringBufferEventHeaderSize {
		return ringBufferEvent{}, false, errors.Errorf("not enough bytes to contain ring buffer event header. got: %d, want: %d", len(*buf), ringBufferEventHeaderSize)
	}

	bitfield := tp.Endianness.Uint32((*buf)[:4])
	rest := (*buf)[4:]
	eventLength, ok, err := length(bitfield, rest, tp.Endianness)
	if err != nil || !ok {
		return ringBufferEvent{}, false, err
	}
	if uint32(len(rest)) < eventLength {
		return ringBufferEvent{}, false, errors.Errorf("not enough bytes to contain ring buffer data. got: %d, want: %d", len(rest), eventLength)
	}

	*buf = rest[eventLength:]
	return ringBufferEvent{Bitfield: bitfield, Array: rest[:eventLength], endianness: tp.Endianness}, true, nil
}

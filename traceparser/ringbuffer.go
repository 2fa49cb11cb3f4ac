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
	"encoding/binary"

	"github.com/pkg/errors"
)

/**
 * #################################################################################################
 * #                                        ringBufferEvent                                        #
 * #################################################################################################
 */

// ringBufferType is an enum of internal ring buffer types
type ringBufferType uint8

const (
	// ringbufTypeDataTypeLenMax (0 <= type_len <= 28)
	//      Data record
	//      If type_len is zero:
	//        array[0] holds the actual length
	//        array[1..(length+3)/4] holds data
	//      else
	//        length = type_len << 2
	//        array[0..(length+3)/4-1] holds data
	ringbufTypeDataTypeLenMax ringBufferType = 28
	// ringbufTypePadding Left over page padding or discarded event
	//      If time_delta is 0, the rest of the page is padding.
	//      Otherwise array[0] holds the actual length.
	ringbufTypePadding ringBufferType = 29
	// ringbufTypeTimeExtend Extend the time delta
	//      event.time_delta contains bottom 27 bits
	//      array[0] = top (28 .. 59) bits of the time_delta
	ringbufTypeTimeExtend ringBufferType = 30
	// ringbufTypeTimeStamp Absolute timestamp, same layout as TIME_EXTEND.
	ringbufTypeTimeStamp ringBufferType = 31
)

const (
	// typeLenSize is the size in bits of the type_len field in a ring buffer event header
	typeLenSize = 5
	// timeDeltaSize is the size in bits of the time_delta field in a ring buffer event header
	timeDeltaSize = 27
	// ringBufferEventHeaderSize is the size in bytes of the event header minus its array.
	ringBufferEventHeaderSize = (typeLenSize + timeDeltaSize) / 8
	// ringBufferTimeLength is the size of ringbufTypeTimeExtend and ringbufTypeTimeStamp events.
	ringBufferTimeLength = 8
)

// ringBufferEvent contains:
// type_len : 5 bits
// time_delta : 27 bits (relative to the previous event, or the page timestamp)
// array : variable length. See ringBufferType's docs for details
type ringBufferEvent struct {
	Bitfield   uint32
	Array      []byte
	endianness binary.ByteOrder
}

// TypeLen returns the type_len field: the event type for type_len 0 and
// above 28, the data length in 32-bit words otherwise.  Only little endian
// bitfields are supported.
func (r *ringBufferEvent) TypeLen() ringBufferType {
	return ringBufferType(r.Bitfield & ((1 << typeLenSize) - 1))
}

// TimeDelta returns the time_delta field of a ringBufferEvent
func (r *ringBufferEvent) TimeDelta() uint32 {
	return r.Bitfield >> typeLenSize
}

// ExtendedTime returns the full time delta (ringbufTypeTimeExtend) or the
// absolute timestamp (ringbufTypeTimeStamp) carried by the event: the first
// array word shifted above the 27 time_delta bits.
func (r *ringBufferEvent) ExtendedTime() (uint64, error) {
	if t := r.TypeLen(); t != ringbufTypeTimeExtend && t != ringbufTypeTimeStamp {
		return 0, errors.Errorf("ring buffer event of type %d carries no extended time", t)
	}
	if len(r.Array) < 4 {
		return 0, errors.New("truncated time extend event")
	}
	ext := uint64(r.endianness.Uint32(r.Array))
	return ext<<timeDeltaSize + uint64(r.TimeDelta()), nil
}

// Data returns the payload of a data event.
func (r *ringBufferEvent) Data() []byte {
	if r.TypeLen() > 0 {
		return r.Array
	}
	// array[0] is the length word.
	if len(r.Array) < 4 {
		return nil
	}
	return r.Array[4:]
}

// length computes the size of the array following the header, which varies
// based on the value of type_len.  ok is false for the padding that fills
// the remainder of a page.
func length(bitfield uint32, rest []byte, endianness binary.ByteOrder) (n uint32, ok bool, err error) {
	r := ringBufferEvent{Bitfield: bitfield, endianness: endianness}
	switch t := r.TypeLen(); {
	case t == ringbufTypePadding:
		if r.TimeDelta() == 0 {
			return 0, false, nil
		}
		fallthrough
	case t == 0:
		if len(rest) < 4 {
			return 0, false, errors.New("not enough bytes to contain ring buffer event length")
		}
		return endianness.Uint32(rest), true, nil
	case t == ringbufTypeTimeExtend || t == ringbufTypeTimeStamp:
		return ringBufferTimeLength - ringBufferEventHeaderSize, true, nil
	case t <= ringbufTypeDataTypeLenMax:
		return uint32(t) << 2, true, nil
	default:
		return 0, false, errors.Errorf("unknown ring buffer type: %d", t)
	}
}

/**
 * #################################################################################################
 * #                                      ringBufferPageHeader                                     #
 * #################################################################################################
 */

// pageLayout is derived from the header_page format file: it locates the
// page timestamp, the commit word and the event data within a page.
type pageLayout struct {
	timestamp *FormatField
	commit    *FormatField
	data      *FormatField
}

func newPageLayout(header *Format) (pageLayout, error) {
	l := pageLayout{
		timestamp: header.FieldByName("timestamp"),
		commit:    header.FieldByName("commit"),
		data:      header.FieldByName("data"),
	}
	if l.timestamp == nil || l.commit == nil || l.data == nil {
		return pageLayout{}, errors.New("header format must describe timestamp, commit and data")
	}
	if l.commit.Size != 4 && l.commit.Size != 8 {
		return pageLayout{}, errors.Errorf("unsupported page commit size %d", l.commit.Size)
	}
	return l, nil
}

// pageSize is the size in bytes of a whole ring buffer page on disk.
func (l pageLayout) pageSize() uint64 {
	return l.data.Offset + l.data.Size
}

// ringBufferPageHeader is the decoded header of a page.
type ringBufferPageHeader struct {
	// The base timestamp of this page. Time Deltas in events are relative to this.
	Timestamp uint64
	// The low 20 bits of Commit are the size of the page data; the top bits
	// carry flags such as missed events.
	Commit uint64
}

// Size returns the size in bytes of the data contained in this page
func (h ringBufferPageHeader) Size() uint64 {
	// See https://lkml.org/lkml/2019/5/23/1623
	return h.Commit & 0xfffff
}

func (l pageLayout) header(page []byte, endianness binary.ByteOrder) (ringBufferPageHeader, error) {
	var h ringBufferPageHeader
	var err error
	if h.Timestamp, err = readUint(page[l.timestamp.Offset:l.timestamp.Offset+l.timestamp.Size], endianness); err != nil {
		return h, errors.Wrap(err, "page timestamp")
	}
	if h.Commit, err = readUint(page[l.commit.Offset:l.commit.Offset+l.commit.Size], endianness); err != nil {
		return h, errors.Wrap(err, "page commit")
	}
	if h.Size() > l.data.Size {
		return h, errors.Errorf("page commits %d bytes, but pages only hold %d", h.Size(), l.data.Size)
	}
	return h, nil
}

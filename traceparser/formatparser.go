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

// formatparser contains a parser for TraceFS format files

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/google/schedwave/tracedata/trace"
)

var (
	nameRe     = regexp.MustCompile(`name:[ \t]*(\w+)`)
	idRe       = regexp.MustCompile(`ID:[ \t]*(\d+)`)
	fieldRe    = regexp.MustCompile(`field:[ \t]*([^;]+);[ \t]*offset:[ \t]*(\d+);[ \t]*size:[ \t]*(\d+);[ \t]*(?:signed:[ \t]*(\d+);)?`)
	typeRe     = regexp.MustCompile(`^((?:\w+\s+)??\w+(?:\s*\*+)?(?:\s*\[\s*\])?)\s+\**\s*(\w+)\s*(?:\[\s*(\d+)\s*\])?$`)
	charRe     = regexp.MustCompile(`\bchar\b`)
	dynArrRe   = regexp.MustCompile(`^__data_loc\b`)
	unsignedRe = regexp.MustCompile(`^(?:const\s+)?(?:unsigned\b|u8\b|u16\b|u32\b|u64\b|__u\d+\b|size_t\b|gfp_t\b|bool\b)|\*`)
)

type parseState int

const (
	findName parseState = iota
	findID
	findFormat
	findCommonField
	findField
	done
)

// formatFileParser walks one format file line by line.
// format files look like this:
/**
name: some_name
ID: 123
format:
	field: C Type;	offset: 0;	size: 123;	signed: 0; <-- These are the common fields
	... (more fields)
BLANK LINE
	field: C Type;	offset: 0;	size: 123;	signed: 0; <-- These are the event specific fields
	... (more fields)
BLANK LINE
print fmt: C String, printf format parameters <-- Essentially arguments to C's printf()
*/
type formatFileParser struct {
	state  parseState
	evtFmt *EventFormat
}

func (p *formatFileParser) line(line string) error {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		switch p.state {
		case findCommonField:
			// The blank line separates common fields from event fields.
			p.state = findField
		case findField:
			if len(p.evtFmt.Format.Fields) > 0 {
				p.state = done
			}
		}
		return nil
	}
	switch p.state {
	case findName:
		name, err := parseName(line)
		if err != nil {
			return err
		}
		p.evtFmt.Name = name
		p.state = findID
	case findID:
		id, err := parseID(line)
		if err != nil {
			return err
		}
		p.evtFmt.ID = id
		p.state = findFormat
	case findFormat:
		if trimmed != "format:" {
			return errors.Errorf("expected \"format:\", but got %q instead", line)
		}
		p.state = findCommonField
	case findCommonField, findField:
		field, err := parseField(line)
		if err != nil {
			// Old kernels have no blank line before "print fmt:".
			p.state = done
			return nil
		}
		if p.state == findCommonField {
			p.evtFmt.Format.CommonFields = append(p.evtFmt.Format.CommonFields, field)
		} else {
			p.evtFmt.Format.Fields = append(p.evtFmt.Format.Fields, field)
		}
	}
	return nil
}

// parseRegularFormats parses TraceFS Formats into an EventFormat structs.
// formatFiles is list of contents of format files.
// This function returns a map from event type to EventFormat structs.
func parseRegularFormats(formatFiles []string) (map[uint16]*EventFormat, error) {
	var ret = make(map[uint16]*EventFormat, len(formatFiles))

	for _, formatFileContent := range formatFiles {
		p := &formatFileParser{state: findName, evtFmt: &EventFormat{}}
		scanner := bufio.NewScanner(strings.NewReader(formatFileContent))
		for scanner.Scan() && p.state != done {
			if err := p.line(scanner.Text()); err != nil {
				return nil, err
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrap(err, "unable to read format")
		}
		if p.state < findCommonField {
			return nil, errors.Errorf("truncated format for event %q", p.evtFmt.Name)
		}
		if prev, ok := ret[p.evtFmt.ID]; ok {
			return nil, errors.Errorf("events %q and %q share ID %d", prev.Name, p.evtFmt.Name, p.evtFmt.ID)
		}
		ret[p.evtFmt.ID] = p.evtFmt
	}

	return ret, nil
}

// parseHeaderFormat parses the header_page TraceFS format file into an format struct.
// Header format files look like this:
/**
Header:
	field: C Type;	offset: 0;	size: 123;	signed: 0;
	... (more fields)
*/
func parseHeaderFormat(headerFileContent string) (*Format, error) {
	scanner := bufio.NewScanner(strings.NewReader(headerFileContent))
	ret := Format{}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == "Header:" {
			continue
		}

		newField, err := parseField(line)
		if err != nil {
			return nil, err
		}
		ret.Fields = append(ret.Fields, newField)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read header format file")
	}

	for _, name := range []string{"timestamp", "commit", "data"} {
		if ret.FieldByName(name) == nil {
			return nil, errors.Errorf("header format has no %q field", name)
		}
	}
	return &ret, nil
}

func parseName(line string) (string, error) {
	matches := nameRe.FindStringSubmatch(line)
	if matches == nil {
		return "", errors.Errorf("unexpected string %q", line)
	}
	return matches[1], nil
}

func parseID(line string) (uint16, error) {
	matches := idRe.FindStringSubmatch(line)
	if matches == nil {
		return 0, errors.Errorf("unexpected string %q", line)
	}
	id, err := strconv.ParseUint(matches[1], 10, 16)
	if err != nil {
		return 0, errors.Wrap(err, "error parsing ID")
	}
	return uint16(id), nil
}

func parseField(line string) (*FormatField, error) {
	matches := fieldRe.FindStringSubmatch(line)
	if matches == nil {
		return nil, errors.Errorf("unexpected string %q", line)
	}

	size, err := strconv.ParseUint(matches[3], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "error parsing size for field")
	}

	field, err := constructFormatField(strings.TrimSpace(matches[1]), size)
	if err != nil {
		return nil, err
	}

	field.Offset, err = strconv.ParseUint(matches[2], 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing offset for field %s", field.Name)
	}

	// Some kernels don't have signed in their field formats.
	if matches[4] != "" {
		signed, err := strconv.ParseUint(matches[4], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "error parsing signed for field %s", field.Name)
		}
		field.Signed = signed != 0
	} else {
		field.Signed = !unsignedRe.MatchString(field.FieldType)
	}
	field.Type = fieldType(field)

	return field, nil
}

func constructFormatField(fieldType string, size uint64) (*FormatField, error) {
	field := &FormatField{FieldType: fieldType, Size: size}
	matches := typeRe.FindStringSubmatch(fieldType)
	if matches == nil {
		return nil, errors.Errorf("%q does not appear to be a C declaration expression", fieldType)
	}
	field.Name = matches[2]
	field.IsDynamicArray = dynArrRe.MatchString(matches[1])

	field.NumElements = 1
	field.ElementSize = size
	if matches[3] != "" {
		numElems, err := strconv.ParseUint(matches[3], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse numElems for field %s", field.Name)
		}
		if numElems == 0 {
			return nil, errors.Errorf("field %q is a zero length array, which is not valid", fieldType)
		}
		field.NumElements = numElems
		field.ElementSize = size / numElems
	}
	return field, nil
}

// fieldType decides how a field is exposed.  Single byte char fields are
// often used as bitfields and are treated as integers.
func fieldType(field *FormatField) trace.FieldType {
	isChar := charRe.MatchString(field.FieldType)
	switch {
	case field.IsDynamicArray:
		if isChar && field.Size == 4 {
			return trace.String
		}
		return trace.Unsupported
	case field.NumElements > 1:
		if isChar && field.ElementSize == 1 {
			return trace.CharArray
		}
		return trace.Unsupported
	}
	switch field.Size {
	case 1, 2, 4, 8:
		if field.Signed {
			return trace.Signed
		}
		return trace.Unsigned
	}
	return trace.Unsupported
}

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
// Package eventsetbuilder provides utilities for programmatically assembling
// tracepoint collections as trace.Collections.
package eventsetbuilder

import (
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/google/schedwave/tracedata/trace"
	tp "github.com/google/schedwave/traceparser"
)

// PropertyDescriptor describes a single property in an event descriptor.
type PropertyDescriptor struct {
	name string
	t    trace.FieldType
}

// Number returns a signed-integer PropertyDescriptor with the provided name.
func Number(name string) PropertyDescriptor {
	return PropertyDescriptor{name: name, t: trace.Signed}
}

// Unsigned returns an unsigned-integer PropertyDescriptor with the provided
// name.
func Unsigned(name string) PropertyDescriptor {
	return PropertyDescriptor{name: name, t: trace.Unsigned}
}

// Text returns a string-type PropertyDescriptor with the provided name.
func Text(name string) PropertyDescriptor {
	return PropertyDescriptor{name: name, t: trace.String}
}

// CharArray returns a fixed size char array PropertyDescriptor with the
// provided name.
func CharArray(name string) PropertyDescriptor {
	return PropertyDescriptor{name: name, t: trace.CharArray}
}

// Opaque returns a PropertyDescriptor whose type cannot be decoded.
func Opaque(name string) PropertyDescriptor {
	return PropertyDescriptor{name: name, t: trace.Unsupported}
}

// Builder allows successive programmatic assembly of new event collections.
// Construct collections by creating a Builder (NewBuilder), then adding event
// descriptors (WithEventDescriptor) and events (WithEvent) to it.  Then, in
// test, call TestCollection() on the builder, passing it the test object, to
// get its Collection.
type Builder struct {
	esb                *tp.EventSetBuilder
	eventFormatsByName map[string]*tp.EventFormat
	errs               []error
}

// NewBuilder constructs and returns a new, empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		esb:                tp.NewEventSetBuilder(nil),
		eventFormatsByName: make(map[string]*tp.EventFormat),
	}
}

// Clone returns a cloned copy of the receiver.
func (b *Builder) Clone() *Builder {
	newB := &Builder{
		esb:                b.esb.Clone(),
		eventFormatsByName: make(map[string]*tp.EventFormat, len(b.eventFormatsByName)),
		errs:               append([]error(nil), b.errs...),
	}
	for k, v := range b.eventFormatsByName {
		newB.eventFormatsByName[k] = v
	}
	return newB
}

// WithEventDescriptor adds the provided event descriptor (a name and a series
// of PropertyDescriptors) to the receiving Builder, returning that
// Builder to facilitate chaining.
func (b *Builder) WithEventDescriptor(name string, propertyDescriptors ...PropertyDescriptor) *Builder {
	if _, ok := b.eventFormatsByName[name]; ok {
		b.errs = append(b.errs, errors.Errorf("duplicate event descriptor %s", name))
		return b
	}
	eventFormat := &tp.EventFormat{
		Name: name,
		ID:   uint16(len(b.eventFormatsByName)),
		Format: tp.Format{
			Fields: make([]*tp.FormatField, len(propertyDescriptors)),
		},
	}
	b.eventFormatsByName[name] = eventFormat
	for i, prop := range propertyDescriptors {
		eventFormat.Format.Fields[i] = &tp.FormatField{
			Name: prop.name,
			Type: prop.t,
		}
	}
	b.esb.AddFormat(eventFormat)
	return b
}

func fieldValue(field *tp.FormatField, prop interface{}) (trace.Field, error) {
	f := trace.Field{Name: field.Name, Type: field.Type}
	switch field.Type {
	case trace.Signed:
		switch v := prop.(type) {
		case int:
			f.Int = int64(v)
		case int64:
			f.Int = v
		default:
			return f, errors.Errorf("expected integer argument for property %s", field.Name)
		}
	case trace.Unsigned:
		switch v := prop.(type) {
		case int:
			if v < 0 {
				return f, errors.Errorf("expected non-negative argument for property %s", field.Name)
			}
			f.Uint = uint64(v)
		case uint64:
			f.Uint = v
		default:
			return f, errors.Errorf("expected unsigned argument for property %s", field.Name)
		}
	case trace.String, trace.CharArray:
		v, ok := prop.(string)
		if !ok {
			return f, errors.Errorf("expected string argument for property %s", field.Name)
		}
		f.Text = v
	case trace.Unsupported:
		if prop != nil {
			return f, errors.Errorf("expected nil argument for opaque property %s", field.Name)
		}
	}
	return f, nil
}

// WithEvent adds the provided event to the receiving Builder,
// returning that Builder to facilitate chaining.
func (b *Builder) WithEvent(eventName string, cpu int64, timestampNs int64, props ...interface{}) *Builder {
	eventFormat := b.eventFormatsByName[eventName]
	if eventFormat == nil {
		b.errs = append(b.errs, errors.Errorf("expected event descriptor for %s to be stored", eventName))
		return b
	}
	if len(props) != len(eventFormat.Format.Fields) {
		b.errs = append(b.errs, errors.Errorf("%s: expected %d properties, but got %d", eventName, len(eventFormat.Format.Fields), len(props)))
		return b
	}
	traceEvent := &tp.TraceEvent{
		FormatID:  eventFormat.ID,
		CPU:       cpu,
		Timestamp: uint64(timestampNs),
	}
	for i, prop := range props {
		f, err := fieldValue(eventFormat.Format.Fields[i], prop)
		if err != nil {
			b.errs = append(b.errs, errors.Wrap(err, eventName))
			return b
		}
		traceEvent.Fields = append(traceEvent.Fields, f)
	}
	if err := b.esb.AddTraceEvent(traceEvent); err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Collection returns the Collection built by the Builder, or the errors
// encountered while building it.
func (b *Builder) Collection() (*trace.Collection, error) {
	if len(b.errs) > 0 {
		var errStrs []string
		for _, err := range b.errs {
			errStrs = append(errStrs, err.Error())
		}
		return nil, errors.Errorf("failed to construct collection: %s", strings.Join(errStrs, ", "))
	}
	return trace.NewCollection(b.esb.Clone().Finalize())
}

// TestCollection returns the Collection built by the Builder.  If the
// builder is in error, it fails on the provided testing.T.
func (b *Builder) TestCollection(t *testing.T) *trace.Collection {
	t.Helper()
	c, err := b.Collection()
	if err != nil {
		t.Fatalf("%s", err)
	}
	return c
}

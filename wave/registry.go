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
package wave

import (
	"fmt"
	"strconv"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
)

// ErrUnbound is the cause of the error recorded when a value is emitted on
// a channel that has no sink symbol yet.
var ErrUnbound = errors.New("emit on unbound channel")

type options struct {
	extendedStates bool
	labeler        Labeler
}

// Option configures a Registry.
type Option func(o *options)

// ExtendedStates selects whether the S2 state is written as is (the
// default) or as Zero, for viewers without extended bit states.
func ExtendedStates(on bool) Option {
	return func(o *options) {
		o.extendedStates = on
	}
}

// WithLabeler supplies the labels of Addr channel values.  Without one,
// addresses are displayed in hex.
func WithLabeler(l Labeler) Option {
	return func(o *options) {
		o.labeler = l
	}
}

// Registry tracks every channel of a conversion.  Channels are created
// and named before the symbols are flushed to a Sink; values can only be
// emitted afterwards.  The first error is sticky and reported by Err.
type Registry struct {
	o        options
	channels []*Channel
	sink     Sink
	err      error
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		o: options{extendedStates: true},
	}
	for _, opt := range opts {
		opt(&r.o)
	}
	return r
}

// Err returns the first error met by the registry.
func (r *Registry) Err() error {
	return r.err
}

func (r *Registry) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Channels returns every initialized channel in discovery order.
func (r *Registry) Channels() []*Channel {
	return r.channels
}

// Init names ch and records its display attributes.  It is a no-op if ch
// is already named.  Once the symbols have been flushed, the channel is
// bound to a sink symbol right away.
func (r *Registry) Init(ch *Channel, group Group, pos float64, kind Kind, format string, args ...interface{}) {
	if ch.Named() {
		return
	}
	name := fmt.Sprintf(format, args...)
	if name == "" {
		r.fail(errors.Errorf("empty channel name from %q", format))
		return
	}
	ch.name = name
	ch.group = group
	ch.pos = pos
	ch.kind = kind
	r.channels = append(r.channels, ch)
	if log.V(1) {
		log.Infof("add %s channel %q (group %d, pos %g)", kind, name, group, pos)
	}
	if r.sink != nil {
		r.bind(ch)
	}
}

// Refresh renames a named channel if the formatted name differs from its
// current one.
func (r *Registry) Refresh(ch *Channel, format string, args ...interface{}) {
	if !ch.Named() {
		r.fail(errors.Errorf("refresh of unnamed channel %q", format))
		return
	}
	name := fmt.Sprintf(format, args...)
	if name == ch.name {
		return
	}
	if log.V(1) {
		log.Infof("rename channel %q to %q", ch.name, name)
	}
	ch.name = name
	if ch.bound {
		if err := r.sink.Rename(ch.sym, name); err != nil {
			r.fail(errors.Wrapf(err, "failed to rename %q", name))
		}
	}
}

func (r *Registry) bind(ch *Channel) {
	kind := ch.kind
	if kind == Addr {
		kind = String
	}
	sym, err := r.sink.Declare(ch.name, kind)
	if err != nil {
		r.fail(errors.Wrapf(err, "failed to declare %q", ch.name))
		return
	}
	ch.sym = sym
	ch.bound = true
}

// FlushSymbols binds every channel to a symbol of sink, group by group.  It
// can only be called once.
func (r *Registry) FlushSymbols(sink Sink) error {
	if r.sink != nil {
		return errors.New("symbols already flushed")
	}
	if sink == nil {
		return errors.New("nil sink")
	}
	r.sink = sink
	for _, g := range Groups {
		for _, ch := range r.channels {
			if ch.group == g {
				r.bind(ch)
			}
		}
	}
	log.V(1).Infof("flushed %d channel symbols", len(r.channels))
	return r.err
}

// Emit writes v to ch at the current sink time.
func (r *Registry) Emit(ch *Channel, v Value) {
	if !ch.bound {
		r.fail(errors.Wrapf(ErrUnbound, "channel %q", ch.name))
		return
	}
	if s, ok := v.(State); ok && s == S2 && !r.o.extendedStates {
		v = Zero
	}
	ch.emitted = true
	ch.last = v
	if err := r.write(ch, v); err != nil {
		r.fail(errors.Wrapf(err, "channel %q", ch.name))
	}
}

func (r *Registry) write(ch *Channel, v Value) error {
	switch ch.kind {
	case Bits:
		if s, ok := v.(State); ok {
			return r.sink.EmitState(ch.sym, s)
		}
	case Integer:
		if i, ok := v.(Int); ok {
			return r.sink.EmitInt(ch.sym, int64(i))
		}
	case String:
		switch t := v.(type) {
		case Text:
			return r.sink.EmitString(ch.sym, string(t))
		case Int:
			return r.sink.EmitString(ch.sym, strconv.FormatInt(int64(t), 10))
		}
	case Analog:
		switch f := v.(type) {
		case Float:
			return r.sink.EmitFloat(ch.sym, float64(f))
		case Int:
			return r.sink.EmitFloat(ch.sym, float64(f))
		}
	case Addr:
		if a, ok := v.(Address); ok {
			label := HexAddress(uint64(a))
			if r.o.labeler != nil {
				label = r.o.labeler.Get(uint64(a))
			}
			return r.sink.EmitString(ch.sym, label)
		}
	}
	return errors.Errorf("cannot write %T to a %s channel", v, ch.kind)
}

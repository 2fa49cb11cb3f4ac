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
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
)

// vcdVar is a variable declared in a VCD file.
type vcdVar struct {
	name string
	kind Kind
	id   string
}

// VCDWriter is a Sink writing a Value Change Dump, with the GTKWave
// extensions for string and extended bit-state variables.  Variables may be
// declared at any time before Close: value changes are spooled to a scratch
// stream and appended to the definitions when the writer is closed.
type VCDWriter struct {
	out     io.Writer
	scratch io.ReadWriter
	body    *bufio.Writer
	vars    []*vcdVar
	byName  map[string]Symbol
	now     int64
	started bool
	closed  bool
	cleanup func() error
}

// NewVCDWriter returns a VCDWriter writing to out, spooling value changes to
// scratch.  If scratch is an io.Seeker it is rewound before being copied.
func NewVCDWriter(out io.Writer, scratch io.ReadWriter) *VCDWriter {
	return &VCDWriter{
		out:     out,
		scratch: scratch,
		body:    bufio.NewWriter(scratch),
		byName:  map[string]Symbol{},
	}
}

// CreateVCD creates the VCD file at path, spooling value changes to a
// temporary file next to it.
func CreateVCD(path string) (*VCDWriter, error) {
	out, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create waveform")
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		out.Close()
		return nil, errors.Wrap(err, "failed to create scratch file")
	}
	w := NewVCDWriter(out, tmp)
	w.cleanup = func() error {
		tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil {
			log.Errorf("failed to remove %s: %s", tmp.Name(), err)
		}
		return out.Close()
	}
	return w, nil
}

// vcdID returns the printable identifier code of the i-th variable.
func vcdID(i int) string {
	const first, base = '!', '~' - '!' + 1
	var id []byte
	for {
		id = append(id, byte(first+i%base))
		i /= base
		if i == 0 {
			break
		}
		i--
	}
	return string(id)
}

// Declare implements Sink.
func (w *VCDWriter) Declare(name string, kind Kind) (Symbol, error) {
	if w.closed {
		return 0, errors.New("declare on closed writer")
	}
	if sym, ok := w.byName[name]; ok {
		if v := w.vars[sym]; v.kind != kind {
			return 0, errors.Errorf("variable %q redeclared as %s, was %s", name, kind, v.kind)
		}
		return sym, nil
	}
	if kind == Addr {
		return 0, errors.Errorf("variable %q: address variables are declared as strings", name)
	}
	sym := Symbol(len(w.vars))
	w.vars = append(w.vars, &vcdVar{name: name, kind: kind, id: vcdID(len(w.vars))})
	w.byName[name] = sym
	return sym, nil
}

func (w *VCDWriter) lookup(sym Symbol) (*vcdVar, error) {
	if sym < 0 || int(sym) >= len(w.vars) {
		return nil, errors.Errorf("unknown symbol %d", sym)
	}
	return w.vars[sym], nil
}

// Rename implements Sink.
func (w *VCDWriter) Rename(sym Symbol, name string) error {
	v, err := w.lookup(sym)
	if err != nil {
		return err
	}
	if w.byName[v.name] == sym {
		delete(w.byName, v.name)
	}
	v.name = name
	if _, ok := w.byName[name]; !ok {
		w.byName[name] = sym
	}
	return nil
}

// SetTime implements Sink.
func (w *VCDWriter) SetTime(ns int64) error {
	if w.started && ns < w.now {
		return errors.Errorf("time goes backwards: %d < %d", ns, w.now)
	}
	if w.started && ns == w.now {
		return nil
	}
	w.started = true
	w.now = ns
	_, err := fmt.Fprintf(w.body, "#%d\n", ns)
	return err
}

func (w *VCDWriter) change(sym Symbol, want Kind, format string, args ...interface{}) error {
	v, err := w.lookup(sym)
	if err != nil {
		return err
	}
	if v.kind != want {
		return errors.Errorf("%s value for %s variable %q", want, v.kind, v.name)
	}
	if _, err := fmt.Fprintf(w.body, format, args...); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w.body, "%s\n", v.id)
	return err
}

// EmitState implements Sink.
func (w *VCDWriter) EmitState(sym Symbol, s State) error {
	return w.change(sym, Bits, "%s", s)
}

// EmitInt implements Sink.
func (w *VCDWriter) EmitInt(sym Symbol, v int64) error {
	return w.change(sym, Integer, "b%s ", strconv.FormatUint(uint64(v), 2))
}

// EmitString implements Sink.  Whitespace separates VCD tokens, so it is
// written as underscores.
func (w *VCDWriter) EmitString(sym Symbol, s string) error {
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, s)
	if s == "" {
		s = "-"
	}
	return w.change(sym, String, "s%s ", s)
}

// EmitFloat implements Sink.
func (w *VCDWriter) EmitFloat(sym Symbol, f float64) error {
	return w.change(sym, Analog, "r%.16g ", f)
}

// scope is a node of the variable hierarchy.
type scope struct {
	name     string
	children map[string]*scope
	order    []string
	vars     []*vcdVar
}

func (s *scope) child(name string) *scope {
	if c, ok := s.children[name]; ok {
		return c
	}
	c := &scope{name: name, children: map[string]*scope{}}
	s.children[name] = c
	s.order = append(s.order, name)
	return c
}

func (w *VCDWriter) writeScope(bw *bufio.Writer, s *scope, depth int) {
	indent := strings.Repeat(" ", depth)
	for _, v := range s.vars {
		leaf := v.name
		if i := strings.LastIndex(leaf, "."); i >= 0 {
			leaf = leaf[i+1:]
		}
		leaf = ViewerName(leaf)
		switch v.kind {
		case Bits:
			fmt.Fprintf(bw, "%s$var wire 1 %s %s $end\n", indent, v.id, leaf)
		case Integer:
			fmt.Fprintf(bw, "%s$var integer 64 %s %s $end\n", indent, v.id, leaf)
		case String:
			fmt.Fprintf(bw, "%s$var string 1 %s %s $end\n", indent, v.id, leaf)
		case Analog:
			fmt.Fprintf(bw, "%s$var real 1 %s %s $end\n", indent, v.id, leaf)
		}
	}
	names := append([]string(nil), s.order...)
	sort.Strings(names)
	for _, name := range names {
		c := s.children[name]
		fmt.Fprintf(bw, "%s$scope module %s $end\n", indent, ViewerName(name))
		w.writeScope(bw, c, depth+1)
		fmt.Fprintf(bw, "%s$upscope $end\n", indent)
	}
}

func (w *VCDWriter) writeHeader(bw *bufio.Writer) {
	bw.WriteString("$version schedwave $end\n")
	bw.WriteString("$timescale 1 ns $end\n")
	root := &scope{children: map[string]*scope{}}
	for _, v := range w.vars {
		s := root
		parts := strings.Split(v.name, ".")
		for _, p := range parts[:len(parts)-1] {
			s = s.child(p)
		}
		s.vars = append(s.vars, v)
	}
	w.writeScope(bw, root, 0)
	bw.WriteString("$enddefinitions $end\n")
	bw.WriteString("$dumpvars\n")
	for _, v := range w.vars {
		switch v.kind {
		case Bits:
			fmt.Fprintf(bw, "z%s\n", v.id)
		case Integer:
			fmt.Fprintf(bw, "bz %s\n", v.id)
		}
	}
	bw.WriteString("$end\n")
}

// Close implements Sink.  It writes the definitions followed by the spooled
// value changes.
func (w *VCDWriter) Close() (err error) {
	if w.closed {
		return errors.New("writer already closed")
	}
	w.closed = true
	if w.cleanup != nil {
		defer func() {
			if cerr := w.cleanup(); err == nil && cerr != nil {
				err = errors.Wrap(cerr, "failed to close waveform")
			}
		}()
	}
	if err := w.body.Flush(); err != nil {
		return errors.Wrap(err, "failed to spool value changes")
	}
	bw := bufio.NewWriter(w.out)
	w.writeHeader(bw)
	if s, ok := w.scratch.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "failed to rewind value changes")
		}
	}
	if _, err := io.Copy(bw, w.scratch); err != nil {
		return errors.Wrap(err, "failed to copy value changes")
	}
	return errors.Wrap(bw.Flush(), "failed to write waveform")
}

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
package symbols

import (
	"context"
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

type elfSymbol struct {
	name string
	addr uint64
	size uint64
}

// ELF resolves addresses from the symbol table of an executable, and from
// its DWARF line table if present.  Names are not demangled.
type ELF struct {
	exe   string
	syms  []elfSymbol
	dwarf *dwarf.Data
}

// OpenELF loads the function symbols of exe.
func OpenELF(exe string) (*ELF, error) {
	f, err := elf.Open(exe)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", exe)
	}
	defer f.Close()
	e := &ELF{exe: exe}
	for _, load := range []func() ([]elf.Symbol, error){f.Symbols, f.DynamicSymbols} {
		syms, err := load()
		if err != nil {
			continue
		}
		for _, sym := range syms {
			if sym.Name == "" || sym.Value == 0 || elf.ST_TYPE(sym.Info) != elf.STT_FUNC {
				continue
			}
			e.syms = append(e.syms, elfSymbol{name: sym.Name, addr: sym.Value, size: sym.Size})
		}
	}
	if len(e.syms) == 0 {
		return nil, errors.Errorf("%s has no function symbols", exe)
	}
	sort.SliceStable(e.syms, func(i, j int) bool {
		return e.syms[i].addr < e.syms[j].addr
	})
	if d, err := f.DWARF(); err == nil {
		e.dwarf = d
	}
	return e, nil
}

func (e *ELF) lookup(addr uint64) (elfSymbol, bool) {
	idx := sort.Search(len(e.syms), func(i int) bool {
		return e.syms[i].addr > addr
	})
	if idx == 0 {
		return elfSymbol{}, false
	}
	sym := e.syms[idx-1]
	if sym.size != 0 && addr >= sym.addr+sym.size {
		return elfSymbol{}, false
	}
	return sym, true
}

// line returns "file:line" for addr from the DWARF line table.
func (e *ELF) line(addr uint64) (string, bool) {
	if e.dwarf == nil {
		return "", false
	}
	r := e.dwarf.Reader()
	for {
		entry, err := r.Next()
		if err != nil || entry == nil {
			return "", false
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}
		ranges, err := e.dwarf.Ranges(entry)
		r.SkipChildren()
		if err != nil || !inRanges(ranges, addr) {
			continue
		}
		lr, err := e.dwarf.LineReader(entry)
		if err != nil || lr == nil {
			continue
		}
		var le dwarf.LineEntry
		if err := lr.SeekPC(addr, &le); err != nil || le.File == nil {
			continue
		}
		return fmt.Sprintf("%s:%d", filepath.Base(le.File.Name), le.Line), true
	}
}

func inRanges(ranges [][2]uint64, addr uint64) bool {
	for _, r := range ranges {
		if addr >= r[0] && addr < r[1] {
			return true
		}
	}
	return false
}

// Resolve implements Resolver.
func (e *ELF) Resolve(ctx context.Context, addrs []uint64) ([]Location, error) {
	locs := make([]Location, len(addrs))
	for i, addr := range addrs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sym, ok := e.lookup(addr)
		if !ok {
			locs[i] = Location{Function: "??", File: "??:0"}
			continue
		}
		file, ok := e.line(addr)
		if !ok {
			file = filepath.Base(e.exe)
		}
		locs[i] = Location{Function: sym.name, File: file}
	}
	return locs, nil
}

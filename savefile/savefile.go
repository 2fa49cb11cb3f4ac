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
// Package savefile writes GTKWave save files listing the emitted channels
// of a waveform, grouped and ordered for display.
package savefile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"

	log "github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/google/schedwave/wave"
)

// Trace flags understood by GTKWave.
const (
	flagHex                = 1 << 1
	flagDec                = 1 << 2
	flagBin                = 1 << 3
	flagRJustify           = 1 << 5
	flagBlank              = 1 << 9
	flagASCII              = 1 << 11
	flagAnalogInterpolated = 1 << 16
	flagAnalogFullscale    = 1 << 19
)

// Flags returns the display flags of a channel of kind k.
func Flags(k wave.Kind) int {
	var f int
	switch k {
	case wave.Bits:
		f = flagBin
	case wave.Integer:
		f = flagHex
	case wave.String, wave.Addr:
		f = flagASCII
	case wave.Analog:
		f = flagAnalogInterpolated | flagDec | flagAnalogFullscale
	}
	return f | flagRJustify
}

// Options tunes the save file.
type Options struct {
	// DumpFile, if set, is named in the save file header so that the
	// viewer can open the save file alone.
	DumpFile string
}

// Write writes the save file listing the emitted channels of every
// display group, by increasing position.  GroupNone channels are omitted.
func Write(w io.Writer, channels []*wave.Channel, opts Options) error {
	bw := bufio.NewWriter(w)
	if opts.DumpFile != "" {
		fmt.Fprintf(bw, "[dumpfile] %q\n", opts.DumpFile)
	}
	for _, g := range wave.Groups {
		if g == wave.GroupNone {
			continue
		}
		var tab []*wave.Channel
		for _, ch := range channels {
			if ch.Group() == g && ch.Emitted() {
				tab = append(tab, ch)
			}
		}
		if len(tab) == 0 {
			continue
		}
		sort.SliceStable(tab, func(i, j int) bool {
			return tab[i].Pos() < tab[j].Pos()
		})
		fmt.Fprintf(bw, "@%x\n-%s\n", flagBlank, g.Title())
		for _, ch := range tab {
			fmt.Fprintf(bw, "@%x\n%s\n", Flags(ch.Kind()), wave.ViewerName(ch.Name()))
		}
	}
	return bw.Flush()
}

// WriteFile writes the save file at path.
func WriteFile(path string, channels []*wave.Channel, opts Options) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "cannot write savefile")
	}
	log.V(1).Infof("writing savefile %s", path)
	if err := Write(f, channels, opts); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return errors.Wrapf(f.Close(), "failed to close %s", path)
}

// Link hard links the save file at path to alias, replacing any previous
// alias.
func Link(path, alias string) error {
	if err := os.Remove(alias); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %s", alias)
	}
	return errors.Wrapf(os.Link(path, alias), "failed to link %s", alias)
}

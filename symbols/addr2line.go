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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
)

// Addr2Line resolves addresses by running binutils' addr2line on an
// executable.
type Addr2Line struct {
	// Exe is the executable the addresses belong to.
	Exe string
	// Command is the addr2line binary; "addr2line" if empty.
	Command string
}

// Args returns the addr2line arguments resolving addrs.
func (a *Addr2Line) Args(addrs []uint64) []string {
	args := []string{"-C", "-f", "-s", "--exe=" + a.Exe}
	for _, addr := range addrs {
		args = append(args, fmt.Sprintf("0x%08x", addr))
	}
	return args
}

// Resolve implements Resolver.  addr2line prints a function line and a
// file line per address.
func (a *Addr2Line) Resolve(ctx context.Context, addrs []uint64) ([]Location, error) {
	command := a.Command
	if command == "" {
		command = "addr2line"
	}
	cmd := exec.CommandContext(ctx, command, a.Args(addrs)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: %s", command, strings.TrimSpace(stderr.String()))
	}
	log.V(1).Infof("resolved %d addresses with %s", len(addrs), command)
	return parseAddr2Line(out, len(addrs))
}

func parseAddr2Line(out []byte, n int) ([]Location, error) {
	locs := make([]Location, 0, n)
	s := bufio.NewScanner(bytes.NewReader(out))
	for len(locs) < n {
		if !s.Scan() {
			break
		}
		fn := s.Text()
		if !s.Scan() {
			return nil, errors.Errorf("missing file line for %q", fn)
		}
		locs = append(locs, Location{Function: fn, File: s.Text()})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(locs) != n {
		return nil, errors.Errorf("addr2line returned %d locations for %d addresses", len(locs), n)
	}
	return locs, nil
}

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
package convert

import (
	"fmt"

	log "github.com/golang/glog"
	"github.com/pkg/errors"
)

// FatalError is the cause of every error aborting a conversion.
type FatalError struct {
	// Op names what the converter was doing.
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// fatal wraps err, if not nil, into a *FatalError.
func fatal(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.Cause(err).(*FatalError); ok {
		return err
	}
	return errors.WithStack(&FatalError{Op: op, Err: err})
}

// IsFatal returns true if err was caused by a *FatalError.
func IsFatal(err error) bool {
	_, ok := errors.Cause(err).(*FatalError)
	return ok
}

// AnomalyKind classifies the malformed trace conditions a conversion
// recovers from.
type AnomalyKind int

// Anomaly kinds.
const (
	// IRQVector is an interrupt vector outside [0, MaxIRQs).
	IRQVector AnomalyKind = iota
	// IRQOverflow is an interrupt nested beyond MaxIRQs levels.
	IRQOverflow
	// IRQReentry is an interrupt entering while already on top of the
	// interrupt stack.
	IRQReentry
	// CPURange is an event logged by a CPU outside [0, MaxCPU).
	CPURange
	// Clock is a timestamp lower than the previous one.
	Clock
	// Resolver is a batch of addresses that could not be resolved.
	Resolver
)

func (k AnomalyKind) String() string {
	switch k {
	case IRQVector:
		return "irq_vector"
	case IRQOverflow:
		return "irq_overflow"
	case IRQReentry:
		return "irq_reentry"
	case CPURange:
		return "cpu_range"
	case Clock:
		return "clock"
	case Resolver:
		return "resolver"
	default:
		return fmt.Sprintf("anomaly(%d)", int(k))
	}
}

// Anomaly describes a malformed trace condition.  The offending event is
// dropped, or its timestamp clamped, and the conversion goes on.
type Anomaly struct {
	Kind AnomalyKind
	// Time is the time of the offending event, in ns.
	Time int64
	CPU  int64
	Msg  string
}

func (a Anomaly) String() string {
	return fmt.Sprintf("%s @%d ns (CPU %d): %s", a.Kind, a.Time, a.CPU, a.Msg)
}

// AnomalyFunc receives the anomalies of a conversion.
type AnomalyFunc func(a Anomaly)

// LogAnomaly is the default AnomalyFunc.
func LogAnomaly(a Anomaly) {
	log.Warning(a)
}

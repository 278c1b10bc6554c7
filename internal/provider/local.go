/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package provider

import "github.com/aldrin-labs/timingobject/internal/motion"

// Local is the LocalTimingProvider: an in-process timing object
// driven by the wall clock. Open from construction; Update resolves
// synchronously.
type Local struct {
	base
}

// NewLocal returns a Local provider initialized to v (or the zero
// vector, stamped now, if v is the zero value).
func NewLocal(v motion.Vector) *Local {
	p := &Local{base: newBase(Open)}
	if v == (motion.Vector{}) {
		v = motion.New(0, 0, 0)
	}
	p.vector = v
	return p
}

// Query extrapolates the current vector to now.
func (p *Local) Query() motion.Vector {
	return p.Vector().At(motion.Now())
}

// Update resolves synchronously: unspecified fields are filled by
// extrapolating the current vector to now; the new vector is stamped
// now.
func (p *Local) Update(u motion.Update) <-chan error {
	ch := make(chan error, 1)
	now := motion.Now()
	current := p.Vector().At(now)
	next := u.Apply(current)
	next.Timestamp = now
	if r, ok := p.Range(); ok {
		next.Position = r.Clamp(next.Position)
	}
	p.setVector(next)
	ch <- nil
	close(ch)
	return ch
}

// Close transitions Open/Connecting -> Closing -> Closed. Idempotent:
// a second call on a closing or closed provider does nothing.
func (p *Local) Close() {
	if s := p.ReadyState(); s == Closing || s == Closed {
		return
	}
	p.setReadyState(Closing)
	p.setReadyState(Closed)
}

var _ Provider = (*Local)(nil)

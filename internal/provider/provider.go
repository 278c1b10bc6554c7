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

// Package provider implements the TimingProvider contract and its two
// concrete variants: LocalTimingProvider, driven by the wall clock,
// and SocketTimingProvider, the client side of the wire protocol (see
// spec.md §4.5-§4.7).
package provider

import (
	"errors"
	"sync"

	"github.com/aldrin-labs/timingobject/internal/events"
	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/syncclock"
)

// ReadyState is an alias of syncclock.ReadyState: providers and clocks
// share one state type and one set of values.
type ReadyState = syncclock.ReadyState

// ReadyState values, re-exported for callers that only import provider.
const (
	Connecting = syncclock.Connecting
	Open       = syncclock.Open
	Closing    = syncclock.Closing
	Closed     = syncclock.Closed
)

// ErrNotOpen is the NotOpen rejection reason from spec.md §4.7/§7: an
// update requested before the provider is Open.
var ErrNotOpen = errors.New("timing provider: not open")

// Provider is the TimingProvider contract.
type Provider interface {
	ReadyState() ReadyState
	Vector() motion.Vector
	Range() (motion.Interval, bool)
	// Query extrapolates the current vector to now, in the provider's
	// local clock frame.
	Query() motion.Vector
	// Update requests a motion change; the returned channel receives
	// at most one error (nil on best-effort success) and is then
	// closed. The authoritative effect is the "change" event that
	// eventually reflects the server's (or local) new vector.
	Update(u motion.Update) <-chan error
	Bus() *events.Bus
	Close()
}

// base holds the state and event plumbing shared by every Provider.
type base struct {
	mu         sync.Mutex
	readyState ReadyState
	vector     motion.Vector
	rng        motion.Interval
	rngSet     bool
	bus        *events.Bus
}

func newBase(initial ReadyState) base {
	return base{
		readyState: initial,
		bus:        events.NewBus(),
	}
}

func (b *base) ReadyState() ReadyState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readyState
}

func (b *base) Vector() motion.Vector {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vector
}

func (b *base) Range() (motion.Interval, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rng, b.rngSet
}

func (b *base) Bus() *events.Bus {
	return b.bus
}

func (b *base) setReadyState(s ReadyState) {
	b.mu.Lock()
	changed := b.readyState != s
	b.readyState = s
	b.mu.Unlock()
	if changed {
		b.bus.EmitAsync("readystatechange", s)
	}
}

// setVector updates the stored vector, emitting "change" unless the
// new vector compares equal to the current one.
func (b *base) setVector(v motion.Vector) {
	b.mu.Lock()
	same := b.vector.Equal(v)
	b.vector = v
	b.mu.Unlock()
	if !same {
		b.bus.Emit("change", v)
	}
}

func (b *base) setRange(r motion.Interval) {
	b.mu.Lock()
	b.rng = r
	b.rngSet = true
	b.mu.Unlock()
}

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

// Package syncclock implements the clock-synchronization contract
// (SyncClock) and its two implementations: LocalSyncClock, a trivial
// zero-skew clock for locally-mastered timing objects, and
// SocketSyncClock, which estimates the skew against a server's
// reference clock by round-tripping "sync" messages over a shared
// message channel (see spec.md §4.4).
package syncclock

import (
	"sync"

	"github.com/aldrin-labs/timingobject/internal/events"
)

// ReadyState mirrors the lifecycle shared by SyncClock and
// TimingProvider.
type ReadyState int

// ReadyState values.
const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Clock is the read-only contract every SyncClock implementation
// satisfies.
type Clock interface {
	ReadyState() ReadyState
	Skew() int64 // ms
	Delta() int64 // ms
	// GetTime maps a local timestamp (ms since epoch) to the
	// reference clock's frame: localMs + skew - delta.
	GetTime(localMs int64) int64
	// Now is GetTime(now-in-local-ms).
	Now() int64
	// Bus exposes "change" (skew/delta changed) and
	// "readystatechange" events.
	Bus() *events.Bus
	Close()
}

// base holds the state and event plumbing shared by every Clock
// implementation.
type base struct {
	mu         sync.Mutex
	readyState ReadyState
	skew       int64
	delta      int64
	bus        *events.Bus
	nowMillis  func() int64
}

func newBase(nowMillis func() int64) base {
	return base{
		readyState: Connecting,
		bus:        events.NewBus(),
		nowMillis:  nowMillis,
	}
}

func (b *base) ReadyState() ReadyState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readyState
}

func (b *base) Skew() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skew
}

func (b *base) Delta() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.delta
}

func (b *base) Bus() *events.Bus {
	return b.bus
}

func (b *base) GetTime(localMs int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return localMs + b.skew - b.delta
}

func (b *base) Now() int64 {
	return b.GetTime(b.nowMillis())
}

// setReadyState transitions state and emits "readystatechange"
// asynchronously (next tick), so a listener registered right after
// construction still observes the initial transition to open. Closed
// is terminal: once reached, later transitions are ignored.
func (b *base) setReadyState(s ReadyState) {
	b.mu.Lock()
	if b.readyState == Closed {
		b.mu.Unlock()
		return
	}
	changed := b.readyState != s
	b.readyState = s
	b.mu.Unlock()
	if changed {
		b.bus.EmitAsync("readystatechange", s)
	}
}

// setSkewDelta updates skew/delta, emitting "change" only if a value
// actually differs.
func (b *base) setSkewDelta(skew, delta int64) {
	b.mu.Lock()
	changed := b.skew != skew || b.delta != delta
	b.skew = skew
	b.delta = delta
	b.mu.Unlock()
	if changed {
		b.bus.Emit("change", nil)
	}
}

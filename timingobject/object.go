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

// Package timingobject implements TimingObject, the user-facing
// façade that owns exactly one TimingProvider at a time (spec.md
// §4.8). It is the only interface the external media sequencer relies
// on.
package timingobject

import (
	"sync"
	"time"

	"github.com/aldrin-labs/timingobject/internal/events"
	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/provider"
	"github.com/aldrin-labs/timingobject/internal/syncclock"
)

// TimingObject is the façade described in spec.md §4.8 and §6's
// consumer contract.
type TimingObject struct {
	mu       sync.Mutex
	p        provider.Provider
	master   bool
	unsubs   []func()
	tickRate *motion.TickRater

	bus *events.Bus

	tickMu      sync.Mutex
	tickRunning bool
	tickStop    chan struct{}
}

// New returns a TimingObject mastered by a fresh LocalTimingProvider.
// tickRateExpr configures the "timeupdate" cadence rule (see
// motion.NewTickRater); pass "" for the fixed 5Hz default.
func New(tickRateExpr string) (*TimingObject, error) {
	rater, err := motion.NewTickRater(tickRateExpr)
	if err != nil {
		return nil, err
	}
	t := &TimingObject{
		bus:      events.NewBus(),
		tickRate: rater,
	}
	t.attach(provider.NewLocal(motion.Vector{}), true)
	return t, nil
}

// Bus exposes "change", "readystatechange" and "timeupdate".
func (t *TimingObject) Bus() *events.Bus {
	return t.bus
}

// Query delegates to the active provider.
func (t *TimingObject) Query() motion.Vector {
	return t.currentProvider().Query()
}

// Update delegates to the active provider. Any of position/velocity/
// acceleration may be nil, meaning "keep current".
func (t *TimingObject) Update(position, velocity, acceleration *float64) <-chan error {
	return t.currentProvider().Update(motion.Update{
		Position:     position,
		Velocity:     velocity,
		Acceleration: acceleration,
	})
}

// IsMoving reports whether the active provider's vector describes
// motion.
func (t *TimingObject) IsMoving() bool {
	return t.currentProvider().Vector().IsMoving()
}

// ReadyState delegates to the active provider.
func (t *TimingObject) ReadyState() provider.ReadyState {
	return t.currentProvider().ReadyState()
}

// SrcObject returns the external provider this object is slaved to,
// or nil if it is currently mastered by a local provider.
func (t *TimingObject) SrcObject() provider.Provider {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.master {
		return nil
	}
	return t.p
}

// SetSrcObject detaches from the current provider and attaches to p.
// Passing nil while slaved constructs a fresh LocalTimingProvider
// seeded from the last Query() of the old provider (spec.md §4.8).
func (t *TimingObject) SetSrcObject(p provider.Provider) {
	if p == nil {
		last := t.currentProvider().Query()
		t.attach(provider.NewLocal(last), true)
		return
	}
	t.attach(p, false)
}

func (t *TimingObject) currentProvider() provider.Provider {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p
}

func (t *TimingObject) attach(p provider.Provider, master bool) {
	t.mu.Lock()
	oldUnsubs := t.unsubs
	t.mu.Unlock()
	for _, off := range oldUnsubs {
		off()
	}

	offChange := p.Bus().On("change", func(payload any) {
		t.bus.Emit("change", payload)
		if v, ok := payload.(motion.Vector); ok {
			t.onMotionChanged(v)
		}
	})
	offReady := p.Bus().On("readystatechange", func(payload any) {
		t.bus.Emit("readystatechange", payload)
		if s, ok := payload.(provider.ReadyState); ok && s == provider.Closed {
			t.stopTicker()
		}
	})

	t.mu.Lock()
	t.p = p
	t.master = master
	t.unsubs = []func(){offChange, offReady}
	t.mu.Unlock()

	if p.Vector().IsMoving() {
		t.startTicker()
	} else {
		t.stopTicker()
	}
}

func (t *TimingObject) onMotionChanged(v motion.Vector) {
	if v.IsMoving() {
		t.startTicker()
	} else {
		t.stopTicker()
	}
}

// startTicker begins emitting "timeupdate" at the configured cadence;
// a no-op if already running (spec.md §4.8: starts on the first
// change that leaves non-zero velocity/acceleration).
func (t *TimingObject) startTicker() {
	t.tickMu.Lock()
	if t.tickRunning {
		t.tickMu.Unlock()
		return
	}
	t.tickRunning = true
	stop := make(chan struct{})
	t.tickStop = stop
	t.tickMu.Unlock()

	go func() {
		for {
			v := t.Query()
			hz := t.tickRate.RateHz(v)
			timer := time.NewTimer(time.Duration(float64(time.Second) / hz))
			select {
			case <-stop:
				timer.Stop()
				return
			case <-timer.C:
				t.bus.Emit("timeupdate", t.Query())
			}
		}
	}()
}

// stopTicker stops emitting "timeupdate"; a no-op if not running
// (spec.md §4.8: stops on transitions to rest or provider closing).
func (t *TimingObject) stopTicker() {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()
	if !t.tickRunning {
		return
	}
	t.tickRunning = false
	close(t.tickStop)
}

// Close closes the active provider (and, transitively, anything it
// owns) and stops the ticker.
func (t *TimingObject) Close() {
	t.stopTicker()
	t.currentProvider().Close()
}

// NewLocalClock is a convenience used by callers that want a
// LocalSyncClock to pair with a manually constructed Socket provider
// (e.g. tests, or a caller supplying its own clock per spec.md §3
// "Ownership").
func NewLocalClock() syncclock.Clock {
	return syncclock.NewLocal()
}

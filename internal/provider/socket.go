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

import (
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/syncclock"
	"github.com/aldrin-labs/timingobject/internal/wire"
	"github.com/aldrin-labs/timingobject/internal/wsconn"
)

// pendingChange is one queued future-dated "change", per spec.md
// §4.7. rawServerTS is the timestamp exactly as the server sent it
// (used for staleness comparisons); adjustedServerTS already has the
// clock's delta baked in (delta is static, so this only needs to
// happen once, unlike the skew-dependent local mapping).
type pendingChange struct {
	rawServerTS      float64
	adjustedServerTS float64
	vector           motion.Vector
}

// Socket is the SocketTimingProvider: the client side of the wire
// protocol. It owns or shares a message Channel with a SocketClock,
// and queues future-dated changes until their reference-clock
// timestamp arrives (see spec.md §4.7).
type Socket struct {
	base

	channel *wsconn.Channel
	clock   syncclock.Clock
	id      string

	ownsChannel bool
	ownsClock   bool

	mu              sync.Mutex
	lastKnownServerTS float64
	pending         []pendingChange
	timer           *time.Timer

	closeOnce sync.Once
}

// NewSocket constructs a Socket provider bound to id, communicating
// over channel, using clock for local<->reference translation. If
// ownsChannel/ownsClock, Close() will close them too (see spec.md
// §3, "Ownership").
func NewSocket(channel *wsconn.Channel, clock syncclock.Clock, id string, ownsChannel, ownsClock bool) *Socket {
	p := &Socket{
		base:        newBase(Connecting),
		channel:     channel,
		clock:       clock,
		id:          id,
		ownsChannel: ownsChannel,
		ownsClock:   ownsClock,
	}

	channel.OnType(wire.TypeInfo, p.handleInfo)
	channel.OnType(wire.TypeChange, p.handleChange)
	clock.Bus().On("change", func(any) { p.reschedule() })

	if err := channel.Send(&wire.Envelope{Type: wire.TypeInfo, ID: id}); err != nil {
		log.Debugf("failed to send info request for %s: %v", id, err)
	}

	return p
}

// localTimestamp implements the local_ts = server_ts + (local_now -
// clock.getTime(local_now))/1000 formula from spec.md §4.7/§4.8.
func (p *Socket) localTimestamp(adjustedServerTS float64) float64 {
	localNowMs := motion.NowMillis()
	refNowMs := p.clock.GetTime(localNowMs)
	return adjustedServerTS + float64(localNowMs-refNowMs)/1000.0
}

func (p *Socket) handleInfo(env *wire.Envelope) {
	if p.ReadyState() != Connecting {
		return
	}
	if p.clock.ReadyState() != syncclock.Open {
		off := func() {}
		var once sync.Once
		off = p.clock.Bus().On("readystatechange", func(payload any) {
			if s, ok := payload.(syncclock.ReadyState); ok && s == syncclock.Open {
				once.Do(func() {
					p.applyInfo(env)
					off()
				})
			}
		})
		return
	}
	p.applyInfo(env)
}

func (p *Socket) applyInfo(env *wire.Envelope) {
	if env.Vector == nil {
		return
	}
	serverTS := env.Vector.Timestamp
	adjusted := serverTS
	if d := p.clock.Delta(); d != 0 {
		adjusted = serverTS - float64(d)/1000.0
	}
	localTS := p.localTimestamp(adjusted)
	v := motion.NewAt(deref(env.Vector.Position), deref(env.Vector.Velocity), deref(env.Vector.Acceleration), localTS)

	p.mu.Lock()
	p.lastKnownServerTS = serverTS
	p.mu.Unlock()

	p.setVector(v)
	p.setReadyState(Open)
}

func (p *Socket) handleChange(env *wire.Envelope) {
	if p.ReadyState() != Open || env.Vector == nil {
		return
	}
	serverTS := env.Vector.Timestamp

	p.mu.Lock()
	if serverTS < p.lastKnownServerTS {
		p.mu.Unlock()
		return // stale change, silently dropped per spec.md §4.7/§8
	}
	p.mu.Unlock()

	adjusted := serverTS
	if d := p.clock.Delta(); d != 0 {
		adjusted = serverTS - float64(d)/1000.0
	}
	v := motion.NewAt(deref(env.Vector.Position), deref(env.Vector.Velocity), deref(env.Vector.Acceleration), 0)

	localTS := p.localTimestamp(adjusted)
	if localTS <= motion.Now() {
		p.applyChange(serverTS, localTS, v)
		return
	}

	p.mu.Lock()
	p.pending = append(p.pending, pendingChange{rawServerTS: serverTS, adjustedServerTS: adjusted, vector: v})
	sort.Slice(p.pending, func(i, j int) bool { return p.pending[i].rawServerTS < p.pending[j].rawServerTS })
	p.mu.Unlock()
	p.reschedule()
}

func (p *Socket) applyChange(rawServerTS, localTS float64, v motion.Vector) {
	stamped := motion.NewAt(v.Position, v.Velocity, v.Acceleration, localTS)
	p.mu.Lock()
	if rawServerTS > p.lastKnownServerTS {
		p.lastKnownServerTS = rawServerTS
	}
	p.mu.Unlock()
	p.setVector(stamped)
}

// reschedule (re)arms the timer for the head of the pending queue,
// recomputing its local apply-time against the current clock mapping.
// Called both when the queue changes and when the clock's skew
// changes (spec.md §4.7: "simply reschedule ... without mutating the
// queue contents").
func (p *Socket) reschedule() {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	head := p.pending[0]
	p.mu.Unlock()

	localTS := p.localTimestamp(head.adjustedServerTS)
	delay := time.Duration((localTS - motion.Now()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	p.mu.Lock()
	p.timer = time.AfterFunc(delay, p.onTimerFire)
	p.mu.Unlock()
}

// onTimerFire pops the head of the pending queue, drains any further
// entries already due and keeps only the latest of that prefix, then
// applies it and reschedules the remainder (spec.md §4.7).
func (p *Socket) onTimerFire() {
	p.mu.Lock()
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	applied := p.pending[0]
	rest := p.pending[1:]
	now := motion.Now()
	for len(rest) > 0 {
		next := rest[0]
		if p.localTimestamp(next.adjustedServerTS) <= now {
			applied = next
			rest = rest[1:]
			continue
		}
		break
	}
	p.pending = rest
	p.mu.Unlock()

	localTS := p.localTimestamp(applied.adjustedServerTS)
	p.applyChange(applied.rawServerTS, localTS, applied.vector)
	p.reschedule()
}

// Query extrapolates the current vector to now, in the local frame the
// stored vector's timestamp already lives in (applyInfo/applyChange
// always stamp in local time).
func (p *Socket) Query() motion.Vector {
	return p.Vector().At(motion.Now())
}

// Update sends an "update" message and returns a future that resolves
// as soon as the send completes; the authoritative effect is the
// eventual "change" broadcast. Fails immediately, without sending
// anything, if not Open (spec.md §4.7/§7, ErrNotOpen).
func (p *Socket) Update(u motion.Update) <-chan error {
	ch := make(chan error, 1)
	if p.ReadyState() != Open {
		ch <- ErrNotOpen
		close(ch)
		return ch
	}
	env := &wire.Envelope{
		Type: wire.TypeUpdate,
		ID:   p.id,
		Vector: &wire.VectorDTO{
			Position:     u.Position,
			Velocity:     u.Velocity,
			Acceleration: u.Acceleration,
		},
	}
	err := p.channel.Send(env)
	ch <- err
	close(ch)
	return ch
}

// Close is idempotent: closing -> closed, stops the pending-change
// timer, and closes the owned clock/channel (only those this provider
// created).
func (p *Socket) Close() {
	p.closeOnce.Do(func() {
		p.setReadyState(Closing)
		p.mu.Lock()
		if p.timer != nil {
			p.timer.Stop()
		}
		p.mu.Unlock()
		if p.ownsClock {
			p.clock.Close()
		}
		if p.ownsChannel {
			_ = p.channel.Close()
		}
		p.setReadyState(Closed)
	})
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

var _ Provider = (*Socket)(nil)

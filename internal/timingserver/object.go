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

package timingserver

import (
	"sync"

	"github.com/aldrin-labs/timingobject/internal/motion"
)

// timingObject is the server-side half of spec.md §3's "Server-side
// timing object": identity is the URL/id used by clients, carries a
// StateVector, an optional range, and the set of subscriber channels.
// It is created on first "info" for a previously unknown id and lives
// until the process exits.
type timingObject struct {
	id string

	mu          sync.Mutex
	vector      motion.Vector
	rng         motion.Interval
	rngSet      bool
	subscribers map[*subscriber]struct{}

	createdAt    float64
	updateCount  int64
	changeCount  int64
}

func newTimingObject(id string) *timingObject {
	return &timingObject{
		id:          id,
		vector:      motion.New(0, 0, 0),
		createdAt:   motion.Now(),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// query extrapolates the stored vector to the server's reference
// clock "now".
func (o *timingObject) query() motion.Vector {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.vector.At(motion.Now())
}

// applyUpdate extrapolates the current vector to now, applies u,
// stamps the result now, stores it, and invokes emit with the
// resulting vector, a snapshot of the current subscribers, and the
// change's sequence number -- all while o.mu is still held. Folding
// "compute now", "apply", and "snapshot subscribers for broadcast"
// into one critical section is what makes a per-id update and its
// resulting broadcast atomic: two goroutines racing an update against
// the same id serialize on o.mu, so whichever one gets in first is
// guaranteed to sample the earlier "now", store it, and hand off its
// subscriber list before the second one can observe or overwrite
// anything. That keeps per-id change timestamps non-decreasing
// (invariant 6) and keeps "update and the resulting broadcast appear
// atomic to subscribers" (spec.md §5) true even though the actual
// network writes happen outside this lock, via emit.
func (o *timingObject) applyUpdate(u motion.Update, emit func(v motion.Vector, subs []*subscriber, seq uint64)) motion.Vector {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := motion.Now()
	current := o.vector.At(now)
	next := u.Apply(current)
	next.Timestamp = now
	if o.rngSet {
		next.Position = o.rng.Clamp(next.Position)
	}
	o.vector = next
	o.updateCount++
	o.changeCount++
	seq := uint64(o.changeCount)

	subs := make([]*subscriber, 0, len(o.subscribers))
	for s := range o.subscribers {
		subs = append(subs, s)
	}

	if emit != nil {
		emit(next, subs, seq)
	}
	return next
}

func (o *timingObject) addSubscriber(s *subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers[s] = struct{}{}
}

func (o *timingObject) removeSubscriber(s *subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.subscribers, s)
}

func (o *timingObject) subscriberCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subscribers)
}

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

	"github.com/aldrin-labs/timingobject/internal/wire"
	"github.com/aldrin-labs/timingobject/internal/wsconn"
)

// subscriber is a channel handle plus the set of timing-object ids it
// has subscribed to, per spec.md §3's "Subscriber (server-side)".
// Every subscriber is pinned to exactly one sendWorker so that all of
// its outbound messages stay in enqueue order (spec.md §5: "per-channel
// FIFO").
type subscriber struct {
	channel *wsconn.Channel
	worker  *sendWorker

	mu  sync.Mutex
	ids map[string]struct{}
}

func newSubscriber(channel *wsconn.Channel, w *sendWorker) *subscriber {
	return &subscriber{
		channel: channel,
		worker:  w,
		ids:     make(map[string]struct{}),
	}
}

func (s *subscriber) addID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *subscriber) idSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

// send hands env to this subscriber's worker for ordered delivery.
func (s *subscriber) send(env *wire.Envelope) {
	s.worker.enqueue(sendTask{sub: s, env: env})
}

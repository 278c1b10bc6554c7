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

// Package timingserver implements the TimingServer broadcast state
// machine from spec.md §4.9: it accepts channels, hosts named timing
// objects, fans changes out to subscribers, and answers "sync".
package timingserver

import (
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"

	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/wire"
	"github.com/aldrin-labs/timingobject/internal/wsconn"
)

// Server is the TimingServer: it listens for channel-upgrade requests
// and hosts named timing objects.
type Server struct {
	Config *Config
	Stats  *Stats

	workers []*sendWorker

	mu          sync.Mutex
	objects     map[string]*timingObject
	subscribers map[*subscriber]struct{}

	nextWorker int
}

// New builds a Server from cfg. Call Start to begin serving.
func New(cfg *Config) *Server {
	return &Server{
		Config:      cfg,
		Stats:       NewStats(),
		objects:     make(map[string]*timingObject),
		subscribers: make(map[*subscriber]struct{}),
	}
}

// Start launches the worker pool and the HTTP/WebSocket listener. It
// blocks until the listener returns (normally only on a bind error or
// process shutdown).
func (s *Server) Start() error {
	s.workers = make([]*sendWorker, s.Config.Workers)
	for i := range s.workers {
		s.workers[i] = newSendWorker(i, s.Config.QueueSize)
		go s.workers[i].Start()
	}

	s.Stats.StartMonitoring(s.Config.MonitoringPort)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	log.Infof("timing server listening on %s (delta=%dms)", s.Config.Addr, s.Config.Delta)
	return http.ListenAndServe(s.Config.Addr, mux)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := wsconn.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warningf("upgrade failed: %v", err)
		return
	}
	channel := wsconn.New(conn)
	worker := s.leastBusyWorker()
	sub := newSubscriber(channel, worker)

	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	channel.OnType(wire.TypeInfo, func(env *wire.Envelope) { s.handleInfo(sub, env) })
	channel.OnType(wire.TypeUpdate, func(env *wire.Envelope) { s.handleUpdate(sub, env) })
	channel.OnType(wire.TypeSync, func(env *wire.Envelope) { s.handleSync(sub, env) })
	channel.OnUnhandled(func(env *wire.Envelope) {
		log.Warningf("dropping message of unsupported type %q for id %q", env.Type, env.ID)
	})

	go func() {
		<-channel.Closed()
		s.onChannelClosed(sub)
	}()

	channel.Serve()
}

func (s *Server) leastBusyWorker() *sendWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	best := s.workers[0]
	for _, w := range s.workers[1:] {
		if w.loadValue() < best.loadValue() {
			best = w
		}
	}
	return best
}

func (s *Server) getOrCreateObject(id string) *timingObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		o = newTimingObject(id)
		s.objects[id] = o
		log.Debugf("created timing object %q", id)
	}
	return o
}

func (s *Server) getObject(id string) (*timingObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	return o, ok
}

// handleInfo implements spec.md §4.9: create the object if unknown,
// subscribe the channel, and reply only on that channel with the
// extrapolated current vector.
func (s *Server) handleInfo(sub *subscriber, env *wire.Envelope) {
	if env.ID == "" {
		log.Warning("dropping info message with empty id")
		return
	}
	obj := s.getOrCreateObject(env.ID)
	obj.addSubscriber(sub)
	sub.addID(env.ID)
	s.Stats.Inc("info_requests")

	sub.send(&wire.Envelope{
		Type:   wire.TypeInfo,
		ID:     env.ID,
		Vector: vectorToDTO(obj.query()),
	})
}

// handleUpdate implements spec.md §4.9: apply the update if the id is
// known and fan out the resulting change to every subscriber of that
// id, including the originator. Unknown ids are dropped with a log.
//
// applyUpdate holds obj's lock across computing the new vector,
// stamping it with "now", and snapshotting the subscriber set, and
// invokes the emit callback synchronously within that same critical
// section (see object.go). That serializes concurrent updates to the
// same id so the stored timestamp never regresses and so each update's
// broadcast list is captured in the same order its vector was
// committed, satisfying invariant 6 and spec.md §5's atomicity
// requirement.
func (s *Server) handleUpdate(sub *subscriber, env *wire.Envelope) {
	obj, ok := s.getObject(env.ID)
	if !ok {
		log.Warningf("dropping update for unknown id %q", env.ID)
		s.Stats.Inc("update_unknown_id")
		return
	}
	obj.applyUpdate(updateFromDTO(env.Vector), func(v motion.Vector, subs []*subscriber, seq uint64) {
		s.Stats.Inc("updates")
		s.broadcastChange(obj, v, subs, seq)
	})
}

// broadcastChange fans a change out to the subs snapshotted under
// obj's lock at the moment the update that produced v was applied.
// Per-subscriber enqueue runs concurrently (there is no ordering
// guarantee across channels, per spec.md §5), joined with errgroup the
// same way fbclock/daemon.runLinearizabilityTests joins its per-target
// goroutines.
func (s *Server) broadcastChange(obj *timingObject, v motion.Vector, subs []*subscriber, seq uint64) {
	dto := vectorToDTO(v)
	s.Stats.Set("subscribers."+obj.id, int64(len(subs)))

	var eg errgroup.Group
	for _, sub := range subs {
		sub := sub
		eg.Go(func() error {
			sub.send(&wire.Envelope{Type: wire.TypeChange, ID: obj.id, Vector: dto, Seq: seq})
			return nil
		})
	}
	_ = eg.Wait()
	s.Stats.Inc("changes")
}

// handleSync implements spec.md §4.9: reply only on the originating
// channel with the round-trip bookkeeping and the process-wide delta.
// Server.Sent is filled in by the worker immediately before the
// socket write (see worker.go) so the interval is never inflated by
// queueing.
func (s *Server) handleSync(sub *subscriber, env *wire.Envelope) {
	received := motion.NowMillis()
	var clientSent int64
	if env.Client != nil {
		clientSent = env.Client.Sent
	}
	s.Stats.Inc("syncs")
	sub.send(&wire.Envelope{
		Type:   wire.TypeSync,
		ID:     env.ID,
		Client: &wire.SyncClientDTO{Sent: clientSent},
		Server: &wire.SyncServerDTO{Received: received},
		Delta:  wire.Int64Ptr(s.Config.Delta),
	})
}

// onChannelClosed removes sub from every timing object's subscriber
// set and from the global set, per spec.md §4.9.
func (s *Server) onChannelClosed(sub *subscriber) {
	for _, id := range sub.idSnapshot() {
		if obj, ok := s.getObject(id); ok {
			obj.removeSubscriber(sub)
		}
	}
	s.mu.Lock()
	delete(s.subscribers, sub)
	s.mu.Unlock()
}

// SubscriberCount reports how many channels are currently subscribed
// to id, for tests and diagnostics.
func (s *Server) SubscriberCount(id string) int {
	obj, ok := s.getObject(id)
	if !ok {
		return 0
	}
	return obj.subscriberCount()
}

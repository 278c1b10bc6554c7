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
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Stats is a mutex-guarded counter map, adapted from
// fbclock/daemon/stats.go's StatsServer/Stats.
type Stats struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{counters: map[string]int64{}}
}

// IncBy increments a counter by delta.
func (s *Stats) IncBy(key string, delta int64) {
	s.mu.Lock()
	s.counters[key] += delta
	s.mu.Unlock()
}

// Inc increments a counter by 1.
func (s *Stats) Inc(key string) { s.IncBy(key, 1) }

// Set sets a counter to an absolute value.
func (s *Stats) Set(key string, val int64) {
	s.mu.Lock()
	s.counters[key] = val
	s.mu.Unlock()
}

// Snapshot returns a copy of all counters, for the JSON endpoint.
func (s *Stats) Snapshot() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

// ServeHTTP implements a pull-only JSON stats endpoint, adapted from
// ptp4u/stats/json.go's handleRequest.
func (s *Stats) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := json.Marshal(s.Snapshot())
	if err != nil {
		log.Errorf("failed to marshal stats: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(data); err != nil {
		log.Debugf("failed to write stats response: %v", err)
	}
}

// StartMonitoring runs the stats HTTP server on the given port if
// port != 0, mirroring ptp4u/stats/json.go's Start.
func (s *Stats) StartMonitoring(port int) {
	if port == 0 {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/", s)
	addr := fmt.Sprintf(":%d", port)
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorf("stats server stopped: %v", err)
		}
	}()
}

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

package syncclock

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/eclesh/welford"
	log "github.com/sirupsen/logrus"

	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/wire"
	"github.com/aldrin-labs/timingobject/internal/wsconn"
)

// Tuning constants from spec.md §4.4.
const (
	defaultNInit                 = 10
	defaultIInit                 = 10 * time.Millisecond
	defaultInitAttemptTimeout    = time.Second
	defaultMinRoundtripThreshold = 5 * time.Millisecond
	defaultBatchInterval         = 10 * time.Second
	defaultMaxAttempts           = 10
	defaultAttemptInterval       = 500 * time.Millisecond
)

type syncSample struct {
	roundtripMs int64
	skewMs      int64
	delta       *int64
}

type pendingSync struct {
	resultCh chan *wire.Envelope
}

// SocketClock is the SocketSyncClock: it estimates skew against a
// server's reference clock by round-tripping "sync" messages over a
// shared Channel (see spec.md §4.4 for the full algorithm).
type SocketClock struct {
	base

	channel *wsconn.Channel
	id      string

	nInit                 int
	iInit                 time.Duration
	initAttemptTimeout    time.Duration
	minRoundtripThreshold int64 // ms
	batchInterval         time.Duration
	maxAttempts           int
	attemptInterval       time.Duration

	mu                 sync.Mutex
	pending            map[int64]*pendingSync
	roundtripMin       int64
	roundtripThreshold int64

	rtt *welford.Stats

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSocket builds a SocketClock bound to id on channel and starts its
// initialization phase in the background. The caller owns channel's
// lifecycle jointly with whatever else shares it (see spec.md §5,
// "Shared resources").
func NewSocket(channel *wsconn.Channel, id string) *SocketClock {
	c := &SocketClock{
		base:                  newBase(motion.NowMillis),
		channel:               channel,
		id:                    id,
		nInit:                 defaultNInit,
		iInit:                 defaultIInit,
		initAttemptTimeout:    defaultInitAttemptTimeout,
		minRoundtripThreshold: defaultMinRoundtripThreshold.Milliseconds(),
		batchInterval:         defaultBatchInterval,
		maxAttempts:           defaultMaxAttempts,
		attemptInterval:       defaultAttemptInterval,
		pending:               make(map[int64]*pendingSync),
		rtt:                   welford.New(),
		stopCh:                make(chan struct{}),
	}
	channel.OnType(wire.TypeSync, c.handleResponse)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.initPhase()
	}()
	return c
}

func (c *SocketClock) handleResponse(env *wire.Envelope) {
	if env.Client == nil {
		return
	}
	c.mu.Lock()
	p, ok := c.pending[env.Client.Sent]
	if ok {
		delete(c.pending, env.Client.Sent)
	}
	c.mu.Unlock()
	if !ok {
		// response to an attempt we already gave up on (wrong/expired id)
		return
	}
	select {
	case p.resultCh <- env:
	default:
	}
}

func (c *SocketClock) register(sentLocal int64) chan *wire.Envelope {
	ch := make(chan *wire.Envelope, 1)
	c.mu.Lock()
	c.pending[sentLocal] = &pendingSync{resultCh: ch}
	c.mu.Unlock()
	return ch
}

func (c *SocketClock) unregister(sentLocal int64) {
	c.mu.Lock()
	delete(c.pending, sentLocal)
	c.mu.Unlock()
}

func (c *SocketClock) sendSync(sentLocal int64) error {
	return c.channel.Send(&wire.Envelope{
		Type:   wire.TypeSync,
		ID:     c.id,
		Client: &wire.SyncClientDTO{Sent: sentLocal},
	})
}

func (c *SocketClock) threshold() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundtripThreshold
}

func (c *SocketClock) setThreshold(v int64) {
	c.mu.Lock()
	c.roundtripThreshold = v
	c.mu.Unlock()
}

func (c *SocketClock) roundtripMinVal() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roundtripMin
}

func (c *SocketClock) setRoundtripMin(v int64) {
	c.mu.Lock()
	c.roundtripMin = v
	c.mu.Unlock()
}

// initPhase runs the N_init-sample burst described in spec.md §4.4 and
// transitions readyState to Open once it concludes, regardless of how
// many samples actually landed (a dead channel should not wedge the
// clock forever in Connecting; it simply starts with skew 0).
func (c *SocketClock) initPhase() {
	samples := make([]syncSample, 0, c.nInit)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < c.nInit; i++ {
		sentLocal := motion.NowMillis()
		resultCh := c.register(sentLocal)
		if err := c.sendSync(sentLocal); err != nil {
			log.Debugf("sync send failed during init: %v", err)
			c.unregister(sentLocal)
		} else {
			wg.Add(1)
			go func(sentLocal int64, resultCh chan *wire.Envelope) {
				defer wg.Done()
				select {
				case env := <-resultCh:
					receivedLocal := motion.NowMillis()
					s := sampleFromResponse(sentLocal, receivedLocal, env)
					mu.Lock()
					samples = append(samples, s)
					mu.Unlock()
				case <-time.After(c.initAttemptTimeout):
					c.unregister(sentLocal)
				case <-c.stopCh:
					c.unregister(sentLocal)
				}
			}(sentLocal, resultCh)
		}

		select {
		case <-time.After(c.iInit):
		case <-c.stopCh:
			wg.Wait()
			return
		}
	}
	wg.Wait()

	if len(samples) > 0 {
		sort.Slice(samples, func(i, j int) bool { return samples[i].roundtripMs < samples[j].roundtripMs })
		for _, s := range samples {
			c.rtt.Add(float64(s.roundtripMs))
		}

		roundtripMin := samples[0].roundtripMs
		skew := samples[0].skewMs

		idx := int(math.Ceil(float64(c.nInit)/2)) - 1
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		threshold := samples[idx].roundtripMs
		floor := c.minRoundtripThreshold
		if f := int64(math.Ceil(1.30 * float64(roundtripMin))); f > floor {
			floor = f
		}
		if threshold < floor {
			threshold = floor
		}

		var delta int64
		if samples[0].delta != nil {
			delta = *samples[0].delta
		}

		c.mu.Lock()
		c.roundtripMin = roundtripMin
		c.roundtripThreshold = threshold
		c.mu.Unlock()

		c.setSkewDelta(skew, delta)
	} else {
		c.mu.Lock()
		c.roundtripThreshold = c.minRoundtripThreshold
		c.mu.Unlock()
		log.Warningf("sync clock for %s got no successful samples during init", c.id)
	}

	c.setReadyState(Open)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.steadyState()
	}()
}

func sampleFromResponse(sentLocal, receivedLocal int64, env *wire.Envelope) syncSample {
	var serverReceived, serverSent int64
	if env.Server != nil {
		serverReceived = env.Server.Received
		serverSent = env.Server.Sent
	}
	skew := ((serverReceived + serverSent) - (sentLocal + receivedLocal)) / 2
	return syncSample{
		roundtripMs: receivedLocal - sentLocal,
		skewMs:      skew,
		delta:       env.Delta,
	}
}

// steadyState runs one sync batch every batchInterval per spec.md
// §4.4, until Close is called.
func (c *SocketClock) steadyState() {
	ticker := time.NewTicker(c.batchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.runBatch()
		}
	}
}

func (c *SocketClock) runBatch() {
	attempts := 0
	for {
		attempts++
		sentLocal := motion.NowMillis()
		resultCh := c.register(sentLocal)
		if err := c.sendSync(sentLocal); err != nil {
			c.unregister(sentLocal)
			log.Debugf("sync send failed: %v", err)
			return
		}

		wait := time.Duration(c.threshold()) * time.Millisecond
		select {
		case env := <-resultCh:
			receivedLocal := motion.NowMillis()
			s := sampleFromResponse(sentLocal, receivedLocal, env)
			threshold := c.threshold()
			if s.roundtripMs > threshold {
				// outlier, drop the sample and wait for next batch
				return
			}
			c.rtt.Add(float64(s.roundtripMs))

			min := c.roundtripMinVal()
			if s.roundtripMs < min {
				newThreshold := int64(math.Ceil(float64(threshold) * (float64(s.roundtripMs) / float64(min))))
				if newThreshold < c.minRoundtripThreshold {
					newThreshold = c.minRoundtripThreshold
				}
				c.setThreshold(newThreshold)
				c.setRoundtripMin(s.roundtripMs)
			}

			if diff := s.skewMs - c.Skew(); diff >= 1 || diff <= -1 {
				delta := c.Delta()
				if s.delta != nil {
					delta = *s.delta
				}
				c.setSkewDelta(s.skewMs, delta)
			}
			return
		case <-time.After(wait):
			c.unregister(sentLocal)
			if attempts < c.maxAttempts {
				select {
				case <-time.After(c.attemptInterval):
				case <-c.stopCh:
					return
				}
				continue
			}
			c.setThreshold(int64(math.Ceil(float64(c.threshold()) * 1.20)))
			return
		case <-c.stopCh:
			c.unregister(sentLocal)
			return
		}
	}
}

// RoundtripStats returns the running mean/stddev of accepted
// round-trip samples, for diagnostics (cmd/timingclient probe).
func (c *SocketClock) RoundtripStats() (meanMs, stddevMs float64) {
	return c.rtt.Mean(), c.rtt.Stddev()
}

// Close is idempotent and terminal: it stops the init/steady-state
// goroutines and transitions to Closed.
func (c *SocketClock) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.setReadyState(Closed)
}

var _ Clock = (*SocketClock)(nil)

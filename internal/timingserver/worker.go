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
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/wire"
)

// sendTask is one outbound message queued for a subscriber, adapted
// from ptp4u/server/worker.go's queue of *SubscriptionClient.
type sendTask struct {
	sub *subscriber
	env *wire.Envelope
}

// sendWorker monitors its queue and delivers messages to subscribers
// in the order they were enqueued, so a given channel's outbound
// order (spec.md §5) is preserved regardless of how many subscribers
// share the worker pool.
type sendWorker struct {
	id    int
	queue chan sendTask
	load  int64 // atomic, number of tasks currently queued
}

func newSendWorker(id, queueSize int) *sendWorker {
	return &sendWorker{
		id:    id,
		queue: make(chan sendTask, queueSize),
	}
}

// Start drains the queue until it is closed. Run this in its own
// goroutine.
func (w *sendWorker) Start() {
	for task := range w.queue {
		atomic.AddInt64(&w.load, -1)
		// sync responses capture their server-sent timestamp as late
		// as possible, immediately before the write, so the server
		// never artificially inflates the round trip (spec.md §4.9).
		if task.env.Type == wire.TypeSync && task.env.Server != nil {
			task.env.Server.Sent = motion.NowMillis()
		}
		if err := task.sub.channel.Send(task.env); err != nil {
			log.Debugf("worker %d: dropping subscriber after send error: %v", w.id, err)
			// closing the channel ends its read loop, which removes the
			// subscriber from every timing object (Server.onChannelClosed)
			_ = task.sub.channel.Close()
			continue
		}
	}
}

// enqueue queues task for delivery. A full queue drops the task and
// logs, rather than blocking the caller and stalling unrelated
// subscribers (spec.md §7: "a send failure to one channel must not
// affect others").
func (w *sendWorker) enqueue(task sendTask) {
	select {
	case w.queue <- task:
		atomic.AddInt64(&w.load, 1)
	default:
		log.Warningf("worker %d: queue full, dropping message type %s for id %s", w.id, task.env.Type, task.env.ID)
	}
}

func (w *sendWorker) loadValue() int64 {
	return atomic.LoadInt64(&w.load)
}

// stop closes the queue; any queued-but-undelivered tasks are dropped.
func (w *sendWorker) stop() {
	close(w.queue)
}

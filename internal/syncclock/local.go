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

import "github.com/aldrin-labs/timingobject/internal/motion"

// LocalClock is a SyncClock with skew=0, delta=0, open immediately
// after construction. It exists for tests and for locally-mastered
// timing objects that never talk to a server.
type LocalClock struct {
	base
}

// NewLocal returns a LocalClock already in the Open state.
func NewLocal() *LocalClock {
	c := &LocalClock{base: newBase(motion.NowMillis)}
	c.setReadyState(Open)
	return c
}

// Close transitions to Closed. Idempotent.
func (c *LocalClock) Close() {
	c.setReadyState(Closed)
}

var _ Clock = (*LocalClock)(nil)

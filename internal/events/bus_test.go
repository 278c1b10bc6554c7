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

package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEmitDispatchesInRegistrationOrder(t *testing.T) {
	b := NewBus()
	var order []int
	b.On("x", func(any) { order = append(order, 1) })
	b.On("x", func(any) { order = append(order, 2) })
	b.On("x", func(any) { order = append(order, 3) })

	b.Emit("x", nil)
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestEmitPassesPayload(t *testing.T) {
	b := NewBus()
	var got any
	b.On("x", func(payload any) { got = payload })
	b.Emit("x", 42)
	require.Equal(t, 42, got)
}

func TestOffUnsubscribes(t *testing.T) {
	b := NewBus()
	calls := 0
	off := b.On("x", func(any) { calls++ })
	b.Emit("x", nil)
	off()
	b.Emit("x", nil)
	require.Equal(t, 1, calls)
}

func TestEmitAsyncRunsOnAnotherGoroutine(t *testing.T) {
	b := NewBus()
	done := make(chan struct{})
	var mu sync.Mutex
	var fired bool
	b.On("x", func(any) {
		mu.Lock()
		fired = true
		mu.Unlock()
		close(done)
	})

	b.EmitAsync("x", nil)

	mu.Lock()
	immediatelyFired := fired
	mu.Unlock()
	require.False(t, immediatelyFired, "EmitAsync must not dispatch synchronously")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener never fired")
	}
}

func TestEmitOnlyReachesListenersRegisteredAtCallTime(t *testing.T) {
	b := NewBus()
	calls := 0
	b.On("x", func(any) { calls++ })
	b.Emit("x", nil)
	b.On("x", func(any) { calls++ })
	require.Equal(t, 1, calls)
}

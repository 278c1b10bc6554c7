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
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocalClockOpensImmediatelyWithZeroSkewAndDelta(t *testing.T) {
	c := NewLocal()
	require.Equal(t, Open, c.ReadyState())
	require.Equal(t, int64(0), c.Skew())
	require.Equal(t, int64(0), c.Delta())
}

func TestLocalClockGetTimeIsIdentity(t *testing.T) {
	c := NewLocal()
	require.Equal(t, int64(1000), c.GetTime(1000))
}

func TestLocalClockCloseIsIdempotent(t *testing.T) {
	c := NewLocal()
	c.Close()
	c.Close()
	require.Equal(t, Closed, c.ReadyState())
}

func TestLocalClockEmitsReadyStateChangeAsynchronously(t *testing.T) {
	c := NewLocal()
	fired := make(chan ReadyState, 2)
	c.Bus().On("readystatechange", func(payload any) {
		if s, ok := payload.(ReadyState); ok {
			fired <- s
		}
	})
	c.Close()

	// The initial transition to Open is emitted on the next tick, so a
	// listener registered right after construction sees it as well as
	// Closed; the two deliveries run on separate goroutines, in no
	// fixed order.
	var got []ReadyState
	for len(got) < 2 {
		select {
		case s := <-fired:
			got = append(got, s)
		case <-time.After(time.Second):
			t.Fatal("readystatechange never fired")
		}
	}
	require.ElementsMatch(t, []ReadyState{Open, Closed}, got)
}

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

package cmd

import (
	"fmt"
	"time"

	"github.com/aldrin-labs/timingobject/internal/provider"
	"github.com/aldrin-labs/timingobject/internal/syncclock"
	"github.com/aldrin-labs/timingobject/internal/wsconn"
)

// connect dials url, builds a SocketSyncClock and SocketTimingProvider
// that share the channel, and blocks until the provider reaches Open
// (or the given timeout elapses).
func connect(url, objectID string, timeout time.Duration) (*provider.Socket, func(), error) {
	channel, err := wsconn.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	clock := syncclock.NewSocket(channel, objectID)
	p := provider.NewSocket(channel, clock, objectID, true, true)
	go channel.Serve()

	deadline := time.After(timeout)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for p.ReadyState() != provider.Open {
		select {
		case <-tick.C:
			if p.ReadyState() == provider.Closed {
				p.Close()
				return nil, nil, fmt.Errorf("connecting to %s: provider closed before opening", url)
			}
		case <-deadline:
			p.Close()
			return nil, nil, fmt.Errorf("connecting to %s: timed out waiting for open", url)
		}
	}

	cleanup := func() { p.Close() }
	return p, cleanup, nil
}

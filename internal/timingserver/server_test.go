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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aldrin-labs/timingobject/internal/wire"
	"github.com/aldrin-labs/timingobject/internal/wsconn"
)

// newTestServer wires up a Server's upgrade handler behind an
// httptest.Server, without going through Start()'s blocking
// http.ListenAndServe, so tests can dial it directly.
func newTestServer(t *testing.T, delta int64) (s *Server, url string, closeFn func()) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Delta = delta
	s = New(cfg)
	s.workers = make([]*sendWorker, 2)
	for i := range s.workers {
		s.workers[i] = newSendWorker(i, 128)
		go s.workers[i].Start()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	srv := httptest.NewServer(mux)
	url = "ws" + strings.TrimPrefix(srv.URL, "http") + "/objects/ball"
	return s, url, srv.Close
}

func dialAndDrain(t *testing.T, url string) (*wsconn.Channel, chan *wire.Envelope) {
	t.Helper()
	ch, err := wsconn.Dial(url)
	require.NoError(t, err)
	inbox := make(chan *wire.Envelope, 16)
	ch.OnType(wire.TypeInfo, func(env *wire.Envelope) { inbox <- env })
	ch.OnType(wire.TypeChange, func(env *wire.Envelope) { inbox <- env })
	ch.OnType(wire.TypeSync, func(env *wire.Envelope) { inbox <- env })
	go ch.Serve()
	return ch, inbox
}

func TestServerInfoCreatesObjectAndRepliesOnlyToRequester(t *testing.T) {
	_, url, closeSrv := newTestServer(t, 0)
	defer closeSrv()

	chA, inboxA := dialAndDrain(t, url)
	defer chA.Close()

	require.NoError(t, chA.Send(&wire.Envelope{Type: wire.TypeInfo, ID: "/objects/ball"}))

	select {
	case env := <-inboxA:
		require.Equal(t, wire.TypeInfo, env.Type)
		require.Equal(t, "/objects/ball", env.ID)
		require.NotNil(t, env.Vector)
		require.Equal(t, 0.0, *env.Vector.Position)
	case <-time.After(time.Second):
		t.Fatal("never got info reply")
	}
}

func TestServerBroadcastsChangeToAllSubscribersIncludingOriginator(t *testing.T) {
	_, url, closeSrv := newTestServer(t, 0)
	defer closeSrv()

	chA, inboxA := dialAndDrain(t, url)
	defer chA.Close()
	chB, inboxB := dialAndDrain(t, url)
	defer chB.Close()

	require.NoError(t, chA.Send(&wire.Envelope{Type: wire.TypeInfo, ID: "/objects/ball"}))
	require.NoError(t, chB.Send(&wire.Envelope{Type: wire.TypeInfo, ID: "/objects/ball"}))
	drainInfo(t, inboxA)
	drainInfo(t, inboxB)

	vel := 1.0
	require.NoError(t, chA.Send(&wire.Envelope{
		Type: wire.TypeUpdate, ID: "/objects/ball",
		Vector: &wire.VectorDTO{Velocity: &vel},
	}))

	va := requireChange(t, inboxA)
	vb := requireChange(t, inboxB)
	require.Equal(t, *va.Vector.Velocity, *vb.Vector.Velocity)
	require.Equal(t, va.Vector.Timestamp, vb.Vector.Timestamp)
	require.Equal(t, va.Seq, vb.Seq)
	require.NotZero(t, va.Seq)
}

func drainInfo(t *testing.T, inbox chan *wire.Envelope) {
	t.Helper()
	select {
	case env := <-inbox:
		require.Equal(t, wire.TypeInfo, env.Type)
	case <-time.After(time.Second):
		t.Fatal("never got info reply")
	}
}

func requireChange(t *testing.T, inbox chan *wire.Envelope) *wire.Envelope {
	t.Helper()
	select {
	case env := <-inbox:
		require.Equal(t, wire.TypeChange, env.Type)
		return env
	case <-time.After(time.Second):
		t.Fatal("never got change broadcast")
		return nil
	}
}

func TestServerDropsUpdateForUnknownID(t *testing.T) {
	s, url, closeSrv := newTestServer(t, 0)
	defer closeSrv()

	ch, _ := dialAndDrain(t, url)
	defer ch.Close()

	vel := 1.0
	require.NoError(t, ch.Send(&wire.Envelope{
		Type: wire.TypeUpdate, ID: "/objects/never-created",
		Vector: &wire.VectorDTO{Velocity: &vel},
	}))

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, s.SubscriberCount("/objects/never-created"))
}

func TestServerSyncRepliesWithDeltaAndServerTimestamps(t *testing.T) {
	_, url, closeSrv := newTestServer(t, 250)
	defer closeSrv()

	ch, inbox := dialAndDrain(t, url)
	defer ch.Close()

	require.NoError(t, ch.Send(&wire.Envelope{
		Type: wire.TypeSync, ID: "/objects/ball",
		Client: &wire.SyncClientDTO{Sent: 12345},
	}))

	select {
	case env := <-inbox:
		require.Equal(t, wire.TypeSync, env.Type)
		require.Equal(t, int64(12345), env.Client.Sent)
		require.NotZero(t, env.Server.Received)
		require.NotZero(t, env.Server.Sent)
		require.Equal(t, int64(250), *env.Delta)
	case <-time.After(time.Second):
		t.Fatal("never got sync reply")
	}
}

func TestServerRemovesChannelFromSubscribersOnClose(t *testing.T) {
	s, url, closeSrv := newTestServer(t, 0)
	defer closeSrv()

	ch, inbox := dialAndDrain(t, url)
	require.NoError(t, ch.Send(&wire.Envelope{Type: wire.TypeInfo, ID: "/objects/ball"}))
	drainInfo(t, inbox)

	require.Equal(t, 1, s.SubscriberCount("/objects/ball"))

	require.NoError(t, ch.Close())
	require.Eventually(t, func() bool {
		return s.SubscriberCount("/objects/ball") == 0
	}, time.Second, 10*time.Millisecond)
}

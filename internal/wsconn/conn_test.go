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

package wsconn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aldrin-labs/timingobject/internal/wire"
)

func newEchoServer(t *testing.T) (url string, closeFn func()) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		ch := New(conn)
		ch.OnType(wire.TypeInfo, func(env *wire.Envelope) {
			_ = ch.Send(&wire.Envelope{Type: wire.TypeInfo, ID: env.ID})
		})
		ch.OnType(wire.TypeUpdate, func(env *wire.Envelope) {
			_ = ch.Send(&wire.Envelope{Type: wire.TypeChange, ID: env.ID, Vector: env.Vector})
		})
		ch.OnType(wire.TypeSync, func(env *wire.Envelope) {
			_ = ch.Send(&wire.Envelope{Type: wire.TypeSync, ID: env.ID})
		})
		ch.Serve()
	})
	srv := httptest.NewServer(mux)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/", srv.Close
}

func TestChannelDialAndRoundTrip(t *testing.T) {
	url, closeSrv := newEchoServer(t)
	defer closeSrv()

	ch, err := Dial(url)
	require.NoError(t, err)
	defer ch.Close()

	changes := make(chan *wire.Envelope, 1)
	ch.OnType(wire.TypeInfo, func(env *wire.Envelope) { changes <- env })
	go ch.Serve()

	require.NoError(t, ch.Send(&wire.Envelope{Type: wire.TypeInfo, ID: "/x"}))

	select {
	case env := <-changes:
		require.Equal(t, "/x", env.ID)
	case <-time.After(time.Second):
		t.Fatal("never got info reply")
	}
}

func TestChannelDemultiplexesByType(t *testing.T) {
	url, closeSrv := newEchoServer(t)
	defer closeSrv()

	ch, err := Dial(url)
	require.NoError(t, err)
	defer ch.Close()

	infos := make(chan *wire.Envelope, 1)
	changesCh := make(chan *wire.Envelope, 1)
	ch.OnType(wire.TypeInfo, func(env *wire.Envelope) { infos <- env })
	ch.OnType(wire.TypeChange, func(env *wire.Envelope) { changesCh <- env })
	go ch.Serve()

	vel := 2.0
	require.NoError(t, ch.Send(&wire.Envelope{Type: wire.TypeUpdate, ID: "/y", Vector: &wire.VectorDTO{Velocity: &vel}}))

	select {
	case env := <-changesCh:
		require.Equal(t, "/y", env.ID)
		require.Equal(t, 2.0, *env.Vector.Velocity)
	case <-infos:
		t.Fatal("update response dispatched to info handler")
	case <-time.After(time.Second):
		t.Fatal("never got change reply")
	}
}

func TestChannelUnhandledFallback(t *testing.T) {
	url, closeSrv := newEchoServer(t)
	defer closeSrv()

	ch, err := Dial(url)
	require.NoError(t, err)
	defer ch.Close()

	dropped := make(chan *wire.Envelope, 1)
	ch.OnUnhandled(func(env *wire.Envelope) { dropped <- env })
	go ch.Serve()

	require.NoError(t, ch.Send(&wire.Envelope{Type: wire.TypeSync, ID: "/z"}))

	select {
	case env := <-dropped:
		require.Equal(t, "/z", env.ID)
	case <-time.After(time.Second):
		t.Fatal("unhandled message never reached fallback")
	}
}

func TestChannelClosedFiresOnClose(t *testing.T) {
	url, closeSrv := newEchoServer(t)
	defer closeSrv()

	ch, err := Dial(url)
	require.NoError(t, err)
	go ch.Serve()

	require.NoError(t, ch.Close())

	select {
	case <-ch.Closed():
	case <-time.After(time.Second):
		t.Fatal("Closed() channel never closed")
	}
}

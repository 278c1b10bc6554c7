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

// Package wsconn wraps a gorilla/websocket connection into the
// bidirectional, ordered, text-message Channel the rest of this
// module talks to, and demultiplexes inbound messages by wire.Type so
// that a SocketTimingProvider and its SocketSyncClock can share one
// connection without handler-replacement tricks (see spec.md §5 and
// §9, "Shared resources").
package wsconn

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/aldrin-labs/timingobject/internal/wire"
)

// Subprotocol is the WebSocket subprotocol negotiated by both ends,
// per spec.md §6.
const Subprotocol = "echo-protocol"

// Upgrader is shared by the server to accept a connection.
var Upgrader = websocket.Upgrader{
	Subprotocols:    []string{Subprotocol},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// autoAcceptConnections = false per spec.md §4.9: origin is
	// inspected before the channel is accepted. This is a stub policy,
	// same as the spec calls for; production deployments are expected
	// to replace it.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Channel is the bidirectional message channel both the client and
// server sides program against. Writes are serialized internally;
// reads are demultiplexed by message type to independently registered
// handlers.
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[wire.Type]func(*wire.Envelope)
	fallback func(*wire.Envelope)

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an already-established *websocket.Conn.
func New(conn *websocket.Conn) *Channel {
	c := &Channel{
		conn:     conn,
		handlers: make(map[wire.Type]func(*wire.Envelope)),
		closed:   make(chan struct{}),
	}
	return c
}

// Dial connects to a server URL (ws:// or wss://) and returns a ready
// Channel.
func Dial(url string) (*Channel, error) {
	dialer := websocket.Dialer{
		Subprotocols:     []string{Subprotocol},
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// OnType registers the handler that will receive every inbound
// message of the given type. Only one handler per type is supported,
// matching the spec's "demultiplexer routes by type" design note.
func (c *Channel) OnType(t wire.Type, fn func(*wire.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = fn
}

// OnUnhandled registers a fallback for message types with no
// registered OnType handler (used for logging/dropping).
func (c *Channel) OnUnhandled(fn func(*wire.Envelope)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = fn
}

// Serve runs the read loop until the connection closes or errors.
// Binary frames are ignored per spec.md §6. Call this from its own
// goroutine; it blocks.
func (c *Channel) Serve() {
	defer c.markClosed()
	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debugf("channel closed: %v", err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		env, err := wire.Unmarshal(data)
		if err != nil {
			log.Warningf("dropping malformed message: %v", err)
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env *wire.Envelope) {
	c.mu.Lock()
	fn, ok := c.handlers[env.Type]
	fallback := c.fallback
	c.mu.Unlock()
	if ok && fn != nil {
		fn(env)
		return
	}
	if fallback != nil {
		fallback(env)
		return
	}
	log.Debugf("no handler for message type %q, dropping", env.Type)
}

// Send writes env to the connection. Writes are serialized so
// per-channel FIFO ordering is preserved regardless of how many
// goroutines call Send concurrently.
func (c *Channel) Send(env *wire.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Closed returns a channel closed once this Channel has closed.
func (c *Channel) Closed() <-chan struct{} {
	return c.closed
}

func (c *Channel) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// Close closes the underlying connection. Idempotent.
func (c *Channel) Close() error {
	c.markClosed()
	return c.conn.Close()
}

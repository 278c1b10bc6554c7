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

// Package wire defines the JSON message envelope exchanged between a
// SocketTimingProvider/SocketSyncClock client and a TimingServer, per
// the protocol's external interface: info, update, change and sync
// messages, all keyed by the timing-object's URL path in "id".
package wire

import "encoding/json"

// Type enumerates the known message types. Unknown types are dropped
// by both ends.
type Type string

// Message types exchanged on the channel.
const (
	TypeInfo   Type = "info"
	TypeUpdate Type = "update"
	TypeChange Type = "change"
	TypeSync   Type = "sync"
)

// VectorDTO is the wire form of a motion vector. Position, Velocity
// and Acceleration are pointers in Update messages so that a missing
// field is distinguishable from an explicit zero ("keep current");
// in Info/Change responses all three are always populated.
type VectorDTO struct {
	Position     *float64 `json:"position,omitempty"`
	Velocity     *float64 `json:"velocity,omitempty"`
	Acceleration *float64 `json:"acceleration,omitempty"`
	Timestamp    float64  `json:"timestamp"` // seconds, float
}

// SyncClientDTO is the client-supplied half of a sync round trip.
type SyncClientDTO struct {
	Sent int64 `json:"sent"` // ms since epoch
}

// SyncServerDTO is the server-supplied half of a sync round trip.
type SyncServerDTO struct {
	Received int64 `json:"received"` // ms since epoch
	Sent     int64 `json:"sent"`     // ms since epoch
}

// Envelope is the superset of fields across all message types; only
// the fields relevant to Type are populated on the wire, the rest are
// omitted via omitempty.
type Envelope struct {
	Type   Type           `json:"type"`
	ID     string         `json:"id"`
	Vector *VectorDTO     `json:"vector,omitempty"`
	Client *SyncClientDTO `json:"client,omitempty"`
	Server *SyncServerDTO `json:"server,omitempty"`
	Delta  *int64         `json:"delta,omitempty"`
	Seq    uint64         `json:"seq,omitempty"`
}

// Marshal encodes the envelope as the UTF-8 JSON text frame put on
// the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a text frame into an Envelope. Malformed input is
// the caller's responsibility to log-and-drop, per the error taxonomy:
// this function returns the json error unchanged.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Float64Ptr is a small helper so callers can write Float64Ptr(x)
// instead of spelling out a local variable every time they build an
// Update/VectorDTO with optional fields.
func Float64Ptr(v float64) *float64 { return &v }

// Int64Ptr mirrors Float64Ptr for the Delta field.
func Int64Ptr(v int64) *int64 { return &v }

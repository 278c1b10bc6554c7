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

package motion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVectorAt(t *testing.T) {
	tests := []struct {
		name     string
		v        Vector
		t        float64
		wantPos  float64
		wantVel  float64
		wantAcc  float64
	}{
		{
			name:    "constant velocity, no acceleration",
			v:       NewAt(0, 2, 0, 0),
			t:       3,
			wantPos: 6,
			wantVel: 2,
			wantAcc: 0,
		},
		{
			name:    "uniform acceleration from rest",
			v:       NewAt(0, 0, 4, 0),
			t:       2,
			wantPos: 8, // 0.5 * 4 * 2^2
			wantVel: 8, // 4 * 2
			wantAcc: 4,
		},
		{
			name:    "extrapolating into the past",
			v:       NewAt(10, 1, 0, 5),
			t:       2,
			wantPos: 7, // 10 + 1*(2-5)
			wantVel: 1,
			wantAcc: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.v.At(tt.t)
			require.InDelta(t, tt.wantPos, got.Position, 1e-9)
			require.InDelta(t, tt.wantVel, got.Velocity, 1e-9)
			require.InDelta(t, tt.wantAcc, got.Acceleration, 1e-9)
			require.Equal(t, tt.t, got.Timestamp)
		})
	}
}

func TestVectorIsMoving(t *testing.T) {
	require.False(t, NewAt(1, 0, 0, 0).IsMoving())
	require.True(t, NewAt(1, 1, 0, 0).IsMoving())
	require.True(t, NewAt(1, 0, 1, 0).IsMoving())
}

func TestVectorEqualToleratesFloatingPointNoise(t *testing.T) {
	a := NewAt(1, 2, 3, 0)
	b := NewAt(1+1e-12, 2-1e-12, 3, 0)
	require.True(t, a.Equal(b))

	c := NewAt(1.001, 2, 3, 0)
	require.False(t, a.Equal(c))
}

func TestVectorCompareToExtrapolatesOtherFirst(t *testing.T) {
	// other is moving; CompareTo must evaluate it at v's timestamp
	// before comparing, not compare raw stored fields.
	v := NewAt(10, 1, 0, 10)
	other := NewAt(0, 1, 0, 0) // at t=10, other's position is 10, velocity 1
	require.True(t, v.Equal(other))
}

func TestUpdateApplyKeepsUnsetFields(t *testing.T) {
	base := NewAt(1, 2, 3, 99)
	newVel := 5.0
	u := Update{Velocity: &newVel}

	got := u.Apply(base)
	require.Equal(t, 1.0, got.Position)
	require.Equal(t, 5.0, got.Velocity)
	require.Equal(t, 3.0, got.Acceleration)
	require.Equal(t, 99.0, got.Timestamp) // Apply doesn't restamp
}

func TestUpdateApplyAllFieldsSet(t *testing.T) {
	base := NewAt(1, 2, 3, 0)
	p, v, a := 10.0, 20.0, 30.0
	u := Update{Position: &p, Velocity: &v, Acceleration: &a}

	got := u.Apply(base)
	require.Equal(t, Vector{Position: 10, Velocity: 20, Acceleration: 30, Timestamp: 0}, got)
}

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

func TestNewTickRaterRejectsUnknownVariables(t *testing.T) {
	_, err := NewTickRater("offset * 2")
	require.Error(t, err)
}

func TestNewTickRaterDefaultsToFiveHz(t *testing.T) {
	r, err := NewTickRater("")
	require.NoError(t, err)
	require.Equal(t, DefaultTickRateHz, r.RateHz(NewAt(0, 0, 0, 0)))
}

func TestTickRaterEvaluatesExpression(t *testing.T) {
	r, err := NewTickRater("velocity + acceleration")
	require.NoError(t, err)
	require.InDelta(t, 7.0, r.RateHz(NewAt(0, -3, 4, 0)), 1e-9)
}

func TestTickRaterClampsToSaneRange(t *testing.T) {
	r, err := NewTickRater("velocity")
	require.NoError(t, err)
	require.Equal(t, 60.0, r.RateHz(NewAt(0, 1000, 0, 0)))
}

func TestTickRaterFallsBackOnNonPositiveResult(t *testing.T) {
	r, err := NewTickRater("velocity - velocity")
	require.NoError(t, err)
	require.Equal(t, DefaultTickRateHz, r.RateHz(NewAt(0, 5, 0, 0)))
}

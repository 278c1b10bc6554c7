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
	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/wire"
)

func vectorToDTO(v motion.Vector) *wire.VectorDTO {
	return &wire.VectorDTO{
		Position:     wire.Float64Ptr(v.Position),
		Velocity:     wire.Float64Ptr(v.Velocity),
		Acceleration: wire.Float64Ptr(v.Acceleration),
		Timestamp:    v.Timestamp,
	}
}

func updateFromDTO(dto *wire.VectorDTO) motion.Update {
	if dto == nil {
		return motion.Update{}
	}
	return motion.Update{
		Position:     dto.Position,
		Velocity:     dto.Velocity,
		Acceleration: dto.Acceleration,
	}
}

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

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aldrin-labs/timingobject/internal/motion"
	"github.com/aldrin-labs/timingobject/internal/wire"
)

var (
	updatePosition     float64
	updateVelocity     float64
	updateAcceleration float64
	updateSetPosition  bool
	updateSetVelocity  bool
	updateSetAccel     bool
	updateTimeout      time.Duration
)

func init() {
	RootCmd.AddCommand(updateCmd)
	updateCmd.Flags().Float64Var(&updatePosition, "position", 0, "new position")
	updateCmd.Flags().Float64Var(&updateVelocity, "velocity", 0, "new velocity")
	updateCmd.Flags().Float64Var(&updateAcceleration, "acceleration", 0, "new acceleration")
	updateCmd.Flags().DurationVarP(&updateTimeout, "timeout", "t", 5*time.Second, "time to wait for the channel to open")
}

var updateCmd = &cobra.Command{
	Use:   "update <url>",
	Short: "Send an update to a timing object; omitted fields keep their current value",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()

		updateSetPosition = cmd.Flags().Changed("position")
		updateSetVelocity = cmd.Flags().Changed("velocity")
		updateSetAccel = cmd.Flags().Changed("acceleration")

		p, cleanup, err := connect(args[0], id, updateTimeout)
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		var pos, vel, acc *float64
		if updateSetPosition {
			pos = wire.Float64Ptr(updatePosition)
		}
		if updateSetVelocity {
			vel = wire.Float64Ptr(updateVelocity)
		}
		if updateSetAccel {
			acc = wire.Float64Ptr(updateAcceleration)
		}

		fut := p.Update(motion.Update{Position: pos, Velocity: vel, Acceleration: acc})
		select {
		case err := <-fut:
			if err != nil {
				log.Fatal(err)
			}
			fmt.Printf("sent: %s\n", p.Query())
		case <-time.After(updateTimeout):
			log.Fatal("timed out waiting for update to be sent")
		}
	},
}

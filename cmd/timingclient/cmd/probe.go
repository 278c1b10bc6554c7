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

	"github.com/aldrin-labs/timingobject/internal/syncclock"
	"github.com/aldrin-labs/timingobject/internal/wsconn"
)

var probeTimeout time.Duration

func init() {
	RootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVarP(&probeTimeout, "timeout", "t", 5*time.Second, "time to wait for the sync clock to finish its init phase")
}

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Run the sync-clock init phase against a server and print the resulting skew/roundtrip estimate",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()

		channel, err := wsconn.Dial(args[0])
		if err != nil {
			log.Fatal(err)
		}
		defer channel.Close()

		clock := syncclock.NewSocket(channel, id)
		defer clock.Close()
		go channel.Serve()

		deadline := time.After(probeTimeout)
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for clock.ReadyState() != syncclock.Open {
			select {
			case <-tick.C:
				if clock.ReadyState() == syncclock.Closed {
					log.Fatal("sync clock closed before completing its init phase")
				}
			case <-deadline:
				log.Fatal("timed out waiting for sync clock to open")
			}
		}

		mean, stddev := clock.RoundtripStats()
		fmt.Printf("skew=%dms delta=%dms roundtrip mean=%gms stddev=%gms\n", clock.Skew(), clock.Delta(), mean, stddev)
	},
}

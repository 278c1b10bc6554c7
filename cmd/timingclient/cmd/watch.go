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
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/aldrin-labs/timingobject/internal/motion"
)

var watchTimeout time.Duration

func init() {
	RootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVarP(&watchTimeout, "timeout", "t", 5*time.Second, "time to wait for the channel to open")
}

var watchCmd = &cobra.Command{
	Use:   "watch <url>",
	Short: "Print the vector of a timing object every time it changes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()

		p, cleanup, err := connect(args[0], id, watchTimeout)
		if err != nil {
			log.Fatal(err)
		}
		defer cleanup()

		fmt.Printf("initial: %s\n", p.Query())
		p.Bus().On("change", func(payload any) {
			if v, ok := payload.(motion.Vector); ok {
				fmt.Printf("change:  %s\n", v)
			}
		})

		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
		<-sigc
	},
}

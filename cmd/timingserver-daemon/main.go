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

package main

import (
	"flag"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/aldrin-labs/timingobject/internal/timingserver"
)

func main() {
	var (
		cfg            = timingserver.DefaultConfig()
		err            error
		cfgPath        string
		verbose        bool
		monitoringPort int
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "timingserver daemon\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "usage: timingserver-daemon [flags] [delta]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "delta is the fixed number of milliseconds advertised to clients in\nevery sync response (default 0).\n\nFlags:\n")
		flag.PrintDefaults()
	}

	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Address to listen on")
	flag.StringVar(&cfgPath, "cfg", "", "Path to config")
	flag.IntVar(&cfg.Workers, "workers", cfg.Workers, "Number of send workers in the fan-out pool")
	flag.IntVar(&cfg.QueueSize, "queuesize", cfg.QueueSize, "Per-worker outbound queue size")
	flag.IntVar(&monitoringPort, "monitoringport", cfg.MonitoringPort, "Port to serve JSON stats on, 0 disables")
	flag.BoolVar(&verbose, "verbose", false, "Verbose logging")

	flag.Parse()

	log.SetReportCaller(true)
	if verbose {
		log.SetLevel(log.DebugLevel)
	}

	monitoringPortSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "monitoringport" {
			monitoringPortSet = true
		}
	})

	if cfgPath != "" {
		log.Warningf("using config from %s, flag values other than -monitoringport are ignored", cfgPath)
		cfg, err = timingserver.ReadConfig(cfgPath)
		if err != nil {
			log.Fatal(err)
		}
	}
	if cfgPath == "" || monitoringPortSet {
		cfg.MonitoringPort = monitoringPort
	}

	if flag.NArg() > 0 {
		delta, err := strconv.ParseInt(flag.Arg(0), 10, 64)
		if err != nil {
			log.Fatalf("invalid delta argument %q: %v", flag.Arg(0), err)
		}
		cfg.Delta = delta
	}

	if err := cfg.EvalAndValidate(); err != nil {
		log.Fatal(err)
	}
	log.Debugf("Config: %+v", *cfg)

	s := timingserver.New(cfg)
	if err := s.Start(); err != nil {
		log.Fatal(err)
	}
}

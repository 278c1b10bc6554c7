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
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v2"
)

// Config represents configuration we expect to read from file, or to
// set via flags on the CLI (see cmd/timingserver-daemon).
type Config struct {
	Addr           string // TCP listen address, e.g. ":8080"
	Delta          int64  // process-wide delta, ms, advertised in every sync response
	Workers        int    // size of the send-worker pool
	QueueSize      int    // per-worker outbound queue depth
	MonitoringPort int    // 0 disables the JSON stats endpoint
}

// DefaultConfig mirrors the CLI defaults from spec.md §6: delta=0,
// listen on TCP 8080.
func DefaultConfig() *Config {
	return &Config{
		Addr:      ":8080",
		Delta:     0,
		Workers:   4,
		QueueSize: 128,
	}
}

// EvalAndValidate makes sure config is valid, mirroring
// fbclock/daemon/config.go's EvalAndValidate.
func (c *Config) EvalAndValidate() error {
	if c.Delta < 0 {
		return fmt.Errorf("bad config: 'delta' must be >= 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("bad config: 'workers' must be > 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("bad config: 'queuesize' must be > 0")
	}
	if c.Addr == "" {
		return fmt.Errorf("bad config: 'addr' must be set")
	}
	return nil
}

// ReadConfig reads config and unmarshals it from yaml into Config,
// mirroring fbclock/daemon/config.go's ReadConfig.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig()
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

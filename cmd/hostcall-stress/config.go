// Copyright 2026 The Hostcall Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// A config describes one stress run. All fields have usable defaults; a TOML
// file given with --config overrides them, and command-line flags override
// the file.
type config struct {
	Buffer bufferConfig `toml:"buffer"`
	Load   loadConfig   `toml:"load"`
}

type bufferConfig struct {
	// Packets is the number of packets in the shared buffer.
	Packets uint32 `toml:"packets"`
}

type loadConfig struct {
	// Producers is the number of concurrent producer goroutines.
	Producers int `toml:"producers"`

	// Rounds is the number of packets each producer submits.
	Rounds int `toml:"rounds"`

	// Lanes is the number of active lanes per packet.
	Lanes uint `toml:"lanes"`

	// TimeoutMS bounds how long a producer waits for any one packet.
	TimeoutMS int `toml:"timeout_ms"`
}

func defaultConfig() config {
	return config{
		Buffer: bufferConfig{Packets: 16},
		Load: loadConfig{
			Producers: 64,
			Rounds:    1000,
			Lanes:     1,
			TimeoutMS: 1000,
		},
	}
}

func loadConfigFile(path string) (config, error) {
	cfg := defaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return config{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("config %q has unknown keys: %v", path, undecoded)
	}
	return cfg, nil
}

func (c *config) validate() error {
	if c.Buffer.Packets == 0 {
		return fmt.Errorf("buffer.packets must be positive")
	}
	if c.Load.Producers <= 0 {
		return fmt.Errorf("load.producers must be positive")
	}
	if c.Load.Rounds <= 0 {
		return fmt.Errorf("load.rounds must be positive")
	}
	if c.Load.Lanes == 0 || c.Load.Lanes > 64 {
		return fmt.Errorf("load.lanes must be in [1, 64], got %d", c.Load.Lanes)
	}
	if c.Load.TimeoutMS <= 0 {
		return fmt.Errorf("load.timeout_ms must be positive")
	}
	return nil
}

// Copyright 2018 The gVisor Authors.
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

// Package bootconfig loads the TOML boot manifest pkg/boot sequences
// against: the initial memory map, CPU count, and the mounts and
// modules to bring up before control passes to whatever runs on top of
// this kernel (spec.md §6: "a single boot-info structure from the
// loader describes the initial memory map... and provides the kernel's
// load base").
package bootconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Region is one usable physical memory range, as the loader would report
// it from an e820-style map.
type Region struct {
	Start uint64 `toml:"start"`
	Size  uint64 `toml:"size"`
}

// Module describes one kernel module to load at boot time, in the order
// it appears in the manifest.
type Module struct {
	Path string `toml:"path"`
}

// Mount describes one file system to attach under the root before boot
// completes.
type Mount struct {
	FSType string `toml:"fstype"`
	Source string `toml:"source"`
	Target string `toml:"target"`
}

// Config is the root of the TOML boot manifest.
type Config struct {
	NCPUs    int      `toml:"ncpus"`
	LoadBase uint64   `toml:"load_base"`
	Arena    Region   `toml:"arena"`
	Regions  []Region `toml:"memory_regions"`
	Modules  []Module `toml:"module"`
	Mounts   []Mount  `toml:"mount"`
}

// Load decodes a TOML boot manifest from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: reading %s: %w", path, err)
	}
	var cfg Config
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("bootconfig: parsing %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("bootconfig: %s has unrecognized keys: %v", path, undecoded)
	}
	if cfg.NCPUs <= 0 {
		cfg.NCPUs = 1
	}
	if cfg.Arena.Size == 0 {
		return nil, fmt.Errorf("bootconfig: %s: arena.size must be nonzero", path)
	}
	return &cfg, nil
}

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

package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/gorquan/rcore/pkg/log"
)

// bootCmd implements subcommands.Command for "boot".
type bootCmd struct {
	config string
}

func (*bootCmd) Name() string     { return "boot" }
func (*bootCmd) Synopsis() string { return "boot the kernel from a manifest and report what came up" }
func (*bootCmd) Usage() string {
	return "boot -config <manifest.toml>\n"
}

func (c *bootCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
}

func (c *bootCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" {
		fatalf("boot: -config is required")
	}
	k, cfg, err := bootKernel(ctx, c.config)
	if err != nil {
		fatalf("boot: %v", err)
	}
	fmt.Printf("booted: %d CPU(s), arena [0x%x, 0x%x), %d module(s) loaded\n",
		cfg.NCPUs, cfg.Arena.Start, cfg.Arena.Start+cfg.Arena.Size, len(k.Modules.Loaded()))
	for _, line := range log.Dmesg() {
		fmt.Println(line)
	}
	return subcommands.ExitSuccess
}

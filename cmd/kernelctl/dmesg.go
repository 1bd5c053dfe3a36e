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

// dmesgCmd implements subcommands.Command for "dmesg".
type dmesgCmd struct {
	config string
}

func (*dmesgCmd) Name() string     { return "dmesg" }
func (*dmesgCmd) Synopsis() string { return "boot, then replay the kernel log ring buffer" }
func (*dmesgCmd) Usage() string {
	return "dmesg -config <manifest.toml>\n"
}

func (c *dmesgCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
}

func (c *dmesgCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" {
		fatalf("dmesg: -config is required")
	}
	if _, _, err := bootKernel(ctx, c.config); err != nil {
		fatalf("dmesg: %v", err)
	}
	for _, line := range log.Dmesg() {
		fmt.Println(line)
	}
	return subcommands.ExitSuccess
}

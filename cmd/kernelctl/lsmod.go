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
)

// lsmodCmd implements subcommands.Command for "lsmod".
type lsmodCmd struct {
	config string
}

func (*lsmodCmd) Name() string     { return "lsmod" }
func (*lsmodCmd) Synopsis() string { return "boot, then list loaded modules" }
func (*lsmodCmd) Usage() string {
	return "lsmod -config <manifest.toml>\n"
}

func (c *lsmodCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
}

func (c *lsmodCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" {
		fatalf("lsmod: -config is required")
	}
	k, _, err := bootKernel(ctx, c.config)
	if err != nil {
		fatalf("lsmod: %v", err)
	}
	for _, name := range k.Modules.Loaded() {
		fmt.Println(name)
	}
	return subcommands.ExitSuccess
}

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
	"os"

	"github.com/google/subcommands"
)

// insmodCmd implements subcommands.Command for "insmod": boots, then
// loads one additional module beyond whatever the manifest listed.
type insmodCmd struct {
	config string
}

func (*insmodCmd) Name() string     { return "insmod" }
func (*insmodCmd) Synopsis() string { return "boot, then load one kernel module" }
func (*insmodCmd) Usage() string {
	return "insmod -config <manifest.toml> <module.ko>\n"
}

func (c *insmodCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
}

func (c *insmodCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" || f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	image, err := os.ReadFile(f.Arg(0))
	if err != nil {
		fatalf("insmod: %v", err)
	}
	k, _, err := bootKernel(ctx, c.config)
	if err != nil {
		fatalf("insmod: %v", err)
	}
	mod, err := k.InsertModule(image)
	if err != nil {
		fatalf("insmod: %v", err)
	}
	fmt.Printf("loaded %s: %d exported symbol(s)\n", mod.Info.Name, len(mod.Exported))
	return subcommands.ExitSuccess
}

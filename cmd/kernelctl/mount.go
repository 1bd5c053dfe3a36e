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

// mountCmd implements subcommands.Command for "mount": boots the given
// manifest, then attaches one additional file system beyond whatever
// the manifest already mounted.
type mountCmd struct {
	config string
	fsType string
	source string
	target string
}

func (*mountCmd) Name() string     { return "mount" }
func (*mountCmd) Synopsis() string { return "boot, then mount one file system under the root" }
func (*mountCmd) Usage() string {
	return "mount -config <manifest.toml> -t <fstype> -source <source> <target>\n"
}

func (c *mountCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
	f.StringVar(&c.fsType, "t", "ramfs", "file system type to mount")
	f.StringVar(&c.source, "source", "", "mount source string")
}

func (c *mountCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" || f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	target := f.Arg(0)
	k, _, err := bootKernel(ctx, c.config)
	if err != nil {
		fatalf("mount: %v", err)
	}
	if err := k.Mount(ctx, c.fsType, c.source, target); err != nil {
		fatalf("mount: %v", err)
	}
	fmt.Printf("mounted %s on %s (source=%q)\n", c.fsType, target, c.source)
	return subcommands.ExitSuccess
}

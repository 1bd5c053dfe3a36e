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
	"os"
	"os/signal"

	"github.com/google/subcommands"

	"github.com/gorquan/rcore/pkg/hostfs"
)

// fuseBridgeCmd implements subcommands.Command for "fuse-bridge".
type fuseBridgeCmd struct {
	config string
	debug  bool
}

func (*fuseBridgeCmd) Name() string { return "fuse-bridge" }
func (*fuseBridgeCmd) Synopsis() string {
	return "boot, then expose the root file system at a host mountpoint via FUSE"
}
func (*fuseBridgeCmd) Usage() string {
	return "fuse-bridge -config <manifest.toml> <host-mountpoint>\n"
}

func (c *fuseBridgeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
	f.BoolVar(&c.debug, "debug", false, "enable go-fuse request tracing")
}

func (c *fuseBridgeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" || f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	mountpoint := f.Arg(0)
	k, _, err := bootKernel(ctx, c.config)
	if err != nil {
		fatalf("fuse-bridge: %v", err)
	}

	server, err := hostfs.Mount(ctx, mountpoint, k.Root, c.debug)
	if err != nil {
		fatalf("fuse-bridge: mounting at %s: %v", mountpoint, err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	go func() {
		<-sigc
		server.Unmount()
	}()

	server.Wait()
	return subcommands.ExitSuccess
}

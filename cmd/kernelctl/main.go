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

// Command kernelctl is the kernel's command-line entrypoint: it boots
// the subsystems pkg/boot sequences from a manifest, then runs one
// inspection or mutation against the freshly booted state (mount,
// insmod, lsmod, ls, cat, dmesg, fuse-bridge), mirroring runsc/cli's
// subcommand-per-operation shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&bootCmd{}, "")
	subcommands.Register(&mountCmd{}, "")
	subcommands.Register(&insmodCmd{}, "")
	subcommands.Register(&lsmodCmd{}, "")
	subcommands.Register(&lsCmd{}, "")
	subcommands.Register(&catCmd{}, "")
	subcommands.Register(&dmesgCmd{}, "")
	subcommands.Register(&fuseBridgeCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "kernelctl: "+format+"\n", args...)
	os.Exit(1)
}

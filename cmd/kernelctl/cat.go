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

	"github.com/google/subcommands"

	"github.com/gorquan/rcore/pkg/posix"
	"github.com/gorquan/rcore/pkg/vfs"
)

// catCmd implements subcommands.Command for "cat".
type catCmd struct {
	config string
}

func (*catCmd) Name() string     { return "cat" }
func (*catCmd) Synopsis() string { return "boot, then print one file's contents" }
func (*catCmd) Usage() string {
	return "cat -config <manifest.toml> <path>\n"
}

func (c *catCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
}

func (c *catCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" || f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	k, _, err := bootKernel(ctx, c.config)
	if err != nil {
		fatalf("cat: %v", err)
	}
	rs := vfs.ResolveState{Root: k.Root, Cwd: k.Root}
	res, err := vfs.ResolvePath(ctx, rs, path, true)
	if err != nil {
		fatalf("cat: %v", err)
	}
	if res.Kind != vfs.KindIsFile {
		fatalf("cat: %s is not a regular file", path)
	}

	h, err := posix.Open(ctx, res.Node.Inode, k.Devices)
	if err != nil {
		fatalf("cat: %v", err)
	}
	defer h.Close(ctx)
	buf := make([]byte, 64*1024)
	for {
		n, err := h.Read(ctx, buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
		}
		if err != nil {
			fatalf("cat: %v", err)
		}
		if n == 0 {
			break
		}
	}
	return subcommands.ExitSuccess
}

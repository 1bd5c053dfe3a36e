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

	"github.com/gorquan/rcore/pkg/posix"
	"github.com/gorquan/rcore/pkg/vfs"
)

// lsCmd implements subcommands.Command for "ls".
type lsCmd struct {
	config string
}

func (*lsCmd) Name() string     { return "ls" }
func (*lsCmd) Synopsis() string { return "boot, then list one directory's entries" }
func (*lsCmd) Usage() string {
	return "ls -config <manifest.toml> <path>\n"
}

func (c *lsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.config, "config", "", "path to the TOML boot manifest")
}

func (c *lsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.config == "" || f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	path := f.Arg(0)
	k, _, err := bootKernel(ctx, c.config)
	if err != nil {
		fatalf("ls: %v", err)
	}
	rs := vfs.ResolveState{Root: k.Root, Cwd: k.Root}
	res, err := vfs.ResolvePath(ctx, rs, path, true)
	if err != nil {
		fatalf("ls: %v", err)
	}
	if res.Kind != vfs.KindIsDir {
		fatalf("ls: %s is not a directory", path)
	}

	buf := make([]byte, 64*1024)
	var cookie uint64
	for {
		n, next, err := posix.Getdents(ctx, res.Node.Inode, buf, cookie)
		if err != nil {
			fatalf("ls: %v", err)
		}
		if n == 0 {
			break
		}
		printEntries(buf[:n])
		cookie = next
	}
	return subcommands.ExitSuccess
}

func printEntries(records []byte) {
	off := 0
	for off < len(records) {
		rl := int(records[off+16]) | int(records[off+17])<<8
		name := records[off+19 : off+rl]
		end := len(name)
		for end > 0 && name[end-1] == 0 {
			end--
		}
		fmt.Println(string(name[:end]))
		off += rl
	}
}

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

// Package boot is the boot CPU's subsystem sequencer (spec.md §5's
// "Scheduling model"): it brings up the kernel-VM arena, the symbol
// table, the device registry, the file-system-type registry, and the
// LKM manager in a fixed order, each guarded so a second call is fatal,
// then releases application CPUs to run their own per-CPU
// initialization. Physical CPU bring-up itself is spec.md §1's Out of
// scope; what this package sequences is the in-kernel subsystem
// bring-up a real boot CPU would perform after that hardware step.
package boot

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/gorquan/rcore/pkg/bootconfig"
	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/devices/memdev"
	"github.com/gorquan/rcore/pkg/fstype"
	"github.com/gorquan/rcore/pkg/kvm"
	"github.com/gorquan/rcore/pkg/lkm"
	"github.com/gorquan/rcore/pkg/log"
	"github.com/gorquan/rcore/pkg/ramfs"
	"github.com/gorquan/rcore/pkg/symtab"
	"github.com/gorquan/rcore/pkg/vfs"
)

// Region is one usable physical memory range from the loader's map.
type Region struct {
	Start uint64
	Size  uint64
}

// Info is the single boot-info structure spec.md §6 names: the initial
// memory map and the kernel's load base, as handed off from whatever ran
// before this kernel.
type Info struct {
	LoadBase uint64
	Usable   []Region
}

// Kernel holds every subsystem singleton spec.md §9 calls out as
// process-wide: the FS-type registry, device table, loaded-module list
// (via the LKM manager), and the root of the mount tree, plus the
// kernel-VM arena and symbol table those subsystems share. Per §9
// these are injected handles a caller threads through, never package
// globals.
type Kernel struct {
	Info  Info
	NCPUs int

	Arena   *kvm.Arena
	Symbols *symtab.Table
	Devices *devices.Registry
	FSTypes *fstype.Registry
	Modules *lkm.Manager

	Root vfs.MountNode

	initMu   sync.Mutex
	done     map[string]bool
	apsReady int
}

// onceInit runs fn the first time step is named; any later call with the
// same name is a double-init, which spec.md §5 calls fatal.
func (k *Kernel) onceInit(step string, fn func() error) error {
	k.initMu.Lock()
	if k.done == nil {
		k.done = make(map[string]bool)
	}
	if k.done[step] {
		k.initMu.Unlock()
		log.Panicf("boot: double-init of %q", step)
	}
	k.initMu.Unlock()

	if err := fn(); err != nil {
		return fmt.Errorf("boot: %s: %w", step, err)
	}

	k.initMu.Lock()
	k.done[step] = true
	k.initMu.Unlock()
	return nil
}

// New runs the boot CPU's fixed subsystem sequence against cfg and
// returns a fully wired Kernel with application CPUs still parked (see
// ReleaseAPs).
func New(ctx context.Context, info Info, cfg *bootconfig.Config) (*Kernel, error) {
	k := &Kernel{
		Info:  info,
		NCPUs: cfg.NCPUs,
	}

	if err := k.onceInit("arena", func() error {
		k.Arena = kvm.NewArena(cfg.Arena.Start, cfg.Arena.Size)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := k.onceInit("symtab", func() error {
		k.Symbols = symtab.New()
		return nil
	}); err != nil {
		return nil, err
	}

	if err := k.onceInit("devices", func() error {
		k.Devices = devices.NewRegistry()
		return memdev.Register(k.Devices)
	}); err != nil {
		return nil, err
	}

	if err := k.onceInit("fstypes", func() error {
		k.FSTypes = fstype.NewRegistry()
		k.FSTypes.Register("ramfs", func(source string, flags uint64, data interface{}) (vfs.FileSystem, error) {
			return ramfs.New(source), nil
		})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := k.onceInit("root", func() error {
		rootFS := ramfs.New("rootfs")
		rootMount := vfs.NewMount(rootFS)
		rootNode, err := rootMount.Root()
		if err != nil {
			return err
		}
		k.Root = rootNode
		return nil
	}); err != nil {
		return nil, err
	}

	if err := k.onceInit("lkm", func() error {
		k.Modules = lkm.NewManager(k.Arena, k.Symbols, k.Devices, noopExecutor{}, cfg.NCPUs)
		return nil
	}); err != nil {
		return nil, err
	}

	for _, m := range cfg.Mounts {
		if err := k.Mount(ctx, m.FSType, m.Source, m.Target); err != nil {
			return nil, fmt.Errorf("boot: mounting %s at %s: %w", m.FSType, m.Target, err)
		}
	}

	log.Infof("boot: %d CPU(s), arena [0x%x, 0x%x), root mounted", cfg.NCPUs, cfg.Arena.Start, cfg.Arena.Start+cfg.Arena.Size)
	return k, nil
}

// Mount resolves target under the current root and attaches a fsType
// file system there, per spec.md §4.B/§4.C. If target's final path
// component does not yet exist, it is created as an empty directory
// first — a boot manifest names mount points that have no other reason
// to exist before boot brings up the file system meant to live there.
func (k *Kernel) Mount(ctx context.Context, fsType, source, target string) error {
	rs := vfs.ResolveState{Root: k.Root, Cwd: k.Root}
	res, err := vfs.ResolvePath(ctx, rs, target, true)
	if err != nil {
		return err
	}
	switch res.Kind {
	case vfs.KindIsDir:
		// already exists
	case vfs.KindNotExist:
		child, err := res.Parent.Inode.Create(ctx, res.Name, vfs.Directory, 0755)
		if err != nil {
			return fmt.Errorf("boot: creating mount point %s: %w", target, err)
		}
		res.Node = vfs.MountNode{Inode: child, Mount: res.Parent.Mount}
	default:
		return fmt.Errorf("boot: mount target %s is not a directory", target)
	}
	_, err = k.FSTypes.Mount(fsType, source, 0, nil, res.Node)
	return err
}

// InsertModule loads a kernel module image through the LKM manager,
// spec.md §4.E's insmod operation.
func (k *Kernel) InsertModule(image []byte) (*lkm.Module, error) {
	return k.Modules.InitModule(image)
}

// ReleaseAPs simulates spec.md §5's "application CPUs spin until a
// release flag is set, then run per-CPU initialization": every
// non-boot CPU's init runs concurrently via errgroup, grounded on the
// same fan-out pkg/kvm's TLB shootdown uses for its own per-CPU
// notification. perCPU is invoked once per AP with its CPU index
// (1..NCPUs-1; CPU 0 is the boot CPU that already ran New).
func (k *Kernel) ReleaseAPs(ctx context.Context, perCPU func(ctx context.Context, cpu int) error) error {
	k.initMu.Lock()
	if k.apsReady != 0 {
		k.initMu.Unlock()
		log.Panicf("boot: ReleaseAPs called more than once")
	}
	k.initMu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for cpu := 1; cpu < k.NCPUs; cpu++ {
		cpu := cpu
		g.Go(func() error {
			return perCPU(gctx, cpu)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	k.initMu.Lock()
	k.apsReady = k.NCPUs
	k.initMu.Unlock()
	return nil
}

// noopExecutor is the default lkm.Executor wired by New: a freshly
// booted kernel has no real code segment to jump into, so init_module
// calls succeed trivially until a caller supplies a real Executor (e.g.
// a test double or a future interpreter).
type noopExecutor struct{}

func (noopExecutor) Call(name string) error { return nil }

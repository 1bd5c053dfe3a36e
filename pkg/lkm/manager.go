// Copyright 2019 The gVisor Authors.
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

// Package lkm is spec.md §4.E's Loadable Kernel Module manager: it
// parses a 64-bit ET_DYN ELF image, maps its PT_LOAD segments into a
// kvm.VirtualSpace, relocates it against the global kernel symbol
// table, appends its exported symbols to that table, and invokes its
// init_module entry point. Grounded on rCore's
// kernel/src/lkm/manager.rs, which walks the same ELF program/dynamic
// tables via xmas_elf; this package uses the standard library's
// debug/elf for the same job since no third-party ELF reader appears
// anywhere in the retrieved corpus (see DESIGN.md).
package lkm

import (
	"debug/elf"
	"encoding/binary"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/gorquan/rcore/pkg/devices"
	"github.com/gorquan/rcore/pkg/kerrors"
	"github.com/gorquan/rcore/pkg/kvm"
	"github.com/gorquan/rcore/pkg/log"
	"github.com/gorquan/rcore/pkg/symtab"
)

const lkmSection = ".rcore-lkm"

// Executor runs a module's entry points. The real kernel transmutes a
// resolved address to a function pointer and calls it directly; this
// userspace rendering can't safely jump into bytes copied out of an
// arbitrary ELF image, so module code is represented as a Go callback
// registered under its entry symbol's name via a test or boot-time
// harness. pkg/boot wires an executor that accepts every name and does
// nothing; pkg/lkm/abi's Table is an Executor that dispatches to
// registered named stubs.
type Executor interface {
	// Call invokes the function the loaded image claims lives at name,
	// if the executor has a binding for it. Returns NotExec if it does
	// not recognize name.
	Call(name string) error
}

// Manager owns the kernel-VM arena modules are loaded into, the global
// symbol table they link against, the device registry their drivers
// register with, and the executor that runs their entry points.
type Manager struct {
	arena   *kvm.Arena
	symbols *symtab.Table
	devices *devices.Registry
	exec    Executor
	ncpus   int

	loadMu  sync.Mutex // held for the whole of one InitModule
	mu      sync.Mutex
	modules map[string]*Module
}

// NewManager wires a Manager to its collaborators. ncpus is the number
// of CPUs a successful unmap's TLB shootdown fans out to; callers
// without a real multi-CPU model can pass 1.
func NewManager(arena *kvm.Arena, symbols *symtab.Table, devs *devices.Registry, exec Executor, ncpus int) *Manager {
	return &Manager{
		arena:   arena,
		symbols: symbols,
		devices: devs,
		exec:    exec,
		ncpus:   ncpus,
		modules: make(map[string]*Module),
	}
}

// InitModule loads image, the in-memory bytes of a shared-object ELF
// file, per spec.md §4.E. On any failure the module's VirtualSpace (if
// one was allocated) is released before the error is returned, so no
// mapped pages, symbol-table entries, or device registrations survive
// a failed load.
func (m *Manager) InitModule(image []byte) (*Module, error) {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	f, err := elf.NewFile(bytesReaderAt(image))
	if err != nil {
		return nil, kerrors.NotExec
	}
	if f.Class != elf.ELFCLASS64 {
		log.Infof("[LKM] 32-bit elf is not supported!")
		return nil, kerrors.NotExec
	}
	if f.Type != elf.ET_DYN {
		log.Infof("[LKM] a kernel module must be some shared object!")
		return nil, kerrors.NotExec
	}

	info, err := parseModuleInfo(f)
	if err != nil {
		return nil, err
	}
	log.Infof("[LKM] loading module %s version %d api_version %d", info.Name, info.Version, info.APIVersion)

	minAddr, maxAddr, offStart := computeLayout(f)
	mapLen := maxAddr - minAddr + offStart

	vspace, err := m.arena.Alloc(mapLen)
	if err != nil {
		log.Infof("[LKM] valloc failed!")
		return nil, kerrors.NoMem
	}
	base := vspace.Base()
	abort := func() { vspace.Release(m.ncpus); releaseImageBuffer(base) }

	newImageBuffer(base, vspace.Size())
	if err := mapSegments(f, image, vspace); err != nil {
		abort()
		return nil, err
	}

	mod := &Module{Info: info, VSpace: vspace}
	mod.initRefs()

	if err := m.relocate(f, base); err != nil {
		abort()
		return nil, err
	}

	dynsym, err := f.DynamicSymbols()
	if err != nil {
		abort()
		return nil, kerrors.NotExec
	}

	var initAddr uint64
	haveInit := false
	for _, name := range info.ExportedSymbols {
		for _, sym := range dynsym {
			if sym.Name == name {
				addr := base + sym.Value
				mod.Exported = append(mod.Exported, Symbol{Name: name, Address: addr})
				if name == "init_module" {
					initAddr = addr
					haveInit = true
				}
			}
		}
	}
	if !haveInit {
		log.Infof("[LKM] this module does not have init_module()!")
		abort()
		return nil, kerrors.NotExec
	}

	symbols := make(map[string]uint64, len(mod.Exported))
	for _, sym := range mod.Exported {
		symbols[sym.Name] = sym.Address
	}
	if err := m.symbols.Register(info.Name, symbols); err != nil {
		abort()
		return nil, err
	}

	log.Infof("[LKM] calling init_module at %#x", initAddr)
	if err := m.exec.Call("init_module"); err != nil {
		m.symbols.Remove(info.Name)
		if m.devices != nil {
			m.devices.UnregisterAll(devices.Owner(info.Name))
		}
		abort()
		return nil, kerrors.NotExec
	}

	m.mu.Lock()
	m.modules[info.Name] = mod
	m.mu.Unlock()
	return mod, nil
}

// Devices returns the device registry modules register drivers with
// from inside their init_module callback.
func (m *Manager) Devices() *devices.Registry { return m.devices }

// Symbols returns the global kernel symbol table modules resolve
// against and contribute exports to.
func (m *Manager) Symbols() *symtab.Table { return m.symbols }

// Lookup returns the loaded module named name, if any.
func (m *Manager) Lookup(name string) (*Module, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[name]
	return mod, ok
}

// Loaded lists every currently-loaded module name, for "lsmod".
func (m *Manager) Loaded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.modules))
	for name := range m.modules {
		out = append(out, name)
	}
	return out
}

func parseModuleInfo(f *elf.File) (Info, error) {
	sec := f.Section(lkmSection)
	if sec == nil {
		log.Infof("[LKM] rcore-lkm metadata not found!")
		return Info{}, kerrors.NotExec
	}
	data, err := sec.Data()
	if err != nil {
		log.Infof("[LKM] load rcore-lkm error!")
		return Info{}, kerrors.NotExec
	}
	if !utf8.Valid(data) {
		return Info{}, kerrors.NotExec
	}
	info, err := ParseInfo(string(data))
	if err != nil {
		log.Infof("[LKM] parse info error!")
		return Info{}, err
	}
	return info, nil
}

// computeLayout scans every PT_LOAD segment for the lowest virtual
// address, highest virtual-address-plus-size, and the file offset of
// the lowest segment, all page-aligned, matching manager.rs's
// min_addr/max_addr/off_start computation.
func computeLayout(f *elf.File) (minAddr, maxAddr, offStart uint64) {
	minAddr = ^uint64(0)
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr < minAddr {
			minAddr = prog.Vaddr
			offStart = prog.Off
		}
		if end := prog.Vaddr + prog.Memsz; end > maxAddr {
			maxAddr = end
		}
	}
	if minAddr == ^uint64(0) {
		minAddr = 0
	}
	maxAddr = roundUpAddr(maxAddr, kvm.PageSize)
	minAddr = truncDown(minAddr, kvm.PageSize)
	offStart = truncDown(offStart, kvm.PageSize)
	return minAddr, maxAddr, offStart
}

func roundUpAddr(v, align uint64) uint64 { return (v + align - 1) &^ (align - 1) }
func truncDown(v, align uint64) uint64   { return v &^ (align - 1) }

// mapSegments maps every PT_LOAD segment into vspace at base+vaddr,
// copies the on-disk bytes, and zeroes the bss tail. The copy target is
// the module's activeImages buffer, indexed directly by vaddr (see
// hostmem.go); vspace.AddArea itself only records the area and its
// attributes through hostMapper/hostFrames.
func mapSegments(f *elf.File, image []byte, vspace *kvm.VirtualSpace) error {
	buf, ok := imageBuffer(vspace.Base())
	if !ok {
		return kerrors.NoMem
	}
	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		attrs := kvm.PageAttrs{
			Writable:   prog.Flags&elf.PF_W != 0,
			Executable: prog.Flags&elf.PF_X != 0,
		}
		if err := vspace.AddArea(prog.Vaddr, prog.Memsz, attrs, hostMapper{}, hostFrames{}); err != nil {
			return kerrors.NoMem
		}
		if prog.Vaddr+prog.Memsz > uint64(len(buf)) {
			return kerrors.NoMem
		}
		if prog.Filesz > 0 {
			if prog.Off+prog.Filesz > uint64(len(image)) {
				return kerrors.NotExec
			}
			copy(buf[prog.Vaddr:prog.Vaddr+prog.Filesz], image[prog.Off:prog.Off+prog.Filesz])
		}
		// buf is already zero-filled by make(), covering the bss tail.
	}
	return nil
}

// relocate processes JMPREL, REL, and RELA tables located via the
// module's .dynamic section, per spec.md §4.E's relocation table.
func (m *Manager) relocate(f *elf.File, base uint64) error {
	dynsym, err := f.DynamicSymbols()
	if err != nil {
		return kerrors.NotExec
	}
	tables, err := findRelocTables(f)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t.Size == 0 {
			continue
		}
		entries, err := readRelocEntries(f, t)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := m.relocateOne(base, e, dynsym); err != nil {
				return err
			}
		}
	}
	return nil
}

// relocateOne applies one relocation entry. RELATIVE relocations carry
// no meaningful symbol (their symbol index is conventionally 0, the
// null symbol), so symbol resolution only happens for the families that
// actually need it.
func (m *Manager) relocateOne(base uint64, e relEntry, dynsym []elf.Symbol) error {
	switch classify(e.Type) {
	case RelNone:
		return nil
	case RelOffset32:
		return kerrors.NotExec
	case RelRelative:
		writeAddr(base, e.Offset, base+uint64(e.Addend))
		return nil
	default: // Symbolic, GOT, PLT
		symVal, err := m.resolveSymbol(e.SymIndex, dynsym, base)
		if err != nil {
			return kerrors.UnresolvedSymbol
		}
		writeAddr(base, e.Offset, symVal+uint64(e.Addend))
		return nil
	}
}

// resolveSymbol translates rawIndex, a raw ELF symbol-table index that
// includes the mandatory null symbol at 0, into dynsym as returned by
// (*elf.File).DynamicSymbols, which the standard library strips that
// null entry from.
func (m *Manager) resolveSymbol(rawIndex uint32, dynsym []elf.Symbol, base uint64) (uint64, error) {
	if rawIndex == 0 || int(rawIndex)-1 >= len(dynsym) {
		return 0, kerrors.UnresolvedSymbol
	}
	sym := dynsym[rawIndex-1]
	if sym.Section == elf.SHN_UNDEF {
		resolved, err := m.symbols.Lookup(sym.Name)
		if err != nil {
			return 0, kerrors.UnresolvedSymbol
		}
		return resolved.Value, nil
	}
	return base + sym.Value, nil
}

func findRelocTables(f *elf.File) ([]relocTable, error) {
	dynSec := f.SectionByType(elf.SHT_DYNAMIC)
	if dynSec == nil {
		return nil, kerrors.NotExec
	}
	data, err := dynSec.Data()
	if err != nil {
		return nil, kerrors.NotExec
	}

	var jmprelOff, jmprelSize, jmprelEntSize uint64
	var relOff, relSize uint64
	var relaOff, relaSize uint64

	for i := 0; i+16 <= len(data); i += 16 {
		tag := elf.DynTag(binary.LittleEndian.Uint64(data[i:]))
		val := binary.LittleEndian.Uint64(data[i+8:])
		switch tag {
		case elf.DT_JMPREL:
			jmprelOff = val
		case elf.DT_PLTRELSZ:
			jmprelSize = val
		case elf.DT_PLTREL:
			if val == uint64(elf.DT_RELA) {
				jmprelEntSize = 24
			} else {
				jmprelEntSize = 16
			}
		case elf.DT_REL:
			relOff = val
		case elf.DT_RELSZ:
			relSize = val
		case elf.DT_RELA:
			relaOff = val
		case elf.DT_RELASZ:
			relaSize = val
		case elf.DT_NULL:
			i = len(data)
		}
	}

	return []relocTable{
		{Offset: jmprelOff, Size: jmprelSize, EntrySize: jmprelEntSize, HasAddend: jmprelEntSize == 24},
		{Offset: relOff, Size: relSize, EntrySize: 16, HasAddend: false},
		{Offset: relaOff, Size: relaSize, EntrySize: 24, HasAddend: true},
	}, nil
}

// readRelocEntries locates the section whose file offset matches
// t.Offset and decodes its Rel64/Rela64 records.
func readRelocEntries(f *elf.File, t relocTable) ([]relEntry, error) {
	var sec *elf.Section
	for _, s := range f.Sections {
		if s.Offset == t.Offset && t.Offset != 0 {
			sec = s
			break
		}
	}
	if sec == nil {
		return nil, nil
	}
	data, err := sec.Data()
	if err != nil {
		return nil, kerrors.NotExec
	}
	var out []relEntry
	for i := uint64(0); i+t.EntrySize <= uint64(len(data)) && i < t.Size; i += t.EntrySize {
		off := binary.LittleEndian.Uint64(data[i:])
		info := binary.LittleEndian.Uint64(data[i+8:])
		symIndex := uint32(info >> 32)
		relType := uint32(info)
		var addend int64
		if t.HasAddend {
			addend = int64(binary.LittleEndian.Uint64(data[i+16:]))
		}
		out = append(out, relEntry{Offset: off, Type: relType, SymIndex: symIndex, Addend: addend})
	}
	return out, nil
}

// writeAddr is the loader's only memory-mutating primitive: it patches
// an 8-byte little-endian word inside the module's mapped image backing
// store, indexed by vaddr-style offset (see hostmem.go).
func writeAddr(base, offset, val uint64) {
	buf, ok := imageBuffer(base)
	if !ok {
		return
	}
	if offset+8 > uint64(len(buf)) {
		return
	}
	binary.LittleEndian.PutUint64(buf[offset:], val)
}

// bytesReaderAt adapts a plain byte slice to io.ReaderAt for debug/elf,
// which requires random access into the whole image rather than a
// stream.
type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(p, b[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

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

package lkm

// x86-64 ELF relocation types this loader understands. Named after the
// generic ABI families the original loader switches on rather than the
// raw R_X86_64_* constants, since the spec's relocation table is stated
// in those family terms.
const (
	RelNone     = 0
	RelSymbolic = 1 // R_X86_64_64 family: resolve(symbol) + addend
	RelGOT      = 2
	RelPLT      = 3
	RelRelative = 8 // R_X86_64_RELATIVE: base + addend
	RelOffset32 = 9 // unsupported
)

// relEntry is one normalized relocation record, regardless of whether it
// came from a Rel64 (no addend field) or Rela64 (explicit addend)
// section.
type relEntry struct {
	Offset   uint64
	Type     uint32
	SymIndex uint32
	Addend   int64
}

// relocTable locates one class of relocations (.rel.dyn, .rela.dyn, or
// .rel.plt/.rela.plt) by its file offset, as recorded in the module's
// .dynamic section.
type relocTable struct {
	Offset    uint64
	Size      uint64
	EntrySize uint64
	HasAddend bool
}

// classify maps a raw x86-64 R_X86_64_* relocation type to the family
// the spec's relocation table switches on. Anything not explicitly
// named here that is still a resolve-and-write relocation is treated as
// Symbolic; only OFFSET32 (R_X86_64_PC32's rCore-loader name) is
// explicitly rejected.
func classify(rawType uint32) uint32 {
	switch rawType {
	case 0:
		return RelNone
	case 6: // R_X86_64_GLOB_DAT
		return RelGOT
	case 7: // R_X86_64_JUMP_SLOT
		return RelPLT
	case 8: // R_X86_64_RELATIVE
		return RelRelative
	case 2: // R_X86_64_PC32
		return RelOffset32
	default:
		return RelSymbolic
	}
}

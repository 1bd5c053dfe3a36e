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

package vfs

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/gorquan/rcore/pkg/kerrors"
)

// followBudget and recursionDepth are the two counters spec.md §4.C bounds
// symlink expansion with: a total follow budget shared across an entire
// resolution, and a recursion depth that decrements on every nested
// path-resolution spawned from inside symlink expansion.
const (
	followBudget   = 40
	recursionDepth = 10
)

// ResolveState is spec.md §3's "(root, cwd) pair of mount nodes" — the
// per-caller namespace boundary for absolute paths and ".." traversal.
type ResolveState struct {
	Root MountNode
	Cwd  MountNode
}

// ResolveKind classifies what a resolution produced.
type ResolveKind int

const (
	KindIsDir ResolveKind = iota
	KindIsFile
	KindNotExist
)

// ResolveResult is what ResolvePath returns: for KindIsDir/KindIsFile, Node
// is the resolved MountNode; for all three kinds, Parent and Name describe
// the last path component (so a caller can create, for instance, a missing
// regular file at Parent/Name).
type ResolveResult struct {
	Kind   ResolveKind
	Node   MountNode
	Parent MountNode
	Name   string
}

// HasReachedRoot implements spec.md §4.C's root-reached predicate: true
// iff n's mount is the caller's root's mount and n's inode id equals the
// root's inode id. This is what prevents ".." from escaping a chroot
// boundary.
func HasReachedRoot(n, root MountNode) bool {
	return n.Mount == root.Mount && n.Inode.Ino() == root.Inode.Ino()
}

// LookupOne implements spec.md §4.C's one-level lookup.
func LookupOne(ctx context.Context, root, s MountNode, name string) (MountNode, error) {
	switch name {
	case "", ".":
		return s, nil
	case "..":
		if HasReachedRoot(s, root) {
			return s, nil
		}
		rootIno, err := s.Mount.RootIno()
		if err != nil {
			return MountNode{}, err
		}
		if s.Inode.Ino() == rootIno {
			if at, ok := s.Mount.AttachPoint(); ok {
				return LookupOne(ctx, root, at, "..")
			}
			// A mount root with no attachment point and not equal to the
			// caller's root: there is nowhere further up to go.
			return s, nil
		}
		parent, err := s.Inode.Parent(ctx)
		if err != nil {
			return MountNode{}, err
		}
		return MountNode{Inode: parent, Mount: s.Mount}, nil
	default:
		child, err := s.Inode.Lookup(ctx, name)
		if err != nil {
			return MountNode{}, err
		}
		if childMount, ok := s.Mount.childMount(child.Ino()); ok {
			return childMount.Root()
		}
		return MountNode{Inode: child, Mount: s.Mount}, nil
	}
}

// splitPath splits a POSIX path on '/', dropping empty components (so
// "/a//b/" and "a/b" both yield ["a", "b"]).
func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, c := range raw {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

// ResolvePath implements spec.md §4.C's full path resolution.
func ResolvePath(ctx context.Context, rs ResolveState, path string, resolveLastSymlink bool) (ResolveResult, error) {
	budget := followBudget
	return resolvePath(ctx, rs, path, resolveLastSymlink, &budget, recursionDepth)
}

func resolvePath(ctx context.Context, rs ResolveState, path string, resolveLastSymlink bool, budget *int, depth int) (ResolveResult, error) {
	start := rs.Cwd
	if strings.HasPrefix(path, "/") {
		start = rs.Root
	} else {
		meta, err := start.Inode.Metadata()
		if err != nil {
			return ResolveResult{}, err
		}
		if meta.Type != Directory {
			return ResolveResult{}, kerrors.NotDir
		}
	}

	components := splitPath(path)
	if len(components) == 0 {
		return ResolveResult{Kind: KindIsDir, Node: start}, nil
	}

	cur := start
	for i, comp := range components {
		last := i == len(components)-1

		next, err := LookupOne(ctx, rs.Root, cur, comp)
		if err != nil {
			if kerrors.Is(err, kerrors.EntryNotFound) && last {
				return ResolveResult{Kind: KindNotExist, Parent: cur, Name: comp}, nil
			}
			return ResolveResult{}, err
		}

		if !last {
			outcome, err := resolveSymlinkChain(ctx, rs, cur, next, budget, depth-1)
			if err != nil {
				return ResolveResult{}, err
			}
			switch outcome.Kind {
			case KindNotExist:
				return ResolveResult{}, kerrors.EntryNotFound
			case KindIsFile:
				return ResolveResult{}, kerrors.NotDir
			default: // KindIsDir
				cur = outcome.Node
			}
			continue
		}

		// Last component.
		meta, err := next.Inode.Metadata()
		if err != nil {
			return ResolveResult{}, err
		}
		kind := KindIsFile
		if meta.Type == Directory {
			kind = KindIsDir
		}
		if !resolveLastSymlink || kind != KindIsFile {
			return ResolveResult{Kind: kind, Node: next, Parent: cur, Name: comp}, nil
		}
		outcome, err := resolveSymlinkChain(ctx, rs, cur, next, budget, depth-1)
		if err != nil {
			return ResolveResult{}, err
		}
		switch outcome.Kind {
		case KindNotExist:
			return ResolveResult{Kind: KindNotExist, Parent: cur, Name: comp}, nil
		default:
			return ResolveResult{Kind: outcome.Kind, Node: outcome.Node, Parent: cur, Name: comp}, nil
		}
	}
	// Unreachable: components is non-empty, so the loop always returns.
	return ResolveResult{}, kerrors.InvalidParam
}

// symlinkOutcome is the interior result of following zero-or-more
// symlinks starting at node: either a non-symlink node (classified
// IsDir/IsFile) or the discovery that the chain dangles (NotExist).
type symlinkOutcome struct {
	Kind ResolveKind
	Node MountNode
}

// resolveSymlinkChain resolves node fully if it is a symbolic link,
// relative to containingDir (the directory LookupOne found it in), and
// otherwise returns it unchanged. Each link read consumes one unit of
// budget; each nested resolution consumes one unit of depth. Exceeding
// either fails SymLoop (spec.md §4.C "Symlink expansion").
func resolveSymlinkChain(ctx context.Context, rs ResolveState, containingDir, node MountNode, budget *int, depth int) (symlinkOutcome, error) {
	meta, err := node.Inode.Metadata()
	if err != nil {
		return symlinkOutcome{}, err
	}
	if meta.Type != SymLink {
		kind := KindIsFile
		if meta.Type == Directory {
			kind = KindIsDir
		}
		return symlinkOutcome{Kind: kind, Node: node}, nil
	}

	*budget--
	if *budget < 0 || depth < 0 {
		return symlinkOutcome{}, kerrors.SymLoop
	}

	const linkBufSize = 256
	buf := make([]byte, linkBufSize)
	n, err := node.Inode.ReadAt(ctx, buf, 0)
	if err != nil {
		return symlinkOutcome{}, err
	}
	target := buf[:n]
	if !utf8.Valid(target) {
		return symlinkOutcome{}, kerrors.NotDir
	}

	sub := ResolveState{Root: rs.Root, Cwd: containingDir}
	result, err := resolvePath(ctx, sub, string(target), true, budget, depth)
	if err != nil {
		return symlinkOutcome{}, err
	}
	switch result.Kind {
	case KindNotExist:
		return symlinkOutcome{Kind: KindNotExist}, nil
	default:
		return symlinkOutcome{Kind: result.Kind, Node: result.Node}, nil
	}
}

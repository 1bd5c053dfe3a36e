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
)

// unreachable is the literal string spec.md §4.C mandates for a getcwd
// that cannot climb back to the caller's root.
const unreachable = "(unreachable)"

// GetCwd implements spec.md §4.C's reverse lookup: it reconstructs cwd's
// absolute path by repeatedly climbing to the parent and naming the child
// it came from, until it reaches root. If the climb cannot reach root (the
// position has become detached from the caller's namespace), it reports
// the literal "(unreachable)".
func GetCwd(ctx context.Context, root, cwd MountNode) (string, error) {
	if HasReachedRoot(cwd, root) {
		return "/", nil
	}

	var parts []string
	cur := cwd
	for !HasReachedRoot(cur, root) {
		parent, err := LookupOne(ctx, root, cur, "..")
		if err != nil {
			return "", err
		}
		if parent.Equal(cur) {
			// LookupOne(.., "..") returns s unchanged only when s is an
			// unattached mount root distinct from the caller's root:
			// there is nowhere further up to climb.
			return unreachable, nil
		}
		name, ok, err := reverseLookupName(ctx, root, parent, cur)
		if err != nil {
			return "", err
		}
		if !ok {
			return unreachable, nil
		}
		parts = append([]string{name}, parts...)
		cur = parent
	}
	return "/" + strings.Join(parts, "/"), nil
}

// reverseLookupName finds the name under which child appears in parent's
// directory entries, applying the same mount overlay LookupOne would, so
// that the name found is consistent with a subsequent forward resolution.
func reverseLookupName(ctx context.Context, root, parent, child MountNode) (string, bool, error) {
	for i := 0; ; i++ {
		entry, err := parent.Inode.GetEntry(ctx, i)
		if err == ErrNoMoreEntries {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		if entry.Name == "." || entry.Name == ".." {
			continue
		}
		candidate, err := LookupOne(ctx, root, parent, entry.Name)
		if err != nil {
			continue
		}
		if candidate.Equal(child) {
			return entry.Name, true, nil
		}
	}
}

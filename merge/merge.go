// Copyright (C) 2025  Nexedi SA and Contributors.
//                     Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Package merge implements the three-way tree merger: recursive merge
// of two tree-shaped object graphs against an optional common base,
// producing new tree and commit objects under append-only semantics.
// Deletions cannot be represented — an entry absent from one side is
// taken from the other — which is exactly the property the mergeable
// ref classes guarantee.
package merge

import (
	"errors"
	"fmt"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
)

// ErrConflict is returned when two non-identical objects cannot be
// reconciled: a blob changed differently on both sides, or the two
// sides disagree on whether an entry is a blob or a tree.
var ErrConflict = errors.New("merge: conflict")

// Step computes the merged object hash for (base, ori, new), base may
// be nil meaning no common ancestor is known.
func Step(st store.Store, base *githash.Hash, ori, new_ githash.Hash) (githash.Hash, error) {
	if ori == new_ {
		return ori, nil
	}
	if base != nil {
		if ori == *base {
			return new_, nil
		}
		if new_ == *base {
			return ori, nil
		}
	}

	oriType, oriData, err := st.Get(ori)
	if err != nil {
		return githash.Hash{}, fmt.Errorf("merge: get ori %s: %w", ori, err)
	}
	newType, newData, err := st.Get(new_)
	if err != nil {
		return githash.Hash{}, fmt.Errorf("merge: get new %s: %w", new_, err)
	}
	if oriType != store.Tree || newType != store.Tree {
		if oriType == store.Blob && newType == store.Blob {
			return githash.Hash{}, fmt.Errorf("%w: blob %s vs %s changed on both sides", ErrConflict, ori, new_)
		}
		return githash.Hash{}, fmt.Errorf("%w: %s and %s are not both trees", ErrConflict, ori, new_)
	}

	oriTree, err := gitobj.ParseTree(oriData)
	if err != nil {
		return githash.Hash{}, err
	}
	newTree, err := gitobj.ParseTree(newData)
	if err != nil {
		return githash.Hash{}, err
	}

	var baseTree *gitobj.Tree
	if base != nil {
		baseType, baseData, err := st.Get(*base)
		if err == nil && baseType == store.Tree {
			baseTree, err = gitobj.ParseTree(baseData)
			if err != nil {
				return githash.Hash{}, err
			}
		}
	}

	merged, err := mergeTrees(st, baseTree, oriTree, newTree)
	if err != nil {
		return githash.Hash{}, err
	}
	return st.Put(store.Tree, merged.Encode())
}

func mergeTrees(st store.Store, base, ori, new_ *gitobj.Tree) (*gitobj.Tree, error) {
	oriByName := entryMap(ori)
	newByName := entryMap(new_)
	var baseByName map[string]gitobj.TreeEntry
	if base != nil {
		baseByName = entryMap(base)
	}

	var out gitobj.Tree
	seen := map[string]bool{}

	for name, oe := range oriByName {
		seen[name] = true
		ne, inNew := newByName[name]
		if !inNew {
			out.Entries = append(out.Entries, oe) // only in ori: keep
			continue
		}
		if gitobj.EntryKind(oe.Mode) != gitobj.EntryKind(ne.Mode) {
			return nil, fmt.Errorf("%w: %q is a %s on one side and a %s on the other",
				ErrConflict, name, gitobj.EntryKind(oe.Mode), gitobj.EntryKind(ne.Mode))
		}
		var baseHash *githash.Hash
		if be, ok := baseByName[name]; ok {
			h := be.Hash
			baseHash = &h
		}
		mergedHash, err := Step(st, baseHash, oe.Hash, ne.Hash)
		if err != nil {
			return nil, err
		}
		out.Entries = append(out.Entries, gitobj.TreeEntry{Mode: oe.Mode, Name: name, Hash: mergedHash})
	}
	for name, ne := range newByName {
		if seen[name] {
			continue
		}
		out.Entries = append(out.Entries, ne) // only in new: keep
	}
	return &out, nil
}

func entryMap(t *gitobj.Tree) map[string]gitobj.TreeEntry {
	m := make(map[string]gitobj.TreeEntry, len(t.Entries))
	for _, e := range t.Entries {
		m[e.Name] = e
	}
	return m
}

// CreateCommit merges the trees of lhs and rhs against base's tree and
// writes a new commit with both as parents.
func CreateCommit(st store.Store, base, lhs, rhs githash.Hash) (githash.Hash, error) {
	baseTreeHash, err := commitTreeHash(st, base)
	if err != nil {
		return githash.Hash{}, err
	}
	lhsTreeHash, err := commitTreeHash(st, lhs)
	if err != nil {
		return githash.Hash{}, err
	}
	rhsTreeHash, err := commitTreeHash(st, rhs)
	if err != nil {
		return githash.Hash{}, err
	}

	mergedTree, err := Step(st, &baseTreeHash, lhsTreeHash, rhsTreeHash)
	if err != nil {
		return githash.Hash{}, err
	}

	c := &gitobj.Commit{
		Tree:    mergedTree,
		Parents: []githash.Hash{lhs, rhs},
		Message: "Automatic merge\n",
	}
	return st.Put(store.Commit, c.Encode())
}

func commitTreeHash(st store.Store, commitHash githash.Hash) (githash.Hash, error) {
	t, data, err := st.Get(commitHash)
	if err != nil {
		return githash.Hash{}, fmt.Errorf("merge: get commit %s: %w", commitHash, err)
	}
	if t != store.Commit {
		return githash.Hash{}, fmt.Errorf("merge: %s is not a commit", commitHash)
	}
	c, err := gitobj.ParseCommit(data)
	if err != nil {
		return githash.Hash{}, err
	}
	return c.Tree, nil
}

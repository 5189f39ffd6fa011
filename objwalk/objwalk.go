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

// Package objwalk provides the small set of tree-graph helpers the
// sync pipeline, the certificate verifier and the push handler all
// need on top of a bare store.Store: resolving a ref to its commit's
// tree, reading one named file out of that tree by path, and walking
// every blob under a tree.
package objwalk

import (
	"errors"
	"fmt"
	"strings"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
)

// ErrFileNotFound is returned by ReadFile when no entry matches path.
var ErrFileNotFound = errors.New("objwalk: file not found")

// CommitTree returns the parsed tree of the commit at ref's head.
func CommitTree(st store.Store, ref string) (*gitobj.Tree, githash.Hash, error) {
	head, err := st.GetRef(ref)
	if err != nil {
		return nil, githash.Hash{}, err
	}
	return TreeAt(st, head)
}

// TreeAt returns the parsed root tree of the commit commitHash.
func TreeAt(st store.Store, commitHash githash.Hash) (*gitobj.Tree, githash.Hash, error) {
	ot, data, err := st.Get(commitHash)
	if err != nil {
		return nil, githash.Hash{}, err
	}
	if ot != store.Commit {
		return nil, githash.Hash{}, fmt.Errorf("objwalk: %s is not a commit", commitHash)
	}
	c, err := gitobj.ParseCommit(data)
	if err != nil {
		return nil, githash.Hash{}, err
	}
	tr, err := GetTree(st, c.Tree)
	return tr, c.Tree, err
}

// GetTree fetches and parses the tree object named h.
func GetTree(st store.Store, h githash.Hash) (*gitobj.Tree, error) {
	ot, data, err := st.Get(h)
	if err != nil {
		return nil, err
	}
	if ot != store.Tree {
		return nil, fmt.Errorf("objwalk: %s is not a tree", h)
	}
	return gitobj.ParseTree(data)
}

// ReadFile resolves a '/'-separated path inside the tree rooted at root,
// returning the blob bytes of the final component.
func ReadFile(st store.Store, root *gitobj.Tree, path string) ([]byte, error) {
	parts := strings.Split(path, "/")
	tr := root
	for i, part := range parts {
		e, ok := tr.ByName(part)
		if !ok {
			return nil, fmt.Errorf("objwalk: %s: %w", path, ErrFileNotFound)
		}
		last := i == len(parts)-1
		if last {
			if !e.IsBlob() {
				return nil, fmt.Errorf("objwalk: %s: %w (not a blob)", path, ErrFileNotFound)
			}
			ot, data, err := st.Get(e.Hash)
			if err != nil {
				return nil, err
			}
			if ot != store.Blob {
				return nil, fmt.Errorf("objwalk: %s: not a blob object", path)
			}
			return data, nil
		}
		if e.IsBlob() {
			return nil, fmt.Errorf("objwalk: %s: %w (intermediate component is a blob)", path, ErrFileNotFound)
		}
		next, err := GetTree(st, e.Hash)
		if err != nil {
			return nil, err
		}
		tr = next
	}
	return nil, fmt.Errorf("objwalk: %s: %w", path, ErrFileNotFound)
}

// ReadFileAtRef is the common case: read path out of the tree at ref's
// current head.
func ReadFileAtRef(st store.Store, ref, path string) ([]byte, error) {
	tr, _, err := CommitTree(st, ref)
	if err != nil {
		return nil, err
	}
	return ReadFile(st, tr, path)
}

// File is one blob reachable from a walked tree, addressed by its
// '/'-joined path from the root.
type File struct {
	Path  string
	Entry gitobj.TreeEntry
}

// WalkFiles walks the tree rooted at tr depth-first and calls fn for
// every blob entry, sub-trees included — certificates, for one, live
// at KEY/<id>.cert one level down.
func WalkFiles(st store.Store, tr *gitobj.Tree, fn func(File) error) error {
	return walkFiles(st, tr, "", fn)
}

func walkFiles(st store.Store, tr *gitobj.Tree, prefix string, fn func(File) error) error {
	for _, e := range tr.Entries {
		path := prefix + e.Name
		if e.IsBlob() {
			if err := fn(File{Path: path, Entry: e}); err != nil {
				return err
			}
			continue
		}
		sub, err := GetTree(st, e.Hash)
		if err != nil {
			return err
		}
		if err := walkFiles(st, sub, path+"/", fn); err != nil {
			return err
		}
	}
	return nil
}

// LookupPath resolves a '/'-separated path inside the tree rooted at
// root to its entry; found is false if any component is absent or an
// intermediate component is a blob.
func LookupPath(st store.Store, root *gitobj.Tree, path string) (entry gitobj.TreeEntry, found bool, err error) {
	parts := strings.Split(path, "/")
	tr := root
	for i, part := range parts {
		e, ok := tr.ByName(part)
		if !ok {
			return gitobj.TreeEntry{}, false, nil
		}
		if i == len(parts)-1 {
			return e, true, nil
		}
		if e.IsBlob() {
			return gitobj.TreeEntry{}, false, nil
		}
		tr, err = GetTree(st, e.Hash)
		if err != nil {
			return gitobj.TreeEntry{}, false, err
		}
	}
	return gitobj.TreeEntry{}, false, nil
}

// FilesWithSuffix returns every blob under tr (recursively) whose name
// ends with suffix, e.g. every ".tlv" or ".cert" record a commit
// carries.
func FilesWithSuffix(st store.Store, tr *gitobj.Tree, suffix string) ([]File, error) {
	var out []File
	err := WalkFiles(st, tr, func(f File) error {
		if strings.HasSuffix(f.Entry.Name, suffix) {
			out = append(out, f)
		}
		return nil
	})
	return out, err
}

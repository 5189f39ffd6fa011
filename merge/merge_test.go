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

package merge

import (
	"testing"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/store/storetest"
)

func putBlob(t *testing.T, st store.Store, content string) githash.Hash {
	t.Helper()
	h, err := st.Put(store.Blob, []byte(content))
	if err != nil {
		t.Fatalf("Put blob: %v", err)
	}
	return h
}

func putTree(t *testing.T, st store.Store, entries ...gitobj.TreeEntry) githash.Hash {
	t.Helper()
	tr := &gitobj.Tree{Entries: entries}
	h, err := st.Put(store.Tree, tr.Encode())
	if err != nil {
		t.Fatalf("Put tree: %v", err)
	}
	return h
}

func TestMergeIdentity(t *testing.T) {
	st := storetest.New()
	x := putBlob(t, st, "x")
	b := putBlob(t, st, "base")

	if got, _ := Step(st, &b, x, x); got != x {
		t.Errorf("Step(b,x,x) = %s, want %s", got, x)
	}
	if got, _ := Step(st, &b, b, x); got != x {
		t.Errorf("Step(b,b,x) = %s, want %s", got, x)
	}
	if got, _ := Step(st, &b, x, b); got != x {
		t.Errorf("Step(b,x,b) = %s, want %s", got, x)
	}
}

func TestMergeTreesAppendOnly(t *testing.T) {
	st := storetest.New()
	k1 := putBlob(t, st, "key1")
	k2 := putBlob(t, st, "key2")
	k3 := putBlob(t, st, "key3")

	base := putTree(t, st, gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1})
	ori := putTree(t, st,
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1},
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k2.cert", Hash: k2},
	)
	new_ := putTree(t, st,
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1},
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k3.cert", Hash: k3},
	)

	mergedHash, err := Step(st, &base, ori, new_)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	_, data, err := st.Get(mergedHash)
	if err != nil {
		t.Fatalf("Get merged: %v", err)
	}
	tr, err := gitobj.ParseTree(data)
	if err != nil {
		t.Fatalf("ParseTree: %v", err)
	}
	if len(tr.Entries) != 3 {
		t.Fatalf("merged tree has %d entries, want 3: %+v", len(tr.Entries), tr.Entries)
	}
	for _, name := range []string{"k1.cert", "k2.cert", "k3.cert"} {
		if _, ok := tr.ByName(name); !ok {
			t.Errorf("merged tree missing %q", name)
		}
	}
}

func TestMergeSymmetry(t *testing.T) {
	st := storetest.New()
	k1 := putBlob(t, st, "key1")
	k2 := putBlob(t, st, "key2")
	k3 := putBlob(t, st, "key3")
	base := putTree(t, st, gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1})
	ori := putTree(t, st,
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1},
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k2.cert", Hash: k2},
	)
	new_ := putTree(t, st,
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1},
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k3.cert", Hash: k3},
	)

	m1, err := Step(st, &base, ori, new_)
	if err != nil {
		t.Fatalf("Step(ori,new): %v", err)
	}
	m2, err := Step(st, &base, new_, ori)
	if err != nil {
		t.Fatalf("Step(new,ori): %v", err)
	}
	if m1 != m2 {
		t.Errorf("merge not symmetric: %s != %s", m1, m2)
	}
}

func TestMergeBlobConflict(t *testing.T) {
	st := storetest.New()
	base := putBlob(t, st, "base")
	ori := putBlob(t, st, "ori-edit")
	new_ := putBlob(t, st, "new-edit")
	if _, err := Step(st, &base, ori, new_); err == nil {
		t.Errorf("expected conflict merging two diverging blob edits")
	}
}

func TestCreateCommit(t *testing.T) {
	st := storetest.New()
	k1 := putBlob(t, st, "key1")
	k2 := putBlob(t, st, "key2")
	k3 := putBlob(t, st, "key3")
	baseTree := putTree(t, st, gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1})
	lhsTree := putTree(t, st,
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1},
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k2.cert", Hash: k2},
	)
	rhsTree := putTree(t, st,
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k1.cert", Hash: k1},
		gitobj.TreeEntry{Mode: gitobj.ModeBlob, Name: "k3.cert", Hash: k3},
	)

	baseCommit := putCommit(t, st, baseTree, nil)
	lhsCommit := putCommit(t, st, lhsTree, []githash.Hash{baseCommit})
	rhsCommit := putCommit(t, st, rhsTree, []githash.Hash{baseCommit})

	mergedCommitHash, err := CreateCommit(st, baseCommit, lhsCommit, rhsCommit)
	if err != nil {
		t.Fatalf("CreateCommit: %v", err)
	}
	_, data, err := st.Get(mergedCommitHash)
	if err != nil {
		t.Fatalf("Get merged commit: %v", err)
	}
	c, err := gitobj.ParseCommit(data)
	if err != nil {
		t.Fatalf("ParseCommit: %v", err)
	}
	if len(c.Parents) != 2 || c.Parents[0] != lhsCommit || c.Parents[1] != rhsCommit {
		t.Errorf("merged commit parents = %v", c.Parents)
	}
	mergedTree, err := gitobj.ParseTree(mustGet(t, st, c.Tree))
	if err != nil {
		t.Fatalf("ParseTree: %v", err)
	}
	if len(mergedTree.Entries) != 3 {
		t.Errorf("merged commit tree has %d entries, want 3", len(mergedTree.Entries))
	}
}

func putCommit(t *testing.T, st store.Store, tree githash.Hash, parents []githash.Hash) githash.Hash {
	t.Helper()
	c := &gitobj.Commit{Tree: tree, Parents: parents, Message: "msg\n"}
	h, err := st.Put(store.Commit, c.Encode())
	if err != nil {
		t.Fatalf("Put commit: %v", err)
	}
	return h
}

func mustGet(t *testing.T, st store.Store, h githash.Hash) []byte {
	t.Helper()
	_, data, err := st.Get(h)
	if err != nil {
		t.Fatalf("Get %s: %v", h, err)
	}
	return data
}

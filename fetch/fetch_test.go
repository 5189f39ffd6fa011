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

package fetch

import (
	"bytes"
	"context"
	"testing"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/store/storetest"
)

// serverFace routes every expressed Interest straight into a Server
// answering from a peer's store, counting round-trips.
type serverFace struct {
	srv   *Server
	calls int
}

func (f *serverFace) Express(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
	f.calls++
	return f.srv.HandleInterest(ctx, i)
}

const objectsPrefix = ndn.Name("/gns/project/proj/objects")

func newPeers(t *testing.T) (local *storetest.Mem, remote *storetest.Mem, fetcher *Fetcher, face *serverFace) {
	t.Helper()
	local = storetest.New()
	remote = storetest.New()
	face = &serverFace{srv: NewServer(remote, objectsPrefix, nil)}
	fetcher = New(local, face, objectsPrefix, nil)
	return local, remote, fetcher, face
}

func put(t *testing.T, st store.Store, typ store.ObjType, data []byte) githash.Hash {
	t.Helper()
	h, err := st.Put(typ, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return h
}

func TestFetchClosure(t *testing.T) {
	local, remote, fetcher, _ := newPeers(t)

	blob := put(t, remote, store.Blob, []byte("hello"))
	tree := put(t, remote, store.Tree, (&gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "readme", Hash: blob},
	}}).Encode())
	commit := put(t, remote, store.Commit, (&gitobj.Commit{Tree: tree, Message: "c1\n"}).Encode())

	if err := fetcher.Fetch(context.Background(), store.Commit, commit); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	for _, h := range []githash.Hash{commit, tree, blob} {
		if !local.Has(h) {
			t.Errorf("closure incomplete: %s not in local store", h)
		}
	}
	typ, data, err := local.Get(blob)
	if err != nil || typ != store.Blob || !bytes.Equal(data, []byte("hello")) {
		t.Errorf("blob roundtrip: %v %v %q", typ, err, data)
	}
}

func TestFetchDedup(t *testing.T) {
	_, remote, fetcher, face := newPeers(t)

	blob := put(t, remote, store.Blob, []byte("hello"))
	tree := put(t, remote, store.Tree, (&gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "readme", Hash: blob},
	}}).Encode())
	commit := put(t, remote, store.Commit, (&gitobj.Commit{Tree: tree, Message: "c1\n"}).Encode())

	if err := fetcher.Fetch(context.Background(), store.Commit, commit); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	calls := face.calls
	if err := fetcher.Fetch(context.Background(), store.Commit, commit); err != nil {
		t.Fatalf("re-Fetch: %v", err)
	}
	if face.calls != calls {
		t.Errorf("re-fetch performed %d network round-trips, want 0", face.calls-calls)
	}
}

func TestFetchParents(t *testing.T) {
	local, remote, fetcher, _ := newPeers(t)

	blob := put(t, remote, store.Blob, []byte("v1"))
	tree := put(t, remote, store.Tree, (&gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "f", Hash: blob},
	}}).Encode())
	c1 := put(t, remote, store.Commit, (&gitobj.Commit{Tree: tree, Message: "c1\n"}).Encode())
	c2 := put(t, remote, store.Commit, (&gitobj.Commit{Tree: tree, Parents: []githash.Hash{c1}, Message: "c2\n"}).Encode())

	if err := fetcher.Fetch(context.Background(), store.Commit, c2); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !local.Has(c1) {
		t.Errorf("parent commit %s not fetched", c1)
	}
}

func TestFetchTypeMismatch(t *testing.T) {
	_, remote, fetcher, _ := newPeers(t)
	blob := put(t, remote, store.Blob, []byte("not a tree"))

	err := fetcher.Fetch(context.Background(), store.Tree, blob)
	if err == nil {
		t.Fatalf("expected type-mismatch error")
	}
}

func TestFetchSegmented(t *testing.T) {
	local, remote, fetcher, face := newPeers(t)

	big := make([]byte, 3*SegmentSize+123)
	for i := range big {
		big[i] = byte(i)
	}
	blob := put(t, remote, store.Blob, big)

	if err := fetcher.Fetch(context.Background(), store.Blob, blob); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	typ, data, err := local.Get(blob)
	if err != nil || typ != store.Blob {
		t.Fatalf("Get: %v %v", typ, err)
	}
	if !bytes.Equal(data, big) {
		t.Errorf("reassembled %d bytes do not match the original %d", len(data), len(big))
	}
	if face.calls < 4 {
		t.Errorf("expected at least 4 segment round-trips, got %d", face.calls)
	}
}

func TestServeUnknownObject(t *testing.T) {
	_, _, fetcher, _ := newPeers(t)
	var absent githash.Hash
	absent[0] = 0xab
	if err := fetcher.Fetch(context.Background(), store.Blob, absent); err == nil {
		t.Errorf("expected an error fetching an object the peer does not have")
	}
}

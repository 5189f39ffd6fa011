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

package pipeline

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"testing"

	"lab.nexedi.com/kirr/git-ndn-sync/cert"
	"lab.nexedi.com/kirr/git-ndn-sync/fetch"
	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/store/storetest"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// failFace errors on every Express: used by tests whose objects are
// already local, so any network round-trip is a test failure.
type failFace struct{}

func (failFace) Express(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
	return ndn.Data{}, errors.New("unexpected network round-trip")
}

// bridgeFace hands every Interest to a fetch.Server answering from a
// peer's store.
type bridgeFace struct{ srv *fetch.Server }

func (f bridgeFace) Express(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
	return f.srv.HandleInterest(ctx, i)
}

// captureTransport records every published announcement.
type captureTransport struct {
	published [][]byte
}

func (c *captureTransport) PublishUpdate(ctx context.Context, content []byte, respondTo []byte) {
	c.published = append(c.published, content)
}

const prefix = ndn.Name("/gns/project/proj/objects")

type env struct {
	st        *storetest.Mem
	pl        *Pipeline
	transport *captureTransport
	anchorKey *ecdsa.PrivateKey
	signer    *cert.Signer
}

// newEnv builds a Pipeline over an in-memory store, with the store
// itself doubling as All-Users.git for the verifier, and the trust
// anchor (admin, k1) as the only axiomatically known signer.
func newEnv(t *testing.T, face ndn.Face) *env {
	t.Helper()
	st := storetest.New()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	anchor, err := cert.LoadTrustAnchor(der, cert.ParseName("/All-Users/admin/KEY/k1/self/v1"))
	if err != nil {
		t.Fatalf("LoadTrustAnchor: %v", err)
	}
	signer := cert.NewSigner(key, "/gns/admin/KEY/k1")

	verifier := cert.NewVerifier(st, anchor, nil)
	fetcher := fetch.New(st, face, prefix, nil)
	transport := &captureTransport{}
	return &env{
		st:        st,
		pl:        New(st, fetcher, verifier, transport, nil),
		transport: transport,
		anchorKey: key,
		signer:    signer,
	}
}

func putObj(t *testing.T, st store.Store, typ store.ObjType, data []byte) githash.Hash {
	t.Helper()
	h, err := st.Put(typ, data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	return h
}

func putCommit(t *testing.T, st store.Store, tree githash.Hash, parents []githash.Hash, msg string) githash.Hash {
	t.Helper()
	return putObj(t, st, store.Commit, (&gitobj.Commit{Tree: tree, Parents: parents, Message: msg}).Encode())
}

// signedAccount encodes an AccountConfig for userID signed by the test
// anchor identity, optionally with the signature bytes tampered.
func signedAccount(t *testing.T, e *env, userID string, tamper bool) []byte {
	t.Helper()
	acc := &tlv.AccountConfig{UserID: userID, FullName: userID, Email: userID + "@example.com"}
	data, err := tlv.EncodeGitObject(acc, e.signer.KeyLocatorName, e.signer)
	if err != nil {
		t.Fatalf("EncodeGitObject: %v", err)
	}
	if tamper {
		data[len(data)-1] ^= 0x01
	}
	return data
}

func certDER(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return der
}

// userTree writes a user-branch tree: account.tlv at the root plus one
// KEY/<id>.cert entry per given cert.
func userTree(t *testing.T, st store.Store, account []byte, certs map[string][]byte) githash.Hash {
	t.Helper()
	acctHash := putObj(t, st, store.Blob, account)
	var keyEntries []gitobj.TreeEntry
	for name, der := range certs {
		keyEntries = append(keyEntries, gitobj.TreeEntry{
			Mode: gitobj.ModeBlob, Name: name + ".cert", Hash: putObj(t, st, store.Blob, der),
		})
	}
	keyDir := putObj(t, st, store.Tree, (&gitobj.Tree{Entries: keyEntries}).Encode())
	return putObj(t, st, store.Tree, (&gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "account.tlv", Hash: acctHash},
		{Mode: gitobj.ModeTree, Name: "KEY", Hash: keyDir},
	}}).Encode())
}

func TestNewBranchFetchedAndSet(t *testing.T) {
	remote := storetest.New()
	e := newEnv(t, bridgeFace{srv: fetch.NewServer(remote, prefix, nil)})

	blob := putObj(t, remote, store.Blob, []byte("hello"))
	tree := putObj(t, remote, store.Tree, (&gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "readme", Hash: blob},
	}}).Encode())
	h1 := putCommit(t, remote, tree, nil, "c1\n")

	e.pl.ProcessUpdate(context.Background(), map[string]githash.Hash{"refs/heads/main": h1}, nil)

	for _, h := range []githash.Hash{h1, tree, blob} {
		if !e.st.Has(h) {
			t.Errorf("object %s missing after update", h)
		}
	}
	if got, err := e.st.GetRef("refs/heads/main"); err != nil || got != h1 {
		t.Errorf("refs/heads/main = %s, %v; want %s", got, err, h1)
	}
	if len(e.transport.published) != 1 {
		t.Errorf("published %d announcements, want 1", len(e.transport.published))
	}
}

func TestNonDescendantRejected(t *testing.T) {
	e := newEnv(t, failFace{})

	blob := putObj(t, e.st, store.Blob, []byte("a"))
	tree := putObj(t, e.st, store.Tree, (&gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "f", Hash: blob},
	}}).Encode())
	h1 := putCommit(t, e.st, tree, nil, "ours\n")
	h2 := putCommit(t, e.st, tree, nil, "theirs, unrelated\n")

	if err := e.st.SetRef("refs/heads/main", h1); err != nil {
		t.Fatal(err)
	}
	e.pl.ProcessUpdate(context.Background(), map[string]githash.Hash{"refs/heads/main": h2}, nil)

	if got, _ := e.st.GetRef("refs/heads/main"); got != h1 {
		t.Errorf("refs/heads/main moved to %s, want it to stay %s", got, h1)
	}
	if len(e.transport.published) != 0 {
		t.Errorf("published %d announcements, want 0", len(e.transport.published))
	}
}

func TestImmutableBranchPreserved(t *testing.T) {
	e := newEnv(t, failFace{})

	blob := putObj(t, e.st, store.Blob, []byte("snapshot"))
	tree := putObj(t, e.st, store.Tree, (&gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "f", Hash: blob},
	}}).Encode())
	cX := putCommit(t, e.st, tree, nil, "v1\n")
	cY := putCommit(t, e.st, tree, []githash.Hash{cX}, "v2\n")

	const ref = "refs/changes/aa/ab/1"
	if err := e.st.SetRef(ref, cX); err != nil {
		t.Fatal(err)
	}
	e.pl.ProcessUpdate(context.Background(), map[string]githash.Hash{ref: cY}, nil)

	if got, _ := e.st.GetRef(ref); got != cX {
		t.Errorf("%s moved to %s, want it frozen at %s", ref, got, cX)
	}
}

func TestLinearAdvanceSignedBranch(t *testing.T) {
	e := newEnv(t, failFace{})

	k1 := certDER(t)
	account := signedAccount(t, e, "alice", false)
	t0 := userTree(t, e.st, account, map[string][]byte{"k1": k1})
	c1 := putCommit(t, e.st, t0, nil, "create\n")

	const ref = "refs/users/al/alice"
	e.pl.ProcessUpdate(context.Background(), map[string]githash.Hash{ref: c1}, nil)

	if got, err := e.st.GetRef(ref); err != nil || got != c1 {
		t.Errorf("%s = %s, %v; want %s", ref, got, err, c1)
	}
}

func TestSignatureFailureStopsWalk(t *testing.T) {
	e := newEnv(t, failFace{})

	k1 := certDER(t)
	good := signedAccount(t, e, "alice", false)
	bad := signedAccount(t, e, "alice", true)

	t1 := userTree(t, e.st, good, map[string][]byte{"k1": k1})
	c1 := putCommit(t, e.st, t1, nil, "c1\n")
	t2 := userTree(t, e.st, bad, map[string][]byte{"k1": k1, "k2": certDER(t)})
	c2 := putCommit(t, e.st, t2, []githash.Hash{c1}, "c2 tampered\n")
	t3 := userTree(t, e.st, good, map[string][]byte{"k1": k1, "k2": certDER(t), "k3": certDER(t)})
	c3 := putCommit(t, e.st, t3, []githash.Hash{c2}, "c3\n")

	const ref = "refs/users/al/alice"
	e.pl.ProcessUpdate(context.Background(), map[string]githash.Hash{ref: c3}, nil)

	if got, err := e.st.GetRef(ref); err != nil || got != c1 {
		t.Errorf("%s = %s, %v; want the walk stopped at %s", ref, got, err, c1)
	}
}

func TestUserBranchMergeConverges(t *testing.T) {
	e := newEnv(t, failFace{})

	account := signedAccount(t, e, "alice", false)
	k1 := certDER(t)

	t0 := userTree(t, e.st, account, map[string][]byte{"k1": k1})
	c0 := putCommit(t, e.st, t0, nil, "create\n")
	t1 := userTree(t, e.st, account, map[string][]byte{"k1": k1, "k2": certDER(t)})
	c1 := putCommit(t, e.st, t1, []githash.Hash{c0}, "add k2\n")
	t2 := userTree(t, e.st, account, map[string][]byte{"k1": k1, "k3": certDER(t)})
	c2 := putCommit(t, e.st, t2, []githash.Hash{c0}, "add k3\n")

	const ref = "refs/users/al/alice"
	if err := e.st.SetRef(ref, c1); err != nil {
		t.Fatal(err)
	}
	e.pl.ProcessUpdate(context.Background(), map[string]githash.Hash{ref: c2}, nil)

	merged, err := e.st.GetRef(ref)
	if err != nil {
		t.Fatalf("GetRef: %v", err)
	}
	_, data, err := e.st.Get(merged)
	if err != nil {
		t.Fatalf("Get merged: %v", err)
	}
	mc, err := gitobj.ParseCommit(data)
	if err != nil {
		t.Fatalf("ParseCommit: %v", err)
	}
	if len(mc.Parents) != 2 || mc.Parents[0] != c1 || mc.Parents[1] != c2 {
		t.Errorf("merged parents = %v, want [%s %s]", mc.Parents, c1, c2)
	}

	_, treeData, err := e.st.Get(mc.Tree)
	if err != nil {
		t.Fatalf("Get merged tree: %v", err)
	}
	mt, err := gitobj.ParseTree(treeData)
	if err != nil {
		t.Fatalf("ParseTree: %v", err)
	}
	keyEntry, ok := mt.ByName("KEY")
	if !ok {
		t.Fatalf("merged tree has no KEY dir")
	}
	_, keyData, err := e.st.Get(keyEntry.Hash)
	if err != nil {
		t.Fatalf("Get KEY dir: %v", err)
	}
	kt, err := gitobj.ParseTree(keyData)
	if err != nil {
		t.Fatalf("ParseTree KEY: %v", err)
	}
	for _, name := range []string{"k1.cert", "k2.cert", "k3.cert"} {
		if _, ok := kt.ByName(name); !ok {
			t.Errorf("merged KEY dir missing %q", name)
		}
	}
}

func TestMalformedUpdateDropped(t *testing.T) {
	e := newEnv(t, failFace{})
	e.pl.OnUpdate(context.Background(), []byte{0xff, 0xff, 0xff}, [32]byte{})
	if len(e.transport.published) != 0 {
		t.Errorf("malformed update triggered a publish")
	}
}

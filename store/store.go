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

// Package store implements the object store adapter: a
// content-addressed put/get interface over 20-byte hashes, typed
// blob/tree/commit objects, and a flat reference table — backed by a
// real on-disk git object database via git2go (wrapped by
// internal/git, which owns all direct cgo contact).
package store

import (
	"errors"
	"fmt"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	igit "lab.nexedi.com/kirr/git-ndn-sync/internal/git"
)

// ObjType is one of the three git object kinds this module deals in.
// (tag and other git object types are out of scope.)
type ObjType int8

const (
	InvalidObject ObjType = iota
	Blob
	Tree
	Commit
)

func (t ObjType) String() string {
	switch t {
	case Blob:
		return "blob"
	case Tree:
		return "tree"
	case Commit:
		return "commit"
	}
	return "invalid"
}

// ParseObjType maps a SyncObject wire obj_type string to the
// corresponding ObjType.
func ParseObjType(s string) (ObjType, error) {
	switch s {
	case "blob":
		return Blob, nil
	case "tree":
		return Tree, nil
	case "commit":
		return Commit, nil
	}
	return InvalidObject, fmt.Errorf("store: unknown object type %q", s)
}

// ErrRefNotFound is returned by GetRef when the named reference is absent.
var ErrRefNotFound = errors.New("store: ref not found")

// ErrAmbiguousMergeBase is returned by MergeBase when two commits have
// more than one independent common ancestor.
var ErrAmbiguousMergeBase = errors.New("store: ambiguous merge base")

// Store is the full set of operations the sync engine ever performs
// against the object database and the reference table of a single
// repository.
type Store interface {
	Has(h githash.Hash) bool
	Put(t ObjType, data []byte) (githash.Hash, error)
	Get(h githash.Hash) (ObjType, []byte, error)

	ListRefs() (map[string]githash.Hash, error)
	SetRef(name string, h githash.Hash) error
	GetRef(name string) (githash.Hash, error) // ErrRefNotFound if absent
	DeleteRef(name string) error

	IsAncestor(a, b githash.Hash) (bool, error)
	MergeBase(a, b githash.Hash) (githash.Hash, error) // ErrAmbiguousMergeBase / absent -> zero hash, nil
	// CommitsBetween returns, oldest first, every commit reachable from
	// head but not from *ancestor (nil ancestor means "since the root").
	CommitsBetween(ancestor *githash.Hash, head githash.Hash) ([]githash.Hash, error)
}

// GitStore is the git2go-backed Store implementation.
type GitStore struct {
	repo *igit.Repository
}

var _ Store = (*GitStore)(nil)

// Open opens (but does not create) the bare git repository at path as a
// Store.
func Open(path string) (*GitStore, error) {
	repo, err := igit.OpenRepository(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return &GitStore{repo: repo}, nil
}

// Create initializes a brand-new bare repository at path and returns
// it as a Store; the create-project and init-server endpoints are its
// callers.
func Create(path string) (*GitStore, error) {
	repo, err := igit.InitRepository(path)
	if err != nil {
		return nil, fmt.Errorf("store: init %s: %w", path, err)
	}
	return &GitStore{repo: repo}, nil
}

func toOid(h githash.Hash) igit.Oid {
	var oid igit.Oid
	copy(oid[:], h[:])
	return oid
}

func fromOid(oid igit.Oid) githash.Hash {
	var h githash.Hash
	copy(h[:], oid[:])
	return h
}

func (s *GitStore) odb() (*igit.Odb, error) {
	return s.repo.Odb()
}

func (s *GitStore) Has(h githash.Hash) bool {
	odb, err := s.odb()
	if err != nil {
		return false
	}
	oid := toOid(h)
	obj, err := odb.Read(&oid)
	return err == nil && obj != nil
}

func (s *GitStore) Put(t ObjType, data []byte) (githash.Hash, error) {
	odb, err := s.odb()
	if err != nil {
		return githash.Hash{}, err
	}
	var gt igit.ObjectType
	switch t {
	case Blob:
		gt = igit.ObjectBlob
	case Tree:
		gt = igit.ObjectTree
	case Commit:
		gt = igit.ObjectCommit
	default:
		return githash.Hash{}, fmt.Errorf("store: put: invalid object type %v", t)
	}
	oid, err := odb.Write(data, gt)
	if err != nil {
		return githash.Hash{}, fmt.Errorf("store: put %s: %w", t, err)
	}
	// Put is idempotent: odb.Write returns the same oid for the same
	// bytes+type regardless of whether it was already present.
	return fromOid(*oid), nil
}

func (s *GitStore) Get(h githash.Hash) (ObjType, []byte, error) {
	odb, err := s.odb()
	if err != nil {
		return InvalidObject, nil, err
	}
	oid := toOid(h)
	obj, err := odb.Read(&oid)
	if err != nil {
		return InvalidObject, nil, fmt.Errorf("store: get %s: %w", h, err)
	}
	t, err := gitTypeToObjType(obj.Type())
	if err != nil {
		return InvalidObject, nil, err
	}
	return t, obj.Data(), nil
}

func gitTypeToObjType(gt igit.ObjectType) (ObjType, error) {
	switch gt {
	case igit.ObjectBlob:
		return Blob, nil
	case igit.ObjectTree:
		return Tree, nil
	case igit.ObjectCommit:
		return Commit, nil
	}
	return InvalidObject, fmt.Errorf("store: unsupported object type %v", gt)
}

func (s *GitStore) ListRefs() (map[string]githash.Hash, error) {
	out := map[string]githash.Hash{}
	err := s.repo.ForEachRef(func(e igit.RefEntry) error {
		out[e.Name] = fromOid(e.Target)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list refs: %w", err)
	}
	return out, nil
}

func (s *GitStore) SetRef(name string, h githash.Hash) error {
	oid := toOid(h)
	if _, err := s.repo.References.Create(name, &oid, true, "git-ndn-sync: update ref"); err != nil {
		return fmt.Errorf("store: set ref %s: %w", name, err)
	}
	return nil
}

func (s *GitStore) GetRef(name string) (githash.Hash, error) {
	ref, err := s.repo.References.Lookup(name)
	if err != nil {
		return githash.Hash{}, fmt.Errorf("store: get ref %s: %w", name, err)
	}
	if ref == nil {
		return githash.Hash{}, ErrRefNotFound
	}
	return fromOid(*ref.Target()), nil
}

func (s *GitStore) DeleteRef(name string) error {
	if err := s.repo.References.Remove(name); err != nil {
		return fmt.Errorf("store: delete ref %s: %w", name, err)
	}
	return nil
}

func (s *GitStore) IsAncestor(a, b githash.Hash) (bool, error) {
	base, err := s.MergeBase(a, b)
	if err != nil {
		return false, err
	}
	return base == a, nil
}

func (s *GitStore) MergeBase(a, b githash.Hash) (githash.Hash, error) {
	oa, ob := toOid(a), toOid(b)
	bases, err := s.repo.MergeBases(&oa, &ob)
	if err != nil {
		return githash.Hash{}, fmt.Errorf("store: merge-base %s %s: %w", a, b, err)
	}
	switch len(bases) {
	case 0:
		return githash.Hash{}, nil
	case 1:
		return fromOid(bases[0]), nil
	default:
		return githash.Hash{}, ErrAmbiguousMergeBase
	}
}

func (s *GitStore) CommitsBetween(ancestor *githash.Hash, head githash.Hash) ([]githash.Hash, error) {
	var aOid *igit.Oid
	if ancestor != nil {
		o := toOid(*ancestor)
		aOid = &o
	}
	oids, err := s.repo.WalkRange(aOid, toOid(head))
	if err != nil {
		return nil, fmt.Errorf("store: commits between: %w", err)
	}
	out := make([]githash.Hash, len(oids))
	for i, o := range oids {
		out[i] = fromOid(o)
	}
	return out, nil
}

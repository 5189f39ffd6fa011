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

package git

import (
	"runtime"

	git2go "github.com/libgit2/git2go/v31"
)

// Extensions to the safety wrapper in git.go, added so that the higher
// level `store` package never imports git2go directly: reference table
// access, commit graph walking and merge-base computation.

// Target returns the Oid a direct reference points at.
func (r *Reference) Target() *Oid {
	id := oidClone(r.ref.Target())
	runtime.KeepAlive(r)
	return id
}

func (r *Reference) Name() string {
	name := stringsClone(r.ref.Name())
	runtime.KeepAlive(r)
	return name
}

// Lookup finds a reference by full name (e.g. "refs/heads/main"); returns
// nil, nil if it does not exist.
func (rdb *ReferenceCollection) Lookup(name string) (*Reference, error) {
	ref, err := rdb.r.repo.References.Lookup(name)
	if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Reference{ref}, nil
}

// Remove deletes a reference by name; no error if it does not exist.
func (rdb *ReferenceCollection) Remove(name string) error {
	ref, err := rdb.r.repo.References.Lookup(name)
	if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return ref.Delete()
}

// RefEntry is one (name, target) pair as produced by ForEachRef.
type RefEntry struct {
	Name   string
	Target Oid
}

// ForEachRef lists every direct reference in the repository.
func (r *Repository) ForEachRef(fn func(RefEntry) error) error {
	iter, err := r.repo.NewReferenceIterator()
	if err != nil {
		return err
	}
	defer iter.Free()
	for {
		ref, err := iter.Next()
		if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
			return nil
		}
		if err != nil {
			return err
		}
		if ref.Type() != git2go.ReferenceSymbolic {
			if e := fn(RefEntry{Name: stringsClone(ref.Name()), Target: *oidClone(ref.Target())}); e != nil {
				return e
			}
		}
	}
}

// MergeBase returns the (single) best common ancestor of two commits, or
// nil if they share no history.
func (r *Repository) MergeBase(one, two *Oid) (*Oid, error) {
	base, err := r.repo.MergeBase(one, two)
	if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return oidClone(base), nil
}

// MergeBases returns every independent merge base of two commits. An
// empty result means no common history; more than one means the bases
// are ambiguous (criss-cross merge) and the caller has to decline the
// merge.
func (r *Repository) MergeBases(one, two *Oid) ([]Oid, error) {
	oids, err := r.repo.MergeBases(one, two)
	if git2go.IsErrorCode(err, git2go.ErrorCodeNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]Oid, len(oids))
	for i := range oids {
		copy(out[i][:], oids[i][:])
	}
	return out, nil
}

// WalkRange enumerates every commit reachable from head but not from
// ancestor (exclusive), oldest first. ancestor == nil means "from the
// root".
func (r *Repository) WalkRange(ancestor *Oid, head Oid) ([]Oid, error) {
	walk, err := r.repo.Walk()
	if err != nil {
		return nil, err
	}
	defer walk.Free()

	if err := walk.Sorting(git2go.SortTopological | git2go.SortReverse); err != nil {
		return nil, err
	}
	if err := walk.Push(&head); err != nil {
		return nil, err
	}
	if ancestor != nil {
		if err := walk.Hide(ancestor); err != nil {
			return nil, err
		}
	}

	var out []Oid
	var oid git2go.Oid
	for {
		err := walk.Next(&oid)
		if git2go.IsErrorCode(err, git2go.ErrorCodeIterOver) {
			break
		}
		if err != nil {
			return nil, err
		}
		var h Oid
		copy(h[:], oid[:])
		out = append(out, h)
	}
	return out, nil
}

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

// Package fetch implements the object fetcher: a segmented, type-aware,
// recursive fetcher that walks commit -> tree -> blob graphs over an
// ndn.Face, deduplicating against a store.Store. The Server half
// answers the same segment Interests for objects held locally.
package fetch

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// SegmentSize is the maximum object payload carried per segment.
const SegmentSize = 4000

// FreshnessPeriodMillis is the freshness the server side advertises for
// served object segments. Git objects are immutable, so an hour is
// purely a cache-pressure knob, not a consistency one.
const FreshnessPeriodMillis = 3600 * 1000

// ErrTypeMismatch is returned when the reassembled object's declared
// type disagrees with what the caller expected.
var ErrTypeMismatch = errors.New("fetch: type mismatch")

// Fetcher recursively fetches a commit/tree/blob graph, depth-first and
// serial per root call. Serial recursion bounds in-flight work per
// root; concurrency comes from the pipeline issuing multiple roots in
// parallel.
type Fetcher struct {
	Store         store.Store
	Face          ndn.Face
	ObjectsPrefix ndn.Name // e.g. "/git-ndn-sync/project/<repo>/objects"
	Log           *logrus.Entry
}

// New builds a Fetcher. log may be nil, in which case the standard
// logger is used.
func New(st store.Store, face ndn.Face, objectsPrefix ndn.Name, log *logrus.Entry) *Fetcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Fetcher{Store: st, Face: face, ObjectsPrefix: objectsPrefix, Log: log}
}

// Fetch retrieves h and its full reachable closure, skipping anything
// already present in the store. expectedType may be store.InvalidObject
// to mean "any type accepted at the root".
func (f *Fetcher) Fetch(ctx context.Context, expectedType store.ObjType, h githash.Hash) error {
	if f.Store.Has(h) {
		return nil // dedup against the local store
	}

	payload, err := f.fetchSegmented(ctx, h)
	if err != nil {
		return err
	}
	obj, err := tlv.DecodeSyncObject(payload)
	if err != nil {
		return fmt.Errorf("fetch: %s: decode SyncObject: %w", h, err)
	}
	objType, err := store.ParseObjType(obj.ObjType)
	if err != nil {
		return fmt.Errorf("fetch: %s: %w", h, err)
	}
	if expectedType != store.InvalidObject && objType != expectedType {
		return fmt.Errorf("fetch: %s: want %s, got %s: %w", h, expectedType, objType, ErrTypeMismatch)
	}

	if _, err := f.Store.Put(objType, obj.ObjData); err != nil {
		return fmt.Errorf("fetch: %s: store: %w", h, err)
	}

	switch objType {
	case store.Commit:
		return f.fetchCommitRefs(ctx, obj.ObjData)
	case store.Tree:
		return f.fetchTreeEntries(ctx, obj.ObjData)
	case store.Blob:
		return nil
	default:
		return fmt.Errorf("fetch: %s: unsupported object type %s", h, objType)
	}
}

func (f *Fetcher) fetchCommitRefs(ctx context.Context, commitData []byte) error {
	treeHex, parentHexes, err := gitobj.HeaderLines(commitData)
	if err != nil {
		return err
	}
	if treeHex != "" {
		treeHash, err := githash.Parse(treeHex)
		if err != nil {
			return fmt.Errorf("fetch: commit: bad tree hash %q: %w", treeHex, err)
		}
		if err := f.Fetch(ctx, store.Tree, treeHash); err != nil {
			return err
		}
	}
	for _, ph := range parentHexes {
		parentHash, err := githash.Parse(ph)
		if err != nil {
			return fmt.Errorf("fetch: commit: bad parent hash %q: %w", ph, err)
		}
		if err := f.Fetch(ctx, store.Commit, parentHash); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) fetchTreeEntries(ctx context.Context, treeData []byte) error {
	tr, err := gitobj.ParseTree(treeData)
	if err != nil {
		return err
	}
	for _, e := range tr.Entries {
		childType := store.Tree
		if e.IsBlob() {
			childType = store.Blob
		}
		if err := f.Fetch(ctx, childType, e.Hash); err != nil {
			return err
		}
	}
	return nil
}

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
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lab.nexedi.com/kirr/git-ndn-sync/cert"
	"lab.nexedi.com/kirr/git-ndn-sync/fetch"
	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/merge"
	"lab.nexedi.com/kirr/git-ndn-sync/objwalk"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// Transport is the minimal surface the pipeline needs from the
// state-vector sync layer (package vsync): publish a fresh ref-head
// announcement once a batch of refs has advanced. It is invoked only
// after every ref mutation in the batch has been persisted.
type Transport interface {
	PublishUpdate(ctx context.Context, content []byte, respondTo []byte)
}

// Pipeline orchestrates the fetcher, the verifier and the merger for a
// single repository. One Pipeline exists per repo; the daemon's
// top-level wiring owns one Pipeline per entry in its repo set.
type Pipeline struct {
	Store     store.Store
	Fetcher   *fetch.Fetcher
	Verifier  *cert.Verifier
	Transport Transport
	Log       *logrus.Entry
}

// New builds a Pipeline. log may be nil.
func New(st store.Store, fetcher *fetch.Fetcher, verifier *cert.Verifier, transport Transport, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{Store: st, Fetcher: fetcher, Verifier: verifier, Transport: transport, Log: log}
}

// OnUpdate is the vsync.OnUpdate callback: it parses an incoming
// branch-head announcement and reconciles every named ref against the
// local store. Malformed input is logged and dropped — not itself an
// error the caller needs to act on.
func (p *Pipeline) OnUpdate(ctx context.Context, raw []byte, _ [32]byte) {
	update, err := tlv.DecodeSyncUpdate(raw)
	if err != nil {
		p.Log.WithError(err).Warn("pipeline: malformed sync update, dropping")
		return
	}
	refUpdates := make(map[string]githash.Hash, len(update.Refs))
	for _, ri := range update.Refs {
		refUpdates[ri.RefName] = githash.Hash(ri.RefHead)
	}
	p.ProcessUpdate(ctx, refUpdates, raw)
}

// ProcessUpdate drives every named ref through the fetch + policy
// pipeline. Per-ref work is serialized — one goroutine per ref, each
// ref's own linear/merge update running start-to-finish — while
// distinct refs may interleave freely.
func (p *Pipeline) ProcessUpdate(ctx context.Context, refUpdates map[string]githash.Hash, respondTo []byte) {
	var g errgroup.Group
	updated := make([]bool, len(refUpdates))
	names := make([]string, 0, len(refUpdates))
	for name := range refUpdates {
		names = append(names, name)
	}
	for i, name := range names {
		i, name, head := i, name, refUpdates[name]
		g.Go(func() error {
			ok, err := p.processRef(ctx, name, head)
			if err != nil {
				p.Log.WithError(err).WithField("ref", name).Warn("pipeline: ref update skipped")
				return nil
			}
			updated[i] = ok
			return nil
		})
	}
	_ = g.Wait() // per-ref errors are already logged and absorbed above

	anyUpdated := false
	for _, u := range updated {
		if u {
			anyUpdated = true
			break
		}
	}
	if !anyUpdated {
		return
	}
	p.republish(ctx, respondTo)
}

// processRef fetches head's closure and applies the linear, falling
// back to the merge, policy.
func (p *Pipeline) processRef(ctx context.Context, name string, head githash.Hash) (updated bool, err error) {
	if err := p.Fetcher.Fetch(ctx, store.Commit, head); err != nil {
		return false, fmt.Errorf("fetch %s: %w", name, err)
	}

	ok, updated, err := p.linearUpdate(name, head)
	if err != nil {
		return false, err
	}
	if ok {
		return updated, nil
	}
	if Mergeable(name) {
		return p.mergeUpdate(name, head)
	}
	return false, nil
}

// linearUpdate advances name by fast-forward only, with immutable
// branches frozen once set, and a partial advance on the first
// signature/policy failure: the walk stops but every commit verified
// so far stays applied, so certificates imported by the good prefix
// are available next time around.
//
// Returns (accepted, updated, err): accepted is false only when new is
// not a descendant of the current head (the caller should then try a
// merge if the ref class allows it).
func (p *Pipeline) linearUpdate(name string, newHead githash.Hash) (accepted, updated bool, err error) {
	ori, err := p.Store.GetRef(name)
	oriPresent := err == nil
	if err != nil && err != store.ErrRefNotFound {
		return false, false, err
	}

	if oriPresent {
		isAnc, err := p.Store.IsAncestor(ori, newHead)
		if err != nil {
			return false, false, err
		}
		if !isAnc {
			return false, false, nil // declined: not a descendant
		}
	}

	if Immutable(name) && oriPresent {
		return true, false, nil // frozen: ignore, but this was a valid outcome
	}
	if oriPresent && ori == newHead {
		return true, false, nil
	}

	var ancestor *githash.Hash
	if oriPresent {
		ancestor = &ori
	}
	commits, err := p.Store.CommitsBetween(ancestor, newHead)
	if err != nil {
		return false, false, err
	}

	advancedAny := false
	for _, c := range commits {
		ok, err := p.securityCheck(name, c)
		if err != nil {
			return false, false, err
		}
		if !ok {
			break // stop at the first failure, keep the partial advance
		}
		advancedAny = true
		if err := p.Store.SetRef(name, c); err != nil {
			return false, false, err
		}
	}
	return true, advancedAny, nil
}

// mergeUpdate reconciles name with newHead by three-way merge, for the
// mergeable (append-only) branch classes.
func (p *Pipeline) mergeUpdate(name string, newHead githash.Hash) (updated bool, err error) {
	ori, err := p.Store.GetRef(name)
	if err != nil {
		return false, err // a merge needs an existing head to merge into
	}

	oriTree, _, err := objwalk.TreeAt(p.Store, ori)
	if err != nil {
		return false, err
	}
	newTree, _, err := objwalk.TreeAt(p.Store, newHead)
	if err != nil {
		return false, err
	}
	if sameTree(oriTree, newTree) {
		// Equal content on divergent commits: the lexicographically
		// smaller head wins, so both peers settle on the same one.
		if newHead.Less(ori) {
			if err := p.Store.SetRef(name, newHead); err != nil {
				return false, err
			}
			return true, nil
		}
		return false, nil
	}

	base, err := p.Store.MergeBase(ori, newHead)
	if err != nil {
		if err == store.ErrAmbiguousMergeBase {
			p.Log.WithField("ref", name).Warn("pipeline: ambiguous merge base, declining")
			return false, nil
		}
		return false, err
	}
	if base.IsZero() {
		p.Log.WithField("ref", name).Warn("pipeline: no common merge base, declining")
		return false, nil
	}

	commits, err := p.Store.CommitsBetween(&base, newHead)
	if err != nil {
		return false, err
	}

	oriCommitType, oriCommitData, err := p.Store.Get(ori)
	if err != nil {
		return false, err
	}
	if oriCommitType != store.Commit {
		return false, fmt.Errorf("pipeline: %s is not a commit", ori)
	}
	oriCommit, err := gitobj.ParseCommit(oriCommitData)
	if err != nil {
		return false, err
	}

	for _, c := range commits {
		ok, err := p.securityCheck(name, c)
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		_, newData, err := p.Store.Get(c)
		if err != nil {
			return false, err
		}
		newCommit, err := gitobj.ParseCommit(newData)
		if err != nil {
			return false, err
		}
		mergeable, err := p.mergeabilityCheck(base, oriCommit, newCommit)
		if err != nil {
			return false, err
		}
		if !mergeable {
			break
		}
	}

	merged, err := merge.CreateCommit(p.Store, base, ori, newHead)
	if err != nil {
		if errors.Is(err, merge.ErrConflict) {
			p.Log.WithField("ref", name).WithError(err).Warn("pipeline: merge conflict, declining")
			return false, nil
		}
		return false, err
	}
	if err := p.Store.SetRef(name, merged); err != nil {
		return false, err
	}
	return true, nil
}

// mergeabilityCheck enforces the append-only merge rule: no blob
// present in the common base may be modified differently on both
// sides, and none may be missing from either side.
func (p *Pipeline) mergeabilityCheck(base githash.Hash, ori, new_ *gitobj.Commit) (bool, error) {
	baseType, baseData, err := p.Store.Get(base)
	if err != nil {
		return false, err
	}
	if baseType != store.Commit {
		return false, fmt.Errorf("pipeline: %s is not a commit", base)
	}
	baseCommit, err := gitobj.ParseCommit(baseData)
	if err != nil {
		return false, err
	}
	bt, err := objwalk.GetTree(p.Store, baseCommit.Tree)
	if err != nil {
		return false, err
	}
	ot, err := objwalk.GetTree(p.Store, ori.Tree)
	if err != nil {
		return false, err
	}
	nt, err := objwalk.GetTree(p.Store, new_.Tree)
	if err != nil {
		return false, err
	}

	mergeable := true
	err = objwalk.WalkFiles(p.Store, bt, func(f objwalk.File) error {
		if !mergeable {
			return nil
		}
		oe, found, err := objwalk.LookupPath(p.Store, ot, f.Path)
		if err != nil {
			return err
		}
		if !found {
			mergeable = false
			return nil
		}
		ne, found, err := objwalk.LookupPath(p.Store, nt, f.Path)
		if err != nil {
			return err
		}
		if !found {
			mergeable = false
			return nil
		}
		if oe.Hash != f.Entry.Hash && ne.Hash != f.Entry.Hash && oe.Hash != ne.Hash {
			mergeable = false
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return mergeable, nil
}

// securityCheck applies the per-commit policy for name's ref class:
// code branches are unsigned by design; everywhere else every .tlv
// record and .cert entry in the commit's tree (sub-trees included)
// must verify, and user branches additionally get a structural check.
func (p *Pipeline) securityCheck(name string, commitHash githash.Hash) (bool, error) {
	if Code(name) {
		return true, nil
	}

	tr, _, err := objwalk.TreeAt(p.Store, commitHash)
	if err != nil {
		return false, err
	}

	ok := true
	err = objwalk.WalkFiles(p.Store, tr, func(f objwalk.File) error {
		if !ok {
			return nil
		}
		switch {
		case strings.HasSuffix(f.Entry.Name, ".tlv"):
			ok = p.verifyRecord(name, f)
		case strings.HasSuffix(f.Entry.Name, ".cert"):
			ok = p.verifyCert(name, f)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if strings.HasPrefix(name, "refs/users/") {
		if !p.checkUserBranch(name, tr) {
			return false, nil
		}
	}
	// Change-meta branches carry no structural check yet: their record
	// schema is still settling, so the policy stays permissive.
	return true, nil
}

func (p *Pipeline) verifyRecord(name string, f objwalk.File) bool {
	ot, data, err := p.Store.Get(f.Entry.Hash)
	if err != nil || ot != store.Blob {
		p.Log.WithField("ref", name).WithField("file", f.Path).Warn("pipeline: cannot read signed record")
		return false
	}
	g, err := tlv.DecodeGitObject(data)
	if err != nil {
		p.Log.WithField("ref", name).WithField("file", f.Path).WithError(err).Warn("pipeline: malformed signed record")
		return false
	}
	return p.Verifier.Verify(g)
}

func (p *Pipeline) verifyCert(name string, f objwalk.File) bool {
	ot, data, err := p.Store.Get(f.Entry.Hash)
	if err != nil || ot != store.Blob {
		p.Log.WithField("ref", name).WithField("file", f.Path).Warn("pipeline: cannot read certificate")
		return false
	}
	return p.Verifier.VerifyCert(data)
}

// checkUserBranch requires account.tlv to be an AccountConfig whose
// user_id equals the last path segment of the ref name.
func (p *Pipeline) checkUserBranch(name string, tr *gitobj.Tree) bool {
	e, ok := tr.ByName("account.tlv")
	if !ok {
		p.Log.WithField("ref", name).Warn("pipeline: user branch missing account.tlv")
		return false
	}
	ot, data, err := p.Store.Get(e.Hash)
	if err != nil || ot != store.Blob {
		return false
	}
	g, err := tlv.DecodeGitObject(data)
	if err != nil {
		return false
	}
	acct, ok := g.Variant.(*tlv.AccountConfig)
	if !ok {
		p.Log.WithField("ref", name).Warn("pipeline: account.tlv is not an AccountConfig")
		return false
	}
	expected := lastSegment(name)
	if acct.UserID != expected {
		p.Log.WithField("ref", name).Warnf("pipeline: account.tlv user_id %q != %q", acct.UserID, expected)
		return false
	}
	return true
}

// republish rebuilds a fresh SyncUpdate from the current ref table and
// hands it to the transport.
func (p *Pipeline) republish(ctx context.Context, respondTo []byte) {
	refs, err := p.Store.ListRefs()
	if err != nil {
		p.Log.WithError(err).Warn("pipeline: cannot list refs for republish")
		return
	}
	update := &tlv.SyncUpdate{}
	for name, head := range refs {
		update.Refs = append(update.Refs, tlv.RefInfo{RefName: name, RefHead: head})
	}
	p.Transport.PublishUpdate(ctx, update.Encode(), respondTo)
}

func sameTree(a, b *gitobj.Tree) bool {
	return githash.Sum("tree", a.Encode()) == githash.Sum("tree", b.Encode())
}

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

// Package push implements the push / ref-list request handler:
// incoming pushes race a background task against a wall-clock
// deadline, replying SUCCEEDED/FAILED/PENDING, and feed the sync
// pipeline (package pipeline) exactly the way a remote announcement
// would. It also hosts the server bootstrap operations
// (create-project, init-server, add-user).
package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"lab.nexedi.com/kirr/git-ndn-sync/fetch"
	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/pipeline"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// Reply tokens: the only three responses any request endpoint ever
// produces.
const (
	Succeeded = "SUCCEEDED"
	Failed    = "FAILED"
	Pending   = "PENDING"
)

// Handler serves one repository's push and ref-list endpoints.
type Handler struct {
	Store    store.Store
	Fetcher  *fetch.Fetcher
	Pipeline *pipeline.Pipeline

	// Signer and KeyLocatorName, if set, let the handler record a
	// signed HeadRef audit trail on refs/bmeta/<name> for every push
	// that lands, force or not. A nil Signer disables the audit trail;
	// the primary ref-update path is unaffected either way.
	Signer         tlv.Signer
	KeyLocatorName string

	Log *logrus.Entry
}

// New builds a Handler. log may be nil.
func New(st store.Store, fetcher *fetch.Fetcher, pl *pipeline.Pipeline, log *logrus.Entry) *Handler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Handler{Store: st, Fetcher: fetcher, Pipeline: pl, Log: log}
}

// Push serves an incoming PushRequest within lifetime/2 of the
// request: it launches processPush as a background task and races it
// against the deadline. If processPush finishes in time, the result is
// SUCCEEDED/FAILED; otherwise Push replies PENDING immediately and lets
// the task keep running out-of-band (the context handed to the
// background goroutine is detached from the deadline so the task is
// never cancelled mid-flight).
func (h *Handler) Push(ctx context.Context, req *tlv.PushRequest, lifetime time.Duration) string {
	bg := context.Background()
	result := make(chan bool, 1)
	go func() {
		ok, err := h.processPush(bg, req.RefInfo.RefName, githash.Hash(req.RefInfo.RefHead), req.Force)
		if err != nil {
			h.Log.WithError(err).WithField("ref", req.RefInfo.RefName).Warn("push: process_push failed")
			ok = false
		}
		result <- ok
	}()

	deadline := time.NewTimer(lifetime / 2)
	defer deadline.Stop()
	select {
	case ok := <-result:
		if ok {
			return Succeeded
		}
		return Failed
	case <-deadline.C:
		return Pending
	case <-ctx.Done():
		return Pending
	}
}

// processPush does the actual work: fetch the pushed commit's closure;
// on a force push set the ref directly; otherwise drive the ordinary
// linear-update policy through the pipeline. In both cases, once the ref
// is at refHead, record a signed HeadRef audit commit on
// refs/bmeta/<name>.
func (h *Handler) processPush(ctx context.Context, refName string, refHead githash.Hash, force bool) (bool, error) {
	if err := h.Fetcher.Fetch(ctx, store.Commit, refHead); err != nil {
		return false, fmt.Errorf("push: fetch %s: %w", refHead, err)
	}

	if force {
		if err := h.Store.SetRef(refName, refHead); err != nil {
			return false, err
		}
	} else {
		if err := h.linearUpdateDirect(refName, refHead); err != nil {
			return false, err
		}
		// The linear policy may have declined (not a descendant) or
		// only partially advanced (a signature failure mid-walk); the
		// push "succeeds" as far as process_push is concerned once the
		// ref matches what was requested.
		head, err := h.Store.GetRef(refName)
		if err != nil || head != refHead {
			return false, nil
		}
	}

	if h.Signer != nil {
		if err := h.recordBmeta(refName, refHead); err != nil {
			h.Log.WithError(err).WithField("ref", refName).Warn("push: bmeta audit record failed")
		}
	}
	return true, nil
}

// linearUpdateDirect re-enters the pipeline's linear policy for a
// single ref, the same path a remote announcement of {refName:refHead}
// would take.
func (h *Handler) linearUpdateDirect(refName string, refHead githash.Hash) error {
	h.Pipeline.ProcessUpdate(context.Background(), map[string]githash.Hash{refName: refHead}, nil)
	return nil
}

// bmetaName converts "refs/heads/<x>" to "refs/bmeta/<x>".
func bmetaName(refName string) string {
	parts := strings.Split(refName, "/")
	if len(parts) > 1 {
		parts[1] = "bmeta"
	}
	return strings.Join(parts, "/")
}

// recordBmeta appends a signed HeadRef record to refs/bmeta/<name>,
// parented on that branch's current head if any — an append-only audit
// trail of every head this peer has observed pushed to refName.
func (h *Handler) recordBmeta(refName string, refHead githash.Hash) error {
	headref := &tlv.HeadRef{Head: refHead}
	body, err := tlv.EncodeGitObject(headref, h.KeyLocatorName, h.Signer)
	if err != nil {
		return fmt.Errorf("push: encode HeadRef: %w", err)
	}
	blobHash, err := h.Store.Put(store.Blob, body)
	if err != nil {
		return err
	}
	tr := &gitobj.Tree{Entries: []gitobj.TreeEntry{{Mode: gitobj.ModeBlob, Name: "head.tlv", Hash: blobHash}}}
	treeHash, err := h.Store.Put(store.Tree, tr.Encode())
	if err != nil {
		return err
	}

	bmeta := bmetaName(refName)
	var parents []githash.Hash
	if prev, err := h.Store.GetRef(bmeta); err == nil {
		parents = []githash.Hash{prev}
	}
	c := &gitobj.Commit{Tree: treeHash, Parents: parents, Message: "head update\n"}
	commitHash, err := h.Store.Put(store.Commit, c.Encode())
	if err != nil {
		return err
	}
	return h.Store.SetRef(bmeta, commitHash)
}

// RefList enumerates every reference as "<hex-head> <ref-name>\n"
// lines, in unspecified order.
func RefList(st store.Store) (string, error) {
	refs, err := st.ListRefs()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for name, head := range refs {
		fmt.Fprintf(&b, "%s %s\n", head, name)
	}
	return b.String(), nil
}

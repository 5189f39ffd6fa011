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

// Package vsync implements the state-vector sync transport: each peer
// periodically re-announces its latest branch-head set to its sync
// prefix, and reacts to a neighbor's differing announcement by
// invoking the pipeline's OnUpdate callback — with loop suppression so
// a peer that republishes in response to a neighbor's update does not
// bounce indefinitely.
package vsync

import (
	"bytes"
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
)

// DefaultInterval is the default periodic re-announcement period.
const DefaultInterval = 10 * time.Second

// OnUpdate is invoked when a received sync interest carries application
// parameters that differ from the latest known content, with the raw
// announcement bytes and their sha256 digest.
type OnUpdate func(ctx context.Context, content []byte, digest [32]byte)

// Sync runs one peer's state-vector sync loop for a single repository.
type Sync struct {
	Face     ndn.Face
	Prefix   ndn.Name // e.g. "/git-ndn-sync/project/<repo>/sync"
	Interval time.Duration
	OnUpdate OnUpdate
	Log      *logrus.Entry

	mu       sync.Mutex
	latest   []byte
	bouncing map[[32]byte]struct{}
}

// New builds a Sync transport. interval <= 0 means DefaultInterval.
func New(face ndn.Face, prefix ndn.Name, interval time.Duration, onUpdate OnUpdate, log *logrus.Entry) *Sync {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sync{
		Face:     face,
		Prefix:   prefix,
		Interval: interval,
		OnUpdate: onUpdate,
		Log:      log,
		bouncing: map[[32]byte]struct{}{},
	}
}

// PublishUpdate records content as this peer's latest announcement.
// If content differs from the previous latest, the bounce-suppression
// set is cleared — a genuine local change always
// gets a chance to propagate even if it happens to match a digest this
// peer recently bounced. If respondTo is given and already in the
// bouncing set, the immediate re-announcement is suppressed (the
// periodic retransmit will still eventually carry it); otherwise
// respondTo is recorded and an immediate announcement is scheduled.
func (s *Sync) PublishUpdate(ctx context.Context, content []byte, respondTo []byte) {
	s.mu.Lock()
	changed := !bytes.Equal(content, s.latest)
	s.latest = content
	if changed {
		s.bouncing = map[[32]byte]struct{}{}
	}
	suppress := false
	if respondTo != nil {
		d := sha256.Sum256(respondTo)
		if _, already := s.bouncing[d]; already {
			suppress = true
		} else {
			s.bouncing[d] = struct{}{}
		}
	}
	s.mu.Unlock()

	if suppress {
		return
	}
	s.announce(ctx)
}

// Run drives the periodic re-announcement loop until ctx is cancelled.
// Announcements are fire-and-forget; timeouts and nacks are silently
// absorbed, the next tick being the retry.
func (s *Sync) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.announce(ctx)
		}
	}
}

func (s *Sync) announce(ctx context.Context) {
	s.mu.Lock()
	content := s.latest
	s.mu.Unlock()
	if content == nil {
		return
	}
	_, err := s.Face.Express(ctx, ndn.Interest{
		Name:                  s.Prefix,
		ApplicationParameters: content,
	})
	if err != nil {
		// Fire-and-forget: the next periodic tick (or the next
		// PublishUpdate) is the recovery path, not this error.
		s.Log.WithError(err).Debug("vsync: announce failed, will retry")
	}
}

// HandleInterest is the Responder callback registered under Prefix: an
// incoming sync interest whose application parameters differ from the
// latest known content triggers OnUpdate.
func (s *Sync) HandleInterest(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
	incoming := i.ApplicationParameters

	s.mu.Lock()
	differs := !bytes.Equal(incoming, s.latest)
	s.mu.Unlock()

	if differs && len(incoming) > 0 {
		digest := sha256.Sum256(incoming)
		if s.OnUpdate != nil {
			s.OnUpdate(ctx, incoming, digest)
		}
	}
	return ndn.Data{Name: i.Name, Content: nil}, nil
}

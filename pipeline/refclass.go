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

// Package pipeline implements the sync pipeline: the orchestrator that
// reacts to a remote branch-head announcement, drives the fetcher, runs
// the linear or merge update policy, verifies signatures, and
// re-publishes state once a batch of refs has advanced.
package pipeline

import "strings"

// Immutable reports whether name is an immutable ref class: a change
// snapshot (refs/changes/<pp>/<id>/<n>, n != "meta"), which is set once
// and never updated again.
func Immutable(name string) bool {
	return strings.HasPrefix(name, "refs/changes/") && lastSegment(name) != "meta"
}

// Code reports whether name is a "code" ref class (refs/heads/* or an
// immutable change snapshot): these never require signature
// verification.
func Code(name string) bool {
	return Immutable(name) || strings.HasPrefix(name, "refs/heads/")
}

// ChangeMeta reports whether name is a change-metadata branch
// (refs/changes/<pp>/<id>/meta): append-only, signed, mergeable.
func ChangeMeta(name string) bool {
	return strings.HasPrefix(name, "refs/changes/") && lastSegment(name) == "meta"
}

// Mergeable reports whether name accepts three-way merge updates:
// refs/users/*, the refs/bmeta/* push audit trail, or a change-meta
// branch. All three grow by adding files, never rewriting them, which
// is what the merger relies on.
func Mergeable(name string) bool {
	return strings.HasPrefix(name, "refs/users/") ||
		strings.HasPrefix(name, "refs/bmeta/") ||
		ChangeMeta(name)
}

func lastSegment(name string) string {
	i := strings.LastIndexByte(name, '/')
	if i < 0 {
		return name
	}
	return name[i+1:]
}

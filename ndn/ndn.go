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

// Package ndn declares the minimal named-data-networking collaborator
// surface the sync engine depends on. Everything here is an interface a
// real NDN forwarder/client library (e.g. go-ndn or a YaNFD-compatible
// client) is expected to implement, never a transport this module
// provides itself.
package ndn

import (
	"context"
	"fmt"
)

// Name is a '/'-separated NDN hierarchical name, e.g.
// "/git-ndn-sync/proj/objects/<hash>/seg=3".
type Name string

// Data is a received NDN Data packet.
type Data struct {
	Name Name
	// Content is the packet payload.
	Content []byte
	// FinalBlockID is the segment number carried in MetaInfo identifying
	// the last segment of a segmented object; 0 if this packet is not
	// part of a segmented sequence.
	FinalBlockID uint64
	// Segment is this packet's own segment number, parsed from Name.
	Segment uint64
	// FreshnessMillis is the freshness period the producer attached.
	FreshnessMillis uint64
}

// Interest is an outgoing NDN Interest.
type Interest struct {
	Name                  Name
	ApplicationParameters []byte
	LifetimeMillis        uint64
}

// Face is the single network operation the fetcher, the push handler
// and the state-vector transport all need: express an Interest and
// wait for the matching Data (or a failure).
type Face interface {
	Express(ctx context.Context, i Interest) (Data, error)
}

// Responder lets a component publish Data under a name prefix; how
// Interests actually reach fn (registered prefixes, FIB, strategy) is
// entirely the concrete Face implementation's concern.
type Responder interface {
	RegisterHandler(prefix Name, fn func(context.Context, Interest) (Data, error)) error
}

// FetchErrorKind classifies why a Face.Express call failed.
type FetchErrorKind int

const (
	_ FetchErrorKind = iota
	Timeout
	Nacked
	Cancelled
	Validation
)

func (k FetchErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case Nacked:
		return "nacked"
	case Cancelled:
		return "cancelled"
	case Validation:
		return "validation"
	}
	return "unknown"
}

// FetchError wraps a network-layer failure with enough context for the
// pipeline to log it and abort the in-flight per-ref update.
type FetchError struct {
	Kind   FetchErrorKind
	Name   Name
	Reason string
}

func (e *FetchError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("ndn: fetch %s: %s", e.Name, e.Kind)
	}
	return fmt.Sprintf("ndn: fetch %s: %s: %s", e.Name, e.Kind, e.Reason)
}

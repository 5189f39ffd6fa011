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

// Package gitobj implements the canonical wire encodings of git tree
// and commit objects — the format every writer must agree on bytewise,
// independent of which library actually persists them, since the
// content hash of a reconstructed object has to come out identical on
// every peer.
package gitobj

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
)

// ModeBlob and ModeTree are the two tree-entry modes this module ever
// produces: a regular file and a sub-tree.
const (
	ModeBlob = "100644"
	ModeTree = "40000"
)

// TreeEntry is one (mode, name, hash) triple inside a tree object.
type TreeEntry struct {
	Mode string
	Name string
	Hash githash.Hash
}

// IsBlob reports whether this entry refers to a regular file: mode
// beginning with '1' is a blob, anything else is a tree. The fetcher
// picks its recursion type by the same rule.
func (e TreeEntry) IsBlob() bool {
	return strings.HasPrefix(e.Mode, "1")
}

// Tree is a parsed tree object: an ordered list of entries.
type Tree struct {
	Entries []TreeEntry
}

// sortKey is the canonical ordering key for a tree entry:
// uppercase(name), ascending.
func sortKey(name string) string {
	return strings.ToUpper(name)
}

// ParseTree decodes the canonical git tree encoding: a concatenation of
// "<mode> <name>\x00<20-byte hash>" records.
func ParseTree(data []byte) (*Tree, error) {
	var t Tree
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("gitobj: malformed tree: no mode separator")
		}
		mode := string(data[:sp])
		rest := data[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, fmt.Errorf("gitobj: malformed tree: no name terminator")
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < githash.RawSize {
			return nil, fmt.Errorf("gitobj: malformed tree: truncated hash")
		}
		var h githash.Hash
		copy(h[:], rest[:githash.RawSize])

		t.Entries = append(t.Entries, TreeEntry{Mode: mode, Name: name, Hash: h})
		data = rest[githash.RawSize:]
	}
	return &t, nil
}

// Encode serializes a Tree in canonical order: entries are reordered
// by uppercase(name) ascending regardless of the order they were
// appended in, so Encode(Parse(x)) == x for any valid canonical x, and
// any two permutations of the same entry set encode identically.
func (t *Tree) Encode() []byte {
	entries := make([]TreeEntry, len(t.Entries))
	copy(entries, t.Entries)
	sort.SliceStable(entries, func(i, j int) bool {
		return sortKey(entries[i].Name) < sortKey(entries[j].Name)
	})

	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Mode)
		buf.WriteByte(' ')
		buf.WriteString(e.Name)
		buf.WriteByte(0)
		buf.Write(e.Hash[:])
	}
	return buf.Bytes()
}

// ByName returns the entry with the given name, or false if absent.
func (t *Tree) ByName(name string) (TreeEntry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return TreeEntry{}, false
}

// EntryKind classifies a tree-entry mode as "blob" or "tree", used by
// the merger to sanity-check that two entries claiming the same name
// agree on kind.
func EntryKind(mode string) string {
	if strings.HasPrefix(mode, "1") {
		return "blob"
	}
	return "tree"
}

// ValidMode reports whether mode parses as an octal git file mode.
func ValidMode(mode string) bool {
	_, err := strconv.ParseUint(mode, 8, 32)
	return err == nil
}

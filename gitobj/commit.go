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

package gitobj

import (
	"bytes"
	"fmt"
	"strings"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
)

// Commit is a parsed commit object header: a tree hash, zero or more
// parents, and a free-form message.
type Commit struct {
	Tree    githash.Hash
	Parents []githash.Hash
	Message string
}

// ParseCommit decodes the canonical git commit encoding: a textual
// header of "tree <hex>\n" then zero or more "parent <hex>\n" lines, a
// blank line, then the message.
func ParseCommit(data []byte) (*Commit, error) {
	text := string(data)
	headerEnd := strings.Index(text, "\n\n")
	if headerEnd < 0 {
		return nil, fmt.Errorf("gitobj: malformed commit: no header/message separator")
	}
	header, msg := text[:headerEnd], text[headerEnd+2:]

	var c Commit
	sawTree := false
	for _, line := range strings.Split(header, "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return nil, fmt.Errorf("gitobj: malformed commit header line %q", line)
		}
		switch fields[0] {
		case "tree":
			h, err := githash.Parse(fields[1])
			if err != nil {
				return nil, fmt.Errorf("gitobj: malformed commit tree hash: %w", err)
			}
			c.Tree = h
			sawTree = true
		case "parent":
			h, err := githash.Parse(fields[1])
			if err != nil {
				return nil, fmt.Errorf("gitobj: malformed commit parent hash: %w", err)
			}
			c.Parents = append(c.Parents, h)
		default:
			// Author/committer and other header lines are not
			// interpreted by this package; every consumer in this
			// module only ever needs tree+parents+message.
		}
	}
	if !sawTree {
		return nil, fmt.Errorf("gitobj: malformed commit: missing tree line")
	}
	c.Message = msg
	return &c, nil
}

// Encode serializes a Commit back into the canonical git commit
// encoding. Used by the merger to create merge commits.
func (c *Commit) Encode() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// HeaderLines returns just the "tree "/"parent " lines of a raw
// commit's header, stopping at the first blank line — the only part of
// a commit the fetcher's recursion needs, without requiring a full
// ParseCommit (which also validates the tree line is present).
func HeaderLines(data []byte) (treeHex string, parentHexes []string, err error) {
	text := string(data)
	headerEnd := strings.Index(text, "\n\n")
	if headerEnd < 0 {
		headerEnd = len(text)
	}
	for _, line := range strings.Split(text[:headerEnd], "\n") {
		if line == "" {
			break
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			continue
		}
		switch fields[0] {
		case "tree":
			treeHex = fields[1]
		case "parent":
			parentHexes = append(parentHexes, fields[1])
		}
	}
	return treeHex, parentHexes, nil
}

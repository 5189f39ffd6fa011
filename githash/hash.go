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

// Package githash provides the 20-byte SHA-1 object identifier used
// throughout git-ndn-sync to name blobs, trees and commits: a
// fixed-size array, cheap to pass by value, comparable, usable as a
// map key.
package githash

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// RawSize is the length in bytes of a git object hash.
const RawSize = 20

// Hash is a SHA-1 object identifier.
//
// NOTE zero value Hash{} is the null hash, used to mean "no object" /
// "ref does not exist yet".
type Hash [RawSize]byte

var _ fmt.Stringer = Hash{}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Parse decodes a 40-character hex string into a Hash.
func Parse(s string) (Hash, error) {
	var h Hash
	if hex.DecodedLen(len(s)) != RawSize {
		return Hash{}, fmt.Errorf("githash: %q: invalid length", s)
	}
	if _, err := hex.Decode(h[:], []byte(s)); err != nil {
		return Hash{}, fmt.Errorf("githash: %q: invalid: %w", s, err)
	}
	return h, nil
}

// Sum computes the Hash of a git object given its type and raw content,
// i.e. sha1("<type> <len>\x00<content>") per git's object encoding.
func Sum(objType string, content []byte) Hash {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", objType, len(content))
	h.Write(content)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// IsZero reports whether h is the null hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Less orders hashes bytewise; used to make merge tie-breaks and output
// ordering deterministic.
func (h Hash) Less(other Hash) bool {
	return bytes.Compare(h[:], other[:]) < 0
}

// fmt.Scanner, so Hash can be used directly with fmt.Sscanf.
func (h *Hash) Scan(s fmt.ScanState, ch rune) error {
	switch ch {
	case 's', 'v':
	default:
		return fmt.Errorf("githash.Hash.Scan: invalid verb %q", ch)
	}
	tok, err := s.Token(true, nil)
	if err != nil {
		return err
	}
	*h, err = Parse(string(tok))
	return err
}

// BySha sorts a []Hash slice bytewise.
type BySha []Hash

func (p BySha) Len() int           { return len(p) }
func (p BySha) Swap(i, j int)      { p[i], p[j] = p[j], p[i] }
func (p BySha) Less(i, j int) bool { return bytes.Compare(p[i][:], p[j][:]) < 0 }

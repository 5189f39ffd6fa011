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

// Package tlv implements the TLV (type-length-value) wire codec: the
// NDN-style variable-length number encoding, a generic nested-record
// reader/writer built on it, and the signed GitObject variant union
// carried inside tagged blobs.
package tlv

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrMalformed is returned for any parse failure: truncated input, or a
// length that does not match the available bytes. Unrecognised tags are
// skipped, not rejected; no tag is treated as critical.
var ErrMalformed = errors.New("tlv: malformed")

// ErrEmptyVariant is returned when decoding a GitObject with no variant
// tag set.
var ErrEmptyVariant = errors.New("tlv: no variant set")

// WriteVarNum encodes n using the NDN TLV variable-size number encoding:
// values below 253 take one byte, otherwise a marker byte (0xFD/0xFE/0xFF)
// followed by a fixed-size big-endian field (2/4/8 bytes).
func WriteVarNum(w io.Writer, n uint64) error {
	switch {
	case n < 253:
		_, err := w.Write([]byte{byte(n)})
		return err
	case n <= 0xFFFF:
		var buf [3]byte
		buf[0] = 0xFD
		binary.BigEndian.PutUint16(buf[1:], uint16(n))
		_, err := w.Write(buf[:])
		return err
	case n <= 0xFFFFFFFF:
		var buf [5]byte
		buf[0] = 0xFE
		binary.BigEndian.PutUint32(buf[1:], uint32(n))
		_, err := w.Write(buf[:])
		return err
	default:
		var buf [9]byte
		buf[0] = 0xFF
		binary.BigEndian.PutUint64(buf[1:], n)
		_, err := w.Write(buf[:])
		return err
	}
}

// VarNumLen returns the number of bytes WriteVarNum would emit for n.
func VarNumLen(n uint64) int {
	switch {
	case n < 253:
		return 1
	case n <= 0xFFFF:
		return 3
	case n <= 0xFFFFFFFF:
		return 5
	default:
		return 9
	}
}

// ReadVarNum decodes a value written by WriteVarNum.
func ReadVarNum(r io.ByteReader) (uint64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, ErrMalformed
	}
	switch {
	case b < 253:
		return uint64(b), nil
	case b == 0xFD:
		var buf [2]byte
		if err := readFull(r, buf[:]); err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint16(buf[:])), nil
	case b == 0xFE:
		var buf [4]byte
		if err := readFull(r, buf[:]); err != nil {
			return 0, err
		}
		return uint64(binary.BigEndian.Uint32(buf[:])), nil
	default: // 0xFF
		var buf [8]byte
		if err := readFull(r, buf[:]); err != nil {
			return 0, err
		}
		return binary.BigEndian.Uint64(buf[:]), nil
	}
}

func readFull(r io.ByteReader, buf []byte) error {
	for i := range buf {
		b, err := r.ReadByte()
		if err != nil {
			return ErrMalformed
		}
		buf[i] = b
	}
	return nil
}

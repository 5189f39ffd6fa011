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

package tlv

import "fmt"

// Variant is implemented by each of the nine signed record payloads.
// Marshal returns the variant's own tag and its encoded body, ready to
// be wrapped as one top-level TLV element.
type Variant interface {
	Marshal() (tag uint64, body []byte)
}

// Signer produces an ECDSA signature (FIPS-186-3 DER form) over
// sha256(signedRegion). Implemented by the cert package's signing
// identity; kept as an interface here so the codec has no dependency on
// crypto/x509 bookkeeping.
type Signer interface {
	Sign(signedRegion []byte) ([]byte, error)
}

// GitObject is a fully decoded signed record: its variant payload plus
// the signature envelope and the exact byte range that was signed.
type GitObject struct {
	Variant        Variant
	SignatureInfo  string
	SignatureValue []byte
	SignedRegion   []byte
}

// EncodeGitObject serializes variant, appends a signature_info element
// naming the signer's certificate, and — if signer is non-nil — signs
// the region covering the variant body and signature_info, appending
// the resulting signature_value. With signer == nil the record is left
// unsigned (used only for objects the pipeline itself never verifies,
// such as locally-staged drafts before a caller attaches a signature).
func EncodeGitObject(variant Variant, keyLocatorName string, signer Signer) ([]byte, error) {
	var b Builder
	tag, body := variant.Marshal()
	b.WriteBytes(tag, body)
	b.WriteString(TagSignatureInfo, keyLocatorName)

	signedRegion := make([]byte, b.Len())
	copy(signedRegion, b.Bytes())

	if signer == nil {
		return b.Bytes(), nil
	}
	sig, err := signer.Sign(signedRegion)
	if err != nil {
		return nil, fmt.Errorf("tlv: sign: %w", err)
	}
	b.WriteBytes(TagSignatureValue, sig)
	return b.Bytes(), nil
}

// DecodeGitObject parses a signed record, identifying exactly one
// variant tag and the trailing signature envelope. The returned
// SignedRegion is ready to be hashed and verified by the caller without
// re-serializing anything.
func DecodeGitObject(data []byte) (*GitObject, error) {
	var g GitObject
	var sawVariant bool
	signedEnd := -1

	p := NewParser(data)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagSignatureInfo:
			g.SignatureInfo = e.String()
			signedEnd = len(data) - len(p.data)
		case TagSignatureValue:
			g.SignatureValue = e.Value
		default:
			v, err := decodeVariant(e.Type, e.Value)
			if err != nil {
				return nil, err
			}
			if v == nil {
				continue // unknown tag, ignored
			}
			if sawVariant {
				return nil, fmt.Errorf("tlv: GitObject: more than one variant set: %w", ErrMalformed)
			}
			g.Variant = v
			sawVariant = true
		}
	}
	if !sawVariant {
		return nil, ErrEmptyVariant
	}
	if signedEnd < 0 {
		return nil, fmt.Errorf("tlv: GitObject: missing signature_info: %w", ErrMalformed)
	}
	g.SignedRegion = data[:signedEnd]
	return &g, nil
}

func decodeVariant(tag uint64, value []byte) (Variant, error) {
	switch tag {
	case TagProjectConfig:
		return decodeProjectConfig(value)
	case TagAccountConfig:
		return decodeAccountConfig(value)
	case TagKeyRevocation:
		return decodeKeyRevocation(value)
	case TagGroupConfig:
		return decodeGroupConfig(value)
	case TagHeadRef:
		return decodeHeadRef(value)
	case TagChangeMeta:
		return decodeChangeMetaV(value)
	case TagVote:
		return decodeVote(value)
	case TagComment:
		return decodeComment(value)
	case TagCatalog:
		return decodeCatalog(value)
	default:
		return nil, nil // not a variant tag, caller ignores
	}
}

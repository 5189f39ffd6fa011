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

package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// TrustAnchor is the out-of-band certificate loaded at startup whose
// (user, key) pair is axiomatically valid: it is what lets the
// verifier validate the very first certificates inside All-Users.git,
// which would otherwise need to verify themselves.
type TrustAnchor struct {
	UserID    string
	KeyID     string
	PublicKey *ecdsa.PublicKey
	// CertDER is the raw bytes LoadTrustAnchor parsed PublicKey from —
	// the same content init-server writes verbatim as the admin's own
	// refs/users/.../KEY/<id>.cert entry.
	CertDER []byte
}

// LoadTrustAnchor parses a trust-anchor certificate: certDER is the
// raw DER-encoded EC P-256 SubjectPublicKeyInfo carried as the
// certificate's content; name is the certificate's own NDN name,
// .../<user>/KEY/<key>/<issuer>/<version>, from which the user id and
// key id are taken at components -5 and -3.
func LoadTrustAnchor(certDER []byte, name Name) (*TrustAnchor, error) {
	userID, ok := name.Component(-5)
	if !ok {
		return nil, fmt.Errorf("cert: trust anchor name too short for user id: %v", name)
	}
	keyID, ok := name.Component(-3)
	if !ok {
		return nil, fmt.Errorf("cert: trust anchor name too short for key id: %v", name)
	}
	pub, err := parseECPublicKey(certDER)
	if err != nil {
		return nil, fmt.Errorf("cert: trust anchor: %w", err)
	}
	return &TrustAnchor{UserID: userID, KeyID: keyID, PublicKey: pub, CertDER: certDER}, nil
}

// LoadTrustAnchorFile reads a trust-anchor certificate from disk: path
// holds the DER-encoded public key, and path+".name" holds the
// certificate's own NDN name as a single line of text. Keeping the
// name in a sibling file avoids depending on a full NDN Data-packet
// codec just to recover the (user, key) pair at startup.
func LoadTrustAnchorFile(path string) (*TrustAnchor, error) {
	der, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cert: read trust anchor %s: %w", path, err)
	}
	nameBytes, err := os.ReadFile(path + ".name")
	if err != nil {
		return nil, fmt.Errorf("cert: read trust anchor name %s.name: %w", path, err)
	}
	name := ParseName(strings.TrimSpace(string(nameBytes)))
	return LoadTrustAnchor(der, name)
}

func parseECPublicKey(der []byte) (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("malformed certificate: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("malformed certificate: not an EC key")
	}
	if ecPub.Curve != elliptic.P256() {
		return nil, fmt.Errorf("malformed certificate: not P-256")
	}
	return ecPub, nil
}

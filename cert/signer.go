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
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"os"

	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// Signer signs new records on behalf of one local identity: a private
// key loaded from the key-store directory, identified on the wire by
// its certificate's full name.
type Signer struct {
	KeyLocatorName string
	key            *ecdsa.PrivateKey
}

var _ tlv.Signer = (*Signer)(nil)

// NewSigner binds an already-loaded private key to the certificate
// name that will identify it on the wire.
func NewSigner(key *ecdsa.PrivateKey, keyLocatorName string) *Signer {
	return &Signer{KeyLocatorName: keyLocatorName, key: key}
}

// LoadSigner reads a PKCS#8 DER-encoded EC P-256 private key from
// keyPath (the file a key-store directory entry points at) and binds it
// to keyLocatorName, the certificate name that will be embedded in
// every record's signature_info field.
func LoadSigner(keyPath, keyLocatorName string) (*Signer, error) {
	der, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("cert: load signer key %s: %w", keyPath, err)
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("cert: parse signer key %s: %w", keyPath, err)
	}
	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("cert: signer key %s is not an EC key", keyPath)
	}
	return &Signer{KeyLocatorName: keyLocatorName, key: ecKey}, nil
}

// Sign implements tlv.Signer: ECDSA over sha256(signedRegion), FIPS
// 186-3 ASN.1/DER form, the same encoding Verifier checks against.
func (s *Signer) Sign(signedRegion []byte) ([]byte, error) {
	digest := sha256.Sum256(signedRegion)
	sig, err := ecdsa.SignASN1(rand.Reader, s.key, digest[:])
	if err != nil {
		return nil, fmt.Errorf("cert: sign: %w", err)
	}
	return sig, nil
}

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

// Package cert implements the trust store and verifier: resolving a
// signer's certificate from the self-hosted All-Users.git repository
// rooted at a trust anchor, and checking ECDSA-P256 / SHA-256
// signatures over a record's signed region.
package cert

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"fmt"

	"github.com/sirupsen/logrus"

	"lab.nexedi.com/kirr/git-ndn-sync/objwalk"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// Verifier is a pure function of the current state of All-Users.git.
// Verification results are never cached across calls — the underlying
// certificate set can grow between calls, and a key unknown one moment
// may resolve the next.
type Verifier struct {
	Users  store.Store
	Anchor *TrustAnchor
	Log    *logrus.Entry
}

// NewVerifier builds a Verifier over the All-Users.git store, trusting
// anchor as the axiomatically-valid signer.
func NewVerifier(users store.Store, anchor *TrustAnchor, log *logrus.Entry) *Verifier {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Verifier{Users: users, Anchor: anchor, Log: log}
}

// Verify checks g's signature. It never returns an error for a
// resolution failure — no signature info, missing signature value, a key
// locator missing its user or key component, and signature mismatch are
// each logged at their own site; unknown user, unknown key and malformed
// certificate share the key-resolution log site, with the underlying
// error attached. All fold into a false return.
func (v *Verifier) Verify(g *tlv.GitObject) bool {
	if g.SignatureInfo == "" {
		v.Log.Warn("verify: no signature info")
		return false
	}
	if len(g.SignatureValue) == 0 {
		v.Log.Warn("verify: missing signature value")
		return false
	}

	locator := ParseName(g.SignatureInfo)
	userID, ok := locator.Component(-3)
	if !ok {
		v.Log.Warnf("verify: key locator %q missing user component", g.SignatureInfo)
		return false
	}
	keyID, ok := locator.Component(-1)
	if !ok {
		v.Log.Warnf("verify: key locator %q missing key component", g.SignatureInfo)
		return false
	}

	pub, err := v.resolveKey(userID, keyID)
	if err != nil {
		v.Log.WithError(err).Warnf("verify: resolve (%s,%s)", userID, keyID)
		return false
	}

	digest := sha256.Sum256(g.SignedRegion)
	if !ecdsa.VerifyASN1(pub, digest[:], g.SignatureValue) {
		v.Log.Warnf("verify: signature mismatch for (%s,%s)", userID, keyID)
		return false
	}
	return true
}

// VerifyCert checks that data is a well-formed certificate body — a
// DER-encoded EC P-256 public key, the content every KEY/<id>.cert
// entry carries. Malformed data is logged and folded into false the
// same way record-signature failures are.
func (v *Verifier) VerifyCert(data []byte) bool {
	if _, err := parseECPublicKey(data); err != nil {
		v.Log.WithError(err).Warn("verify: malformed certificate")
		return false
	}
	return true
}

func (v *Verifier) resolveKey(userID, keyID string) (*ecdsa.PublicKey, error) {
	if v.Anchor != nil && userID == v.Anchor.UserID && keyID == v.Anchor.KeyID {
		return v.Anchor.PublicKey, nil
	}
	if len(userID) < 2 {
		return nil, fmt.Errorf("cert: unknown user %q", userID)
	}
	pp := userID[:2]
	ref := "refs/users/" + pp + "/" + userID
	path := "KEY/" + keyID + ".cert"

	data, err := objwalk.ReadFileAtRef(v.Users, ref, path)
	if err != nil {
		return nil, fmt.Errorf("cert: unknown user or key: %w", err)
	}
	pub, err := parseECPublicKey(data)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

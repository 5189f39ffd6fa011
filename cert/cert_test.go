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
	"crypto/rand"
	"crypto/x509"
	"testing"

	"lab.nexedi.com/kirr/git-ndn-sync/store/storetest"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

func TestNameComponent(t *testing.T) {
	n := ParseName("/a/b/c/d/e")
	var tests = []struct {
		i    int
		want string
		ok   bool
	}{
		{0, "a", true},
		{-1, "e", true},
		{-3, "c", true},
		{-5, "a", true},
		{-6, "", false},
		{5, "", false},
	}
	for _, tt := range tests {
		got, ok := n.Component(tt.i)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Component(%d) = %q,%v want %q,%v", tt.i, got, ok, tt.want, tt.ok)
		}
	}
}

func genKey(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	return key, der
}

func TestVerifyTrustAnchor(t *testing.T) {
	key, der := genKey(t)
	anchor, err := LoadTrustAnchor(der, ParseName("/All-Users/admin/KEY/k1/self/v1"))
	if err != nil {
		t.Fatalf("LoadTrustAnchor: %v", err)
	}
	if anchor.UserID != "admin" || anchor.KeyID != "k1" {
		t.Fatalf("LoadTrustAnchor resolved (%s,%s)", anchor.UserID, anchor.KeyID)
	}

	v := NewVerifier(storetest.New(), anchor, nil)
	signer := &Signer{KeyLocatorName: "/refs/users/ad/admin/KEY/k1", key: key}

	acc := &tlv.AccountConfig{UserID: "admin", FullName: "Admin", Email: "admin@example.com"}
	data, err := tlv.EncodeGitObject(acc, signer.KeyLocatorName, signer)
	if err != nil {
		t.Fatalf("EncodeGitObject: %v", err)
	}
	g, err := tlv.DecodeGitObject(data)
	if err != nil {
		t.Fatalf("DecodeGitObject: %v", err)
	}
	if !v.Verify(g) {
		t.Errorf("Verify() = false for a validly signed record")
	}

	tampered := append([]byte(nil), data...)
	tampered[len(tampered)-1] ^= 0x01
	g2, err := tlv.DecodeGitObject(tampered)
	if err == nil && v.Verify(g2) {
		t.Errorf("Verify() = true after tampering with the signature bytes")
	}
}

func TestVerifyUnknownUser(t *testing.T) {
	_, anchorDER := genKey(t)
	anchor, _ := LoadTrustAnchor(anchorDER, ParseName("/All-Users/admin/KEY/k1/self/v1"))
	v := NewVerifier(storetest.New(), anchor, nil)

	otherKey, _ := genKey(t)
	signer := &Signer{KeyLocatorName: "/refs/users/al/alice/KEY/k9", key: otherKey}
	acc := &tlv.AccountConfig{UserID: "alice"}
	data, _ := tlv.EncodeGitObject(acc, signer.KeyLocatorName, signer)
	g, err := tlv.DecodeGitObject(data)
	if err != nil {
		t.Fatalf("DecodeGitObject: %v", err)
	}
	if v.Verify(g) {
		t.Errorf("Verify() = true for a user with no certificate in the store")
	}
}

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

package push

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"lab.nexedi.com/kirr/git-ndn-sync/cert"
	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/gitobj"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// Bootstrap repository names. All-Projects.git carries the server-wide
// configuration; All-Users.git carries every user's profile and
// certificates.
const (
	AllProjectsRepo = "All-Projects.git"
	AllUsersRepo    = "All-Users.git"
)

// Repos is the daemon's live set of open per-project stores, rooted at
// one base directory. It backs the create-project, init-server and
// add-user endpoints.
type Repos struct {
	BaseDir string

	mu    sync.Mutex
	repos map[string]store.Store
}

// OpenRepos opens every existing bare repository directly under
// baseDir as a Store.
func OpenRepos(baseDir string) (*Repos, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("push: open repos %s: %w", baseDir, err)
	}
	r := &Repos{BaseDir: baseDir, repos: map[string]store.Store{}}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		st, err := store.Open(filepath.Join(baseDir, e.Name()))
		if err != nil {
			return nil, err
		}
		r.repos[e.Name()] = st
	}
	return r, nil
}

// Get returns the Store for an already-open repository.
func (r *Repos) Get(name string) (store.Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.repos[name]
	return st, ok
}

// Names returns every currently open repository name.
func (r *Repos) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.repos))
	for name := range r.repos {
		out = append(out, name)
	}
	return out
}

// CreateProject creates a fresh bare repository named repoName under
// BaseDir. Returns false,nil — not an error — if a repository by that
// name already exists, matching SUCCEEDED/FAILED's binary outcome
// contract.
func (r *Repos) CreateProject(repoName string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.repos[repoName]; exists {
		return false, nil
	}
	st, err := store.Create(filepath.Join(r.BaseDir, repoName))
	if err != nil {
		return false, err
	}
	r.repos[repoName] = st
	return true, nil
}

// InitServer bootstraps All-Projects.git and All-Users.git with an
// initial ProjectConfig record and an admin account derived from the
// trust anchor. It idempotently refuses — returning false,nil — once
// either bootstrap repo already has any ref.
func (r *Repos) InitServer(anchor *cert.TrustAnchor, signer tlv.Signer, keyLocatorName string) (bool, error) {
	projects, err := r.ensureRepo(AllProjectsRepo)
	if err != nil {
		return false, err
	}
	users, err := r.ensureRepo(AllUsersRepo)
	if err != nil {
		return false, err
	}

	if hasAnyRef(projects) || hasAnyRef(users) {
		return false, nil
	}

	projectConfig := &tlv.ProjectConfig{ProjectID: AllProjectsRepo, SyncInterval: 10}
	if err := writeConfigCommit(projects, "refs/meta/config", "config.tlv", projectConfig, keyLocatorName, signer); err != nil {
		return false, err
	}

	account := &tlv.AccountConfig{UserID: anchor.UserID}
	if err := writeAdminAccount(users, anchor, account, keyLocatorName, signer); err != nil {
		return false, err
	}
	return true, nil
}

// AddUser creates a new user branch with account.tlv + the submitted
// certificate. Rejects a user_id that already owns a
// refs/users/<pp>/<user> ref, and a request with no certificate
// attached.
//
// AddUserReq carries no explicit user_id field; it is derived from the
// local part of the request's email address, lowercased.
func (r *Repos) AddUser(signer tlv.Signer, keyLocatorName string, req *tlv.AddUserReq) (bool, error) {
	if len(req.Cert) == 0 {
		return false, nil
	}
	userID, err := userIDFromEmail(req.Email)
	if err != nil {
		return false, err
	}
	users, ok := r.Get(AllUsersRepo)
	if !ok {
		return false, fmt.Errorf("push: add-user: %s not initialized", AllUsersRepo)
	}
	ref := "refs/users/" + userID[:2] + "/" + userID
	if _, err := users.GetRef(ref); err == nil {
		return false, nil // already exists
	}

	keyID, err := certKeyID(req.Cert)
	if err != nil {
		return false, err
	}

	account := &tlv.AccountConfig{UserID: userID, FullName: req.FullName, Email: req.Email}
	body, err := tlv.EncodeGitObject(account, keyLocatorName, signer)
	if err != nil {
		return false, err
	}
	acctHash, err := users.Put(store.Blob, body)
	if err != nil {
		return false, err
	}
	certHash, err := users.Put(store.Blob, req.Cert)
	if err != nil {
		return false, err
	}

	tr := &gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "account.tlv", Hash: acctHash},
		{Mode: gitobj.ModeTree, Name: "KEY", Hash: mustPutKeyDir(users, keyID, certHash)},
	}}
	treeHash, err := users.Put(store.Tree, tr.Encode())
	if err != nil {
		return false, err
	}
	commitHash, err := users.Put(store.Commit, (&gitobj.Commit{Tree: treeHash, Message: "add user\n"}).Encode())
	if err != nil {
		return false, err
	}
	if err := users.SetRef(ref, commitHash); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repos) ensureRepo(name string) (store.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.repos[name]; ok {
		return st, nil
	}
	st, err := store.Create(filepath.Join(r.BaseDir, name))
	if err != nil {
		return nil, err
	}
	r.repos[name] = st
	return st, nil
}

// certKeyID derives the key id a new certificate is filed under
// (KEY/<key id>.cert): the hex-encoded sha256 prefix of the
// certificate's DER bytes — stable, collision-resistant, and requiring
// no extra metadata on the wire (AddUserReq carries only the
// certificate itself).
func certKeyID(certDER []byte) (string, error) {
	if len(certDER) == 0 {
		return "", fmt.Errorf("push: empty certificate")
	}
	sum := sha256.Sum256(certDER)
	return hex.EncodeToString(sum[:8]), nil
}

func userIDFromEmail(email string) (string, error) {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "", fmt.Errorf("push: add-user: malformed email %q", email)
	}
	return strings.ToLower(email[:at]), nil
}

func hasAnyRef(st store.Store) bool {
	refs, err := st.ListRefs()
	return err == nil && len(refs) > 0
}

func writeConfigCommit(st store.Store, ref, fileName string, v tlv.Variant, keyLocatorName string, signer tlv.Signer) error {
	body, err := tlv.EncodeGitObject(v, keyLocatorName, signer)
	if err != nil {
		return err
	}
	blobHash, err := st.Put(store.Blob, body)
	if err != nil {
		return err
	}
	tr := &gitobj.Tree{Entries: []gitobj.TreeEntry{{Mode: gitobj.ModeBlob, Name: fileName, Hash: blobHash}}}
	treeHash, err := st.Put(store.Tree, tr.Encode())
	if err != nil {
		return err
	}
	commitHash, err := st.Put(store.Commit, (&gitobj.Commit{Tree: treeHash, Message: "bootstrap\n"}).Encode())
	if err != nil {
		return err
	}
	return st.SetRef(ref, commitHash)
}

func writeAdminAccount(users store.Store, anchor *cert.TrustAnchor, account *tlv.AccountConfig, keyLocatorName string, signer tlv.Signer) error {
	body, err := tlv.EncodeGitObject(account, keyLocatorName, signer)
	if err != nil {
		return err
	}
	acctHash, err := users.Put(store.Blob, body)
	if err != nil {
		return err
	}
	certHash, err := users.Put(store.Blob, anchor.CertDER)
	if err != nil {
		return err
	}
	keyDirHash := mustPutKeyDir(users, anchor.KeyID, certHash)
	tr := &gitobj.Tree{Entries: []gitobj.TreeEntry{
		{Mode: gitobj.ModeBlob, Name: "account.tlv", Hash: acctHash},
		{Mode: gitobj.ModeTree, Name: "KEY", Hash: keyDirHash},
	}}
	treeHash, err := users.Put(store.Tree, tr.Encode())
	if err != nil {
		return err
	}
	commitHash, err := users.Put(store.Commit, (&gitobj.Commit{Tree: treeHash, Message: "bootstrap admin\n"}).Encode())
	if err != nil {
		return err
	}
	if len(anchor.UserID) < 2 {
		return fmt.Errorf("push: trust anchor user id %q too short", anchor.UserID)
	}
	ref := "refs/users/" + anchor.UserID[:2] + "/" + anchor.UserID
	return users.SetRef(ref, commitHash)
}

func mustPutKeyDir(st store.Store, keyID string, certHash githash.Hash) githash.Hash {
	tr := &gitobj.Tree{Entries: []gitobj.TreeEntry{{Mode: gitobj.ModeBlob, Name: keyID + ".cert", Hash: certHash}}}
	h, err := st.Put(store.Tree, tr.Encode())
	if err != nil {
		// A tree put fails only when the object database itself is
		// failing, which is fatal for the daemon anyway.
		panic(fmt.Sprintf("push: put KEY dir: %v", err))
	}
	return h
}

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

package main

import (
	"context"
	"fmt"
	"time"

	"lab.nexedi.com/kirr/git-ndn-sync/cert"
	"lab.nexedi.com/kirr/git-ndn-sync/fetch"
	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
	"lab.nexedi.com/kirr/git-ndn-sync/push"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
	"lab.nexedi.com/kirr/git-ndn-sync/vsync"
)

// pushLifetime bounds how long Handler.Push waits in the foreground
// for the update to land before replying PENDING.
const pushLifetime = 4 * time.Second

// registerRepoHandlers binds the per-project NDN prefixes to their
// handling package: <prefix>/project/<name>/sync (vsync),
// <prefix>/project/<name>/objects (fetch's server half),
// <prefix>/project/<name>/push and <prefix>/project/<name>/ref-list
// (push).
func registerRepoHandlers(r ndn.Responder, prefix, name string, st store.Store, sv *vsync.Sync, osrv *fetch.Server, h *push.Handler) error {
	base := ndn.Name(prefix + "/project/" + name)

	if err := r.RegisterHandler(base+"/sync", sv.HandleInterest); err != nil {
		return fmt.Errorf("register %s/sync: %w", base, err)
	}

	if err := osrv.Register(r); err != nil {
		return fmt.Errorf("register %s/objects: %w", base, err)
	}

	if err := r.RegisterHandler(base+"/push", func(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
		req, err := tlv.DecodePushRequest(i.ApplicationParameters)
		if err != nil {
			return ndn.Data{}, fmt.Errorf("push: malformed request: %w", err)
		}
		status := h.Push(ctx, req, pushLifetime)
		return ndn.Data{Name: i.Name, Content: []byte(status)}, nil
	}); err != nil {
		return fmt.Errorf("register %s/push: %w", base, err)
	}

	if err := r.RegisterHandler(base+"/ref-list", func(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
		listing, err := push.RefList(st)
		if err != nil {
			return ndn.Data{}, err
		}
		return ndn.Data{Name: i.Name, Content: []byte(listing)}, nil
	}); err != nil {
		return fmt.Errorf("register %s/ref-list: %w", base, err)
	}

	return nil
}

// registerBootstrapHandlers binds the server-wide admin endpoints:
// create-project, init-server and add-user.
func registerBootstrapHandlers(r ndn.Responder, prefix string, repos *push.Repos, anchor *cert.TrustAnchor, signer *cert.Signer, keyLocatorName string) error {
	admin := ndn.Name(prefix + "/admin")

	if err := r.RegisterHandler(admin+"/create-project", func(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
		repoName := string(i.ApplicationParameters)
		created, err := repos.CreateProject(repoName)
		return ackData(i, created, err)
	}); err != nil {
		return fmt.Errorf("register %s/create-project: %w", admin, err)
	}

	if err := r.RegisterHandler(admin+"/init-server", func(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
		created, err := repos.InitServer(anchor, signer, keyLocatorName)
		return ackData(i, created, err)
	}); err != nil {
		return fmt.Errorf("register %s/init-server: %w", admin, err)
	}

	if err := r.RegisterHandler(admin+"/add-user", func(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
		req, err := tlv.DecodeAddUserReq(i.ApplicationParameters)
		if err != nil {
			return ndn.Data{}, fmt.Errorf("add-user: malformed request: %w", err)
		}
		created, err := repos.AddUser(signer, keyLocatorName, req)
		return ackData(i, created, err)
	}); err != nil {
		return fmt.Errorf("register %s/add-user: %w", admin, err)
	}

	return nil
}

func ackData(i ndn.Interest, ok bool, err error) (ndn.Data, error) {
	if err != nil {
		return ndn.Data{}, err
	}
	content := push.Succeeded
	if !ok {
		content = push.Failed
	}
	return ndn.Data{Name: i.Name, Content: []byte(content)}, nil
}

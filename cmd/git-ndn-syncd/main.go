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

/*
git-ndn-syncd is the daemon that runs the sync pipeline, object
fetcher and server, state-vector sync transport and push handler for
every repository under its base directory.

The binary wires packages store, tlv, cert, fetch, merge, vsync,
pipeline and push together; it does not embed an NDN forwarder client
itself (see face.go).
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lab.nexedi.com/kirr/git-ndn-sync/cert"
	"lab.nexedi.com/kirr/git-ndn-sync/fetch"
	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
	"lab.nexedi.com/kirr/git-ndn-sync/pipeline"
	"lab.nexedi.com/kirr/git-ndn-sync/push"
	"lab.nexedi.com/kirr/git-ndn-sync/vsync"
)

var verbose, quiet countFlag

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: git-ndn-syncd [-v] [-q]\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Var(&verbose, "v", "verbosity level")
	flag.Var(&quiet, "q", "decrease verbosity")
	flag.Parse()

	logrus.SetLevel(levelFor(int(verbose) - int(quiet)))
	log := logrus.NewEntry(logrus.StandardLogger())

	if err := run(log); err != nil {
		log.WithError(err).Fatal("git-ndn-syncd: fatal")
	}
}

func levelFor(v int) logrus.Level {
	switch {
	case v <= -1:
		return logrus.ErrorLevel
	case v == 0:
		return logrus.InfoLevel
	case v == 1:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// repoSet wires the packages making up one repository's sync stack;
// one exists per repository open in push.Repos at startup.
type repoSet struct {
	name     string
	fetcher  *fetch.Fetcher
	objsrv   *fetch.Server
	pipeline *pipeline.Pipeline
	vsync    *vsync.Sync
	handler  *push.Handler
}

func run(log *logrus.Entry) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	signer, err := cert.LoadSigner(filepath.Join(cfg.KeyStoreDir, cfg.SigningKeyName), cfg.SigningKeyName)
	if err != nil {
		return err
	}
	anchor, err := cert.LoadTrustAnchorFile(cfg.TrustAnchorPath)
	if err != nil {
		return err
	}

	repos, err := push.OpenRepos(cfg.BaseDir)
	if err != nil {
		return err
	}
	usersStore, ok := repos.Get(push.AllUsersRepo)
	if !ok {
		return fmt.Errorf("git-ndn-syncd: %s not found under %s (run init-server first)", push.AllUsersRepo, cfg.BaseDir)
	}
	verifier := cert.NewVerifier(usersStore, anchor, log)

	face, responder, err := dialFace(cfg)
	if err != nil {
		return err
	}

	var repoSets []*repoSet
	for _, name := range repos.Names() {
		st, _ := repos.Get(name)
		rlog := log.WithField("repo", name)

		objectsPrefix := ndn.Name(cfg.Prefix + "/project/" + name + "/objects")
		fetcher := fetch.New(st, face, objectsPrefix, rlog)
		objsrv := fetch.NewServer(st, objectsPrefix, rlog)

		syncPrefix := ndn.Name(cfg.Prefix + "/project/" + name + "/sync")
		var sv *vsync.Sync
		pl := pipeline.New(st, fetcher, verifier, transportFunc(func(ctx context.Context, content, respondTo []byte) {
			sv.PublishUpdate(ctx, content, respondTo)
		}), rlog)
		sv = vsync.New(face, syncPrefix, vsync.DefaultInterval, pl.OnUpdate, rlog)

		handler := push.New(st, fetcher, pl, rlog)
		handler.Signer = signer
		handler.KeyLocatorName = cfg.SigningKeyName

		if err := registerRepoHandlers(responder, cfg.Prefix, name, st, sv, objsrv, handler); err != nil {
			return err
		}
		repoSets = append(repoSets, &repoSet{name: name, fetcher: fetcher, objsrv: objsrv, pipeline: pl, vsync: sv, handler: handler})
	}

	if err := registerBootstrapHandlers(responder, cfg.Prefix, repos, anchor, signer, cfg.SigningKeyName); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var g errgroup.Group
	for _, rs := range repoSets {
		rs := rs
		g.Go(func() error {
			rs.vsync.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}

// transportFunc adapts a plain function to pipeline.Transport.
type transportFunc func(ctx context.Context, content, respondTo []byte)

func (f transportFunc) PublishUpdate(ctx context.Context, content, respondTo []byte) {
	f(ctx, content, respondTo)
}

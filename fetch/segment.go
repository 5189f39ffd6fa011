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

package fetch

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"lab.nexedi.com/kirr/git-ndn-sync/githash"
	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
	"lab.nexedi.com/kirr/git-ndn-sync/store"
	"lab.nexedi.com/kirr/git-ndn-sync/tlv"
)

// segName builds the Interest name for one segment of one object:
// <objects-prefix>/<hash>/seg=<n>.
func (f *Fetcher) segName(h githash.Hash, seg uint64) ndn.Name {
	return f.ObjectsPrefix + ndn.Name("/"+h.String()+"/seg="+strconv.FormatUint(seg, 10))
}

// fetchSegmented expresses segment Interests for h starting at seg=0,
// reassembling Data contents in order until the final-block indicator
// terminates the sequence. Each segment's content is a SyncObject
// fragment; the concatenation is decoded by the caller in one pass.
func (f *Fetcher) fetchSegmented(ctx context.Context, h githash.Hash) ([]byte, error) {
	var payload []byte
	for seg := uint64(0); ; seg++ {
		d, err := f.Face.Express(ctx, ndn.Interest{Name: f.segName(h, seg)})
		if err != nil {
			return nil, err
		}
		payload = append(payload, d.Content...)
		if d.FinalBlockID <= seg {
			break
		}
	}
	return payload, nil
}

// Server answers segment Interests for objects held in a local store:
// the producer half of the segment-fetch protocol the Fetcher consumes.
// Each segment carries a SyncObject fragment repeating the object's
// type tag, so a consumer that reassembles all fragments can decode the
// whole as one SyncObject.
type Server struct {
	Store         store.Store
	ObjectsPrefix ndn.Name
	Log           *logrus.Entry
}

// NewServer builds a Server. log may be nil.
func NewServer(st store.Store, objectsPrefix ndn.Name, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{Store: st, ObjectsPrefix: objectsPrefix, Log: log}
}

// Register binds the server under its objects prefix.
func (s *Server) Register(r ndn.Responder) error {
	return r.RegisterHandler(s.ObjectsPrefix, s.HandleInterest)
}

// HandleInterest serves one segment of one object. The Interest name is
// <objects-prefix>/<hash>[/seg=<n>]; a missing segment component means
// segment 0.
func (s *Server) HandleInterest(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
	h, seg, err := s.parseName(i.Name)
	if err != nil {
		return ndn.Data{}, err
	}

	t, data, err := s.Store.Get(h)
	if err != nil {
		s.Log.WithField("hash", h).Warn("fetch: requested object not in store")
		return ndn.Data{}, err
	}

	start := seg * SegmentSize
	end := start + SegmentSize
	if start > uint64(len(data)) {
		start = uint64(len(data))
	}
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	frag := &tlv.SyncObject{ObjType: t.String(), ObjData: data[start:end]}

	finalBlock := (uint64(len(data)) + SegmentSize - 1) / SegmentSize
	return ndn.Data{
		Name:            i.Name,
		Content:         frag.Encode(),
		Segment:         seg,
		FinalBlockID:    finalBlock,
		FreshnessMillis: FreshnessPeriodMillis,
	}, nil
}

func (s *Server) parseName(name ndn.Name) (githash.Hash, uint64, error) {
	rest := strings.TrimPrefix(string(name), string(s.ObjectsPrefix))
	rest = strings.TrimPrefix(rest, "/")
	hashPart := rest
	var seg uint64
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hashPart = rest[:i]
		segPart := strings.TrimPrefix(rest[i+1:], "seg=")
		n, err := strconv.ParseUint(segPart, 10, 64)
		if err != nil {
			return githash.Hash{}, 0, fmt.Errorf("fetch: bad segment component in %s", name)
		}
		seg = n
	}
	h, err := githash.Parse(hashPart)
	if err != nil {
		return githash.Hash{}, 0, fmt.Errorf("fetch: bad object name %s: %w", name, err)
	}
	return h, seg, nil
}

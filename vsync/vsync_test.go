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

package vsync

import (
	"bytes"
	"context"
	"testing"

	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
)

// recordFace captures every expressed Interest.
type recordFace struct {
	sent [][]byte
}

func (f *recordFace) Express(ctx context.Context, i ndn.Interest) (ndn.Data, error) {
	f.sent = append(f.sent, i.ApplicationParameters)
	return ndn.Data{Name: i.Name}, nil
}

func TestPublishAnnounces(t *testing.T) {
	face := &recordFace{}
	s := New(face, "/gns/project/p/sync", 0, nil, nil)

	s.PublishUpdate(context.Background(), []byte("state-1"), nil)
	if len(face.sent) != 1 || !bytes.Equal(face.sent[0], []byte("state-1")) {
		t.Fatalf("sent = %q, want one announcement of state-1", face.sent)
	}
}

func TestBounceSuppression(t *testing.T) {
	face := &recordFace{}
	s := New(face, "/gns/project/p/sync", 0, nil, nil)

	incoming := []byte("their-state")
	s.PublishUpdate(context.Background(), []byte("my-state"), incoming)
	if len(face.sent) != 1 {
		t.Fatalf("first response published %d announcements, want 1", len(face.sent))
	}
	// The same incoming update arriving again must not re-announce.
	s.PublishUpdate(context.Background(), []byte("my-state"), incoming)
	if len(face.sent) != 1 {
		t.Errorf("bounced update re-announced: %d sends", len(face.sent))
	}
}

func TestContentChangeClearsBounces(t *testing.T) {
	face := &recordFace{}
	s := New(face, "/gns/project/p/sync", 0, nil, nil)

	incoming := []byte("their-state")
	s.PublishUpdate(context.Background(), []byte("state-1"), incoming)
	// A genuine local change clears the suppression set, so responding
	// to the same neighbor update announces again.
	s.PublishUpdate(context.Background(), []byte("state-2"), incoming)
	if len(face.sent) != 2 {
		t.Errorf("sent %d announcements, want 2", len(face.sent))
	}
}

func TestHandleInterestTriggersOnUpdate(t *testing.T) {
	face := &recordFace{}
	var got [][]byte
	s := New(face, "/gns/project/p/sync", 0, func(ctx context.Context, content []byte, digest [32]byte) {
		got = append(got, content)
	}, nil)
	s.PublishUpdate(context.Background(), []byte("mine"), nil)

	_, err := s.HandleInterest(context.Background(), ndn.Interest{
		Name: "/gns/project/p/sync", ApplicationParameters: []byte("theirs"),
	})
	if err != nil {
		t.Fatalf("HandleInterest: %v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[0], []byte("theirs")) {
		t.Fatalf("OnUpdate got %q, want one call with theirs", got)
	}

	// A sync interest carrying our own latest state is not an update.
	_, err = s.HandleInterest(context.Background(), ndn.Interest{
		Name: "/gns/project/p/sync", ApplicationParameters: []byte("mine"),
	})
	if err != nil {
		t.Fatalf("HandleInterest: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("identical state triggered OnUpdate")
	}
}

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

// --- AccountConfig ---------------------------------------------------

type AccountConfig struct {
	UserID   string
	FullName string
	Email    string
}

func (a *AccountConfig) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteString(TagUserID, a.UserID)
	b.WriteString(TagAccountFullName, a.FullName)
	b.WriteString(TagAccountEmail, a.Email)
	return TagAccountConfig, b.Bytes()
}

func decodeAccountConfig(value []byte) (*AccountConfig, error) {
	var a AccountConfig
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &a, err
		}
		switch e.Type {
		case TagUserID:
			a.UserID = e.String()
		case TagAccountFullName:
			a.FullName = e.String()
		case TagAccountEmail:
			a.Email = e.String()
		}
	}
	return &a, nil
}

// --- KeyRevocation -----------------------------------------------------

type KeyRevocation struct {
	KeyID      string
	RevokeTime uint64
}

func (k *KeyRevocation) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteString(TagKeyID, k.KeyID)
	b.WriteUint(TagRevokeTime, k.RevokeTime)
	return TagKeyRevocation, b.Bytes()
}

func decodeKeyRevocation(value []byte) (*KeyRevocation, error) {
	var k KeyRevocation
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &k, err
		}
		switch e.Type {
		case TagKeyID:
			k.KeyID = e.String()
		case TagRevokeTime:
			n, err := e.Uint()
			if err != nil {
				return nil, err
			}
			k.RevokeTime = n
		}
	}
	return &k, nil
}

// --- GroupConfig -------------------------------------------------------

type GroupConfig struct {
	GroupID  string
	FullName string
	Owner    string
	Members  string
}

func (g *GroupConfig) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteString(TagGroupID, g.GroupID)
	b.WriteString(TagAccountFullName, g.FullName)
	b.WriteString(TagOwner, g.Owner)
	b.WriteString(TagMembers, g.Members)
	return TagGroupConfig, b.Bytes()
}

func decodeGroupConfig(value []byte) (*GroupConfig, error) {
	var g GroupConfig
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &g, err
		}
		switch e.Type {
		case TagGroupID:
			g.GroupID = e.String()
		case TagAccountFullName:
			g.FullName = e.String()
		case TagOwner:
			g.Owner = e.String()
		case TagMembers:
			g.Members = e.String()
		}
	}
	return &g, nil
}

// --- HeadRef -------------------------------------------------------------

// HeadRef is the secondary record the push handler writes to
// refs/bmeta/<name> alongside the primary ref update (supplemented
// behavior, see DESIGN.md): a snapshot of a head plus the change this
// push belongs to, if any.
type HeadRef struct {
	Head               [20]byte
	ChangeID            string
	ChangeIDMetaCommit [20]byte
}

func (h *HeadRef) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteBytes(TagHead, h.Head[:])
	if h.ChangeID != "" {
		b.WriteString(TagChangeID, h.ChangeID)
		b.WriteBytes(TagChangeIDMetaCommit, h.ChangeIDMetaCommit[:])
	}
	return TagHeadRef, b.Bytes()
}

func decodeHeadRef(value []byte) (*HeadRef, error) {
	var h HeadRef
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &h, err
		}
		switch e.Type {
		case TagHead:
			if len(e.Value) != 20 {
				return nil, fmt.Errorf("tlv: HeadRef.head: %w", ErrMalformed)
			}
			copy(h.Head[:], e.Value)
		case TagChangeID:
			h.ChangeID = e.String()
		case TagChangeIDMetaCommit:
			if len(e.Value) != 20 {
				return nil, fmt.Errorf("tlv: HeadRef.change_id_meta_commit: %w", ErrMalformed)
			}
			copy(h.ChangeIDMetaCommit[:], e.Value)
		}
	}
	return &h, nil
}

// --- ChangeMeta ----------------------------------------------------------

type ChangeMeta struct {
	ChangeID string
	Status   string
	PatchSet uint64
	Subject  string
}

func (c *ChangeMeta) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteString(TagChangeID, c.ChangeID)
	b.WriteString(TagStatus, c.Status)
	b.WriteUint(TagPatchSet, c.PatchSet)
	b.WriteString(TagSubject, c.Subject)
	return TagChangeMeta, b.Bytes()
}

func decodeChangeMetaV(value []byte) (*ChangeMeta, error) {
	var c ChangeMeta
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &c, err
		}
		switch e.Type {
		case TagChangeID:
			c.ChangeID = e.String()
		case TagStatus:
			c.Status = e.String()
		case TagPatchSet:
			n, err := e.Uint()
			if err != nil {
				return nil, err
			}
			c.PatchSet = n
		case TagSubject:
			c.Subject = e.String()
		}
	}
	return &c, nil
}

// --- Vote ------------------------------------------------------------------

type Vote struct {
	Label string
	Value int8
}

func (v *Vote) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteString(TagLabel, v.Label)
	b.WriteBiasedInt8(TagValue, v.Value)
	return TagVote, b.Bytes()
}

func decodeVote(value []byte) (*Vote, error) {
	var v Vote
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &v, err
		}
		switch e.Type {
		case TagLabel:
			v.Label = e.String()
		case TagValue:
			n, err := e.BiasedInt8()
			if err != nil {
				return nil, err
			}
			v.Value = n
		}
	}
	return &v, nil
}

// --- Comment -----------------------------------------------------------------

type Comment struct {
	CommentID string
	Filename  string
	LineNbr   uint64
	Author    string
	WrittenOn uint64
	Message   string
	RevID     string
	Unsolved  bool
}

func (c *Comment) Marshal() (uint64, []byte) {
	var b Builder
	b.WriteString(TagCommentID, c.CommentID)
	b.WriteString(TagFilename, c.Filename)
	b.WriteUint(TagLineNbr, c.LineNbr)
	b.WriteString(TagAuthor, c.Author)
	b.WriteUint(TagWrittenOn, c.WrittenOn)
	b.WriteString(TagMessage, c.Message)
	b.WriteString(TagRevID, c.RevID)
	b.WriteBool(TagUnsolved, c.Unsolved)
	return TagComment, b.Bytes()
}

func decodeComment(value []byte) (*Comment, error) {
	var c Comment
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &c, err
		}
		switch e.Type {
		case TagCommentID:
			c.CommentID = e.String()
		case TagFilename:
			c.Filename = e.String()
		case TagLineNbr:
			n, err := e.Uint()
			if err != nil {
				return nil, err
			}
			c.LineNbr = n
		case TagAuthor:
			c.Author = e.String()
		case TagWrittenOn:
			n, err := e.Uint()
			if err != nil {
				return nil, err
			}
			c.WrittenOn = n
		case TagMessage:
			c.Message = e.String()
		case TagRevID:
			c.RevID = e.String()
		case TagUnsolved:
			v, err := e.Bool()
			if err != nil {
				return nil, err
			}
			c.Unsolved = v
		}
	}
	return &c, nil
}

// --- Catalog -----------------------------------------------------------------

type Catalog struct {
	Entries []string
}

func (c *Catalog) Marshal() (uint64, []byte) {
	var b Builder
	for _, e := range c.Entries {
		b.WriteString(TagCatalogEntry, e)
	}
	return TagCatalog, b.Bytes()
}

func decodeCatalog(value []byte) (*Catalog, error) {
	var c Catalog
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil || !ok {
			return &c, err
		}
		if e.Type == TagCatalogEntry {
			c.Entries = append(c.Entries, e.String())
		}
	}
	return &c, nil
}

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

// SyncObject is the segment payload carrying one fetched git object:
// its type tag plus raw bytes. A multi-segment object arrives as a
// concatenation of fragments each repeating obj_type; DecodeSyncObject
// therefore appends every obj_data element it sees, in order.
type SyncObject struct {
	ObjType string
	ObjData []byte
}

func (o *SyncObject) Encode() []byte {
	var b Builder
	b.WriteString(TagObjType, o.ObjType)
	b.WriteBytes(TagObjData, o.ObjData)
	return b.Bytes()
}

func DecodeSyncObject(data []byte) (*SyncObject, error) {
	var o SyncObject
	var sawType, sawData bool
	p := NewParser(data)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagObjType:
			o.ObjType = e.String()
			sawType = true
		case TagObjData:
			o.ObjData = append(o.ObjData, e.Value...)
			sawData = true
		}
	}
	if !sawType || !sawData {
		return nil, fmt.Errorf("tlv: SyncObject: %w", ErrMalformed)
	}
	return &o, nil
}

// RefInfo pairs a reference name with its head commit hash.
type RefInfo struct {
	RefName string
	RefHead githashLike
}

// githashLike avoids importing githash here to keep tlv dependency-free
// of the object model; callers pass a 20-byte array satisfying this.
type githashLike = [20]byte

func (r *RefInfo) encodeInto(b *Builder) {
	var nested Builder
	nested.WriteString(TagRefName, r.RefName)
	nested.WriteBytes(TagRefHead, r.RefHead[:])
	b.WriteNested(TagRefInfo, &nested)
}

func decodeRefInfo(value []byte) (*RefInfo, error) {
	var r RefInfo
	var sawName, sawHead bool
	p := NewParser(value)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagRefName:
			r.RefName = e.String()
			sawName = true
		case TagRefHead:
			if len(e.Value) != 20 {
				return nil, fmt.Errorf("tlv: RefInfo.ref_head: %w", ErrMalformed)
			}
			copy(r.RefHead[:], e.Value)
			sawHead = true
		}
	}
	if !sawName || !sawHead {
		return nil, fmt.Errorf("tlv: RefInfo: %w", ErrMalformed)
	}
	return &r, nil
}

// SyncUpdate is a repeated RefInfo: a branch-head announcement.
type SyncUpdate struct {
	Refs []RefInfo
}

func (s *SyncUpdate) Encode() []byte {
	var b Builder
	for i := range s.Refs {
		s.Refs[i].encodeInto(&b)
	}
	return b.Bytes()
}

func DecodeSyncUpdate(data []byte) (*SyncUpdate, error) {
	var s SyncUpdate
	p := NewParser(data)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if e.Type != TagRefInfo {
			continue
		}
		ri, err := decodeRefInfo(e.Value)
		if err != nil {
			return nil, err
		}
		s.Refs = append(s.Refs, *ri)
	}
	return &s, nil
}

// PushRequest is an incoming push: a target ref/head plus a force flag.
type PushRequest struct {
	RefInfo RefInfo
	Force   bool
}

func (r *PushRequest) Encode() []byte {
	var b Builder
	r.RefInfo.encodeInto(&b)
	b.WriteBool(TagForce, r.Force)
	return b.Bytes()
}

func DecodePushRequest(data []byte) (*PushRequest, error) {
	var r PushRequest
	var sawRef bool
	p := NewParser(data)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagRefInfo:
			ri, err := decodeRefInfo(e.Value)
			if err != nil {
				return nil, err
			}
			r.RefInfo = *ri
			sawRef = true
		case TagForce:
			v, err := e.Bool()
			if err != nil {
				return nil, err
			}
			r.Force = v
		}
	}
	if !sawRef {
		return nil, fmt.Errorf("tlv: PushRequest: %w", ErrMalformed)
	}
	return &r, nil
}

// AddUserReq requests creation of a new user branch with an embedded
// certificate.
type AddUserReq struct {
	FullName string
	Email    string
	Cert     []byte
}

func (r *AddUserReq) Encode() []byte {
	var b Builder
	b.WriteString(TagFullName, r.FullName)
	b.WriteString(TagEmail, r.Email)
	b.WriteBytes(TagCert, r.Cert)
	return b.Bytes()
}

func DecodeAddUserReq(data []byte) (*AddUserReq, error) {
	var r AddUserReq
	p := NewParser(data)
	for p.More() {
		e, ok, err := p.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		switch e.Type {
		case TagFullName:
			r.FullName = e.String()
		case TagEmail:
			r.Email = e.String()
		case TagCert:
			r.Cert = e.Value
		}
	}
	if r.FullName == "" || r.Cert == nil {
		return nil, fmt.Errorf("tlv: AddUserReq: %w", ErrMalformed)
	}
	return &r, nil
}

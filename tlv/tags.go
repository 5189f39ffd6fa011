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

// Wire packet tags.
const (
	TagObjType  = 0x01
	TagObjData  = 0x02
	TagRefName  = 0x03
	TagRefHead  = 0x04
	TagRefInfo  = 0x05
	TagForce    = 0x06
	TagFullName = 0x07
	TagEmail    = 0x08
	TagCert     = 0x09
)

// GitObject variant tags.
const (
	TagProjectConfig = 0xf0
	TagAccountConfig = 0xf1
	TagKeyRevocation = 0xf2
	TagGroupConfig   = 0xf3
	TagHeadRef       = 0xf4
	TagChangeMeta    = 0xf5
	TagVote          = 0xf6
	TagComment       = 0xf7
	TagCatalog       = 0xf8
)

// signature envelope tags, terminating every GitObject.
const (
	TagSignatureInfo  = 0xe0
	TagSignatureValue = 0xe1
)

// ProjectConfig field tags.
const (
	TagProjectID     = 0x80
	TagDescription   = 0x90
	TagInheritFrom   = 0x91
	TagSyncInterval  = 0x92
	TagRefConfig     = 0x93
	TagLabelConfig   = 0x94
	TagRefConfigName = 0x95
	TagOperationRule = 0x96
	TagLabelRule     = 0x97
	TagLabel         = 0x98
	TagFunction      = 0x99
	TagDefaultValue  = 0x9a
	TagLabelValue    = 0x9b
	TagOperation     = 0x9c
	TagAccess        = 0x9d
	TagMinValue      = 0x9e
	TagMaxValue      = 0x9f
	TagValue         = 0xa0
	TagLabelValDesc  = 0xa1
)

// other common field tags shared by several variants.
const (
	TagUserID    = 0x81
	TagGroupID   = 0x82
	TagKeyID     = 0x83
	TagHead      = 0x84
	TagChangeID  = 0x85
	TagPatchSet  = 0x86
	TagCommentID = 0x87

	TagAccountFullName    = 0xa2
	TagAccountEmail       = 0xa3 // AccountConfig.email
	TagOwner              = 0xa3 // GroupConfig.owner (distinct variant, tag reused)
	TagRevokeTime         = 0xa4 // KeyRevocation.revoke_time (distinct variant, tag reused)
	TagMembers            = 0xa4 // GroupConfig.members
	TagChangeIDMetaCommit = 0xa5
	TagStatus             = 0xa6
	TagSubject            = 0xa7
	TagFilename           = 0xa8
	TagLineNbr            = 0xa9
	TagAuthor             = 0xaa
	TagWrittenOn          = 0xab
	TagMessage            = 0xac
	TagRevID              = 0xad
	TagUnsolved           = 0xae
	TagCatalogEntry       = 0xaf
)

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
	"fmt"

	"lab.nexedi.com/kirr/git-ndn-sync/ndn"
)

// dialFace is the one extension point this binary leaves unfilled:
// git-ndn-syncd declares the ndn.Face/ndn.Responder interfaces it
// needs (package ndn) but does not itself embed an NDN forwarder
// client. A deployment wires in a real one (a YaNFD-style local
// forwarder connection, an in-process go-ndn app, ...) by replacing
// this function.
func dialFace(_ *Config) (ndn.Face, ndn.Responder, error) {
	return nil, nil, fmt.Errorf("git-ndn-syncd: no ndn.Face wired into this build")
}

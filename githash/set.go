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

package githash

// Set is a set of Hash values.
type Set map[Hash]struct{}

func (s Set) Add(h Hash) {
	s[h] = struct{}{}
}

func (s Set) Contains(h Hash) bool {
	_, ok := s[h]
	return ok
}

// Elements returns all members of the set as a slice, in unspecified order.
func (s Set) Elements() []Hash {
	ev := make([]Hash, 0, len(s))
	for h := range s {
		ev = append(ev, h)
	}
	return ev
}

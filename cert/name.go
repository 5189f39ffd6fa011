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

package cert

import "strings"

// Name is a '/'-separated NDN-style hierarchical name, such as a
// signature's key-locator name or a certificate's own name.
// Non-negative indices count from the start, negative indices count
// from the end (-1 is the last component).
type Name []string

// ParseName splits s on '/', skipping a leading empty component from a
// leading slash.
func ParseName(s string) Name {
	parts := strings.Split(s, "/")
	if len(parts) > 0 && parts[0] == "" {
		parts = parts[1:]
	}
	return Name(parts)
}

// Component returns the i-th component, allowing negative indices to
// count from the end. ok is false if i is out of range.
func (n Name) Component(i int) (string, bool) {
	if i < 0 {
		i += len(n)
	}
	if i < 0 || i >= len(n) {
		return "", false
	}
	return n[i], true
}

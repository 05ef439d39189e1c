// Copyright (C) 2025 Cartoflow, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package natsort compares strings in natural order: runs of digits are
// compared by numeric value instead of lexicographically, so tile_2 sorts
// before tile_10. Catalog enumeration depends on this comparison staying
// stable across runs.
package natsort

import "sort"

// Compare returns -1, 0, or 1 comparing a and b in natural order.
func Compare(a, b string) int {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		da, db := isDigit(ca), isDigit(cb)

		if da && db {
			na, ni := digitRun(a, i)
			nb, nj := digitRun(b, j)
			if c := compareDigitRuns(na, nb); c != 0 {
				return c
			}
			i, j = ni, nj
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		i++
		j++
	}
	switch {
	case len(a)-i < len(b)-j:
		return -1
	case len(a)-i > len(b)-j:
		return 1
	default:
		return 0
	}
}

// Sort orders ss in place using Compare.
func Sort(ss []string) {
	sort.SliceStable(ss, func(i, j int) bool { return Compare(ss[i], ss[j]) < 0 })
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// digitRun returns the digit substring starting at i and the index just past
// it.
func digitRun(s string, i int) (string, int) {
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[start:i], i
}

// compareDigitRuns compares two digit runs by numeric value without parsing
// into integers, so arbitrarily long runs cannot overflow.
func compareDigitRuns(a, b string) int {
	a = trimLeadingZeros(a)
	b = trimLeadingZeros(b)
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func trimLeadingZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

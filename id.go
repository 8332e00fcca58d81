// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postman

import "math/rand/v2"

// idAlphabet leaves out 0, O, 1, I, l, i, j and o so identifiers survive being read aloud.
const idAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghkmnpqrstuvwxyz"

// DefaultIDLength is the length of identifiers returned by NewID.
const DefaultIDLength = 6

// NewID returns a random identifier of DefaultIDLength symbols.
func NewID() string {
	return NewIDN(DefaultIDLength)
}

// NewIDN returns a random identifier of n symbols. Non-positive n falls back
// to DefaultIDLength. The result is not suitable for secrets.
func NewIDN(n int) string {
	if n <= 0 {
		n = DefaultIDLength
	}
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}
	return string(buf)
}

// Copyright 2025 The peermgr authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vault

import (
	"hash/fnv"
	"strings"

	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// Junos $9$ secrets. Like type-7 this is reversible obfuscation keyed on a
// public alphabet; routers decode it themselves when the configuration is
// loaded.

const junosMagic = "$9$"

var junosFamilies = [4]string{
	"QzF3n6/9CAtpu0O",
	"B1IREhcSyrleKvMW8LXx",
	"7N-dVbwsY2g4oaJZGUDj",
	"iHkq.mPf5T",
}

// junosAlphabet is the concatenation of the families, 65 characters.
var junosAlphabet = strings.Join(junosFamilies[:], "")

// junosExtra maps each alphabet character to the number of filler
// characters following the salt when it is used as salt.
var junosExtra = func() map[byte]int {
	extra := make(map[byte]int, len(junosAlphabet))
	for i, family := range junosFamilies {
		for j := 0; j < len(family); j++ {
			extra[family[j]] = 3 - i
		}
	}
	return extra
}()

var junosIndex = func() map[byte]int {
	index := make(map[byte]int, len(junosAlphabet))
	for i := 0; i < len(junosAlphabet); i++ {
		index[junosAlphabet[i]] = i
	}
	return index
}()

// junosEncoding lists, per plaintext position (cycled), the place values
// the character code is split into.
var junosEncoding = [][]int{
	{1, 4, 32},
	{1, 16, 32},
	{1, 8, 32},
	{1, 64},
	{1, 32},
	{1, 4, 16, 128},
	{1, 32, 64},
}

// isJunos reports whether secret carries the $9$ preamble.
func isJunos(secret string) bool {
	return strings.HasPrefix(secret, junosMagic)
}

// junosEncrypt produces a $9$ secret. The salt and filler characters are
// derived from a hash of the plaintext, so re-encrypting an unchanged
// password yields the same string.
func junosEncrypt(plain string) (string, error) {
	if plain == "" {
		return "", serrors.New("empty password")
	}
	h := fnv.New32a()
	h.Write([]byte(plain))
	seed := h.Sum32()

	salt := junosAlphabet[seed%uint32(len(junosAlphabet))]
	var b strings.Builder
	b.WriteString(junosMagic)
	b.WriteByte(salt)
	for i := 0; i < junosExtra[salt]; i++ {
		seed = seed*1103515245 + 12345
		b.WriteByte(junosAlphabet[seed%uint32(len(junosAlphabet))])
	}
	prev := salt
	for i := 0; i < len(plain); i++ {
		encoding := junosEncoding[i%len(junosEncoding)]
		gaps := splitGaps(int(plain[i]), encoding)
		for _, gap := range gaps {
			gap += junosIndex[prev] + 1
			c := junosAlphabet[gap%len(junosAlphabet)]
			b.WriteByte(c)
			prev = c
		}
	}
	return b.String(), nil
}

// splitGaps decomposes value into the digits of the mixed-radix encoding,
// most significant place last in the encoding table.
func splitGaps(value int, encoding []int) []int {
	gaps := make([]int, len(encoding))
	for i := len(encoding) - 1; i >= 0; i-- {
		gaps[i] = value / encoding[i]
		value %= encoding[i]
	}
	return gaps
}

// junosDecrypt recovers the plaintext from a $9$ secret.
func junosDecrypt(secret string) (string, error) {
	if !isJunos(secret) || len(secret) < len(junosMagic)+1 {
		return "", serrors.New("malformed $9$ password")
	}
	chars := secret[len(junosMagic):]
	salt := chars[0]
	if _, ok := junosIndex[salt]; !ok {
		return "", serrors.New("invalid $9$ salt")
	}
	if len(chars) < 1+junosExtra[salt] {
		return "", serrors.New("truncated $9$ password")
	}
	chars = chars[1+junosExtra[salt]:]

	prev := salt
	var plain strings.Builder
	for len(chars) > 0 {
		encoding := junosEncoding[plain.Len()%len(junosEncoding)]
		if len(chars) < len(encoding) {
			return "", serrors.New("truncated $9$ password")
		}
		value := 0
		for i, place := range encoding {
			c := chars[i]
			idx, ok := junosIndex[c]
			if !ok {
				return "", serrors.New("invalid $9$ character",
					"char", string(c))
			}
			gap := ((idx-junosIndex[prev])%len(junosAlphabet)+
				len(junosAlphabet))%len(junosAlphabet) - 1
			value += gap * place
			prev = c
		}
		if value < 0 || value > 255 {
			return "", serrors.New("invalid $9$ password")
		}
		plain.WriteByte(byte(value))
		chars = chars[len(encoding):]
	}
	return plain.String(), nil
}

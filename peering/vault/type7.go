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
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"

	"github.com/peermgr/peermgr/pkg/private/serrors"
)

// The fixed XOR key of the Cisco type-7 scheme. The scheme is reversible
// obfuscation, not encryption; it only keeps secrets out of casual view in
// rendered configurations.
const type7Key = "dsfd;kfoA,.iyewrkldJKDHSUBsgvca69834ncxv9873254k;fg87"

var type7Pattern = regexp.MustCompile(`^[0-9]{2}([0-9a-fA-F]{2})+$`)

// isType7 reports whether secret is a well-formed type-7 string.
func isType7(secret string) bool {
	return type7Pattern.MatchString(secret)
}

// type7Encrypt obfuscates plain with the type-7 scheme. The salt index is
// derived from the plaintext so re-encrypting an unchanged password yields
// the same string.
func type7Encrypt(plain string) (string, error) {
	if plain == "" {
		return "", serrors.New("empty password")
	}
	salt := len(plain) % 16
	out := fmt.Sprintf("%02d", salt)
	for i := 0; i < len(plain); i++ {
		out += fmt.Sprintf("%02X", plain[i]^type7Key[(salt+i)%len(type7Key)])
	}
	return out, nil
}

// type7Decrypt recovers the plaintext from a type-7 string.
func type7Decrypt(secret string) (string, error) {
	if !isType7(secret) {
		return "", serrors.New("malformed type-7 password")
	}
	salt, err := strconv.Atoi(secret[:2])
	if err != nil || salt > 15 {
		return "", serrors.New("invalid type-7 salt", "salt", secret[:2])
	}
	raw, err := hex.DecodeString(secret[2:])
	if err != nil {
		return "", serrors.WrapStr("decoding type-7 password", err)
	}
	plain := make([]byte, len(raw))
	for i, b := range raw {
		plain[i] = b ^ type7Key[(salt+i)%len(type7Key)]
	}
	return string(plain), nil
}

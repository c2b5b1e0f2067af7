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

// Package vault obfuscates BGP session passwords in the schemes the
// supported router platforms expect in their configurations.
package vault

import (
	"github.com/peermgr/peermgr/peering"
	"github.com/peermgr/peermgr/pkg/private/serrors"
)

type scheme struct {
	encrypt   func(plain string) (string, error)
	decrypt   func(secret string) (string, error)
	encrypted func(secret string) bool
}

// Platforms that share Cisco's type-7 scheme all map to the same entry.
var schemes = map[string]scheme{
	"junos": {junosEncrypt, junosDecrypt, isJunos},
	"iosxr": {type7Encrypt, type7Decrypt, isType7},
	"ios":   {type7Encrypt, type7Decrypt, isType7},
	"nxos":  {type7Encrypt, type7Decrypt, isType7},
	"eos":   {type7Encrypt, type7Decrypt, isType7},
}

func schemeFor(platform string) (scheme, error) {
	s, ok := schemes[platform]
	if !ok {
		return scheme{}, serrors.JoinNoStack(peering.ErrUnsupportedPlatform, nil,
			"platform", platform, "reason", "no password scheme")
	}
	return s, nil
}

// Encrypt returns the platform-specific obfuscated form of plain. If
// plain already carries the platform's encrypted shape the call fails
// with ErrAlreadyEncrypted.
func Encrypt(platform, plain string) (string, error) {
	s, err := schemeFor(platform)
	if err != nil {
		return "", err
	}
	if s.encrypted(plain) {
		return "", serrors.JoinNoStack(peering.ErrAlreadyEncrypted, nil,
			"platform", platform)
	}
	return s.encrypt(plain)
}

// Decrypt recovers the plaintext password from its obfuscated form.
func Decrypt(platform, secret string) (string, error) {
	s, err := schemeFor(platform)
	if err != nil {
		return "", err
	}
	return s.decrypt(secret)
}

// AlreadyEncrypted reports whether secret carries the platform's
// encrypted shape. Unknown platforms report false.
func AlreadyEncrypted(platform, secret string) bool {
	s, err := schemeFor(platform)
	if err != nil {
		return false
	}
	return s.encrypted(secret)
}

// EncryptCredentials fills in the encrypted form of the session password
// for the given platform. Credentials without a password are left
// untouched.
func EncryptCredentials(platform string, creds *peering.Credentials) error {
	if creds.Password == "" {
		return nil
	}
	secret, err := Encrypt(platform, creds.Password)
	if err != nil {
		return err
	}
	creds.EncryptedPassword = secret
	return nil
}

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

package peering

import (
	"errors"
)

// The error taxonomy shared by all components. Callers match these with
// errors.Is; components attach detail by joining them with serrors.Join.
var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrDeviceUnreachable indicates a network or timeout failure talking
	// to a router. Transient; retrying may help.
	ErrDeviceUnreachable = errors.New("device unreachable")
	// ErrUnsupportedPlatform indicates no device driver exists for a
	// router's platform, or the platform is unset.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNoRouterConfigured indicates an operation that needs a router was
	// invoked on a target without one.
	ErrNoRouterConfigured = errors.New("no router configured")
	// ErrNoTemplateAssigned indicates configuration generation was asked
	// for a target without a template.
	ErrNoTemplateAssigned = errors.New("no template assigned")
	// ErrRegistryUnavailable indicates the peering registry cannot be
	// reached. Transient; callers must degrade, never abort a whole run.
	ErrRegistryUnavailable = errors.New("peering registry unavailable")
	// ErrRender indicates the template and the rendering context do not
	// match.
	ErrRender = errors.New("template rendering failed")
	// ErrAlreadyEncrypted indicates an encrypt operation on a credential
	// that holds no plaintext anymore.
	ErrAlreadyEncrypted = errors.New("password already encrypted")
	// ErrPollFailed indicates a session poll could not complete. No
	// session state was modified.
	ErrPollFailed = errors.New("cannot update peering session states")
)

// Transient reports whether err is worth retrying, as opposed to a data
// error the operator has to fix first.
func Transient(err error) bool {
	return errors.Is(err, ErrDeviceUnreachable) ||
		errors.Is(err, ErrRegistryUnavailable) ||
		errors.Is(err, ErrPollFailed)
}

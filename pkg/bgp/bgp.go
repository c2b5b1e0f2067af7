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

// Package bgp contains the BGP value types shared by all peermgr
// components: autonomous system numbers, the session state machine and
// peering relationships.
package bgp

import (
	"fmt"
	"strconv"
	"strings"
)

// ASN is a 32-bit autonomous system number.
type ASN uint32

// ParseASN parses an AS number from its decimal representation, with or
// without the "AS" prefix.
func ParseASN(s string) (ASN, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "AS"), "as")
	asn, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid AS number %q", s)
	}
	return ASN(asn), nil
}

func (a ASN) String() string {
	return fmt.Sprintf("AS%d", uint32(a))
}

// State is the observed state of a BGP session, as reported by a device.
// It is a fact, never an operator intent.
type State int

// The BGP finite state machine, in protocol order. Any state may fall back
// to StateIdle when the session is lost.
const (
	StateIdle State = iota
	StateConnect
	StateActive
	StateOpenSent
	StateOpenConfirm
	StateEstablished
)

var stateNames = [...]string{
	StateIdle:        "idle",
	StateConnect:     "connect",
	StateActive:      "active",
	StateOpenSent:    "opensent",
	StateOpenConfirm: "openconfirm",
	StateEstablished: "established",
}

// ParseState parses a session state name as reported by devices. The input
// is case-insensitive and tolerates the dashed spellings some platforms use.
func ParseState(s string) (State, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "")
	for state, name := range stateNames {
		if name == normalized {
			return State(state), nil
		}
	}
	return StateIdle, fmt.Errorf("unknown BGP state %q", s)
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("invalid(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(stateNames) {
		return nil, fmt.Errorf("invalid BGP state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	state, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// Established returns whether the session reached the final state of the
// state machine.
func (s State) Established() bool {
	return s == StateEstablished
}

// Relationship is the business relationship of a direct peering session.
type Relationship string

// The supported relationship kinds.
const (
	TransitProvider Relationship = "transit-provider"
	Customer        Relationship = "customer"
	PrivatePeering  Relationship = "private-peering"
)

// Validate checks that the relationship is one of the supported kinds.
func (r Relationship) Validate() error {
	switch r {
	case TransitProvider, Customer, PrivatePeering:
		return nil
	default:
		return fmt.Errorf("unknown relationship %q", string(r))
	}
}

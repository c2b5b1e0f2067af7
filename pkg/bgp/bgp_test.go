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

package bgp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peermgr/peermgr/pkg/bgp"
)

func TestParseASN(t *testing.T) {
	testCases := map[string]struct {
		Input     string
		Expected  bgp.ASN
		AssertErr assert.ErrorAssertionFunc
	}{
		"plain":      {Input: "64500", Expected: 64500, AssertErr: assert.NoError},
		"prefixed":   {Input: "AS64500", Expected: 64500, AssertErr: assert.NoError},
		"32 bit":     {Input: "4200000000", Expected: 4200000000, AssertErr: assert.NoError},
		"overflow":   {Input: "4294967296", AssertErr: assert.Error},
		"garbage":    {Input: "AS-FOO", AssertErr: assert.Error},
		"empty":      {Input: "", AssertErr: assert.Error},
		"lower case": {Input: "as64500", Expected: 64500, AssertErr: assert.NoError},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			asn, err := bgp.ParseASN(tc.Input)
			tc.AssertErr(t, err)
			if err == nil {
				assert.Equal(t, tc.Expected, asn)
			}
		})
	}
}

func TestParseState(t *testing.T) {
	state, err := bgp.ParseState("Established")
	require.NoError(t, err)
	assert.Equal(t, bgp.StateEstablished, state)
	assert.True(t, state.Established())

	state, err = bgp.ParseState("open-sent")
	require.NoError(t, err)
	assert.Equal(t, bgp.StateOpenSent, state)

	_, err = bgp.ParseState("flapping")
	assert.Error(t, err)
}

func TestStateTextRoundTrip(t *testing.T) {
	for _, state := range []bgp.State{
		bgp.StateIdle, bgp.StateConnect, bgp.StateActive,
		bgp.StateOpenSent, bgp.StateOpenConfirm, bgp.StateEstablished,
	} {
		text, err := state.MarshalText()
		require.NoError(t, err)
		var parsed bgp.State
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, state, parsed)
	}
}

func TestRelationshipValidate(t *testing.T) {
	assert.NoError(t, bgp.TransitProvider.Validate())
	assert.NoError(t, bgp.Customer.Validate())
	assert.NoError(t, bgp.PrivatePeering.Validate())
	assert.Error(t, bgp.Relationship("friend").Validate())
}

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

package serrors_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peermgr/peermgr/pkg/private/serrors"
)

func TestNewFormatsContextSorted(t *testing.T) {
	err := serrors.New("msg", "b", 2, "a", 1)
	assert.Equal(t, "msg {a=1; b=2}", err.Error())
}

func TestWrapStrIsCause(t *testing.T) {
	cause := errors.New("cause")
	err := serrors.WrapStr("wrapping", cause, "key", "value")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "wrapping {key=value}: cause", err.Error())
}

func TestJoinIsBothBaseAndCause(t *testing.T) {
	sentinel := errors.New("sentinel")
	cause := errors.New("cause")
	err := serrors.Join(sentinel, cause, "router", "r1")
	assert.True(t, errors.Is(err, sentinel))
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, err))
}

func TestJoinNilNil(t *testing.T) {
	assert.NoError(t, serrors.Join(nil, nil))
}

func TestListToError(t *testing.T) {
	assert.NoError(t, serrors.List{}.ToError())
	errs := serrors.List{errors.New("one"), errors.New("two")}
	assert.Equal(t, "[ one; two ]", errs.ToError().Error())
}

// Copyright 2025 The keytrust Authors
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
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

type testErrType struct {
	msg string
}

func (e *testErrType) Error() string {
	return e.msg
}

type testTimeoutErr struct {
	timeout bool
	cause   error
}

func (e *testTimeoutErr) Error() string { return "timeout test" }
func (e *testTimeoutErr) Timeout() bool { return e.timeout }
func (e *testTimeoutErr) Unwrap() error { return e.cause }

func TestIsTimeout(t *testing.T) {
	assert.False(t, serrors.IsTimeout(serrors.New("no timeout")))
	assert.True(t, serrors.IsTimeout(serrors.Wrap("timeout", &testTimeoutErr{timeout: true})))
	nested := serrors.Wrap("outer", &testTimeoutErr{
		cause: &testTimeoutErr{timeout: true},
	})
	assert.False(t, serrors.IsTimeout(nested))
}

func TestWrap(t *testing.T) {
	t.Run("Is", func(t *testing.T) {
		err := serrors.New("simple err")
		wrapped := serrors.Wrap("msg", err, "someCtx", "someValue")
		assert.ErrorIs(t, wrapped, err)
		assert.ErrorIs(t, wrapped, wrapped)
	})
	t.Run("As", func(t *testing.T) {
		err := &testErrType{msg: "test err"}
		wrapped := serrors.WrapNoStack("msg", err, "someCtx", "someValue")
		var errAs *testErrType
		require.True(t, errors.As(wrapped, &errAs))
		assert.Equal(t, err, errAs)
	})
	t.Run("context is sorted", func(t *testing.T) {
		err := serrors.Wrap("msg", errors.New("cause"), "b", 2, "a", 1)
		assert.Equal(t, "msg {a=1; b=2}: cause", err.Error())
	})
}

func TestJoin(t *testing.T) {
	base := serrors.New("base")
	cause := &testErrType{msg: "cause"}
	joined := serrors.JoinNoStack(base, cause, "user", "@a:b")
	assert.ErrorIs(t, joined, base)
	var errAs *testErrType
	require.True(t, errors.As(joined, &errAs))
	assert.Equal(t, "base {user=@a:b}: cause", joined.Error())

	assert.NoError(t, serrors.Join(nil, nil))
	assert.ErrorIs(t, serrors.Join(nil, base), base)
}

func TestNew(t *testing.T) {
	err1 := serrors.New("err msg")
	err2 := serrors.New("err msg")
	assert.ErrorIs(t, err1, err1)
	assert.False(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err2, err1))
}

func TestList(t *testing.T) {
	var l serrors.List
	assert.NoError(t, l.ToError())
	base := serrors.New("base")
	l = append(l, errors.New("first"), serrors.Wrap("second", base))
	assert.Equal(t, "[ first; second: base ]", l.Error())
	assert.ErrorIs(t, l.ToError(), base)
}

func TestStackTrace(t *testing.T) {
	err := serrors.New("with stack")
	var st interface{ StackTrace() serrors.StackTrace }
	require.True(t, errors.As(err, &st))
	assert.NotEmpty(t, st.StackTrace())

	noStack := serrors.WrapNoStack("no stack", errors.New("plain"))
	require.True(t, errors.As(noStack, &st))
	assert.Empty(t, st.StackTrace())
}

func TestMarshalLogObject(t *testing.T) {
	err := serrors.Wrap("msg", errors.New("cause"), "k", "v")
	m, ok := err.(zapcore.ObjectMarshaler)
	require.True(t, ok)
	enc := zapcore.NewMapObjectEncoder()
	require.NoError(t, m.MarshalLogObject(enc))
	assert.Equal(t, "msg", enc.Fields["msg"])
	assert.Equal(t, "cause", enc.Fields["cause"])
	assert.Equal(t, "v", enc.Fields["k"])
}

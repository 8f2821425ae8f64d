// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// typeOf fails the test when v carries no type, otherwise returns the
// type's string form.
func typeOf(t *testing.T, v *graph.Value) string {
	t.Helper()
	require.NotNil(t, v.Type())
	return v.Type().String()
}

// inferError runs fn expecting it to panic with a type inference error
// mentioning substr.
func inferError(t *testing.T, substr string, fn func()) {
	t.Helper()
	err := exceptions.TryCatch[error](fn)
	require.ErrorIs(t, err, graph.ErrInference)
	assert.Contains(t, err.Error(), substr)
}

func TestConst(t *testing.T) {
	v := Const([]float32{1, 2, 3})
	assert.Equal(t, "Float32[3]", typeOf(t, v))
	require.NotNil(t, v.Const())

	s := Const(7)
	assert.Equal(t, "Int64[]", typeOf(t, s))
}

func TestBroadcastDims(t *testing.T) {
	f32 := func(dims ...any) *graph.Value {
		return graph.Arg(types.MakeTensor(dtypes.Float32, dims...), "x")
	}
	cases := []struct {
		name string
		a, b *graph.Value
		want string
	}{
		{"trailing", f32(2, 3, 4), f32(4), "Float32[2 3 4]"},
		{"ones both ways", f32(3, 1), f32(1, 4), "Float32[3 4]"},
		{"scalar", f32(2, 3), f32(), "Float32[2 3]"},
		{"symbolic against one", f32("batch", 3), f32(1, 3), "Float32[batch 3]"},
		{"symbolic against same", f32("batch", 3), f32("batch", 1), "Float32[batch 3]"},
		{"symbolic against other", f32("batch", 3), f32("n", 3), "Float32[? 3]"},
		{"known wins over unknown", f32(nil, 3), f32(5, 3), "Float32[5 3]"},
		{"unknown stays", f32(nil, 3), f32(1, 3), "Float32[? 3]"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, typeOf(t, Add(c.a, c.b)))
		})
	}
}

func TestBroadcastErrors(t *testing.T) {
	x := graph.Arg(types.MakeTensor(dtypes.Float32, 2, 3), "x")
	y := graph.Arg(types.MakeTensor(dtypes.Float32, 4, 3), "y")
	inferError(t, "cannot broadcast", func() { Add(x, y) })

	f := graph.Arg(types.MakeTensor(dtypes.Float64, 2, 3), "f")
	inferError(t, "element types differ", func() { Add(x, f) })
}

func TestUntypedAndUnranked(t *testing.T) {
	u := graph.Arg(nil, "u")
	x := graph.Arg(types.MakeTensor(dtypes.Float32, 2), "x")
	assert.Nil(t, Add(u, x).Type())
	assert.Nil(t, Add(x, u).Type())

	any32 := graph.Arg(types.MakeUnranked(dtypes.Float32), "a")
	assert.Equal(t, "Float32[...]", typeOf(t, Add(any32, x)))
}

func TestNormAxis(t *testing.T) {
	ax, err := normAxis(-1, 3, "test")
	require.NoError(t, err)
	assert.Equal(t, 2, ax)
	ax, err = normAxis(0, 3, "test")
	require.NoError(t, err)
	assert.Equal(t, 0, ax)
	_, err = normAxis(3, 3, "test")
	assert.Error(t, err)
	_, err = normAxis(-4, 3, "test")
	assert.Error(t, err)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithFolding(t *testing.T) {
	sum := Add(Const([]int64{1, 2, 3}), Const([]int64{10, 20, 30}))
	require.NotNil(t, sum.Const())
	assert.Equal(t, []int64{11, 22, 33}, tensors.FlatData[int64](sum.Const()))

	// Scalar against vector broadcasts.
	shifted := Add(Const([]int64{1, 2, 3}), Const(10))
	require.NotNil(t, shifted.Const())
	assert.Equal(t, []int64{11, 12, 13}, tensors.FlatData[int64](shifted.Const()))

	prod := Mul(Const([]float32{2, 3}), Const([]float32{4, 5}))
	require.NotNil(t, prod.Const())
	assert.Equal(t, []float32{8, 15}, tensors.FlatData[float32](prod.Const()))

	diff := Sub(Const(int64(7)), Const(int64(5)))
	require.NotNil(t, diff.Const())
	assert.Equal(t, int64(2), tensors.Scalar[int64](diff.Const()))
}

func TestArithFoldingStopsAtArguments(t *testing.T) {
	x := graph.Arg(types.MakeTensor(dtypes.Int64, 3), "x")
	sum := Add(x, Const([]int64{1, 2, 3}))
	assert.Equal(t, "Int64[3]", typeOf(t, sum))
	assert.Nil(t, sum.Const())
}

func TestDivByZeroDoesNotFold(t *testing.T) {
	// The failed fold must not leak into construction; the value is
	// simply not known.
	q := Div(Const([]int64{1, 2}), Const([]int64{0, 1}))
	assert.Equal(t, "Int64[2]", typeOf(t, q))
	assert.Nil(t, q.Const())
}

func TestArithRejectsBooleans(t *testing.T) {
	b := graph.Arg(types.MakeTensor(dtypes.Bool, 2), "b")
	inferError(t, "booleans have no arithmetic", func() { Add(b, b) })
}

func TestMod(t *testing.T) {
	x := graph.Arg(types.MakeTensor(dtypes.Int64, 4), "x")
	y := graph.Arg(types.MakeTensor(dtypes.Int64, 4), "y")
	assert.Equal(t, "Int64[4]", typeOf(t, Mod(x, y, false)))

	f := graph.Arg(types.MakeTensor(dtypes.Float32, 4), "f")
	g := graph.Arg(types.MakeTensor(dtypes.Float32, 4), "g")
	assert.Equal(t, "Float32[4]", typeOf(t, Mod(f, g, true)))
	inferError(t, "fmod", func() { Mod(f, g, false) })
}

func TestMatMul(t *testing.T) {
	f32 := func(dims ...any) *graph.Value {
		return graph.Arg(types.MakeTensor(dtypes.Float32, dims...), "x")
	}
	cases := []struct {
		name string
		a, b *graph.Value
		want string
	}{
		{"matrix", f32(2, 3), f32(3, 4), "Float32[2 4]"},
		{"vector left", f32(3), f32(3, 4), "Float32[4]"},
		{"vector right", f32(2, 3), f32(3), "Float32[2]"},
		{"dot product", f32(3), f32(3), "Float32[]"},
		{"batched", f32(5, 1, 2, 3), f32(7, 3, 4), "Float32[5 7 2 4]"},
		{"symbolic contraction", f32(2, "k"), f32(3, 4), "Float32[2 4]"},
		{"unranked", f32(2, 3), graph.Arg(types.MakeUnranked(dtypes.Float32), "u"), "Float32[...]"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, typeOf(t, MatMul(c.a, c.b)))
		})
	}

	inferError(t, "contraction extents differ", func() { MatMul(f32(2, 3), f32(4, 5)) })
	inferError(t, "rank 1 or higher", func() { MatMul(f32(), f32(3)) })
	inferError(t, "cannot broadcast", func() { MatMul(f32(5, 2, 3), f32(4, 3, 4)) })
}

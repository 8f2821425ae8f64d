// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/types"
	"github.com/stretchr/testify/assert"
)

func TestReduceSum(t *testing.T) {
	x := f32Arg(2, 3, 4)
	cases := []struct {
		name     string
		axes     *graph.Value
		keep     bool
		noop     bool
		want     string
	}{
		{"one axis kept", Const([]int64{1}), true, false, "Float32[2 1 4]"},
		{"one axis dropped", Const([]int64{1}), false, false, "Float32[2 4]"},
		{"negative axis", Const([]int64{-1}), false, false, "Float32[2 3]"},
		{"all axes", nil, false, false, "Float32[]"},
		{"all axes kept", nil, true, false, "Float32[1 1 1]"},
		{"noop without axes", nil, false, true, "Float32[2 3 4]"},
		{"noop with empty axes", Const([]int64{}), false, true, "Float32[2 3 4]"},
		{"empty axes reduce all", Const([]int64{}), false, false, "Float32[]"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, typeOf(t, ReduceSum(x, c.axes, c.keep, c.noop)))
		})
	}
}

func TestReduceSumUnknownAxes(t *testing.T) {
	x := f32Arg(2, 3, 4)
	axes := graph.Arg(types.MakeTensor(dtypes.Int64, 2), "axes")
	assert.Equal(t, "Float32[? ? ?]", typeOf(t, ReduceSum(x, axes, true, false)))
	assert.Equal(t, "Float32[...]", typeOf(t, ReduceSum(x, axes, false, false)))
}

func TestReduceSumErrors(t *testing.T) {
	x := f32Arg(2, 3)
	inferError(t, "out of range", func() { ReduceSum(x, Const([]int64{2}), true, false) })
	inferError(t, "axes", func() { ReduceSum(x, f32Arg(2), true, false) })
}

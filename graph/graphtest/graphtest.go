// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package graphtest carries fixtures shared by tests across the module:
// argument shorthands, build-and-evaluate helpers and serialization
// round-trips. Helpers fail the test on any error, keeping call sites at
// one line per fixture.
package graphtest

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/interp"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
)

// Float32Arg declares a Float32 tensor argument. Dims follow
// types.MakeTensor: int-like for known extents, string for symbolic, nil
// for unknown; no dims declares a scalar.
func Float32Arg(name string, dims ...any) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Float32, dims...), name)
}

// Int64Arg declares an Int64 tensor argument, dims as in Float32Arg.
func Int64Arg(name string, dims ...any) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Int64, dims...), name)
}

// BoolArg declares a Bool tensor argument, dims as in Float32Arg.
func BoolArg(name string, dims ...any) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Bool, dims...), name)
}

// Model serializes g with default options, failing t on build errors.
func Model(t *testing.T, g *graph.Graph) *protos.ModelProto {
	t.Helper()
	m, err := g.ToONNXModel()
	require.NoError(t, err)
	return m
}

// MustModel serializes g with default options and panics on build errors,
// for fixtures assembled outside a test body.
func MustModel(g *graph.Graph) *protos.ModelProto {
	return must.M1(g.ToONNXModel())
}

// Run evaluates m on the reference evaluator, failing t on any error.
func Run(t *testing.T, m *protos.ModelProto, inputs map[string]*tensors.Tensor) map[string]*tensors.Tensor {
	t.Helper()
	out, err := interp.Run(m, inputs)
	require.NoError(t, err)
	return out
}

// BuildAndRun is Model followed by Run.
func BuildAndRun(t *testing.T, g *graph.Graph, inputs map[string]*tensors.Tensor) map[string]*tensors.Tensor {
	t.Helper()
	return Run(t, Model(t, g), inputs)
}

// ReEncode pushes m through a full byte round-trip and requires the
// re-encoded form to be byte-identical. It returns the decoded copy.
func ReEncode(t *testing.T, m *protos.ModelProto) *protos.ModelProto {
	t.Helper()
	raw := m.Marshal()
	back := &protos.ModelProto{}
	require.NoError(t, back.Unmarshal(raw))
	assert.Equal(t, raw, back.Marshal(), "re-encoding changed the bytes")
	return back
}

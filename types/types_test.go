// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package types

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeShape(t *testing.T) {
	s := MakeShape(2, int64(3), "batch", nil, KnownDim(0))
	require.True(t, s.HasRank())
	require.Equal(t, 5, s.Rank())
	assert.Equal(t, "[2 3 batch ? 0]", s.String())
	assert.True(t, s.Dim(2).IsSymbolic())
	assert.True(t, s.Dim(-2).IsUnknown())
	assert.EqualValues(t, 0, s.Dim(-1).Value())

	scalar := MakeShape()
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, "[]", scalar.String())

	unranked := Unranked()
	assert.False(t, unranked.HasRank())
	assert.Equal(t, -1, unranked.Rank())
	assert.Equal(t, "[...]", unranked.String())

	assert.Panics(t, func() { MakeShape(3.5) })
	assert.Panics(t, func() { KnownDim(-1) })
	assert.Panics(t, func() { SymbolicDim("") })
}

func TestShapeKnownAndNumElements(t *testing.T) {
	s := ShapeOfInts(2, 3, 4)
	dims, ok := s.Known()
	require.True(t, ok)
	assert.Equal(t, []int64{2, 3, 4}, dims)
	n, ok := s.NumElements()
	require.True(t, ok)
	assert.EqualValues(t, 24, n)

	_, ok = MakeShape(2, "n").Known()
	assert.False(t, ok)
	_, ok = Unranked().NumElements()
	assert.False(t, ok)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "Float32[2 batch ?]", MakeTensor(dtypes.Float32, 2, "batch", nil).String())
	assert.Equal(t, "Int64[]", MakeScalar(dtypes.Int64).String())
	assert.Equal(t, "Float64[...]", MakeUnranked(dtypes.Float64).String())
	assert.Equal(t, "Seq(Bool[2])", MakeSequence(MakeTensor(dtypes.Bool, 2)).String())
	assert.Equal(t, "Optional(Float32[])", MakeOptional(MakeScalar(dtypes.Float32)).String())
	assert.Equal(t, "Map(Int64, Float32[])", MakeMap(dtypes.Int64, MakeScalar(dtypes.Float32)).String())
}

func TestEqual(t *testing.T) {
	a := MakeTensor(dtypes.Float32, 2, "n")
	assert.True(t, Equal(a, MakeTensor(dtypes.Float32, 2, "n")))
	assert.False(t, Equal(a, MakeTensor(dtypes.Float32, 2, "m")))
	assert.False(t, Equal(a, MakeTensor(dtypes.Float64, 2, "n")))
	assert.False(t, Equal(a, MakeSequence(a)))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(a, nil))
}

func TestAccepts(t *testing.T) {
	concrete := MakeTensor(dtypes.Float32, 2, 3)

	// Unranked wants accept any shape of the same dtype.
	assert.True(t, Accepts(MakeUnranked(dtypes.Float32), concrete))
	assert.False(t, Accepts(MakeUnranked(dtypes.Float64), concrete))

	// Unknown dims accept anything, known dims only themselves.
	assert.True(t, Accepts(MakeTensor(dtypes.Float32, nil, 3), concrete))
	assert.False(t, Accepts(MakeTensor(dtypes.Float32, 2, 4), concrete))
	assert.False(t, Accepts(MakeTensor(dtypes.Float32, 2, 3, 4), concrete))

	// Symbolic dims bind to known extents or the identical symbol.
	assert.True(t, Accepts(MakeTensor(dtypes.Float32, "n", 3), concrete))
	assert.True(t, Accepts(MakeTensor(dtypes.Float32, "n", 3), MakeTensor(dtypes.Float32, "n", 3)))
	assert.False(t, Accepts(MakeTensor(dtypes.Float32, "n", 3), MakeTensor(dtypes.Float32, "m", 3)))
	assert.False(t, Accepts(MakeTensor(dtypes.Float32, "n", 3), MakeTensor(dtypes.Float32, nil, 3)))

	// A ranked want never accepts an unranked found.
	assert.False(t, Accepts(concrete, MakeUnranked(dtypes.Float32)))

	// nil (untyped) accepts anything but is accepted by nothing concrete.
	assert.True(t, Accepts(nil, concrete))
	assert.False(t, Accepts(concrete, nil))

	// Composites recurse.
	assert.True(t, Accepts(MakeSequence(MakeUnranked(dtypes.Float32)), MakeSequence(concrete)))
	assert.False(t, Accepts(MakeOptional(concrete), MakeSequence(concrete)))
}

func TestUnify(t *testing.T) {
	a := MakeTensor(dtypes.Float32, 2, 3, "n")
	b := MakeTensor(dtypes.Float32, 2, 4, "n")
	u, err := Unify(a, b)
	require.NoError(t, err)
	assert.Equal(t, "Float32[2 ? n]", u.String())

	// Rank mismatch generalizes to unranked.
	u, err = Unify(a, MakeTensor(dtypes.Float32, 2))
	require.NoError(t, err)
	assert.Equal(t, "Float32[...]", u.String())

	// nil unifies to the other side.
	u, err = Unify(nil, a)
	require.NoError(t, err)
	assert.True(t, Equal(a, u))

	_, err = Unify(a, MakeTensor(dtypes.Float64, 2, 3, "n"))
	assert.Error(t, err)
	_, err = Unify(a, MakeSequence(a))
	assert.Error(t, err)

	u, err = Unify(MakeSequence(a), MakeSequence(b))
	require.NoError(t, err)
	assert.Equal(t, "Seq(Float32[2 ? n])", u.String())
}

func TestProtoRoundTrip(t *testing.T) {
	cases := []Type{
		MakeTensor(dtypes.Float32, 2, "batch", nil),
		MakeScalar(dtypes.Int64),
		MakeUnranked(dtypes.BFloat16),
		MakeSequence(MakeTensor(dtypes.Float16, 7)),
		MakeOptional(MakeTensor(dtypes.Bool)),
		MakeMap(dtypes.Int32, MakeTensor(dtypes.Float64, "n")),
	}
	for _, typ := range cases {
		back, err := FromProto(typ.ToProto())
		require.NoError(t, err, "round trip of %s", typ)
		assert.True(t, Equal(typ, back), "round trip of %s gave %s", typ, back)
	}

	// nil round trips through a nil message.
	back, err := FromProto(nil)
	require.NoError(t, err)
	assert.Nil(t, back)
}

func TestDTypeMapping(t *testing.T) {
	assert.Equal(t, protos.DataTypeFloat, DTypeToProto(dtypes.Float32))
	assert.Equal(t, protos.DataTypeBfloat16, DTypeToProto(dtypes.BFloat16))
	assert.Panics(t, func() { DTypeToProto(dtypes.InvalidDType) })

	dtype, err := DTypeFromProto(protos.DataTypeInt64)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Int64, dtype)

	_, err = DTypeFromProto(protos.DataTypeString)
	assert.Error(t, err)
}

func TestFromProtoRejectsEmptyVariant(t *testing.T) {
	_, err := FromProto(&protos.TypeProto{})
	assert.Error(t, err)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromScalar(t *testing.T) {
	s := FromScalar(float32(1.5))
	assert.Equal(t, dtypes.Float32, s.DType())
	assert.True(t, s.IsScalar())
	assert.EqualValues(t, 1, s.Size())
	assert.Equal(t, float32(1.5), Scalar[float32](s))
}

func TestFromFlatDataAndDimensions(t *testing.T) {
	data := []int64{1, 2, 3, 4, 5, 6}
	m := FromFlatDataAndDimensions(data, 2, 3)
	assert.Equal(t, []int64{2, 3}, m.Dimensions())
	assert.EqualValues(t, 6, m.Size())
	assert.Equal(t, data, FlatData[int64](m))

	// The input slice is copied.
	data[0] = 99
	assert.EqualValues(t, 1, FlatData[int64](m)[0])

	assert.Panics(t, func() { FromFlatDataAndDimensions([]int64{1, 2}, 2, 3) })
	assert.Panics(t, func() { FromFlatDataAndDimensions([]int64{1}, -1) })
}

func TestFromValue(t *testing.T) {
	m := FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	assert.Equal(t, dtypes.Float32, m.DType())
	assert.Equal(t, []int64{2, 3}, m.Dimensions())
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, FlatData[float32](m))

	// Go int maps to Int64.
	v := FromValue([]int{7, 8})
	assert.Equal(t, dtypes.Int64, v.DType())
	assert.Equal(t, []int64{7, 8}, FlatData[int64](v))

	b := FromValue(true)
	assert.Equal(t, dtypes.Bool, b.DType())
	assert.True(t, Scalar[bool](b))

	assert.Panics(t, func() { FromValue([][]int{{1, 2}, {3}}) }, "non-rectangular")
	assert.Panics(t, func() { FromValue("strings are not tensors") })
}

func TestFlatDataTypeMismatch(t *testing.T) {
	m := FromScalar(int32(3))
	assert.Panics(t, func() { FlatData[float32](m) })
	assert.Panics(t, func() { Scalar[float32](FromFlatDataAndDimensions([]float32{1, 2}, 2)) })
}

func TestEqual(t *testing.T) {
	a := FromFlatDataAndDimensions([]float64{1, 2, 3}, 3)
	assert.True(t, a.Equal(FromFlatDataAndDimensions([]float64{1, 2, 3}, 3)))
	assert.False(t, a.Equal(FromFlatDataAndDimensions([]float64{1, 2, 4}, 3)))
	assert.False(t, a.Equal(FromFlatDataAndDimensions([]float64{1, 2, 3}, 3, 1)))
	assert.False(t, a.Equal(FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)))
	assert.False(t, a.Equal(nil))
}

func TestString(t *testing.T) {
	small := FromFlatDataAndDimensions([]int32{1, 2, 3}, 3)
	assert.Equal(t, "Int32[3]: [1 2 3]", small.String())

	large := Zeros(dtypes.Float32, 1000, 1000)
	s := large.String()
	assert.Contains(t, s, "Float32[1000 1000]")
	assert.Contains(t, s, "MB")
}

func TestProtoRoundTripRaw(t *testing.T) {
	cases := []*Tensor{
		FromFlatDataAndDimensions([]float32{1.5, -2, 0}, 3),
		FromFlatDataAndDimensions([]float64{1e-9, 2e9}, 2, 1),
		FromFlatDataAndDimensions([]int64{-1, 0, 1}, 3),
		FromFlatDataAndDimensions([]int8{-8, 7}, 2),
		FromFlatDataAndDimensions([]uint16{0, 65535}, 2),
		FromFlatDataAndDimensions([]bool{true, false, true}, 3),
		FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(0.5)}, 1),
		FromFlatDataAndDimensions([]bfloat16.BFloat16{bfloat16.FromFloat32(2)}, 1),
		FromFlatDataAndDimensions([]complex64{complex(1, -2)}, 1),
		FromScalar(uint64(1 << 63)),
	}
	for _, original := range cases {
		p := original.ToProto("t")
		require.NotEmpty(t, p.RawData, "tensor %s", original)
		back, err := FromProto(p)
		require.NoError(t, err, "tensor %s", original)
		assert.True(t, original.Equal(back), "round trip of %s gave %s", original, back)
	}
}

func TestFromProtoTypedFields(t *testing.T) {
	// float16 rides in int32_data in the typed encoding.
	h := float16.Fromfloat32(1.5)
	p := &protos.TensorProto{
		DataType:  protos.DataTypeFloat16,
		Dims:      []int64{1},
		Int32Data: []int32{int32(uint16(h))},
	}
	back, err := FromProto(p)
	require.NoError(t, err)
	assert.Equal(t, h, FlatData[float16.Float16](back)[0])

	p = &protos.TensorProto{DataType: protos.DataTypeFloat, Dims: []int64{2}, FloatData: []float32{3, 4}}
	back, err = FromProto(p)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, FlatData[float32](back))

	// uint32 rides in uint64_data.
	p = &protos.TensorProto{DataType: protos.DataTypeUint32, Dims: []int64{1}, Uint64Data: []uint64{7}}
	back, err = FromProto(p)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, FlatData[uint32](back))
}

func TestFromProtoErrors(t *testing.T) {
	// Wrong raw length.
	p := &protos.TensorProto{DataType: protos.DataTypeFloat, Dims: []int64{2}, RawData: []byte{0, 0, 0}}
	_, err := FromProto(p)
	assert.Error(t, err)

	// Missing payload.
	p = &protos.TensorProto{DataType: protos.DataTypeFloat, Dims: []int64{2}}
	_, err = FromProto(p)
	assert.Error(t, err)

	// String tensors have no DType.
	p = &protos.TensorProto{DataType: protos.DataTypeString, Dims: []int64{1}, StringData: [][]byte{[]byte("x")}}
	_, err = FromProto(p)
	assert.Error(t, err)

	// Negative dimension.
	p = &protos.TensorProto{DataType: protos.DataTypeFloat, Dims: []int64{-2}}
	_, err = FromProto(p)
	assert.Error(t, err)

	// Empty tensors need no payload.
	p = &protos.TensorProto{DataType: protos.DataTypeFloat, Dims: []int64{0, 3}}
	empty, err := FromProto(p)
	require.NoError(t, err)
	assert.EqualValues(t, 0, empty.Size())
}

func TestTypeOfTensor(t *testing.T) {
	m := FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)
	assert.Equal(t, "Float32[2 2]", m.Type().String())
}

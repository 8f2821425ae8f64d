// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ToProto serializes the tensor under the given name, always as raw
// little-endian data.
func (t *Tensor) ToProto(name string) *protos.TensorProto {
	return &protos.TensorProto{
		Name:     name,
		DataType: types.DTypeToProto(t.dtype),
		Dims:     t.Dimensions(),
		RawData:  t.rawBytes(),
	}
}

func (t *Tensor) rawBytes() []byte {
	switch data := t.data.(type) {
	case []bool:
		out := make([]byte, len(data))
		for i, v := range data {
			if v {
				out[i] = 1
			}
		}
		return out
	case []int8:
		out := make([]byte, len(data))
		for i, v := range data {
			out[i] = byte(v)
		}
		return out
	case []uint8:
		return append([]byte(nil), data...)
	case []int16:
		out := make([]byte, 2*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		return out
	case []uint16:
		out := make([]byte, 2*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint16(out[2*i:], v)
		}
		return out
	case []float16.Float16:
		out := make([]byte, 2*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		return out
	case []bfloat16.BFloat16:
		out := make([]byte, 2*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		return out
	case []int32:
		out := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
		}
		return out
	case []uint32:
		out := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(out[4*i:], v)
		}
		return out
	case []float32:
		out := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	case []int64:
		out := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(out[8*i:], uint64(v))
		}
		return out
	case []uint64:
		out := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(out[8*i:], v)
		}
		return out
	case []float64:
		out := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v))
		}
		return out
	case []complex64:
		out := make([]byte, 8*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(out[8*i:], math.Float32bits(real(v)))
			binary.LittleEndian.PutUint32(out[8*i+4:], math.Float32bits(imag(v)))
		}
		return out
	case []complex128:
		out := make([]byte, 16*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint64(out[16*i:], math.Float64bits(real(v)))
			binary.LittleEndian.PutUint64(out[16*i+8:], math.Float64bits(imag(v)))
		}
		return out
	}
	panic("tensors: unreachable raw encoding")
}

// FromProto deserializes a tensor message, accepting both raw and typed
// data encodings.
func FromProto(p *protos.TensorProto) (*Tensor, error) {
	dtype, err := types.DTypeFromProto(p.DataType)
	if err != nil {
		return nil, err
	}
	size := int64(1)
	for i, d := range p.Dims {
		if d < 0 {
			return nil, errors.Errorf("tensor %q dimension #%d is negative (%d)", p.Name, i, d)
		}
		size *= d
	}
	t := Zeros(dtype, p.Dims...)
	if size == 0 {
		return t, nil
	}
	if len(p.RawData) > 0 {
		if err := t.fillFromRaw(p.RawData); err != nil {
			return nil, errors.WithMessagef(err, "tensor %q", p.Name)
		}
		return t, nil
	}
	if err := t.fillFromTyped(p); err != nil {
		return nil, errors.WithMessagef(err, "tensor %q", p.Name)
	}
	return t, nil
}

func (t *Tensor) fillFromRaw(raw []byte) error {
	want := t.Memory()
	if int64(len(raw)) != want {
		return errors.Errorf("raw data has %d bytes, %s expects %d", len(raw), t.Type(), want)
	}
	switch data := t.data.(type) {
	case []bool:
		for i := range data {
			data[i] = raw[i] != 0
		}
	case []int8:
		for i := range data {
			data[i] = int8(raw[i])
		}
	case []uint8:
		copy(data, raw)
	case []int16:
		for i := range data {
			data[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
		}
	case []uint16:
		for i := range data {
			data[i] = binary.LittleEndian.Uint16(raw[2*i:])
		}
	case []float16.Float16:
		for i := range data {
			data[i] = float16.Float16(binary.LittleEndian.Uint16(raw[2*i:]))
		}
	case []bfloat16.BFloat16:
		for i := range data {
			data[i] = bfloat16.BFloat16(binary.LittleEndian.Uint16(raw[2*i:]))
		}
	case []int32:
		for i := range data {
			data[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case []uint32:
		for i := range data {
			data[i] = binary.LittleEndian.Uint32(raw[4*i:])
		}
	case []float32:
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case []int64:
		for i := range data {
			data[i] = int64(binary.LittleEndian.Uint64(raw[8*i:]))
		}
	case []uint64:
		for i := range data {
			data[i] = binary.LittleEndian.Uint64(raw[8*i:])
		}
	case []float64:
		for i := range data {
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
	case []complex64:
		for i := range data {
			re := math.Float32frombits(binary.LittleEndian.Uint32(raw[8*i:]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(raw[8*i+4:]))
			data[i] = complex(re, im)
		}
	case []complex128:
		for i := range data {
			re := math.Float64frombits(binary.LittleEndian.Uint64(raw[16*i:]))
			im := math.Float64frombits(binary.LittleEndian.Uint64(raw[16*i+8:]))
			data[i] = complex(re, im)
		}
	}
	return nil
}

// fillFromTyped reads the per-type repeated fields of the ONNX encoding:
// small integers, booleans and the 16-bit floats ride in int32_data,
// complex values in interleaved float_data/double_data.
func (t *Tensor) fillFromTyped(p *protos.TensorProto) error {
	size := t.Size()
	checkLen := func(name string, got int64) error {
		if got != size {
			return errors.Errorf("%s has %d elements, %s expects %d", name, got, t.Type(), size)
		}
		return nil
	}
	switch data := t.data.(type) {
	case []float32:
		if err := checkLen("float_data", int64(len(p.FloatData))); err != nil {
			return err
		}
		copy(data, p.FloatData)
	case []float64:
		if err := checkLen("double_data", int64(len(p.DoubleData))); err != nil {
			return err
		}
		copy(data, p.DoubleData)
	case []int64:
		if err := checkLen("int64_data", int64(len(p.Int64Data))); err != nil {
			return err
		}
		copy(data, p.Int64Data)
	case []uint64:
		if err := checkLen("uint64_data", int64(len(p.Uint64Data))); err != nil {
			return err
		}
		copy(data, p.Uint64Data)
	case []uint32:
		if err := checkLen("uint64_data", int64(len(p.Uint64Data))); err != nil {
			return err
		}
		for i, v := range p.Uint64Data {
			data[i] = uint32(v)
		}
	case []bool:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		for i, v := range p.Int32Data {
			data[i] = v != 0
		}
	case []int8:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		for i, v := range p.Int32Data {
			data[i] = int8(v)
		}
	case []int16:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		for i, v := range p.Int32Data {
			data[i] = int16(v)
		}
	case []int32:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		copy(data, p.Int32Data)
	case []uint8:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		for i, v := range p.Int32Data {
			data[i] = uint8(v)
		}
	case []uint16:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		for i, v := range p.Int32Data {
			data[i] = uint16(v)
		}
	case []float16.Float16:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		for i, v := range p.Int32Data {
			data[i] = float16.Float16(uint16(v))
		}
	case []bfloat16.BFloat16:
		if err := checkLen("int32_data", int64(len(p.Int32Data))); err != nil {
			return err
		}
		for i, v := range p.Int32Data {
			data[i] = bfloat16.BFloat16(uint16(v))
		}
	case []complex64:
		if err := checkLen("float_data", int64(len(p.FloatData)/2)); err != nil {
			return err
		}
		for i := range data {
			data[i] = complex(p.FloatData[2*i], p.FloatData[2*i+1])
		}
	case []complex128:
		if err := checkLen("double_data", int64(len(p.DoubleData)/2)); err != nil {
			return err
		}
		for i := range data {
			data[i] = complex(p.DoubleData[2*i], p.DoubleData[2*i+1])
		}
	}
	return nil
}

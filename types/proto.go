// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package types

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/pkg/errors"
)

var dtypeToProto = map[dtypes.DType]protos.DataType{
	dtypes.Float32:    protos.DataTypeFloat,
	dtypes.Uint8:      protos.DataTypeUint8,
	dtypes.Int8:       protos.DataTypeInt8,
	dtypes.Uint16:     protos.DataTypeUint16,
	dtypes.Int16:      protos.DataTypeInt16,
	dtypes.Int32:      protos.DataTypeInt32,
	dtypes.Int64:      protos.DataTypeInt64,
	dtypes.Bool:       protos.DataTypeBool,
	dtypes.Float16:    protos.DataTypeFloat16,
	dtypes.Float64:    protos.DataTypeDouble,
	dtypes.Uint32:     protos.DataTypeUint32,
	dtypes.Uint64:     protos.DataTypeUint64,
	dtypes.Complex64:  protos.DataTypeComplex64,
	dtypes.Complex128: protos.DataTypeComplex128,
	dtypes.BFloat16:   protos.DataTypeBfloat16,
}

var dtypeFromProto = func() map[protos.DataType]dtypes.DType {
	m := make(map[protos.DataType]dtypes.DType, len(dtypeToProto))
	for dtype, code := range dtypeToProto {
		m[code] = dtype
	}
	return m
}()

// DTypeToProto converts a DType to its serialized element-type code. It
// panics on data types with no serialized form (see package doc).
func DTypeToProto(dtype dtypes.DType) protos.DataType {
	code, ok := dtypeToProto[dtype]
	if !ok {
		exceptions.Panicf("types: data type %s has no serialized form", dtype)
	}
	return code
}

// DTypeFromProto converts a serialized element-type code to a DType.
// Codes with no DType counterpart (notably STRING) are errors.
func DTypeFromProto(code protos.DataType) (dtypes.DType, error) {
	dtype, ok := dtypeFromProto[code]
	if !ok {
		return dtypes.InvalidDType, errors.Errorf("unsupported tensor element type %s (%d)", code, code)
	}
	return dtype, nil
}

// ToProto converts the tensor type to its serialized form. An unranked
// shape serializes without a shape message.
func (t Tensor) ToProto() *protos.TypeProto {
	tt := &protos.TypeProto_TensorType{ElemType: DTypeToProto(t.DType)}
	if t.Shape.HasRank() {
		tt.Shape = shapeToProto(t.Shape)
	}
	return &protos.TypeProto{TensorType: tt}
}

// ToProto converts the sequence type to its serialized form.
func (s Sequence) ToProto() *protos.TypeProto {
	return &protos.TypeProto{SequenceType: &protos.TypeProto_SequenceType{ElemType: s.Elem.ToProto()}}
}

// ToProto converts the optional type to its serialized form.
func (o Optional) ToProto() *protos.TypeProto {
	return &protos.TypeProto{OptionalType: &protos.TypeProto_OptionalType{ElemType: o.Elem.ToProto()}}
}

// ToProto converts the map type to its serialized form.
func (m Map) ToProto() *protos.TypeProto {
	return &protos.TypeProto{MapType: &protos.TypeProto_MapType{
		KeyType:   DTypeToProto(m.Key),
		ValueType: m.Value.ToProto(),
	}}
}

func shapeToProto(s Shape) *protos.TensorShapeProto {
	out := &protos.TensorShapeProto{}
	if s.Rank() > 0 {
		out.Dim = make([]*protos.TensorShapeProto_Dimension, s.Rank())
	}
	for i, d := range s.dims {
		dim := &protos.TensorShapeProto_Dimension{}
		switch d.kind {
		case dimKnown:
			v := d.value
			dim.DimValue = &v
		case dimSymbolic:
			p := d.param
			dim.DimParam = &p
		}
		out.Dim[i] = dim
	}
	return out
}

// FromProto converts a serialized type message back to a Type. A nil
// message yields the nil (untyped) Type.
func FromProto(p *protos.TypeProto) (Type, error) {
	if p == nil {
		return nil, nil
	}
	switch {
	case p.TensorType != nil:
		dtype, err := DTypeFromProto(p.TensorType.ElemType)
		if err != nil {
			return nil, err
		}
		t := Tensor{DType: dtype}
		if p.TensorType.Shape != nil {
			t.Shape = shapeFromProto(p.TensorType.Shape)
		}
		return t, nil
	case p.SequenceType != nil:
		elem, err := FromProto(p.SequenceType.ElemType)
		if err != nil {
			return nil, err
		}
		if elem == nil {
			return nil, errors.New("sequence type without element type")
		}
		return Sequence{Elem: elem}, nil
	case p.OptionalType != nil:
		elem, err := FromProto(p.OptionalType.ElemType)
		if err != nil {
			return nil, err
		}
		if elem == nil {
			return nil, errors.New("optional type without element type")
		}
		return Optional{Elem: elem}, nil
	case p.MapType != nil:
		key, err := DTypeFromProto(p.MapType.KeyType)
		if err != nil {
			return nil, err
		}
		value, err := FromProto(p.MapType.ValueType)
		if err != nil {
			return nil, err
		}
		if value == nil {
			return nil, errors.New("map type without value type")
		}
		if !key.IsInt() {
			return nil, errors.Errorf("map key type must be integral, got %s", key)
		}
		return Map{Key: key, Value: value}, nil
	}
	return nil, errors.New("type message with no variant set")
}

func shapeFromProto(p *protos.TensorShapeProto) Shape {
	s := Shape{hasRank: true, dims: make([]Dim, len(p.Dim))}
	for i, d := range p.Dim {
		switch {
		case d.DimValue != nil && *d.DimValue >= 0:
			s.dims[i] = KnownDim(*d.DimValue)
		case d.DimParam != nil && *d.DimParam != "":
			s.dims[i] = SymbolicDim(*d.DimParam)
		default:
			s.dims[i] = UnknownDim()
		}
	}
	return s
}

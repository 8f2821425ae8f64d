// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package protos

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Parsing accepts any field order and, for repeated scalars, both packed
// and unpacked encodings. Unknown fields are skipped, so models carrying
// parts of onnx.proto3 outside this package's subset still load.

type unmarshaler interface {
	Unmarshal(data []byte) error
}

// walkFields drives a field-by-field parse: visit returns the number of
// bytes it consumed, or 0 to have the field skipped as unknown.
func walkFields(msg string, data []byte, visit func(num protowire.Number, typ protowire.Type, data []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.Errorf("corrupt %s: bad field tag", msg)
		}
		data = data[n:]
		used, err := visit(num, typ, data)
		if err != nil {
			return errors.WithMessagef(err, "in %s field %d", msg, num)
		}
		if used == 0 {
			used = protowire.ConsumeFieldValue(num, typ, data)
			if used < 0 {
				return errors.Errorf("corrupt %s: bad field %d", msg, num)
			}
		}
		data = data[used:]
	}
	return nil
}

func consumeVarint(data []byte) (uint64, int, error) {
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, errors.New("bad varint")
	}
	return v, n, nil
}

// consumeRawBytes copies the payload: the input buffer is caller-owned.
func consumeRawBytes(data []byte) ([]byte, int, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, errors.New("bad length-delimited field")
	}
	return append([]byte(nil), v...), n, nil
}

func consumeString(data []byte) (string, int, error) {
	v, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return "", 0, errors.New("bad string field")
	}
	return string(v), n, nil
}

func consumeMessage(data []byte, m unmarshaler) (int, error) {
	payload, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return 0, errors.New("bad embedded message")
	}
	if err := m.Unmarshal(payload); err != nil {
		return 0, err
	}
	return n, nil
}

func consumeRepeatedInt64(typ protowire.Type, data []byte, dst *[]int64) (int, error) {
	if typ == protowire.BytesType {
		payload, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return 0, errors.New("bad packed int64 field")
		}
		for len(payload) > 0 {
			v, k, err := consumeVarint(payload)
			if err != nil {
				return 0, err
			}
			*dst = append(*dst, int64(v))
			payload = payload[k:]
		}
		return n, nil
	}
	v, n, err := consumeVarint(data)
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, int64(v))
	return n, nil
}

func consumeRepeatedInt32(typ protowire.Type, data []byte, dst *[]int32) (int, error) {
	var tmp []int64
	n, err := consumeRepeatedInt64(typ, data, &tmp)
	if err != nil {
		return 0, err
	}
	for _, v := range tmp {
		*dst = append(*dst, int32(v))
	}
	return n, nil
}

func consumeRepeatedUint64(typ protowire.Type, data []byte, dst *[]uint64) (int, error) {
	if typ == protowire.BytesType {
		payload, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return 0, errors.New("bad packed uint64 field")
		}
		for len(payload) > 0 {
			v, k, err := consumeVarint(payload)
			if err != nil {
				return 0, err
			}
			*dst = append(*dst, v)
			payload = payload[k:]
		}
		return n, nil
	}
	v, n, err := consumeVarint(data)
	if err != nil {
		return 0, err
	}
	*dst = append(*dst, v)
	return n, nil
}

func consumeRepeatedFloat(typ protowire.Type, data []byte, dst *[]float32) (int, error) {
	if typ == protowire.BytesType {
		payload, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return 0, errors.New("bad packed float field")
		}
		for len(payload) > 0 {
			v, k := protowire.ConsumeFixed32(payload)
			if k < 0 {
				return 0, errors.New("bad packed float element")
			}
			*dst = append(*dst, math.Float32frombits(v))
			payload = payload[k:]
		}
		return n, nil
	}
	v, n := protowire.ConsumeFixed32(data)
	if n < 0 {
		return 0, errors.New("bad float field")
	}
	*dst = append(*dst, math.Float32frombits(v))
	return n, nil
}

func consumeRepeatedDouble(typ protowire.Type, data []byte, dst *[]float64) (int, error) {
	if typ == protowire.BytesType {
		payload, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return 0, errors.New("bad packed double field")
		}
		for len(payload) > 0 {
			v, k := protowire.ConsumeFixed64(payload)
			if k < 0 {
				return 0, errors.New("bad packed double element")
			}
			*dst = append(*dst, math.Float64frombits(v))
			payload = payload[k:]
		}
		return n, nil
	}
	v, n := protowire.ConsumeFixed64(data)
	if n < 0 {
		return 0, errors.New("bad double field")
	}
	*dst = append(*dst, math.Float64frombits(v))
	return n, nil
}

// Unmarshal parses ONNX wire format into m, replacing scalar fields and
// appending to repeated ones.
func (m *TensorProto) Unmarshal(data []byte) error {
	return walkFields("TensorProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			return consumeRepeatedInt64(typ, data, &m.Dims)
		case 2:
			v, n, err := consumeVarint(data)
			m.DataType = DataType(v)
			return n, err
		case 4:
			return consumeRepeatedFloat(typ, data, &m.FloatData)
		case 5:
			return consumeRepeatedInt32(typ, data, &m.Int32Data)
		case 6:
			v, n, err := consumeRawBytes(data)
			m.StringData = append(m.StringData, v)
			return n, err
		case 7:
			return consumeRepeatedInt64(typ, data, &m.Int64Data)
		case 8:
			v, n, err := consumeString(data)
			m.Name = v
			return n, err
		case 9:
			v, n, err := consumeRawBytes(data)
			m.RawData = v
			return n, err
		case 10:
			return consumeRepeatedDouble(typ, data, &m.DoubleData)
		case 11:
			return consumeRepeatedUint64(typ, data, &m.Uint64Data)
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *TensorShapeProto) Unmarshal(data []byte) error {
	return walkFields("TensorShapeProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		if num == 1 {
			d := &TensorShapeProto_Dimension{}
			n, err := consumeMessage(data, d)
			m.Dim = append(m.Dim, d)
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *TensorShapeProto_Dimension) Unmarshal(data []byte) error {
	return walkFields("TensorShapeProto.Dimension", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(data)
			dim := int64(v)
			m.DimValue, m.DimParam = &dim, nil
			return n, err
		case 2:
			v, n, err := consumeString(data)
			m.DimValue, m.DimParam = nil, &v
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *TypeProto) Unmarshal(data []byte) error {
	return walkFields("TypeProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			m.TensorType = &TypeProto_TensorType{}
			return consumeMessage(data, m.TensorType)
		case 4:
			m.SequenceType = &TypeProto_SequenceType{}
			return consumeMessage(data, m.SequenceType)
		case 5:
			m.MapType = &TypeProto_MapType{}
			return consumeMessage(data, m.MapType)
		case 9:
			m.OptionalType = &TypeProto_OptionalType{}
			return consumeMessage(data, m.OptionalType)
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *TypeProto_TensorType) Unmarshal(data []byte) error {
	return walkFields("TypeProto.Tensor", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(data)
			m.ElemType = DataType(v)
			return n, err
		case 2:
			m.Shape = &TensorShapeProto{}
			return consumeMessage(data, m.Shape)
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *TypeProto_SequenceType) Unmarshal(data []byte) error {
	return walkFields("TypeProto.Sequence", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		if num == 1 {
			m.ElemType = &TypeProto{}
			return consumeMessage(data, m.ElemType)
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *TypeProto_MapType) Unmarshal(data []byte) error {
	return walkFields("TypeProto.Map", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(data)
			m.KeyType = DataType(v)
			return n, err
		case 2:
			m.ValueType = &TypeProto{}
			return consumeMessage(data, m.ValueType)
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *TypeProto_OptionalType) Unmarshal(data []byte) error {
	return walkFields("TypeProto.Optional", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		if num == 1 {
			m.ElemType = &TypeProto{}
			return consumeMessage(data, m.ElemType)
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *ValueInfoProto) Unmarshal(data []byte) error {
	return walkFields("ValueInfoProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			m.Name = v
			return n, err
		case 2:
			m.Type = &TypeProto{}
			return consumeMessage(data, m.Type)
		case 3:
			v, n, err := consumeString(data)
			m.DocString = v
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *AttributeProto) Unmarshal(data []byte) error {
	return walkFields("AttributeProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			m.Name = v
			return n, err
		case 2:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return 0, errors.New("bad float field")
			}
			m.F = math.Float32frombits(v)
			return n, nil
		case 3:
			v, n, err := consumeVarint(data)
			m.I = int64(v)
			return n, err
		case 4:
			v, n, err := consumeRawBytes(data)
			m.S = v
			return n, err
		case 5:
			m.T = &TensorProto{}
			return consumeMessage(data, m.T)
		case 6:
			m.G = &GraphProto{}
			return consumeMessage(data, m.G)
		case 7:
			return consumeRepeatedFloat(typ, data, &m.Floats)
		case 8:
			return consumeRepeatedInt64(typ, data, &m.Ints)
		case 9:
			v, n, err := consumeRawBytes(data)
			m.Strings = append(m.Strings, v)
			return n, err
		case 10:
			t := &TensorProto{}
			n, err := consumeMessage(data, t)
			m.Tensors = append(m.Tensors, t)
			return n, err
		case 11:
			g := &GraphProto{}
			n, err := consumeMessage(data, g)
			m.Graphs = append(m.Graphs, g)
			return n, err
		case 13:
			v, n, err := consumeString(data)
			m.DocString = v
			return n, err
		case 14:
			m.TP = &TypeProto{}
			return consumeMessage(data, m.TP)
		case 15:
			tp := &TypeProto{}
			n, err := consumeMessage(data, tp)
			m.TypeProtos = append(m.TypeProtos, tp)
			return n, err
		case 20:
			v, n, err := consumeVarint(data)
			m.Type = AttributeType(v)
			return n, err
		case 21:
			v, n, err := consumeString(data)
			m.RefAttrName = v
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *NodeProto) Unmarshal(data []byte) error {
	return walkFields("NodeProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			m.Input = append(m.Input, v)
			return n, err
		case 2:
			v, n, err := consumeString(data)
			m.Output = append(m.Output, v)
			return n, err
		case 3:
			v, n, err := consumeString(data)
			m.Name = v
			return n, err
		case 4:
			v, n, err := consumeString(data)
			m.OpType = v
			return n, err
		case 5:
			a := &AttributeProto{}
			n, err := consumeMessage(data, a)
			m.Attribute = append(m.Attribute, a)
			return n, err
		case 6:
			v, n, err := consumeString(data)
			m.DocString = v
			return n, err
		case 7:
			v, n, err := consumeString(data)
			m.Domain = v
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *GraphProto) Unmarshal(data []byte) error {
	return walkFields("GraphProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			n := &NodeProto{}
			used, err := consumeMessage(data, n)
			m.Node = append(m.Node, n)
			return used, err
		case 2:
			v, n, err := consumeString(data)
			m.Name = v
			return n, err
		case 5:
			t := &TensorProto{}
			n, err := consumeMessage(data, t)
			m.Initializer = append(m.Initializer, t)
			return n, err
		case 10:
			v, n, err := consumeString(data)
			m.DocString = v
			return n, err
		case 11:
			v := &ValueInfoProto{}
			n, err := consumeMessage(data, v)
			m.Input = append(m.Input, v)
			return n, err
		case 12:
			v := &ValueInfoProto{}
			n, err := consumeMessage(data, v)
			m.Output = append(m.Output, v)
			return n, err
		case 13:
			v := &ValueInfoProto{}
			n, err := consumeMessage(data, v)
			m.ValueInfo = append(m.ValueInfo, v)
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *OperatorSetIdProto) Unmarshal(data []byte) error {
	return walkFields("OperatorSetIdProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			m.Domain = v
			return n, err
		case 2:
			v, n, err := consumeVarint(data)
			m.Version = int64(v)
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *FunctionProto) Unmarshal(data []byte) error {
	return walkFields("FunctionProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeString(data)
			m.Name = v
			return n, err
		case 4:
			v, n, err := consumeString(data)
			m.Input = append(m.Input, v)
			return n, err
		case 5:
			v, n, err := consumeString(data)
			m.Output = append(m.Output, v)
			return n, err
		case 6:
			v, n, err := consumeString(data)
			m.Attribute = append(m.Attribute, v)
			return n, err
		case 7:
			node := &NodeProto{}
			n, err := consumeMessage(data, node)
			m.Node = append(m.Node, node)
			return n, err
		case 8:
			v, n, err := consumeString(data)
			m.DocString = v
			return n, err
		case 9:
			o := &OperatorSetIdProto{}
			n, err := consumeMessage(data, o)
			m.OpsetImport = append(m.OpsetImport, o)
			return n, err
		case 10:
			v, n, err := consumeString(data)
			m.Domain = v
			return n, err
		case 11:
			a := &AttributeProto{}
			n, err := consumeMessage(data, a)
			m.AttributeProto = append(m.AttributeProto, a)
			return n, err
		}
		return 0, nil
	})
}

// Unmarshal parses ONNX wire format into m.
func (m *ModelProto) Unmarshal(data []byte) error {
	return walkFields("ModelProto", data, func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n, err := consumeVarint(data)
			m.IrVersion = int64(v)
			return n, err
		case 2:
			v, n, err := consumeString(data)
			m.ProducerName = v
			return n, err
		case 3:
			v, n, err := consumeString(data)
			m.ProducerVersion = v
			return n, err
		case 4:
			v, n, err := consumeString(data)
			m.Domain = v
			return n, err
		case 5:
			v, n, err := consumeVarint(data)
			m.ModelVersion = int64(v)
			return n, err
		case 6:
			v, n, err := consumeString(data)
			m.DocString = v
			return n, err
		case 7:
			m.Graph = &GraphProto{}
			return consumeMessage(data, m.Graph)
		case 8:
			o := &OperatorSetIdProto{}
			n, err := consumeMessage(data, o)
			m.OpsetImport = append(m.OpsetImport, o)
			return n, err
		case 25:
			f := &FunctionProto{}
			n, err := consumeMessage(data, f)
			m.Functions = append(m.Functions, f)
			return n, err
		}
		return 0, nil
	})
}

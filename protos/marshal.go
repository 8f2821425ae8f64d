// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package protos

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers below follow onnx.proto3. Scalar fields use proto3
// presence rules (zero values are omitted); oneof members backed by
// pointers are emitted whenever set, including zero values.

func appendVarintField(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendStringField(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessageField(b []byte, num protowire.Number, payload []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, payload)
}

func appendPackedInt64s(b []byte, num protowire.Number, vals []int64) []byte {
	if len(vals) == 0 {
		return b
	}
	payload := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		payload = protowire.AppendVarint(payload, uint64(v))
	}
	return appendMessageField(b, num, payload)
}

func appendPackedInt32s(b []byte, num protowire.Number, vals []int32) []byte {
	if len(vals) == 0 {
		return b
	}
	payload := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		payload = protowire.AppendVarint(payload, uint64(v))
	}
	return appendMessageField(b, num, payload)
}

func appendPackedUint64s(b []byte, num protowire.Number, vals []uint64) []byte {
	if len(vals) == 0 {
		return b
	}
	payload := make([]byte, 0, 2*len(vals))
	for _, v := range vals {
		payload = protowire.AppendVarint(payload, v)
	}
	return appendMessageField(b, num, payload)
}

func appendPackedFloats(b []byte, num protowire.Number, vals []float32) []byte {
	if len(vals) == 0 {
		return b
	}
	payload := make([]byte, 0, 4*len(vals))
	for _, v := range vals {
		payload = protowire.AppendFixed32(payload, math.Float32bits(v))
	}
	return appendMessageField(b, num, payload)
}

func appendPackedDoubles(b []byte, num protowire.Number, vals []float64) []byte {
	if len(vals) == 0 {
		return b
	}
	payload := make([]byte, 0, 8*len(vals))
	for _, v := range vals {
		payload = protowire.AppendFixed64(payload, math.Float64bits(v))
	}
	return appendMessageField(b, num, payload)
}

// Marshal serializes the tensor in ONNX wire format.
func (m *TensorProto) Marshal() []byte { return m.appendTo(nil) }

func (m *TensorProto) appendTo(b []byte) []byte {
	b = appendPackedInt64s(b, 1, m.Dims)
	b = appendVarintField(b, 2, int64(m.DataType))
	b = appendPackedFloats(b, 4, m.FloatData)
	b = appendPackedInt32s(b, 5, m.Int32Data)
	for _, s := range m.StringData {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendBytes(b, s)
	}
	b = appendPackedInt64s(b, 7, m.Int64Data)
	b = appendStringField(b, 8, m.Name)
	b = appendBytesField(b, 9, m.RawData)
	b = appendPackedDoubles(b, 10, m.DoubleData)
	b = appendPackedUint64s(b, 11, m.Uint64Data)
	return b
}

func (m *TensorShapeProto) appendTo(b []byte) []byte {
	for _, d := range m.Dim {
		b = appendMessageField(b, 1, d.appendTo(nil))
	}
	return b
}

func (m *TensorShapeProto_Dimension) appendTo(b []byte) []byte {
	switch {
	case m.DimValue != nil:
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*m.DimValue))
	case m.DimParam != nil:
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, *m.DimParam)
	}
	return b
}

// Marshal serializes the type in ONNX wire format.
func (m *TypeProto) Marshal() []byte { return m.appendTo(nil) }

func (m *TypeProto) appendTo(b []byte) []byte {
	if m.TensorType != nil {
		b = appendMessageField(b, 1, m.TensorType.appendTo(nil))
	}
	if m.SequenceType != nil {
		b = appendMessageField(b, 4, m.SequenceType.appendTo(nil))
	}
	if m.MapType != nil {
		b = appendMessageField(b, 5, m.MapType.appendTo(nil))
	}
	if m.OptionalType != nil {
		b = appendMessageField(b, 9, m.OptionalType.appendTo(nil))
	}
	return b
}

func (m *TypeProto_TensorType) appendTo(b []byte) []byte {
	b = appendVarintField(b, 1, int64(m.ElemType))
	if m.Shape != nil {
		b = appendMessageField(b, 2, m.Shape.appendTo(nil))
	}
	return b
}

func (m *TypeProto_SequenceType) appendTo(b []byte) []byte {
	if m.ElemType != nil {
		b = appendMessageField(b, 1, m.ElemType.appendTo(nil))
	}
	return b
}

func (m *TypeProto_MapType) appendTo(b []byte) []byte {
	b = appendVarintField(b, 1, int64(m.KeyType))
	if m.ValueType != nil {
		b = appendMessageField(b, 2, m.ValueType.appendTo(nil))
	}
	return b
}

func (m *TypeProto_OptionalType) appendTo(b []byte) []byte {
	if m.ElemType != nil {
		b = appendMessageField(b, 1, m.ElemType.appendTo(nil))
	}
	return b
}

func (m *ValueInfoProto) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.Name)
	if m.Type != nil {
		b = appendMessageField(b, 2, m.Type.appendTo(nil))
	}
	b = appendStringField(b, 3, m.DocString)
	return b
}

// Marshal serializes the attribute in ONNX wire format.
func (m *AttributeProto) Marshal() []byte { return m.appendTo(nil) }

func (m *AttributeProto) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.Name)
	if m.F != 0 {
		b = protowire.AppendTag(b, 2, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, math.Float32bits(m.F))
	}
	b = appendVarintField(b, 3, m.I)
	b = appendBytesField(b, 4, m.S)
	if m.T != nil {
		b = appendMessageField(b, 5, m.T.appendTo(nil))
	}
	if m.G != nil {
		b = appendMessageField(b, 6, m.G.appendTo(nil))
	}
	b = appendPackedFloats(b, 7, m.Floats)
	b = appendPackedInt64s(b, 8, m.Ints)
	for _, s := range m.Strings {
		b = protowire.AppendTag(b, 9, protowire.BytesType)
		b = protowire.AppendBytes(b, s)
	}
	for _, t := range m.Tensors {
		b = appendMessageField(b, 10, t.appendTo(nil))
	}
	for _, g := range m.Graphs {
		b = appendMessageField(b, 11, g.appendTo(nil))
	}
	b = appendStringField(b, 13, m.DocString)
	if m.TP != nil {
		b = appendMessageField(b, 14, m.TP.appendTo(nil))
	}
	for _, tp := range m.TypeProtos {
		b = appendMessageField(b, 15, tp.appendTo(nil))
	}
	b = appendVarintField(b, 20, int64(m.Type))
	b = appendStringField(b, 21, m.RefAttrName)
	return b
}

// Marshal serializes the node in ONNX wire format.
func (m *NodeProto) Marshal() []byte { return m.appendTo(nil) }

func (m *NodeProto) appendTo(b []byte) []byte {
	for _, s := range m.Input {
		// Empty input names mark omitted optional inputs and must survive
		// the round trip, so they are emitted unconditionally.
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	for _, s := range m.Output {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	b = appendStringField(b, 3, m.Name)
	b = appendStringField(b, 4, m.OpType)
	for _, a := range m.Attribute {
		b = appendMessageField(b, 5, a.appendTo(nil))
	}
	b = appendStringField(b, 6, m.DocString)
	b = appendStringField(b, 7, m.Domain)
	return b
}

// Marshal serializes the graph in ONNX wire format.
func (m *GraphProto) Marshal() []byte { return m.appendTo(nil) }

func (m *GraphProto) appendTo(b []byte) []byte {
	for _, n := range m.Node {
		b = appendMessageField(b, 1, n.appendTo(nil))
	}
	b = appendStringField(b, 2, m.Name)
	for _, t := range m.Initializer {
		b = appendMessageField(b, 5, t.appendTo(nil))
	}
	b = appendStringField(b, 10, m.DocString)
	for _, v := range m.Input {
		b = appendMessageField(b, 11, v.appendTo(nil))
	}
	for _, v := range m.Output {
		b = appendMessageField(b, 12, v.appendTo(nil))
	}
	for _, v := range m.ValueInfo {
		b = appendMessageField(b, 13, v.appendTo(nil))
	}
	return b
}

func (m *OperatorSetIdProto) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.Domain)
	b = appendVarintField(b, 2, m.Version)
	return b
}

// Marshal serializes the function in ONNX wire format.
func (m *FunctionProto) Marshal() []byte { return m.appendTo(nil) }

func (m *FunctionProto) appendTo(b []byte) []byte {
	b = appendStringField(b, 1, m.Name)
	for _, s := range m.Input {
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	for _, s := range m.Output {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	for _, s := range m.Attribute {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	for _, n := range m.Node {
		b = appendMessageField(b, 7, n.appendTo(nil))
	}
	b = appendStringField(b, 8, m.DocString)
	for _, o := range m.OpsetImport {
		b = appendMessageField(b, 9, o.appendTo(nil))
	}
	b = appendStringField(b, 10, m.Domain)
	for _, a := range m.AttributeProto {
		b = appendMessageField(b, 11, a.appendTo(nil))
	}
	return b
}

// Marshal serializes the model in ONNX wire format. The result is
// deterministic: equal messages produce equal bytes.
func (m *ModelProto) Marshal() []byte { return m.appendTo(nil) }

func (m *ModelProto) appendTo(b []byte) []byte {
	b = appendVarintField(b, 1, m.IrVersion)
	b = appendStringField(b, 2, m.ProducerName)
	b = appendStringField(b, 3, m.ProducerVersion)
	b = appendStringField(b, 4, m.Domain)
	b = appendVarintField(b, 5, m.ModelVersion)
	b = appendStringField(b, 6, m.DocString)
	if m.Graph != nil {
		b = appendMessageField(b, 7, m.Graph.appendTo(nil))
	}
	for _, o := range m.OpsetImport {
		b = appendMessageField(b, 8, o.appendTo(nil))
	}
	for _, f := range m.Functions {
		b = appendMessageField(b, 25, f.appendTo(nil))
	}
	return b
}

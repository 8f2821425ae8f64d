// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package protos holds the ONNX interchange messages emitted by this library.
//
// The structs are hand-written mirrors of the messages defined in onnx.proto3,
// restricted to the subset a graph builder produces: models, graphs, nodes,
// attributes, tensors and types. They marshal to the exact ONNX wire format
// (see Marshal), so the output of ToONNXModel can be loaded by any ONNX
// runtime, and ONNX files covering this subset can be read back with
// Unmarshal.
//
// Serialization is deterministic: fields are emitted in field-number order
// and repeated fields in slice order, so structurally equal messages marshal
// to equal bytes. The library relies on that for function body comparison.
package protos

// Versions of the serialization format. IRVersion2023 corresponds to the IR
// shipped with ONNX 1.12+, which introduced value-typed function attributes.
const (
	IRVersion2023 = int64(8)
)

// DataType enumerates tensor element types, with the numeric values of
// TensorProto.DataType in onnx.proto3.
type DataType int32

const (
	DataTypeUndefined  DataType = 0
	DataTypeFloat      DataType = 1
	DataTypeUint8      DataType = 2
	DataTypeInt8       DataType = 3
	DataTypeUint16     DataType = 4
	DataTypeInt16      DataType = 5
	DataTypeInt32      DataType = 6
	DataTypeInt64      DataType = 7
	DataTypeString     DataType = 8
	DataTypeBool       DataType = 9
	DataTypeFloat16    DataType = 10
	DataTypeDouble     DataType = 11
	DataTypeUint32     DataType = 12
	DataTypeUint64     DataType = 13
	DataTypeComplex64  DataType = 14
	DataTypeComplex128 DataType = 15
	DataTypeBfloat16   DataType = 16
)

// String implements fmt.Stringer with the onnx.proto3 enum value names.
func (dt DataType) String() string {
	switch dt {
	case DataTypeUndefined:
		return "UNDEFINED"
	case DataTypeFloat:
		return "FLOAT"
	case DataTypeUint8:
		return "UINT8"
	case DataTypeInt8:
		return "INT8"
	case DataTypeUint16:
		return "UINT16"
	case DataTypeInt16:
		return "INT16"
	case DataTypeInt32:
		return "INT32"
	case DataTypeInt64:
		return "INT64"
	case DataTypeString:
		return "STRING"
	case DataTypeBool:
		return "BOOL"
	case DataTypeFloat16:
		return "FLOAT16"
	case DataTypeDouble:
		return "DOUBLE"
	case DataTypeUint32:
		return "UINT32"
	case DataTypeUint64:
		return "UINT64"
	case DataTypeComplex64:
		return "COMPLEX64"
	case DataTypeComplex128:
		return "COMPLEX128"
	case DataTypeBfloat16:
		return "BFLOAT16"
	}
	return "INVALID"
}

// AttributeType enumerates the payload kinds an AttributeProto can carry,
// with the numeric values of AttributeProto.AttributeType in onnx.proto3.
type AttributeType int32

const (
	AttributeTypeUndefined  AttributeType = 0
	AttributeTypeFloat      AttributeType = 1
	AttributeTypeInt        AttributeType = 2
	AttributeTypeString     AttributeType = 3
	AttributeTypeTensor     AttributeType = 4
	AttributeTypeGraph      AttributeType = 5
	AttributeTypeFloats     AttributeType = 6
	AttributeTypeInts       AttributeType = 7
	AttributeTypeStrings    AttributeType = 8
	AttributeTypeTensors    AttributeType = 9
	AttributeTypeGraphs     AttributeType = 10
	AttributeTypeTypeProto  AttributeType = 13
	AttributeTypeTypeProtos AttributeType = 14
)

// String implements fmt.Stringer with the onnx.proto3 enum value names.
func (at AttributeType) String() string {
	switch at {
	case AttributeTypeUndefined:
		return "UNDEFINED"
	case AttributeTypeFloat:
		return "FLOAT"
	case AttributeTypeInt:
		return "INT"
	case AttributeTypeString:
		return "STRING"
	case AttributeTypeTensor:
		return "TENSOR"
	case AttributeTypeGraph:
		return "GRAPH"
	case AttributeTypeFloats:
		return "FLOATS"
	case AttributeTypeInts:
		return "INTS"
	case AttributeTypeStrings:
		return "STRINGS"
	case AttributeTypeTensors:
		return "TENSORS"
	case AttributeTypeGraphs:
		return "GRAPHS"
	case AttributeTypeTypeProto:
		return "TYPE_PROTO"
	case AttributeTypeTypeProtos:
		return "TYPE_PROTOS"
	}
	return "INVALID"
}

// TensorProto is a named, typed, dense tensor payload.
//
// This library always writes RawData (little-endian, row-major) except for
// string tensors, which use StringData. The typed fields (FloatData, ...)
// are populated only when reading models produced elsewhere.
type TensorProto struct {
	Dims       []int64
	DataType   DataType
	FloatData  []float32
	Int32Data  []int32
	StringData [][]byte
	Int64Data  []int64
	Name       string
	RawData    []byte
	DoubleData []float64
	Uint64Data []uint64
}

// TensorShapeProto describes the shape of a tensor type, one Dimension per
// axis. A nil Dim slice with a non-nil TensorShapeProto means rank 0.
type TensorShapeProto struct {
	Dim []*TensorShapeProto_Dimension
}

// TensorShapeProto_Dimension is one axis of a shape: a known extent
// (DimValue), a named symbolic extent (DimParam), or unknown (neither set).
type TensorShapeProto_Dimension struct {
	DimValue *int64
	DimParam *string
}

// TypeProto describes the type of a value. Exactly one of the variant
// pointers is set; a TypeProto with none set denotes an untyped value
// (legal only for function formal parameters).
type TypeProto struct {
	TensorType   *TypeProto_TensorType
	SequenceType *TypeProto_SequenceType
	MapType      *TypeProto_MapType
	OptionalType *TypeProto_OptionalType
}

// TypeProto_TensorType is a tensor type: element type plus optional shape.
// A nil Shape means unknown rank.
type TypeProto_TensorType struct {
	ElemType DataType
	Shape    *TensorShapeProto
}

// TypeProto_SequenceType is a homogeneous sequence of values.
type TypeProto_SequenceType struct {
	ElemType *TypeProto
}

// TypeProto_MapType maps an integral or string key type to homogeneous values.
type TypeProto_MapType struct {
	KeyType   DataType
	ValueType *TypeProto
}

// TypeProto_OptionalType wraps a type that may be absent at runtime.
type TypeProto_OptionalType struct {
	ElemType *TypeProto
}

// ValueInfoProto names and types one graph input, output or intermediate
// value.
type ValueInfoProto struct {
	Name      string
	Type      *TypeProto
	DocString string
}

// AttributeProto is a named, typed attribute of a node. Exactly one payload
// field is populated, as indicated by Type; RefAttrName instead defers the
// payload to a same-typed attribute of the enclosing function.
type AttributeProto struct {
	Name        string
	RefAttrName string
	DocString   string
	Type        AttributeType

	F          float32
	I          int64
	S          []byte
	T          *TensorProto
	G          *GraphProto
	TP         *TypeProto
	Floats     []float32
	Ints       []int64
	Strings    [][]byte
	Tensors    []*TensorProto
	Graphs     []*GraphProto
	TypeProtos []*TypeProto
}

// NodeProto is one operator application: named inputs and outputs, the
// operator identity (Domain, OpType) and its attributes. An empty string in
// Input marks an omitted optional input.
type NodeProto struct {
	Input     []string
	Output    []string
	Name      string
	OpType    string
	Domain    string
	Attribute []*AttributeProto
	DocString string
}

// GraphProto is a serialized dataflow graph: nodes in a valid evaluation
// order, typed inputs and outputs, and named constant initializers.
type GraphProto struct {
	Node        []*NodeProto
	Name        string
	Initializer []*TensorProto
	DocString   string
	Input       []*ValueInfoProto
	Output      []*ValueInfoProto
	ValueInfo   []*ValueInfoProto
}

// OperatorSetIdProto pins the version of one operator domain a model was
// built against.
type OperatorSetIdProto struct {
	Domain  string
	Version int64
}

// FunctionProto packages a reusable subgraph as a custom operator. Formal
// inputs and outputs are untyped names; Attribute lists declared attribute
// names without defaults, AttributeProto those with defaults.
type FunctionProto struct {
	Name           string
	Domain         string
	Input          []string
	Output         []string
	Attribute      []string
	AttributeProto []*AttributeProto
	Node           []*NodeProto
	DocString      string
	OpsetImport    []*OperatorSetIdProto
}

// ModelProto is the top-level serialized artifact: one main graph, the opset
// imports it requires, the local function definitions it calls, and
// provenance metadata.
type ModelProto struct {
	IrVersion       int64
	OpsetImport     []*OperatorSetIdProto
	ProducerName    string
	ProducerVersion string
	Domain          string
	ModelVersion    int64
	DocString       string
	Graph           *GraphProto
	Functions       []*FunctionProto
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
)

// Attr is one named operator attribute. Attributes serialize in the order
// they were passed to Apply.
type Attr struct {
	Name  string
	Value AttrValue
}

// AttrValue is the payload of an attribute: one of Int, Ints, Float,
// Floats, Str, Strs, TensorAttr, TypeAttr, GraphAttr or AttrRef.
type AttrValue interface {
	// AttrType returns the serialized attribute kind.
	AttrType() protos.AttributeType

	// fill writes the payload into p, whose Name and Type are already set.
	fill(p *protos.AttributeProto, em *emitState)
}

// Int is an integer attribute value.
type Int int64

// Ints is an integer-list attribute value.
type Ints []int64

// Float is a float attribute value.
type Float float32

// Floats is a float-list attribute value.
type Floats []float32

// Str is a string attribute value.
type Str string

// Strs is a string-list attribute value.
type Strs []string

// TensorAttr is a tensor attribute value.
type TensorAttr struct {
	Value *tensors.Tensor
}

// TypeAttr is a type attribute value.
type TypeAttr struct {
	Value types.Type
}

// GraphAttr is a subgraph attribute value, as used by control flow
// operators. The subgraph may reference values of the enclosing graph.
type GraphAttr struct {
	Value *Graph
}

// AttrRef defers the attribute payload to a same-named attribute of the
// enclosing function; it is only meaningful inside function bodies. Type
// declares the kind the reference resolves to.
type AttrRef struct {
	Name string
	Type protos.AttributeType
}

// AttrType implements AttrValue.
func (Int) AttrType() protos.AttributeType { return protos.AttributeTypeInt }

// AttrType implements AttrValue.
func (Ints) AttrType() protos.AttributeType { return protos.AttributeTypeInts }

// AttrType implements AttrValue.
func (Float) AttrType() protos.AttributeType { return protos.AttributeTypeFloat }

// AttrType implements AttrValue.
func (Floats) AttrType() protos.AttributeType { return protos.AttributeTypeFloats }

// AttrType implements AttrValue.
func (Str) AttrType() protos.AttributeType { return protos.AttributeTypeString }

// AttrType implements AttrValue.
func (Strs) AttrType() protos.AttributeType { return protos.AttributeTypeStrings }

// AttrType implements AttrValue.
func (TensorAttr) AttrType() protos.AttributeType { return protos.AttributeTypeTensor }

// AttrType implements AttrValue.
func (TypeAttr) AttrType() protos.AttributeType { return protos.AttributeTypeTypeProto }

// AttrType implements AttrValue.
func (GraphAttr) AttrType() protos.AttributeType { return protos.AttributeTypeGraph }

// AttrType implements AttrValue: the declared kind of the referenced
// attribute.
func (r AttrRef) AttrType() protos.AttributeType { return r.Type }

func (v Int) fill(p *protos.AttributeProto, em *emitState) { p.I = int64(v) }

func (v Ints) fill(p *protos.AttributeProto, em *emitState) {
	p.Ints = append([]int64(nil), v...)
}

func (v Float) fill(p *protos.AttributeProto, em *emitState) { p.F = float32(v) }

func (v Floats) fill(p *protos.AttributeProto, em *emitState) {
	p.Floats = append([]float32(nil), v...)
}

func (v Str) fill(p *protos.AttributeProto, em *emitState) { p.S = []byte(v) }

func (v Strs) fill(p *protos.AttributeProto, em *emitState) {
	p.Strings = make([][]byte, len(v))
	for i, s := range v {
		p.Strings[i] = []byte(s)
	}
}

func (v TensorAttr) fill(p *protos.AttributeProto, em *emitState) {
	p.T = v.Value.ToProto(p.Name)
}

func (v TypeAttr) fill(p *protos.AttributeProto, em *emitState) {
	p.TP = v.Value.ToProto()
}

func (v GraphAttr) fill(p *protos.AttributeProto, em *emitState) {
	p.G = em.emitSubgraph(v.Value, p.Name)
}

func (r AttrRef) fill(p *protos.AttributeProto, em *emitState) {
	p.RefAttrName = r.Name
}

func (a Attr) toProto(em *emitState) *protos.AttributeProto {
	p := &protos.AttributeProto{Name: a.Name, Type: a.Value.AttrType()}
	a.Value.fill(p, em)
	return p
}

func validateAttrs(op OpType, attrs []Attr) {
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if a.Name == "" {
			panicConstructionf("%s: attribute with empty name", op)
		}
		if seen[a.Name] {
			panicConstructionf("%s: attribute %q given twice", op, a.Name)
		}
		seen[a.Name] = true
		switch v := a.Value.(type) {
		case nil:
			panicConstructionf("%s: attribute %q has no value", op, a.Name)
		case TensorAttr:
			if v.Value == nil {
				panicConstructionf("%s: tensor attribute %q is nil", op, a.Name)
			}
		case TypeAttr:
			if v.Value == nil {
				panicConstructionf("%s: type attribute %q is nil", op, a.Name)
			}
		case GraphAttr:
			if v.Value == nil {
				panicConstructionf("%s: subgraph attribute %q is nil", op, a.Name)
			}
		case AttrRef:
			if v.Name == "" {
				panicConstructionf("%s: attribute %q references an unnamed function attribute", op, a.Name)
			}
			if v.Type == protos.AttributeTypeUndefined {
				panicConstructionf("%s: attribute %q reference must declare a type", op, a.Name)
			}
		}
	}
}

// findAttr returns the attribute with the given name, if present.
func findAttr(attrs []Attr, name string) (Attr, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a, true
		}
	}
	return Attr{}, false
}

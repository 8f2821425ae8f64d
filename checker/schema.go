// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package checker

import (
	"github.com/gomlx/onnxgraph/protos"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type attrSchema struct {
	typ      protos.AttributeType
	required bool
}

// opSchema bounds a default-domain operator's IO arity and legal
// attributes. A negative max means variadic. The bounds span the opset
// versions the library emits, so a form valid at any of them passes.
type opSchema struct {
	minIn, maxIn   int
	minOut, maxOut int
	attrs          map[string]attrSchema
}

func binary() opSchema { return opSchema{minIn: 2, maxIn: 2, minOut: 1, maxOut: 1} }

func unary() opSchema { return opSchema{minIn: 1, maxIn: 1, minOut: 1, maxOut: 1} }

func optInt() attrSchema { return attrSchema{typ: protos.AttributeTypeInt} }

func optInts() attrSchema { return attrSchema{typ: protos.AttributeTypeInts} }

var schemas = map[string]opSchema{
	"Add":            binary(),
	"Sub":            binary(),
	"Mul":            binary(),
	"Div":            binary(),
	"MatMul":         binary(),
	"And":            binary(),
	"Or":             binary(),
	"Equal":          binary(),
	"Less":           binary(),
	"Greater":        binary(),
	"LessOrEqual":    binary(),
	"GreaterOrEqual": binary(),
	"Mod": {minIn: 2, maxIn: 2, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"fmod": optInt()}},
	"Not":      unary(),
	"Identity": unary(),
	"Where":    {minIn: 3, maxIn: 3, minOut: 1, maxOut: 1},
	"Cast": {minIn: 1, maxIn: 1, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"to": {typ: protos.AttributeTypeInt, required: true}}},
	"Concat": {minIn: 1, maxIn: -1, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"axis": {typ: protos.AttributeTypeInt, required: true}}},
	"Split": {minIn: 1, maxIn: 2, minOut: 1, maxOut: -1,
		attrs: map[string]attrSchema{"axis": optInt(), "split": optInts(), "num_outputs": optInt()}},
	"Squeeze": {minIn: 1, maxIn: 2, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"axes": optInts()}},
	"Unsqueeze": {minIn: 1, maxIn: 2, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"axes": optInts()}},
	"ReduceSum": {minIn: 1, maxIn: 2, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"keepdims": optInt(), "noop_with_empty_axes": optInt(), "axes": optInts()}},
	"Reshape": {minIn: 2, maxIn: 2, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"allowzero": optInt()}},
	"Shape": {minIn: 1, maxIn: 1, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{"start": optInt(), "end": optInt()}},
	"Size": unary(),
	"Constant": {minIn: 0, maxIn: 0, minOut: 1, maxOut: 1,
		attrs: map[string]attrSchema{
			"value":         {typ: protos.AttributeTypeTensor},
			"value_float":   {typ: protos.AttributeTypeFloat},
			"value_floats":  {typ: protos.AttributeTypeFloats},
			"value_int":     optInt(),
			"value_ints":    optInts(),
			"value_string":  {typ: protos.AttributeTypeString},
			"value_strings": {typ: protos.AttributeTypeStrings},
		}},
	"If": {minIn: 1, maxIn: 1, minOut: 1, maxOut: -1,
		attrs: map[string]attrSchema{
			"then_branch": {typ: protos.AttributeTypeGraph, required: true},
			"else_branch": {typ: protos.AttributeTypeGraph, required: true},
		}},
	"Loop": {minIn: 2, maxIn: -1, minOut: 1, maxOut: -1,
		attrs: map[string]attrSchema{"body": {typ: protos.AttributeTypeGraph, required: true}}},
}

func checkSchema(n *protos.NodeProto) error {
	s, ok := schemas[n.OpType]
	if !ok {
		klog.V(1).Infof("checker: no schema for %s, structural checks only", n.OpType)
		return nil
	}
	if len(n.Input) < s.minIn {
		return errors.Errorf("%s takes at least %d inputs, has %d", n.OpType, s.minIn, len(n.Input))
	}
	if s.maxIn >= 0 && len(n.Input) > s.maxIn {
		return errors.Errorf("%s takes at most %d inputs, has %d", n.OpType, s.maxIn, len(n.Input))
	}
	if len(n.Output) < s.minOut {
		return errors.Errorf("%s yields at least %d outputs, has %d", n.OpType, s.minOut, len(n.Output))
	}
	if s.maxOut >= 0 && len(n.Output) > s.maxOut {
		return errors.Errorf("%s yields at most %d outputs, has %d", n.OpType, s.maxOut, len(n.Output))
	}
	for _, a := range n.Attribute {
		as, ok := s.attrs[a.Name]
		if !ok {
			return errors.Errorf("%s has no attribute %q", n.OpType, a.Name)
		}
		if a.Type != protos.AttributeTypeUndefined && a.Type != as.typ {
			return errors.Errorf("attribute %q of %s must be %v, is %v", a.Name, n.OpType, as.typ, a.Type)
		}
	}
	for name, as := range s.attrs {
		if !as.required {
			continue
		}
		if !hasAttr(n, name) {
			return errors.Errorf("%s misses the required attribute %q", n.OpType, name)
		}
	}
	if n.OpType == "Constant" && len(n.Attribute) != 1 {
		return errors.Errorf("Constant requires exactly one value attribute, has %d", len(n.Attribute))
	}
	return nil
}

func hasAttr(n *protos.NodeProto, name string) bool {
	for _, a := range n.Attribute {
		if a.Name == name {
			return true
		}
	}
	return false
}

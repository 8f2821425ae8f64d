// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"fmt"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// Identity returns x unchanged. It is the way to give one value two
// result names, since a graph result list cannot repeat a value.
func Identity(x *graph.Value) *graph.Value {
	s := propSpec{
		opSpec: opSpec{
			name:    "Identity",
			version: 16,
			infer: func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
				if len(inputs) != 1 || inputs[0] == nil {
					return nil, errors.New("missing input")
				}
				return []types.Type{inputs[0].Type()}, nil
			},
		},
		prop: func(inputs []*tensors.Tensor, _ []graph.Attr) []*tensors.Tensor {
			return []*tensors.Tensor{inputs[0]}
		},
	}
	return graph.Apply1(s, []*graph.Value{x}, nil)
}

// Cast converts the elements of x to the given dtype, keeping the shape.
func Cast(x *graph.Value, to dtypes.DType) *graph.Value {
	s := propSpec{
		opSpec: opSpec{
			name:    "Cast",
			version: 13,
			infer: func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
				xt, ok, err := tensorIn(inputs, 0, "data")
				if err != nil {
					return nil, err
				}
				if !ok {
					return untyped()
				}
				return []types.Type{types.Tensor{DType: to, Shape: xt.Shape}}, nil
			},
		},
		prop: func(inputs []*tensors.Tensor, _ []graph.Attr) []*tensors.Tensor {
			return []*tensors.Tensor{convertTensor(inputs[0], to)}
		},
	}
	attrs := []graph.Attr{{Name: "to", Value: graph.Int(int64(types.DTypeToProto(to)))}}
	return graph.Apply1(s, []*graph.Value{x}, attrs)
}

// convertTensor changes the element type of t, covering the dtypes that
// shape arithmetic runs on. Other conversions are left to the runtime.
func convertTensor(t *tensors.Tensor, to dtypes.DType) *tensors.Tensor {
	if t.DType() == to {
		return t
	}
	vals, ok := widenNumeric(t)
	if !ok {
		return nil
	}
	dims := t.Dimensions()
	switch to {
	case dtypes.Int32:
		out := make([]int32, len(vals))
		for i, v := range vals {
			out[i] = int32(v)
		}
		return tensors.FromFlatDataAndDimensions(out, dims...)
	case dtypes.Int64:
		out := make([]int64, len(vals))
		for i, v := range vals {
			out[i] = int64(v)
		}
		return tensors.FromFlatDataAndDimensions(out, dims...)
	case dtypes.Float32:
		out := make([]float32, len(vals))
		for i, v := range vals {
			out[i] = float32(v)
		}
		return tensors.FromFlatDataAndDimensions(out, dims...)
	case dtypes.Float64:
		return tensors.FromFlatDataAndDimensions(vals, dims...)
	}
	return nil
}

func widenNumeric(t *tensors.Tensor) ([]float64, bool) {
	switch t.DType() {
	case dtypes.Int32:
		return widen(tensors.FlatData[int32](t)), true
	case dtypes.Int64:
		return widen(tensors.FlatData[int64](t)), true
	case dtypes.Float32:
		return widen(tensors.FlatData[float32](t)), true
	case dtypes.Float64:
		return widen(tensors.FlatData[float64](t)), true
	}
	return nil, false
}

func widen[T int32 | int64 | float32 | float64](data []T) []float64 {
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

// Reshape returns data with the extents given by the 1-D Int64 shape
// operand. A 0 extent copies the matching input extent, or stays a
// literal zero under allowZero. A single -1 extent is solved from the
// element count.
func Reshape(data, shape *graph.Value, allowZero bool) *graph.Value {
	var attrs []graph.Attr
	if allowZero {
		attrs = append(attrs, graph.Attr{Name: "allowzero", Value: graph.Int(1)})
	}
	s := propSpec{
		opSpec: opSpec{name: "Reshape", version: 14, infer: inferReshape(allowZero)},
		prop:   reshapeProp(allowZero),
	}
	return graph.Apply1(s, []*graph.Value{data, shape}, attrs)
}

func inferReshape(allowZero bool) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		dt, dok, err := tensorIn(inputs, 0, "data")
		if err != nil {
			return nil, err
		}
		st, sok, err := tensorIn(inputs, 1, "shape")
		if err != nil {
			return nil, err
		}
		if sok {
			if err := checkIndexVector(st, "shape"); err != nil {
				return nil, err
			}
		}
		if !dok {
			return untyped()
		}
		if extents, ok := int64Vector(constOf(inputs, 1)); ok {
			out, err := reshapeResultShape(dt.Shape, extents, allowZero)
			if err != nil {
				return nil, err
			}
			return []types.Type{types.Tensor{DType: dt.DType, Shape: out}}, nil
		}
		// The shape operand's own extent fixes the output rank.
		if sok && st.Shape.HasRank() && st.Shape.Rank() == 1 {
			if d := st.Shape.Dim(0); d.IsKnown() {
				dims := make([]any, d.Value())
				return []types.Type{types.Tensor{DType: dt.DType, Shape: types.MakeShape(dims...)}}, nil
			}
		}
		return []types.Type{types.MakeUnranked(dt.DType)}, nil
	}
}

// reshapeResultShape resolves the target extents against a possibly
// partial input shape.
func reshapeResultShape(data types.Shape, extents []int64, allowZero bool) (types.Shape, error) {
	if known, ok := data.Known(); ok {
		dims, err := resolveReshapeDims(known, extents, allowZero)
		if err != nil {
			return types.Shape{}, err
		}
		return types.ShapeOfInts(dims...), nil
	}
	out := make([]any, len(extents))
	solved := false
	for i, e := range extents {
		switch {
		case e > 0:
			out[i] = e
		case e == 0 && allowZero:
			out[i] = int64(0)
		case e == 0:
			if !data.HasRank() {
				out[i] = nil
				continue
			}
			if i >= data.Rank() {
				return types.Shape{}, errors.Errorf("0 extent at axis %d exceeds the data rank %d", i, data.Rank())
			}
			out[i] = data.Dim(i)
		case e == -1:
			if solved {
				return types.Shape{}, errors.New("at most one extent may be -1")
			}
			solved = true
			out[i] = nil
		default:
			return types.Shape{}, errors.Errorf("invalid extent %d", e)
		}
	}
	return types.MakeShape(out...), nil
}

// resolveReshapeDims computes the concrete output extents for a fully
// known input shape.
func resolveReshapeDims(in, extents []int64, allowZero bool) ([]int64, error) {
	total := int64(1)
	for _, d := range in {
		total *= d
	}
	out := make([]int64, len(extents))
	solve := -1
	prod := int64(1)
	for i, e := range extents {
		switch {
		case e > 0:
			out[i] = e
		case e == 0 && allowZero:
			out[i] = 0
		case e == 0:
			if i >= len(in) {
				return nil, errors.Errorf("0 extent at axis %d exceeds the data rank %d", i, len(in))
			}
			out[i] = in[i]
		case e == -1:
			if solve >= 0 {
				return nil, errors.New("at most one extent may be -1")
			}
			solve = i
			continue
		default:
			return nil, errors.Errorf("invalid extent %d", e)
		}
		prod *= out[i]
	}
	if solve >= 0 {
		if prod == 0 || total%prod != 0 {
			return nil, errors.Errorf("cannot solve the -1 extent: %d elements do not divide over %v", total, extents)
		}
		out[solve] = total / prod
		prod = total
	}
	if prod != total {
		return nil, errors.Errorf("cannot reshape %d elements into %v", total, extents)
	}
	return out, nil
}

func reshapeProp(allowZero bool) func([]*tensors.Tensor, []graph.Attr) []*tensors.Tensor {
	return func(inputs []*tensors.Tensor, _ []graph.Attr) []*tensors.Tensor {
		extents, ok := int64Vector(inputs[1])
		if !ok {
			return nil
		}
		dims, err := resolveReshapeDims(inputs[0].Dimensions(), extents, allowZero)
		if err != nil {
			return nil
		}
		return []*tensors.Tensor{inputs[0].WithShape(dims...)}
	}
}

// Concat joins the inputs along axis. All inputs share the element type
// and rank, and every other axis must agree.
func Concat(axis int64, vals ...*graph.Value) *graph.Value {
	s := propSpec{
		opSpec: opSpec{name: "Concat", version: 13, infer: inferConcat(axis)},
		prop:   concatProp(axis),
	}
	attrs := []graph.Attr{{Name: "axis", Value: graph.Int(axis)}}
	return graph.Apply1(s, vals, attrs)
}

func inferConcat(axis int64) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		if len(inputs) == 0 {
			return nil, errors.New("needs at least one input")
		}
		ts := make([]types.Tensor, len(inputs))
		for i := range inputs {
			t, ok, err := tensorIn(inputs, i, fmt.Sprintf("input #%d", i))
			if err != nil {
				return nil, err
			}
			if !ok {
				return untyped()
			}
			ts[i] = t
		}
		dt := ts[0].DType
		rank := -1
		for i, t := range ts {
			if t.DType != dt {
				return nil, errors.Errorf("input #%d has %s elements, input #0 has %s", i, t.DType, dt)
			}
			if !t.Shape.HasRank() {
				continue
			}
			if rank >= 0 && t.Shape.Rank() != rank {
				return nil, errors.Errorf("input ranks differ: %d vs %d", rank, t.Shape.Rank())
			}
			rank = t.Shape.Rank()
		}
		if rank < 0 {
			return []types.Type{types.MakeUnranked(dt)}, nil
		}
		if rank == 0 {
			return nil, errors.New("cannot concatenate scalars")
		}
		ax, err := normAxis(axis, rank, "concat")
		if err != nil {
			return nil, err
		}
		out := make([]types.Dim, rank)
		for i := range out {
			if i == ax {
				sum := int64(0)
				known := true
				for _, t := range ts {
					d := dimOf(t.Shape, i)
					if !d.IsKnown() {
						known = false
						break
					}
					sum += d.Value()
				}
				if known {
					out[i] = types.KnownDim(sum)
				} else {
					out[i] = types.UnknownDim()
				}
				continue
			}
			d := dimOf(ts[0].Shape, i)
			for j := 1; j < len(ts); j++ {
				nd, err := mergeEqualDim(d, dimOf(ts[j].Shape, i))
				if err != nil {
					return nil, errors.WithMessagef(err, "inputs #0 and #%d disagree on axis %d", j, i)
				}
				d = nd
			}
			out[i] = d
		}
		return []types.Type{types.Tensor{DType: dt, Shape: dimsShape(out)}}, nil
	}
}

// dimOf reads one axis of s, treating an unranked shape as unknown
// everywhere.
func dimOf(s types.Shape, axis int) types.Dim {
	if !s.HasRank() {
		return types.UnknownDim()
	}
	return s.Dim(axis)
}

// mergeEqualDim combines two extents that must denote the same axis
// length. Known extents win over symbolic and unknown ones; two
// different known extents are an error.
func mergeEqualDim(a, b types.Dim) (types.Dim, error) {
	switch {
	case a.Equal(b):
		return a, nil
	case a.IsKnown() && b.IsKnown():
		return types.Dim{}, errors.Errorf("extents %d and %d", a.Value(), b.Value())
	case a.IsKnown():
		return a, nil
	case b.IsKnown():
		return b, nil
	case a.IsSymbolic() && b.IsSymbolic():
		return types.UnknownDim(), nil
	case a.IsSymbolic():
		return a, nil
	case b.IsSymbolic():
		return b, nil
	}
	return types.UnknownDim(), nil
}

func concatProp(axis int64) func([]*tensors.Tensor, []graph.Attr) []*tensors.Tensor {
	return func(inputs []*tensors.Tensor, _ []graph.Attr) []*tensors.Tensor {
		if axis != 0 && axis != -1 {
			return nil
		}
		var out []int64
		for _, t := range inputs {
			v, ok := int64Vector(t)
			if !ok {
				return nil
			}
			out = append(out, v...)
		}
		return []*tensors.Tensor{tensors.FromFlatDataAndDimensions(out, int64(len(out)))}
	}
}

// Split cuts data into numOutputs pieces along axis. With a nil split
// operand the axis divides evenly; otherwise split is a 1-D Int64
// tensor of part extents, one per output.
func Split(data, split *graph.Value, axis int64, numOutputs int) []*graph.Value {
	inputs := []*graph.Value{data}
	if split != nil {
		inputs = append(inputs, split)
	}
	attrs := []graph.Attr{{Name: "axis", Value: graph.Int(axis)}}
	s := opSpec{name: "Split", version: 13, infer: inferSplit(axis, numOutputs)}
	return graph.Apply(s, inputs, attrs)
}

func inferSplit(axis int64, numOutputs int) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		if numOutputs < 1 {
			return nil, errors.Errorf("needs at least one output, got %d", numOutputs)
		}
		dt, dok, err := tensorIn(inputs, 0, "data")
		if err != nil {
			return nil, err
		}
		hasSplit := len(inputs) > 1
		if hasSplit {
			t, ok, err := tensorIn(inputs, 1, "split")
			if err != nil {
				return nil, err
			}
			if ok {
				if err := checkIndexVector(t, "split"); err != nil {
					return nil, err
				}
			}
		}
		outs := make([]types.Type, numOutputs)
		if !dok {
			return outs, nil
		}
		if !dt.Shape.HasRank() {
			for i := range outs {
				outs[i] = types.MakeUnranked(dt.DType)
			}
			return outs, nil
		}
		rank := dt.Shape.Rank()
		ax, err := normAxis(axis, rank, "split")
		if err != nil {
			return nil, err
		}
		dims := dt.Shape.Dims()
		var parts []int64
		if hasSplit {
			if v, ok := int64Vector(constOf(inputs, 1)); ok {
				if len(v) != numOutputs {
					return nil, errors.Errorf("split gives %d parts for %d outputs", len(v), numOutputs)
				}
				sum := int64(0)
				for _, p := range v {
					if p < 0 {
						return nil, errors.Errorf("negative part extent %d", p)
					}
					sum += p
				}
				if d := dims[ax]; d.IsKnown() && sum != d.Value() {
					return nil, errors.Errorf("split parts sum to %d, the axis extent is %d", sum, d.Value())
				}
				parts = v
			}
		} else if d := dims[ax]; d.IsKnown() {
			if d.Value()%int64(numOutputs) != 0 {
				return nil, errors.Errorf("axis extent %d does not divide into %d equal parts", d.Value(), numOutputs)
			}
			each := d.Value() / int64(numOutputs)
			parts = make([]int64, numOutputs)
			for i := range parts {
				parts[i] = each
			}
		}
		for i := range outs {
			od := slices.Clone(dims)
			if parts != nil {
				od[ax] = types.KnownDim(parts[i])
			} else {
				od[ax] = types.UnknownDim()
			}
			outs[i] = types.Tensor{DType: dt.DType, Shape: dimsShape(od)}
		}
		return outs, nil
	}
}

// Squeeze removes 1-extent axes from data. A nil axes operand removes
// every 1-extent axis; otherwise axes is a 1-D Int64 tensor naming the
// axes to drop.
func Squeeze(data, axes *graph.Value) *graph.Value {
	inputs := []*graph.Value{data}
	if axes != nil {
		inputs = append(inputs, axes)
	}
	s := opSpec{name: "Squeeze", version: 13, infer: inferSqueeze}
	return graph.Apply1(s, inputs, nil)
}

func inferSqueeze(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
	dt, dok, err := tensorIn(inputs, 0, "data")
	if err != nil {
		return nil, err
	}
	hasAxes := len(inputs) > 1
	var at types.Tensor
	var aok bool
	if hasAxes {
		at, aok, err = tensorIn(inputs, 1, "axes")
		if err != nil {
			return nil, err
		}
		if aok {
			if err := checkIndexVector(at, "axes"); err != nil {
				return nil, err
			}
		}
	}
	if !dok {
		return untyped()
	}
	if !dt.Shape.HasRank() {
		return []types.Type{types.MakeUnranked(dt.DType)}, nil
	}
	rank := dt.Shape.Rank()
	dims := dt.Shape.Dims()
	if !hasAxes {
		// Without axes the choice of dropped axes depends on the actual
		// extents, so a partial shape leaves the rank open.
		if _, ok := dt.Shape.Known(); !ok {
			return []types.Type{types.MakeUnranked(dt.DType)}, nil
		}
		var out []types.Dim
		for _, d := range dims {
			if d.Value() != 1 {
				out = append(out, d)
			}
		}
		return []types.Type{types.Tensor{DType: dt.DType, Shape: dimsShape(out)}}, nil
	}
	if v, ok := int64Vector(constOf(inputs, 1)); ok {
		drop := make([]bool, rank)
		for _, a := range v {
			ax, err := normAxis(a, rank, "squeeze")
			if err != nil {
				return nil, err
			}
			if drop[ax] {
				return nil, errors.Errorf("axis %d repeated", ax)
			}
			if d := dims[ax]; d.IsKnown() && d.Value() != 1 {
				return nil, errors.Errorf("axis %d has extent %d, only 1-extent axes squeeze", ax, d.Value())
			}
			drop[ax] = true
		}
		var out []types.Dim
		for i, d := range dims {
			if !drop[i] {
				out = append(out, d)
			}
		}
		return []types.Type{types.Tensor{DType: dt.DType, Shape: dimsShape(out)}}, nil
	}
	// Unknown axes values still fix the output rank when their count is
	// known.
	if aok && at.Shape.HasRank() && at.Shape.Rank() == 1 {
		if d := at.Shape.Dim(0); d.IsKnown() {
			k := int(d.Value())
			if k > rank {
				return nil, errors.Errorf("%d axes exceed the data rank %d", k, rank)
			}
			out := make([]any, rank-k)
			return []types.Type{types.Tensor{DType: dt.DType, Shape: types.MakeShape(out...)}}, nil
		}
	}
	return []types.Type{types.MakeUnranked(dt.DType)}, nil
}

// Unsqueeze inserts 1-extent axes into data at the positions named by
// the 1-D Int64 axes operand, counted against the output rank.
func Unsqueeze(data, axes *graph.Value) *graph.Value {
	s := opSpec{name: "Unsqueeze", version: 13, infer: inferUnsqueeze}
	return graph.Apply1(s, []*graph.Value{data, axes}, nil)
}

func inferUnsqueeze(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
	dt, dok, err := tensorIn(inputs, 0, "data")
	if err != nil {
		return nil, err
	}
	at, aok, err := tensorIn(inputs, 1, "axes")
	if err != nil {
		return nil, err
	}
	if aok {
		if err := checkIndexVector(at, "axes"); err != nil {
			return nil, err
		}
	}
	if !dok {
		return untyped()
	}
	if !dt.Shape.HasRank() {
		return []types.Type{types.MakeUnranked(dt.DType)}, nil
	}
	rank := dt.Shape.Rank()
	if v, ok := int64Vector(constOf(inputs, 1)); ok {
		outRank := rank + len(v)
		isNew := make([]bool, outRank)
		for _, a := range v {
			ax, err := normAxis(a, outRank, "unsqueeze")
			if err != nil {
				return nil, err
			}
			if isNew[ax] {
				return nil, errors.Errorf("axis %d repeated", ax)
			}
			isNew[ax] = true
		}
		dims := dt.Shape.Dims()
		out := make([]types.Dim, 0, outRank)
		next := 0
		for i := 0; i < outRank; i++ {
			if isNew[i] {
				out = append(out, types.KnownDim(1))
			} else {
				out = append(out, dims[next])
				next++
			}
		}
		return []types.Type{types.Tensor{DType: dt.DType, Shape: dimsShape(out)}}, nil
	}
	if aok && at.Shape.HasRank() && at.Shape.Rank() == 1 {
		if d := at.Shape.Dim(0); d.IsKnown() {
			out := make([]any, rank+int(d.Value()))
			return []types.Type{types.Tensor{DType: dt.DType, Shape: types.MakeShape(out...)}}, nil
		}
	}
	return []types.Type{types.MakeUnranked(dt.DType)}, nil
}

// Shape returns the shape of x as a 1-D Int64 tensor. With a fully
// known input shape the result is a constant, whether or not x itself
// is.
func Shape(x *graph.Value) *graph.Value {
	return shapeOp(x, 0, nil)
}

// ShapeRange returns the [start, end) slice of the shape of x as a 1-D
// Int64 tensor. Negative indices count from the last axis and both
// bounds clamp to the rank.
func ShapeRange(x *graph.Value, start, end int64) *graph.Value {
	return shapeOp(x, start, &end)
}

func shapeOp(x *graph.Value, start int64, end *int64) *graph.Value {
	var attrs []graph.Attr
	if start != 0 {
		attrs = append(attrs, graph.Attr{Name: "start", Value: graph.Int(start)})
	}
	if end != nil {
		attrs = append(attrs, graph.Attr{Name: "end", Value: graph.Int(*end)})
	}
	s := staticSpec{
		opSpec: opSpec{name: "Shape", version: 15, infer: inferShape(start, end)},
		static: shapeStatic(start, end),
	}
	return graph.Apply1(s, []*graph.Value{x}, attrs)
}

// shapeSlice clamps the [start, end) window against the rank.
func shapeSlice(start int64, end *int64, rank int) (int, int) {
	r := int64(rank)
	s := start
	if s < 0 {
		s += r
	}
	s = min(max(s, 0), r)
	e := r
	if end != nil {
		e = *end
		if e < 0 {
			e += r
		}
		e = min(max(e, 0), r)
	}
	if e < s {
		e = s
	}
	return int(s), int(e)
}

func inferShape(start int64, end *int64) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		xt, ok, err := tensorIn(inputs, 0, "data")
		if err != nil {
			return nil, err
		}
		if !ok {
			return untyped()
		}
		if !xt.Shape.HasRank() {
			return []types.Type{types.Tensor{DType: dtypes.Int64, Shape: types.MakeShape(nil)}}, nil
		}
		s, e := shapeSlice(start, end, xt.Shape.Rank())
		return []types.Type{types.Tensor{DType: dtypes.Int64, Shape: types.ShapeOfInts(int64(e - s))}}, nil
	}
}

func shapeStatic(start int64, end *int64) func([]*graph.Value, []graph.Attr) []*tensors.Tensor {
	return func(inputs []*graph.Value, _ []graph.Attr) []*tensors.Tensor {
		typ, ok := inputs[0].Type().(types.Tensor)
		if !ok || !typ.Shape.HasRank() {
			return nil
		}
		s, e := shapeSlice(start, end, typ.Shape.Rank())
		out := make([]int64, 0, e-s)
		for i := s; i < e; i++ {
			d := typ.Shape.Dim(i)
			if !d.IsKnown() {
				return nil
			}
			out = append(out, d.Value())
		}
		return []*tensors.Tensor{tensors.FromFlatDataAndDimensions(out, int64(len(out)))}
	}
}

// Size returns the element count of x as an Int64 scalar, constant
// whenever the input shape is fully known.
func Size(x *graph.Value) *graph.Value {
	s := staticSpec{
		opSpec: opSpec{
			name:    "Size",
			version: 13,
			infer: func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
				_, ok, err := tensorIn(inputs, 0, "data")
				if err != nil {
					return nil, err
				}
				if !ok {
					return untyped()
				}
				return []types.Type{types.MakeScalar(dtypes.Int64)}, nil
			},
		},
		static: func(inputs []*graph.Value, _ []graph.Attr) []*tensors.Tensor {
			typ, ok := inputs[0].Type().(types.Tensor)
			if !ok {
				return nil
			}
			n, known := typ.Shape.NumElements()
			if !known {
				return nil
			}
			return []*tensors.Tensor{tensors.FromScalar(n)}
		},
	}
	return graph.Apply1(s, []*graph.Value{x}, nil)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interp

import (
	"math"
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// The kernels cover four element types. The unions are plain so they
// satisfy dtypes.Supported, which admits no ~T terms.
type elem interface {
	bool | int64 | float32 | float64
}

type numElem interface {
	int64 | float32 | float64
}

type floatElem interface {
	float32 | float64
}

// evalKernel runs one default-domain node and returns its results in
// output order.
func (m *machine) evalKernel(n *protos.NodeProto, fr *frame) ([]*tensors.Tensor, error) {
	switch n.OpType {
	case "If":
		return m.evalIf(n, fr)
	case "Loop":
		return m.evalLoop(n, fr)
	case "Constant":
		return one(evalConstant(n, fr))
	}

	ins, err := fr.operands(n)
	if err != nil {
		return nil, err
	}
	switch n.OpType {
	case "Identity":
		a, err := arg(ins, 0, "Identity")
		if err != nil {
			return nil, err
		}
		return []*tensors.Tensor{a}, nil
	case "Add", "Sub", "Mul", "Div":
		a, b, err := args2(ins, n.OpType)
		if err != nil {
			return nil, err
		}
		return one(evalArith(n.OpType, a, b))
	case "Mod":
		a, b, err := args2(ins, "Mod")
		if err != nil {
			return nil, err
		}
		return one(evalMod(n, fr, a, b))
	case "MatMul":
		a, b, err := args2(ins, "MatMul")
		if err != nil {
			return nil, err
		}
		return one(evalMatMul(a, b))
	case "And", "Or":
		a, b, err := args2(ins, n.OpType)
		if err != nil {
			return nil, err
		}
		return one(evalBoolBinary(n.OpType, a, b))
	case "Not":
		a, err := arg(ins, 0, "Not")
		if err != nil {
			return nil, err
		}
		return one(evalNot(a))
	case "Equal", "Less", "Greater", "LessOrEqual", "GreaterOrEqual":
		a, b, err := args2(ins, n.OpType)
		if err != nil {
			return nil, err
		}
		return one(evalCompare(n.OpType, a, b))
	case "Where":
		c, x, y, err := args3(ins, "Where")
		if err != nil {
			return nil, err
		}
		return one(evalWhere(c, x, y))
	case "Cast":
		a, err := arg(ins, 0, "Cast")
		if err != nil {
			return nil, err
		}
		return one(evalCast(n, fr, a))
	case "Reshape":
		data, shape, err := args2(ins, "Reshape")
		if err != nil {
			return nil, err
		}
		return one(evalReshape(n, fr, data, shape))
	case "Concat":
		return one(evalConcat(n, fr, ins))
	case "Split":
		return evalSplit(n, fr, ins)
	case "Squeeze":
		data, err := arg(ins, 0, "Squeeze")
		if err != nil {
			return nil, err
		}
		return one(evalSqueeze(n, fr, data))
	case "Unsqueeze":
		data, err := arg(ins, 0, "Unsqueeze")
		if err != nil {
			return nil, err
		}
		return one(evalUnsqueeze(n, fr, data))
	case "ReduceSum":
		data, err := arg(ins, 0, "ReduceSum")
		if err != nil {
			return nil, err
		}
		return one(evalReduceSum(n, fr, data))
	case "Shape":
		data, err := arg(ins, 0, "Shape")
		if err != nil {
			return nil, err
		}
		return one(evalShape(n, fr, data))
	case "Size":
		data, err := arg(ins, 0, "Size")
		if err != nil {
			return nil, err
		}
		return []*tensors.Tensor{tensors.FromScalar(data.Size())}, nil
	}
	return nil, errors.Errorf("no kernel for %s", n.OpType)
}

func one(t *tensors.Tensor, err error) ([]*tensors.Tensor, error) {
	if err != nil {
		return nil, err
	}
	return []*tensors.Tensor{t}, nil
}

func arg(ins []*tensors.Tensor, i int, op string) (*tensors.Tensor, error) {
	if i >= len(ins) || ins[i] == nil {
		return nil, errors.Errorf("%s misses input #%d", op, i)
	}
	return ins[i], nil
}

func args2(ins []*tensors.Tensor, op string) (a, b *tensors.Tensor, err error) {
	if a, err = arg(ins, 0, op); err != nil {
		return
	}
	b, err = arg(ins, 1, op)
	return
}

func args3(ins []*tensors.Tensor, op string) (a, b, c *tensors.Tensor, err error) {
	if a, err = arg(ins, 0, op); err != nil {
		return
	}
	if b, err = arg(ins, 1, op); err != nil {
		return
	}
	c, err = arg(ins, 2, op)
	return
}

func sameDType(op string, a, b *tensors.Tensor) error {
	if a.DType() != b.DType() {
		return errors.Errorf("%s operands differ: %s vs %s", op, a.DType(), b.DType())
	}
	return nil
}

func describe(t *tensors.Tensor) string {
	if t == nil {
		return "no value"
	}
	return t.Type().String()
}

func scalarBool(t *tensors.Tensor, what string) (bool, error) {
	if t == nil || t.DType() != dtypes.Bool || !t.IsScalar() {
		return false, errors.Errorf("the %s must be a Bool scalar, got %s", what, describe(t))
	}
	return tensors.Scalar[bool](t), nil
}

func scalarInt64(t *tensors.Tensor, what string) (int64, error) {
	if t == nil || t.DType() != dtypes.Int64 || !t.IsScalar() {
		return 0, errors.Errorf("the %s must be an Int64 scalar, got %s", what, describe(t))
	}
	return tensors.Scalar[int64](t), nil
}

func int64Vector(t *tensors.Tensor, what string) ([]int64, error) {
	if t == nil || t.DType() != dtypes.Int64 || t.Rank() != 1 {
		return nil, errors.Errorf("the %s must be a 1-D Int64 tensor, got %s", what, describe(t))
	}
	return slices.Clone(tensors.FlatData[int64](t)), nil
}

func normAxis(axis int64, rank int, op string) (int, error) {
	a := axis
	if a < 0 {
		a += int64(rank)
	}
	if a < 0 || a >= int64(rank) {
		return 0, errors.Errorf("%s axis %d out of range for rank %d", op, axis, rank)
	}
	return int(a), nil
}

// prod multiplies the extents of a dimension list; empty lists yield 1.
func prod[T constraints.Integer](dims []T) T {
	p := T(1)
	for _, d := range dims {
		p *= d
	}
	return p
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// broadcastDims merges two dimension lists under the numpy rules:
// right-aligned, with 1-extents stretching to the other side.
func broadcastDims(a, b []int64) ([]int64, error) {
	rank := max(len(a), len(b))
	out := make([]int64, rank)
	for i := 1; i <= rank; i++ {
		da, db := int64(1), int64(1)
		if i <= len(a) {
			da = a[len(a)-i]
		}
		if i <= len(b) {
			db = b[len(b)-i]
		}
		switch {
		case da == db:
			out[rank-i] = da
		case da == 1:
			out[rank-i] = db
		case db == 1:
			out[rank-i] = da
		default:
			return nil, errors.Errorf("extents %d and %d do not broadcast", da, db)
		}
	}
	return out, nil
}

// broadcastMap precomputes, for every flat ordinal of the result shape,
// the flat index into a tensor of shape src broadcast to result.
func broadcastMap(src, result []int64) []int64 {
	strides := make([]int64, len(result))
	stride := int64(1)
	off := len(result) - len(src)
	for i := len(result) - 1; i >= off; i-- {
		if src[i-off] != 1 {
			strides[i] = stride
			stride *= src[i-off]
		}
	}
	total := prod(result)
	idx := make([]int64, total)
	coord := make([]int64, len(result))
	for o := int64(0); o < total; o++ {
		var flat int64
		for i := range coord {
			flat += coord[i] * strides[i]
		}
		idx[o] = flat
		for i := len(coord) - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < result[i] {
				break
			}
			coord[i] = 0
		}
	}
	return idx
}

// binaryT applies f elementwise over a and b broadcast to dims.
func binaryT[T, R elem](a, b *tensors.Tensor, dims []int64, f func(x, y T) R) *tensors.Tensor {
	am := broadcastMap(a.Dimensions(), dims)
	bm := broadcastMap(b.Dimensions(), dims)
	ad, bd := tensors.FlatData[T](a), tensors.FlatData[T](b)
	out := make([]R, len(am))
	for i := range out {
		out[i] = f(ad[am[i]], bd[bm[i]])
	}
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

func evalArith(op string, a, b *tensors.Tensor) (*tensors.Tensor, error) {
	if err := sameDType(op, a, b); err != nil {
		return nil, err
	}
	dims, err := broadcastDims(a.Dimensions(), b.Dimensions())
	if err != nil {
		return nil, err
	}
	switch a.DType() {
	case dtypes.Int64:
		return intArith(op, a, b, dims)
	case dtypes.Float32:
		return floatArith[float32](op, a, b, dims)
	case dtypes.Float64:
		return floatArith[float64](op, a, b, dims)
	}
	return nil, errors.Errorf("%s has no %s kernel", op, a.DType())
}

func intArith(op string, a, b *tensors.Tensor, dims []int64) (*tensors.Tensor, error) {
	var divZero bool
	var f func(x, y int64) int64
	switch op {
	case "Add":
		f = func(x, y int64) int64 { return x + y }
	case "Sub":
		f = func(x, y int64) int64 { return x - y }
	case "Mul":
		f = func(x, y int64) int64 { return x * y }
	case "Div":
		// Truncated division, like the serialized operator.
		f = func(x, y int64) int64 {
			if y == 0 {
				divZero = true
				return 0
			}
			return x / y
		}
	}
	t := binaryT(a, b, dims, f)
	if divZero {
		return nil, errors.New("integer division by zero")
	}
	return t, nil
}

func floatArith[T floatElem](op string, a, b *tensors.Tensor, dims []int64) (*tensors.Tensor, error) {
	var f func(x, y T) T
	switch op {
	case "Add":
		f = func(x, y T) T { return x + y }
	case "Sub":
		f = func(x, y T) T { return x - y }
	case "Mul":
		f = func(x, y T) T { return x * y }
	case "Div":
		f = func(x, y T) T { return x / y }
	}
	return binaryT(a, b, dims, f), nil
}

// evalMod follows the two remainder conventions: with fmod the sign
// follows the dividend, without it the sign follows the divisor.
func evalMod(n *protos.NodeProto, fr *frame, a, b *tensors.Tensor) (*tensors.Tensor, error) {
	if err := sameDType("Mod", a, b); err != nil {
		return nil, err
	}
	fmod, err := fr.intAttrOr(n, "fmod", 0)
	if err != nil {
		return nil, err
	}
	dims, err := broadcastDims(a.Dimensions(), b.Dimensions())
	if err != nil {
		return nil, err
	}
	switch a.DType() {
	case dtypes.Int64:
		var modZero bool
		f := func(x, y int64) int64 {
			if y == 0 {
				modZero = true
				return 0
			}
			r := x % y
			if fmod == 0 && r != 0 && (r < 0) != (y < 0) {
				r += y
			}
			return r
		}
		t := binaryT(a, b, dims, f)
		if modZero {
			return nil, errors.New("integer modulo by zero")
		}
		return t, nil
	case dtypes.Float32:
		if fmod == 0 {
			return nil, errors.New("Mod on floating point requires fmod=1")
		}
		f := func(x, y float32) float32 { return float32(math.Mod(float64(x), float64(y))) }
		return binaryT(a, b, dims, f), nil
	case dtypes.Float64:
		if fmod == 0 {
			return nil, errors.New("Mod on floating point requires fmod=1")
		}
		return binaryT(a, b, dims, math.Mod), nil
	}
	return nil, errors.Errorf("Mod has no %s kernel", a.DType())
}

// evalMatMul contracts the last axis of a with the second-to-last axis
// of b. 1-D operands are promoted to matrices and the promoted axis is
// dropped from the result; stack dimensions broadcast.
func evalMatMul(a, b *tensors.Tensor) (*tensors.Tensor, error) {
	if err := sameDType("MatMul", a, b); err != nil {
		return nil, err
	}
	ad, bd := a.Dimensions(), b.Dimensions()
	if len(ad) == 0 || len(bd) == 0 {
		return nil, errors.New("MatMul operands must have rank 1 or higher")
	}
	aVec, bVec := len(ad) == 1, len(bd) == 1
	if aVec {
		ad = append([]int64{1}, ad...)
	}
	if bVec {
		bd = append(bd, 1)
	}
	k := ad[len(ad)-1]
	if bd[len(bd)-2] != k {
		return nil, errors.Errorf("contraction extents differ: %d vs %d", k, bd[len(bd)-2])
	}
	m, cols := ad[len(ad)-2], bd[len(bd)-1]
	batch, err := broadcastDims(ad[:len(ad)-2], bd[:len(bd)-2])
	if err != nil {
		return nil, errors.WithMessage(err, "stack dimensions")
	}
	am := broadcastMap(ad[:len(ad)-2], batch)
	bm := broadcastMap(bd[:len(bd)-2], batch)
	outDims := slices.Clone(batch)
	if !aVec {
		outDims = append(outDims, m)
	}
	if !bVec {
		outDims = append(outDims, cols)
	}
	switch a.DType() {
	case dtypes.Int64:
		return matmulT[int64](a, b, am, bm, m, k, cols, outDims), nil
	case dtypes.Float32:
		return matmulT[float32](a, b, am, bm, m, k, cols, outDims), nil
	case dtypes.Float64:
		return matmulT[float64](a, b, am, bm, m, k, cols, outDims), nil
	}
	return nil, errors.Errorf("MatMul has no %s kernel", a.DType())
}

func matmulT[T numElem](a, b *tensors.Tensor, am, bm []int64, m, k, n int64, outDims []int64) *tensors.Tensor {
	ad, bd := tensors.FlatData[T](a), tensors.FlatData[T](b)
	out := make([]T, int64(len(am))*m*n)
	for bi := range am {
		ao := am[bi] * m * k
		bo := bm[bi] * k * n
		oo := int64(bi) * m * n
		for i := int64(0); i < m; i++ {
			for j := int64(0); j < n; j++ {
				var acc T
				for p := int64(0); p < k; p++ {
					acc += ad[ao+i*k+p] * bd[bo+p*n+j]
				}
				out[oo+i*n+j] = acc
			}
		}
	}
	return tensors.FromFlatDataAndDimensions(out, outDims...)
}

func evalBoolBinary(op string, a, b *tensors.Tensor) (*tensors.Tensor, error) {
	if a.DType() != dtypes.Bool || b.DType() != dtypes.Bool {
		return nil, errors.Errorf("%s requires Bool operands, got %s and %s", op, a.DType(), b.DType())
	}
	dims, err := broadcastDims(a.Dimensions(), b.Dimensions())
	if err != nil {
		return nil, err
	}
	if op == "And" {
		return binaryT(a, b, dims, func(x, y bool) bool { return x && y }), nil
	}
	return binaryT(a, b, dims, func(x, y bool) bool { return x || y }), nil
}

func evalNot(a *tensors.Tensor) (*tensors.Tensor, error) {
	if a.DType() != dtypes.Bool {
		return nil, errors.Errorf("Not requires a Bool operand, got %s", a.DType())
	}
	src := tensors.FlatData[bool](a)
	out := make([]bool, len(src))
	for i, v := range src {
		out[i] = !v
	}
	return tensors.FromFlatDataAndDimensions(out, a.Dimensions()...), nil
}

func evalCompare(op string, a, b *tensors.Tensor) (*tensors.Tensor, error) {
	if err := sameDType(op, a, b); err != nil {
		return nil, err
	}
	dims, err := broadcastDims(a.Dimensions(), b.Dimensions())
	if err != nil {
		return nil, err
	}
	switch a.DType() {
	case dtypes.Bool:
		if op != "Equal" {
			return nil, errors.Errorf("%s has no Bool kernel", op)
		}
		return binaryT(a, b, dims, func(x, y bool) bool { return x == y }), nil
	case dtypes.Int64:
		return orderedCompare[int64](op, a, b, dims), nil
	case dtypes.Float32:
		return orderedCompare[float32](op, a, b, dims), nil
	case dtypes.Float64:
		return orderedCompare[float64](op, a, b, dims), nil
	}
	return nil, errors.Errorf("%s has no %s kernel", op, a.DType())
}

func orderedCompare[T numElem](op string, a, b *tensors.Tensor, dims []int64) *tensors.Tensor {
	var f func(x, y T) bool
	switch op {
	case "Equal":
		f = func(x, y T) bool { return x == y }
	case "Less":
		f = func(x, y T) bool { return x < y }
	case "Greater":
		f = func(x, y T) bool { return x > y }
	case "LessOrEqual":
		f = func(x, y T) bool { return x <= y }
	case "GreaterOrEqual":
		f = func(x, y T) bool { return x >= y }
	}
	return binaryT(a, b, dims, f)
}

func evalWhere(c, x, y *tensors.Tensor) (*tensors.Tensor, error) {
	if c.DType() != dtypes.Bool {
		return nil, errors.Errorf("Where requires a Bool condition, got %s", c.DType())
	}
	if err := sameDType("Where", x, y); err != nil {
		return nil, err
	}
	dims, err := broadcastDims(c.Dimensions(), x.Dimensions())
	if err == nil {
		dims, err = broadcastDims(dims, y.Dimensions())
	}
	if err != nil {
		return nil, err
	}
	switch x.DType() {
	case dtypes.Bool:
		return whereT[bool](c, x, y, dims), nil
	case dtypes.Int64:
		return whereT[int64](c, x, y, dims), nil
	case dtypes.Float32:
		return whereT[float32](c, x, y, dims), nil
	case dtypes.Float64:
		return whereT[float64](c, x, y, dims), nil
	}
	return nil, errors.Errorf("Where has no %s kernel", x.DType())
}

func whereT[T elem](c, x, y *tensors.Tensor, dims []int64) *tensors.Tensor {
	cm := broadcastMap(c.Dimensions(), dims)
	xm := broadcastMap(x.Dimensions(), dims)
	ym := broadcastMap(y.Dimensions(), dims)
	cd := tensors.FlatData[bool](c)
	xd, yd := tensors.FlatData[T](x), tensors.FlatData[T](y)
	out := make([]T, len(cm))
	for i := range out {
		if cd[cm[i]] {
			out[i] = xd[xm[i]]
		} else {
			out[i] = yd[ym[i]]
		}
	}
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

func evalCast(n *protos.NodeProto, fr *frame, a *tensors.Tensor) (*tensors.Tensor, error) {
	code, err := fr.attrIn(n, "to")
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, errors.New("Cast requires the to attribute")
	}
	to, err := types.DTypeFromProto(protos.DataType(code.I))
	if err != nil {
		return nil, err
	}
	if to == a.DType() {
		return a, nil
	}
	dims := a.Dimensions()
	switch a.DType() {
	case dtypes.Bool:
		return castFromBool(a, to, dims)
	case dtypes.Int64:
		return castNumeric[int64](a, to, dims)
	case dtypes.Float32:
		return castNumeric[float32](a, to, dims)
	case dtypes.Float64:
		return castNumeric[float64](a, to, dims)
	}
	return nil, errors.Errorf("Cast has no %s kernel", a.DType())
}

func castFromBool(a *tensors.Tensor, to dtypes.DType, dims []int64) (*tensors.Tensor, error) {
	src := tensors.FlatData[bool](a)
	switch to {
	case dtypes.Int64:
		return fromBoolT[int64](src, dims), nil
	case dtypes.Float32:
		return fromBoolT[float32](src, dims), nil
	case dtypes.Float64:
		return fromBoolT[float64](src, dims), nil
	}
	return nil, errors.Errorf("Cast cannot produce %s", to)
}

func fromBoolT[T numElem](src []bool, dims []int64) *tensors.Tensor {
	out := make([]T, len(src))
	for i, v := range src {
		if v {
			out[i] = 1
		}
	}
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

func castNumeric[S numElem](a *tensors.Tensor, to dtypes.DType, dims []int64) (*tensors.Tensor, error) {
	src := tensors.FlatData[S](a)
	switch to {
	case dtypes.Bool:
		out := make([]bool, len(src))
		for i, v := range src {
			out[i] = v != 0
		}
		return tensors.FromFlatDataAndDimensions(out, dims...), nil
	case dtypes.Int64:
		return castT[S, int64](src, dims), nil
	case dtypes.Float32:
		return castT[S, float32](src, dims), nil
	case dtypes.Float64:
		return castT[S, float64](src, dims), nil
	}
	return nil, errors.Errorf("Cast cannot produce %s", to)
}

func castT[S, D numElem](src []S, dims []int64) *tensors.Tensor {
	out := make([]D, len(src))
	for i, v := range src {
		out[i] = D(v)
	}
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

// evalConstant materializes the single value attribute of a Constant
// node.
func evalConstant(n *protos.NodeProto, fr *frame) (*tensors.Tensor, error) {
	if a, err := fr.attrIn(n, "value"); err != nil {
		return nil, err
	} else if a != nil {
		if a.T == nil {
			return nil, errors.New("Constant has a nil value tensor")
		}
		return tensors.FromProto(a.T)
	}
	if a, err := fr.attrIn(n, "value_int"); err != nil {
		return nil, err
	} else if a != nil {
		return tensors.FromScalar(a.I), nil
	}
	if a, err := fr.attrIn(n, "value_ints"); err != nil {
		return nil, err
	} else if a != nil {
		return tensors.FromFlatDataAndDimensions(slices.Clone(a.Ints), int64(len(a.Ints))), nil
	}
	if a, err := fr.attrIn(n, "value_float"); err != nil {
		return nil, err
	} else if a != nil {
		return tensors.FromScalar(a.F), nil
	}
	if a, err := fr.attrIn(n, "value_floats"); err != nil {
		return nil, err
	} else if a != nil {
		return tensors.FromFlatDataAndDimensions(slices.Clone(a.Floats), int64(len(a.Floats))), nil
	}
	for _, name := range []string{"value_string", "value_strings"} {
		if a, err := fr.attrIn(n, name); err != nil {
			return nil, err
		} else if a != nil {
			return nil, errors.New("string constants are not supported")
		}
	}
	return nil, errors.New("Constant carries no value attribute")
}

func evalReshape(n *protos.NodeProto, fr *frame, data, shape *tensors.Tensor) (*tensors.Tensor, error) {
	allowZero, err := fr.intAttrOr(n, "allowzero", 0)
	if err != nil {
		return nil, err
	}
	spec, err := int64Vector(shape, "shape")
	if err != nil {
		return nil, err
	}
	dims, err := reshapeDims(data.Dimensions(), spec, allowZero != 0, data.Size())
	if err != nil {
		return nil, err
	}
	return data.WithShape(dims...), nil
}

// reshapeDims resolves a target shape: a 0 copies the input extent at
// the same position unless allowZero, and a single -1 absorbs the
// remaining elements.
func reshapeDims(in, spec []int64, allowZero bool, size int64) ([]int64, error) {
	out := slices.Clone(spec)
	wild := -1
	known := int64(1)
	for i, d := range out {
		switch {
		case d == -1:
			if wild >= 0 {
				return nil, errors.New("shape has more than one -1 entry")
			}
			wild = i
			continue
		case d < 0:
			return nil, errors.Errorf("shape entry #%d is %d", i, d)
		case d == 0 && !allowZero:
			if i >= len(in) {
				return nil, errors.Errorf("shape entry #%d is 0 but the data has rank %d", i, len(in))
			}
			out[i] = in[i]
		}
		known *= out[i]
	}
	if wild >= 0 {
		if known == 0 || size%known != 0 {
			return nil, errors.Errorf("cannot infer the -1 extent: %d elements over %d", size, known)
		}
		out[wild] = size / known
	} else if known != size {
		return nil, errors.Errorf("shape holds %d elements, the data has %d", known, size)
	}
	return out, nil
}

func evalConcat(n *protos.NodeProto, fr *frame, ins []*tensors.Tensor) (*tensors.Tensor, error) {
	a, err := fr.attrIn(n, "axis")
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errors.New("Concat requires the axis attribute")
	}
	if len(ins) == 0 {
		return nil, errors.New("Concat takes at least one input")
	}
	for i, t := range ins {
		if t == nil {
			return nil, errors.Errorf("Concat misses input #%d", i)
		}
	}
	first := ins[0]
	ax, err := normAxis(a.I, first.Rank(), "Concat")
	if err != nil {
		return nil, err
	}
	dims := first.Dimensions()
	total := int64(0)
	for i, t := range ins {
		if t.DType() != first.DType() {
			return nil, errors.Errorf("Concat element types differ: %s vs %s", first.DType(), t.DType())
		}
		td := t.Dimensions()
		if len(td) != len(dims) {
			return nil, errors.Errorf("Concat ranks differ: %d vs %d", len(dims), len(td))
		}
		for j := range td {
			if j != ax && td[j] != dims[j] {
				return nil, errors.Errorf("input #%d extent %d at axis %d, expected %d", i, td[j], j, dims[j])
			}
		}
		total += td[ax]
	}
	dims[ax] = total
	switch first.DType() {
	case dtypes.Bool:
		return concatT[bool](ins, ax, dims), nil
	case dtypes.Int64:
		return concatT[int64](ins, ax, dims), nil
	case dtypes.Float32:
		return concatT[float32](ins, ax, dims), nil
	case dtypes.Float64:
		return concatT[float64](ins, ax, dims), nil
	}
	return nil, errors.Errorf("Concat has no %s kernel", first.DType())
}

func concatT[T elem](ins []*tensors.Tensor, ax int, dims []int64) *tensors.Tensor {
	outer := prod(dims[:ax])
	inner := prod(dims[ax+1:])
	width := dims[ax] * inner
	out := make([]T, prod(dims))
	base := int64(0)
	for _, t := range ins {
		src := tensors.FlatData[T](t)
		w := t.Dimensions()[ax] * inner
		for o := int64(0); o < outer; o++ {
			copy(out[o*width+base:o*width+base+w], src[o*w:(o+1)*w])
		}
		base += w
	}
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

func evalSplit(n *protos.NodeProto, fr *frame, ins []*tensors.Tensor) ([]*tensors.Tensor, error) {
	data, err := arg(ins, 0, "Split")
	if err != nil {
		return nil, err
	}
	axis, err := fr.intAttrOr(n, "axis", 0)
	if err != nil {
		return nil, err
	}
	ax, err := normAxis(axis, data.Rank(), "Split")
	if err != nil {
		return nil, err
	}
	if a, err := fr.attrIn(n, "num_outputs"); err != nil {
		return nil, err
	} else if a != nil && a.I != int64(len(n.Output)) {
		return nil, errors.Errorf("num_outputs is %d, the node has %d outputs", a.I, len(n.Output))
	}
	extent := data.Dimensions()[ax]
	parts, has, err := fr.axesOperand(n, 1, "split")
	if err != nil {
		return nil, err
	}
	if has {
		if len(parts) != len(n.Output) {
			return nil, errors.Errorf("split names %d parts for %d outputs", len(parts), len(n.Output))
		}
		total := int64(0)
		for i, p := range parts {
			if p < 0 {
				return nil, errors.Errorf("split part #%d is negative (%d)", i, p)
			}
			total += p
		}
		if total != extent {
			return nil, errors.Errorf("split parts sum to %d, the axis extent is %d", total, extent)
		}
	} else {
		count := int64(len(n.Output))
		if count == 0 {
			return nil, errors.New("Split has no outputs")
		}
		if extent%count != 0 {
			return nil, errors.Errorf("axis extent %d does not split into %d equal parts", extent, count)
		}
		parts = make([]int64, count)
		for i := range parts {
			parts[i] = extent / count
		}
	}
	switch data.DType() {
	case dtypes.Bool:
		return splitT[bool](data, ax, parts), nil
	case dtypes.Int64:
		return splitT[int64](data, ax, parts), nil
	case dtypes.Float32:
		return splitT[float32](data, ax, parts), nil
	case dtypes.Float64:
		return splitT[float64](data, ax, parts), nil
	}
	return nil, errors.Errorf("Split has no %s kernel", data.DType())
}

func splitT[T elem](data *tensors.Tensor, ax int, parts []int64) []*tensors.Tensor {
	dims := data.Dimensions()
	outer := prod(dims[:ax])
	inner := prod(dims[ax+1:])
	src := tensors.FlatData[T](data)
	srcWidth := dims[ax] * inner
	out := make([]*tensors.Tensor, len(parts))
	base := int64(0)
	for pi, p := range parts {
		od := slices.Clone(dims)
		od[ax] = p
		w := p * inner
		buf := make([]T, outer*w)
		for o := int64(0); o < outer; o++ {
			copy(buf[o*w:(o+1)*w], src[o*srcWidth+base:o*srcWidth+base+w])
		}
		out[pi] = tensors.FromFlatDataAndDimensions(buf, od...)
		base += w
	}
	return out
}

func evalSqueeze(n *protos.NodeProto, fr *frame, data *tensors.Tensor) (*tensors.Tensor, error) {
	axes, has, err := fr.axesOperand(n, 1, "axes")
	if err != nil {
		return nil, err
	}
	dims := data.Dimensions()
	if !has {
		var out []int64
		for _, d := range dims {
			if d != 1 {
				out = append(out, d)
			}
		}
		return data.WithShape(out...), nil
	}
	drop := make([]bool, len(dims))
	for _, a := range axes {
		ax, err := normAxis(a, len(dims), "Squeeze")
		if err != nil {
			return nil, err
		}
		if drop[ax] {
			return nil, errors.Errorf("axis %d repeated", ax)
		}
		if dims[ax] != 1 {
			return nil, errors.Errorf("axis %d has extent %d, only 1-extent axes squeeze", ax, dims[ax])
		}
		drop[ax] = true
	}
	out := make([]int64, 0, len(dims))
	for i, d := range dims {
		if !drop[i] {
			out = append(out, d)
		}
	}
	return data.WithShape(out...), nil
}

func evalUnsqueeze(n *protos.NodeProto, fr *frame, data *tensors.Tensor) (*tensors.Tensor, error) {
	axes, has, err := fr.axesOperand(n, 1, "axes")
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, errors.New("Unsqueeze requires axes")
	}
	dims := data.Dimensions()
	outRank := len(dims) + len(axes)
	isNew := make([]bool, outRank)
	for _, a := range axes {
		ax, err := normAxis(a, outRank, "Unsqueeze")
		if err != nil {
			return nil, err
		}
		if isNew[ax] {
			return nil, errors.Errorf("axis %d repeated", ax)
		}
		isNew[ax] = true
	}
	out := make([]int64, 0, outRank)
	next := 0
	for i := 0; i < outRank; i++ {
		if isNew[i] {
			out = append(out, 1)
		} else {
			out = append(out, dims[next])
			next++
		}
	}
	return data.WithShape(out...), nil
}

func evalReduceSum(n *protos.NodeProto, fr *frame, data *tensors.Tensor) (*tensors.Tensor, error) {
	keepDims, err := fr.intAttrOr(n, "keepdims", 1)
	if err != nil {
		return nil, err
	}
	noop, err := fr.intAttrOr(n, "noop_with_empty_axes", 0)
	if err != nil {
		return nil, err
	}
	axes, has, err := fr.axesOperand(n, 1, "axes")
	if err != nil {
		return nil, err
	}
	dims := data.Dimensions()
	if !has || len(axes) == 0 {
		if noop != 0 {
			return data, nil
		}
		axes = make([]int64, len(dims))
		for i := range axes {
			axes[i] = int64(i)
		}
	}
	reduce := make([]bool, len(dims))
	for _, a := range axes {
		ax, err := normAxis(a, len(dims), "ReduceSum")
		if err != nil {
			return nil, err
		}
		reduce[ax] = true
	}
	outDims := make([]int64, 0, len(dims))
	for i, d := range dims {
		switch {
		case !reduce[i]:
			outDims = append(outDims, d)
		case keepDims != 0:
			outDims = append(outDims, 1)
		}
	}
	// Output strides per input axis; reduced axes contribute nothing,
	// which makes the accumulation identical with and without keepdims.
	strides := make([]int64, len(dims))
	stride := int64(1)
	for i := len(dims) - 1; i >= 0; i-- {
		if !reduce[i] {
			strides[i] = stride
			stride *= dims[i]
		}
	}
	switch data.DType() {
	case dtypes.Int64:
		return reduceSumT[int64](data, strides, outDims), nil
	case dtypes.Float32:
		return reduceSumT[float32](data, strides, outDims), nil
	case dtypes.Float64:
		return reduceSumT[float64](data, strides, outDims), nil
	}
	return nil, errors.Errorf("ReduceSum has no %s kernel", data.DType())
}

func reduceSumT[T numElem](data *tensors.Tensor, strides, outDims []int64) *tensors.Tensor {
	src := tensors.FlatData[T](data)
	out := make([]T, prod(outDims))
	dims := data.Dimensions()
	coord := make([]int64, len(dims))
	for _, v := range src {
		var at int64
		for i := range coord {
			at += coord[i] * strides[i]
		}
		out[at] += v
		for i := len(coord) - 1; i >= 0; i-- {
			coord[i]++
			if coord[i] < dims[i] {
				break
			}
			coord[i] = 0
		}
	}
	return tensors.FromFlatDataAndDimensions(out, outDims...)
}

func evalShape(n *protos.NodeProto, fr *frame, data *tensors.Tensor) (*tensors.Tensor, error) {
	start, err := fr.intAttrOr(n, "start", 0)
	if err != nil {
		return nil, err
	}
	end := int64(data.Rank())
	if a, err := fr.attrIn(n, "end"); err != nil {
		return nil, err
	} else if a != nil {
		end = a.I
	}
	s, e := shapeWindow(start, end, data.Rank())
	window := data.Dimensions()[s:e]
	return tensors.FromFlatDataAndDimensions(slices.Clone(window), int64(len(window))), nil
}

// shapeWindow resolves the [start, end) slice of the dimension list:
// negatives count from the back and both ends clamp to the rank.
func shapeWindow(start, end int64, rank int) (int, int) {
	r := int64(rank)
	if start < 0 {
		start += r
	}
	if end < 0 {
		end += r
	}
	start = clamp(start, 0, r)
	end = clamp(end, 0, r)
	if end < start {
		end = start
	}
	return int(start), int(end)
}

// stackTensors concatenates the per-iteration values of a scan output
// along a new leading axis. All parts must agree on element type and
// dimensions.
func stackTensors(parts []*tensors.Tensor) (*tensors.Tensor, error) {
	first := parts[0]
	dims := first.Dimensions()
	for _, t := range parts[1:] {
		if t.DType() != first.DType() || !slices.Equal(t.Dimensions(), dims) {
			return nil, errors.Errorf("iterations disagree: %s vs %s", describe(first), describe(t))
		}
	}
	outDims := append([]int64{int64(len(parts))}, dims...)
	switch first.DType() {
	case dtypes.Bool:
		return stackT[bool](parts, outDims), nil
	case dtypes.Int64:
		return stackT[int64](parts, outDims), nil
	case dtypes.Float32:
		return stackT[float32](parts, outDims), nil
	case dtypes.Float64:
		return stackT[float64](parts, outDims), nil
	}
	return nil, errors.Errorf("%s tensors are not supported", first.DType())
}

func stackT[T elem](parts []*tensors.Tensor, dims []int64) *tensors.Tensor {
	out := make([]T, 0, prod(dims))
	for _, t := range parts {
		out = append(out, tensors.FlatData[T](t)...)
	}
	return tensors.FromFlatDataAndDimensions(out, dims...)
}

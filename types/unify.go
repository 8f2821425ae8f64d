// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package types

import (
	"github.com/pkg/errors"
)

// Unify returns the most specific type that accepts values of both a and b,
// generalizing wherever the two disagree: differing known extents become
// unknown dimensions, differing ranks become unranked shapes. Element types
// and variants must match; nil (untyped) unifies with anything, yielding
// the other side.
//
// This is the merge used when two alternative producers feed one value,
// such as the branches of a conditional.
func Unify(a, b Type) (Type, error) {
	if a == nil {
		return b, nil
	}
	if b == nil {
		return a, nil
	}
	switch at := a.(type) {
	case Tensor:
		bt, ok := b.(Tensor)
		if !ok {
			return nil, variantMismatch(a, b)
		}
		if at.DType != bt.DType {
			return nil, errors.Errorf("cannot unify tensor element types %s and %s", at.DType, bt.DType)
		}
		return Tensor{DType: at.DType, Shape: unifyShapes(at.Shape, bt.Shape)}, nil
	case Sequence:
		bt, ok := b.(Sequence)
		if !ok {
			return nil, variantMismatch(a, b)
		}
		elem, err := Unify(at.Elem, bt.Elem)
		if err != nil {
			return nil, err
		}
		return Sequence{Elem: elem}, nil
	case Optional:
		bt, ok := b.(Optional)
		if !ok {
			return nil, variantMismatch(a, b)
		}
		elem, err := Unify(at.Elem, bt.Elem)
		if err != nil {
			return nil, err
		}
		return Optional{Elem: elem}, nil
	case Map:
		bt, ok := b.(Map)
		if !ok {
			return nil, variantMismatch(a, b)
		}
		if at.Key != bt.Key {
			return nil, errors.Errorf("cannot unify map key types %s and %s", at.Key, bt.Key)
		}
		value, err := Unify(at.Value, bt.Value)
		if err != nil {
			return nil, err
		}
		return Map{Key: at.Key, Value: value}, nil
	}
	return nil, errors.Errorf("Unify does not handle %T", a)
}

func variantMismatch(a, b Type) error {
	return errors.Errorf("cannot unify %s type with %s type (%s vs %s)", a.variant(), b.variant(), a, b)
}

func unifyShapes(a, b Shape) Shape {
	if !a.HasRank() || !b.HasRank() || a.Rank() != b.Rank() {
		return Unranked()
	}
	out := Shape{hasRank: true, dims: make([]Dim, a.Rank())}
	for i := range out.dims {
		out.dims[i] = unifyDims(a.dims[i], b.dims[i])
	}
	return out
}

func unifyDims(a, b Dim) Dim {
	if a == b {
		return a
	}
	return UnknownDim()
}

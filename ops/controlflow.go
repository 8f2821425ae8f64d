// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// If selects between the results of two subgraphs on a Bool scalar
// condition. The branches declare no arguments; values from the
// enclosing graph flow in by capture. Both must return the same number
// of results and the output types unify pairwise.
func If(cond *graph.Value, then, els *graph.Graph) []*graph.Value {
	s := opSpec{name: "If", version: 16, infer: inferIf(then, els)}
	attrs := []graph.Attr{
		{Name: "then_branch", Value: graph.GraphAttr{Value: then}},
		{Name: "else_branch", Value: graph.GraphAttr{Value: els}},
	}
	return graph.Apply(s, []*graph.Value{cond}, attrs)
}

func inferIf(then, els *graph.Graph) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		if then == nil || els == nil {
			return nil, errors.New("both branches are required")
		}
		if len(then.DeclaredArguments()) > 0 || len(els.DeclaredArguments()) > 0 {
			return nil, errors.New("branches take no arguments; values from the enclosing graph flow in by capture")
		}
		ct, ok, err := tensorIn(inputs, 0, "condition")
		if err != nil {
			return nil, err
		}
		if ok {
			if err := checkScalar(ct, dtypes.Bool, "condition"); err != nil {
				return nil, err
			}
		}
		thenRes := then.ResultValues()
		elseRes := els.ResultValues()
		if len(thenRes) != len(elseRes) {
			return nil, errors.Errorf("branches return %d and %d results", len(thenRes), len(elseRes))
		}
		if len(thenRes) == 0 {
			return nil, errors.New("branches must return at least one result")
		}
		out := make([]types.Type, len(thenRes))
		for i := range out {
			u, err := types.Unify(thenRes[i].Type(), elseRes[i].Type())
			if err != nil {
				return nil, errors.WithMessagef(err, "branch results #%d disagree", i)
			}
			out[i] = u
		}
		return out, nil
	}
}

// Loop runs body up to tripCount times while its continue condition
// holds. Either of tripCount (an Int64 scalar) and cond (a Bool scalar)
// may be nil. The body declares 2+N arguments with WithArguments, the
// iteration number, the incoming condition and the N carried values,
// and returns the outgoing condition, the N carried values and K
// per-iteration scan values. The outputs are the N final carried values
// followed by the K scan values stacked along a new leading axis.
func Loop(tripCount, cond *graph.Value, initial []*graph.Value, body *graph.Graph) []*graph.Value {
	inputs := make([]*graph.Value, 0, len(initial)+2)
	inputs = append(inputs, tripCount, cond)
	inputs = append(inputs, initial...)
	s := opSpec{name: "Loop", version: 16, infer: inferLoop(len(initial), body)}
	attrs := []graph.Attr{{Name: "body", Value: graph.GraphAttr{Value: body}}}
	return graph.Apply(s, inputs, attrs)
}

func inferLoop(n int, body *graph.Graph) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		if body == nil {
			return nil, errors.New("a body graph is required")
		}
		declared := body.DeclaredArguments()
		if declared == nil {
			return nil, errors.New("the body must declare its arguments with WithArguments")
		}
		if len(declared) != n+2 {
			return nil, errors.Errorf("the body declares %d arguments, want 2+%d for the iteration number, the condition and the carried values", len(declared), n)
		}
		if err := declaredScalar(declared[0], dtypes.Int64, "the iteration number argument"); err != nil {
			return nil, err
		}
		if err := declaredScalar(declared[1], dtypes.Bool, "the condition argument"); err != nil {
			return nil, err
		}
		if err := optionalScalar(inputs, 0, dtypes.Int64, "the trip count"); err != nil {
			return nil, err
		}
		if err := optionalScalar(inputs, 1, dtypes.Bool, "the initial condition"); err != nil {
			return nil, err
		}
		for i := 0; i < n; i++ {
			in := inputs[2+i]
			if in == nil {
				return nil, errors.Errorf("carried value #%d cannot be omitted", i)
			}
			if _, err := types.Unify(declared[2+i].Type(), in.Type()); err != nil {
				return nil, errors.WithMessagef(err, "carried value #%d does not match the body argument", i)
			}
		}
		results := body.ResultValues()
		if len(results) < 1+n {
			return nil, errors.Errorf("the body returns %d results, want at least 1+%d for the condition and the carried values", len(results), n)
		}
		if err := declaredScalar(results[0], dtypes.Bool, "the condition result"); err != nil {
			return nil, err
		}
		out := make([]types.Type, 0, len(results)-1)
		for i := 0; i < n; i++ {
			u, err := types.Unify(inputs[2+i].Type(), results[1+i].Type())
			if err != nil {
				return nil, errors.WithMessagef(err, "carried value #%d changes type across iterations", i)
			}
			out = append(out, u)
		}
		for j := 0; j < len(results)-1-n; j++ {
			typ := results[1+n+j].Type()
			if typ == nil {
				out = append(out, nil)
				continue
			}
			t, ok := typ.(types.Tensor)
			if !ok {
				return nil, errors.Errorf("scan result #%d must be a tensor, got %s", j, typ)
			}
			if !t.Shape.HasRank() {
				out = append(out, types.MakeUnranked(t.DType))
				continue
			}
			// Iterations stack along a new leading axis of unknown extent.
			dims := append([]types.Dim{types.UnknownDim()}, t.Shape.Dims()...)
			out = append(out, types.Tensor{DType: t.DType, Shape: dimsShape(dims)})
		}
		return out, nil
	}
}

// optionalScalar checks input #i as a scalar of the given dtype when it
// is present and typed.
func optionalScalar(inputs []*graph.Value, i int, dt dtypes.DType, what string) error {
	if i >= len(inputs) || inputs[i] == nil {
		return nil
	}
	t, ok, err := tensorIn(inputs, i, what)
	if err != nil || !ok {
		return err
	}
	return checkScalar(t, dt, what)
}

// declaredScalar checks a subgraph argument or result as a scalar of
// the given dtype, tolerating an untyped value.
func declaredScalar(v *graph.Value, dt dtypes.DType, what string) error {
	typ := v.Type()
	if typ == nil {
		return nil
	}
	t, ok := typ.(types.Tensor)
	if !ok {
		return errors.Errorf("%s must be a tensor, got %s", what, typ)
	}
	return checkScalar(t, dt, what)
}

// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"github.com/pkg/errors"
)

// Failures panic with an error wrapping one of these sentinels, so callers
// that convert panics with exceptions.TryCatch[error] can classify them
// with errors.Is.
var (
	// ErrConstruction marks malformed graph construction: invalid
	// attributes, mismatched arguments, conflicting names.
	ErrConstruction = errors.New("invalid graph construction")

	// ErrInference marks a type inference failure while applying an
	// operator to incompatible inputs.
	ErrInference = errors.New("type inference failed")

	// ErrBuild marks a failure to assemble a graph for serialization:
	// cycles, values leaking out of their scope, unused arguments.
	ErrBuild = errors.New("graph build failed")
)

func panicConstructionf(format string, args ...any) {
	panic(errors.Wrapf(ErrConstruction, format, args...))
}

func panicInferencef(format string, args ...any) {
	panic(errors.Wrapf(ErrInference, format, args...))
}

func panicBuildf(format string, args ...any) {
	panic(errors.Wrapf(ErrBuild, format, args...))
}

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package artifact

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrInvalidDeclaration is returned for malformed declarations.
	ErrInvalidDeclaration = errors.New("invalid artifact declaration")
	// ErrUnknownDependency is returned when a declaration or a sweep refers to
	// an artifact that has not been registered.
	ErrUnknownDependency = errors.New("unknown artifact dependency")
	// ErrNotFound is returned by lookups for unregistered artifacts.
	ErrNotFound = errors.New("artifact not found")
)

// DependencyError names the missing input of a declaration.
type DependencyError struct {
	// Artifact is the name of the artifact being declared; empty when the
	// reference comes from a sweep.
	Artifact string
	Missing  uuid.UUID
	// Ref is the reference as it was written, when known.
	Ref string
}

func (e *DependencyError) Error() string {
	missing := e.Missing.String()
	if e.Ref != "" {
		missing = e.Ref
	}
	if e.Artifact == "" {
		return fmt.Sprintf("%s: %s", ErrUnknownDependency, missing)
	}
	return fmt.Sprintf("%s: artifact %q needs %s, which is not registered", ErrUnknownDependency, e.Artifact, missing)
}

func (e *DependencyError) Unwrap() error { return ErrUnknownDependency }

// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package provenance

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record exists for an identity.
	ErrNotFound = errors.New("provenance record not found")
	// ErrConflict is returned when an identity is re-declared with a different
	// recipe. It requires operator resolution and is never resolved automatically.
	ErrConflict = errors.New("provenance conflict")
	// ErrDrift is returned when a verified artifact is verified again with a
	// different content fingerprint.
	ErrDrift = errors.New("provenance drift")
)

// ConflictError describes a re-declaration whose recipe differs from the
// recorded one.
type ConflictError struct {
	ID             uuid.UUID
	Name           string
	RecordedRecipe string
	DeclaredRecipe string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: artifact %q (%s) is recorded with recipe %s but was declared with recipe %s",
		ErrConflict, e.Name, e.ID, short(e.RecordedRecipe), short(e.DeclaredRecipe))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// DriftError describes a fingerprint change on an already verified artifact.
type DriftError struct {
	ID       uuid.UUID
	Name     string
	Recorded string
	Observed string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("%s: artifact %q (%s) was verified as %s but now fingerprints as %s",
		ErrDrift, e.Name, e.ID, short(e.Recorded), short(e.Observed))
}

func (e *DriftError) Unwrap() error { return ErrDrift }

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

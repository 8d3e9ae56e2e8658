// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package provenance

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Record is the stored form of an artifact plus its build status.
type Record struct {
	ID            uuid.UUID   `json:"id" yaml:"id"`
	Name          string      `json:"name" yaml:"name"`
	Kind          string      `json:"kind" yaml:"kind"`
	Path          string      `json:"path" yaml:"path"`
	Cwd           string      `json:"cwd" yaml:"cwd"`
	Command       string      `json:"command" yaml:"command"`
	Documentation string      `json:"documentation,omitempty" yaml:"documentation,omitempty"`
	Inputs        []uuid.UUID `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	RecipeHash    string      `json:"recipe_hash" yaml:"recipe_hash"`

	Status      Status    `json:"status" yaml:"status"`
	Fingerprint string    `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	DeclaredAt  time.Time `json:"declared_at" yaml:"declared_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy so callers can never mutate a stored record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Inputs = slices.Clone(r.Inputs)
	return &c
}

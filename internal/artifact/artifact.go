// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package artifact

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/vk/benchgrid/internal/provenance"
)

// ID identifies an artifact. It is a name-based UUID, never random.
type ID = uuid.UUID

// namespace scopes artifact identities.
var namespace = uuid.MustParse("3f0c2a5e-8b1d-5c47-a6e2-9d4b71f0c8a3")

// NewID derives the identity of the artifact with the given kind and name.
func NewID(kind Kind, name string) ID {
	return uuid.NewSHA1(namespace, []byte(string(kind)+"\x00"+name))
}

// Declaration is what a campaign file says about an artifact.
type Declaration struct {
	Name          string
	Kind          Kind
	Path          string
	Cwd           string
	Command       string
	Documentation string
	Inputs        []ID
}

// Artifact is a registered declaration. Its fields are read through accessors
// and never change.
type Artifact struct {
	id         ID
	decl       Declaration
	recipeHash string
}

func (a *Artifact) ID() ID                { return a.id }
func (a *Artifact) Name() string          { return a.decl.Name }
func (a *Artifact) Kind() Kind            { return a.decl.Kind }
func (a *Artifact) Path() string          { return a.decl.Path }
func (a *Artifact) Cwd() string           { return a.decl.Cwd }
func (a *Artifact) Command() string       { return a.decl.Command }
func (a *Artifact) Documentation() string { return a.decl.Documentation }
func (a *Artifact) RecipeHash() string    { return a.recipeHash }

// Inputs returns a copy of the input identities in declared order.
func (a *Artifact) Inputs() []ID { return slices.Clone(a.decl.Inputs) }

func (a *Artifact) String() string {
	return fmt.Sprintf("%s %q", a.decl.Kind, a.decl.Name)
}

// Record converts the artifact into its provenance form.
func (a *Artifact) Record() *provenance.Record {
	return &provenance.Record{
		ID:            a.id,
		Name:          a.decl.Name,
		Kind:          string(a.decl.Kind),
		Path:          a.decl.Path,
		Cwd:           a.decl.Cwd,
		Command:       a.decl.Command,
		Documentation: a.decl.Documentation,
		Inputs:        slices.Clone(a.decl.Inputs),
		RecipeHash:    a.recipeHash,
	}
}

// RecipeHash summarises everything that determines how an artifact is
// produced. Documentation is not part of it.
func RecipeHash(d Declaration) string {
	h := sha256.New()
	writeField := func(data string) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(data)))
		h.Write(length[:])
		h.Write([]byte(data))
	}
	writeField(string(d.Kind))
	writeField(d.Name)
	writeField(d.Path)
	writeField(d.Cwd)
	writeField(d.Command)
	writeField(fmt.Sprint(len(d.Inputs)))
	for _, in := range d.Inputs {
		writeField(in.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

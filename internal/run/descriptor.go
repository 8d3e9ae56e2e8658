// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package run

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// namespace scopes descriptor identities so they never collide with artifact
// identities derived from the same bytes.
var namespace = uuid.MustParse("6c1f7d0e-3b1a-5d4e-9c55-0a4f2b8e7d31")

// Config holds everything a descriptor is made of.
type Config struct {
	Campaign  string
	Params    Params
	Artifacts []uuid.UUID
	OutputDir string
	Timeout   time.Duration
	// Recipe is an opaque fingerprint of how the job is executed (e.g. the
	// hashed command template). It is part of the identity so that changing
	// the command never reuses an earlier result.
	Recipe string
	// Index is the position of the descriptor in factory output order.
	Index int
}

// Descriptor is one fully resolved point of a sweep.
type Descriptor struct {
	id        uuid.UUID
	campaign  string
	params    Params
	artifacts []uuid.UUID
	outputDir string
	timeout   time.Duration
	recipe    string
	index     int

	mu     sync.Mutex
	status Status
}

// NewDescriptor builds a pending descriptor whose identity is derived from its
// content, so re-expanding the same sweep point always yields the same ID.
// The timeout bounds a run without changing what it computes and is left out
// of the identity.
func NewDescriptor(cfg Config) (*Descriptor, error) {
	if len(cfg.Params) == 0 {
		return nil, errors.New("run descriptor requires at least one parameter")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("run descriptor requires an output directory")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("run descriptor timeout must be positive, got %s", cfg.Timeout)
	}

	d := &Descriptor{
		campaign:  cfg.Campaign,
		params:    cfg.Params.Clone(),
		artifacts: slices.Clone(cfg.Artifacts),
		outputDir: cfg.OutputDir,
		timeout:   cfg.Timeout,
		recipe:    cfg.Recipe,
		index:     cfg.Index,
		status:    StatusPending,
	}
	d.id = d.identity()
	return d, nil
}

func (d *Descriptor) identity() uuid.UUID {
	h := sha256.New()
	writeField := func(data string) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(data)))
		h.Write(length[:])
		h.Write([]byte(data))
	}

	writeField(d.campaign)
	writeField(fmt.Sprint(len(d.params)))
	for _, p := range d.params {
		writeField(p.Axis)
		writeField(p.Value)
	}
	writeField(fmt.Sprint(len(d.artifacts)))
	for _, a := range d.artifacts {
		writeField(a.String())
	}
	writeField(d.outputDir)
	writeField(d.recipe)

	return uuid.NewSHA1(namespace, h.Sum(nil))
}

// ID returns the content-derived identity.
func (d *Descriptor) ID() uuid.UUID { return d.id }

// Key returns the identity as a string, used to key outcome maps.
func (d *Descriptor) Key() string { return d.id.String() }

func (d *Descriptor) Campaign() string { return d.campaign }

// Params returns a copy of the chosen axis values.
func (d *Descriptor) Params() Params { return d.params.Clone() }

// Artifacts returns a copy of the identities of every artifact the run needs.
func (d *Descriptor) Artifacts() []uuid.UUID { return slices.Clone(d.artifacts) }

// OutputDir is relative to the campaign's output root.
func (d *Descriptor) OutputDir() string { return d.outputDir }

func (d *Descriptor) Timeout() time.Duration { return d.timeout }

func (d *Descriptor) Recipe() string { return d.recipe }

// Index is the position of the descriptor in factory output order.
func (d *Descriptor) Index() int { return d.index }

// String is used in logs.
func (d *Descriptor) String() string {
	return fmt.Sprintf("%s[%s]", d.campaign, d.params)
}

// Status returns the current state.
func (d *Descriptor) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Start moves a pending descriptor to running.
func (d *Descriptor) Start() error {
	return d.transition(StatusPending, StatusRunning)
}

// Finish moves a running descriptor to the given terminal state. It succeeds
// exactly once.
func (d *Descriptor) Finish(final Status) error {
	if !final.IsTerminal() {
		return fmt.Errorf("%w: %s is not a terminal state", ErrInvalidTransition, final)
	}
	return d.transition(StatusRunning, final)
}

// Abandon finalises a descriptor that was never admitted as failed.
func (d *Descriptor) Abandon() error {
	return d.transition(StatusPending, StatusFailed)
}

func (d *Descriptor) transition(from, to Status) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.status != from {
		return fmt.Errorf("%w: %s -> %s for %s (currently %s)", ErrInvalidTransition, from, to, d.id, d.status)
	}
	d.status = to
	return nil
}

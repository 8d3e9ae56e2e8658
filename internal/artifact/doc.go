// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package artifact registers the build artifacts a campaign depends on
// (source repositories, simulator binaries, disk images, kernel images) and
// keeps them in a provenance DAG.
//
// An artifact's identity is derived from its kind and logical name, so the
// same declaration always maps to the same ID across sessions. What it takes
// to produce the artifact (path, working directory, command and inputs) is
// summarised separately in its recipe hash. Re-declaring an identity with a
// different recipe is a conflict that is reported, never silently resolved.
//
// A Registry is an explicit value. Inputs must be registered before the
// artifacts that use them, which keeps the graph acyclic by construction; the
// graph still re-checks it before producing a topological order.
package artifact

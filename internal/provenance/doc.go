// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package provenance keeps the durable record of every declared artifact: its
// identity, the recipe that produces it, the artifacts it was built from and
// how far it has progressed through declared, built and verified.
//
// # Responsibilities
//
// The Store is bookkeeping only. It never runs a build command; it detects
// drift (the same logical artifact re-declared with a different recipe, or a
// verified artifact whose content fingerprint changed) and guarantees that a
// record's status only moves forward.
//
// # Backends
//
// Durability is delegated to a Backend. The core needs nothing stronger than
// read-your-writes, so the in-memory, SQL and Redis implementations in
// internal/inmemorystore, internal/sqlstore and internal/redisstore are
// interchangeable.
package provenance

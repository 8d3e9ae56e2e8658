// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package sweep expands a parameter sweep into run descriptors.
//
// Axes are expanded depth-first in declared order. Each axis may restrict its
// values based on the values already chosen for earlier axes (for example, a
// CPU model that only supports the small workload size). Combinations that
// leave an axis with no legal value are pruned, and every remaining leaf
// becomes exactly one descriptor with its own output directory.
package sweep

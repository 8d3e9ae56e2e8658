// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package pool runs independent run descriptors on a bounded number of
// execution slots.
//
// # Admission
//
// Pending descriptors wait in a FIFO queue in the order they were produced
// and take a slot strictly in that order. At most the configured limit of
// jobs run at any moment.
//
// # Failure isolation
//
// Every job runs under its own deadline, derived from its descriptor's
// timeout and detached from the caller's cancellation. A job that exits
// non-zero, fails to start, or runs out of time becomes a terminal outcome;
// its siblings keep running. Cancelling the caller's context only stops
// intake: running jobs finish or time out, and descriptors that never got a
// slot are finalised as failed with ErrIntakeStopped.
//
// Run returns once every descriptor is terminal, with exactly one outcome per
// descriptor.
package pool

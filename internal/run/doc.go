// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

// Package run models one fully resolved point of a sweep.
//
// A Descriptor is immutable once created, apart from its status slot, which
// moves pending -> running -> {succeeded, failed, timed_out} and never back.
// Descriptors are produced by the sweep factory, finalised by the job pool and
// kept afterwards as the audit record of what ran.
package run

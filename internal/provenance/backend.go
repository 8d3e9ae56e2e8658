// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package provenance

import (
	"context"

	"github.com/google/uuid"
)

// Backend is the durable medium behind a Store.
//
// Implementations must provide read-your-writes consistency: a GetRecord that
// follows a successful PutRecord for the same ID observes it. They do not need
// to serialise writers; the Store does that per key.
type Backend interface {
	// PutRecord inserts or replaces the record stored under rec.ID.
	PutRecord(ctx context.Context, rec *Record) error
	// GetRecord returns the record for id, or an error wrapping ErrNotFound.
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)
	// ListRecords returns every stored record in no particular order.
	ListRecords(ctx context.Context) ([]*Record, error)
}

// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-record failure.
type ErrorKind string

// Per-record error kinds. Both cause the record to be skipped and reported;
// neither aborts the run on its own.
const (
	// KindValidation marks a malformed or out-of-range field.
	KindValidation ErrorKind = "validation"

	// KindReferential marks a dangling foreign key.
	KindReferential ErrorKind = "referential_integrity"
)

// ErrEmptySession marks a session with zero events. Such sessions are
// dropped with a counted, non-fatal skip.
var ErrEmptySession = errors.New("session has no events")

// RecordError describes one input record excluded from the run.
type RecordError struct {
	Kind   ErrorKind `json:"kind"`
	Entity string    `json:"entity"`
	ID     string    `json:"id"`
	Reason string    `json:"reason"`
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s %s: %s", e.Kind, e.Entity, e.ID, e.Reason)
}

// NewValidationError builds a validation RecordError.
func NewValidationError(entity, id, reason string) *RecordError {
	return &RecordError{Kind: KindValidation, Entity: entity, ID: id, Reason: reason}
}

// NewReferentialError builds a referential-integrity RecordError.
func NewReferentialError(entity, id, reason string) *RecordError {
	return &RecordError{Kind: KindReferential, Entity: entity, ID: id, Reason: reason}
}

// AbortThresholdError is returned when the per-record error rate exceeds
// the configured abort threshold. The run fails and partial results are
// discarded.
type AbortThresholdError struct {
	Seen      int
	Failed    int
	Rate      float64
	Threshold float64
}

func (e *AbortThresholdError) Error() string {
	return fmt.Sprintf("error rate %.4f over %d records exceeds abort threshold %.4f (%d failed)",
		e.Rate, e.Seen, e.Threshold, e.Failed)
}

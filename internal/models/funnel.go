// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package models

import "time"

// FunnelStage is the closed, ordered enumeration of funnel stages.
// Ordering is significant: stage progression within a session is monotonic
// non-decreasing along this order.
type FunnelStage int

// Funnel stages in progression order. StageNone orders below every real
// stage and marks sessions that produced no classifiable events.
const (
	StageNone FunnelStage = iota
	StageView
	StageCart
	StageCheckout
	StagePurchase
)

// Stages lists the reportable funnel stages in progression order.
var Stages = []FunnelStage{StageView, StageCart, StageCheckout, StagePurchase}

func (s FunnelStage) String() string {
	switch s {
	case StageView:
		return "view"
	case StageCart:
		return "cart"
	case StageCheckout:
		return "checkout"
	case StagePurchase:
		return "purchase"
	default:
		return "none"
	}
}

// FunnelEvent is a derived record tagging one raw session event (or one
// associated purchase) with the session's classified stage at that point.
// Funnel events are transient pipeline outputs, recomputable from source
// entities at any time.
type FunnelEvent struct {
	UserID    string      `json:"user_id"`
	SessionID string      `json:"session_id"`
	Stage     FunnelStage `json:"stage"`
	Timestamp time.Time   `json:"timestamp"`
	// ProductID is the product the underlying event referenced, if any.
	// Purchase-stage events carry one entry per purchased product.
	ProductID string `json:"product_id,omitempty"`
}

// CohortKey is the acquisition-period bucket index computed from a user's
// registration timestamp: floor((registration - window start) / bucket width).
type CohortKey int

// CohortOf computes the cohort bucket for a registration timestamp relative
// to the observation window start. Registrations before the window start
// fold into cohort 0 so pre-window acquisitions stay observable.
func CohortOf(registration, windowStart time.Time, bucketWidth time.Duration) CohortKey {
	if bucketWidth <= 0 {
		return 0
	}
	d := registration.Sub(windowStart)
	if d < 0 {
		return 0
	}
	return CohortKey(d / bucketWidth)
}

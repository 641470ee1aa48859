// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"sort"
	"time"

	"github.com/shopsight/shopsight/internal/models"
)

// stageOf maps a raw event type to its funnel stage. The mapping is total
// over the closed event enumeration. remove_from_cart is still a cart
// interaction and classifies as cart. Raw purchase events classify as
// checkout: the purchase stage is granted only by an associated transaction
// (see Reconstructor.Reconstruct), never by the event stream alone.
func stageOf(t models.EventType) models.FunnelStage {
	switch t {
	case models.EventView:
		return models.StageView
	case models.EventAddToCart, models.EventRemoveFromCart:
		return models.StageCart
	case models.EventCheckoutStart, models.EventPurchase:
		return models.StageCheckout
	default:
		return models.StageNone
	}
}

// Classify advances the running session stage for one event type. Stage
// progression is monotonic non-decreasing: an event whose stage orders
// below the current stage is recorded but never lowers the classification.
func Classify(t models.EventType, current models.FunnelStage) models.FunnelStage {
	if s := stageOf(t); s > current {
		return s
	}
	return current
}

// Reconstructor groups raw session events into ordered funnel events and
// classifies each with the session's running stage.
type Reconstructor struct {
	window      time.Duration
	users       map[string]struct{}
	txByUser    map[string][]*models.Transaction
	txBySession map[string][]*models.Transaction
}

// NewReconstructor indexes users and transactions for session association.
// Transactions must already have passed validation; per-user lists are kept
// in timestamp order.
func NewReconstructor(associationWindow time.Duration, users []models.User, txs []models.Transaction) *Reconstructor {
	r := &Reconstructor{
		window:      associationWindow,
		users:       make(map[string]struct{}, len(users)),
		txByUser:    make(map[string][]*models.Transaction),
		txBySession: make(map[string][]*models.Transaction),
	}
	for i := range users {
		r.users[users[i].UserID] = struct{}{}
	}
	for i := range txs {
		tx := &txs[i]
		r.txByUser[tx.UserID] = append(r.txByUser[tx.UserID], tx)
		if tx.SessionID != "" {
			r.txBySession[tx.SessionID] = append(r.txBySession[tx.SessionID], tx)
		}
	}
	for _, list := range r.txByUser {
		sort.Slice(list, func(i, j int) bool {
			if !list[i].Timestamp.Equal(list[j].Timestamp.Time) {
				return list[i].Timestamp.Before(list[j].Timestamp.Time)
			}
			return list[i].TransactionID < list[j].TransactionID
		})
	}
	return r
}

// Reconstruct produces the ordered funnel events for one session.
//
// The purchase stage is emitted only when a transaction is associated with
// the session: either it carries the session's id, or it belongs to the
// session's user, falls within [session start, last event + association
// window], and its line items intersect the products interacted with in the
// session. Otherwise the session's maximal stage is the last non-purchase
// classification observed.
//
// Sessions with zero events return ErrEmptySession; sessions referencing an
// unknown user return a referential-integrity RecordError.
func (r *Reconstructor) Reconstruct(s *models.Session) ([]models.FunnelEvent, error) {
	if _, ok := r.users[s.UserID]; !ok {
		return nil, NewReferentialError("session", s.SessionID, "unknown user "+s.UserID)
	}
	if len(s.Events) == 0 {
		return nil, ErrEmptySession
	}
	if err := validateSession(s); err != nil {
		return nil, err
	}

	out := make([]models.FunnelEvent, 0, len(s.Events)+1)
	stage := models.StageNone
	for _, ev := range s.Events {
		stage = Classify(ev.Type, stage)
		out = append(out, models.FunnelEvent{
			UserID:    s.UserID,
			SessionID: s.SessionID,
			Stage:     stage,
			Timestamp: ev.Timestamp.Time,
			ProductID: ev.ProductID,
		})
	}

	for _, tx := range r.associated(s) {
		for _, pid := range tx.ProductSet() {
			out = append(out, models.FunnelEvent{
				UserID:    s.UserID,
				SessionID: s.SessionID,
				Stage:     models.StagePurchase,
				Timestamp: tx.Timestamp.Time,
				ProductID: pid,
			})
		}
	}

	return out, nil
}

// associated returns the transactions linked to the session, in timestamp
// order. A transaction carrying the session id always counts; otherwise the
// association window and line-item intersection rules apply.
func (r *Reconstructor) associated(s *models.Session) []*models.Transaction {
	seen := make(map[string]struct{})
	var out []*models.Transaction
	for _, tx := range r.txBySession[s.SessionID] {
		seen[tx.TransactionID] = struct{}{}
		out = append(out, tx)
	}

	interacted := make(map[string]struct{})
	for _, pid := range s.ProductSet() {
		interacted[pid] = struct{}{}
	}
	if len(interacted) > 0 {
		deadline := s.LastEventTime().Add(r.window)
		for _, tx := range r.txByUser[s.UserID] {
			if _, dup := seen[tx.TransactionID]; dup {
				continue
			}
			if tx.Timestamp.Before(s.StartTime.Time) || tx.Timestamp.After(deadline) {
				continue
			}
			if !intersects(tx, interacted) {
				continue
			}
			out = append(out, tx)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp.Time) {
			return out[i].Timestamp.Before(out[j].Timestamp.Time)
		}
		return out[i].TransactionID < out[j].TransactionID
	})
	return out
}

func intersects(tx *models.Transaction, products map[string]struct{}) bool {
	for _, li := range tx.Items {
		if _, ok := products[li.ProductID]; ok {
			return true
		}
	}
	return false
}

// MaxStage returns the maximal stage of a reconstructed event sequence.
func MaxStage(events []models.FunnelEvent) models.FunnelStage {
	stage := models.StageNone
	for _, ev := range events {
		if ev.Stage > stage {
			stage = ev.Stage
		}
	}
	return stage
}

// SummarizeFunnel builds the per-stage summary table from session maximal
// stages. Count at each stage is the number of sessions that reached at
// least that stage; the conversion rate is relative to the previous stage,
// with the first stage reported as 1.0 whenever any session reached it.
func SummarizeFunnel(maxStages []models.FunnelStage) []models.FunnelSummaryRow {
	reached := make(map[models.FunnelStage]int64, len(models.Stages))
	for _, max := range maxStages {
		for _, stage := range models.Stages {
			if max >= stage {
				reached[stage]++
			}
		}
	}

	rows := make([]models.FunnelSummaryRow, 0, len(models.Stages))
	var prev int64
	for i, stage := range models.Stages {
		count := reached[stage]
		var rate float64
		switch {
		case i == 0:
			if count > 0 {
				rate = 1.0
			}
		case prev > 0:
			rate = float64(count) / float64(prev)
		}
		rows = append(rows, models.FunnelSummaryRow{
			Stage:              stage,
			StageName:          stage.String(),
			Count:              count,
			ConversionFromPrev: rate,
		})
		prev = count
	}
	return rows
}

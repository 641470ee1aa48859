// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package analytics

import (
	"fmt"
	"time"

	"github.com/shopsight/shopsight/internal/models"
	"github.com/shopsight/shopsight/internal/validation"
)

// validateUser checks a user record's fields.
func validateUser(u *models.User) *RecordError {
	if err := validation.ValidateStruct(u); err != nil {
		return NewValidationError("user", u.UserID, err.Error())
	}
	if u.RegistrationDate.IsZero() {
		return NewValidationError("user", u.UserID, "registration_date is required")
	}
	return nil
}

// validateCategories checks field constraints and walks each parent chain to
// reject cycles, returning the set of usable category ids.
func validateCategories(cats []models.Category) (map[string]*models.Category, []RecordError) {
	var errs []RecordError
	byID := make(map[string]*models.Category, len(cats))
	for i := range cats {
		c := &cats[i]
		if err := validation.ValidateStruct(c); err != nil {
			errs = append(errs, *NewValidationError("category", c.CategoryID, err.Error()))
			continue
		}
		byID[c.CategoryID] = c
	}

	valid := make(map[string]*models.Category, len(byID))
	for id, c := range byID {
		visited := map[string]struct{}{id: {}}
		cur := c
		ok := true
		for cur.ParentID != "" {
			if _, cycle := visited[cur.ParentID]; cycle {
				errs = append(errs, *NewValidationError("category", id, "cycle in category tree"))
				ok = false
				break
			}
			parent, exists := byID[cur.ParentID]
			if !exists {
				errs = append(errs, *NewReferentialError("category", id, "unknown parent "+cur.ParentID))
				ok = false
				break
			}
			visited[parent.CategoryID] = struct{}{}
			cur = parent
		}
		if ok {
			valid[id] = c
		}
	}
	return valid, errs
}

// validateProduct checks field constraints and the category reference.
func validateProduct(p *models.Product, categories map[string]*models.Category) *RecordError {
	if err := validation.ValidateStruct(p); err != nil {
		return NewValidationError("product", p.ProductID, err.Error())
	}
	if !p.BasePrice.IsPositive() {
		return NewValidationError("product", p.ProductID, "price must be positive")
	}
	if len(categories) > 0 {
		if _, ok := categories[p.CategoryID]; !ok {
			return NewReferentialError("product", p.ProductID, "unknown category "+p.CategoryID)
		}
	}
	return nil
}

// validateTransaction checks field constraints, the conservation invariants
// over line items, the observation window, and foreign keys. The first
// violation found wins; the record is skipped either way.
func validateTransaction(
	tx *models.Transaction,
	users map[string]*models.User,
	products map[string]struct{},
	windowStart, windowEnd time.Time,
) *RecordError {
	if err := validation.ValidateStruct(tx); err != nil {
		return NewValidationError("transaction", tx.TransactionID, err.Error())
	}
	for _, li := range tx.Items {
		if !li.UnitPrice.IsPositive() {
			return NewValidationError("transaction", tx.TransactionID,
				fmt.Sprintf("non-positive unit price for %s", li.ProductID))
		}
	}

	// Conservation: total (plus any discount) must equal the line items.
	itemTotal := tx.ItemTotal()
	if !tx.Subtotal.IsZero() && !tx.Subtotal.Equal(itemTotal) {
		return NewValidationError("transaction", tx.TransactionID,
			fmt.Sprintf("subtotal %s does not match line items %s", tx.Subtotal, itemTotal))
	}
	if !tx.Total.Add(tx.Discount).Equal(itemTotal) {
		return NewValidationError("transaction", tx.TransactionID,
			fmt.Sprintf("total %s (discount %s) does not match line items %s", tx.Total, tx.Discount, itemTotal))
	}

	if !windowStart.IsZero() && tx.Timestamp.Before(windowStart) {
		return NewValidationError("transaction", tx.TransactionID, "timestamp before observation window")
	}
	if !windowEnd.IsZero() && tx.Timestamp.After(windowEnd) {
		return NewValidationError("transaction", tx.TransactionID, "timestamp after observation window")
	}

	owner, ok := users[tx.UserID]
	if !ok {
		return NewReferentialError("transaction", tx.TransactionID, "unknown user "+tx.UserID)
	}
	if tx.Timestamp.Before(owner.RegistrationDate.Time) {
		return NewValidationError("transaction", tx.TransactionID, "timestamp precedes user registration")
	}
	if len(products) > 0 {
		for _, li := range tx.Items {
			if _, ok := products[li.ProductID]; !ok {
				return NewReferentialError("transaction", tx.TransactionID, "unknown product "+li.ProductID)
			}
		}
	}
	return nil
}

// validateSession checks field constraints, event type membership, and the
// non-decreasing event timestamp invariant.
func validateSession(s *models.Session) *RecordError {
	if err := validation.ValidateStruct(s); err != nil {
		return NewValidationError("session", s.SessionID, err.Error())
	}
	var prev time.Time
	for i, ev := range s.Events {
		if !ev.Type.Valid() {
			return NewValidationError("session", s.SessionID,
				fmt.Sprintf("unknown event type %q at index %d", ev.Type, i))
		}
		if i > 0 && ev.Timestamp.Before(prev) {
			return NewValidationError("session", s.SessionID,
				fmt.Sprintf("event timestamps regress at index %d", i))
		}
		prev = ev.Timestamp.Time
	}
	return nil
}

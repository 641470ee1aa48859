// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// GeoData carries the coarse location attributes attached to users and
// sessions by the generator. It is attribution metadata only; no analytics
// component keys on it.
type GeoData struct {
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Country   string `json:"country,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// User is a registered customer. Immutable once created.
// Invariant: RegistrationDate <= timestamp of any event or transaction
// referencing this user.
type User struct {
	UserID           string    `json:"user_id" validate:"required"`
	RegistrationDate Timestamp `json:"registration_date" validate:"required"`
	LastActive       Timestamp `json:"last_active"`
	Geo              *GeoData  `json:"geo_data,omitempty"`
}

// Subcategory is the generator's embedded child-category shape. Ingestion
// flattens subcategories into child Category records carrying ParentID.
type Subcategory struct {
	SubcategoryID string  `json:"subcategory_id" validate:"required"`
	Name          string  `json:"name"`
	ProfitMargin  float64 `json:"profit_margin,omitempty"`
}

// Category is a node in the acyclic category tree. ParentID is empty for
// top-level categories.
type Category struct {
	CategoryID    string        `json:"category_id" validate:"required"`
	Name          string        `json:"name"`
	ParentID      string        `json:"parent_id,omitempty"`
	ProfitMargin  float64       `json:"profit_margin,omitempty"`
	Subcategories []Subcategory `json:"subcategories,omitempty"`
}

// PricePoint is one entry of a product's price history. The analysis window
// treats price as constant; the history is carried for completeness only.
type PricePoint struct {
	Price decimal.Decimal `json:"price"`
	Date  Timestamp       `json:"date"`
}

// Product is a sellable item. Price must be positive and stock non-negative;
// both are enforced at ingestion.
type Product struct {
	ProductID     string          `json:"product_id" validate:"required"`
	Name          string          `json:"name"`
	CategoryID    string          `json:"category_id" validate:"required"`
	SubcategoryID string          `json:"subcategory_id,omitempty"`
	BasePrice     decimal.Decimal `json:"base_price"`
	CurrentStock  int             `json:"current_stock" validate:"gte=0"`
	IsActive      bool            `json:"is_active"`
	PriceHistory  []PricePoint    `json:"price_history,omitempty"`
	CreationDate  Timestamp       `json:"creation_date"`
}

// EventType is the closed enumeration of raw browsing event types.
type EventType string

// Raw event types emitted by the generator within a session.
const (
	EventView           EventType = "view"
	EventAddToCart      EventType = "add_to_cart"
	EventRemoveFromCart EventType = "remove_from_cart"
	EventCheckoutStart  EventType = "checkout_start"
	EventPurchase       EventType = "purchase"
)

// Valid reports whether t is a member of the closed event type set.
func (t EventType) Valid() bool {
	switch t {
	case EventView, EventAddToCart, EventRemoveFromCart, EventCheckoutStart, EventPurchase:
		return true
	}
	return false
}

// Event is a single timestamped action within a session. Created by the
// external generator, immutable, consumed read-only.
type Event struct {
	Timestamp    Timestamp `json:"timestamp" validate:"required"`
	Type         EventType `json:"type" validate:"required"`
	ProductID    string    `json:"product_id,omitempty"`
	CategoryID   string    `json:"category_id,omitempty"`
	ViewDuration int       `json:"view_duration,omitempty"`
}

// DeviceProfile describes the client device a session originated from.
type DeviceProfile struct {
	Type    string `json:"type,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// Session is one browsing session belonging to exactly one user.
// Invariant: Events are ordered with non-decreasing timestamps.
type Session struct {
	SessionID        string         `json:"session_id" validate:"required"`
	UserID           string         `json:"user_id" validate:"required"`
	StartTime        Timestamp      `json:"start_time" validate:"required"`
	EndTime          Timestamp      `json:"end_time"`
	DurationSeconds  int            `json:"duration_seconds,omitempty"`
	Geo              *GeoData       `json:"geo_data,omitempty"`
	Device           *DeviceProfile `json:"device_profile,omitempty"`
	Referrer         string         `json:"referrer,omitempty"`
	ConversionStatus string         `json:"conversion_status,omitempty"`
	ViewedProducts   []string       `json:"viewed_products,omitempty"`
	Events           []Event        `json:"events" validate:"dive"`
}

// LastEventTime returns the timestamp of the final event, or the session
// start time for sessions without events.
func (s *Session) LastEventTime() time.Time {
	if len(s.Events) == 0 {
		return s.StartTime.Time
	}
	return s.Events[len(s.Events)-1].Timestamp.Time
}

// ProductSet returns the sorted distinct products interacted with in this
// session, across events and the generator's viewed_products field.
func (s *Session) ProductSet() []string {
	seen := make(map[string]struct{}, len(s.Events))
	for _, ev := range s.Events {
		if ev.ProductID != "" {
			seen[ev.ProductID] = struct{}{}
		}
	}
	for _, pid := range s.ViewedProducts {
		if pid != "" {
			seen[pid] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for pid := range seen {
		out = append(out, pid)
	}
	sort.Strings(out)
	return out
}

// LineItem is one product position of a transaction at sale-time price.
type LineItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// Amount returns quantity x unit price.
func (li LineItem) Amount() decimal.Decimal {
	return li.UnitPrice.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Transaction is a completed purchase owned by exactly one user.
// Invariants: Total = Subtotal - Discount, Subtotal = sum of line-item
// amounts, and Timestamp falls inside the observation window at or after
// the owning user's registration.
type Transaction struct {
	TransactionID string          `json:"transaction_id" validate:"required"`
	SessionID     string          `json:"session_id,omitempty"`
	UserID        string          `json:"user_id" validate:"required"`
	Timestamp     Timestamp       `json:"timestamp" validate:"required"`
	Items         []LineItem      `json:"items" validate:"required,min=1,dive"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Status        string          `json:"status,omitempty"`
}

// ItemTotal returns the sum of line-item amounts.
func (t *Transaction) ItemTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range t.Items {
		sum = sum.Add(li.Amount())
	}
	return sum
}

// ProductSet returns the sorted distinct product ids across line items.
func (t *Transaction) ProductSet() []string {
	seen := make(map[string]struct{}, len(t.Items))
	for _, li := range t.Items {
		seen[li.ProductID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for pid := range seen {
		out = append(out, pid)
	}
	sort.Strings(out)
	return out
}

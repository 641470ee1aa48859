// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package ingest

import (
	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/models"
)

// rawPageView is the generator's page_views element.
type rawPageView struct {
	Timestamp    models.Timestamp `json:"timestamp"`
	PageType     string           `json:"page_type"`
	ProductID    string           `json:"product_id"`
	CategoryID   string           `json:"category_id"`
	ViewDuration int              `json:"view_duration"`
}

// rawCartEntry is one cart_contents value.
type rawCartEntry struct {
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// rawSession mirrors the generator's session document.
type rawSession struct {
	SessionID        string                  `json:"session_id"`
	UserID           string                  `json:"user_id"`
	StartTime        models.Timestamp        `json:"start_time"`
	EndTime          models.Timestamp        `json:"end_time"`
	DurationSeconds  int                     `json:"duration_seconds"`
	Geo              *models.GeoData         `json:"geo_data"`
	Device           *models.DeviceProfile   `json:"device_profile"`
	ViewedProducts   []string                `json:"viewed_products"`
	PageViews        []rawPageView           `json:"page_views"`
	CartContents     map[string]rawCartEntry `json:"cart_contents"`
	ConversionStatus string                  `json:"conversion_status"`
	Referrer         string                  `json:"referrer"`
}

// eventTypeFor maps a generator page type to a browsing event type.
// Unknown page types fall back to plain views so a generator extension
// degrades gracefully instead of rejecting the whole session.
func eventTypeFor(pageType string) models.EventType {
	switch pageType {
	case "cart":
		return models.EventAddToCart
	case "checkout":
		return models.EventCheckoutStart
	default:
		// home, search, category_listing, product_detail
		return models.EventView
	}
}

// toSession converts the raw document into the typed session model. Page
// views become ordered events; only product_detail views carry a product id.
func (r *rawSession) toSession() models.Session {
	events := make([]models.Event, 0, len(r.PageViews))
	for _, pv := range r.PageViews {
		ev := models.Event{
			Timestamp:    pv.Timestamp,
			Type:         eventTypeFor(pv.PageType),
			CategoryID:   pv.CategoryID,
			ViewDuration: pv.ViewDuration,
		}
		if pv.PageType == "product_detail" || pv.PageType == "cart" {
			ev.ProductID = pv.ProductID
		}
		events = append(events, ev)
	}
	return models.Session{
		SessionID:        r.SessionID,
		UserID:           r.UserID,
		StartTime:        r.StartTime,
		EndTime:          r.EndTime,
		DurationSeconds:  r.DurationSeconds,
		Geo:              r.Geo,
		Device:           r.Device,
		Referrer:         r.Referrer,
		ConversionStatus: r.ConversionStatus,
		ViewedProducts:   r.ViewedProducts,
		Events:           events,
	}
}

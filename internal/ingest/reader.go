// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"

	"github.com/shopsight/shopsight/internal/analytics"
	"github.com/shopsight/shopsight/internal/logging"
	"github.com/shopsight/shopsight/internal/metrics"
	"github.com/shopsight/shopsight/internal/models"
)

// Dataset is the decoded content of one generator output directory.
type Dataset struct {
	Users        []models.User
	Categories   []models.Category
	Products     []models.Product
	Sessions     []models.Session
	Transactions []models.Transaction
	// Errors holds per-record decode failures. The corresponding records
	// are excluded from the slices above.
	Errors []analytics.RecordError
}

// Inputs converts the dataset into pipeline inputs.
func (d *Dataset) Inputs() analytics.Inputs {
	return analytics.Inputs{
		Users:        d.Users,
		Categories:   d.Categories,
		Products:     d.Products,
		Sessions:     d.Sessions,
		Transactions: d.Transactions,
		DecodeErrors: d.Errors,
	}
}

// LoadDataset reads a full generator output directory. Missing entity files
// are errors; missing session chunks just yield zero sessions.
func LoadDataset(dir string) (*Dataset, error) {
	ds := &Dataset{}

	if err := decodeArrayFile(filepath.Join(dir, "users.json"), func(raw json.RawMessage, idx int) {
		var u models.User
		if err := json.Unmarshal(raw, &u); err != nil {
			ds.addDecodeError("user", fmt.Sprintf("users.json[%d]", idx), err)
			return
		}
		ds.Users = append(ds.Users, u)
	}); err != nil {
		return nil, err
	}

	if err := decodeArrayFile(filepath.Join(dir, "categories.json"), func(raw json.RawMessage, idx int) {
		var c models.Category
		if err := json.Unmarshal(raw, &c); err != nil {
			ds.addDecodeError("category", fmt.Sprintf("categories.json[%d]", idx), err)
			return
		}
		ds.Categories = append(ds.Categories, flattenCategory(c)...)
	}); err != nil {
		return nil, err
	}

	if err := decodeArrayFile(filepath.Join(dir, "products.json"), func(raw json.RawMessage, idx int) {
		var p models.Product
		if err := json.Unmarshal(raw, &p); err != nil {
			ds.addDecodeError("product", fmt.Sprintf("products.json[%d]", idx), err)
			return
		}
		ds.Products = append(ds.Products, p)
	}); err != nil {
		return nil, err
	}

	if err := decodeArrayFile(filepath.Join(dir, "transactions.json"), func(raw json.RawMessage, idx int) {
		var t models.Transaction
		if err := json.Unmarshal(raw, &t); err != nil {
			ds.addDecodeError("transaction", fmt.Sprintf("transactions.json[%d]", idx), err)
			return
		}
		ds.Transactions = append(ds.Transactions, t)
	}); err != nil {
		return nil, err
	}

	chunks, err := filepath.Glob(filepath.Join(dir, "sessions_*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob session chunks: %w", err)
	}
	sort.Strings(chunks)
	for _, chunk := range chunks {
		name := filepath.Base(chunk)
		if err := decodeArrayFile(chunk, func(raw json.RawMessage, idx int) {
			var doc rawSession
			if err := json.Unmarshal(raw, &doc); err != nil {
				ds.addDecodeError("session", fmt.Sprintf("%s[%d]", name, idx), err)
				return
			}
			ds.Sessions = append(ds.Sessions, doc.toSession())
		}); err != nil {
			return nil, err
		}
	}

	logging.Info().
		Str("dir", dir).
		Int("users", len(ds.Users)).
		Int("categories", len(ds.Categories)).
		Int("products", len(ds.Products)).
		Int("sessions", len(ds.Sessions)).
		Int("transactions", len(ds.Transactions)).
		Int("decode_errors", len(ds.Errors)).
		Msg("Dataset loaded")
	return ds, nil
}

func (d *Dataset) addDecodeError(entity, id string, err error) {
	d.Errors = append(d.Errors, *analytics.NewValidationError(entity, id, err.Error()))
	metrics.RecordsRejected.WithLabelValues(entity, string(analytics.KindValidation)).Inc()
}

// decodeArrayFile streams one top-level JSON array, invoking fn with each
// element's raw bytes. Type mismatches inside an element are fn's problem;
// only malformed JSON syntax aborts the file.
func decodeArrayFile(path string, fn func(raw json.RawMessage, idx int)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			logging.Debug().Err(cerr).Str("file", path).Msg("Close failed")
		}
	}()

	dec := json.NewDecoder(f)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("read %s: expected top-level array, got %v", filepath.Base(path), tok)
	}

	for idx := 0; dec.More(); idx++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("read %s element %d: %w", filepath.Base(path), idx, err)
		}
		fn(raw, idx)
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return nil
}

// flattenCategory expands embedded subcategories into child category
// records keyed to the parent.
func flattenCategory(c models.Category) []models.Category {
	out := make([]models.Category, 0, 1+len(c.Subcategories))
	subs := c.Subcategories
	c.Subcategories = nil
	out = append(out, c)
	for _, sub := range subs {
		out = append(out, models.Category{
			CategoryID:   sub.SubcategoryID,
			Name:         sub.Name,
			ParentID:     c.CategoryID,
			ProfitMargin: sub.ProfitMargin,
		})
	}
	return out
}

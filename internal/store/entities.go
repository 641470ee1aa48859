// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/shopsight/shopsight/internal/metrics"
	"github.com/shopsight/shopsight/internal/models"
)

// SaveUsers upserts users into the warehouse. The full document is kept as
// JSON alongside the queryable columns.
func (w *Warehouse) SaveUsers(ctx context.Context, users []models.User) error {
	return w.batch(ctx, "users", len(users),
		`INSERT OR REPLACE INTO users (user_id, registration_date, last_active, country, city, user_doc)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		func(i int) ([]any, error) {
			u := &users[i]
			doc, err := json.Marshal(u)
			if err != nil {
				return nil, fmt.Errorf("marshal user %s: %w", u.UserID, err)
			}
			var country, city string
			if u.Geo != nil {
				country, city = u.Geo.Country, u.Geo.City
			}
			return []any{u.UserID, u.RegistrationDate.UTC(), nullableTime(u.LastActive.Time), country, city, string(doc)}, nil
		})
}

// SaveCategories upserts the flattened category tree.
func (w *Warehouse) SaveCategories(ctx context.Context, cats []models.Category) error {
	return w.batch(ctx, "categories", len(cats),
		`INSERT OR REPLACE INTO categories (category_id, name, parent_id) VALUES (?, ?, ?)`,
		func(i int) ([]any, error) {
			c := &cats[i]
			return []any{c.CategoryID, c.Name, c.ParentID}, nil
		})
}

// SaveProducts upserts the product catalog. Prices are stored as
// DECIMAL(12,2) via their canonical string form.
func (w *Warehouse) SaveProducts(ctx context.Context, products []models.Product) error {
	return w.batch(ctx, "products", len(products),
		`INSERT OR REPLACE INTO products (product_id, name, category_id, subcategory_id, base_price, current_stock)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		func(i int) ([]any, error) {
			p := &products[i]
			return []any{p.ProductID, p.Name, p.CategoryID, p.SubcategoryID, p.BasePrice.StringFixed(2), p.CurrentStock}, nil
		})
}

// SaveTransactions upserts transactions and their line items.
func (w *Warehouse) SaveTransactions(ctx context.Context, txs []models.Transaction) error {
	dbTx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction batch: %w", err)
	}
	defer func() { _ = dbTx.Rollback() }()

	txStmt, err := dbTx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO transactions (transaction_id, user_id, session_id, ts, subtotal, discount, total, payment_method, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transactions insert: %w", err)
	}
	defer closeQuietly(txStmt)

	itemStmt, err := dbTx.PrepareContext(ctx,
		`INSERT INTO transaction_items (transaction_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare transaction_items insert: %w", err)
	}
	defer closeQuietly(itemStmt)

	for i := range txs {
		t := &txs[i]
		if _, err := txStmt.ExecContext(ctx, t.TransactionID, t.UserID, t.SessionID, t.Timestamp.UTC(),
			t.Subtotal.StringFixed(2), t.Discount.StringFixed(2), t.Total.StringFixed(2),
			t.PaymentMethod, t.Status); err != nil {
			return fmt.Errorf("insert transaction %s: %w", t.TransactionID, err)
		}
		if _, err := dbTx.ExecContext(ctx,
			`DELETE FROM transaction_items WHERE transaction_id = ?`, t.TransactionID); err != nil {
			return fmt.Errorf("clear items for %s: %w", t.TransactionID, err)
		}
		for _, li := range t.Items {
			if _, err := itemStmt.ExecContext(ctx, t.TransactionID, li.ProductID, li.Quantity,
				li.UnitPrice.StringFixed(2)); err != nil {
				return fmt.Errorf("insert item for %s: %w", t.TransactionID, err)
			}
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction batch: %w", err)
	}
	metrics.RecordsIngested.WithLabelValues("transaction").Add(float64(len(txs)))
	return nil
}

// LoadUsers returns all users, decoded from their stored JSON documents,
// ordered by user id.
func (w *Warehouse) LoadUsers(ctx context.Context) ([]models.User, error) {
	rows, err := w.conn.QueryContext(ctx, `SELECT user_doc FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer closeQuietly(rows)

	var users []models.User
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		var u models.User
		if err := json.Unmarshal([]byte(doc), &u); err != nil {
			return nil, fmt.Errorf("decode user document: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LoadCategories returns the flattened category tree ordered by category id.
func (w *Warehouse) LoadCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := w.conn.QueryContext(ctx,
		`SELECT category_id, name, COALESCE(parent_id, '') FROM categories ORDER BY category_id`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer closeQuietly(rows)

	var cats []models.Category
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.CategoryID, &c.Name, &c.ParentID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// LoadProducts returns the product catalog ordered by product id.
func (w *Warehouse) LoadProducts(ctx context.Context) ([]models.Product, error) {
	rows, err := w.conn.QueryContext(ctx,
		`SELECT product_id, name, category_id, COALESCE(subcategory_id, ''),
		        CAST(base_price AS VARCHAR), current_stock
		 FROM products ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer closeQuietly(rows)

	var products []models.Product
	for rows.Next() {
		var p models.Product
		var price string
		if err := rows.Scan(&p.ProductID, &p.Name, &p.CategoryID, &p.SubcategoryID, &price, &p.CurrentStock); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		if p.BasePrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("decode price for %s: %w", p.ProductID, err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// TransactionFilter narrows LoadTransactions. Zero values mean no filter.
type TransactionFilter struct {
	UserID string
	From   time.Time
	To     time.Time
}

// LoadTransactions returns transactions with their line items, optionally
// filtered, ordered by timestamp then transaction id.
func (w *Warehouse) LoadTransactions(ctx context.Context, f TransactionFilter) ([]models.Transaction, error) {
	query := `SELECT transaction_id, user_id, COALESCE(session_id, ''), ts,
	                 CAST(subtotal AS VARCHAR), CAST(discount AS VARCHAR), CAST(total AS VARCHAR),
	                 COALESCE(payment_method, ''), COALESCE(status, '')
	          FROM transactions WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if !f.From.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND ts <= ?`
		args = append(args, f.To.UTC())
	}
	query += ` ORDER BY ts, transaction_id`

	rows, err := w.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer closeQuietly(rows)

	var txs []models.Transaction
	for rows.Next() {
		var t models.Transaction
		var ts time.Time
		var subtotal, discount, total string
		if err := rows.Scan(&t.TransactionID, &t.UserID, &t.SessionID, &ts,
			&subtotal, &discount, &total, &t.PaymentMethod, &t.Status); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Timestamp = models.NewTimestamp(ts)
		if t.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return nil, fmt.Errorf("decode subtotal for %s: %w", t.TransactionID, err)
		}
		if t.Discount, err = decimal.NewFromString(discount); err != nil {
			return nil, fmt.Errorf("decode discount for %s: %w", t.TransactionID, err)
		}
		if t.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("decode total for %s: %w", t.TransactionID, err)
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := w.attachItems(ctx, txs); err != nil {
		return nil, err
	}
	return txs, nil
}

func (w *Warehouse) attachItems(ctx context.Context, txs []models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	byID := make(map[string]*models.Transaction, len(txs))
	for i := range txs {
		byID[txs[i].TransactionID] = &txs[i]
	}

	rows, err := w.conn.QueryContext(ctx,
		`SELECT transaction_id, product_id, quantity, CAST(unit_price AS VARCHAR)
		 FROM transaction_items ORDER BY transaction_id, product_id`)
	if err != nil {
		return fmt.Errorf("query transaction items: %w", err)
	}
	defer closeQuietly(rows)

	for rows.Next() {
		var txID string
		var li models.LineItem
		var price string
		if err := rows.Scan(&txID, &li.ProductID, &li.Quantity, &price); err != nil {
			return fmt.Errorf("scan transaction item: %w", err)
		}
		if li.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return fmt.Errorf("decode unit price for %s: %w", txID, err)
		}
		if t, ok := byID[txID]; ok {
			t.Items = append(t.Items, li)
		}
	}
	return rows.Err()
}

// batch runs a prepared insert for n records inside one transaction.
func (w *Warehouse) batch(ctx context.Context, entity string, n int, query string, argsFor func(i int) ([]any, error)) error {
	if n == 0 {
		return nil
	}
	dbTx, err := w.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s batch: %w", entity, err)
	}
	defer func() { _ = dbTx.Rollback() }()

	stmt, err := dbTx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", entity, err)
	}
	defer closeQuietly(stmt)

	for i := 0; i < n; i++ {
		args, err := argsFor(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert %s record %d: %w", entity, i, err)
		}
	}
	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("commit %s batch: %w", entity, err)
	}
	metrics.RecordsIngested.WithLabelValues(entity).Add(float64(n))
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

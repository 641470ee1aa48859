// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/shopsight/shopsight/internal/config"
	"github.com/shopsight/shopsight/internal/logging"
	"github.com/shopsight/shopsight/internal/metrics"
	"github.com/shopsight/shopsight/internal/models"
)

const sessionKeyPrefix = "sess:"

// ErrSessionNotFound indicates a missing session key.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore holds raw session documents in BadgerDB. Keys are
// "sess:<user_id>|<start_time RFC3339>|<session_id>" so a prefix scan over
// one user returns that user's sessions in chronological order.
type SessionStore struct {
	db *badger.DB
}

// OpenSessionStore opens the Badger store at cfg.Path, or an in-memory store
// when cfg.InMemory is set.
func OpenSessionStore(cfg *config.SessionsConfig) (*SessionStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	} else {
		opts = badger.DefaultOptions(cfg.Path).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Session store opened")
	return &SessionStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

// SessionKey builds the composite row key for a session.
func SessionKey(userID string, start time.Time, sessionID string) []byte {
	return []byte(sessionKeyPrefix + userID + "|" + start.UTC().Format(time.RFC3339) + "|" + sessionID)
}

func userPrefix(userID string) []byte {
	return []byte(sessionKeyPrefix + userID + "|")
}

// Put stores one session document.
func (s *SessionStore) Put(sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.SessionID, err)
	}
	key := SessionKey(sess.UserID, sess.StartTime.Time, sess.SessionID)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// PutBatch stores many sessions through a write batch.
func (s *SessionStore) PutBatch(sessions []models.Session) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := range sessions {
		sess := &sessions[i]
		data, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("marshal session %s: %w", sess.SessionID, err)
		}
		key := SessionKey(sess.UserID, sess.StartTime.Time, sess.SessionID)
		if err := wb.Set(key, data); err != nil {
			return fmt.Errorf("batch set session %s: %w", sess.SessionID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush session batch: %w", err)
	}
	metrics.RecordsIngested.WithLabelValues("session").Add(float64(len(sessions)))
	return nil
}

// Get retrieves one session by its composite key parts.
func (s *SessionStore) Get(userID string, start time.Time, sessionID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(SessionKey(userID, start, sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &sess)
		})
	})
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// ScanUser returns one user's sessions in start-time order.
func (s *SessionStore) ScanUser(userID string) ([]models.Session, error) {
	return s.scan(userPrefix(userID))
}

// ScanAll returns every stored session in key order, which is deterministic
// across runs over the same data.
func (s *SessionStore) ScanAll() ([]models.Session, error) {
	return s.scan([]byte(sessionKeyPrefix))
}

func (s *SessionStore) scan(prefix []byte) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var sess models.Session
				if err := json.Unmarshal(val, &sess); err != nil {
					return fmt.Errorf("decode session at %s: %w", it.Item().Key(), err)
				}
				sessions = append(sessions, sess)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// Count returns the number of stored sessions without decoding values.
func (s *SessionStore) Count() (int, error) {
	count := 0
	prefix := []byte(sessionKeyPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

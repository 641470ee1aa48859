// Shopsight - E-Commerce Batch Analytics
// Copyright 2026 Shopsight contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shopsight/shopsight

package store

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopsight/shopsight/internal/config"
	"github.com/shopsight/shopsight/internal/models"
)

func newTestSessionStore(t *testing.T) *SessionStore {
	t.Helper()
	s, err := OpenSessionStore(&config.SessionsConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenSessionStore() error = %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func storeSession(userID, sessionID string, start time.Time) models.Session {
	return models.Session{
		SessionID: sessionID,
		UserID:    userID,
		StartTime: models.Timestamp{Time: start},
		Events: []models.Event{
			{Timestamp: models.Timestamp{Time: start}, Type: models.EventView, ProductID: "p1"},
		},
	}
}

func TestSessionStorePutGet(t *testing.T) {
	s := newTestSessionStore(t)
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	want := storeSession("u1", "s1", start)

	if err := s.Put(&want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := s.Get("u1", start, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SessionID != "s1" || got.UserID != "u1" || len(got.Events) != 1 {
		t.Errorf("Get() = %+v", got)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("start = %v, want %v", got.StartTime.Time, start)
	}
}

func TestSessionStoreGetMissing(t *testing.T) {
	s := newTestSessionStore(t)
	_, err := s.Get("u1", time.Now(), "nope")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Get() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStoreScanUserChronological(t *testing.T) {
	s := newTestSessionStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	// Insert out of chronological order; key layout restores the order.
	batch := []models.Session{
		storeSession("u1", "s-late", base.Add(48*time.Hour)),
		storeSession("u1", "s-early", base),
		storeSession("u1", "s-mid", base.Add(5*time.Hour)),
		storeSession("u2", "other", base.Add(time.Hour)),
	}
	if err := s.PutBatch(batch); err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}

	got, err := s.ScanUser("u1")
	if err != nil {
		t.Fatalf("ScanUser() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ScanUser() = %d sessions, want 3", len(got))
	}
	wantOrder := []string{"s-early", "s-mid", "s-late"}
	for i, want := range wantOrder {
		if got[i].SessionID != want {
			t.Errorf("session[%d] = %s, want %s", i, got[i].SessionID, want)
		}
	}
}

func TestSessionStoreScanAllAndCount(t *testing.T) {
	s := newTestSessionStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	var batch []models.Session
	for i := 0; i < 5; i++ {
		batch = append(batch, storeSession(fmt.Sprintf("u%d", i%2), fmt.Sprintf("s%d", i), base.Add(time.Duration(i)*time.Hour)))
	}
	if err := s.PutBatch(batch); err != nil {
		t.Fatalf("PutBatch() error = %v", err)
	}

	all, err := s.ScanAll()
	if err != nil {
		t.Fatalf("ScanAll() error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("ScanAll() = %d sessions, want 5", len(all))
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 5 {
		t.Errorf("Count() = %d, want 5", n)
	}
}

func TestSessionStorePutOverwrites(t *testing.T) {
	s := newTestSessionStore(t)
	start := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	sess := storeSession("u1", "s1", start)
	if err := s.Put(&sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	sess.ConversionStatus = "converted"
	if err := s.Put(&sess); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get("u1", start, "s1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ConversionStatus != "converted" {
		t.Errorf("status = %q, want converted", got.ConversionStatus)
	}
	if n, _ := s.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestSessionKeyLayout(t *testing.T) {
	start := time.Date(2026, 2, 1, 9, 30, 0, 0, time.FixedZone("EET", 2*3600))
	got := string(SessionKey("u1", start, "s1"))
	want := "sess:u1|2026-02-01T07:30:00Z|s1"
	if got != want {
		t.Errorf("SessionKey() = %q, want %q", got, want)
	}
}

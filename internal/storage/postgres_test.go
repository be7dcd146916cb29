package storage

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testDB(t *testing.T) *Postgres {
	t.Helper()
	// Skip in CI for now
	if testing.Short() {
		t.Skip("Skipping database tests in short mode")
	}

	db, err := NewPostgres(Config{
		Host:     "localhost",
		Port:     5432,
		Database: "seclog_test",
		User:     "seclog",
		Password: "seclog",
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		t.Skipf("database not reachable: %v", err)
	}
	if err := db.CreateTables(ctx); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func TestPostgres_InsertEvents(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	events := []Event{
		{
			UploadID:  "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
			Timestamp: &now,
			SrcIP:     "192.168.1.1",
			Method:    "GET",
			URL:       "/api/users",
			UserAgent: "Mozilla/5.0",
			Username:  "alice",
			Bytes:     1024,
			RawLine:   "raw line one",
		},
		{
			UploadID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
			SrcIP:    "192.168.1.2",
			Method:   "POST",
			URL:      "/login",
			RawLine:  "raw line two",
		},
	}

	ids, err := db.InsertEvents(ctx, events)
	if err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
	if ids[1] <= ids[0] {
		t.Errorf("ids not in input order: %v", ids)
	}
}

func TestPostgres_InsertAnomalies(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	ids, err := db.InsertEvents(ctx, []Event{{
		UploadID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		SrcIP:    "10.0.0.1",
		Method:   "FOOBAR",
		URL:      "/x",
		RawLine:  "raw",
	}})
	if err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	err = db.InsertAnomalies(ctx, []Anomaly{{
		EventID:  ids[0],
		Detector: "rule_based",
		Score:    "0.900000",
		Reason:   "Unusual HTTP method detected: FOOBAR",
	}})
	if err != nil {
		t.Errorf("InsertAnomalies failed: %v", err)
	}
}

func TestPostgres_InsertEvents_Empty(t *testing.T) {
	db := testDB(t)
	ids, err := db.InsertEvents(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no ids, got %v", ids)
	}
}

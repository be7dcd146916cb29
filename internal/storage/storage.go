// Package storage persists parsed events and anomaly records.
package storage

import (
	"context"
	"time"
)

// Event is one persisted log event row.
type Event struct {
	ID        int64
	UploadID  string
	Timestamp *time.Time
	SrcIP     string
	DestIP    string
	UserAgent string
	Username  string
	URL       string
	Method    string
	Status    *int
	Bytes     int64
	RawLine   string
}

// Anomaly is one persisted anomaly row, referencing a persisted event.
type Anomaly struct {
	EventID  int64
	Detector string
	Score    string
	Reason   string
}

// Sink is the event/anomaly persistence interface consumed by the
// detection pipeline. InsertEvents must return IDs in input order so
// anomalies staged against batch positions can be remapped; both inserts
// are atomic per call.
type Sink interface {
	InsertEvents(ctx context.Context, events []Event) ([]int64, error)
	InsertAnomalies(ctx context.Context, anomalies []Anomaly) error
	UpdateUploadStatus(ctx context.Context, uploadID, status string) error
}

// Upload status values written by the worker.
const (
	UploadStatusProcessing = "processing"
	UploadStatusProcessed  = "processed"
	UploadStatusFailed     = "failed"
)

// Package detection orchestrates the hybrid anomaly-detection pipeline
// over one uploaded log file: parse, embed, score, persist, update the
// similarity index.
package detection

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bhaveshbhatkar/AISecurityLog/internal/embedding"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/explain"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/metrics"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/parser"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/rules"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/scoring"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/storage"
	"github.com/bhaveshbhatkar/AISecurityLog/internal/vectorindex"
)

// Embedder turns projected texts into vectors. Failed items come back as
// the zero sentinel, never as an error.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) [][]float32
	Dimension() int
}

// Explainer renders a human-readable justification for a flagged record,
// degrading internally to a fallback string.
type Explainer interface {
	Explain(ctx context.Context, req explain.Request) string
}

// Params bundles the detection tunables the processor needs.
type Params struct {
	Scoring      scoring.Params
	Rules        rules.Thresholds
	MinNeighbors int
}

// Processor runs the per-file batch pipeline. Distinct files may be
// processed concurrently; the similarity index is the only shared
// mutable state and is mutated by one batch at a time.
type Processor struct {
	logger    *zap.Logger
	sink      storage.Sink
	index     vectorindex.NearestNeighbors
	embedder  Embedder
	explainer Explainer
	metrics   *metrics.Collector
	params    Params

	// indexMu enforces the single-writer discipline on the shared index.
	indexMu sync.Mutex
}

// NewProcessor wires a batch processor.
func NewProcessor(logger *zap.Logger, sink storage.Sink, index vectorindex.NearestNeighbors,
	embedder Embedder, explainer Explainer, collector *metrics.Collector, params Params) *Processor {
	if index.Dim() != embedder.Dimension() {
		logger.Warn("index and embedder dimensions differ, searches will degrade",
			zap.Int("index_dim", index.Dim()), zap.Int("embedder_dim", embedder.Dimension()))
	}
	return &Processor{
		logger:    logger,
		sink:      sink,
		index:     index,
		embedder:  embedder,
		explainer: explainer,
		metrics:   collector,
		params:    params,
	}
}

// stagedAnomaly references a batch-local event position until the bulk
// insert assigns durable IDs.
type stagedAnomaly struct {
	position int
	detector string
	score    string
	reason   string
}

// ProcessFile runs the full pipeline for one uploaded file. It returns an
// error only when the batch aborts: an unreadable file or a failed event
// insert. Embedding and explanation failures degrade per record.
func (p *Processor) ProcessFile(ctx context.Context, uploadID, filePath string) error {
	start := time.Now()
	log := p.logger.With(zap.String("upload_id", uploadID), zap.String("file", filePath))
	log.Info("starting batch")

	p.markUpload(ctx, uploadID, storage.UploadStatusProcessing)

	// Reading
	lines, err := readLines(filePath)
	if err != nil {
		log.Error("failed to read file", zap.Error(err))
		p.finishBatch(ctx, uploadID, storage.UploadStatusFailed, "aborted", start)
		return fmt.Errorf("read file: %w", err)
	}

	// Parsing
	records := p.parseLines(lines)
	if len(records) == 0 {
		log.Info("no parseable events found")
		p.finishBatch(ctx, uploadID, storage.UploadStatusProcessed, "empty", start)
		return nil
	}
	log.Info("parsed records", zap.Int("count", len(records)))

	// Per-source counts are fixed at batch start, before any scoring.
	applySourceCounts(records)

	// Embedding
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = embedding.ProjectText(rec)
	}
	vectors := p.embedder.EmbedBatch(ctx, texts)
	for _, v := range vectors {
		if embedding.IsZeroVector(v) {
			p.metrics.EmbeddingsTotal.WithLabelValues("failed").Inc()
		} else {
			p.metrics.EmbeddingsTotal.WithLabelValues("ok").Inc()
		}
	}

	// Scoring
	events := make([]storage.Event, len(records))
	var staged []stagedAnomaly
	for i, rec := range records {
		events[i] = toEvent(uploadID, rec)

		if anomaly, ok := p.scoreRecord(ctx, rec, vectors[i], i); ok {
			staged = append(staged, anomaly)
		}
	}

	// Persisting: events first, then anomalies remapped onto durable IDs.
	ids, err := p.sink.InsertEvents(ctx, events)
	if err != nil {
		log.Error("failed inserting events, aborting batch", zap.Error(err))
		p.finishBatch(ctx, uploadID, storage.UploadStatusFailed, "aborted", start)
		return fmt.Errorf("insert events: %w", err)
	}

	anomalies := remapAnomalies(staged, ids, log)
	if err := p.sink.InsertAnomalies(ctx, anomalies); err != nil {
		// Events are already committed; losing the anomaly rows is logged,
		// not fatal, and the index still gets the new exemplars.
		log.Error("failed inserting anomalies", zap.Error(err))
	}

	// IndexUpdating: sentinel vectors never become exemplars.
	p.updateIndex(uploadID, records, vectors, ids, log)

	p.finishBatch(ctx, uploadID, storage.UploadStatusProcessed, "ok", start)
	log.Info("batch complete",
		zap.Int("events", len(events)),
		zap.Int("anomalies", len(anomalies)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (p *Processor) parseLines(lines []string) []*parser.Record {
	var records []*parser.Record
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, ok := parser.ParseLine(line)
		if !ok {
			p.metrics.LinesTotal.WithLabelValues("dropped").Inc()
			continue
		}
		p.metrics.LinesTotal.WithLabelValues("parsed").Inc()
		records = append(records, rec)
	}
	return records
}

// scoreRecord evaluates one record against rules and the similarity
// index, returning a staged anomaly when the fused score crosses the
// threshold.
func (p *Processor) scoreRecord(ctx context.Context, rec *parser.Record,
	vector []float32, position int) (stagedAnomaly, bool) {

	var embScore float64
	var avgDistance float64
	hasNeighbors := false

	if !embedding.IsZeroVector(vector) {
		distances, _ := p.index.Search(vector, p.params.MinNeighbors)
		embScore = scoring.EmbeddingScore(distances, p.params.Scoring.DistanceThreshold)
		if len(distances) > 0 {
			hasNeighbors = true
			avgDistance = mean(distances)
		}
	}

	hit := rules.Evaluate(rec, p.params.Rules)
	decision := scoring.Fuse(hit.Score, embScore, p.params.Scoring)

	if !decision.Flagged(p.params.Scoring.AnomalyThreshold) {
		return stagedAnomaly{}, false
	}

	var baseReason string
	if decision.Detector == scoring.DetectorEmbeddings {
		if hasNeighbors {
			baseReason = fmt.Sprintf("Unusual pattern detected (distance: %.3f)", avgDistance)
		} else {
			baseReason = "Unusual pattern detected"
		}
	} else {
		baseReason = hit.Reason
		if baseReason == "" {
			baseReason = "Rule triggered"
		}
	}

	explanation := p.explainer.Explain(ctx, explain.Request{
		Record:     rec,
		Reason:     baseReason,
		MLScore:    decision.EmbeddingScore,
		FinalScore: decision.Fused,
	})

	p.metrics.AnomaliesTotal.WithLabelValues(decision.Detector).Inc()

	return stagedAnomaly{
		position: position,
		detector: decision.Detector,
		score:    decision.ScoreString(),
		reason:   explanation,
	}, true
}

// remapAnomalies resolves batch-local positions to durable event IDs.
// An anomaly whose position cannot be remapped is logged and dropped
// rather than mis-attributed.
func remapAnomalies(staged []stagedAnomaly, ids []int64, log *zap.Logger) []storage.Anomaly {
	anomalies := make([]storage.Anomaly, 0, len(staged))
	for _, s := range staged {
		if s.position < 0 || s.position >= len(ids) {
			log.Error("anomaly position has no persisted event, dropping",
				zap.Int("position", s.position), zap.Int("events", len(ids)))
			continue
		}
		anomalies = append(anomalies, storage.Anomaly{
			EventID:  ids[s.position],
			Detector: s.detector,
			Score:    s.score,
			Reason:   s.reason,
		})
	}
	return anomalies
}

// updateIndex appends this batch's valid embeddings as exemplars and
// saves the snapshot. Failures here never fail the batch: events and
// anomalies are already durable, and the divergence is logged.
func (p *Processor) updateIndex(uploadID string, records []*parser.Record,
	vectors [][]float32, ids []int64, log *zap.Logger) {

	var addVectors [][]float32
	var addMeta []vectorindex.Metadata
	for i, v := range vectors {
		if embedding.IsZeroVector(v) {
			continue
		}
		if i >= len(ids) {
			break
		}
		ts := ""
		if records[i].Timestamp != nil {
			ts = records[i].Timestamp.Format(time.RFC3339)
		}
		addVectors = append(addVectors, v)
		addMeta = append(addMeta, vectorindex.Metadata{
			EventID:   ids[i],
			UploadID:  uploadID,
			Timestamp: ts,
		})
	}
	if len(addVectors) == 0 {
		return
	}

	p.indexMu.Lock()
	defer p.indexMu.Unlock()

	if err := p.index.Add(addVectors, addMeta); err != nil {
		log.Error("failed adding vectors to index", zap.Error(err))
		return
	}
	if err := p.index.Save(); err != nil {
		log.Error("failed saving index snapshot", zap.Error(err))
	}

	p.metrics.IndexSize.Set(float64(p.index.Len()))
	log.Info("index updated", zap.Int("added", len(addVectors)), zap.Int("total", p.index.Len()))
}

func (p *Processor) markUpload(ctx context.Context, uploadID, status string) {
	if err := p.sink.UpdateUploadStatus(ctx, uploadID, status); err != nil {
		p.logger.Warn("failed updating upload status",
			zap.String("upload_id", uploadID), zap.String("status", status), zap.Error(err))
	}
}

func (p *Processor) finishBatch(ctx context.Context, uploadID, uploadStatus, result string, start time.Time) {
	p.markUpload(ctx, uploadID, uploadStatus)
	p.metrics.BatchesTotal.WithLabelValues(result).Inc()
	p.metrics.BatchDuration.Observe(time.Since(start).Seconds())
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path) // #nosec G304 - path delivered by the upload queue
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// applySourceCounts fills every record's SrcIPCount with the number of
// batch records sharing its source address.
func applySourceCounts(records []*parser.Record) {
	counts := make(map[string]int, len(records))
	for _, rec := range records {
		if rec.SrcIP != "" {
			counts[rec.SrcIP]++
		}
	}
	for _, rec := range records {
		rec.SrcIPCount = counts[rec.SrcIP]
	}
}

func toEvent(uploadID string, rec *parser.Record) storage.Event {
	return storage.Event{
		UploadID:  uploadID,
		Timestamp: rec.Timestamp,
		SrcIP:     rec.SrcIP,
		DestIP:    rec.DestIP,
		UserAgent: rec.UserAgent,
		Username:  rec.Username,
		URL:       rec.URL,
		Method:    rec.Method,
		Status:    rec.Status,
		Bytes:     rec.Bytes,
		RawLine:   rec.RawLine,
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

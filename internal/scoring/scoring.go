// Package scoring converts neighbor distances into a normalized anomaly
// score and fuses it with the rule signal.
package scoring

import "fmt"

// Detector labels for anomaly attribution.
const (
	DetectorEmbeddings = "embeddings"
	DetectorRuleBased  = "rule_based"
)

// Params holds the fusion constants.
type Params struct {
	// DistanceThreshold is the average neighbor distance below which a
	// record is considered normal.
	DistanceThreshold float64
	// MLWeight scales the embedding score's contribution to the fused score.
	MLWeight float64
	// AnomalyThreshold is the fused score a record must strictly exceed
	// to be flagged.
	AnomalyThreshold float64
}

// Decision is the scoring outcome for one record.
type Decision struct {
	EmbeddingScore float64
	RuleScore      float64
	Fused          float64
	Detector       string
}

// EmbeddingScore normalizes the neighbor distances into [0,1]. No
// neighbors contributes zero. An average distance at or below the
// threshold is normal; above it the score grows linearly, saturating at
// twice the threshold.
func EmbeddingScore(distances []float64, distanceThreshold float64) float64 {
	if len(distances) == 0 {
		return 0
	}

	var sum float64
	for _, d := range distances {
		sum += d
	}
	avg := sum / float64(len(distances))

	if avg <= distanceThreshold {
		return 0
	}
	score := avg / (2 * distanceThreshold)
	if score > 1 {
		score = 1
	}
	return score
}

// Fuse combines the best rule score with the embedding score.
//
// Detector attribution intentionally compares the raw embedding score to
// the unscaled rule score, not the weighted contribution used in the
// fused score. Downstream consumers depend on this exact labeling.
func Fuse(ruleScore, embeddingScore float64, p Params) Decision {
	fused := ruleScore
	if scaled := embeddingScore * p.MLWeight; scaled > fused {
		fused = scaled
	}

	detector := DetectorRuleBased
	if embeddingScore > ruleScore {
		detector = DetectorEmbeddings
	}

	return Decision{
		EmbeddingScore: embeddingScore,
		RuleScore:      ruleScore,
		Fused:          fused,
		Detector:       detector,
	}
}

// Flagged reports whether the decision crosses the anomaly threshold.
// The comparison is strict: a score exactly at the threshold is not an
// anomaly.
func (d Decision) Flagged(threshold float64) bool {
	return d.Fused > threshold
}

// ScoreString renders the fused score the way the anomaly sink stores it.
func (d Decision) ScoreString() string {
	return fmt.Sprintf("%.6f", d.Fused)
}

package session

import "math"

const (
	// defaultAnomalyWindow is the number of recent values the detector
	// scores against.
	defaultAnomalyWindow = 100
	// defaultAnomalyThreshold is the z-score above which a value is flagged.
	defaultAnomalyThreshold = 3.0
	// minAnomalyPoints is the window fill below which nothing is flagged;
	// a near-empty window makes the deviation estimate meaningless.
	minAnomalyPoints = 10
)

// AnomalyDetector flags values that deviate from the recent history of one
// quantity by more than a z-score threshold. Not safe for concurrent use;
// the owning session serializes access.
type AnomalyDetector struct {
	window    []float64
	next      int
	filled    int
	threshold float64
}

// NewAnomalyDetector creates a detector. Non-positive arguments select the
// defaults.
func NewAnomalyDetector(window int, threshold float64) *AnomalyDetector {
	if window <= 0 {
		window = defaultAnomalyWindow
	}
	if threshold <= 0 {
		threshold = defaultAnomalyThreshold
	}

	return &AnomalyDetector{
		window:    make([]float64, window),
		threshold: threshold,
	}
}

// Observe scores v against the current window, then adds it. It returns the
// z-score and whether the value is anomalous. Until minAnomalyPoints values
// were seen, or while the window deviation is zero, nothing is flagged.
func (d *AnomalyDetector) Observe(v float64) (float64, bool) {
	score := d.score(v)
	anomalous := d.filled >= minAnomalyPoints && math.Abs(score) > d.threshold

	d.window[d.next] = v
	d.next = (d.next + 1) % len(d.window)
	if d.filled < len(d.window) {
		d.filled++
	}

	return score, anomalous
}

// Reset discards the history.
func (d *AnomalyDetector) Reset() {
	d.next = 0
	d.filled = 0
}

func (d *AnomalyDetector) score(v float64) float64 {
	if d.filled == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < d.filled; i++ {
		sum += d.window[i]
	}
	mean := sum / float64(d.filled)

	var sq float64
	for i := 0; i < d.filled; i++ {
		delta := d.window[i] - mean
		sq += delta * delta
	}
	std := math.Sqrt(sq / float64(d.filled))
	if std == 0 {
		return 0
	}

	return (v - mean) / std
}

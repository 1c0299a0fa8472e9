package types

import "time"

// Severity is the classifier's coarse confidence bucket.
type Severity string

const (
	SeverityLow       Severity = "LOW"
	SeverityMedium    Severity = "MEDIUM"
	SeverityHigh      Severity = "HIGH"
	SeverityUncertain Severity = "UNCERTAIN"
)

// Label is the derived, human-facing verdict string. It is always one of
// the five values below, never a free-form string.
type Label string

const (
	LabelAnalyzing  Label = "Analyzing…"
	LabelLikelyReal Label = "Likely Real"
	LabelUnclear    Label = "Unclear"
	LabelPossiblyAI Label = "Possibly AI"
	LabelLikelyAI   Label = "Likely AI"
)

// ComputeLabel is the total function from (isAI, confidence) to Label
// described in spec §3. It is evaluated in the order below; the order
// matters because the first case (confidence < 0.60 → Unclear) covers
// both isAI values, so the later cases only see confidence ≥ 0.60. The
// four cases together cover every input; the default is unreachable.
func ComputeLabel(isAI bool, confidence float64) Label {
	switch {
	case confidence < 0.60:
		return LabelUnclear
	case isAI && confidence >= 0.80:
		return LabelLikelyAI
	case isAI:
		// isAI && 0.60 <= confidence < 0.80
		return LabelPossiblyAI
	case !isAI && confidence >= 0.60:
		return LabelLikelyReal
	default:
		return LabelUnclear
	}
}

// DetectionVerdict is the classifier's judgment about a post, plus the
// derived label the UI renders.
type DetectionVerdict struct {
	PostID     string   `json:"postId"`
	IsAI       bool     `json:"isAi"`
	Confidence float64  `json:"confidence"`
	Severity   Severity `json:"severity"`
	Reasons    []string `json:"reasons"`
	Label      Label    `json:"label"`
}

// NewVerdict builds a DetectionVerdict with Label derived via ComputeLabel.
func NewVerdict(postID string, isAI bool, confidence float64, severity Severity, reasons []string) DetectionVerdict {
	return DetectionVerdict{
		PostID:     postID,
		IsAI:       isAI,
		Confidence: confidence,
		Severity:   severity,
		Reasons:    reasons,
		Label:      ComputeLabel(isAI, confidence),
	}
}

// AnalyzingVerdict is the placeholder verdict shown while a post is still
// being captured/uploaded/awaited. It is never cached (spec §3).
func AnalyzingVerdict(postID string) DetectionVerdict {
	return DetectionVerdict{PostID: postID, Label: LabelAnalyzing}
}

// CacheEntry pairs a verdict with its insertion time for TTL eviction.
type CacheEntry struct {
	Verdict    DetectionVerdict
	InsertedAt time.Time
}

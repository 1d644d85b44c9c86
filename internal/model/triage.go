package model

// Triage decision codes. Fallback codes are recorded when a degraded path
// accepted the unit; they are observable only in the persisted data.
const (
	DecisionAccepted                 = "ACCEPTED"
	DecisionRejected                 = "REJECTED_IRRELEVANT"
	DecisionFallbackPreprocessError  = "FALLBACK_ACCEPTED_PREPROCESS_ERROR"
	DecisionFallbackModelError       = "FALLBACK_ACCEPTED_MODEL_ERROR"
	DecisionFragmentAlwaysAccepted   = "FRAGMENT_ACCEPTED"
)

// TriageResult is the immutable output of phase 1.
type TriageResult struct {
	Relevant      bool     `json:"relevant"`
	Decision      string   `json:"decision"`
	Justification string   `json:"justification,omitempty"`
	CleanText     string   `json:"clean_text"`
	Category      string   `json:"category,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	Score         float64  `json:"score"`
	Language      string   `json:"language,omitempty"`
	Translated    bool     `json:"translated"`
	Notes         []string `json:"notes,omitempty"`
}

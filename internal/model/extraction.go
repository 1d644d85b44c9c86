package model

// ExtractedFact is a discrete factual claim produced by phase 2. TempID is
// unique within one unit's run and is how later phases reference the fact.
type ExtractedFact struct {
	TempID                int    `json:"temp_id"`
	Description           string `json:"description"`
	Type                  string `json:"type"`
	Country               string `json:"country,omitempty"`
	Date                  string `json:"date,omitempty"`
	IsFutureEvent         bool   `json:"is_future_event"`
	PreliminaryImportance int    `json:"preliminary_importance"`
}

// ExtractedEntity is a named entity produced by phase 2.
type ExtractedEntity struct {
	TempID      int    `json:"temp_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Quote is a verbatim statement attributed to a speaker, produced by phase 3.
// EntityRefs and FactRefs hold temporary ids issued during the same run.
type Quote struct {
	Text       string `json:"text"`
	Speaker    string `json:"speaker,omitempty"`
	EntityRefs []int  `json:"entity_refs,omitempty"`
	FactRefs   []int  `json:"fact_refs,omitempty"`
}

// QuantitativeDatum is a numeric observation produced by phase 3.
type QuantitativeDatum struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	Unit        string  `json:"unit,omitempty"`
	EntityRefs  []int   `json:"entity_refs,omitempty"`
	FactRefs    []int   `json:"fact_refs,omitempty"`
}

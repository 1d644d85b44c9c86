package model

// ProcessedEntity is an entity after normalization. StoreID is set when the
// entity was matched against an existing durable record; nil marks it new.
type ProcessedEntity struct {
	ExtractedEntity
	StoreID *int64 `json:"store_id,omitempty"`
}

// IsNew reports whether the entity has no durable store identity yet.
func (e *ProcessedEntity) IsNew() bool { return e.StoreID == nil }

// ProcessedFact is a fact after normalization and importance scoring.
// SystemImportance keeps the preliminary model guess alongside the final
// value for later feedback comparison.
type ProcessedFact struct {
	ExtractedFact
	DateStart        string `json:"date_start,omitempty"`
	DateEnd          string `json:"date_end,omitempty"`
	Importance       int    `json:"importance"`
	SystemImportance int    `json:"system_importance"`
}

// RelationKind classifies a relationship between two run-scoped elements.
type RelationKind string

const (
	RelationFactEntity    RelationKind = "fact_entity"
	RelationFactFact      RelationKind = "fact_fact"
	RelationEntityEntity  RelationKind = "entity_entity"
	RelationContradiction RelationKind = "contradiction"
)

// Relationship links two elements by their temporary ids.
type Relationship struct {
	Kind       RelationKind `json:"kind"`
	FromTempID int          `json:"from_temp_id"`
	ToTempID   int          `json:"to_temp_id"`
	Type       string       `json:"type,omitempty"`
}

// DailyTrends holds the contextual signals read once per run for importance
// scoring.
type DailyTrends struct {
	Date          string   `json:"date"`
	HotTopics     []string `json:"hot_topics,omitempty"`
	HotEntities   []string `json:"hot_entities,omitempty"`
	ActiveThreads []string `json:"active_threads,omitempty"`
}

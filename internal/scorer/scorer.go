// Package scorer assigns a 1-10 importance value to each processed fact
// from a weighted linear model plus contextual daily-trend features. The
// model artifact is loaded once at process start; a load failure disables
// the scorer for the life of the process, after which every call returns
// the configured default.
package scorer

import (
	"math"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/prensa-labs/newsgraph/internal/model"
)

// Weights is the trained model artifact, stored as YAML alongside the binary.
type Weights struct {
	Bias float64 `yaml:"bias"`

	// Intrinsic feature weights.
	TypeWeights    map[string]float64 `yaml:"type_weights"`
	EntityCount    float64            `yaml:"entity_count"`
	FutureEvent    float64            `yaml:"future_event"`
	TextLength     float64            `yaml:"text_length"`
	Preliminary    float64            `yaml:"preliminary"`
	CountryWeights map[string]float64 `yaml:"country_weights"`

	// Contextual feature weights.
	TopicRelevance float64 `yaml:"topic_relevance"`
	HotEntity      float64 `yaml:"hot_entity"`
	ActiveThread   float64 `yaml:"active_thread"`
}

// Scorer scores facts. A disabled scorer always returns the default value.
type Scorer struct {
	weights *Weights
	enabled bool
	def     int
}

// Load reads the model artifact at path. When the artifact cannot be read
// or parsed the scorer starts disabled; this is a startup-time decision,
// not a per-call retry.
func Load(path string, defaultImportance int) *Scorer {
	s := &Scorer{def: defaultImportance}

	data, err := os.ReadFile(path)
	if err != nil {
		zap.L().Warn("scorer: model artifact unavailable, scoring disabled",
			zap.String("path", path),
			zap.Error(err),
		)
		return s
	}

	var w Weights
	if err := yaml.Unmarshal(data, &w); err != nil {
		zap.L().Warn("scorer: model artifact unparseable, scoring disabled",
			zap.String("path", path),
			zap.Error(eris.Wrap(err, "scorer: parse weights")),
		)
		return s
	}

	s.weights = &w
	s.enabled = true
	zap.L().Info("scorer: model artifact loaded", zap.String("path", path))
	return s
}

// NewWithWeights builds an enabled scorer from in-memory weights.
func NewWithWeights(w *Weights, defaultImportance int) *Scorer {
	return &Scorer{weights: w, enabled: true, def: defaultImportance}
}

// Disabled reports whether the scorer is running in default-only mode.
func (s *Scorer) Disabled() bool { return !s.enabled }

// Default returns the configured default importance.
func (s *Scorer) Default() int { return s.def }

// Score computes the importance of one fact. entities are the run's
// processed entities (used for entity-count and hot-entity features);
// trends may be nil when the contextual read failed, in which case only
// intrinsic features contribute.
func (s *Scorer) Score(fact model.ProcessedFact, entities []model.ProcessedEntity, trends *model.DailyTrends) int {
	if !s.enabled {
		return s.def
	}
	w := s.weights

	score := w.Bias
	score += w.TypeWeights[strings.ToLower(fact.Type)]
	score += w.CountryWeights[strings.ToUpper(fact.Country)]
	score += w.EntityCount * float64(len(entities))
	if fact.IsFutureEvent {
		score += w.FutureEvent
	}
	score += w.TextLength * math.Log1p(float64(len(fact.Description)))
	score += w.Preliminary * float64(fact.PreliminaryImportance)

	if trends != nil {
		score += w.TopicRelevance * topicRelevance(fact.Description, trends.HotTopics)
		score += w.HotEntity * float64(hotEntityCount(entities, trends.HotEntities))
		score += w.ActiveThread * topicRelevance(fact.Description, trends.ActiveThreads)
	}

	return clamp(int(math.Round(score)))
}

// topicRelevance counts how many trend topics appear in the fact text.
func topicRelevance(text string, topics []string) float64 {
	if len(topics) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	var hits float64
	for _, topic := range topics {
		if topic != "" && strings.Contains(lower, strings.ToLower(topic)) {
			hits++
		}
	}
	return hits
}

func hotEntityCount(entities []model.ProcessedEntity, hot []string) int {
	if len(hot) == 0 || len(entities) == 0 {
		return 0
	}
	hotSet := make(map[string]struct{}, len(hot))
	for _, h := range hot {
		hotSet[strings.ToLower(h)] = struct{}{}
	}
	count := 0
	for _, e := range entities {
		if _, ok := hotSet[strings.ToLower(e.Name)]; ok {
			count++
		}
	}
	return count
}

func clamp(v int) int {
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/prensa-labs/newsgraph/internal/llm"
	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/resilience"
)

// supportedLanguages are the locales the corpus actually carries. Detection
// output is canonicalized against this set; anything else reads as the
// closest supported match.
var supportedLanguages = []language.Tag{
	language.Spanish,
	language.English,
	language.Portuguese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// stopwords per language, used as a cheap frequency detector. News text is
// long enough that a handful of function words separates the three locales
// reliably.
var stopwords = map[language.Tag][]string{
	language.Spanish:    {"el", "la", "los", "las", "una", "del", "que", "por", "con", "para", "como", "pero"},
	language.English:    {"the", "and", "was", "for", "that", "with", "from", "this", "have", "not", "are", "his"},
	language.Portuguese: {"uma", "não", "das", "dos", "com", "para", "mais", "foi", "pelo", "pela", "como", "ser"},
}

// detectLanguage guesses the text's language by stopword frequency and
// canonicalizes the guess against the supported set. An inconclusive count
// is an error so the caller can fall back to the configured default locale.
func detectLanguage(text string) (string, error) {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 10 {
		return "", fmt.Errorf("text too short for language detection (%d words)", len(words))
	}
	limit := len(words)
	if limit > 400 {
		limit = 400
	}

	counts := make(map[language.Tag]int, len(stopwords))
	for tag, list := range stopwords {
		set := make(map[string]struct{}, len(list))
		for _, w := range list {
			set[w] = struct{}{}
		}
		for _, w := range words[:limit] {
			if _, ok := set[strings.Trim(w, ".,;:\"'()¿?¡!")]; ok {
				counts[tag]++
			}
		}
	}

	var best language.Tag
	bestCount := 0
	for tag, n := range counts {
		if n > bestCount {
			best, bestCount = tag, n
		}
	}
	if bestCount < 3 {
		return "", fmt.Errorf("inconclusive language detection (best %d hits)", bestCount)
	}

	tag, _, _ := languageMatcher.Match(best)
	base, _ := tag.Base()
	return base.String(), nil
}

// TriagePhase cleans the unit's text, decides relevance, and translates
// non-default-language text. Dependency failures degrade through the
// fallback table; the phase itself never fails a unit.
func TriagePhase(ctx context.Context, st *model.PipelineState, ai ModelInvoker, table *resilience.FallbackTable) error {
	log := zap.L().With(zap.String("unit_id", st.Unit.ID))
	st.Triage = &model.TriageResult{}

	lang, err := detectLanguage(st.Unit.Text())
	if err != nil {
		table.Apply(st, model.PhaseTriage, resilience.FailureLanguageDetection, err)
	} else {
		st.Triage.Language = lang
	}

	// Preprocess: strip boilerplate down to pure article text.
	var cleaned struct {
		CleanText string `json:"clean_text"`
	}
	err = ai.InvokeJSON(ctx, llm.Call{
		Phase:  model.PhaseTriage,
		UnitID: st.Unit.ID,
		System: preprocessSystemPrompt,
		Prompt: fmt.Sprintf(preprocessUserPrompt, st.Unit.Headline(), st.Unit.Text()),
	}, &cleaned)
	if err != nil || strings.TrimSpace(cleaned.CleanText) == "" {
		if err == nil {
			err = fmt.Errorf("preprocess returned empty text")
		}
		table.Apply(st, model.PhaseTriage, resilience.FailurePreprocess, err)
	} else {
		st.Triage.CleanText = cleaned.CleanText
	}

	// Relevance: fragments always pass, carrying their own decision code.
	if st.Unit.Kind == model.UnitKindFragment {
		st.Triage.Relevant = true
		st.Triage.Decision = model.DecisionFragmentAlwaysAccepted
	} else {
		// Articles are always put to the relevance check, even when an earlier
		// fallback already accepted them provisionally; the verdict, or the
		// relevance fallback itself, settles the final decision code.
		var verdict struct {
			Relevant      bool     `json:"relevant"`
			Justification string   `json:"justification"`
			Category      string   `json:"category"`
			Keywords      []string `json:"keywords"`
			Score         float64  `json:"score"`
		}
		err = ai.InvokeJSON(ctx, llm.Call{
			Phase:  model.PhaseTriage,
			UnitID: st.Unit.ID,
			System: relevanceSystemPrompt,
			Prompt: fmt.Sprintf(relevanceUserPrompt,
				st.Unit.Source(), st.Unit.Country(), st.Unit.Headline(), st.CleanText()),
		}, &verdict)
		if err != nil {
			table.Apply(st, model.PhaseTriage, resilience.FailureRelevance, err)
		} else {
			st.Triage.Relevant = verdict.Relevant
			st.Triage.Justification = verdict.Justification
			st.Triage.Category = verdict.Category
			st.Triage.Keywords = verdict.Keywords
			st.Triage.Score = verdict.Score
			if verdict.Relevant {
				st.Triage.Decision = model.DecisionAccepted
			} else {
				st.Triage.Decision = model.DecisionRejected
			}
		}
	}

	if !st.Triage.Relevant {
		log.Info("triage rejected unit",
			zap.String("decision", st.Triage.Decision),
			zap.String("justification", st.Triage.Justification),
		)
		return nil
	}

	// Translation: only units away from the default working language.
	if st.Triage.Language != "" && table.DefaultLanguage != "" && st.Triage.Language != table.DefaultLanguage {
		var translated struct {
			Translation string `json:"translation"`
		}
		err = ai.InvokeJSON(ctx, llm.Call{
			Phase:  model.PhaseTriage,
			UnitID: st.Unit.ID,
			System: fmt.Sprintf(translationSystemPrompt, languageName(table.DefaultLanguage)),
			Prompt: st.CleanText(),
		}, &translated)
		if err != nil || strings.TrimSpace(translated.Translation) == "" {
			if err == nil {
				err = fmt.Errorf("translation returned empty text")
			}
			table.Apply(st, model.PhaseTriage, resilience.FailureTranslation, err)
		} else {
			st.Triage.CleanText = translated.Translation
			st.Triage.Translated = true
		}
	}

	return nil
}

// languageName renders a BCP 47 base tag as the English language name used
// inside the translation prompt.
func languageName(tag string) string {
	switch tag {
	case "es":
		return "Spanish"
	case "en":
		return "English"
	case "pt":
		return "Portuguese"
	default:
		return tag
	}
}

package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/refs"
	"github.com/prensa-labs/newsgraph/internal/resilience"
)

const spanishBody = `El banco central de Argentina subió la tasa de interés en 200 puntos básicos
para contener la inflación. La presidenta del banco, María Pérez, dijo que la medida era
inevitable dado el contexto. Los analistas esperan que la tasa se mantenga por el resto del año
mientras el gobierno negocia con el fondo monetario para refinanciar la deuda externa del país.`

const englishBody = `The central bank of Argentina raised its interest rate by 200 basis points
to contain inflation. The bank president said that the measure was unavoidable given the context,
and analysts expect that the rate will stay at this level for the rest of the year while the
government negotiates with the monetary fund to refinance the external debt of the country.`

func itoa(v int) string { return strconv.Itoa(v) }

func translationSystemPromptFor(lang string) string {
	return fmt.Sprintf(translationSystemPrompt, lang)
}

func newTestTable() *resilience.FallbackTable {
	return resilience.NewFallbackTable("es", 5)
}

func testArticleUnit() *model.ProcessingUnit {
	return &model.ProcessingUnit{
		ID:   "unit-1",
		Kind: model.UnitKindArticle,
		Article: &model.Article{
			Outlet:      "El Diario",
			Country:     "AR",
			OutletType:  "newspaper",
			Headline:    "El banco central sube la tasa",
			PublishedAt: "2026-08-30T10:00:00Z",
			BodyText:    spanishBody,
		},
	}
}

func testFragmentUnit() *model.ProcessingUnit {
	return &model.ProcessingUnit{
		ID:   "unit-frag",
		Kind: model.UnitKindFragment,
		Fragment: &model.Fragment{
			DocumentID:     "doc-7",
			FragmentID:     "frag-2",
			Text:           spanishBody,
			Sequence:       2,
			TotalFragments: 5,
			IngestedAt:     "2026-08-30T11:00:00Z",
		},
	}
}

// extractedState returns a state as it looks after a successful extraction:
// two facts and two entities, all with tracker-issued temp ids.
func extractedState(unit *model.ProcessingUnit) (*model.PipelineState, *refs.Tracker) {
	st := model.NewState(unit)
	st.Triage = &model.TriageResult{
		Relevant:  true,
		Decision:  model.DecisionAccepted,
		CleanText: strings.ReplaceAll(unit.Text(), "\n", " "),
		Language:  "es",
	}
	tracker := refs.NewTracker()
	st.Facts = []model.ExtractedFact{
		{Description: "Central bank raised rates by 200bp", Type: "economic", Country: "AR", Date: "2026-08", PreliminaryImportance: 6},
		{Description: "Government negotiating debt refinancing", Type: "economic", Country: "AR", PreliminaryImportance: 5},
	}
	st.Entities = []model.ExtractedEntity{
		{Name: "Banco Central", Type: "institution"},
		{Name: "María Pérez", Type: "person"},
	}
	registerExtracted(st, tracker)
	return st, tracker
}

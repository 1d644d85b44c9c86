package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prensa-labs/newsgraph/internal/llm"
	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/refs"
	"github.com/prensa-labs/newsgraph/internal/resilience"
)

// QuotesFiguresPhase extracts verbatim quotes and quantitative data in two
// parallel model calls. References to facts and entities come back as
// temporary ids and are validated against the tracker; ids the model
// invented are dropped. A failure of either call empties both collections,
// which is an acceptable loss.
func QuotesFiguresPhase(ctx context.Context, st *model.PipelineState, tracker *refs.Tracker, ai ModelInvoker, table *resilience.FallbackTable) error {
	facts := factSummary(st.Facts)
	entities := entitySummary(st.Entities)
	prompt := fmt.Sprintf(quotesFiguresUserPrompt, facts, entities, st.CleanText())

	var mu sync.Mutex
	var quotes []model.Quote
	var figures []model.QuantitativeDatum

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var out struct {
			Quotes []struct {
				Text       string `json:"text"`
				Speaker    string `json:"speaker"`
				EntityRefs []int  `json:"entity_refs"`
				FactRefs   []int  `json:"fact_refs"`
			} `json:"quotes"`
		}
		if err := ai.InvokeJSON(gCtx, llm.Call{
			Phase:  model.PhaseQuotesFigures,
			UnitID: st.Unit.ID,
			System: quotesSystemPrompt,
			Prompt: prompt,
		}, &out); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, q := range out.Quotes {
			if q.Text == "" {
				continue
			}
			quotes = append(quotes, model.Quote{
				Text:       q.Text,
				Speaker:    q.Speaker,
				EntityRefs: knownRefs(tracker, q.EntityRefs),
				FactRefs:   knownRefs(tracker, q.FactRefs),
			})
		}
		return nil
	})

	g.Go(func() error {
		var out struct {
			Figures []struct {
				Description string  `json:"description"`
				Value       float64 `json:"value"`
				Unit        string  `json:"unit"`
				EntityRefs  []int   `json:"entity_refs"`
				FactRefs    []int   `json:"fact_refs"`
			} `json:"figures"`
		}
		if err := ai.InvokeJSON(gCtx, llm.Call{
			Phase:  model.PhaseQuotesFigures,
			UnitID: st.Unit.ID,
			System: figuresSystemPrompt,
			Prompt: prompt,
		}, &out); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, f := range out.Figures {
			if f.Description == "" {
				continue
			}
			figures = append(figures, model.QuantitativeDatum{
				Description: f.Description,
				Value:       f.Value,
				Unit:        f.Unit,
				EntityRefs:  knownRefs(tracker, f.EntityRefs),
				FactRefs:    knownRefs(tracker, f.FactRefs),
			})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		table.Apply(st, model.PhaseQuotesFigures, resilience.FailureModelCall, err)
		return nil
	}

	st.Quotes = quotes
	st.Figures = figures
	zap.L().Debug("quotes and figures extracted",
		zap.String("unit_id", st.Unit.ID),
		zap.Int("quotes", len(quotes)),
		zap.Int("figures", len(figures)),
	)
	return nil
}
